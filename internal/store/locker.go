package store

import "sync"

// Locker hands out one mutex per resource id. Entries are dropped once no
// goroutine holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*refMutex)}
}

// Lock blocks until id is free and returns its unlock func.
func (l *Locker) Lock(id string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &refMutex{}
		l.locks[id] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.Unlock()
			l.mu.Lock()
			m.refs--
			if m.refs == 0 {
				delete(l.locks, id)
			}
			l.mu.Unlock()
		})
	}
}

func (l *Locker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
