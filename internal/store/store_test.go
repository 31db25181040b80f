package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Status string
	N      int
}

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[item]()

	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.CompareAndSwap(ctx, "a", nil, item{}), ErrNotFound)

	require.NoError(t, m.Insert(ctx, "a", item{Status: "NEW"}))
	assert.ErrorIs(t, m.Insert(ctx, "a", item{}), ErrConflict)

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "NEW", got.Status)
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[item]()
	require.NoError(t, m.Insert(ctx, "c", item{Status: "AWAITING"}))

	awaiting := func(v item) bool { return v.Status == "AWAITING" }
	require.NoError(t, m.CompareAndSwap(ctx, "c", awaiting, item{Status: "CONSUMED"}))
	assert.ErrorIs(t, m.CompareAndSwap(ctx, "c", awaiting, item{Status: "CONSUMED"}), ErrConflict)
	assert.ErrorIs(t, m.CompareAndSwap(ctx, "missing", awaiting, item{}), ErrNotFound)
}

func TestCompareAndSwapSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[item]()
	require.NoError(t, m.Insert(ctx, "c", item{Status: "AWAITING"}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if m.CompareAndSwap(ctx, "c", func(v item) bool { return v.Status == "AWAITING" }, item{Status: "CONSUMED", N: n}) == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestLockerSerialisesPerID(t *testing.T) {
	l := NewLocker()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("consent-1")
			defer unlock()
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxInside.Load())
	assert.Zero(t, l.held())
}

func TestLockerIndependentIDs(t *testing.T) {
	l := NewLocker()
	unlockA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	unlockA()
	unlockA()
	assert.Zero(t, l.held())
}
