// Package store keeps gateway resources in memory behind an interface the
// lifecycle services depend on.
package store

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// Store is keyed storage for one resource type.
type Store[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	// Insert adds a new resource; ErrConflict when id is taken.
	Insert(ctx context.Context, id string, v T) error
	// CompareAndSwap replaces the resource only while match holds for the
	// current value; ErrConflict otherwise.
	CompareAndSwap(ctx context.Context, id string, match func(T) bool, next T) error
}

// Memory implements Store with in-process concurrency safety.
type Memory[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{items: make(map[string]T)}
}

func (m *Memory[T]) Get(_ context.Context, id string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return v, nil
}

func (m *Memory[T]) Insert(_ context.Context, id string, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; ok {
		return ErrConflict
	}
	m.items[id] = v
	return nil
}

func (m *Memory[T]) CompareAndSwap(_ context.Context, id string, match func(T) bool, next T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	if match != nil && !match(cur) {
		return ErrConflict
	}
	m.items[id] = next
	return nil
}
