package storage

import (
	"context"
	"maps"
	"sync"
)

type memoryStore struct {
	mu     sync.Mutex
	data   map[string]string
	closed bool
}

// NewMemory returns an in-process store. Nothing survives the process.
func NewMemory() Store {
	return &memoryStore{data: map[string]string{}}
}

func (s *memoryStore) Load(ctx context.Context) (map[string]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return maps.Clone(s.data), nil
}

func (s *memoryStore) Put(ctx context.Context, kv map[string]string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	maps.Copy(s.data, kv)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, keys ...string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
