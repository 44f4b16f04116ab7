package state

import (
	"context"
	"sync"
)

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	data   Record
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: Record{}}
}

func (s *MemoryStore) Get(_ context.Context, keys ...string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.data.Pick(keys...), nil
}

func (s *MemoryStore) Set(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	for k, v := range rec {
		s.data[k] = v
	}
	return nil
}

func (s *MemoryStore) Update(_ context.Context, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	changes, err := fn(s.data.Clone())
	if err != nil {
		return err
	}
	for k, v := range changes {
		s.data[k] = v
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
