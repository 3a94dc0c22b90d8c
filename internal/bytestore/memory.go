package bytestore

import (
	"context"
	"sync"

	"wallet-chat/go-core/internal/contracts"
)

// MemoryStore keeps values in process memory. Used for tests and ephemeral
// sessions.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	opts   map[string]contracts.SetOptions
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		opts:   make(map[string]contracts.SetOptions),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, opts contracts.SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	s.opts[key] = opts
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	delete(s.opts, key)
	return nil
}

// Options returns the options the key was last written with.
func (s *MemoryStore) Options(key string) (contracts.SetOptions, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opts, ok := s.opts[key]
	return opts, ok
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
