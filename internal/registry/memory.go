// Package registry resolves and publishes peer messaging keys.
package registry

import (
	"context"
	"strings"
	"sync"

	"wallet-chat/go-core/internal/contracts"
)

var (
	ErrInvalidAddress = contracts.New(contracts.ErrorCategoryValidation, "peer address is required")
	ErrInvalidKey     = contracts.New(contracts.ErrorCategoryValidation, "public key must be 32 bytes")
)

const publicKeySize = 32

// MemoryRegistry is an in-process registry used by tests and single-process
// setups.
type MemoryRegistry struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{keys: make(map[string][]byte)}
}

func (r *MemoryRegistry) LookupPublicKey(ctx context.Context, peer string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[strings.TrimSpace(peer)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), key...), true, nil
}

func (r *MemoryRegistry) PublishPublicKey(ctx context.Context, peer string, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return ErrInvalidAddress
	}
	if len(key) != publicKeySize {
		return ErrInvalidKey
	}
	r.mu.Lock()
	r.keys[peer] = append([]byte(nil), key...)
	r.mu.Unlock()
	return nil
}

// Remove withdraws a peer's key.
func (r *MemoryRegistry) Remove(peer string) {
	r.mu.Lock()
	delete(r.keys, strings.TrimSpace(peer))
	r.mu.Unlock()
}
