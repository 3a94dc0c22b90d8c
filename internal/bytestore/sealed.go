package bytestore

import (
	"context"

	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/securestore"
)

// SealedStore encrypts every value with the device storage key before it
// reaches the backend. The key name is bound as associated data so values
// cannot be swapped between entries.
type SealedStore struct {
	inner  contracts.ByteStore
	sealer *securestore.Sealer
}

func NewSealedStore(inner contracts.ByteStore, sealer *securestore.Sealer) *SealedStore {
	return &SealedStore{inner: inner, sealer: sealer}
}

func (s *SealedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	// Plaintext written in degraded mode surfaces as ErrLegacyData and is
	// never returned as a value.
	plain, err := s.sealer.Open(raw, []byte(key))
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

func (s *SealedStore) Set(ctx context.Context, key string, value []byte, opts contracts.SetOptions) error {
	sealed, err := s.sealer.Seal(value, []byte(key))
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed, opts)
}

func (s *SealedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
