package bytestore

import "wallet-chat/go-core/internal/contracts"

// Mode describes the protection level of a ByteStore handed to the key store.
type Mode string

const (
	// ModeSealed stores values encrypted under the device storage key.
	ModeSealed Mode = "sealed"
	// ModeEphemeral keeps values in memory only.
	ModeEphemeral Mode = "ephemeral"
	// ModeDegraded persists values without device-level encryption.
	ModeDegraded Mode = "degraded"
)

// DegradedStore marks a plaintext persistent backend. It behaves exactly like
// the wrapped store; callers detect it through StoreMode and decide whether
// policy allows wallet secrets to live there.
type DegradedStore struct {
	contracts.ByteStore
}

func (DegradedStore) Mode() Mode { return ModeDegraded }

func (*SealedStore) Mode() Mode { return ModeSealed }

func (*MemoryStore) Mode() Mode { return ModeEphemeral }

// StoreMode reports the mode of s. Unknown implementations are assumed to be
// platform secure storage.
func StoreMode(s contracts.ByteStore) Mode {
	if m, ok := s.(interface{ Mode() Mode }); ok {
		return m.Mode()
	}
	return ModeSealed
}
