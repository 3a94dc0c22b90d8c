package keystore

import (
	"context"

	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/crypto"
	"wallet-chat/go-core/internal/metrics"
)

// EnableBiometricUnlock stores the cached wallet key behind the platform's
// user-presence check. The store must be unlocked.
func (s *Store) EnableBiometricUnlock(ctx context.Context) error {
	key, ok := s.GetCachedKey()
	if !ok {
		return ErrLocked
	}
	defer crypto.Wipe(key)
	if err := s.put(ctx, biometricKey, key, contracts.SetOptions{
		RequireUserAuthentication: true,
		Sensitive:                 true,
	}); err != nil {
		return err
	}
	s.logInfo("enable_biometric", "biometric unlock enabled")
	return nil
}

func (s *Store) DisableBiometricUnlock(ctx context.Context) error {
	return s.delete(ctx, biometricKey)
}

func (s *Store) BiometricEnabled(ctx context.Context) (bool, error) {
	_, ok, err := s.get(ctx, biometricKey)
	return ok, err
}

// UnlockWithBiometric caches the key stored by EnableBiometricUnlock. The key
// is accepted only if it still opens the wallet blob; a key left over from an
// earlier PIN is removed.
func (s *Store) UnlockWithBiometric(ctx context.Context) ([]byte, error) {
	key, ok, err := s.get(ctx, biometricKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBiometricNotEnabled
	}
	blob, err := s.loadWalletBlob(ctx)
	if err != nil {
		crypto.Wipe(key)
		return nil, err
	}
	plaintext, err := s.cipher.Open(blob.Nonce, blob.Ciphertext, key)
	if err != nil {
		crypto.Wipe(key)
		if delErr := s.delete(ctx, biometricKey); delErr != nil {
			s.logWarn("unlock_biometric", "stale biometric key not removed", "error", delErr)
		}
		return nil, ErrBiometricStale
	}
	crypto.Wipe(plaintext)
	if err := ctx.Err(); err != nil {
		crypto.Wipe(key)
		return nil, err
	}
	s.resetPINAttemptState()
	out := s.commitKey(key)
	s.metrics.RecordUnlock(metrics.UnlockBiometric)
	s.logInfo("unlock_biometric", "key store unlocked")
	return out, nil
}
