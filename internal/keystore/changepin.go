package keystore

import (
	"context"
	"errors"

	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/crypto"
	"wallet-chat/go-core/pkg/models"
)

// ResealFunc re-encrypts secrets held outside the wallet blob when the wallet
// key changes. It runs before the wallet blob and PinRecord are rewritten, and
// runs again with the keys swapped if a later step fails.
type ResealFunc func(ctx context.Context, oldKey, newKey []byte) error

// ChangePin re-keys the wallet under newPin. oldPin and newPin may be equal,
// which refreshes the salt and iteration count.
//
// Writes go reseal hook, wallet blob, PinRecord. If any of them fails the
// earlier ones are rewritten under the old key, so the old PIN keeps opening
// the wallet. Only a crash inside that window leaves a blob the stored record
// cannot open; LoadWalletData then reports ok=false and Session.Wallet
// returns ErrWalletUnreadable.
func (s *Store) ChangePin(ctx context.Context, oldPin, newPin string, reseal ResealFunc) error {
	if err := s.checkLockout(); err != nil {
		return err
	}
	if err := crypto.ValidatePIN(newPin); err != nil {
		return err
	}
	oldRec, err := s.loadPinRecord(ctx)
	if err != nil {
		return err
	}
	ok, err := verifyAgainst(oldRec, oldPin)
	if err != nil {
		return err
	}
	if !ok {
		s.onFailedPINAttempt()
		return ErrWrongPIN
	}
	oldKey, err := crypto.DeriveEncryptionKey(oldPin, oldRec.Salt, oldRec.Iterations)
	if err != nil {
		return err
	}
	defer crypto.Wipe(oldKey)

	var (
		wallet    models.WalletData
		hasWallet bool
	)
	wallet, hasWallet, err = s.LoadWalletData(ctx, oldKey)
	switch {
	case errors.Is(err, ErrWalletNotFound):
		hasWallet = false
	case err != nil:
		return err
	case !hasWallet:
		return ErrWalletUnreadable
	}

	newRec, err := s.newPinRecord(newPin)
	if err != nil {
		return err
	}
	newKey, err := crypto.DeriveEncryptionKey(newPin, newRec.Salt, newRec.Iterations)
	if err != nil {
		return err
	}
	rb := rollback{oldRec: oldRec, oldKey: oldKey, newKey: newKey}
	if hasWallet {
		rb.wallet = &wallet
	}
	if reseal != nil {
		if err := reseal(ctx, oldKey, newKey); err != nil {
			crypto.Wipe(newKey)
			return err
		}
		rb.reseal = reseal
	}
	if err := ctx.Err(); err != nil {
		return s.abortChangePin(ctx, rb, err)
	}
	if hasWallet {
		if err := s.SaveWalletData(ctx, wallet.Mnemonic, wallet.Accounts, newKey); err != nil {
			return s.abortChangePin(ctx, rb, err)
		}
	}
	if err := s.putPinRecord(ctx, newRec); err != nil {
		rb.pinRecord = true
		return s.abortChangePin(ctx, rb, err)
	}
	s.refreshBiometricKey(ctx, newKey)
	s.resetPINAttemptState()
	s.commitKey(newKey)
	s.logInfo("change_pin", "pin changed", "iterations", newRec.Iterations)
	return nil
}

func (s *Store) refreshBiometricKey(ctx context.Context, newKey []byte) {
	enabled, err := s.BiometricEnabled(ctx)
	if err != nil || !enabled {
		return
	}
	err = s.put(ctx, biometricKey, newKey, contracts.SetOptions{
		RequireUserAuthentication: true,
		Sensitive:                 true,
	})
	if err != nil {
		s.logWarn("change_pin", "biometric key not refreshed", "error", err)
	}
}

// rollback lists what ChangePin already rewrote under the new key.
type rollback struct {
	oldRec    PinRecord
	oldKey    []byte
	newKey    []byte
	wallet    *models.WalletData
	reseal    ResealFunc
	pinRecord bool
}

// abortChangePin restores the old key's view of the store and wipes newKey.
// It runs detached from ctx, which may be the reason the change failed.
func (s *Store) abortChangePin(ctx context.Context, rb rollback, cause error) error {
	defer crypto.Wipe(rb.newKey)
	ctx = context.WithoutCancel(ctx)

	var rbErr error
	if rb.pinRecord {
		rbErr = errors.Join(rbErr, s.putPinRecord(ctx, rb.oldRec))
	}
	if rb.wallet != nil {
		rbErr = errors.Join(rbErr, s.SaveWalletData(ctx, rb.wallet.Mnemonic, rb.wallet.Accounts, rb.oldKey))
	}
	if rb.reseal != nil {
		rbErr = errors.Join(rbErr, rb.reseal(ctx, rb.newKey, rb.oldKey))
	}
	if rbErr != nil {
		s.logWarn("change_pin", "rollback incomplete", "error", rbErr)
		return errors.Join(cause, rbErr)
	}
	s.logWarn("change_pin", "pin change rolled back", "error", cause)
	return cause
}
