package keystore

import "wallet-chat/go-core/internal/contracts"

var (
	ErrNotInitialized      = contracts.New(contracts.ErrorCategoryNotFound, "no pin has been set")
	ErrWrongPIN            = contracts.New(contracts.ErrorCategoryAuthentication, "pin does not match")
	ErrPinLocked           = contracts.New(contracts.ErrorCategoryAuthentication, "pin attempts are temporarily locked")
	ErrLocked              = contracts.New(contracts.ErrorCategoryAuthentication, "key store is locked")
	ErrWalletNotFound      = contracts.New(contracts.ErrorCategoryNotFound, "wallet data not found")
	ErrWalletUnreadable    = contracts.New(contracts.ErrorCategoryCrypto, "wallet data does not decrypt with the verified pin")
	ErrCorruptRecord       = contracts.New(contracts.ErrorCategoryStorage, "stored record is corrupt")
	ErrInvalidMnemonic     = contracts.New(contracts.ErrorCategoryValidation, "mnemonic failed BIP-39 validation")
	ErrBiometricNotEnabled = contracts.New(contracts.ErrorCategoryNotFound, "biometric unlock is not enabled")
	ErrBiometricStale      = contracts.New(contracts.ErrorCategoryAuthentication, "biometric unlock key no longer matches the wallet")
)
