package models

import "time"

// Account is a wallet account kept inside the encrypted wallet blob.
type Account struct {
	ID             string    `json:"id"`
	Label          string    `json:"label,omitempty"`
	Address        string    `json:"address"`
	DerivationPath string    `json:"derivation_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// WalletData is the secret material sealed under the PIN-derived key.
type WalletData struct {
	Mnemonic string    `json:"mnemonic"`
	Accounts []Account `json:"accounts"`
}

// LockState is the SecureKeyStore state machine position.
type LockState string

const (
	LockStateUninitialized LockState = "uninitialized"
	LockStateLocked        LockState = "locked"
	LockStateUnlocked      LockState = "unlocked"
)
