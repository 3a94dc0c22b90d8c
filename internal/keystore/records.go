package keystore

import (
	"encoding/json"
	"time"

	"wallet-chat/go-core/internal/crypto"
)

const (
	pinRecordKey  = "pin-record"
	walletDataKey = "wallet-data"
	biometricKey  = "biometric-unlock-key"

	pinRecordVersion  = 1
	walletBlobVersion = uint16(1)
)

// PinRecord verifies candidate PINs. It is replaced wholesale, never edited.
type PinRecord struct {
	Version          uint32    `json:"version"`
	KDF              string    `json:"kdf"`
	Salt             []byte    `json:"salt"`
	VerificationHash []byte    `json:"verification_hash"`
	Iterations       uint32    `json:"iterations"`
	CreatedAt        time.Time `json:"created_at"`
}

// EncryptedWalletBlob is the persisted form of the wallet secret.
type EncryptedWalletBlob struct {
	Version    uint16    `json:"version"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	CreatedAt  time.Time `json:"created_at"`
}

func decodePinRecord(raw []byte) (PinRecord, error) {
	var rec PinRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return PinRecord{}, ErrCorruptRecord
	}
	if rec.Version != pinRecordVersion || rec.KDF != crypto.KDFName ||
		len(rec.Salt) != crypto.SaltSize || len(rec.VerificationHash) != crypto.KeySize ||
		rec.Iterations == 0 {
		return PinRecord{}, ErrCorruptRecord
	}
	return rec, nil
}

func decodeWalletBlob(raw []byte) (EncryptedWalletBlob, error) {
	var blob EncryptedWalletBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return EncryptedWalletBlob{}, ErrCorruptRecord
	}
	if blob.Version != walletBlobVersion {
		return EncryptedWalletBlob{}, ErrCorruptRecord
	}
	return blob, nil
}
