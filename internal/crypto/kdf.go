package crypto

import (
	"crypto/sha256"
	"io"

	"wallet-chat/go-core/internal/contracts"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KDFName identifies the derivation used by persisted PIN records.
	KDFName = "pbkdf2-sha256"

	SaltSize = 16
	KeySize  = 32

	// DefaultIterations is the PBKDF2 work factor for new PIN records.
	DefaultIterations = uint32(210_000)

	encryptionLabel = ":encryption"
)

var ErrInvalidIterations = contracts.New(contracts.ErrorCategoryValidation, "kdf iteration count must be positive")
var ErrInvalidSalt = contracts.New(contracts.ErrorCategoryValidation, "kdf salt must be 16 bytes")

// NewSalt reads a fresh salt from r.
func NewSalt(r io.Reader) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// DeriveVerification returns the hash stored in a PIN record. It is only ever
// compared against, never used as key material.
func DeriveVerification(pin string, salt []byte, iterations uint32) ([]byte, error) {
	if err := checkKDFInput(salt, iterations); err != nil {
		return nil, err
	}
	return pbkdf2.Key([]byte(pin), salt, int(iterations), KeySize, sha256.New), nil
}

// DeriveEncryptionKey derives the wallet key from the same PIN and salt as the
// verification hash, separated by a fixed label.
func DeriveEncryptionKey(pin string, salt []byte, iterations uint32) ([]byte, error) {
	if err := checkKDFInput(salt, iterations); err != nil {
		return nil, err
	}
	input := make([]byte, 0, len(pin)+len(encryptionLabel))
	input = append(input, pin...)
	input = append(input, encryptionLabel...)
	defer Wipe(input)
	return pbkdf2.Key(input, salt, int(iterations), KeySize, sha256.New), nil
}

func checkKDFInput(salt []byte, iterations uint32) error {
	if iterations == 0 {
		return ErrInvalidIterations
	}
	if len(salt) != SaltSize {
		return ErrInvalidSalt
	}
	return nil
}
