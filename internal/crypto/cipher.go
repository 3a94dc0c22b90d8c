package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"io"

	"wallet-chat/go-core/internal/contracts"

	"golang.org/x/crypto/chacha20poly1305"
)

const NonceSize = chacha20poly1305.NonceSize

var (
	ErrInvalidKeySize = contracts.New(contracts.ErrorCategoryValidation, "symmetric key must be 32 bytes")
	ErrMalformedBlob  = contracts.New(contracts.ErrorCategoryCrypto, "ciphertext blob is malformed")
	ErrDecrypt        = contracts.New(contracts.ErrorCategoryCrypto, "ciphertext authentication failed")
)

// Cipher is ChaCha20-Poly1305 with a random 12-byte nonce per message.
type Cipher struct {
	rand io.Reader
}

// NewCipher returns a cipher drawing nonces from r; nil means crypto/rand.
func NewCipher(r io.Reader) *Cipher {
	if r == nil {
		r = rand.Reader
	}
	return &Cipher{rand: r}
}

var defaultCipher = NewCipher(nil)

// Encrypt seals plaintext under key and returns nonce || ciphertext.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	return defaultCipher.Encrypt(plaintext, key)
}

// Decrypt opens a nonce || ciphertext blob produced by Encrypt.
func Decrypt(blob, key []byte) ([]byte, error) {
	return defaultCipher.Decrypt(blob, key)
}

func (c *Cipher) Encrypt(plaintext, key []byte) ([]byte, error) {
	nonce, ciphertext, err := c.Seal(plaintext, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	return append(out, ciphertext...), nil
}

func (c *Cipher) Decrypt(blob, key []byte) ([]byte, error) {
	nonce, ciphertext, err := SplitBlob(blob)
	if err != nil {
		return nil, err
	}
	return c.Open(nonce, ciphertext, key)
}

// Seal is Encrypt with the nonce returned separately.
func (c *Cipher) Seal(plaintext, key []byte) (nonce, ciphertext []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, nil, err
	}
	return nonce, aead.Seal(nil, nonce, plaintext, nil), nil
}

func (c *Cipher) Open(nonce, ciphertext, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize || len(ciphertext) < aead.Overhead() {
		return nil, ErrMalformedBlob
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// SplitBlob separates a stored nonce || ciphertext blob.
func SplitBlob(blob []byte) (nonce, ciphertext []byte, err error) {
	if len(blob) < NonceSize+chacha20poly1305.Overhead {
		return nil, nil, ErrMalformedBlob
	}
	return blob[:NonceSize], blob[NonceSize:], nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return chacha20poly1305.New(key)
}
