package securestore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"wallet-chat/go-core/internal/contracts"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 2
	headerVersion   = 1
	saltSize        = 16
	filePrefix      = "WCENC2\n"
	kdfName         = "argon2id"
)

var (
	ErrAuthFailed = contracts.New(contracts.ErrorCategoryCrypto, "securestore authentication failed")
	ErrInvalid    = contracts.New(contracts.ErrorCategoryCrypto, "securestore envelope is invalid")
	ErrLegacyData = contracts.New(contracts.ErrorCategoryCrypto, "securestore plaintext data")
	ErrClosed     = errors.New("securestore sealer is closed")
)

// KDFParams are the argon2id costs for the device storage key.
type KDFParams struct {
	Time     uint32 `json:"kdf_time"`
	MemoryKB uint32 `json:"kdf_memory_kb"`
	Threads  uint8  `json:"kdf_threads"`
}

func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 2, MemoryKB: 64 * 1024, Threads: 1}
}

// Header is persisted next to sealed data so the storage key can be
// re-derived from the passphrase on the next start.
type Header struct {
	Version uint32    `json:"version"`
	KDF     string    `json:"kdf"`
	Params  KDFParams `json:"params"`
	Salt    []byte    `json:"salt"`
}

type envelope struct {
	Version    uint32 `json:"version"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Sealer encrypts values at rest with XChaCha20-Poly1305 under a key derived
// once from the device storage passphrase.
type Sealer struct {
	key []byte
}

func NewSealer(passphrase string, header Header) (*Sealer, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, contracts.New(contracts.ErrorCategoryValidation, "storage passphrase is required")
	}
	if header.Version != headerVersion || header.KDF != kdfName || len(header.Salt) != saltSize {
		return nil, ErrInvalid
	}
	if header.Params.Time == 0 || header.Params.MemoryKB == 0 || header.Params.Threads == 0 {
		return nil, ErrInvalid
	}
	p := header.Params
	key := argon2.IDKey([]byte(passphrase), header.Salt, p.Time, p.MemoryKB, p.Threads, chacha20poly1305.KeySize)
	return &Sealer{key: key}, nil
}

// Seal encrypts plaintext bound to ad (the storage key name).
func (s *Sealer) Seal(plaintext, ad []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, ErrClosed
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(envelope{
		Version:    envelopeVersion,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, ad),
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), raw...), nil
}

func (s *Sealer) Open(data, ad []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, ErrClosed
	}
	if !strings.HasPrefix(string(data), filePrefix) {
		return nil, ErrLegacyData
	}
	var env envelope
	if err := json.Unmarshal(data[len(filePrefix):], &env); err != nil {
		return nil, ErrInvalid
	}
	if env.Version != envelopeVersion || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrInvalid
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, ad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// Close zeroes the derived key; the sealer is unusable afterwards.
func (s *Sealer) Close() {
	if s == nil {
		return
	}
	zeroBytes(s.key)
	s.key = nil
}

// LoadOrCreateHeader reads the header at path, writing a new one with a fresh
// salt and the given params when none exists.
func LoadOrCreateHeader(path string, params KDFParams) (Header, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		var header Header
		if err := json.Unmarshal(raw, &header); err != nil {
			return Header{}, ErrInvalid
		}
		return header, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Header{}, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return Header{}, err
	}
	header := Header{Version: headerVersion, KDF: kdfName, Params: params, Salt: salt}
	raw, err = json.Marshal(header)
	if err != nil {
		return Header{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Header{}, err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return Header{}, err
	}
	return header, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
