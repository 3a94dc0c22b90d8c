package keyexchange

import (
	"bytes"
	"crypto/sha256"
	"io"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"wallet-chat/go-core/internal/crypto"
)

const (
	KeySize = 32

	sharedKeyLabel = "wallet-chat/direct-message/v1"
)

// KeyPair is the local X25519 identity. The private half never leaves the
// Exchange that loaded it.
type KeyPair struct {
	PublicKey  []byte
	privateKey []byte
}

func generateKeyPair(r io.Reader) (KeyPair, error) {
	priv := make([]byte, KeySize)
	if _, err := io.ReadFull(r, priv); err != nil {
		return KeyPair{}, err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PublicKey: pub, privateKey: priv}, nil
}

// deriveSharedKey runs X25519 and expands the result with HKDF. Both public
// keys go into the info string in sorted order, so both sides derive the same
// key and the key is bound to this pair of identities.
func deriveSharedKey(priv, localPub, peerPub []byte) ([]byte, error) {
	secret, err := curve25519.X25519(priv, peerPub)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	first, second := localPub, peerPub
	if bytes.Compare(first, second) > 0 {
		first, second = second, first
	}
	info := make([]byte, 0, len(sharedKeyLabel)+2*KeySize)
	info = append(info, sharedKeyLabel...)
	info = append(info, first...)
	info = append(info, second...)

	reader := hkdf.New(sha256.New, secret, nil, info)
	out := make([]byte, KeySize)
	_, err = io.ReadFull(reader, out)
	crypto.Wipe(secret)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PublicKeyString encodes a public key for publishing.
func PublicKeyString(pub []byte) string {
	return base58.Encode(pub)
}

func ParsePublicKey(s string) ([]byte, error) {
	pub, err := base58.Decode(s)
	if err != nil || len(pub) != KeySize {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}
