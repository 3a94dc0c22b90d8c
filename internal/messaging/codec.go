// Package messaging encrypts direct messages under the per-peer shared key.
package messaging

import (
	"context"
	"io"
	"log/slog"

	"wallet-chat/go-core/internal/crypto"
	"wallet-chat/go-core/internal/metrics"
)

// SharedKeys resolves the symmetric key for a peer address.
type SharedKeys interface {
	GetSharedKey(ctx context.Context, peer string) ([]byte, error)
}

type Codec struct {
	keys    SharedKeys
	cipher  *crypto.Cipher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCodec builds a codec. rand may be nil for crypto/rand.
func NewCodec(keys SharedKeys, rand io.Reader, logger *slog.Logger, m *metrics.Metrics) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{keys: keys, cipher: crypto.NewCipher(rand), logger: logger, metrics: m}
}

// EncryptForPeer returns nonce || ciphertext under the key shared with peer.
// The blob is self-contained and safe to store verbatim.
func (c *Codec) EncryptForPeer(ctx context.Context, peer string, plaintext []byte) ([]byte, error) {
	key, err := c.keys.GetSharedKey(ctx, peer)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	return c.cipher.Encrypt(plaintext, key)
}

// DecryptFromPeer opens a blob produced by the peer's EncryptForPeer. A blob
// that fails authentication is reported as a crypto error; no other key is
// tried.
func (c *Codec) DecryptFromPeer(ctx context.Context, peer string, blob []byte) ([]byte, error) {
	key, err := c.keys.GetSharedKey(ctx, peer)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	plaintext, err := c.cipher.Decrypt(blob, key)
	if err != nil {
		c.metrics.RecordDecryptFailure()
		c.logger.Warn("direct message did not decrypt",
			"component", "messaging", "operation", "decrypt", "peer", peer, "blob_size", len(blob))
		return nil, err
	}
	return plaintext, nil
}
