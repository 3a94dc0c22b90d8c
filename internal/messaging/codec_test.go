package messaging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"wallet-chat/go-core/internal/bytestore"
	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/crypto"
	"wallet-chat/go-core/internal/keyexchange"
	"wallet-chat/go-core/internal/registry"
)

type fixedKey struct{ key []byte }

func (f fixedKey) GetCachedKey() ([]byte, bool) {
	return append([]byte(nil), f.key...), true
}

func newPeer(t *testing.T, address string, fill byte, reg *registry.MemoryRegistry) *Codec {
	t.Helper()
	ex, err := keyexchange.New(keyexchange.Options{
		Store:    bytestore.NewMemoryStore(),
		Keys:     fixedKey{key: bytes.Repeat([]byte{fill}, crypto.KeySize)},
		Registry: reg,
	})
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}
	pair, err := ex.EnsureKeyPair(context.Background())
	if err != nil {
		t.Fatalf("ensure key pair: %v", err)
	}
	if err := reg.PublishPublicKey(context.Background(), address, pair.PublicKey); err != nil {
		t.Fatalf("publish: %v", err)
	}
	return NewCodec(ex, nil, nil, nil)
}

func TestDirectMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemoryRegistry()
	alice := newPeer(t, "alice", 1, reg)
	bob := newPeer(t, "bob", 2, reg)
	carol := newPeer(t, "carol", 3, reg)

	blob, err := alice.EncryptForPeer(ctx, "bob", []byte("hello"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(blob, []byte("hello")) {
		t.Fatal("blob must not contain the plaintext")
	}
	got, err := bob.DecryptFromPeer(ctx, "alice", blob)
	if err != nil || string(got) != "hello" {
		t.Fatalf("bob decrypt: %q err=%v", got, err)
	}

	if _, err := carol.DecryptFromPeer(ctx, "alice", blob); !errors.Is(err, contracts.ErrCrypto) {
		t.Fatalf("third party must fail with a crypto error, got %v", err)
	}
	if _, err := crypto.Decrypt(blob, bytes.Repeat([]byte{7}, crypto.KeySize)); !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("arbitrary key must fail, got %v", err)
	}
}

func TestDecryptFromPeerRejectsTampering(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemoryRegistry()
	alice := newPeer(t, "alice", 1, reg)
	bob := newPeer(t, "bob", 2, reg)

	blob, err := alice.EncryptForPeer(ctx, "bob", []byte("transfer 10"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	blob[len(blob)-1] ^= 0x01
	if _, err := bob.DecryptFromPeer(ctx, "alice", blob); !errors.Is(err, contracts.ErrCrypto) {
		t.Fatalf("expected crypto error, got %v", err)
	}
	if _, err := bob.DecryptFromPeer(ctx, "alice", blob[:4]); !errors.Is(err, contracts.ErrCrypto) {
		t.Fatalf("short blob must be a crypto error, got %v", err)
	}
}

func TestEncryptForUnknownPeer(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	alice := newPeer(t, "alice", 1, reg)
	if _, err := alice.EncryptForPeer(context.Background(), "nobody", []byte("hi")); !errors.Is(err, contracts.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
