// Package keyexchange manages the local X25519 identity and derives one
// symmetric key per peer from the peer's published public key.
package keyexchange

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/crypto"
	"wallet-chat/go-core/internal/metrics"
	"wallet-chat/go-core/internal/platform/ratelimiter"
)

const (
	componentName       = "keyexchange"
	keyPairStoreKey     = "messaging-keypair"
	keyPairVersion      = uint16(1)
	defaultStoreTimeout = 10 * time.Second
)

// KeySource hands out the current wallet encryption key. The key store
// satisfies it.
type KeySource interface {
	GetCachedKey() ([]byte, bool)
}

type Options struct {
	Store    contracts.ByteStore
	Keys     KeySource
	Registry contracts.PeerKeyRegistry
	// Recheck, when set, skips the registry round-trip for a cached peer
	// once its bucket is empty. Nil compares on every call.
	Recheck      *ratelimiter.MapLimiter
	StoreTimeout time.Duration
	Now          func() time.Time
	Rand         io.Reader
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

type Exchange struct {
	store        contracts.ByteStore
	keys         KeySource
	registry     contracts.PeerKeyRegistry
	recheck      *ratelimiter.MapLimiter
	storeTimeout time.Duration
	now          func() time.Time
	rand         io.Reader
	cipher       *crypto.Cipher
	logger       *slog.Logger
	metrics      *metrics.Metrics

	pairMu sync.Mutex
	pair   *KeyPair
	// generation advances on every Forget; shared keys derived under an older
	// generation are never cached.
	generation atomic.Uint64

	mu     sync.Mutex
	shared map[string]sharedEntry
	flight singleflight.Group
}

type sharedEntry struct {
	peerPublicKey []byte
	key           []byte
}

type keyPairRecord struct {
	Version    uint16    `json:"version"`
	PublicKey  []byte    `json:"public_key"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	CreatedAt  time.Time `json:"created_at"`
}

func New(opts Options) (*Exchange, error) {
	if opts.Store == nil || opts.Keys == nil || opts.Registry == nil {
		return nil, errors.New("key exchange requires a byte store, a key source and a registry")
	}
	e := &Exchange{
		store:        opts.Store,
		keys:         opts.Keys,
		registry:     opts.Registry,
		recheck:      opts.Recheck,
		storeTimeout: opts.StoreTimeout,
		now:          opts.Now,
		rand:         opts.Rand,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		shared:       make(map[string]sharedEntry),
	}
	if e.storeTimeout <= 0 {
		e.storeTimeout = defaultStoreTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.rand == nil {
		e.rand = rand.Reader
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.cipher = crypto.NewCipher(e.rand)
	return e, nil
}

// EnsureKeyPair loads the local key pair, generating and persisting it on
// first use. The private key is stored sealed under the wallet key, so the
// wallet must be unlocked the first time this runs in a process.
func (e *Exchange) EnsureKeyPair(ctx context.Context) (KeyPair, error) {
	e.pairMu.Lock()
	defer e.pairMu.Unlock()
	pair, err := e.keyPairLocked(ctx)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PublicKey: append([]byte(nil), pair.PublicKey...)}, nil
}

// snapshot copies the local key pair together with the generation it belongs
// to. The caller owns the copy and wipes its private key.
func (e *Exchange) snapshot(ctx context.Context) (KeyPair, uint64, error) {
	e.pairMu.Lock()
	defer e.pairMu.Unlock()
	pair, err := e.keyPairLocked(ctx)
	if err != nil {
		return KeyPair{}, 0, err
	}
	return KeyPair{
		PublicKey:  append([]byte(nil), pair.PublicKey...),
		privateKey: append([]byte(nil), pair.privateKey...),
	}, e.generation.Load(), nil
}

// keyPairLocked requires pairMu.
func (e *Exchange) keyPairLocked(ctx context.Context) (*KeyPair, error) {
	if e.pair != nil {
		return e.pair, nil
	}

	walletKey, ok := e.keys.GetCachedKey()
	if !ok {
		return nil, ErrWalletLocked
	}
	defer crypto.Wipe(walletKey)

	raw, found, err := e.get(ctx, keyPairStoreKey)
	if err != nil {
		return nil, err
	}
	if found {
		pair, err := e.openKeyPair(raw, walletKey)
		if err != nil {
			return nil, err
		}
		e.pair = pair
		return pair, nil
	}

	generated, err := generateKeyPair(e.rand)
	if err != nil {
		return nil, err
	}
	if err := e.writeKeyPair(ctx, &generated, walletKey); err != nil {
		crypto.Wipe(generated.privateKey)
		return nil, err
	}
	e.pair = &generated
	e.logInfo("ensure_keypair", "messaging key pair generated")
	return e.pair, nil
}

// GetSharedKey returns the symmetric key for peer. A cached key is reused only
// while the registry still publishes the public key it was derived from; a
// rotated key is detected here and replaces the cache entry.
func (e *Exchange) GetSharedKey(ctx context.Context, peer string) ([]byte, error) {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return nil, ErrInvalidPeer
	}
	pair, gen, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(pair.privateKey)

	cached, haveCached := e.cachedEntry(peer)
	if haveCached && e.recheck != nil && !e.recheck.Allow(peer, e.now()) {
		e.metrics.RecordSharedKey(metrics.SharedKeyHit)
		return cached.key, nil
	}

	peerPub, found, err := e.registry.LookupPublicKey(ctx, peer)
	if err != nil {
		return nil, contracts.FromContext(contracts.ErrorCategoryNetwork, err)
	}
	if !found {
		e.evict(peer)
		return nil, ErrPeerNotEnrolled
	}
	if len(peerPub) != KeySize {
		return nil, ErrInvalidPublicKey
	}
	if haveCached && bytes.Equal(cached.peerPublicKey, peerPub) {
		e.metrics.RecordSharedKey(metrics.SharedKeyHit)
		return cached.key, nil
	}

	flightKey := PublicKeyString(pair.PublicKey) + "|" + peer + "|" + PublicKeyString(peerPub)
	v, err, _ := e.flight.Do(flightKey, func() (any, error) {
		return deriveSharedKey(pair.privateKey, pair.PublicKey, peerPub)
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := v.([]byte)
	rotated, committed := e.commit(peer, sharedEntry{peerPublicKey: peerPub, key: key}, gen)
	if !committed {
		return nil, ErrWalletLocked
	}
	if rotated {
		e.metrics.RecordSharedKey(metrics.SharedKeyRotated)
		e.logInfo("shared_key", "peer key rotated", "peer", peer)
	} else {
		e.metrics.RecordSharedKey(metrics.SharedKeyDerived)
	}
	return append([]byte(nil), key...), nil
}

// Reseal re-encrypts the stored private key from oldKey to newKey. It is
// meant to run as the key store's PIN-change hook.
func (e *Exchange) Reseal(ctx context.Context, oldKey, newKey []byte) error {
	raw, found, err := e.get(ctx, keyPairStoreKey)
	if err != nil || !found {
		return err
	}
	pair, err := e.openKeyPair(raw, oldKey)
	if err != nil {
		return err
	}
	if err := e.writeKeyPair(ctx, pair, newKey); err != nil {
		crypto.Wipe(pair.privateKey)
		return err
	}
	e.pairMu.Lock()
	if e.pair == nil {
		e.pair = pair
	} else {
		crypto.Wipe(pair.privateKey)
	}
	e.pairMu.Unlock()
	e.logInfo("reseal", "messaging key pair resealed")
	return nil
}

// Forget wipes the in-memory private key and every cached shared key.
func (e *Exchange) Forget() {
	e.pairMu.Lock()
	e.generation.Add(1)
	if e.pair != nil {
		crypto.Wipe(e.pair.privateKey)
		e.pair = nil
	}
	e.pairMu.Unlock()

	e.mu.Lock()
	for peer, entry := range e.shared {
		crypto.Wipe(entry.key)
		delete(e.shared, peer)
	}
	e.mu.Unlock()
	e.recheck.Reset()
}

// Delete forgets everything and removes the persisted key pair.
func (e *Exchange) Delete(ctx context.Context) error {
	e.Forget()
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return contracts.FromContext(contracts.ErrorCategoryStorage, e.store.Delete(ctx, keyPairStoreKey))
}

func (e *Exchange) cachedEntry(peer string) (sharedEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.shared[peer]
	if !ok {
		return sharedEntry{}, false
	}
	return sharedEntry{
		peerPublicKey: entry.peerPublicKey,
		key:           append([]byte(nil), entry.key...),
	}, true
}

// commit stores entry for peer unless a Forget happened since gen was read.
// rotated reports whether it replaced a key derived from a different public key.
func (e *Exchange) commit(peer string, entry sharedEntry, gen uint64) (rotated, committed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation.Load() != gen {
		return false, false
	}
	prev, ok := e.shared[peer]
	if ok && bytes.Equal(prev.peerPublicKey, entry.peerPublicKey) {
		return false, true
	}
	if ok {
		crypto.Wipe(prev.key)
	}
	e.shared[peer] = sharedEntry{
		peerPublicKey: append([]byte(nil), entry.peerPublicKey...),
		key:           append([]byte(nil), entry.key...),
	}
	return ok, true
}

func (e *Exchange) evict(peer string) {
	e.mu.Lock()
	if entry, ok := e.shared[peer]; ok {
		crypto.Wipe(entry.key)
		delete(e.shared, peer)
	}
	e.mu.Unlock()
	e.recheck.Forget(peer)
}

func (e *Exchange) openKeyPair(raw, walletKey []byte) (*KeyPair, error) {
	var rec keyPairRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, ErrCorruptKeyPair
	}
	if rec.Version != keyPairVersion || len(rec.PublicKey) != KeySize {
		return nil, ErrCorruptKeyPair
	}
	priv, err := e.cipher.Open(rec.Nonce, rec.Ciphertext, walletKey)
	if err != nil {
		return nil, ErrKeyPairUnreadable
	}
	return &KeyPair{PublicKey: rec.PublicKey, privateKey: priv}, nil
}

func (e *Exchange) writeKeyPair(ctx context.Context, pair *KeyPair, walletKey []byte) error {
	nonce, ciphertext, err := e.cipher.Seal(pair.privateKey, walletKey)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(keyPairRecord{
		Version:    keyPairVersion,
		PublicKey:  pair.PublicKey,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		CreatedAt:  e.now().UTC(),
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	err = e.store.Set(ctx, keyPairStoreKey, raw, contracts.SetOptions{Sensitive: true})
	return contracts.FromContext(contracts.ErrorCategoryStorage, err)
}

func (e *Exchange) get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	v, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, false, contracts.FromContext(contracts.ErrorCategoryStorage, err)
	}
	return v, ok, nil
}

func (e *Exchange) logInfo(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", operation}
	e.logger.Info(message, append(base, attrs...)...)
}
