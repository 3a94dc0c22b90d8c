package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"wallet-chat/go-core/internal/bytestore"
	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/crypto"
	"wallet-chat/go-core/internal/keyexchange"
	"wallet-chat/go-core/internal/keystore"
	"wallet-chat/go-core/internal/messaging"
	"wallet-chat/go-core/internal/metrics"
	"wallet-chat/go-core/internal/platform/ratelimiter"
	"wallet-chat/go-core/pkg/models"
)

var (
	ErrDegradedStorage    = contracts.New(contracts.ErrorCategoryStorage, "wallet secrets are refused on unencrypted storage")
	ErrAlreadyInitialized = contracts.New(contracts.ErrorCategoryValidation, "wallet is already initialized")
)

// KeyDirectory is the peer-key registry as seen by the session: it resolves
// peers and publishes the local key.
type KeyDirectory interface {
	contracts.PeerKeyRegistry
	contracts.PeerKeyPublisher
}

type SessionDeps struct {
	Store         contracts.ByteStore
	Directory     KeyDirectory
	Blobs         contracts.BlobStore
	Policy        keystore.AutoLockPolicy
	Iterations    uint32
	StoreTimeout  time.Duration
	Recheck       *ratelimiter.MapLimiter
	AllowDegraded bool
	Clock         keystore.Clock
	Rand          io.Reader
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Session owns the key store, the key exchange and the message codec for one
// wallet. It replaces any process-wide key state: everything that needs the
// wallet key gets it through a Session.
type Session struct {
	keys      *keystore.Store
	exchange  *keyexchange.Exchange
	codec     *messaging.Codec
	directory KeyDirectory
	blobs     contracts.BlobStore

	mode          bytestore.Mode
	allowDegraded bool
	clock         keystore.Clock
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func NewSession(deps SessionDeps) (*Session, error) {
	if deps.Store == nil || deps.Directory == nil || deps.Blobs == nil {
		return nil, errors.New("session requires a byte store, a key directory and a blob store")
	}
	logger := deps.Logger
	if logger == nil {
		logger = DefaultLogger()
	}
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}

	keys, err := keystore.New(keystore.Options{
		Store:        deps.Store,
		Policy:       deps.Policy,
		Iterations:   deps.Iterations,
		StoreTimeout: deps.StoreTimeout,
		Clock:        clock,
		Rand:         deps.Rand,
		Logger:       logger,
		Metrics:      deps.Metrics,
	})
	if err != nil {
		return nil, err
	}
	exchange, err := keyexchange.New(keyexchange.Options{
		Store:        deps.Store,
		Keys:         keys,
		Registry:     deps.Directory,
		Recheck:      deps.Recheck,
		StoreTimeout: deps.StoreTimeout,
		Now:          clock.Now,
		Rand:         deps.Rand,
		Logger:       logger,
		Metrics:      deps.Metrics,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		keys:          keys,
		exchange:      exchange,
		codec:         messaging.NewCodec(exchange, deps.Rand, logger, deps.Metrics),
		directory:     deps.Directory,
		blobs:         deps.Blobs,
		mode:          bytestore.StoreMode(deps.Store),
		allowDegraded: deps.AllowDegraded,
		clock:         clock,
		logger:        logger,
		metrics:       deps.Metrics,
	}
	if s.mode == bytestore.ModeDegraded {
		s.logger.Warn("key store is running on unencrypted storage",
			"component", "session", "storage_mode", string(s.mode), "allow_degraded", s.allowDegraded)
	}
	return s, nil
}

func (s *Session) StorageMode() bytestore.Mode {
	return s.mode
}

func (s *Session) Keys() *keystore.Store {
	return s.keys
}

func (s *Session) State(ctx context.Context) (models.LockState, error) {
	state, err := s.keys.State(ctx)
	return state, s.recordError(err)
}

// InitializeWallet sets the PIN on a fresh store, generates a mnemonic and
// saves it. The new mnemonic is returned once for the user to back up.
func (s *Session) InitializeWallet(ctx context.Context, pin string, accounts []models.Account) (string, error) {
	mnemonic, err := keystore.NewMnemonic()
	if err != nil {
		return "", s.recordError(err)
	}
	if err := s.RestoreWallet(ctx, pin, mnemonic, accounts); err != nil {
		return "", err
	}
	return mnemonic, nil
}

// RestoreWallet is InitializeWallet with a mnemonic supplied by the user.
func (s *Session) RestoreWallet(ctx context.Context, pin, mnemonic string, accounts []models.Account) error {
	if err := s.guardStorage(); err != nil {
		return s.recordError(err)
	}
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !keystore.ValidateMnemonic(mnemonic) {
		return s.recordError(keystore.ErrInvalidMnemonic)
	}
	if err := crypto.ValidatePIN(pin); err != nil {
		return s.recordError(err)
	}
	state, err := s.keys.State(ctx)
	if err != nil {
		return s.recordError(err)
	}
	if state != models.LockStateUninitialized {
		return s.recordError(ErrAlreadyInitialized)
	}

	if err := s.keys.SetPin(ctx, pin); err != nil {
		return s.recordError(err)
	}
	key, err := s.keys.Unlock(ctx, pin)
	if err == nil {
		err = s.keys.SaveWalletData(ctx, mnemonic, accounts, key)
		crypto.Wipe(key)
	}
	if err != nil {
		if wipeErr := s.keys.Wipe(context.WithoutCancel(ctx)); wipeErr != nil {
			err = errors.Join(err, wipeErr)
		}
		return s.recordError(err)
	}
	s.logger.Info("wallet initialized", "component", "session", "operation", "initialize", "accounts", len(accounts))
	return nil
}

// Unlock unlocks the key store and, when the stored PIN record predates the
// configured work factor, re-keys it in place.
func (s *Session) Unlock(ctx context.Context, pin string) error {
	if err := s.guardStorage(); err != nil {
		return s.recordError(err)
	}
	key, err := s.keys.Unlock(ctx, pin)
	if err != nil {
		return s.recordError(err)
	}
	crypto.Wipe(key)

	stale, err := s.keys.NeedsRehash(ctx)
	if err != nil || !stale {
		return s.recordError(err)
	}
	if err := s.keys.ChangePin(ctx, pin, pin, s.exchange.Reseal); err != nil {
		s.logger.Warn("pin record upgrade failed", "component", "session", "operation", "unlock", "error", err)
		return nil
	}
	s.logger.Info("pin record upgraded", "component", "session", "operation", "unlock")
	return nil
}

func (s *Session) UnlockWithBiometric(ctx context.Context) error {
	if err := s.guardStorage(); err != nil {
		return s.recordError(err)
	}
	key, err := s.keys.UnlockWithBiometric(ctx)
	if err != nil {
		return s.recordError(err)
	}
	crypto.Wipe(key)
	return nil
}

// Lock wipes the wallet key and the in-memory messaging keys.
func (s *Session) Lock() {
	s.keys.Lock()
	s.exchange.Forget()
}

func (s *Session) ChangePin(ctx context.Context, oldPin, newPin string) error {
	if err := s.guardStorage(); err != nil {
		return s.recordError(err)
	}
	return s.recordError(s.keys.ChangePin(ctx, oldPin, newPin, s.exchange.Reseal))
}

// Wallet returns the decrypted wallet. The session must be unlocked.
func (s *Session) Wallet(ctx context.Context) (models.WalletData, error) {
	key, err := s.requireUnlocked()
	if err != nil {
		return models.WalletData{}, s.recordError(err)
	}
	defer crypto.Wipe(key)
	data, ok, err := s.keys.LoadWalletData(ctx, key)
	if err != nil {
		return models.WalletData{}, s.recordError(err)
	}
	if !ok {
		return models.WalletData{}, s.recordError(keystore.ErrWalletUnreadable)
	}
	return data, nil
}

// SaveAccounts replaces the account list and keeps the mnemonic.
func (s *Session) SaveAccounts(ctx context.Context, accounts []models.Account) error {
	data, err := s.Wallet(ctx)
	if err != nil {
		return err
	}
	key, err := s.requireUnlocked()
	if err != nil {
		return s.recordError(err)
	}
	defer crypto.Wipe(key)
	return s.recordError(s.keys.SaveWalletData(ctx, data.Mnemonic, accounts, key))
}

// Wipe removes the wallet, the messaging key pair and every stored blob.
func (s *Session) Wipe(ctx context.Context) error {
	var wipeErr error
	if err := s.keys.Wipe(ctx); err != nil {
		wipeErr = errors.Join(wipeErr, err)
	}
	if err := s.exchange.Delete(ctx); err != nil {
		wipeErr = errors.Join(wipeErr, err)
	}
	if w, ok := s.blobs.(interface{ Wipe() error }); ok {
		if err := w.Wipe(); err != nil {
			wipeErr = errors.Join(wipeErr, err)
		}
	}
	if wipeErr != nil {
		return s.recordError(wipeErr)
	}
	s.logger.Info("wallet wiped", "component", "session", "operation", "wipe")
	return nil
}

// Identity returns the local messaging public key in base58, generating the
// key pair on first use.
func (s *Session) Identity(ctx context.Context) (string, error) {
	if err := s.ensureUnlocked(); err != nil {
		return "", s.recordError(err)
	}
	pair, err := s.exchange.EnsureKeyPair(ctx)
	if err != nil {
		return "", s.recordError(err)
	}
	return keyexchange.PublicKeyString(pair.PublicKey), nil
}

// PublishIdentity makes the local messaging key discoverable under address
// and returns it in base58.
func (s *Session) PublishIdentity(ctx context.Context, address string) (string, error) {
	if err := s.ensureUnlocked(); err != nil {
		return "", s.recordError(err)
	}
	pair, err := s.exchange.EnsureKeyPair(ctx)
	if err != nil {
		return "", s.recordError(err)
	}
	if err := s.directory.PublishPublicKey(ctx, address, pair.PublicKey); err != nil {
		return "", s.recordError(contracts.FromContext(contracts.ErrorCategoryNetwork, err))
	}
	s.logger.Info("identity published", "component", "session", "operation", "publish_identity", "address", address)
	return keyexchange.PublicKeyString(pair.PublicKey), nil
}

// EncryptForPeer returns a sealed blob for peer without storing it.
func (s *Session) EncryptForPeer(ctx context.Context, peer string, plaintext []byte) ([]byte, error) {
	if err := s.ensureUnlocked(); err != nil {
		return nil, s.recordError(err)
	}
	blob, err := s.codec.EncryptForPeer(ctx, peer, plaintext)
	return blob, s.recordError(err)
}

func (s *Session) DecryptFromPeer(ctx context.Context, peer string, blob []byte) ([]byte, error) {
	if err := s.ensureUnlocked(); err != nil {
		return nil, s.recordError(err)
	}
	plaintext, err := s.codec.DecryptFromPeer(ctx, peer, blob)
	return plaintext, s.recordError(err)
}

// SendDirect encrypts plaintext for peer and stores the blob, returning its
// content id.
func (s *Session) SendDirect(ctx context.Context, peer string, plaintext []byte) (string, error) {
	blob, err := s.EncryptForPeer(ctx, peer, plaintext)
	if err != nil {
		return "", err
	}
	cid, err := s.blobs.Put(ctx, blob)
	return cid, s.recordError(err)
}

// ReceiveDirect loads the blob at cid and decrypts it as sent by peer.
func (s *Session) ReceiveDirect(ctx context.Context, peer, cid string) ([]byte, error) {
	if err := s.ensureUnlocked(); err != nil {
		return nil, s.recordError(err)
	}
	blob, err := s.blobs.Get(ctx, cid)
	if err != nil {
		return nil, s.recordError(err)
	}
	return s.DecryptFromPeer(ctx, peer, blob)
}

func (s *Session) guardStorage() error {
	if s.mode == bytestore.ModeDegraded && !s.allowDegraded {
		return ErrDegradedStorage
	}
	return nil
}

// requireUnlocked returns a copy of the wallet key. When the key has expired
// the messaging keys are dropped too.
func (s *Session) requireUnlocked() ([]byte, error) {
	key, ok := s.keys.GetCachedKey()
	if !ok {
		s.exchange.Forget()
		return nil, keystore.ErrLocked
	}
	return key, nil
}

func (s *Session) ensureUnlocked() error {
	key, err := s.requireUnlocked()
	crypto.Wipe(key)
	return err
}

func (s *Session) recordError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	s.metrics.RecordError(contracts.ErrorCategory(err))
	return err
}
