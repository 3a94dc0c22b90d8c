// Package keystore owns the PIN record, the encrypted wallet blob and the
// in-memory wallet encryption key, and enforces the auto-lock policy.
package keystore

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/crypto"
	"wallet-chat/go-core/internal/metrics"
	"wallet-chat/go-core/pkg/models"
)

const (
	componentName       = "keystore"
	DefaultStoreTimeout = 10 * time.Second
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Options struct {
	Store        contracts.ByteStore
	Policy       AutoLockPolicy
	Iterations   uint32
	StoreTimeout time.Duration
	Clock        Clock
	Rand         io.Reader
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

type Store struct {
	store        contracts.ByteStore
	policy       AutoLockPolicy
	iterations   uint32
	storeTimeout time.Duration
	clock        Clock
	rand         io.Reader
	cipher       *crypto.Cipher
	logger       *slog.Logger
	metrics      *metrics.Metrics

	// mu guards the cached key and the auto-lock clock. Every read or clear
	// of the key goes through it, including the periodic tick.
	mu             sync.Mutex
	key            []byte
	lastActivity   time.Time
	backgroundedAt time.Time

	attemptsMu     sync.Mutex
	failedAttempts int
	lockedUntil    time.Time
}

func New(opts Options) (*Store, error) {
	if opts.Store == nil {
		return nil, errors.New("keystore requires a byte store")
	}
	s := &Store{
		store:        opts.Store,
		policy:       opts.Policy.withDefaults(),
		iterations:   opts.Iterations,
		storeTimeout: opts.StoreTimeout,
		clock:        opts.Clock,
		rand:         opts.Rand,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
	if s.iterations == 0 {
		s.iterations = crypto.DefaultIterations
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = DefaultStoreTimeout
	}
	if s.clock == nil {
		s.clock = systemClock{}
	}
	if s.rand == nil {
		s.rand = rand.Reader
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.cipher = crypto.NewCipher(s.rand)
	return s, nil
}

// SetPin validates pin and persists a fresh PinRecord, replacing any previous
// one. The wallet blob is not re-encrypted; callers changing an existing PIN
// use ChangePin.
func (s *Store) SetPin(ctx context.Context, pin string) error {
	rec, err := s.newPinRecord(pin)
	if err != nil {
		return err
	}
	if err := s.putPinRecord(ctx, rec); err != nil {
		return err
	}
	s.logInfo("set_pin", "pin record written", "iterations", rec.Iterations)
	return nil
}

// VerifyPin reports whether pin matches the stored record. It does not touch
// the lock state or count attempts, but refuses to run during a backoff window.
func (s *Store) VerifyPin(ctx context.Context, pin string) (bool, error) {
	if err := s.checkLockout(); err != nil {
		return false, err
	}
	rec, err := s.loadPinRecord(ctx)
	if err != nil {
		return false, err
	}
	return verifyAgainst(rec, pin)
}

// Unlock verifies pin, derives the wallet key and caches it. On a wrong PIN
// nothing is cached and a backoff window opens.
func (s *Store) Unlock(ctx context.Context, pin string) ([]byte, error) {
	if err := s.checkLockout(); err != nil {
		s.metrics.RecordUnlock(metrics.UnlockThrottled)
		return nil, err
	}
	rec, err := s.loadPinRecord(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := verifyAgainst(rec, pin)
	if err != nil {
		return nil, err
	}
	if !ok {
		attempts := s.onFailedPINAttempt()
		s.metrics.RecordUnlock(metrics.UnlockWrongPIN)
		s.logWarn("unlock", "pin verification failed", "failed_attempts", attempts)
		return nil, ErrWrongPIN
	}

	key, err := crypto.DeriveEncryptionKey(pin, rec.Salt, rec.Iterations)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		crypto.Wipe(key)
		return nil, err
	}
	s.resetPINAttemptState()
	out := s.commitKey(key)
	s.metrics.RecordUnlock(metrics.UnlockSuccess)
	s.logInfo("unlock", "key store unlocked")
	return out, nil
}

// GetCachedKey returns a copy of the cached key if the session is still
// fresh. A stale key is wiped as a side effect. A successful read counts as
// activity.
func (s *Store) GetCachedKey() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, false
	}
	now := s.clock.Now()
	if reason := s.expiredLocked(now); reason != "" {
		s.clearLocked(reason)
		return nil, false
	}
	s.lastActivity = now
	return append([]byte(nil), s.key...), true
}

// Lock wipes the cached key.
func (s *Store) Lock() {
	s.ForceLock(metrics.AutoLockExplicit)
}

// SaveWalletData encrypts the wallet under key and rewrites the blob.
func (s *Store) SaveWalletData(ctx context.Context, mnemonic string, accounts []models.Account, key []byte) error {
	mnemonic = strings.TrimSpace(mnemonic)
	if !ValidateMnemonic(mnemonic) {
		return ErrInvalidMnemonic
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	payload, err := json.Marshal(models.WalletData{Mnemonic: mnemonic, Accounts: accounts})
	if err != nil {
		return err
	}
	defer crypto.Wipe(payload)

	nonce, ciphertext, err := s.cipher.Seal(payload, key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(EncryptedWalletBlob{
		Version:    walletBlobVersion,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		CreatedAt:  s.clock.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := s.put(ctx, walletDataKey, raw, contracts.SetOptions{Sensitive: true}); err != nil {
		return err
	}
	s.touch()
	s.logInfo("save_wallet", "wallet blob written", "accounts", len(accounts))
	return nil
}

// LoadWalletData decrypts the wallet blob with key.
//
// A decryption failure is reported as ok=false with a nil error rather than a
// crypto error: with a well-formed blob it almost always means the key is
// stale or wrong, and the caller should ask for the PIN again. This is the
// only place the core turns a crypto failure into a plain value.
func (s *Store) LoadWalletData(ctx context.Context, key []byte) (models.WalletData, bool, error) {
	blob, err := s.loadWalletBlob(ctx)
	if err != nil {
		return models.WalletData{}, false, err
	}
	if len(key) != crypto.KeySize {
		return models.WalletData{}, false, crypto.ErrInvalidKeySize
	}
	plaintext, err := s.cipher.Open(blob.Nonce, blob.Ciphertext, key)
	if err != nil {
		s.logWarn("load_wallet", "wallet blob did not decrypt")
		return models.WalletData{}, false, nil
	}
	defer crypto.Wipe(plaintext)

	var data models.WalletData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return models.WalletData{}, false, ErrCorruptRecord
	}
	s.touch()
	return data, true, nil
}

// HasWallet reports whether a wallet blob is persisted.
func (s *Store) HasWallet(ctx context.Context) (bool, error) {
	_, ok, err := s.get(ctx, walletDataKey)
	return ok, err
}

// State reports the position in the Uninitialized/Locked/Unlocked machine
// without counting as activity.
func (s *Store) State(ctx context.Context) (models.LockState, error) {
	_, ok, err := s.get(ctx, pinRecordKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return models.LockStateUninitialized, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return models.LockStateLocked, nil
	}
	if reason := s.expiredLocked(s.clock.Now()); reason != "" {
		s.clearLocked(reason)
		return models.LockStateLocked, nil
	}
	return models.LockStateUnlocked, nil
}

// NeedsRehash reports whether the stored record uses fewer iterations than
// the configured work factor.
func (s *Store) NeedsRehash(ctx context.Context) (bool, error) {
	rec, err := s.loadPinRecord(ctx)
	if err != nil {
		return false, err
	}
	return rec.Iterations < s.iterations, nil
}

// Wipe deletes every persisted secret and clears the cache. The store returns
// to Uninitialized.
func (s *Store) Wipe(ctx context.Context) error {
	s.ForceLock(metrics.AutoLockWipe)
	var wipeErr error
	for _, key := range []string{biometricKey, walletDataKey, pinRecordKey} {
		if err := s.delete(ctx, key); err != nil {
			wipeErr = errors.Join(wipeErr, err)
		}
	}
	s.resetPINAttemptState()
	if wipeErr != nil {
		return wipeErr
	}
	s.logInfo("wipe", "key store wiped")
	return nil
}

func (s *Store) newPinRecord(pin string) (PinRecord, error) {
	if err := crypto.ValidatePIN(pin); err != nil {
		return PinRecord{}, err
	}
	salt, err := crypto.NewSalt(s.rand)
	if err != nil {
		return PinRecord{}, err
	}
	verification, err := crypto.DeriveVerification(pin, salt, s.iterations)
	if err != nil {
		return PinRecord{}, err
	}
	return PinRecord{
		Version:          pinRecordVersion,
		KDF:              crypto.KDFName,
		Salt:             salt,
		VerificationHash: verification,
		Iterations:       s.iterations,
		CreatedAt:        s.clock.Now().UTC(),
	}, nil
}

func verifyAgainst(rec PinRecord, pin string) (bool, error) {
	candidate, err := crypto.DeriveVerification(pin, rec.Salt, rec.Iterations)
	if err != nil {
		return false, err
	}
	defer crypto.Wipe(candidate)
	return subtle.ConstantTimeCompare(candidate, rec.VerificationHash) == 1, nil
}

// commitKey swaps in key as one step for concurrent readers, wipes the
// previous key and returns a copy taken before any later lock can wipe key.
func (s *Store) commitKey(key []byte) []byte {
	s.mu.Lock()
	old := s.key
	s.key = key
	s.lastActivity = s.clock.Now()
	s.backgroundedAt = time.Time{}
	out := append([]byte(nil), key...)
	s.mu.Unlock()
	crypto.Wipe(old)
	return out
}

func (s *Store) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return
	}
	now := s.clock.Now()
	if reason := s.expiredLocked(now); reason != "" {
		s.clearLocked(reason)
		return
	}
	s.lastActivity = now
}

func (s *Store) putPinRecord(ctx context.Context, rec PinRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.put(ctx, pinRecordKey, raw, contracts.SetOptions{Sensitive: true})
}

func (s *Store) loadPinRecord(ctx context.Context) (PinRecord, error) {
	raw, ok, err := s.get(ctx, pinRecordKey)
	if err != nil {
		return PinRecord{}, err
	}
	if !ok {
		return PinRecord{}, ErrNotInitialized
	}
	return decodePinRecord(raw)
}

func (s *Store) loadWalletBlob(ctx context.Context) (EncryptedWalletBlob, error) {
	raw, ok, err := s.get(ctx, walletDataKey)
	if err != nil {
		return EncryptedWalletBlob{}, err
	}
	if !ok {
		return EncryptedWalletBlob{}, ErrWalletNotFound
	}
	return decodeWalletBlob(raw)
}

func (s *Store) get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, false, contracts.FromContext(contracts.ErrorCategoryStorage, err)
	}
	return v, ok, nil
}

func (s *Store) put(ctx context.Context, key string, value []byte, opts contracts.SetOptions) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return contracts.FromContext(contracts.ErrorCategoryStorage, s.store.Set(ctx, key, value, opts))
}

func (s *Store) delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return contracts.FromContext(contracts.ErrorCategoryStorage, s.store.Delete(ctx, key))
}

func (s *Store) logInfo(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", operation}
	s.logger.Info(message, append(base, attrs...)...)
}

func (s *Store) logWarn(operation, message string, attrs ...any) {
	base := []any{"component", componentName, "operation", operation}
	s.logger.Warn(message, append(base, attrs...)...)
}
