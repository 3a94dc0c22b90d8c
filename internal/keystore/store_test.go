package keystore

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wallet-chat/go-core/internal/bytestore"
	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/crypto"
	"wallet-chat/go-core/pkg/models"
)

const (
	testIterations = 1000
	testPIN        = "384729"
	testMnemonic   = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *bytestore.MemoryStore, *fakeClock) {
	t.Helper()
	mem := bytestore.NewMemoryStore()
	clock := newFakeClock()
	s, err := New(Options{
		Store:      mem,
		Iterations: testIterations,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, mem, clock
}

func TestWalletRoundTripAcrossLockUnlock(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	if state, err := s.State(ctx); err != nil || state != models.LockStateUninitialized {
		t.Fatalf("expected uninitialized, got %q err=%v", state, err)
	}
	if err := s.SetPin(ctx, testPIN); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if state, _ := s.State(ctx); state != models.LockStateLocked {
		t.Fatalf("expected locked after set pin, got %q", state)
	}
	key, err := s.Unlock(ctx, testPIN)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if len(key) != crypto.KeySize {
		t.Fatalf("unexpected key size %d", len(key))
	}
	accounts := []models.Account{{ID: "acc-1", Label: "Main", Address: "addr-1", DerivationPath: "m/44'/501'/0'/0'"}}
	if err := s.SaveWalletData(ctx, testMnemonic, accounts, key); err != nil {
		t.Fatalf("save wallet: %v", err)
	}

	s.Lock()
	if _, ok := s.GetCachedKey(); ok {
		t.Fatal("expected no cached key after lock")
	}
	if _, err := s.Unlock(ctx, "000000"); !errors.Is(err, ErrWrongPIN) {
		t.Fatalf("expected ErrWrongPIN, got %v", err)
	}
	if !errors.Is(ErrWrongPIN, contracts.ErrAuthentication) {
		t.Fatal("wrong pin must be an authentication error")
	}
	if _, ok := s.GetCachedKey(); ok {
		t.Fatal("wrong pin must not cache a key")
	}
}

func TestUnlockAfterLockRestoresWallet(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)
	if err := s.SetPin(ctx, testPIN); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	key, err := s.Unlock(ctx, testPIN)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := s.SaveWalletData(ctx, testMnemonic, nil, key); err != nil {
		t.Fatalf("save wallet: %v", err)
	}
	s.Lock()
	clock.Advance(time.Hour)

	key2, err := s.Unlock(ctx, testPIN)
	if err != nil {
		t.Fatalf("second unlock: %v", err)
	}
	if !bytes.Equal(key, key2) {
		t.Fatal("same pin must derive the same key")
	}
	data, ok, err := s.LoadWalletData(ctx, key2)
	if err != nil || !ok {
		t.Fatalf("load wallet ok=%v err=%v", ok, err)
	}
	if data.Mnemonic != testMnemonic {
		t.Fatalf("unexpected mnemonic %q", data.Mnemonic)
	}
	if data.Accounts == nil || len(data.Accounts) != 0 {
		t.Fatalf("expected empty accounts, got %#v", data.Accounts)
	}
}

func TestLoadWalletDataWithWrongKeyReportsNotOK(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	if err := s.SetPin(ctx, testPIN); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	key, err := s.Unlock(ctx, testPIN)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := s.SaveWalletData(ctx, testMnemonic, nil, key); err != nil {
		t.Fatalf("save wallet: %v", err)
	}
	other := bytes.Repeat([]byte{7}, crypto.KeySize)
	_, ok, err := s.LoadWalletData(ctx, other)
	if err != nil || ok {
		t.Fatalf("expected ok=false and nil error, got ok=%v err=%v", ok, err)
	}
}

func TestLoadWalletDataMissing(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, _, err := s.LoadWalletData(context.Background(), make([]byte, crypto.KeySize))
	if !errors.Is(err, ErrWalletNotFound) || !errors.Is(err, contracts.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWeakPINIsRejectedWithoutWrites(t *testing.T) {
	s, mem, _ := newTestStore(t)
	for _, pin := range []string{"123456", "111111", "12345", "12ab56"} {
		err := s.SetPin(context.Background(), pin)
		if !errors.Is(err, contracts.ErrValidation) {
			t.Fatalf("pin %q: expected validation error, got %v", pin, err)
		}
	}
	if mem.Len() != 0 {
		t.Fatalf("expected no writes, store holds %d entries", mem.Len())
	}
}

func TestSaveWalletDataRejectsBadMnemonic(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := newTestStore(t)
	err := s.SaveWalletData(ctx, "abandon abandon abandon", nil, make([]byte, crypto.KeySize))
	if !errors.Is(err, ErrInvalidMnemonic) || !errors.Is(err, contracts.ErrValidation) {
		t.Fatalf("expected invalid mnemonic, got %v", err)
	}
	if mem.Len() != 0 {
		t.Fatal("rejected mnemonic must not be written")
	}
}

func TestVerifyPinDoesNotChangeState(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	if _, err := s.VerifyPin(ctx, testPIN); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := s.SetPin(ctx, testPIN); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	ok, err := s.VerifyPin(ctx, testPIN)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	ok, err = s.VerifyPin(ctx, "902817")
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
	if state, _ := s.State(ctx); state != models.LockStateLocked {
		t.Fatalf("verify must not unlock, state=%q", state)
	}
}

func TestFailedUnlockBacksOff(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)
	if err := s.SetPin(ctx, testPIN); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if _, err := s.Unlock(ctx, "902817"); !errors.Is(err, ErrWrongPIN) {
		t.Fatalf("expected ErrWrongPIN, got %v", err)
	}
	if _, err := s.Unlock(ctx, testPIN); !errors.Is(err, ErrPinLocked) {
		t.Fatalf("expected ErrPinLocked during backoff, got %v", err)
	}
	if _, err := s.VerifyPin(ctx, testPIN); !errors.Is(err, ErrPinLocked) {
		t.Fatalf("verify must refuse during backoff, got %v", err)
	}
	clock.Advance(time.Second)
	if _, err := s.Unlock(ctx, "902817"); !errors.Is(err, ErrWrongPIN) {
		t.Fatalf("expected ErrWrongPIN, got %v", err)
	}
	clock.Advance(time.Second)
	if _, err := s.Unlock(ctx, testPIN); !errors.Is(err, ErrPinLocked) {
		t.Fatalf("second failure must back off for 2s, got %v", err)
	}
	clock.Advance(time.Second)
	if _, err := s.Unlock(ctx, testPIN); err != nil {
		t.Fatalf("unlock after backoff: %v", err)
	}
	if _, err := s.Unlock(ctx, "902817"); !errors.Is(err, ErrWrongPIN) {
		t.Fatalf("success must reset the counter, got %v", err)
	}
}

func TestFailedAttemptBackoffCaps(t *testing.T) {
	cases := map[int]time.Duration{0: 0, 1: time.Second, 2: 2 * time.Second, 6: 32 * time.Second, 40: 32 * time.Second}
	for attempt, want := range cases {
		if got := failedAttemptBackoff(attempt); got != want {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, want)
		}
	}
}

func TestUnlockCanceledBeforeCommitLeavesStoreLocked(t *testing.T) {
	s, _, _ := newTestStore(t)
	if err := s.SetPin(context.Background(), testPIN); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Unlock(ctx, testPIN); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, ok := s.GetCachedKey(); ok {
		t.Fatal("canceled unlock must not cache a key")
	}
}

type stallingStore struct{ contracts.ByteStore }

func (stallingStore) Get(ctx context.Context, _ string) ([]byte, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func TestStoreTimeoutIsReportedAsTimeout(t *testing.T) {
	s, err := New(Options{
		Store:        stallingStore{bytestore.NewMemoryStore()},
		Iterations:   testIterations,
		StoreTimeout: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = s.Unlock(context.Background(), testPIN)
	if !errors.Is(err, contracts.ErrTimeout) || !contracts.Retryable(err) {
		t.Fatalf("expected retryable timeout, got %v", err)
	}
}

func TestWipeReturnsToUninitialized(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := newTestStore(t)
	if err := s.SetPin(ctx, testPIN); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	key, err := s.Unlock(ctx, testPIN)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := s.SaveWalletData(ctx, testMnemonic, nil, key); err != nil {
		t.Fatalf("save wallet: %v", err)
	}
	if err := s.EnableBiometricUnlock(ctx); err != nil {
		t.Fatalf("enable biometric: %v", err)
	}
	if err := s.Wipe(ctx); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if mem.Len() != 0 {
		t.Fatalf("wipe left %d entries", mem.Len())
	}
	if state, _ := s.State(ctx); state != models.LockStateUninitialized {
		t.Fatalf("expected uninitialized after wipe, got %q", state)
	}
}

func TestNeedsRehash(t *testing.T) {
	ctx := context.Background()
	s, mem, clock := newTestStore(t)
	if err := s.SetPin(ctx, testPIN); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	stronger, err := New(Options{Store: mem, Iterations: testIterations * 2, Clock: clock})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if need, err := stronger.NeedsRehash(ctx); err != nil || !need {
		t.Fatalf("expected rehash, need=%v err=%v", need, err)
	}
	if need, _ := s.NeedsRehash(ctx); need {
		t.Fatal("record at the configured count must not need a rehash")
	}
}

func TestCorruptPinRecord(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := newTestStore(t)
	if err := mem.Set(ctx, pinRecordKey, []byte(`{"version":1}`), contracts.SetOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.Unlock(ctx, testPIN); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestReunlockKeepsKeyVisibleToReaders(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	if err := s.SetPin(ctx, testPIN); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	want, err := s.Unlock(ctx, testPIN)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				key, ok := s.GetCachedKey()
				if !ok || !bytes.Equal(key, want) {
					t.Errorf("reader saw ok=%v len=%d during re-unlock", ok, len(key))
					return
				}
			}
		}()
	}

	var writers sync.WaitGroup
	for i := 0; i < 3; i++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for j := 0; j < 5; j++ {
				key, err := s.Unlock(ctx, testPIN)
				if err != nil || !bytes.Equal(key, want) {
					t.Errorf("concurrent unlock: err=%v", err)
					return
				}
			}
		}()
	}
	writers.Wait()
	close(stop)
	readers.Wait()
}

func TestTickLockAndUnlockShareOneMutex(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)
	if err := s.SetPin(ctx, testPIN); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	want, err := s.Unlock(ctx, testPIN)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}

	var wg sync.WaitGroup
	run := func(n int, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				fn()
			}
		}()
	}
	run(10, func() {
		key, err := s.Unlock(ctx, testPIN)
		if err != nil || !bytes.Equal(key, want) {
			t.Errorf("unlock under contention: err=%v", err)
		}
	})
	run(200, s.Lock)
	run(200, func() {
		clock.Advance(time.Minute)
		s.Tick(clock.Now())
	})
	run(500, func() {
		if key, ok := s.GetCachedKey(); ok && !bytes.Equal(key, want) {
			t.Errorf("reader saw a partial or wiped key, len=%d", len(key))
		}
	})
	wg.Wait()

	s.Lock()
	if _, ok := s.GetCachedKey(); ok {
		t.Fatal("expected no key after the final lock")
	}
	if _, err := s.Unlock(ctx, testPIN); err != nil {
		t.Fatalf("final unlock: %v", err)
	}
	if state, err := s.State(ctx); err != nil || state != models.LockStateUnlocked {
		t.Fatalf("expected unlocked, got %q err=%v", state, err)
	}
}
