package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordUnlock(UnlockSuccess)
	m.RecordUnlock(UnlockWrongPIN)
	m.RecordUnlock(UnlockWrongPIN)
	m.RecordLock(AutoLockTimeout)
	m.RecordSharedKey(SharedKeyRotated)
	m.RecordDecryptFailure()
	m.RecordError("crypto")

	if got := testutil.ToFloat64(m.unlockAttempts.WithLabelValues(UnlockWrongPIN)); got != 2 {
		t.Fatalf("expected 2 wrong pin attempts, got %v", got)
	}
	if got := testutil.ToFloat64(m.autoLocks.WithLabelValues(AutoLockTimeout)); got != 1 {
		t.Fatalf("expected 1 timeout lock, got %v", got)
	}
	if got := testutil.ToFloat64(m.decryptFailures); got != 1 {
		t.Fatalf("expected 1 decrypt failure, got %v", got)
	}
	if n := testutil.CollectAndCount(m.errors); n != 1 {
		t.Fatalf("expected 1 error series, got %d", n)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Fatalf("expected registered series, got %d err=%v", n, err)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordUnlock(UnlockSuccess)
	m.RecordLock(AutoLockExplicit)
	m.RecordSharedKey(SharedKeyHit)
	m.RecordDecryptFailure()
	m.RecordError("network")
}
