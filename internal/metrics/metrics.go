// Package metrics exposes prometheus counters for the key management core.
// Every method is safe on a nil *Metrics so components can run without
// instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "walletcore"

const (
	UnlockSuccess   = "success"
	UnlockWrongPIN  = "wrong_pin"
	UnlockThrottled = "throttled"
	UnlockBiometric = "biometric"

	AutoLockTimeout    = "timeout"
	AutoLockBackground = "background"
	AutoLockExplicit   = "explicit"
	AutoLockWipe       = "wipe"

	SharedKeyHit     = "cache_hit"
	SharedKeyDerived = "derived"
	SharedKeyRotated = "rotated"
)

type Metrics struct {
	unlockAttempts  *prometheus.CounterVec
	autoLocks       *prometheus.CounterVec
	sharedKeys      *prometheus.CounterVec
	decryptFailures prometheus.Counter
	errors          *prometheus.CounterVec
}

// New builds the collectors and registers them on reg. A nil reg leaves them
// unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		unlockAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unlock_attempts_total",
			Help:      "Unlock attempts by result.",
		}, []string{"result"}),
		autoLocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autolock_total",
			Help:      "Transitions to the locked state by reason.",
		}, []string{"reason"}),
		sharedKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shared_key_total",
			Help:      "Per-peer shared key resolutions by outcome.",
		}, []string{"outcome"}),
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_failures_total",
			Help:      "Direct messages that failed authentication.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors surfaced to callers by category.",
		}, []string{"category"}),
	}
	if reg != nil {
		reg.MustRegister(m.unlockAttempts, m.autoLocks, m.sharedKeys, m.decryptFailures, m.errors)
	}
	return m
}

func (m *Metrics) RecordUnlock(result string) {
	if m == nil {
		return
	}
	m.unlockAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordLock(reason string) {
	if m == nil {
		return
	}
	m.autoLocks.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordSharedKey(outcome string) {
	if m == nil {
		return
	}
	m.sharedKeys.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordDecryptFailure() {
	if m == nil {
		return
	}
	m.decryptFailures.Inc()
}

func (m *Metrics) RecordError(category string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(category).Inc()
}
