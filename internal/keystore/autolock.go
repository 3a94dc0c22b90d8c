package keystore

import (
	"time"

	"wallet-chat/go-core/internal/crypto"
	"wallet-chat/go-core/internal/metrics"
)

// AutoLockPolicy controls when a cached key expires. The host calls Tick every
// TickInterval and reports lifecycle changes through EnterBackground and
// EnterForeground, since ticks may not run at all while suspended.
type AutoLockPolicy struct {
	Timeout         time.Duration
	TickInterval    time.Duration
	BackgroundGrace time.Duration
}

func DefaultAutoLockPolicy() AutoLockPolicy {
	return AutoLockPolicy{
		Timeout:         5 * time.Minute,
		TickInterval:    30 * time.Second,
		BackgroundGrace: time.Minute,
	}
}

func (p AutoLockPolicy) withDefaults() AutoLockPolicy {
	def := DefaultAutoLockPolicy()
	if p == (AutoLockPolicy{}) {
		return def
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.TickInterval <= 0 {
		p.TickInterval = def.TickInterval
	}
	if p.BackgroundGrace < 0 {
		p.BackgroundGrace = def.BackgroundGrace
	}
	return p
}

func (s *Store) Policy() AutoLockPolicy {
	return s.policy
}

// Tick locks the store if the inactivity timeout or the background grace has
// elapsed at now. It reports whether a lock happened on this call.
func (s *Store) Tick(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return false
	}
	reason := s.expiredLocked(now)
	if reason == "" {
		return false
	}
	s.clearLocked(reason)
	return true
}

// ForceLock wipes the cached key immediately. reason is recorded in metrics
// and logs only.
func (s *Store) ForceLock(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return
	}
	s.clearLocked(reason)
}

// EnterBackground marks the start of a suspension. A zero grace locks at once.
func (s *Store) EnterBackground(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return
	}
	if s.policy.BackgroundGrace == 0 {
		s.clearLocked(metrics.AutoLockBackground)
		return
	}
	if s.backgroundedAt.IsZero() {
		s.backgroundedAt = now
	}
}

// EnterForeground ends a suspension and locks if it lasted past the grace or
// the inactivity timeout. It reports whether the store is still unlocked.
func (s *Store) EnterForeground(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		s.backgroundedAt = time.Time{}
		return false
	}
	if reason := s.expiredLocked(now); reason != "" {
		s.clearLocked(reason)
		return false
	}
	s.backgroundedAt = time.Time{}
	return true
}

// expiredLocked returns the lock reason at now, or "" while the key is fresh.
// Caller holds s.mu.
func (s *Store) expiredLocked(now time.Time) string {
	if !s.backgroundedAt.IsZero() && now.Sub(s.backgroundedAt) >= s.policy.BackgroundGrace {
		return metrics.AutoLockBackground
	}
	if now.Sub(s.lastActivity) >= s.policy.Timeout {
		return metrics.AutoLockTimeout
	}
	return ""
}

// clearLocked wipes the key. Caller holds s.mu.
func (s *Store) clearLocked(reason string) {
	crypto.Wipe(s.key)
	s.key = nil
	s.backgroundedAt = time.Time{}
	s.metrics.RecordLock(reason)
	s.logInfo("lock", "key store locked", "reason", reason)
}

// Unlocked reports whether a fresh key is cached. Unlike GetCachedKey it does
// not count as activity.
func (s *Store) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return false
	}
	if reason := s.expiredLocked(s.clock.Now()); reason != "" {
		s.clearLocked(reason)
		return false
	}
	return true
}
