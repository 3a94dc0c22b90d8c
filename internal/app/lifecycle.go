package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"wallet-chat/go-core/internal/metrics"
	"wallet-chat/go-core/internal/platform/privacylog"
)

func DefaultLogger() *slog.Logger {
	return privacylog.NewLogger(os.Stdout, slog.LevelInfo)
}

// RunAutoLock ticks the auto-lock policy until ctx is done. The host runs it
// in its own goroutine for the life of the session.
func (s *Session) RunAutoLock(ctx context.Context) {
	ticker := time.NewTicker(s.keys.Policy().TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.clock.Now())
		}
	}
}

// Tick applies the auto-lock policy at now and reports whether it locked.
func (s *Session) Tick(now time.Time) bool {
	if !s.keys.Tick(now) {
		return false
	}
	s.exchange.Forget()
	return true
}

// EnterBackground is called by the host on suspend.
func (s *Session) EnterBackground(now time.Time) {
	s.keys.EnterBackground(now)
	if !s.keys.Unlocked() {
		s.exchange.Forget()
	}
}

// EnterForeground is called by the host on resume. It reports whether the
// session is still unlocked.
func (s *Session) EnterForeground(now time.Time) bool {
	if s.keys.EnterForeground(now) {
		return true
	}
	s.exchange.Forget()
	return false
}

// ForceLock locks immediately, for example on a host suspend signal that
// must not wait for the grace period.
func (s *Session) ForceLock() {
	s.keys.ForceLock(metrics.AutoLockBackground)
	s.exchange.Forget()
}
