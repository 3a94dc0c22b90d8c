package keystore

import "time"

// checkLockout fails while a backoff window from earlier wrong PINs is open.
func (s *Store) checkLockout() error {
	s.attemptsMu.Lock()
	defer s.attemptsMu.Unlock()
	if s.lockedUntil.IsZero() {
		return nil
	}
	if s.clock.Now().Before(s.lockedUntil) {
		return ErrPinLocked
	}
	return nil
}

func (s *Store) onFailedPINAttempt() int {
	s.attemptsMu.Lock()
	defer s.attemptsMu.Unlock()
	s.failedAttempts++
	s.lockedUntil = s.clock.Now().Add(failedAttemptBackoff(s.failedAttempts))
	return s.failedAttempts
}

func (s *Store) resetPINAttemptState() {
	s.attemptsMu.Lock()
	defer s.attemptsMu.Unlock()
	s.failedAttempts = 0
	s.lockedUntil = time.Time{}
}

func failedAttemptBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// 1s, 2s, 4s... up to 32s max.
	shift := attempt - 1
	if shift > 5 {
		shift = 5
	}
	return time.Second * time.Duration(1<<shift)
}
