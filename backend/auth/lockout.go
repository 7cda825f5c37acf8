package auth

import (
	"math"
	"time"

	"warehouse-mro/backend/models"
)

// Lockout tracks failed-attempt counts and lock deadlines on an account.
// It only mutates the in-memory record; callers persist inside a storage
// transaction so concurrent login attempts cannot lose updates.
type Lockout struct {
	clock       Clock
	maxAttempts int
	duration    time.Duration
}

// LockState reports whether an account is currently locked and, if so,
// how long the lock has left.
type LockState struct {
	Locked    bool
	Remaining time.Duration
}

func NewLockout(clock Clock, maxAttempts int, duration time.Duration) *Lockout {
	return &Lockout{clock: clock, maxAttempts: maxAttempts, duration: duration}
}

// Status evaluates the lock state of u at the current time. A lock whose
// deadline has passed is cleared in place. The second return value tells
// the caller the cleared state needs to be persisted.
func (l *Lockout) Status(u *models.User) (LockState, bool) {
	if u.LockedUntil == nil {
		return LockState{}, false
	}
	now := l.clock.Now()
	if now.Before(*u.LockedUntil) {
		return LockState{Locked: true, Remaining: u.LockedUntil.Sub(now)}, false
	}
	l.Reset(u)
	return LockState{}, true
}

// RecordFailure counts one failed credential check. Crossing the attempt
// threshold locks the account until now+duration. Returns true when the
// account has just transitioned to locked.
func (l *Lockout) RecordFailure(u *models.User) bool {
	u.FailedAttempts++
	if u.FailedAttempts >= l.maxAttempts && u.LockedUntil == nil {
		until := l.clock.Now().Add(l.duration)
		u.LockedUntil = &until
		return true
	}
	return false
}

// Reset clears the failure counter and any lock. Called on successful
// credential check and on lock expiry.
func (l *Lockout) Reset(u *models.User) {
	u.FailedAttempts = 0
	u.LockedUntil = nil
}

// RemainingMinutes converts a lock remainder into the whole minutes shown
// to the user, never less than one.
func RemainingMinutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}
