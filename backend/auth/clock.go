package auth

import "time"

// Clock abstracts wall-clock reads so lockout and session-expiry rules can be
// driven by a fixed time in tests. All times are UTC; mixing naive and
// offset-aware timestamps is exactly the bug this boundary removes.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns a Clock backed by time.Now in UTC.
func SystemClock() Clock { return systemClock{} }
