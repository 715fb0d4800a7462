package model

import "time"

// SessionDuration is the fixed manager session lifetime. Not sliding: the
// expiry is set once at creation.
const SessionDuration = 24 * time.Hour

// ManagerSession is the persisted session record, serialized as the sole JSON
// value under one device-storage key. Timestamps are epoch milliseconds.
type ManagerSession struct {
	Authenticated bool  `json:"authenticated"`
	Timestamp     int64 `json:"timestamp"`
	ExpiresAt     int64 `json:"expiresAt"`
}

// ValidAt reports whether the session grants access at the given instant.
func (s *ManagerSession) ValidAt(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.Authenticated && now.UnixMilli() < s.ExpiresAt
}

// LockState mirrors the remote lockout control record for one device
// identifier. The remote copy is authoritative; local copies are hints.
type LockState struct {
	ID          string     `json:"id"`
	Attempts    int        `json:"attempts"`
	LockedUntil *time.Time `json:"locked_until"`
}

// LockedAt reports whether the lockout is active at the given instant.
func (l *LockState) LockedAt(now time.Time) bool {
	return l != nil && l.LockedUntil != nil && now.Before(*l.LockedUntil)
}
