package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when no record exists for a session id.
var ErrNotFound = errors.New("session not found")

// Record is one server-side session as persisted by the HTTP login flow.
// UserID is empty for anonymous sessions (e.g. a visitor who never logged in).
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the record carries an expiry in the past. Records
// without an expiry never expire here; backends with native TTLs simply stop
// returning them.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(now)
}

// Store is the session persistence used by the HTTP stack. The realtime layer
// only reads from it.
type Store interface {
	Get(ctx context.Context, sid string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, sid string) error
}
