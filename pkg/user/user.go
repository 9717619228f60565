package user

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no user exists for an id (e.g. a deleted
// account whose session is still live).
var ErrNotFound = errors.New("user not found")

type User struct {
	ID       string
	Name     string
	Username string
}

// DisplayName is what other room occupants see in presence lists.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Store is the read-only user directory. Account management lives upstream.
type Store interface {
	Get(ctx context.Context, id string) (*User, error)
}
