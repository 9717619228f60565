package presence

import (
	"log/slog"

	"github.com/google/uuid"
)

// Registry maps each user to the set of live connection ids they hold.
// It is owned by the hub's event loop and is never touched concurrently,
// so it carries no locks.
type Registry struct {
	users  map[string]map[uuid.UUID]struct{}
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		users:  make(map[string]map[uuid.UUID]struct{}),
		logger: logger.With(slog.String("component", "connection_registry")),
	}
}

func (r *Registry) Register(userID string, connID uuid.UUID) {
	set, ok := r.users[userID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.users[userID] = set
	}
	set[connID] = struct{}{}
	r.logger.Debug("Connection registered", slog.String("userID", userID), slog.String("connID", connID.String()))
}

// Unregister drops a connection from its user's set and reports whether it
// was the user's last one. A user with no connections left is removed
// entirely; no empty entries linger.
func (r *Registry) Unregister(userID string, connID uuid.UUID) (last bool) {
	set, ok := r.users[userID]
	if !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.users, userID)
		r.logger.Debug("User has no connections left, removed from registry", slog.String("userID", userID))
		return true
	}
	return false
}

func (r *Registry) ConnectionsOf(userID string) []uuid.UUID {
	set, ok := r.users[userID]
	if !ok {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Count(userID string) int {
	return len(r.users[userID])
}

func (r *Registry) Users() []string {
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids
}
