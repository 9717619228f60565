package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sink is the sending side of one live connection as the hub sees it.
// *transport.Connection satisfies it; tests substitute an in-memory fake.
type Sink interface {
	Send(message []byte)
	Alive() bool
	Close(err error)
}

// Broadcaster is the handle the mutation layer uses to fan out domain
// events. It is injected wherever mutations happen; nothing reaches into
// the hub's state directly.
type Broadcaster interface {
	Broadcast(projectID string, event EventType, payload json.RawMessage)
}

// client is the hub's view of one admitted connection.
type client struct {
	id       uuid.UUID
	userID   string
	name     string
	sink     Sink
	room     string // current room key, "" when not in a room
	admitted time.Time
}

// Hub owns the Connection Registry and the Room Membership Table. All
// mutations run on a single event-loop goroutine; callers enqueue closures
// on the command channel, so no state here needs locking. Within a room
// this also gives every occupant the same relative order of membership
// broadcasts.
type Hub struct {
	logger   *slog.Logger
	registry *Registry
	rooms    *Table
	conns    map[uuid.UUID]*client

	commands      chan func()
	sweepInterval time.Duration
	stopped       chan struct{}
}

var _ Broadcaster = (*Hub)(nil)

func NewHub(logger *slog.Logger, sweepInterval time.Duration) *Hub {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	return &Hub{
		logger:        logger.With(slog.String("component", "presence_hub")),
		registry:      NewRegistry(logger),
		rooms:         NewTable(logger),
		conns:         make(map[uuid.UUID]*client),
		commands:      make(chan func(), 512),
		sweepInterval: sweepInterval,
		stopped:       make(chan struct{}),
	}
}

// Run processes commands until the context is cancelled. It must be running
// before connections are admitted.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()
	defer close(h.stopped)

	for {
		select {
		case fn := <-h.commands:
			fn()
		case <-ticker.C:
			h.sweep()
		case <-ctx.Done():
			h.logger.Info("Presence hub stopping")
			return
		}
	}
}

// do enqueues a mutation for the event loop. Commands enqueued after
// shutdown are dropped; a disconnecting server has no presence to maintain.
func (h *Hub) do(fn func()) {
	select {
	case h.commands <- fn:
	case <-h.stopped:
	}
}

// --- Connection lifecycle ---

// Admit registers an authenticated connection with the hub. The identity is
// fixed for the connection's lifetime.
func (h *Hub) Admit(connID uuid.UUID, userID, displayName string, sink Sink) {
	h.do(func() {
		h.conns[connID] = &client{
			id:       connID,
			userID:   userID,
			name:     displayName,
			sink:     sink,
			admitted: time.Now(),
		}
		h.registry.Register(userID, connID)
	})
}

// Disconnect tears down all state for a connection. Safe to call more than
// once; duplicate disconnect events are absorbed.
func (h *Hub) Disconnect(connID uuid.UUID) {
	h.do(func() { h.disconnect(connID) })
}

func (h *Hub) disconnect(connID uuid.UUID) {
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	if c.room != "" {
		h.leaveRoom(c)
	}
	h.registry.Unregister(c.userID, connID)
	delete(h.conns, connID)
	h.logger.Debug("Connection removed", slog.String("connID", connID.String()), slog.String("userID", c.userID))
}

// --- Join protocol ---

// JoinRoom moves a connection into a project's room, leaving any previous
// room first. Re-joining the current room is idempotent.
func (h *Hub) JoinRoom(connID uuid.UUID, projectID string) {
	h.do(func() { h.joinRoom(connID, projectID) })
}

func (h *Hub) joinRoom(connID uuid.UUID, projectID string) {
	c, ok := h.conns[connID]
	if !ok {
		// Disconnect raced the join; cleanup already won.
		return
	}
	if projectID == "" {
		h.logger.Warn("Join request without project id ignored", slog.String("connID", connID.String()))
		return
	}

	key := RoomKey(projectID)
	if c.room == key {
		// Already there: refresh the representative binding and reconfirm to
		// the requester only. The rest of the room hears nothing.
		room := h.rooms.Join(key, c.userID, c.name, c.id)
		room.subs[c.id] = c
		h.sendTo(c, EventJoined, JoinedPayload{
			ProjectID: projectID,
			Message:   "already connected",
			Members:   h.rooms.MembersOf(key),
		})
		return
	}

	if c.room != "" {
		h.leaveRoom(c)
	}

	room := h.rooms.Join(key, c.userID, c.name, c.id)
	room.subs[c.id] = c
	c.room = key

	members := h.rooms.MembersOf(key)
	h.logger.Info("User joined room",
		slog.String("userID", c.userID),
		slog.String("room", key),
		slog.Int("occupants", len(members)),
	)

	// Full snapshot to everyone, confirmation to the joiner, user-joined to
	// the rest.
	h.sendToRoom(room, EventOnlineUsers, members, uuid.Nil)
	h.sendTo(c, EventJoined, JoinedPayload{
		ProjectID: projectID,
		Message:   "connected to realtime updates",
		Members:   members,
	})
	h.sendToRoom(room, EventUserJoined, UserJoinedPayload{
		User: UserRef{ID: c.userID, Name: c.name},
	}, c.id)
}

// leaveRoom removes the connection from its room's transport group and,
// when it was the user's last connection there, the presence entry too.
func (h *Hub) leaveRoom(c *client) {
	key := c.room
	c.room = ""
	room, ok := h.rooms.Room(key)
	if !ok {
		return
	}
	delete(room.subs, c.id)

	for _, other := range room.subs {
		if other.userID == c.userID {
			// Another connection still represents this user here; the
			// presence list is unaffected.
			h.rooms.DropIfEmpty(key)
			return
		}
	}

	if h.rooms.RemoveMember(key, c.userID) {
		h.logger.Info("User left room", slog.String("userID", c.userID), slog.String("room", key))
		if remaining, ok := h.rooms.Room(key); ok {
			h.sendToRoom(remaining, EventOnlineUsers, h.rooms.MembersOf(key), uuid.Nil)
		}
	}
	h.rooms.DropIfEmpty(key)
}

// VerifyMembership answers a client's self-heal probe: if the server does
// not consider the connection joined to the expected room, it is told to
// re-issue join-room.
func (h *Hub) VerifyMembership(connID uuid.UUID, projectID string) {
	h.do(func() {
		c, ok := h.conns[connID]
		if !ok || projectID == "" {
			return
		}
		if c.room != RoomKey(projectID) {
			h.logger.Info("Connection drifted out of expected room",
				slog.String("connID", connID.String()),
				slog.String("projectID", projectID),
			)
			h.sendTo(c, EventShouldRejoin, ShouldRejoinPayload{ProjectID: projectID})
		}
	})
}

// Heartbeat acknowledges a liveness probe. It feeds the client's reconnect
// logic only; server-side eviction is driven by transport disconnects.
func (h *Hub) Heartbeat(connID uuid.UUID) {
	h.do(func() {
		c, ok := h.conns[connID]
		if !ok {
			return
		}
		h.sendTo(c, EventHeartbeatAck, HeartbeatAckPayload{Timestamp: time.Now().UnixMilli()})
	})
}

// RequestRefresh broadcasts a cache-bust to the project's room.
func (h *Hub) RequestRefresh(connID uuid.UUID, projectID string) {
	h.do(func() {
		if projectID == "" {
			return
		}
		if room, ok := h.rooms.Room(RoomKey(projectID)); ok {
			h.sendToRoom(room, EventRefreshTasks, struct{}{}, uuid.Nil)
		}
	})
}

// RequestOnlineUsers replies to the requester with the room's presence
// snapshot.
func (h *Hub) RequestOnlineUsers(connID uuid.UUID, projectID string) {
	h.do(func() {
		c, ok := h.conns[connID]
		if !ok || projectID == "" {
			return
		}
		h.sendTo(c, EventOnlineUsers, h.rooms.MembersOf(RoomKey(projectID)))
	})
}

// --- Fan-out ---

// Broadcast delivers a domain event to every connection joined to the
// project's room. Fire-and-forget: no acknowledgement, no queueing, and
// failures never reach the mutation that triggered it.
func (h *Hub) Broadcast(projectID string, event EventType, payload json.RawMessage) {
	if !IsDomainEvent(event) {
		h.logger.Warn("Rejected broadcast of non-domain event", slog.String("event", string(event)))
		return
	}
	h.do(func() {
		room, ok := h.rooms.Room(RoomKey(projectID))
		if !ok {
			h.logger.Debug("Broadcast to room with no occupants",
				slog.String("projectID", projectID),
				slog.String("event", string(event)),
			)
			return
		}
		h.sendToRoom(room, event, payload, uuid.Nil)
	})
}

// --- Liveness sweep ---

// sweep reconciles tracked state against actual transport liveness. It is a
// consistency backstop; transport close callbacks are the primary cleanup
// path.
func (h *Hub) sweep() {
	dead := 0
	for id, c := range h.conns {
		if !c.sink.Alive() {
			h.disconnect(id)
			dead++
		}
	}

	// Scrub rooms for subscriptions or presence entries whose connections
	// vanished without passing through disconnect.
	for _, key := range h.rooms.Keys() {
		room, ok := h.rooms.Room(key)
		if !ok {
			continue
		}
		for id, c := range room.subs {
			if _, tracked := h.conns[id]; !tracked || !c.sink.Alive() {
				delete(room.subs, id)
			}
		}
		for _, m := range h.rooms.MembersOf(key) {
			if !h.hasLiveSub(room, m.ID) {
				if h.rooms.RemoveMember(key, m.ID) {
					if remaining, ok := h.rooms.Room(key); ok {
						h.sendToRoom(remaining, EventOnlineUsers, h.rooms.MembersOf(key), uuid.Nil)
					}
				}
			}
		}
		h.rooms.DropIfEmpty(key)
	}

	h.logger.Debug("Janitor sweep finished",
		slog.Int("reaped", dead),
		slog.Int("connections", len(h.conns)),
	)
}

func (h *Hub) hasLiveSub(room *Room, userID string) bool {
	for _, c := range room.subs {
		if c.userID == userID && c.sink.Alive() {
			return true
		}
	}
	return false
}

// --- Delivery helpers ---

func (h *Hub) sendTo(c *client, event EventType, payload any) {
	msg, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", slog.String("event", string(event)), slog.Any("error", err))
		return
	}
	c.sink.Send(msg)
}

// sendToRoom delivers to every subscription in the room's transport group,
// optionally skipping one connection (the originator).
func (h *Hub) sendToRoom(room *Room, event EventType, payload any, skip uuid.UUID) {
	msg, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", slog.String("event", string(event)), slog.Any("error", err))
		return
	}
	for id, c := range room.subs {
		if id == skip {
			continue
		}
		c.sink.Send(msg)
	}
}

// --- Synchronous queries ---

// Members returns the presence list for a project, ordered by join time.
func (h *Hub) Members(projectID string) []MemberInfo {
	reply := make(chan []MemberInfo, 1)
	h.do(func() { reply <- h.rooms.MembersOf(RoomKey(projectID)) })
	select {
	case members := <-reply:
		return members
	case <-h.stopped:
		return []MemberInfo{}
	}
}

// ConnectionCount reports how many live connections a user currently holds.
func (h *Hub) ConnectionCount(userID string) (int, error) {
	reply := make(chan int, 1)
	h.do(func() { reply <- h.registry.Count(userID) })
	select {
	case n := <-reply:
		return n, nil
	case <-h.stopped:
		return 0, nil
	}
}

// IsLive reports whether a connection id is currently tracked.
func (h *Hub) IsLive(connID uuid.UUID) bool {
	reply := make(chan bool, 1)
	h.do(func() {
		_, ok := h.conns[connID]
		reply <- ok
	})
	select {
	case ok := <-reply:
		return ok
	case <-h.stopped:
		return false
	}
}

// CloseOldestConnection closes the user's longest-lived connection. The
// connection-limit middleware uses this in cycle mode to absorb reconnect
// storms without refusing the newest attempt.
func (h *Hub) CloseOldestConnection(userID string) {
	h.do(func() {
		var oldest *client
		for _, id := range h.registry.ConnectionsOf(userID) {
			c, ok := h.conns[id]
			if !ok {
				continue
			}
			if oldest == nil || c.admitted.Before(oldest.admitted) {
				oldest = c
			}
		}
		if oldest != nil {
			h.logger.Info("Cycling connection: closing oldest",
				slog.String("userID", userID),
				slog.String("connID", oldest.id.String()),
			)
			// Closing can block on transport I/O and re-enters the hub via
			// the close callback, so it must leave the event loop.
			sink := oldest.sink
			go sink.Close(errConnectionCycled)
		}
	})
}

// CloseAll closes every live connection. Used by graceful shutdown after the
// HTTP listener has stopped accepting upgrades.
func (h *Hub) CloseAll(reason error) {
	h.do(func() {
		for _, c := range h.conns {
			sink := c.sink
			go sink.Close(reason)
		}
	})
}
