package presence

import (
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// RoomKey derives a room's key from its project id.
func RoomKey(projectID string) string {
	return "project-" + projectID
}

// Member is one presence entry: a user currently in a room, represented by
// the connection that most recently joined on their behalf. seq preserves
// join order across representative swaps.
type Member struct {
	UserID string
	Name   string
	ConnID uuid.UUID
	seq    uint64
}

// Room is the realtime channel for one project. members is the presence
// list, deduplicated by user id. subs is the transport-level group: every
// connection currently joined, which is what event delivery iterates.
type Room struct {
	Key     string
	members map[string]*Member
	subs    map[uuid.UUID]*client
}

// Table is the room membership table. Like the Registry it is confined to
// the hub's event loop and needs no locking.
type Table struct {
	rooms  map[string]*Room
	seq    uint64
	logger *slog.Logger
}

func NewTable(logger *slog.Logger) *Table {
	return &Table{
		rooms:  make(map[string]*Room),
		logger: logger.With(slog.String("component", "room_table")),
	}
}

func (t *Table) Room(key string) (*Room, bool) {
	room, ok := t.rooms[key]
	return room, ok
}

// Join adds or refreshes the presence entry for (room, user). Rooms are
// created lazily. An existing entry only has its representative connection
// id swapped: the (room, user) pair stays unique and keeps its join order.
func (t *Table) Join(key, userID, name string, connID uuid.UUID) *Room {
	room, ok := t.rooms[key]
	if !ok {
		room = &Room{
			Key:     key,
			members: make(map[string]*Member),
			subs:    make(map[uuid.UUID]*client),
		}
		t.rooms[key] = room
		t.logger.Debug("Room created", slog.String("room", key))
	}

	if m, exists := room.members[userID]; exists {
		m.ConnID = connID
		m.Name = name
		return room
	}

	t.seq++
	room.members[userID] = &Member{UserID: userID, Name: name, ConnID: connID, seq: t.seq}
	t.logger.Debug("User joined room", slog.String("userID", userID), slog.String("room", key))
	return room
}

// RemoveMember drops a user's presence entry. The now-empty room is
// garbage-collected. Reports whether an entry actually existed.
func (t *Table) RemoveMember(key, userID string) bool {
	room, ok := t.rooms[key]
	if !ok {
		return false
	}
	if _, exists := room.members[userID]; !exists {
		return false
	}
	delete(room.members, userID)
	t.logger.Debug("User left room", slog.String("userID", userID), slog.String("room", key))
	t.dropIfEmpty(room)
	return true
}

// MembersOf returns the presence list ordered by join time.
func (t *Table) MembersOf(key string) []MemberInfo {
	room, ok := t.rooms[key]
	if !ok {
		return []MemberInfo{}
	}

	members := make([]*Member, 0, len(room.members))
	for _, m := range room.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })

	infos := make([]MemberInfo, len(members))
	for i, m := range members {
		infos[i] = MemberInfo{ID: m.UserID, Name: m.Name, ConnectionID: m.ConnID.String()}
	}
	return infos
}

// Keys snapshots the current room keys; used by the janitor sweep.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.rooms))
	for k := range t.rooms {
		keys = append(keys, k)
	}
	return keys
}

// DropIfEmpty garbage-collects the room if nothing references it anymore.
func (t *Table) DropIfEmpty(key string) {
	if room, ok := t.rooms[key]; ok {
		t.dropIfEmpty(room)
	}
}

func (t *Table) dropIfEmpty(room *Room) {
	if len(room.members) == 0 && len(room.subs) == 0 {
		delete(t.rooms, room.Key)
		t.logger.Debug("Removed empty room", slog.String("room", room.Key))
	}
}
