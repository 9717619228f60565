package presence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomKey(t *testing.T) {
	assert.Equal(t, "project-42", RoomKey("42"))
}

func TestTableJoinDeduplicatesByUser(t *testing.T) {
	table := NewTable(newInternalTestLogger())
	connA := uuid.New()
	connB := uuid.New()

	table.Join("project-1", "u1", "Ana", connA)
	table.Join("project-1", "u1", "Ana", connB)

	members := table.MembersOf("project-1")
	require.Len(t, members, 1)
	// The newest connection becomes the representative.
	assert.Equal(t, connB.String(), members[0].ConnectionID)
}

func TestTableMemberOrder(t *testing.T) {
	table := NewTable(newInternalTestLogger())

	table.Join("project-1", "u1", "Ana", uuid.New())
	table.Join("project-1", "u2", "Ben", uuid.New())
	table.Join("project-1", "u3", "Cal", uuid.New())
	// A rejoin must not move the entry to the back.
	table.Join("project-1", "u1", "Ana", uuid.New())

	members := table.MembersOf("project-1")
	require.Len(t, members, 3)
	assert.Equal(t, "u1", members[0].ID)
	assert.Equal(t, "u2", members[1].ID)
	assert.Equal(t, "u3", members[2].ID)
}

func TestTableRemoveMemberCollectsEmptyRoom(t *testing.T) {
	table := NewTable(newInternalTestLogger())
	table.Join("project-1", "u1", "Ana", uuid.New())

	require.True(t, table.RemoveMember("project-1", "u1"))
	_, ok := table.Room("project-1")
	assert.False(t, ok, "empty room should be garbage-collected")

	// Removing from a gone room or for an absent user is a no-op.
	assert.False(t, table.RemoveMember("project-1", "u1"))
	assert.False(t, table.RemoveMember("nope", "u1"))
}

func TestTableMembersOfUnknownRoom(t *testing.T) {
	table := NewTable(newInternalTestLogger())
	assert.Empty(t, table.MembersOf("project-missing"))
}

func TestTableRoomStaysWhileSubscribed(t *testing.T) {
	table := NewTable(newInternalTestLogger())
	room := table.Join("project-1", "u1", "Ana", uuid.New())

	// A connection still subscribed at the transport level pins the room
	// even after the presence entry goes away.
	connID := uuid.New()
	room.subs[connID] = &client{id: connID, userID: "u2"}

	require.True(t, table.RemoveMember("project-1", "u1"))
	_, ok := table.Room("project-1")
	assert.True(t, ok)

	delete(room.subs, connID)
	table.DropIfEmpty("project-1")
	_, ok = table.Room("project-1")
	assert.False(t, ok)
}
