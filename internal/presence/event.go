package presence

import (
	"encoding/json"
	"fmt"
)

// EventType names one message kind of the realtime protocol. The set is
// closed: anything outside it is rejected at the boundary it arrives on.
type EventType string

// Client to server.
const (
	EventJoinRoom           EventType = "join-room"
	EventVerifyMembership   EventType = "verify-membership"
	EventHeartbeat          EventType = "heartbeat"
	EventRequestRefresh     EventType = "request-refresh"
	EventRequestOnlineUsers EventType = "request-online-users"
)

// Server to client.
const (
	EventJoined       EventType = "joined"
	EventUserJoined   EventType = "user-joined"
	EventOnlineUsers  EventType = "online-users"
	EventShouldRejoin EventType = "should-rejoin"
	EventHeartbeatAck EventType = "heartbeat-ack"
	EventRefreshTasks EventType = "refresh-tasks"
)

// Mutation fan-out, emitted on behalf of the CRUD layer.
const (
	EventTaskCreated  EventType = "task-created"
	EventTaskUpdated  EventType = "task-updated"
	EventTaskDeleted  EventType = "task-deleted"
	EventCommentAdded EventType = "comment-added"
)

// IsDomainEvent reports whether the type may be passed to Broadcast by the
// mutation layer.
func IsDomainEvent(t EventType) bool {
	switch t {
	case EventTaskCreated, EventTaskUpdated, EventTaskDeleted, EventCommentAdded,
		EventRefreshTasks, EventOnlineUsers:
		return true
	}
	return false
}

// Envelope is the wire frame for every server-to-client message.
type Envelope struct {
	Event   EventType       `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MemberInfo is one presence-list row: one user, represented by the
// connection that most recently joined on their behalf.
type MemberInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ConnectionID string `json:"connectionId"`
}

type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type JoinedPayload struct {
	ProjectID string       `json:"projectId"`
	Message   string       `json:"message"`
	Members   []MemberInfo `json:"members"`
}

type UserJoinedPayload struct {
	User UserRef `json:"user"`
}

type ShouldRejoinPayload struct {
	ProjectID string `json:"projectId"`
}

type HeartbeatAckPayload struct {
	Timestamp int64 `json:"timestamp"`
}

func encodeEvent(event EventType, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		raw = data
	}
	data, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	return data, nil
}
