package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Dou2020/tasks-manager/internal/presence"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// PresenceHub is the slice of the hub the router drives on behalf of
// connected clients.
type PresenceHub interface {
	JoinRoom(connID uuid.UUID, projectID string)
	VerifyMembership(connID uuid.UUID, projectID string)
	Heartbeat(connID uuid.UUID)
	RequestRefresh(connID uuid.UUID, projectID string)
	RequestOnlineUsers(connID uuid.UUID, projectID string)
}

type handlerFunc func(ctx context.Context, connID uuid.UUID, payload json.RawMessage)

// EventRouter dispatches client messages by event name. The table is built
// once and shared by every connection; protocol misuse is logged and
// ignored, never fatal to the connection.
type EventRouter struct {
	logger   *slog.Logger
	handlers map[string]handlerFunc
}

func NewEventRouter(logger *slog.Logger, hub PresenceHub) *EventRouter {
	r := &EventRouter{
		logger: logger.With(slog.String("component", "event_router")),
	}
	r.handlers = map[string]handlerFunc{
		string(presence.EventJoinRoom): func(_ context.Context, connID uuid.UUID, payload json.RawMessage) {
			projectID := projectIDFrom(payload)
			if projectID == "" {
				r.logger.Warn("join-room without project id ignored", slog.String("connID", connID.String()))
				return
			}
			hub.JoinRoom(connID, projectID)
		},
		string(presence.EventVerifyMembership): func(_ context.Context, connID uuid.UUID, payload json.RawMessage) {
			projectID := projectIDFrom(payload)
			if projectID == "" {
				return
			}
			hub.VerifyMembership(connID, projectID)
		},
		string(presence.EventHeartbeat): func(_ context.Context, connID uuid.UUID, _ json.RawMessage) {
			hub.Heartbeat(connID)
		},
		string(presence.EventRequestRefresh): func(_ context.Context, connID uuid.UUID, payload json.RawMessage) {
			projectID := projectIDFrom(payload)
			if projectID == "" {
				return
			}
			hub.RequestRefresh(connID, projectID)
		},
		string(presence.EventRequestOnlineUsers): func(_ context.Context, connID uuid.UUID, payload json.RawMessage) {
			projectID := projectIDFrom(payload)
			if projectID == "" {
				return
			}
			hub.RequestOnlineUsers(connID, projectID)
		},
	}
	return r
}

// HandleMessage is attached once per connection at admission time as its
// transport message callback.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	handler, ok := r.handlers[clientMsg.Event]
	if !ok {
		r.logger.Warn("Received unknown event", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
		return
	}
	handler(ctx, connID, clientMsg.Payload)
}

// projectIDFrom accepts both payload shapes clients send: a bare JSON
// scalar ("42") or an object ({"projectId": "42"}).
func projectIDFrom(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	value := gjson.ParseBytes(payload)
	if value.IsObject() {
		value = value.Get("projectId")
	}
	switch value.Type {
	case gjson.String, gjson.Number:
		return value.String()
	}
	return ""
}
