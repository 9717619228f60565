package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Dou2020/tasks-manager/internal/presence"
)

// BroadcastRequest is what the CRUD layer posts after a successful mutation.
type BroadcastRequest struct {
	ProjectID string          `json:"projectId"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}

// broadcastHandler exposes the fan-out handle over HTTP for a mutation layer
// running out of process. Delivery is best-effort: once the request parses,
// the caller's mutation has already succeeded and gets 202 regardless of
// what fan-out does.
func (a *App) broadcastHandler(b presence.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BroadcastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.logger.Warn("Malformed broadcast request", slog.Any("error", err))
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		if req.ProjectID == "" || req.Event == "" {
			http.Error(w, "projectId and event are required", http.StatusBadRequest)
			return
		}

		b.Broadcast(req.ProjectID, presence.EventType(req.Event), req.Payload)
		w.WriteHeader(http.StatusAccepted)
	}
}
