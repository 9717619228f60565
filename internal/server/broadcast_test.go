package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/Dou2020/tasks-manager/internal/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type broadcastCall struct {
	projectID string
	event     presence.EventType
	payload   json.RawMessage
}

type fakeBroadcaster struct {
	calls []broadcastCall
}

func (b *fakeBroadcaster) Broadcast(projectID string, event presence.EventType, payload json.RawMessage) {
	b.calls = append(b.calls, broadcastCall{projectID, event, payload})
}

func newBroadcastApp() (*App, *fakeBroadcaster) {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	app := &App{logger: slog.New(handler)}
	return app, &fakeBroadcaster{}
}

func post(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/internal/broadcast", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBroadcastHandler(t *testing.T) {
	app, b := newBroadcastApp()
	h := app.broadcastHandler(b)

	rec := post(t, h, `{"projectId":"42","event":"task-created","payload":{"id":"t-1"}}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, b.calls, 1)
	assert.Equal(t, "42", b.calls[0].projectID)
	assert.Equal(t, presence.EventTaskCreated, b.calls[0].event)
	assert.JSONEq(t, `{"id":"t-1"}`, string(b.calls[0].payload))
}

func TestBroadcastHandlerMalformedBody(t *testing.T) {
	app, b := newBroadcastApp()
	h := app.broadcastHandler(b)

	rec := post(t, h, `{{{`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, b.calls)
}

func TestBroadcastHandlerMissingFields(t *testing.T) {
	app, b := newBroadcastApp()
	h := app.broadcastHandler(b)

	for _, body := range []string{
		`{"event":"task-created"}`,
		`{"projectId":"42"}`,
		`{}`,
	} {
		rec := post(t, h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
	assert.Empty(t, b.calls)
}
