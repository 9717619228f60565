package middleware_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Dou2020/tasks-manager/internal/server/middleware"
	"github.com/Dou2020/tasks-manager/pkg/session"
	"github.com/Dou2020/tasks-manager/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCookieName = "session-token"

var testSecret = []byte("test-secret")

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fixture struct {
	sessions *session.MemoryStore
	users    *user.MemoryStore
	handler  http.Handler
	lastMeta *middleware.RequestMetadata
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions: session.NewMemoryStore(),
		users:    user.NewMemoryStore(),
	}
	logger := newTestLogger()
	bridge := session.NewBridge(logger, f.sessions, testSecret, testCookieName)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, ok := middleware.ReqMetadataFrom(r.Context())
		require.True(t, ok)
		f.lastMeta = meta
		w.WriteHeader(http.StatusOK)
	})
	f.handler = middleware.Chain(final,
		middleware.RequestMetadataMiddleware(),
		middleware.NewSessionAuth(logger, bridge, f.users),
	)
	return f
}

func (f *fixture) request(t *testing.T, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedSession(t *testing.T, sid, userID string) string {
	t.Helper()
	require.NoError(t, f.sessions.Put(context.Background(), &session.Record{
		ID:        sid,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	token, err := session.NewToken(testSecret, sid, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return testCookieName + "=" + token
}

func TestSessionAuthSuccess(t *testing.T) {
	f := newFixture(t)
	f.users.Add(&user.User{ID: "u1", Name: "Ana García", Username: "ana"})
	cookie := f.seedSession(t, "s1", "u1")

	rec := f.request(t, cookie)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.lastMeta)
	assert.Equal(t, "u1", f.lastMeta.UserID)
	assert.Equal(t, "Ana García", f.lastMeta.DisplayName)
}

func TestSessionAuthFallsBackToUsername(t *testing.T) {
	f := newFixture(t)
	f.users.Add(&user.User{ID: "u1", Username: "ana"})
	cookie := f.seedSession(t, "s1", "u1")

	rec := f.request(t, cookie)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", f.lastMeta.DisplayName)
}

func TestSessionAuthNoCookie(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), session.ReasonNoCookie)
	assert.Nil(t, f.lastMeta)
}

func TestSessionAuthUnknownSession(t *testing.T) {
	f := newFixture(t)
	token, err := session.NewToken(testSecret, "ghost", time.Now().Add(time.Hour))
	require.NoError(t, err)

	rec := f.request(t, testCookieName+"="+token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), session.ReasonSessionNotFound)
}

func TestSessionAuthDeletedAccount(t *testing.T) {
	f := newFixture(t)
	// Session is valid but the account is gone.
	cookie := f.seedSession(t, "s1", "u-deleted")

	rec := f.request(t, cookie)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), middleware.ReasonUserNotFound)
	assert.Nil(t, f.lastMeta)
}
