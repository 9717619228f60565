package transport_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Dou2020/tasks-manager/pkg/transport"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// dialTestConnection spins up a websocket server that drains inbound frames
// and returns a Connection wrapping the client side of the pair.
func dialTestConnection(t *testing.T, wg *sync.WaitGroup, onMessage transport.MessageHandler, onClose transport.OnCloseHandler) *transport.Connection {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "")
		for {
			if _, _, err := ws.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	cfg := transport.ConnectionConfig{ReadTimeout: 5 * time.Second}
	return transport.NewConnection(context.Background(), wg, ws, cfg, onMessage, onClose, newTestLogger())
}

func TestSendAfterCloseDoesNotPanic(t *testing.T) {
	var wg sync.WaitGroup
	conn := dialTestConnection(t, &wg, func(context.Context, uuid.UUID, []byte) {}, nil)

	conn.Run()
	conn.Close(nil)
	<-conn.Done()

	require.False(t, conn.Alive())
	require.NotPanics(t, func() {
		for i := 0; i < 300; i++ {
			conn.Send([]byte(`{"event":"heartbeat"}`))
		}
	})

	wg.Wait()
}

func TestConcurrentSendDuringClose(t *testing.T) {
	var wg sync.WaitGroup
	conn := dialTestConnection(t, &wg, func(context.Context, uuid.UUID, []byte) {}, nil)
	conn.Run()

	var senders sync.WaitGroup
	require.NotPanics(t, func() {
		for i := 0; i < 8; i++ {
			senders.Add(1)
			go func() {
				defer senders.Done()
				for j := 0; j < 200; j++ {
					conn.Send([]byte(`{"event":"heartbeat"}`))
				}
			}()
		}
		conn.Close(nil)
		senders.Wait()
	})

	<-conn.Done()
	wg.Wait()
}

func TestOnCloseFiresOnce(t *testing.T) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	calls := 0
	conn := dialTestConnection(t, &wg, func(context.Context, uuid.UUID, []byte) {}, func(uuid.UUID, error) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	conn.Run()

	conn.Close(nil)
	conn.Close(nil)
	<-conn.Done()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}
