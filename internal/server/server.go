package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Dou2020/tasks-manager/internal/presence"
	"github.com/Dou2020/tasks-manager/internal/router"
	"github.com/Dou2020/tasks-manager/internal/server/middleware"
	"github.com/Dou2020/tasks-manager/pkg/config"
	"github.com/Dou2020/tasks-manager/pkg/session"
	"github.com/Dou2020/tasks-manager/pkg/transport"
	"github.com/Dou2020/tasks-manager/pkg/user"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type App struct {
	logger      *slog.Logger
	hub         *presence.Hub
	eventRouter *router.EventRouter
	wg          sync.WaitGroup
	http        *http.Server
	config      *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, bridge *session.Bridge, users user.Store) *App {
	hub := presence.NewHub(logger, cfg.Presence.SweepInterval)
	eventRouter := router.NewEventRouter(logger, hub)

	app := &App{
		logger:      logger,
		hub:         hub,
		eventRouter: eventRouter,
		config:      cfg,
		ctx:         rootCtx,
	}

	r := mux.NewRouter()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	r.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewSessionAuth(logger, bridge, users),
			middleware.NewConnectionLimiter(
				logger,
				hub.ConnectionCount,
				hub.CloseOldestConnection,
				app.config.Server.ConnectionLimit,
			),
		),
	)
	r.HandleFunc("/internal/broadcast", app.broadcastHandler(hub)).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	app.http = &http.Server{Addr: app.config.Server.Address, Handler: r, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

// Broadcaster exposes the fan-out handle for an in-process mutation layer.
func (a *App) Broadcaster() presence.Broadcaster {
	return a.hub
}

func (a *App) Run() error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.eventRouter.HandleMessage,
		nil,
		a.logger,
	)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Removing connection from presence state", slog.String("connID", id.String()))
		a.hub.Disconnect(id)
	})

	a.hub.Admit(conn.ID(), reqMeta.UserID, reqMeta.DisplayName, conn)

	connLogger.Info("User connection fully established", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	a.hub.CloseAll(errors.New("graceful shutdown"))

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
