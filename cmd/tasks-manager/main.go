package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dou2020/tasks-manager/internal/server"
	"github.com/Dou2020/tasks-manager/pkg/config"
	"github.com/Dou2020/tasks-manager/pkg/logging"
	"github.com/Dou2020/tasks-manager/pkg/session"
	"github.com/Dou2020/tasks-manager/pkg/user"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	sessions, err := newSessionStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize session store", slog.Any("error", err))
		os.Exit(1)
	}
	users, err := newUserStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize user store", slog.Any("error", err))
		os.Exit(1)
	}
	bridge := session.NewBridge(logger, sessions, []byte(cfg.Session.Secret), cfg.Session.CookieName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := server.NewApp(logger, ctx, cfg, bridge, users)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}

func newSessionStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case "valkey":
		return session.NewValkeyStore(cfg.Session.ValkeyAddr)
	default:
		return session.NewMemoryStore(), nil
	}
}

func newUserStore(cfg *config.Config) (user.Store, error) {
	switch cfg.Users.Backend {
	case "postgres":
		return user.NewPostgresStore(cfg.Users.PostgresDSN)
	default:
		return user.NewMemoryStore(), nil
	}
}
