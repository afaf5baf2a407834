package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"example.com/teamboard/internal/auth"
	"example.com/teamboard/internal/config"
	httphandlers "example.com/teamboard/internal/handler/http"
	"example.com/teamboard/internal/repository"
	"example.com/teamboard/internal/storage/memory"
	sqlstore "example.com/teamboard/internal/storage/sql"
	"example.com/teamboard/internal/usecase"
	"example.com/teamboard/internal/ws"
)

type Store interface {
	repository.TaskRepository
	repository.UserRepository
}

// App wires the store, the hub and the handlers together. The hub is a
// process-scoped component with an explicit lifecycle: Run starts its loop,
// cancelling the context drains every live session.
type App struct {
	Config config.Config
	Router http.Handler
	Store  Store
	Hub    *ws.Hub
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var store Store
	switch cfg.Storage {
	case "sql":
		s, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("opening sql store: %w", err)
		}
		store = s
	default:
		store = memory.New()
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	hub := ws.NewHub(logger)

	tasks := usecase.NewTaskService(store, hub)
	users := usecase.NewUserService(store, tokens)

	router := httphandlers.New(tasks, users, tokens, ws.NewHandler(hub, tokens, logger), logger)
	return &App{
		Config: cfg,
		Router: router,
		Store:  store,
		Hub:    hub,
	}, nil
}

// Run blocks on the hub loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	a.Hub.Run(ctx)
}
