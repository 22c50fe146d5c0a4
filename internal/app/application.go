// Package app assembles the gateway's components and owns their
// lifecycle. Initialization follows dependency order:
// Store → Broker → Registry → Limiter → Presence → Rooms → Router →
// WebSocket → API → HTTP.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devastator99/socratic-gateway/internal/api"
	"github.com/devastator99/socratic-gateway/internal/auth"
	"github.com/devastator99/socratic-gateway/internal/broker"
	"github.com/devastator99/socratic-gateway/internal/config"
	"github.com/devastator99/socratic-gateway/internal/presence"
	"github.com/devastator99/socratic-gateway/internal/ratelimit"
	"github.com/devastator99/socratic-gateway/internal/registry"
	"github.com/devastator99/socratic-gateway/internal/rooms"
	"github.com/devastator99/socratic-gateway/internal/router"
	"github.com/devastator99/socratic-gateway/internal/store"
	"github.com/devastator99/socratic-gateway/internal/websocket"
)

// Application coordinates all gateway components.
type Application struct {
	config     *config.Config
	store      *store.Store
	broker     *broker.Broker
	registry   *registry.Registry
	limiter    *ratelimit.Limiter
	presence   *presence.Monitor
	router     *router.Router
	httpServer *http.Server
	logger     *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New builds the component graph from configuration. Nothing starts
// running until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	messageStore, err := store.Open(store.Config{
		Path:         cfg.Store.Path,
		WriteTimeout: cfg.Store.WriteTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open message store: %w", err)
	}

	msgBroker := broker.New(cfg.Broker.RecentBuffer, logger)
	connRegistry := registry.New()
	limiter := ratelimit.New()
	presenceMonitor := presence.New(cfg.Presence.Threshold, cfg.Presence.SweepInterval, msgBroker, logger)
	roomManager := rooms.NewManager(messageStore)

	frameRouter := router.New(
		connRegistry, msgBroker, messageStore, roomManager,
		limiter, presenceMonitor, cfg.Limits, logger,
	)

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	wsHandler := websocket.NewHandler(frameRouter, verifier, cfg.WebSocket, logger)

	apiServer := api.NewServer(
		messageStore, roomManager, connRegistry, presenceMonitor,
		wsHandler, logger,
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      messageStore,
		broker:     msgBroker,
		registry:   connRegistry,
		limiter:    limiter,
		presence:   presenceMonitor,
		router:     frameRouter,
		httpServer: httpServer,
		logger:     logger,
	}, nil
}

// Start launches the background loops and the HTTP listener. It returns
// once the listener is accepting, or with the startup error.
func (a *Application) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	group, groupCtx := errgroup.WithContext(runCtx)
	a.group = group

	group.Go(func() error {
		a.presence.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		a.limiter.Run(groupCtx, a.config.Limits.CleanupInterval, a.config.Limits.EntryMaxIdle)
		return nil
	})

	serverErr := make(chan error, 1)
	group.Go(func() error {
		a.logger.Info("gateway listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	select {
	case err := <-serverErr:
		cancel()
		return err
	case <-time.After(100 * time.Millisecond):
		a.logger.Info("gateway started")
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: listener first so no new
// frames arrive, then background loops, then the store.
func (a *Application) Stop(ctx context.Context) error {
	a.logger.Info("gateway shutting down")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}

	// Close live connections so their read pumps unwind through the
	// router's disconnect path.
	for _, conn := range a.registry.All() {
		_ = conn.Close()
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.group != nil {
		if err := a.group.Wait(); err != nil {
			a.logger.Warn("background loop", "error", err)
		}
	}

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	a.logger.Info("gateway stopped")
	return nil
}
