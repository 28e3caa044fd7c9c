package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/marketsync/internal/auth"
	"github.com/vovakirdan/marketsync/internal/config"
	"github.com/vovakirdan/marketsync/internal/core"
	"github.com/vovakirdan/marketsync/internal/store"
	"github.com/vovakirdan/marketsync/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/marketsync/internal/transport/http"
)

// App wires together core and transport layers of the relay.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	bus             *core.Bus
	store           store.Store
	log             *zerolog.Logger
}

// JWTConfig derives the token settings from relay configuration.
func JWTConfig(cfg config.RelayConfig) *auth.JWTConfig {
	ttl := cfg.JWTTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      ttl,
	}
}

// New constructs the relay with provided configuration.
func New(cfg config.RelayConfig, logger *zerolog.Logger) (*App, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("relay jwt_secret is required")
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	bus, err := core.NewBus(logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init bus: %w", err)
	}

	authService := auth.NewService(JWTConfig(cfg))
	hub := core.NewHub(st, logger)
	core.ConsumeInto(bus, hub)

	server := transporthttp.NewServer(hub, bus, authService, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		bus:             bus,
		store:           st,
		log:             logger,
	}, nil
}

// Run listens on the configured address and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.cleanup()
		return fmt.Errorf("listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the hub, the bus and the HTTP server on ln.
// HTTP traffic is accepted only once the bus consumers are subscribed.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return a.bus.Run(gctx)
	})

	select {
	case <-a.bus.Running():
	case <-gctx.Done():
		_ = ln.Close()
		return g.Wait()
	}

	a.log.Info().Str("addr", ln.Addr().String()).Msg("relay listening")

	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes the bus, the database and other resources.
func (a *App) cleanup() {
	if err := a.bus.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close bus")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
