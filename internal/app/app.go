package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pixelfold/pixchat-server/internal/auth"
	"github.com/pixelfold/pixchat-server/internal/blob"
	"github.com/pixelfold/pixchat-server/internal/chat"
	"github.com/pixelfold/pixchat-server/internal/config"
	"github.com/pixelfold/pixchat-server/internal/log"
	"github.com/pixelfold/pixchat-server/internal/realtime"
	"github.com/pixelfold/pixchat-server/internal/store"
	"github.com/pixelfold/pixchat-server/internal/store/sqlite"
	transporthttp "github.com/pixelfold/pixchat-server/internal/transport/http"
)

// App wires together storage, realtime and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	blobs, err := blob.NewLocal(cfg.BlobDir, cfg.BlobBaseURL)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	broker := realtime.NewBroker()
	svc := chat.NewService(st, blobs, broker, log.WithComponent(logger, "chat"))
	notifier := chat.NewNotifier(broker, cfg.TypingDebounce)

	server := transporthttp.NewServer(svc, notifier, broker, authService, *cfg, log.WithComponent(logger, "http"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
