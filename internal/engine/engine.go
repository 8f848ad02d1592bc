package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nkkko/verse/internal/api"
	"github.com/nkkko/verse/internal/config"
	"github.com/nkkko/verse/internal/lockmanager"
	"github.com/nkkko/verse/internal/notifier"
	"github.com/nkkko/verse/internal/realtime"
	"github.com/nkkko/verse/internal/storage"
	"github.com/nkkko/verse/internal/telemetry"
	"github.com/nkkko/verse/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Engine owns the daemon's components: the REST client, the push channel,
// the session built on them, snapshot storage and the control API
type Engine struct {
	config    *config.Config
	client    *client.Client
	channel   *realtime.Manager
	notifier  *notifier.Notifier
	locks     *lockmanager.LockManager
	snapshots storage.SnapshotStore
	session   *Session
	api       *api.API
	logger    zerolog.Logger

	telemetryFn func(context.Context) error
}

// CreateEngine creates a new Engine with all components initialized from cfg
func CreateEngine(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := append(cfg.ToClientOptions(), client.WithTransport(telemetry.Transport(nil)))
	apiClient, err := client.New(cfg.API.BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	var snapshots storage.SnapshotStore
	if cfg.Storage.Enabled {
		if !cfg.Storage.InMemory {
			if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		snapshots, err = storage.NewStorage(cfg.ToStorageConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize snapshot storage: %w", err)
		}
	}

	channel := realtime.NewManager(cfg.ToRealtimeConfig())
	n := notifier.NewNotifier(cfg.ToNotifierConfig())
	locks := lockmanager.NewLockManager(cfg.ToLockManagerConfig())

	session := NewSession(SessionConfig{
		Realtime:              cfg.Realtime.Enabled,
		RefreshFriendsOnEvent: cfg.Realtime.RefreshFriendsOnEvent,
	}, apiClient, channel, n, locks, snapshots)

	e := NewEngine(cfg, session)
	e.client = apiClient
	e.channel = channel
	e.notifier = n
	e.locks = locks
	e.snapshots = snapshots
	return e, nil
}

// NewEngine creates an engine around an existing session
func NewEngine(cfg *config.Config, session *Session) *Engine {
	e := &Engine{
		config:   cfg,
		session:  session,
		notifier: session.notifier,
		locks:    session.locks,
		logger:   log.With().Str("component", "engine").Logger(),
	}
	if cfg.Server.Enabled {
		e.api = api.NewAPI(cfg.ToAPIConfig(), session)
	}
	return e
}

// Session returns the engine's session
func (e *Engine) Session() *Session {
	return e.session
}

// Start signs in when a token is configured and runs until ctx is done
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info().Str("api", e.config.API.BaseURL).Msg("Starting verse engine")

	telShutdown, err := telemetry.Setup(ctx, e.config.ToTelemetryConfig())
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to set up telemetry, continuing without it")
	} else {
		e.telemetryFn = telShutdown
	}

	if token := e.config.API.Token; token != "" {
		if _, err := e.session.Login(ctx, token); err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
	} else {
		e.logger.Warn().Msg("No API token configured, running signed out")
	}

	g, ctx := errgroup.WithContext(ctx)

	if e.api != nil {
		g.Go(func() error {
			return e.api.Start(ctx)
		})
	}

	if interval := time.Duration(e.config.Storage.SnapshotIntervalSeconds) * time.Second; e.snapshots != nil && interval > 0 {
		g.Go(func() error {
			e.snapshotLoop(ctx, interval)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("error running engine: %w", err)
	}

	e.logger.Info().Msg("Verse engine stopped")
	return nil
}

// snapshotLoop saves the membership periodically so a crash loses little
func (e *Engine) snapshotLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.session.SaveSnapshot(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn().Err(err).Msg("Periodic snapshot failed")
			}
		}
	}
}

// Shutdown stops the engine
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info().Msg("Shutting down verse engine")

	var errs []error

	// Stop accepting control requests first
	if e.api != nil {
		if err := e.api.Shutdown(ctx); err != nil {
			e.logger.Error().Err(err).Msg("Failed to shut down API")
			errs = append(errs, err)
		}
	}

	if err := e.session.Close(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to close session")
		errs = append(errs, err)
	}

	if e.notifier != nil {
		if err := e.notifier.Close(); err != nil {
			e.logger.Error().Err(err).Msg("Failed to close notifier")
			errs = append(errs, err)
		}
	}

	// Storage goes last; the session saves into it on close
	if e.snapshots != nil {
		if err := e.snapshots.Close(); err != nil {
			e.logger.Error().Err(err).Msg("Failed to close snapshot storage")
			errs = append(errs, err)
		}
	}

	if e.telemetryFn != nil {
		if err := e.telemetryFn(ctx); err != nil {
			e.logger.Error().Err(err).Msg("Failed to shut down telemetry")
		}
	}

	return errors.Join(errs...)
}
