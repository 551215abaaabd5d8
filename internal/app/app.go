// Package app initializes and holds long-lived services for a sync run,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crateloft/cratesync/internal/clock/system"
	"github.com/crateloft/cratesync/internal/config"
	"github.com/crateloft/cratesync/internal/history"
	"github.com/crateloft/cratesync/internal/logging"
	"github.com/crateloft/cratesync/internal/mirror"
	mirrorgcs "github.com/crateloft/cratesync/internal/mirror/gcs"
	mirrorlocal "github.com/crateloft/cratesync/internal/mirror/local"
	mirrormem "github.com/crateloft/cratesync/internal/mirror/memory"
	"github.com/crateloft/cratesync/internal/publisher"
	pubmem "github.com/crateloft/cratesync/internal/publisher/memory"
	pubgcp "github.com/crateloft/cratesync/internal/publisher/pubsub"
	"github.com/crateloft/cratesync/internal/storage/postgres"
)

// App holds the shared services a sync run depends on: the switchable
// logger, the metrics registry, and the optional history, mirror, and event
// providers selected by configuration. Built once per command invocation.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Switch   *logging.Switch
	Registry *prometheus.Registry
	Clock    *system.Clock

	History   history.RunRepository // nil when provider is "none"
	Mirror    *mirror.Mirrorer      // nil when provider is "none"
	Publisher publisher.Publisher   // nil when provider is "none"

	closers []func()
}

// New builds the container from configuration, failing fast when any
// configured provider cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, sw, err := logging.NewSwitchable(cfg.Logging.Development, cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Switch:   sw,
		Registry: prometheus.NewRegistry(),
		Clock:    system.New(),
	}

	if err := a.initHistory(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initMirror(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) initHistory(ctx context.Context) error {
	cfg := a.Config.History
	switch cfg.Provider {
	case "none":
		return nil
	case "memory":
		a.History = history.NewMemoryRepository()
		return nil
	case "postgres":
		if cfg.DSN == "" {
			return fmt.Errorf("history provider is postgres but history.dsn is not set")
		}
		store, err := postgres.NewHistoryStore(ctx, postgres.HistoryStoreConfig{
			DSN:   cfg.DSN,
			Table: cfg.Table,
		})
		if err != nil {
			return fmt.Errorf("connect history store: %w", err)
		}
		a.History = store
		a.closers = append(a.closers, store.Close)
		return nil
	default:
		return fmt.Errorf("unknown history provider %q", cfg.Provider)
	}
}

func (a *App) initMirror(ctx context.Context) error {
	cfg := a.Config.Mirror
	var store mirror.BlobStore
	switch cfg.Provider {
	case "none":
		return nil
	case "local":
		if cfg.Dir == "" {
			return fmt.Errorf("mirror provider is local but mirror.dir is not set")
		}
		s, err := mirrorlocal.New(mirrorlocal.Config{BaseDir: cfg.Dir})
		if err != nil {
			return fmt.Errorf("init local mirror: %w", err)
		}
		store = s
	case "memory":
		store = mirrormem.NewBlobStore()
	case "gcs":
		if cfg.Bucket == "" {
			return fmt.Errorf("mirror provider is gcs but mirror.bucket is not set")
		}
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		s, err := mirrorgcs.New(client, mirrorgcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs mirror: %w", err)
		}
		store = s
		a.closers = append(a.closers, func() {
			if cerr := client.Close(); cerr != nil {
				a.Logger.Warn("close storage client", zap.Error(cerr))
			}
		})
	default:
		return fmt.Errorf("unknown mirror provider %q", cfg.Provider)
	}

	m, err := mirror.New(store, mirror.Config{
		Prefix: cfg.Prefix,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("init mirrorer: %w", err)
	}
	a.Mirror = m
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	cfg := a.Config.Events
	switch cfg.Provider {
	case "none":
		return nil
	case "memory":
		a.Publisher = pubmem.New()
		return nil
	case "pubsub":
		if cfg.ProjectID == "" || cfg.Topic == "" {
			return fmt.Errorf("events provider is pubsub but events.project_id or events.topic is not set")
		}
		client, err := gpubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		pub, err := pubgcp.New(client)
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.Publisher = pub
		a.closers = append(a.closers, func() {
			pub.Close()
			if cerr := client.Close(); cerr != nil {
				a.Logger.Warn("close pubsub client", zap.Error(cerr))
			}
		})
		return nil
	default:
		return fmt.Errorf("unknown events provider %q", cfg.Provider)
	}
}

// Close shuts down providers in reverse initialization order and flushes
// the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	// Stderr sync failures on process exit are expected on some platforms.
	_ = a.Logger.Sync()
}
