// Package app wires configuration into the long-lived services shared by the
// CLI commands and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholarship-finder/internal/catalog"
	"github.com/JakeFAU/scholarship-finder/internal/clock/system"
	"github.com/JakeFAU/scholarship-finder/internal/config"
	"github.com/JakeFAU/scholarship-finder/internal/coordinator"
	"github.com/JakeFAU/scholarship-finder/internal/extract"
	"github.com/JakeFAU/scholarship-finder/internal/fetcher"
	collyfetcher "github.com/JakeFAU/scholarship-finder/internal/fetcher/colly"
	pagehash "github.com/JakeFAU/scholarship-finder/internal/hash/sha256"
	"github.com/JakeFAU/scholarship-finder/internal/id/uuid"
	"github.com/JakeFAU/scholarship-finder/internal/identity"
	"github.com/JakeFAU/scholarship-finder/internal/logging"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
	"github.com/JakeFAU/scholarship-finder/internal/policy/ratelimit"
	"github.com/JakeFAU/scholarship-finder/internal/policy/retry"
	pubmemory "github.com/JakeFAU/scholarship-finder/internal/publisher/memory"
	"github.com/JakeFAU/scholarship-finder/internal/publisher/pubsub"
	"github.com/JakeFAU/scholarship-finder/internal/storage"
	"github.com/JakeFAU/scholarship-finder/internal/storage/gcs"
	"github.com/JakeFAU/scholarship-finder/internal/storage/local"
	"github.com/JakeFAU/scholarship-finder/internal/storage/memory"
	"github.com/JakeFAU/scholarship-finder/internal/storage/postgres"
	"github.com/JakeFAU/scholarship-finder/internal/storage/sqlite"
)

// eventBacklog bounds the in-memory event log used when Pub/Sub is not configured.
const eventBacklog = 256

type publisher interface {
	coordinator.Publisher
	Close() error
}

// App holds the services built from one configuration.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	store       opportunity.Store
	runs        opportunity.RunStore
	catalog     *catalog.Catalog
	coordinator *coordinator.Coordinator
	refresher   *coordinator.Refresher

	clock     opportunity.Clock
	robots    *fetcher.RobotsEnforcer
	publisher publisher
	closers   []func() error
}

// New builds every service described by cfg. On error, anything already
// opened is closed before returning.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog.Default(),
		clock:   system.New(),
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	if err := a.openStore(ctx); err != nil {
		return err
	}
	if cfg.Store.SeedOnStart {
		n, err := catalog.Populate(ctx, a.store, false)
		if err != nil {
			return fmt.Errorf("seed store: %w", err)
		}
		if n > 0 {
			a.logger.Info("seeded store", zap.Int("records", n))
		}
	}

	archive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	if err := a.openPublisher(ctx); err != nil {
		return err
	}
	if cfg.Fetcher.RespectRobots {
		a.robots = fetcher.NewRobotsEnforcer(nil, cfg.Fetcher.RobotsAgent, logging.Component(a.logger, "robots"))
	}

	extractor := extract.New(a.clock, logging.Component(a.logger, "extract"))
	deps := coordinator.RefresherDeps{
		Store:     a.store,
		Runs:      a.runs,
		Catalog:   a.catalog,
		NewPager:  func() coordinator.Pager { return a.NewPager(false) },
		Extractor: extractor,
		Archive:   archive,
		IDs:       uuid.New(),
		Publisher: a.publisher,
		Clock:     a.clock,
		Logger:    logging.Component(a.logger, "refresher"),
	}
	if archive != nil {
		deps.Hasher = pagehash.New()
	}
	refresher, err := coordinator.NewRefresher(cfg.RefreshConfig(), deps)
	if err != nil {
		return fmt.Errorf("build refresher: %w", err)
	}
	a.refresher = refresher
	a.closers = append(a.closers, func() error {
		refresher.Close()
		return nil
	})

	a.coordinator = coordinator.New(cfg.CoordinatorConfig(), a.store, a.catalog, a.NewPager(true), extractor, coordinator.Options{
		Refresher: refresher,
		Logger:    logging.Component(a.logger, "coordinator"),
	})
	return nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.cfg
	logger := logging.Component(a.logger, "store")
	switch cfg.Store.Driver {
	case config.DriverMemory:
		a.store = memory.NewRecordStore(a.clock)
		a.runs = memory.NewRunStore(a.clock)
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.Store.SQLitePath, a.clock, logger)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.store, a.runs = s, s
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.PostgresConfig(), a.clock, logger)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		a.store, a.runs = s, s
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			a.store, a.runs = nil, nil
			return fmt.Errorf("migrate postgres store: %w", err)
		}
	default:
		return fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
	a.logger.Info("store ready", zap.String("driver", cfg.Store.Driver))
	return nil
}

func (a *App) openArchive(ctx context.Context) (storage.BlobStore, error) {
	cfg := a.cfg
	switch cfg.Archive.Driver {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveLocal:
		bs, err := local.New(cfg.LocalArchiveConfig())
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		return bs, nil
	case config.ArchiveGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		bs, err := gcs.New(client, cfg.GCSArchiveConfig())
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		a.logger.Info("archiving pages to gcs", zap.String("bucket", cfg.Archive.Bucket))
		return bs, nil
	default:
		return nil, fmt.Errorf("unknown archive driver: %s", cfg.Archive.Driver)
	}
}

func (a *App) openPublisher(ctx context.Context) error {
	projectID := a.cfg.PubSub.ProjectID
	if projectID == "" {
		a.publisher = pubmemory.New(eventBacklog, logging.Component(a.logger, "events"))
	} else {
		p, err := pubsub.Dial(ctx, projectID)
		if err != nil {
			return fmt.Errorf("connect pubsub: %w", err)
		}
		a.publisher = p
		a.logger.Info("publishing refresh events", zap.String("project", projectID), zap.String("topic", a.cfg.Refresh.Topic))
	}
	a.closers = append(a.closers, a.publisher.Close)
	return nil
}

// NewPager builds a fetcher with its own transport, governor and identity.
// quick selects the short foreground timeouts.
func (a *App) NewPager(quick bool) *fetcher.Fetcher {
	cfg := a.cfg
	opts := fetcher.Options{
		Governor: ratelimit.New(cfg.RateLimitConfig(), a.clock.Now),
		Rotator:  identity.NewRotator(cfg.IdentityConfig(), nil, a.clock.Now),
		Retry:    retry.New(cfg.RetryConfig(), nil),
		Recorder: a.store,
		Clock:    a.clock,
		Logger:   logging.Component(a.logger, "fetcher"),
	}
	if a.robots != nil {
		opts.Robots = a.robots
	}
	fc := cfg.FetcherConfig(quick)
	transport := collyfetcher.New(collyfetcher.Config{
		Timeout:     fc.Profile.TimeoutMax,
		MaxBodySize: cfg.Fetcher.MaxBodySize,
	})
	return fetcher.New(transport, fc, opts)
}

// GetConfig returns the configuration the services were built from.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the root logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetStore returns the cache store.
func (a *App) GetStore() opportunity.Store {
	return a.store
}

// GetCoordinator returns the search coordinator.
func (a *App) GetCoordinator() *coordinator.Coordinator {
	return a.coordinator
}

// GetRefresher returns the background refresher.
func (a *App) GetRefresher() *coordinator.Refresher {
	return a.refresher
}

// Ready reports whether the store answers queries.
func (a *App) Ready(ctx context.Context) error {
	if a.store == nil {
		return errors.New("store not open")
	}
	if _, err := a.store.Count(ctx, ""); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	return nil
}

// Events returns the in-memory event log, or nil when events go to Pub/Sub.
func (a *App) Events() []pubmemory.PublishedMessage {
	if p, ok := a.publisher.(*pubmemory.Publisher); ok {
		return p.Messages()
	}
	return nil
}

// Close stops background work and releases every backend, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("error closing store", zap.Error(err))
		}
		a.store = nil
	}
	_ = a.logger.Sync()
}
