// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the uikits server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"uikits/config"
	"uikits/internal/cache"
	"uikits/internal/catalog"
	"uikits/internal/npmstats"
	"uikits/internal/pkg/npmclient"
	"uikits/internal/server"
	"uikits/internal/storage"
	"uikits/internal/web"
)

// App represents the main application with all its dependencies.
type App struct {
	config  *config.Config
	logger  *slog.Logger
	storage storage.Storage
	stats   npmstats.Store
	tier    cache.Cache
	catalog *catalog.CachedStore
	npm     *npmstats.Provider
	warmer  *npmstats.Warmer
	server  *server.Server

	// Guarded by shutdownMu.
	cancelWarm context.CancelFunc
	warmDone   chan struct{}
	shutdownMu sync.Mutex
	shutdown   bool

	// Prefetch passes still running. Shutdown waits before closing storage.
	tasks sync.WaitGroup
}

// Options carries process-level collaborators that are not part of Config.
type Options struct {
	Logger *slog.Logger
	// Fetcher overrides the npm client. Used by tests.
	Fetcher npmstats.Fetcher
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{config: cfg, logger: logger}
	if err := a.init(ctx, opts); err != nil {
		if closeErr := a.closeResources(); closeErr != nil {
			return nil, fmt.Errorf("%w (also: close error: %v)", err, closeErr)
		}
		return nil, err
	}

	a.logStartupInfo()
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.config

	st, err := storage.New(ctx, storage.Config{
		Type:   cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{Path: cfg.Storage.SQLite.Path},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoDB.URL,
			Database: cfg.Storage.MongoDB.Database,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.storage = st

	a.stats, err = npmstats.NewStore(ctx, st)
	if err != nil {
		return fmt.Errorf("failed to initialize npm stats store: %w", err)
	}

	a.tier, err = cache.New(cache.Config{
		Type: cfg.Cache.Type,
		TTL:  cfg.Cache.TTL,
		Redis: cache.RedisConfig{
			URL:       cfg.Cache.Redis.URL,
			KeyPrefix: cfg.Cache.Redis.KeyPrefix,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize stats cache: %w", err)
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		clientCfg := npmclient.DefaultConfig()
		clientCfg.BaseURL = cfg.NPM.BaseURL
		clientCfg.Timeout = cfg.NPM.Timeout
		if cfg.NPM.UserAgent != "" {
			clientCfg.UserAgent = cfg.NPM.UserAgent
		}
		fetcher = npmclient.New(clientCfg)
	}

	var tier npmstats.FirstTier
	if a.tier != nil {
		tier = a.tier
	}
	a.npm, err = npmstats.New(npmstats.Config{
		FreshnessWindow: cfg.NPM.Freshness,
		LookbackDays:    cfg.NPM.LookbackDays,
		FirstTier:       tier,
		Logger:          a.logger.With("component", "npmstats"),
	}, a.stats, fetcher)
	if err != nil {
		return fmt.Errorf("failed to initialize npm stats provider: %w", err)
	}

	store, err := catalog.NewStore(ctx, st)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}
	a.catalog = catalog.NewCachedStore(store, cfg.Catalog.MemoTTL)
	a.warmer = npmstats.NewWarmer(a.npm, a.catalog.ListNPMPackages, cfg.NPM.WarmInterval)

	pages, err := web.New(a.catalog, a.npm, a.logger.With("component", "web"))
	if err != nil {
		return fmt.Errorf("failed to initialize pages: %w", err)
	}

	bodyLimit, err := config.ParseBodySizeLimit(cfg.Server.BodySizeLimit)
	if err != nil {
		return fmt.Errorf("invalid body size limit: %w", err)
	}

	a.server = server.New(server.Dependencies{
		Catalog:      a.catalog,
		CatalogCache: a.catalog,
		Stats:        a.npm,
		Pages:        pages,
		Storage:      st,
		Logger:       a.logger,
	}, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   bodyLimit,
	})
	return nil
}

// Catalog returns the memoized catalog store.
func (a *App) Catalog() *catalog.CachedStore {
	return a.catalog
}

// Stats returns the download statistics provider.
func (a *App) Stats() *npmstats.Provider {
	return a.npm
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.server
}

// Seed loads a YAML seed document into the catalog.
func (a *App) Seed(ctx context.Context, r io.Reader) (catalog.SeedResult, error) {
	res, err := catalog.LoadSeed(ctx, a.catalog, r)
	if err != nil {
		return res, fmt.Errorf("seed catalog: %w", err)
	}
	a.logger.Info("catalog seeded",
		"tags", res.Tags,
		"labels", res.Labels,
		"frameworks", res.Frameworks,
		"libraries", res.Libraries,
		"pages", res.Pages,
	)
	return res, nil
}

// Prefetch loads download statistics for every catalog package once and
// returns how many have data. It returns 0 once Shutdown has begun.
func (a *App) Prefetch(ctx context.Context) int {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return 0
	}
	a.tasks.Add(1)
	a.shutdownMu.Unlock()
	defer a.tasks.Done()

	return a.warmer.WarmOnce(ctx)
}

// Start starts the background warmer (when configured) and the HTTP server.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}

	if a.config.NPM.WarmInterval > 0 {
		a.shutdownMu.Lock()
		if a.shutdown {
			a.shutdownMu.Unlock()
			return nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		a.cancelWarm = cancel
		a.warmDone = done
		a.shutdownMu.Unlock()
		go func() {
			defer close(done)
			a.warmer.Run(ctx)
		}()
	}

	a.logger.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			a.logger.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order.
// Order:
// 1. HTTP server shutdown, honoring the passed context.
// 2. Background warmer stop, then in-flight prefetch passes.
// 3. First-tier cache, stats store, catalog and storage close.
//
// Shutdown is idempotent. It attempts every step and returns a joined error.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	cancelWarm, warmDone := a.cancelWarm, a.warmDone
	a.shutdownMu.Unlock()

	a.logger.Info("shutting down application...")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if cancelWarm != nil {
		cancelWarm()
		select {
		case <-warmDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("warmer stop: %w", ctx.Err()))
		}
	}

	tasksDone := make(chan struct{})
	go func() {
		a.tasks.Wait()
		close(tasksDone)
	}()
	select {
	case <-tasksDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("prefetch stop: %w", ctx.Err()))
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

// closeResources closes whatever init managed to open, newest first.
func (a *App) closeResources() error {
	var errs []error
	if a.tier != nil {
		if err := a.tier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stats cache close: %w", err))
		}
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("catalog close: %w", err))
		}
	}
	if a.stats != nil {
		if err := a.stats.Close(); err != nil {
			errs = append(errs, fmt.Errorf("npm stats store close: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Server.MasterKey == "" {
		a.logger.Warn("UIKITS_MASTER_KEY not set - /api/revalidate is disabled")
	} else {
		a.logger.Info("revalidation enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		a.logger.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		a.logger.Info("prometheus metrics disabled")
	}

	a.logger.Info("storage configured", "type", a.storage.Type())
	a.logger.Info("npm stats configured",
		"base_url", cfg.NPM.BaseURL,
		"freshness", cfg.NPM.Freshness,
		"lookback_days", cfg.NPM.LookbackDays,
		"first_tier", cfg.Cache.Type,
	)
	if cfg.NPM.WarmInterval > 0 {
		a.logger.Info("npm stats warmer enabled", "interval", cfg.NPM.WarmInterval)
	}
}
