package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/colthorp/prospect/internal/api"
	"github.com/colthorp/prospect/internal/auth"
	"github.com/colthorp/prospect/internal/cache"
	"github.com/colthorp/prospect/internal/config"
	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/detect"
	"github.com/colthorp/prospect/internal/logging"
	"github.com/colthorp/prospect/internal/metrics"
	"github.com/colthorp/prospect/internal/model"
	"github.com/colthorp/prospect/internal/search"
	"github.com/colthorp/prospect/internal/service"
	"github.com/colthorp/prospect/internal/store"
)

// app holds everything a command needs, built once from configuration.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	registry   *prometheus.Registry
	detector   *detect.Detector
	prospector *service.Prospector
	token      string

	sqlite  *store.SQLite
	closers []func() error
}

// openApp loads configuration and wires the stores, upstream client,
// orchestrator and service. needPlaces requires an API key; cache
// maintenance commands run without one.
func openApp(ctx context.Context, needPlaces bool) (_ *app, err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		token:    resolveToken(cfg.Auth.Token),
		closers:  []func() error{closeLog},
	}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	m := metrics.New(a.registry)

	entries, err := a.entryStore(ctx)
	if err != nil {
		return nil, err
	}
	shared, err := a.sharedStore(ctx)
	if err != nil {
		return nil, err
	}
	verifier, err := a.verifier()
	if err != nil {
		return nil, err
	}

	apiKey := cfg.Places.APIKey
	if apiKey == "" && needPlaces {
		if apiKey, err = core.GetAPIKey(); err != nil {
			return nil, fmt.Errorf("places API key: %w", err)
		}
	}

	client := api.NewClient(api.ClientConfig{
		APIKey:          apiKey,
		PlacesBaseURL:   cfg.Places.PlacesBaseURL,
		InsightsBaseURL: cfg.Places.InsightsBaseURL,
		GeocodeBaseURL:  cfg.Places.GeocodeBaseURL,
		MaxRetries:      cfg.Places.MaxRetries,
		RetryBase:       cfg.Places.RetryBase,
		RatePerSecond:   cfg.Places.RatePerSecond,
		Burst:           cfg.Places.Burst,
		BreakerFailures: cfg.Places.BreakerFailures,
		BreakerTimeout:  cfg.Places.BreakerTimeout,
		Logger:          logger,
		Observer:        m,
	})

	a.detector = detect.NewDetector(
		detect.WithTimeout(cfg.Places.CrawlTimeout),
		detect.WithLogger(logger),
	)

	orchOpts := []search.Option{
		search.WithConfig(search.Config{
			MaxDepth:       cfg.Search.MaxDepth,
			MinRangeWidth:  cfg.Search.MinRangeWidth,
			ResultCap:      cfg.Search.ResultCap,
			EnrichWorkers:  cfg.Search.EnrichWorkers,
			SearchTimeout:  cfg.Places.SearchTimeout,
			DetailTimeout:  cfg.Places.DetailTimeout,
			PlaceTTL:       cfg.Store.PlaceTTL,
			TargetPlatform: cfg.Search.TargetPlatform,
		}),
		search.WithMetrics(m),
		search.WithLogger(logger),
	}
	svcOpts := []service.Option{
		service.WithSearchTTL(cfg.Store.SearchTTL),
		service.WithLogger(logger),
	}
	if shared != nil {
		orchOpts = append(orchOpts, search.WithPlaceCache(shared))
		svcOpts = append(svcOpts, service.WithSharedCache(shared))
	}
	orch := search.NewOrchestrator(client, a.detector, orchOpts...)

	c := cache.New[model.AggregateResult](entries, cache.Options{
		FastCapacity:  cfg.Cache.FastCapacity,
		DurableBudget: cfg.DurableBudgetBytes(),
		DefaultTTL:    cfg.Cache.DefaultTTL,
		WriteQueue:    cfg.Cache.WriteQueue,
		Metrics:       m,
		Logger:        logger,
	})

	a.prospector = service.New(verifier, c, orch, svcOpts...)
	a.closers = append(a.closers, a.prospector.Close)
	return a, nil
}

// openSQLite opens the local database once; the durable tier and the shared
// tables may both live in it.
func (a *app) openSQLite(ctx context.Context) (*store.SQLite, error) {
	if a.sqlite != nil {
		return a.sqlite, nil
	}
	path := a.cfg.Cache.SQLitePath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	s, err := store.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	a.sqlite = s
	a.closers = append(a.closers, s.Close)
	return s, nil
}

func (a *app) entryStore(ctx context.Context) (store.EntryStore, error) {
	switch a.cfg.Cache.Backend {
	case "sqlite":
		return a.openSQLite(ctx)
	case "filesystem":
		return store.NewFilesystemEntryStore(a.cfg.Cache.Dir), nil
	case "memory":
		return store.NewMemoryEntryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", a.cfg.Cache.Backend)
	}
}

// sharedStore returns nil when shared tables are disabled.
func (a *app) sharedStore(ctx context.Context) (store.Store, error) {
	switch a.cfg.Store.Backend {
	case "sqlite":
		return a.openSQLite(ctx)
	case "supabase":
		return store.NewSupabase(a.cfg.Supabase.URL, a.cfg.Supabase.Key)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
}

func (a *app) verifier() (auth.Verifier, error) {
	switch a.cfg.Auth.Mode {
	case "supabase":
		return auth.NewSupabase(a.cfg.Supabase.URL, a.cfg.Supabase.Key)
	default:
		return auth.Static{Token: a.cfg.Auth.Token, UserID: a.cfg.Auth.UserID}, nil
	}
}

// close releases resources in reverse order of acquisition, so pending
// cache writes drain before the database closes.
func (a *app) close() error {
	if dumpMetrics {
		if err := writeMetrics(os.Stderr, a.registry); err != nil {
			a.logger.Warn("write metrics", zap.Error(err))
		}
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// writeMetrics encodes every gathered metric family in the Prometheus text
// format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}
