// Package app builds the long-lived harvester services from configuration
// and hands them to the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/clock/system"
	"github.com/JakeFAU/job-harvester/internal/config"
	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/dispatcher"
	"github.com/JakeFAU/job-harvester/internal/freshness"
	"github.com/JakeFAU/job-harvester/internal/httpclient"
	iduuid "github.com/JakeFAU/job-harvester/internal/id/uuid"
	"github.com/JakeFAU/job-harvester/internal/persist"
	"github.com/JakeFAU/job-harvester/internal/progress"
	"github.com/JakeFAU/job-harvester/internal/progress/sinks"
	kafkapub "github.com/JakeFAU/job-harvester/internal/publisher/kafka"
	memorypub "github.com/JakeFAU/job-harvester/internal/publisher/memory"
	pubsubpub "github.com/JakeFAU/job-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/job-harvester/internal/source"
	"github.com/JakeFAU/job-harvester/internal/storage"
	"github.com/JakeFAU/job-harvester/internal/storage/gcs"
	"github.com/JakeFAU/job-harvester/internal/storage/local"
	"github.com/JakeFAU/job-harvester/internal/storage/memory"
	"github.com/JakeFAU/job-harvester/internal/storage/postgres"
	redisraw "github.com/JakeFAU/job-harvester/internal/storage/redis"
	"github.com/JakeFAU/job-harvester/internal/store"
	"github.com/JakeFAU/job-harvester/internal/worker"

	// Adapters register themselves with the source registry.
	_ "github.com/JakeFAU/job-harvester/internal/source/jobkorea"
	_ "github.com/JakeFAU/job-harvester/internal/source/saramin"
	_ "github.com/JakeFAU/job-harvester/internal/source/wanted"
)

// Option customizes App construction.
type Option func(*options)

type options struct {
	transport  http.RoundTripper
	sleeper    worker.Sleeper
	clock      crawler.Clock
	registerer prometheus.Registerer
}

// WithTransport routes every session's HTTP traffic through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithPageSleeper replaces the pause between listing pages.
func WithPageSleeper(s worker.Sleeper) Option {
	return func(o *options) {
		o.sleeper = s
	}
}

// WithClock overrides the wall clock.
func WithClock(c crawler.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithRegisterer registers the progress collectors on reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// App holds the shared services: stores, notifier, progress hub and the
// dispatcher that runs source sessions over them.
type App struct {
	cfg        config.Config
	opts       options
	logger     *zap.Logger
	pool       *pgxpool.Pool
	relational crawler.RelationalStore
	runs       store.RunRepository
	raw        crawler.RawStore
	publisher  crawler.Publisher
	persister  *persist.Coordinator
	hub        *progress.Hub
	dispatcher *dispatcher.Dispatcher
	closers    []func() error
}

// New initializes every service named by cfg and fails fast on the first
// one that cannot start. Whatever was already opened is released on error.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	platforms, err := cfg.Platforms()
	if err != nil {
		return nil, err
	}
	o := options{clock: system.New()}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, opts: o, logger: logger}
	for _, step := range []func(context.Context) error{a.initStores, a.initRaw, a.initPublisher, a.initProgress} {
		if err := step(ctx); err != nil {
			if cerr := a.closeResources(); cerr != nil {
				logger.Warn("release partially initialized services", zap.Error(cerr))
			}
			return nil, err
		}
	}

	a.persister = persist.New(a.relational, a.raw, logger,
		persist.WithPublisher(a.publisher),
		persist.WithClock(o.clock),
	)
	a.dispatcher = dispatcher.New(platforms, a.buildSession, iduuid.New(), o.clock, logger)
	logger.Info("application services initialized",
		zap.String("db", cfg.DB.Provider),
		zap.String("raw", cfg.Raw.Provider),
		zap.String("notify", cfg.Notify.Provider),
		zap.Int("sources", len(platforms)),
	)
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	switch a.cfg.DB.Provider {
	case "postgres":
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("init relational store: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if a.cfg.DB.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool); err != nil {
				return err
			}
		}
		jobs, err := postgres.NewJobStore(pool, a.opts.clock)
		if err != nil {
			return err
		}
		a.relational = jobs
		a.runs = postgres.NewRunStore(pool)
	case "memory":
		a.logger.Warn("using in-memory relational store; nothing survives a restart")
		a.relational = memory.NewRelationalStore(a.opts.clock)
		a.runs = memory.NewRunStore()
	default:
		return fmt.Errorf("unknown db provider: %s", a.cfg.DB.Provider)
	}
	return nil
}

func (a *App) initRaw(ctx context.Context) error {
	switch a.cfg.Raw.Provider {
	case "gcs":
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		raw, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Raw.GCS.Bucket, Prefix: a.cfg.Raw.GCS.Prefix})
		if err != nil {
			return fmt.Errorf("init raw store: %w", err)
		}
		a.raw = raw
	case "redis":
		raw, err := redisraw.New(redisraw.Config{
			Addr:     a.cfg.Raw.Redis.Addr,
			Password: a.cfg.Raw.Redis.Password,
			DB:       a.cfg.Raw.Redis.DB,
			Prefix:   a.cfg.Raw.Redis.Prefix,
			TTL:      a.cfg.Raw.Redis.TTL,
		})
		if err != nil {
			return fmt.Errorf("init raw store: %w", err)
		}
		a.closers = append(a.closers, raw.Close)
		a.raw = raw
	case "local":
		raw, err := local.New(local.Config{BaseDir: a.cfg.Raw.Local.Dir})
		if err != nil {
			return fmt.Errorf("init raw store: %w", err)
		}
		a.raw = raw
	case "memory":
		a.raw = memory.NewRawStore()
	case "noop":
		a.logger.Info("raw archive disabled; envelopes are discarded")
		a.raw = storage.NoOpRawStore{}
	default:
		return fmt.Errorf("unknown raw provider: %s", a.cfg.Raw.Provider)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.cfg.Notify.Provider {
	case "pubsub":
		pub, err := pubsubpub.Connect(ctx, a.cfg.Notify.PubSub.ProjectID, a.cfg.Notify.PubSub.Topic)
		if err != nil {
			return fmt.Errorf("init notifier: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.publisher = pub
	case "kafka":
		pub, err := kafkapub.New(a.cfg.Notify.Kafka.Brokers, a.cfg.Notify.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("init notifier: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.publisher = pub
	case "memory":
		a.publisher = memorypub.New()
	case "none", "":
	default:
		return fmt.Errorf("unknown notify provider: %s", a.cfg.Notify.Provider)
	}
	return nil
}

func (a *App) initProgress(context.Context) error {
	promSink, err := sinks.NewPrometheusSink(a.opts.registerer)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		Logger:         a.logger,
	},
		sinks.NewStoreSink(a.runs, a.logger),
		sinks.NewLogSink(a.logger),
		promSink,
	)
	return nil
}

// buildSession is the dispatcher's SessionFactory: every session gets its
// own HTTP client so connection pools and admission gates never leak
// between sources.
func (a *App) buildSession(_ context.Context, p crawler.Platform) (dispatcher.Session, func(), error) {
	sc := a.cfg.Source(p)
	clientOpts := []httpclient.Option{httpclient.WithLabel(string(p))}
	if a.opts.transport != nil {
		clientOpts = append(clientOpts, httpclient.WithTransport(a.opts.transport))
	}
	client := httpclient.New(httpclient.Config{
		Concurrency:       sc.Concurrency,
		MaxAttempts:       a.cfg.HTTP.MaxAttempts,
		BackoffBase:       a.cfg.HTTP.BackoffBase,
		Timeout:           a.cfg.HTTP.Timeout,
		UserAgent:         a.cfg.HTTP.UserAgent,
		RequestsPerSecond: a.cfg.HTTP.RequestsPerSecond,
		Burst:             a.cfg.HTTP.Burst,
	}, a.logger, clientOpts...)

	adapter, err := source.New(p, client, source.Endpoints{Web: sc.Web, Mobile: sc.Mobile, API: sc.API})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	oracle := freshness.New(a.relational, a.opts.clock, a.cfg.Crawl.FreshnessParallelism, a.logger)

	workerOpts := []worker.Option{worker.WithEmitter(a.hub)}
	if a.opts.sleeper != nil {
		workerOpts = append(workerOpts, worker.WithSleeper(a.opts.sleeper))
	}
	w := worker.New(adapter, oracle, a.persister, a.opts.clock, worker.Config{
		EmptyPageLimit: sc.EmptyPageLimit,
		JobExpiry:      a.cfg.Crawl.JobExpiry,
		CompanyExpiry:  a.cfg.Crawl.CompanyExpiry,
		PageDelayMin:   a.cfg.Crawl.PageDelayMin,
		PageDelayMax:   a.cfg.Crawl.PageDelayMax,
		MaxPages:       sc.MaxPages,
	}, a.logger, workerOpts...)
	return w, client.Close, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Dispatcher returns the session dispatcher.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// Runs returns the run history repository.
func (a *App) Runs() store.RunRepository {
	return a.runs
}

// Publisher returns the batch notifier, nil when notifications are off.
func (a *App) Publisher() crawler.Publisher {
	return a.publisher
}

// Ready pings the relational store when it is remote.
func (a *App) Ready(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close drains the progress hub, then releases stores and clients in
// reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
		if dropped := a.hub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped", zap.Int64("dropped", dropped))
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	a.logger.Info("application services closed")
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
