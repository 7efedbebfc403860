// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/clock/system"
	"github.com/JakeFAU/spider/internal/config"
	"github.com/JakeFAU/spider/internal/crawl"
	"github.com/JakeFAU/spider/internal/extract"
	collyfetcher "github.com/JakeFAU/spider/internal/fetcher/colly"
	"github.com/JakeFAU/spider/internal/id/uuid"
	"github.com/JakeFAU/spider/internal/logging"
	"github.com/JakeFAU/spider/internal/policy/ratelimit"
	"github.com/JakeFAU/spider/internal/pool"
	pubmemory "github.com/JakeFAU/spider/internal/publisher/memory"
	"github.com/JakeFAU/spider/internal/publisher/pubsub"
	"github.com/JakeFAU/spider/internal/storage"
	"github.com/JakeFAU/spider/internal/storage/memory"
	"github.com/JakeFAU/spider/internal/storage/postgres"
	"github.com/JakeFAU/spider/internal/timer"
)

// defaultTopic names link notifications when no Pub/Sub topic is configured.
const defaultTopic = "links"

// Publisher is a closable storage.Publisher.
type Publisher interface {
	storage.Publisher
	Close() error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// App holds all the shared, long-lived services for the application.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Pool     pool.Submitter
	Pipeline *crawl.Pipeline
	// Sweep is nil unless sweep.enabled is set.
	Sweep *timer.Timer

	sink      storage.Sink
	publisher Publisher
}

// Option overrides a dependency, mainly for tests.
type Option func(*options)

type options struct {
	sink      storage.Sink
	fetcher   extract.Fetcher
	publisher Publisher
	onRecord  func(crawl.Record)
	onFailure func(string, error)
}

// WithSink replaces the configured sink.
func WithSink(s storage.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithFetcher replaces the colly fetcher.
func WithFetcher(f extract.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithPublisher replaces the configured link publisher.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithObservers registers crawl outcome callbacks.
func WithObservers(onRecord func(crawl.Record), onFailure func(string, error)) Option {
	return func(o *options) {
		o.onRecord = onRecord
		o.onFailure = onFailure
	}
}

// New builds every service from cfg. It fails fast if any of them cannot be
// initialized and releases what was already built.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	logger = logging.OrNop(logger)
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger.Info("initializing application services")

	sink, err := buildSink(ctx, cfg, logger, o.sink)
	if err != nil {
		return nil, err
	}
	publisher, topic, err := buildPublisher(ctx, cfg, logger, o.publisher)
	if err != nil {
		sink.Close()
		return nil, err
	}
	notifying := storage.NewNotifyingSink(sink, publisher, topic, logger)

	fetcher := o.fetcher
	if fetcher == nil {
		limiter := ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.HTTP.RatePerDomain,
			DefaultBurst: cfg.HTTP.Burst,
		})
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.HTTP.UserAgent,
			RespectRobots: cfg.HTTP.RespectRobots,
			Timeout:       cfg.FetchTimeout(),
			MaxBodySize:   cfg.HTTP.MaxBodyBytes,
		}, limiter, logger)
	}

	workers, err := buildPool(cfg, logger)
	if err != nil {
		sink.Close()
		_ = publisher.Close()
		return nil, err
	}

	pipeline, err := crawl.New(crawl.Config{
		Pool:      workers,
		Fetcher:   fetcher,
		Sink:      notifying,
		Clock:     system.New(),
		IDs:       uuid.New(),
		Logger:    logger,
		OnRecord:  o.onRecord,
		OnFailure: o.onFailure,
	})
	if err != nil {
		_ = workers.Shutdown(ctx)
		sink.Close()
		_ = publisher.Close()
		return nil, fmt.Errorf("build crawl pipeline: %w", err)
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      workers,
		Pipeline:  pipeline,
		sink:      sink,
		publisher: publisher,
	}
	if cfg.Sweep.Enabled {
		a.Sweep = timer.New(pipeline.Sweep(cfg.Sweep.URLs),
			timer.WithInterval(cfg.Sweep.Interval),
			timer.WithDeferred(cfg.Sweep.Deferred),
			timer.WithLogger(logger.With(zap.String("component", "sweep"))),
		)
	}
	logger.Info("application services initialized",
		zap.String("pool", cfg.Pool.Kind),
		zap.Bool("sweep", cfg.Sweep.Enabled))
	return a, nil
}

func buildSink(ctx context.Context, cfg config.Config, logger *zap.Logger, override storage.Sink) (storage.Sink, error) {
	if override != nil {
		return override, nil
	}
	dsn := cfg.DSN()
	if dsn == "" {
		logger.Info("no database configured; using in-memory sink")
		return memory.NewSink(), nil
	}
	logger.Info("connecting to postgres", zap.String("host", cfg.DB.Host))
	sink, err := postgres.New(ctx, postgres.Config{DSN: dsn, MaxConns: cfg.DB.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("initialize postgres sink: %w", err)
	}
	if cfg.DB.EnsureSchema {
		if err := sink.EnsureSchema(ctx); err != nil {
			sink.Close()
			return nil, err
		}
	}
	return sink, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger, override Publisher) (Publisher, string, error) {
	topic := cfg.PubSub.TopicName
	if topic == "" {
		topic = defaultTopic
	}
	if override != nil {
		return override, topic, nil
	}
	if cfg.PubSub.ProjectID == "" {
		logger.Info("no pubsub project configured; keeping link notifications in memory")
		return pubmemory.NewBounded(1000), topic, nil
	}
	logger.Info("connecting to pubsub", zap.String("topic", topic))
	pub, err := pubsub.New(ctx, cfg.PubSub.ProjectID, topic)
	if err != nil {
		return nil, "", fmt.Errorf("initialize pubsub publisher: %w", err)
	}
	return pub, topic, nil
}

func buildPool(cfg config.Config, logger *zap.Logger) (pool.Submitter, error) {
	switch cfg.Pool.Kind {
	case "", "fixed":
		return pool.NewFixed(pool.FixedConfig{
			Name:            "crawl",
			Workers:         cfg.Pool.Workers,
			ShutdownTimeout: cfg.Pool.ShutdownTimeout,
			Logger:          logger,
		}), nil
	case "renewable":
		overflow, err := pool.ParseOverflow(cfg.Pool.Overflow)
		if err != nil {
			return nil, err
		}
		return pool.NewRenewable(pool.RenewableConfig{
			Name:          "crawl",
			MaxWorkers:    cfg.Pool.Workers,
			Overflow:      overflow,
			ShutdownGrace: cfg.Pool.ShutdownTimeout,
			Logger:        logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown pool kind %q", cfg.Pool.Kind)
	}
}

// StartSweep starts the re-crawl timer when enabled.
func (a *App) StartSweep(ctx context.Context) error {
	if a.Sweep == nil {
		return nil
	}
	if err := a.Sweep.Start(ctx); err != nil {
		return fmt.Errorf("start sweep: %w", err)
	}
	return nil
}

// Ready reports whether downstream dependencies are reachable.
func (a *App) Ready(ctx context.Context) error {
	if st := a.Pool.State(); st.Status != pool.StatusRunning {
		return fmt.Errorf("pool is %s", st.Status)
	}
	if p, ok := a.sink.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Notifications returns recent link notifications when they are kept in memory.
func (a *App) Notifications() ([]pubmemory.PublishedMessage, bool) {
	mem, ok := a.publisher.(*pubmemory.Publisher)
	if !ok {
		return nil, false
	}
	return mem.Messages(), true
}

// Close stops the sweep, then the pool, then the sink and publisher.
func (a *App) Close(ctx context.Context) error {
	a.Logger.Info("shutting down application services")
	var errs []error
	if a.Sweep != nil {
		a.Sweep.Shutdown()
		a.Sweep.Wait()
	}
	if err := a.Pool.Shutdown(ctx); err != nil && !errors.Is(err, pool.ErrPoolClosed) {
		errs = append(errs, fmt.Errorf("shutdown pool: %w", err))
	}
	a.sink.Close()
	if err := a.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	// stderr sync errors are expected on some platforms
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
