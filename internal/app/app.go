// Package app initializes and holds the services of one monitor run, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/vin-monitor/internal/clock/system"
	"github.com/JakeFAU/vin-monitor/internal/config"
	"github.com/JakeFAU/vin-monitor/internal/id/uuid"
	"github.com/JakeFAU/vin-monitor/internal/metrics"
	"github.com/JakeFAU/vin-monitor/internal/monitor"
	"github.com/JakeFAU/vin-monitor/internal/notify"
	"github.com/JakeFAU/vin-monitor/internal/notify/email"
	pubsubnotify "github.com/JakeFAU/vin-monitor/internal/notify/pubsub"
	"github.com/JakeFAU/vin-monitor/internal/notify/slack"
	"github.com/JakeFAU/vin-monitor/internal/policy/ratelimit"
	"github.com/JakeFAU/vin-monitor/internal/search"
	"github.com/JakeFAU/vin-monitor/internal/search/bing"
	"github.com/JakeFAU/vin-monitor/internal/search/google"
	"github.com/JakeFAU/vin-monitor/internal/storage"
	"github.com/JakeFAU/vin-monitor/internal/storage/gcs"
	"github.com/JakeFAU/vin-monitor/internal/storage/local"
	"github.com/JakeFAU/vin-monitor/internal/storage/postgres"
)

// Components are the pluggable parts of an App. Tests assemble them directly.
type Components struct {
	Store     storage.Store
	Providers []search.Provider
	Notifiers []notify.Notifier
	Metrics   *metrics.Recorder
}

// App holds the shared services for a run. It is built once per command
// invocation and closed when the command finishes.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     storage.Store
	providers []search.Provider
	fanout    *notify.Fanout
	metrics   *metrics.Recorder
	closers   []io.Closer
}

// Assemble wires already-built components into an App.
func Assemble(cfg config.Config, logger *zap.Logger, c Components) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	fanout := notify.NewFanout(c.Notifiers, cfg.Notify.Timeout(), logger.Named("notify"))
	fanout.OnResult = c.Metrics.ObserveNotification
	a := &App{
		cfg:       cfg,
		logger:    logger,
		store:     c.Store,
		providers: c.Providers,
		fanout:    fanout,
		metrics:   c.Metrics,
	}
	for _, n := range c.Notifiers {
		if closer, ok := n.(io.Closer); ok {
			a.closers = append(a.closers, closer)
		}
	}
	return a
}

// New creates and initializes the App from configuration. It fails fast if
// the state backend cannot be opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("initializing application services")

	store, err := OpenStore(ctx, cfg.State)
	if err != nil {
		return nil, err
	}
	logger.Info("using state store", zap.String("store", store.Describe()))

	recorder := metrics.New()
	providers, err := buildProviders(cfg, logger, recorder)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if len(providers) == 0 {
		logger.Warn("no search providers configured, every run will scan 0 results")
	}

	notifiers, err := buildNotifiers(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return Assemble(cfg, logger, Components{
		Store:     store,
		Providers: providers,
		Notifiers: notifiers,
		Metrics:   recorder,
	}), nil
}

// OpenStore opens the configured state backend.
func OpenStore(ctx context.Context, cfg config.StateConfig) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		s, err := local.New(local.Config{Path: cfg.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file state store: %w", err)
		}
		return s, nil
	case config.BackendGCS:
		s, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket, Object: cfg.GCSObject})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS state store: %w", err)
		}
		return s, nil
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, postgres.Config{DSN: cfg.PostgresDSN, Table: cfg.PostgresTable})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres state store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown state backend: %s", cfg.Backend)
	}
}

func buildProviders(cfg config.Config, logger *zap.Logger, recorder *metrics.Recorder) ([]search.Provider, error) {
	limiter := ratelimit.New(ratelimit.Config{RatePerSecond: cfg.Search.RatePerSecond})
	limiter.OnDelay = recorder.ObserveRateLimitDelay
	retry := search.NewExponentialRetryPolicy(cfg.Search.MaxRetries, cfg.Search.BackoffInitial(), cfg.Search.BackoffMax())
	client := search.NewClient(search.ClientConfig{
		Timeout:   cfg.Search.Timeout(),
		UserAgent: cfg.Search.UserAgent,
	}, retry, limiter, logger.Named("search"))

	var providers []search.Provider
	if cfg.Bing.Enabled() {
		p, err := bing.New(bing.Config{APIKey: cfg.Bing.APIKey, Endpoint: cfg.Bing.Endpoint}, client)
		if err != nil {
			return nil, fmt.Errorf("init bing provider: %w", err)
		}
		providers = append(providers, p)
	}
	if cfg.Google.Enabled() {
		p, err := google.New(google.Config{
			APIKey:   cfg.Google.APIKey,
			EngineID: cfg.Google.EngineID,
			Endpoint: cfg.Google.Endpoint,
		}, client)
		if err != nil {
			return nil, fmt.Errorf("init google provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func buildNotifiers(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]notify.Notifier, error) {
	var out []notify.Notifier
	if cfg.Email.Enabled() {
		n, err := email.New(email.Config{
			To:       cfg.Email.To,
			From:     cfg.Email.From,
			Server:   cfg.Email.SMTPServer,
			Port:     cfg.Email.SMTPPort,
			User:     cfg.Email.SMTPUser,
			Password: cfg.Email.SMTPPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("init email notifier: %w", err)
		}
		out = append(out, n)
	}
	if cfg.Slack.Enabled() {
		n, err := slack.New(cfg.Slack.WebhookURL, nil)
		if err != nil {
			return nil, fmt.Errorf("init slack notifier: %w", err)
		}
		out = append(out, n)
	}
	if cfg.PubSub.Enabled() {
		n, err := pubsubnotify.Open(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		logger.Info("no notification channels configured, new matches are only logged")
	}
	return out, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store exposes the configured state store.
func (a *App) Store() storage.Store {
	return a.store
}

// Channels lists the enabled notification channels.
func (a *App) Channels() []string {
	return a.fanout.Channels()
}

// Engine builds a reconciliation engine over the App's services.
func (a *App) Engine(opts monitor.Options) (*monitor.Engine, error) {
	if opts.Limit <= 0 {
		opts.Limit = a.cfg.Search.MaxResults
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = a.cfg.Search.Concurrency
	}
	return monitor.New(monitor.Deps{
		Providers: a.providers,
		Store:     a.store,
		Notifier:  a.fanout,
		Metrics:   a.metrics,
		Logger:    a.logger.Named("monitor"),
		Clock:     system.New(),
		IDs:       uuid.NewGenerator(),
	}, opts)
}

// PushMetrics sends run metrics to the configured Pushgateway. It is a no-op
// when no gateway is configured.
func (a *App) PushMetrics(ctx context.Context) error {
	if a.cfg.Metrics.PushgatewayURL == "" {
		return nil
	}
	return a.metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job)
}

// Close shuts down all services in the App container.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("error closing notifier", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("error closing state store", zap.Error(err))
		}
	}
}
