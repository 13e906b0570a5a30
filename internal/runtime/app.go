// Package runtime assembles the pipeline, its storage and its inference
// backend from configuration, and owns their lifecycle.
package runtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/tiktoken-go/tokenizer"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/tjfontaine/promptpub/internal/api/messages"
	"github.com/tjfontaine/promptpub/internal/config"
	"github.com/tjfontaine/promptpub/internal/domain"
	"github.com/tjfontaine/promptpub/internal/environment"
	"github.com/tjfontaine/promptpub/internal/inference"
	"github.com/tjfontaine/promptpub/internal/pipeline"
	"github.com/tjfontaine/promptpub/internal/publish"
	"github.com/tjfontaine/promptpub/internal/server"
	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/tokens"
	"github.com/tjfontaine/promptpub/internal/trigger"
)

// App holds one configured pipeline.
type App struct {
	logger      *slog.Logger
	level       *slog.LevelVar
	router      storage.Router
	transport   inference.Transport
	httpClient  *http.Client
	counter     tokens.Counter
	invokerOpts []inference.Option

	resolver    *environment.Resolver
	invoker     *inference.Invoker
	coordinator *pipeline.Coordinator
	closers     []io.Closer

	mu  sync.RWMutex
	cfg *config.Config
}

// New builds an App from cfg. Options override the configured backends.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	a := &App{logger: slog.Default(), cfg: cfg}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, errors.Wrap(err, "apply option")
		}
	}

	resolver, err := environment.NewResolver(cfg.DefaultEnv)
	if err != nil {
		return nil, err
	}
	a.resolver = resolver

	if a.router == nil {
		router, closers, err := openStorage(ctx, &cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.router = router
		a.closers = closers
	}

	if a.transport == nil {
		a.transport = a.newTransport(&cfg.Inference)
	}
	if a.counter == nil {
		a.counter = tokens.NewTiktokenCounter(tokenizer.Cl100kBase)
	}

	invokerOpts := append([]inference.Option{
		inference.WithRetryPolicy(cfg.RetryPolicy()),
		inference.WithLogger(a.logger),
	}, a.invokerOpts...)
	a.invoker = inference.NewInvoker(a.transport, invokerOpts...)

	a.coordinator = pipeline.NewCoordinator(&pipeline.Stages{
		Resolver:  resolver,
		Router:    a.router,
		Invoker:   a.invoker,
		Publisher: publish.NewPublisher(a.router, a.logger),
		Counter:   a.counter,
		Logger:    a.logger,
	})

	a.logger.Info("pipeline configured",
		slog.String("storage", cfg.Storage.Type),
		slog.String("bucket", cfg.Storage.Bucket),
		slog.String("inference", cfg.Inference.Backend),
		slog.String("default_env", cfg.DefaultEnv))

	return a, nil
}

func (a *App) newTransport(cfg *config.InferenceConfig) inference.Transport {
	if cfg.Backend == config.BackendDryRun {
		a.logger.Info("dry-run inference enabled; no service calls will be made")
		return inference.DryRunTransport{}
	}
	client := a.httpClient
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return messages.NewClient(
		messages.WithBaseURL(cfg.BaseURL),
		messages.WithAPIKey(cfg.APIKey),
		messages.WithVersion(cfg.Version),
		messages.WithModel(cfg.Model),
		messages.WithHTTPClient(client),
	)
}

// Config returns the config currently in effect.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Router returns the object store router.
func (a *App) Router() storage.Router { return a.router }

// Resolver returns the environment resolver.
func (a *App) Resolver() *environment.Resolver { return a.resolver }

// Coordinator returns the pipeline coordinator.
func (a *App) Coordinator() *pipeline.Coordinator { return a.coordinator }

// Run executes one pipeline run synchronously, bounded by run.timeout.
func (a *App) Run(ctx context.Context, in pipeline.Input) (*domain.ExecutionContext, error) {
	if timeout := a.Config().Run.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return a.coordinator.Run(ctx, in)
}

// NewStarter returns a starter that runs executions in the background.
// Each execution goes through Run, so it picks up the run timeout in
// effect when it starts.
func (a *App) NewStarter() *trigger.LocalStarter {
	return trigger.NewLocalStarter(a, 0, a.logger)
}

// NewServer returns the HTTP API for this app.
func (a *App) NewServer(starter trigger.Starter) *server.Server {
	cfg := a.Config()
	var limiter *rate.Limiter
	if n := cfg.Server.RegeneratePerMinute; n > 0 {
		limiter = server.PerMinute(n)
	}
	return server.New(server.Config{
		Port:              cfg.Server.Port,
		Logger:            a.logger,
		Router:            a.router,
		Resolver:          a.resolver,
		Starter:           starter,
		RegenerateLimiter: limiter,
	})
}

// Reload applies the settings that may change without a restart: the retry
// policy and the log level. Storage, inference backend and server settings
// keep their startup values.
func (a *App) Reload(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.invoker.SetPolicy(cfg.RetryPolicy())
	if a.level != nil {
		if level, err := config.ParseLevel(cfg.Log.Level); err == nil {
			a.level.Set(level)
		}
	}
	if cfg.Storage != a.cfg.Storage || cfg.Inference != a.cfg.Inference || cfg.Server != a.cfg.Server {
		a.logger.Warn("storage, inference and server changes take effect on restart")
	}

	// Keep startup values for settings that were not applied.
	next := *a.cfg
	next.Retry = cfg.Retry
	next.Log = cfg.Log
	next.Run = cfg.Run
	a.cfg = &next

	a.logger.Info("config reloaded",
		slog.Int("max_attempts", cfg.Retry.MaxAttempts),
		slog.String("log_level", cfg.Log.Level))
}

// Close releases storage resources.
func (a *App) Close() error {
	var err error
	for _, c := range a.closers {
		err = errors.CombineErrors(err, c.Close())
	}
	a.closers = nil
	return err
}
