package runtime

import (
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/inference"
	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/tokens"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithLevel lets Reload adjust the log level of a handler built on level.
func WithLevel(level *slog.LevelVar) Option {
	return func(a *App) error {
		a.level = level
		return nil
	}
}

// WithRouter replaces the configured object stores.
func WithRouter(router storage.Router) Option {
	return func(a *App) error {
		if router == nil {
			return errors.New("router cannot be nil")
		}
		a.router = router
		return nil
	}
}

// WithTransport replaces the configured inference backend.
func WithTransport(transport inference.Transport) Option {
	return func(a *App) error {
		if transport == nil {
			return errors.New("transport cannot be nil")
		}
		a.transport = transport
		return nil
	}
}

// WithHTTPClient sets the client used by the HTTP inference backend.
func WithHTTPClient(client *http.Client) Option {
	return func(a *App) error {
		a.httpClient = client
		return nil
	}
}

// WithInvokerOptions passes extra options to the inference invoker.
func WithInvokerOptions(opts ...inference.Option) Option {
	return func(a *App) error {
		a.invokerOpts = append(a.invokerOpts, opts...)
		return nil
	}
}

// WithCounter sets the prompt token counter.
func WithCounter(counter tokens.Counter) Option {
	return func(a *App) error {
		a.counter = counter
		return nil
	}
}
