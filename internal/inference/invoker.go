// Package inference submits rendered prompts to the inference service under
// a bounded exponential-backoff retry policy.
package inference

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/promptpub/internal/api/messages"
	"github.com/tjfontaine/promptpub/internal/domain"
)

// Transport performs a single call to the inference service and returns the
// raw response payload.
type Transport interface {
	CreateMessage(ctx context.Context, req *messages.MessagesRequest) (json.RawMessage, error)
}

// Option configures the invoker.
type Option func(*Invoker)

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(i *Invoker) {
		i.policy = p.normalized()
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Invoker) {
		i.logger = logger
	}
}

// WithSleep replaces the wait between attempts. The function must return
// early with the context's error when ctx is done.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(i *Invoker) {
		i.sleep = sleep
	}
}

// WithJitter replaces the jitter source. It receives the policy's jitter
// bound and returns a value in [0, bound).
func WithJitter(jitter func(bound time.Duration) time.Duration) Option {
	return func(i *Invoker) {
		i.jitter = jitter
	}
}

// Invoker wraps a Transport with retries, backoff and text extraction.
type Invoker struct {
	transport Transport
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func(bound time.Duration) time.Duration
	tracer    trace.Tracer

	mu     sync.RWMutex
	policy RetryPolicy
}

// NewInvoker creates an invoker over transport.
func NewInvoker(transport Transport, opts ...Option) *Invoker {
	i := &Invoker{
		transport: transport,
		policy:    DefaultRetryPolicy(),
		logger:    slog.Default(),
		sleep:     sleepContext,
		jitter:    randomJitter,
		tracer:    otel.Tracer("github.com/tjfontaine/promptpub/internal/inference"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Policy returns the retry policy in effect.
func (i *Invoker) Policy() RetryPolicy {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.policy
}

// SetPolicy replaces the retry policy for subsequent Invoke calls.
func (i *Invoker) SetPolicy(p RetryPolicy) {
	i.mu.Lock()
	i.policy = p.normalized()
	i.mu.Unlock()
}

// Invoke sends prompt and returns the extracted text together with the
// number of attempts used. Transient failures are retried with backoff up
// to the policy's MaxAttempts; any other failure is returned unchanged on
// the spot. When every attempt fails transiently the result is a
// *domain.InferenceExhaustedError carrying the last cause.
func (i *Invoker) Invoke(ctx context.Context, prompt string, maxTokens int) (*domain.InferenceResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &domain.ConfigError{Field: "rendered_prompt", Reason: "prompt is empty"}
	}
	if maxTokens <= 0 {
		return nil, &domain.ConfigError{Field: "max_tokens", Reason: "must be positive"}
	}

	policy := i.Policy()
	req := messages.UserPrompt(prompt, maxTokens)
	m := newRetryMachine(policy.MaxAttempts)

	var text string
	for m.state == stateAttempting {
		n := m.attempt
		out, err := i.attempt(ctx, n, policy.MaxAttempts, req)
		if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
			return nil, errors.Wrapf(ctxErr, "inference aborted on attempt %d", n)
		}

		if !m.observe(err) {
			text = out
			break
		}

		delay := policy.Delay(n, i.jitter(policy.Jitter))
		i.logger.Warn("inference attempt failed, retrying",
			slog.Int("attempt", n),
			slog.Int("max_attempts", policy.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if err := i.sleep(ctx, delay); err != nil {
			return nil, errors.Wrapf(err, "inference aborted while backing off after attempt %d", n)
		}
	}

	switch {
	case m.state == stateSucceeded:
		return &domain.InferenceResult{Text: text, AttemptsUsed: m.attempt}, nil
	case m.permanent:
		i.logger.Error("inference failed with a non-retryable error",
			slog.Int("attempt", m.attempt),
			slog.String("error", m.last.Error()),
		)
		return nil, m.last
	default:
		i.logger.Error("inference retries exhausted",
			slog.Int("attempts", m.attempt),
			slog.String("error", m.last.Error()),
		)
		return nil, &domain.InferenceExhaustedError{Attempts: m.attempt, Last: m.last}
	}
}

func (i *Invoker) attempt(ctx context.Context, n, maxAttempts int, req *messages.MessagesRequest) (string, error) {
	ctx, span := i.tracer.Start(ctx, "inference.attempt", trace.WithAttributes(
		attribute.Int("inference.attempt", n),
		attribute.Int("inference.max_attempts", maxAttempts),
		attribute.Int("inference.max_tokens", req.MaxTokens),
	))
	defer span.End()

	raw, err := i.transport.CreateMessage(ctx, req)
	if err == nil {
		var text, shape string
		text, shape, err = extract(raw)
		if err == nil {
			span.SetAttributes(attribute.String("inference.response_shape", shape))
			return text, nil
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "", err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(bound)))
}
