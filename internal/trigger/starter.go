// Package trigger starts pipeline executions from API calls and upload
// notifications.
package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/tjfontaine/promptpub/internal/domain"
	"github.com/tjfontaine/promptpub/internal/pipeline"
)

// Runner runs one execution to completion.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*domain.ExecutionContext, error)
}

// Starter begins executions without waiting for them.
type Starter interface {
	Start(ctx context.Context, in pipeline.Input) (string, error)
}

// ErrStopped is returned by Start once the starter has been closed.
var ErrStopped = errors.New("starter is stopped")

// LocalStarter runs each execution on its own goroutine in this process.
type LocalStarter struct {
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

var _ Starter = (*LocalStarter)(nil)

// NewLocalStarter creates a starter. A positive timeout bounds every run.
func NewLocalStarter(runner Runner, timeout time.Duration, logger *slog.Logger) *LocalStarter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalStarter{runner: runner, timeout: timeout, logger: logger}
}

// Start assigns an execution id and runs in in the background. The run is
// detached from ctx's cancellation so it outlives the request that
// started it.
func (s *LocalStarter) Start(ctx context.Context, in pipeline.Input) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", ErrStopped
	}
	if in.ExecutionID == "" {
		in.ExecutionID = uuid.NewString()
	}

	runCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc = func() {}
	if s.timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, s.timeout)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		if _, err := s.runner.Run(runCtx, in); err != nil {
			s.logger.Error("execution failed",
				slog.String("execution_id", in.ExecutionID),
				slog.String("input", in.Key),
				slog.Bool("validation", domain.IsValidation(err)),
				slog.String("error", err.Error()),
			)
		}
	}()

	s.logger.Info("execution started",
		slog.String("execution_id", in.ExecutionID),
		slog.String("bucket", in.StorageID),
		slog.String("input", in.Key),
		slog.String("env", in.Env),
	)
	return in.ExecutionID, nil
}

// Wait refuses new executions and blocks until running ones finish or ctx
// is done.
func (s *LocalStarter) Wait(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for executions")
	}
}
