package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/promptpub/internal/domain"
)

// Input starts one execution.
type Input struct {
	// StorageID names the store holding Key, such as a bucket. Empty selects
	// the default store.
	StorageID string `json:"bucket"`
	Key       string `json:"key"`
	// Env is the explicit environment override, if any.
	Env string `json:"env,omitempty"`
	// ExecutionID is generated when empty.
	ExecutionID string `json:"execution_id,omitempty"`
}

// Coordinator runs complete executions.
type Coordinator struct {
	executor *Executor
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator over the standard stage sequence.
func NewCoordinator(stages *Stages) *Coordinator {
	logger := stages.logger()
	return &Coordinator{
		executor: NewExecutor(logger, stages.All()...),
		logger:   logger,
	}
}

// Stages returns the stages the coordinator runs, in order.
func (c *Coordinator) Stages() []Stage {
	return c.executor.Stages()
}

// Run executes every stage for in. The execution context is returned even
// on failure so callers can report how far the run got.
func (c *Coordinator) Run(ctx context.Context, in Input) (*domain.ExecutionContext, error) {
	ec := &domain.ExecutionContext{
		ExecutionID:          in.ExecutionID,
		StorageLocation:      in.StorageID,
		InputReference:       in.Key,
		RequestedEnvironment: in.Env,
	}
	if ec.ExecutionID == "" {
		ec.ExecutionID = uuid.NewString()
	}

	start := time.Now()
	if err := c.executor.Run(ctx, ec); err != nil {
		return ec, err
	}

	c.logger.Info("execution completed",
		slog.String("execution_id", ec.ExecutionID),
		slog.String("input", ec.InputReference),
		slog.String("env", string(ec.Environment)),
		slog.String("output", ec.OutputReference),
		slog.Int("attempts", ec.AttemptsUsed),
		slog.Duration("duration", time.Since(start)),
	)
	return ec, nil
}
