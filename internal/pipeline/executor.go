package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/promptpub/internal/domain"
)

// Stage is one step of an execution.
type Stage interface {
	Name() string
	Process(ctx context.Context, ec *domain.ExecutionContext) error
}

type funcStage struct {
	name string
	fn   func(ctx context.Context, ec *domain.ExecutionContext) error
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Process(ctx context.Context, ec *domain.ExecutionContext) error {
	return s.fn(ctx, ec)
}

// NewStage adapts fn to a Stage.
func NewStage(name string, fn func(ctx context.Context, ec *domain.ExecutionContext) error) Stage {
	return funcStage{name: name, fn: fn}
}

// StageError is returned when a stage fails.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Executor runs stages sequentially.
type Executor struct {
	stages []Stage
	logger *slog.Logger
	tracer trace.Tracer
}

// NewExecutor creates an executor for stages, run in the order given.
func NewExecutor(logger *slog.Logger, stages ...Stage) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		stages: stages,
		logger: logger,
		tracer: otel.Tracer("github.com/tjfontaine/promptpub/internal/pipeline"),
	}
}

// Stages returns the stages in execution order.
func (e *Executor) Stages() []Stage {
	return append([]Stage(nil), e.stages...)
}

// Run executes every stage against ec, stopping at the first failure.
func (e *Executor) Run(ctx context.Context, ec *domain.ExecutionContext) error {
	for _, stage := range e.stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: stage.Name(), Err: err}
		}
		if err := e.runStage(ctx, stage, ec); err != nil {
			return &StageError{Stage: stage.Name(), Err: err}
		}
	}
	return nil
}

func (e *Executor) runStage(ctx context.Context, stage Stage, ec *domain.ExecutionContext) error {
	ctx, span := e.tracer.Start(ctx, "pipeline."+stage.Name(), trace.WithAttributes(
		attribute.String("execution.id", ec.ExecutionID),
		attribute.String("pipeline.stage", stage.Name()),
	))
	defer span.End()

	start := time.Now()
	err := stage.Process(ctx, ec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("pipeline stage failed",
			slog.String("execution_id", ec.ExecutionID),
			slog.String("stage", stage.Name()),
			slog.Duration("duration", time.Since(start)),
			slog.Bool("validation", domain.IsValidation(err)),
			slog.String("error", err.Error()),
		)
		return err
	}

	e.logger.Info("pipeline stage completed",
		slog.String("execution_id", ec.ExecutionID),
		slog.String("stage", stage.Name()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
