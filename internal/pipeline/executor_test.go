package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/promptpub/internal/domain"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestExecutor_RunsStagesInOrder(t *testing.T) {
	var calls []string
	record := func(name string) Stage {
		return NewStage(name, func(context.Context, *domain.ExecutionContext) error {
			calls = append(calls, name)
			return nil
		})
	}

	e := NewExecutor(discardLogger(), record("a"), record("b"), record("c"))
	if err := e.Run(context.Background(), &domain.ExecutionContext{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, calls); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestExecutor_StopsAtFirstFailure(t *testing.T) {
	cause := &domain.ConfigError{Field: "max_tokens", Reason: "must be positive"}
	var ranLast bool

	e := NewExecutor(discardLogger(),
		NewStage("ok", func(context.Context, *domain.ExecutionContext) error { return nil }),
		NewStage("bad", func(context.Context, *domain.ExecutionContext) error { return cause }),
		NewStage("never", func(context.Context, *domain.ExecutionContext) error { ranLast = true; return nil }),
	)

	err := e.Run(context.Background(), &domain.ExecutionContext{ExecutionID: "x"})
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("error = %v, want *StageError", err)
	}
	if stageErr.Stage != "bad" {
		t.Errorf("Stage = %q, want bad", stageErr.Stage)
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Error("validation class lost through stage wrapping")
	}
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr != cause {
		t.Error("errors.As did not reach the original cause")
	}
	if ranLast {
		t.Error("stage after the failure ran")
	}
}

func TestExecutor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran bool
	e := NewExecutor(discardLogger(), NewStage("a", func(context.Context, *domain.ExecutionContext) error {
		ran = true
		return nil
	}))
	err := e.Run(ctx, &domain.ExecutionContext{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("stage ran on a canceled context")
	}
}
