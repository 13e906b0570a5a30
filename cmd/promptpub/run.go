package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/promptpub/internal/config"
	"github.com/tjfontaine/promptpub/internal/pipeline"
	"github.com/tjfontaine/promptpub/internal/prompt"
	"github.com/tjfontaine/promptpub/internal/runtime"
	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/telemetry"
	"github.com/tjfontaine/promptpub/internal/template"
)

type runOptions struct {
	bucket      string
	env         string
	executionID string
	dryRun      bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <input-key>",
		Short: "Run one pipeline execution and wait for it",
		Long: `Run one execution for a prompt_inputs/*.json object and print the
resulting execution record as JSON.

With --dry-run no inference call is made; the artifact contains a preview
of the rendered prompt instead of model output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.bucket, "bucket", "", "bucket holding the input (default storage.bucket)")
	cmd.Flags().StringVar(&opts.env, "env", "", "environment override: beta or prod")
	cmd.Flags().StringVar(&opts.executionID, "execution-id", "", "execution id (default random)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "skip the inference call")
	return cmd
}

func runOnce(cmd *cobra.Command, global *globalOptions, opts *runOptions, key string) error {
	cfg, err := global.load()
	if err != nil {
		return err
	}
	if opts.dryRun {
		cfg.Inference.Backend = config.BackendDryRun
	}

	logger, _ := newLogger(cmd.ErrOrStderr(), cfg, "text")

	shutdown, err := telemetry.InitTracer(telemetry.Options{
		ServiceName: "promptpub",
		Enabled:     cfg.Telemetry.Enabled,
		Writer:      cmd.ErrOrStderr(),
	}, logger)
	if err != nil {
		return errors.Wrap(err, "initialize tracing")
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := runtime.New(ctx, cfg, runtime.WithLogger(logger))
	if err != nil {
		return err
	}
	defer app.Close()

	if opts.dryRun {
		logPlaceholders(ctx, logger, app.Router(), opts.bucket, key)
	}

	ec, err := app.Run(ctx, pipeline.Input{
		StorageID:   opts.bucket,
		Key:         key,
		Env:         opts.env,
		ExecutionID: opts.executionID,
	})
	if ec != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(ec); encErr != nil {
			logger.Error("failed to write execution record", slog.String("error", encErr.Error()))
		}
	}
	return err
}

// logPlaceholders reports which variables the input's template expects.
// Failures are left for the pipeline run to report.
func logPlaceholders(ctx context.Context, logger *slog.Logger, router storage.Router, bucket, key string) {
	store, err := router.Input(bucket)
	if err != nil {
		return
	}
	in, err := store.Get(ctx, key)
	if err != nil {
		return
	}
	pc, err := prompt.Parse(in.Body, key)
	if err != nil {
		return
	}
	tmpl, err := store.Get(ctx, prompt.TemplateKey(pc.Template))
	if err != nil {
		return
	}
	logger.Info("dry run",
		slog.String("template", pc.Template),
		slog.String("placeholders", strings.Join(template.Placeholders(string(tmpl.Body)), ",")))
}
