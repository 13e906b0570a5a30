package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/promptpub/internal/config"
	"github.com/tjfontaine/promptpub/internal/runtime"
	"github.com/tjfontaine/promptpub/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(global *globalOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the trigger HTTP API",
		Long: `Start the HTTP API that lists outputs and starts executions.

Routes:
  GET  /healthz
  GET  /outputs?env=beta|prod
  POST /regenerate?env=beta|prod   {"key": "prompt_inputs/x.json"}
  POST /events/upload              S3-style upload notification`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, global, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config file when it changes")
	return cmd
}

func serve(cmd *cobra.Command, global *globalOptions, watch bool) error {
	cfg, err := global.load()
	if err != nil {
		return err
	}

	logger, level := newLogger(os.Stdout, cfg, "json")
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer(telemetry.Options{
		ServiceName: "promptpub",
		Enabled:     cfg.Telemetry.Enabled,
	}, logger)
	if err != nil {
		return errors.Wrap(err, "initialize tracing")
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := runtime.New(ctx, cfg, runtime.WithLogger(logger), runtime.WithLevel(level))
	if err != nil {
		return err
	}
	defer app.Close()

	starter := app.NewStarter()
	srv := app.NewServer(starter)

	var watcher *config.Watcher
	if path := configFile(global.configPath); watch && path != "" {
		if watcher, err = config.NewWatcher(path, logger); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	if watcher != nil {
		g.Go(func() error { return watcher.Watch(gctx, app.Reload) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.String("error", err.Error()))
		}
		if err := starter.Wait(shutdownCtx); err != nil {
			logger.Warn("executions still running at shutdown", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// configFile returns the file to watch, or "" when no file is in use.
func configFile(path string) string {
	if path != "" {
		return path
	}
	if _, err := os.Stat(config.DefaultPath); err == nil {
		return config.DefaultPath
	}
	return ""
}
