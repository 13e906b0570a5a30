package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/promptpub/internal/config"
)

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "promptpub",
		Short: "Render prompts, run inference and publish the results",
		Long: `promptpub - prompt-to-publish pipeline.

Reads a prompt configuration from prompt_inputs/, renders its template from
prompt_templates/, sends the prompt to the inference service with bounded
retries and writes the result to {env}/outputs/{slug}.{html|md}.

Examples:
  promptpub run prompt_inputs/welcome.json          # Run one execution
  promptpub run prompt_inputs/welcome.json --dry-run
  promptpub serve                                   # Start the trigger API
  promptpub outputs --env prod                      # List published artifacts`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default "+config.DefaultPath+" if present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newOutputsCmd(opts))
	return cmd
}

// load reads the config and applies flag overrides.
func (o *globalOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger builds the process logger. format selects the handler when
// the config leaves log.format empty.
func newLogger(w io.Writer, cfg *config.Config, format string) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	if l, err := config.ParseLevel(cfg.Log.Level); err == nil {
		level.Set(l)
	}
	if cfg.Log.Format != "" {
		format = cfg.Log.Format
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler), level
}
