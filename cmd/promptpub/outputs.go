package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/promptpub/internal/domain"
	"github.com/tjfontaine/promptpub/internal/publish"
	"github.com/tjfontaine/promptpub/internal/runtime"
)

func newOutputsCmd(global *globalOptions) *cobra.Command {
	var env string

	cmd := &cobra.Command{
		Use:   "outputs",
		Short: "List published artifacts for an environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.load()
			if err != nil {
				return err
			}
			if env == "" {
				env = cfg.DefaultEnv
			}
			e, ok := domain.ParseEnvironment(env)
			if !ok {
				return &domain.InvalidEnvironmentError{Value: env}
			}

			logger, _ := newLogger(cmd.ErrOrStderr(), cfg, "text")
			app, err := runtime.New(cmd.Context(), cfg, runtime.WithLogger(logger))
			if err != nil {
				return err
			}
			defer app.Close()

			store, err := app.Router().Output(e)
			if err != nil {
				return err
			}
			items, err := store.List(cmd.Context(), publish.OutputPrefix(e))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "KEY\tSIZE\tLAST MODIFIED\n")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%d\t%s\n", it.Key, it.Size, it.LastModified.UTC().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment: beta or prod (default default_env)")
	return cmd
}
