package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/hierctx/internal/tui"
)

func newAskCmd() *cobra.Command {
	var (
		flags       scopeFlags
		contextOnly bool
	)
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Interactive question console for a scope",
		Long: `Open a full-screen console that answers questions for one position in
the hierarchy. With a chat model configured it answers with the model and
keeps the conversation; otherwise, or with --context-only, it shows the
retrieved context.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := flags.scope()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), logNone)
			if err != nil {
				return err
			}
			defer a.Close()

			return tui.Run(cmd.Context(), a.service, tui.Options{
				Scope: scope,
				K:     flags.k,
				Chat:  a.cfg.LLM.Enabled() && !contextOnly,
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&contextOnly, "context-only", false, "show retrieved context instead of model answers")
	return cmd
}
