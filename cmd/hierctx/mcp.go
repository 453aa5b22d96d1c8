package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/hierctx/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio",
		Long: `Serve the retrieve_context, reindex_company and list_partitions tools
(and ask, when a chat model is configured) over stdio. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), logStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := mcp.NewServer(&mcp.Config{
				Name:       "hierctx",
				Version:    version,
				Chat:       a.cfg.LLM.Enabled(),
				Partitions: a.store.Partitions,
			}, a.service, a.logger)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			return srv.Run(cmd.Context())
		},
	}
}
