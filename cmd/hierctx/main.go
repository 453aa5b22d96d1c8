// Hierctx serves hierarchical, tenant-isolated context retrieval.
//
// Usage:
//
//	# Build every partition from the corpus, then serve the API
//	hierctx reindex
//	hierctx serve
//
//	# Ask from the terminal
//	hierctx query --company acme --department engineering "When is on-call?"
//
//	# Configure via environment
//	HIERCTX_SERVER_PORT=9090 HIERCTX_VECTORSTORE_PROVIDER=qdrant hierctx serve
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	envFile    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hierctx",
		Short: "Hierarchical multi-tenant context retrieval",
		Long: `hierctx indexes a corpus laid out as company/department/employee
directories and answers questions with context ordered from the most
specific level of the caller's hierarchy to the least specific.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/hierctx/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the environment is read (default .env if present)")

	root.AddCommand(
		newServeCmd(),
		newReindexCmd(),
		newQueryCmd(),
		newChatCmd(),
		newMCPCmd(),
		newAskCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "hierctx by Fyrsmith Labs\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}
