package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/hierctx/internal/ingest"
)

func newReindexCmd() *cobra.Command {
	var corpus string
	cmd := &cobra.Command{
		Use:   "reindex [company]",
		Short: "Rebuild partitions from the corpus",
		Long: `Rebuild one company's partition, or every company and the general
partition when no company is given. Searches keep using the previous
generation until the rebuild commits.

Examples:
  # Rebuild everything from the configured corpus
  hierctx reindex

  # Rebuild one company from another corpus
  hierctx reindex acme --corpus ./knowledge_base`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), logStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			var report *ingest.Report
			if len(args) == 1 {
				report, err = a.service.ReindexCompany(cmd.Context(), args[0], corpus)
			} else {
				report, err = a.service.Rebuild(cmd.Context(), corpus)
			}
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&corpus, "corpus", "", "corpus root (default retrieval.corpus_root)")
	return cmd
}

func printReport(w io.Writer, r *ingest.Report) {
	ok := color.New(color.FgGreen, color.Bold)
	ok.Fprintf(w, "Reindexed %d partition(s)\n", len(r.Partitions))
	for _, p := range r.Partitions {
		fmt.Fprintf(w, "  %s\n", p)
	}
	fmt.Fprintf(w, "Documents: %d  Chunks: %d  Skipped: %d  Unsupported: %d  (%s)\n",
		r.Documents, r.Chunks, r.Skipped, r.Unsupported, r.Duration.Round(time.Millisecond))
}
