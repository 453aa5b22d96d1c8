package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/hierctx/internal/retrieval"
)

var (
	sectionColor = color.New(color.FgCyan, color.Bold)
	sourceColor  = color.New(color.Faint)
	answerColor  = color.New(color.FgGreen)
)

func newQueryCmd() *cobra.Command {
	var (
		flags  scopeFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Print the context retrieved for a question",
		Long: `Retrieve context for a question, ordered from the most specific level
of the caller's hierarchy to the least specific.

Examples:
  hierctx query -c acme -d engineering -e alice "When is my review?"
  hierctx query -c acme --json "What are the office hours?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := flags.scope()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), logStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			oc, err := a.service.RetrieveK(cmd.Context(), scope, strings.Join(args, " "), flags.k)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(oc)
			}
			printContext(cmd.OutOrStdout(), oc)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the context as JSON")
	return cmd
}

func newChatCmd() *cobra.Command {
	var (
		flags       scopeFlags
		showContext bool
	)
	cmd := &cobra.Command{
		Use:   "chat <question>",
		Short: "Answer a question with the chat model",
		Long: `Answer a question from the caller's hierarchical context. Requires a
chat model (llm.api_key or llm.base_url).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := flags.scope()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), logStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.service.Chat(cmd.Context(), retrieval.ChatRequest{
				Scope:    scope,
				Question: strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if showContext {
				printContext(w, resp.Context)
				fmt.Fprintln(w)
			}
			answerColor.Fprintln(w, resp.Answer)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the retrieved context before the answer")
	return cmd
}

// printContext writes the sections with colored headings and chunk sources.
func printContext(w io.Writer, oc *retrieval.OrderedContext) {
	if oc.Empty() {
		fmt.Fprintln(w, color.YellowString("No relevant context found for %s.", oc.Scope.HierarchyKey()))
		return
	}
	for i, s := range oc.Sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		sectionColor.Fprintf(w, "%s:\n", s.Label)
		for _, c := range s.Chunks {
			sourceColor.Fprintf(w, "[%s #%d score=%.3f]\n", c.Source, c.Index, c.Score)
			fmt.Fprintln(w, c.Content)
		}
	}
}
