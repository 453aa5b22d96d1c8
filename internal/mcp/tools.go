package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/logging"
	"github.com/fyrsmithlabs/hierctx/internal/retrieval"
)

const maxK = 100

func scopeOf(company, department, employee string) hierarchy.Scope {
	return hierarchy.NormalizeScope(hierarchy.Scope{
		Company:    company,
		Department: department,
		Employee:   employee,
	})
}

type retrieveInput struct {
	Company    string `json:"company" jsonschema:"required,Company the caller belongs to"`
	Department string `json:"department,omitempty" jsonschema:"Department within the company"`
	Employee   string `json:"employee,omitempty" jsonschema:"Employee within the department (requires department)"`
	Question   string `json:"question" jsonschema:"required,Question to retrieve context for"`
	K          int    `json:"k,omitempty" jsonschema:"Chunks per hierarchy level (default: 3 or the server per_level_k)"`
}

type chunkOutput struct {
	Source  string  `json:"source" jsonschema:"Corpus-relative path of the source document"`
	Content string  `json:"content" jsonschema:"Chunk text"`
	Score   float32 `json:"score" jsonschema:"Similarity score"`
}

type sectionOutput struct {
	Level  string        `json:"level" jsonschema:"Hierarchy level: employee, department, company or general"`
	Label  string        `json:"label" jsonschema:"Section heading"`
	Chunks []chunkOutput `json:"chunks" jsonschema:"Matching chunks, most similar first"`
}

type retrieveOutput struct {
	HierarchyKey string          `json:"hierarchy_key" jsonschema:"Scope key such as acme|engineering"`
	Sections     []sectionOutput `json:"sections" jsonschema:"Non-empty levels, most specific first"`
	Context      string          `json:"context" jsonschema:"Sections rendered as labeled text blocks"`
}

type askInput struct {
	Company    string           `json:"company" jsonschema:"required,Company the caller belongs to"`
	Department string           `json:"department,omitempty" jsonschema:"Department within the company"`
	Employee   string           `json:"employee,omitempty" jsonschema:"Employee within the department (requires department)"`
	Question   string           `json:"question" jsonschema:"required,Question to answer"`
	History    []retrieval.Turn `json:"history,omitempty" jsonschema:"Earlier turns of the conversation"`
}

type askOutput struct {
	Answer   string          `json:"answer" jsonschema:"Model answer"`
	Sections []sectionOutput `json:"sections" jsonschema:"Context the answer was built from"`
}

type reindexInput struct {
	Company string `json:"company" jsonschema:"required,Company whose partition is rebuilt"`
}

type reindexOutput struct {
	Documents  int      `json:"documents" jsonschema:"Documents indexed"`
	Chunks     int      `json:"chunks" jsonschema:"Chunks written"`
	Skipped    int      `json:"skipped" jsonschema:"Documents skipped"`
	Partitions []string `json:"partitions" jsonschema:"Partitions replaced"`
}

type listPartitionsInput struct{}

type listPartitionsOutput struct {
	Partitions []string `json:"partitions" jsonschema:"Partitions with a committed generation"`
	Count      int      `json:"count" jsonschema:"Number of partitions"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "retrieve_context",
		Description: "Retrieve context for a question, ordered from the most specific level of the caller's hierarchy (employee) to the least specific (general). Only the caller's company is searched.",
	}, s.retrieveContext)

	if s.chat {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "ask",
			Description: "Answer a question using the caller's hierarchical context.",
		}, s.ask)
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reindex_company",
		Description: "Rebuild one company's partition from the corpus. Searches keep using the previous generation until the rebuild commits.",
	}, s.reindexCompany)

	if s.partitions != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "list_partitions",
			Description: "List the partitions that have been indexed.",
		}, s.listPartitions)
	}
}

// instrument records metrics for one tool call.
func (s *Server) instrument(ctx context.Context, tool string) func(error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	return func(err error) {
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
		if err != nil {
			s.logger.Warn(ctx, "tool call failed", zap.String("tool", tool), zap.Error(err))
		}
	}
}

func (s *Server) retrieveContext(ctx context.Context, _ *mcp.CallToolRequest, args retrieveInput) (_ *mcp.CallToolResult, _ retrieveOutput, err error) {
	done := s.instrument(ctx, "retrieve_context")
	defer func() { done(err) }()

	if args.K < 0 || args.K > maxK {
		return nil, retrieveOutput{}, fmt.Errorf("k must be between 1 and %d", maxK)
	}
	scope := scopeOf(args.Company, args.Department, args.Employee)
	ctx = logging.WithScope(ctx, scope)

	oc, err := s.service.RetrieveK(ctx, scope, args.Question, args.K)
	if err != nil {
		return nil, retrieveOutput{}, fmt.Errorf("retrieve failed: %w", err)
	}

	out := retrieveOutput{
		HierarchyKey: oc.Scope.HierarchyKey(),
		Sections:     sectionsOf(oc),
		Context:      oc.Text(),
	}
	text := out.Context
	if oc.Empty() {
		text = "No relevant context found."
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, out, nil
}

func (s *Server) ask(ctx context.Context, _ *mcp.CallToolRequest, args askInput) (_ *mcp.CallToolResult, _ askOutput, err error) {
	done := s.instrument(ctx, "ask")
	defer func() { done(err) }()

	scope := scopeOf(args.Company, args.Department, args.Employee)
	ctx = logging.WithScope(ctx, scope)

	resp, err := s.service.Chat(ctx, retrieval.ChatRequest{
		Scope:    scope,
		Question: args.Question,
		History:  args.History,
	})
	if err != nil {
		return nil, askOutput{}, fmt.Errorf("ask failed: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: resp.Answer}},
	}, askOutput{Answer: resp.Answer, Sections: sectionsOf(resp.Context)}, nil
}

func (s *Server) reindexCompany(ctx context.Context, _ *mcp.CallToolRequest, args reindexInput) (_ *mcp.CallToolResult, _ reindexOutput, err error) {
	done := s.instrument(ctx, "reindex_company")
	defer func() { done(err) }()

	company := strings.TrimSpace(args.Company)
	if company == "" {
		return nil, reindexOutput{}, fmt.Errorf("%w: company is required", hierarchy.ErrInvalidScope)
	}
	ctx = logging.WithScope(ctx, hierarchy.Scope{Company: company})

	report, err := s.service.ReindexCompany(ctx, company, "")
	if err != nil {
		return nil, reindexOutput{}, fmt.Errorf("reindex failed: %w", err)
	}
	out := reindexOutput{
		Documents:  report.Documents,
		Chunks:     report.Chunks,
		Skipped:    report.Skipped,
		Partitions: report.Partitions,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("Reindexed %s: %d documents, %d chunks", company, out.Documents, out.Chunks),
		}},
	}, out, nil
}

func (s *Server) listPartitions(ctx context.Context, _ *mcp.CallToolRequest, _ listPartitionsInput) (_ *mcp.CallToolResult, _ listPartitionsOutput, err error) {
	done := s.instrument(ctx, "list_partitions")
	defer func() { done(err) }()

	parts := s.partitions()
	out := listPartitionsOutput{Partitions: make([]string, 0, len(parts)), Count: len(parts)}
	for _, p := range parts {
		out.Partitions = append(out.Partitions, p.String())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: strings.Join(out.Partitions, "\n")}},
	}, out, nil
}

func sectionsOf(oc *retrieval.OrderedContext) []sectionOutput {
	out := []sectionOutput{}
	if oc.Empty() {
		return out
	}
	for _, sec := range oc.Sections {
		so := sectionOutput{Level: sec.Level.String(), Label: sec.Label}
		for _, c := range sec.Chunks {
			so.Chunks = append(so.Chunks, chunkOutput{Source: c.Source, Content: c.Content, Score: c.Score})
		}
		out = append(out, so)
	}
	return out
}
