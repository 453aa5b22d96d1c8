package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/ingest"
	"github.com/fyrsmithlabs/hierctx/internal/retrieval"
	"github.com/fyrsmithlabs/hierctx/internal/vectorstore"
)

func init() {
	color.NoColor = true
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "reindex", "query", "chat", "mcp", "ask", "version"})
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Version:    dev")
}

func TestQueryRequiresCompany(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"query", "what?"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "company")
}

func TestScopeFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   scopeFlags
		want    hierarchy.Scope
		wantErr bool
	}{
		{"company", scopeFlags{company: " acme "}, hierarchy.Scope{Company: "acme"}, false},
		{"employee", scopeFlags{company: "acme", department: "eng", employee: "alice"}, hierarchy.Scope{Company: "acme", Department: "eng", Employee: "alice"}, false},
		{"employee without department", scopeFlags{company: "acme", employee: "alice"}, hierarchy.Scope{}, true},
		{"blank company", scopeFlags{company: "  "}, hierarchy.Scope{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.scope()
			if tt.wantErr {
				assert.ErrorIs(t, err, hierarchy.ErrInvalidScope)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintContext(t *testing.T) {
	oc := &retrieval.OrderedContext{
		Scope: hierarchy.Scope{Company: "acme", Department: "eng"},
		Sections: []retrieval.Section{
			{
				Level:  hierarchy.LevelDepartment,
				Label:  retrieval.Label(hierarchy.LevelDepartment),
				Chunks: []vectorstore.SearchResult{{Source: "acme/eng/oncall.md", Content: "On-call is weekly.", Score: 0.75}},
			},
			{
				Level:  hierarchy.LevelGeneral,
				Label:  retrieval.Label(hierarchy.LevelGeneral),
				Chunks: []vectorstore.SearchResult{{Source: "general/holidays.md", Index: 2, Content: "Holidays are shared."}},
			},
		},
	}

	var out bytes.Buffer
	printContext(&out, oc)
	want := "DEPARTMENT-LEVEL INFORMATION:\n" +
		"[acme/eng/oncall.md #0 score=0.750]\n" +
		"On-call is weekly.\n" +
		"\n" +
		"GENERAL COMPANY INFORMATION:\n" +
		"[general/holidays.md #2 score=0.000]\n" +
		"Holidays are shared.\n"
	assert.Equal(t, want, out.String())
}

func TestPrintContext_Empty(t *testing.T) {
	var out bytes.Buffer
	printContext(&out, &retrieval.OrderedContext{Scope: hierarchy.Scope{Company: "initech"}})
	assert.Equal(t, "No relevant context found for initech.\n", out.String())
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, &ingest.Report{Documents: 4, Chunks: 9, Partitions: []string{"general", "company:acme"}})
	assert.Contains(t, out.String(), "Reindexed 2 partition(s)")
	assert.Contains(t, out.String(), "company:acme")
	assert.Contains(t, out.String(), "Documents: 4  Chunks: 9")
}
