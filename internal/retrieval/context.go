package retrieval

import (
	"strings"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/vectorstore"
)

// Section holds the matches of one hierarchy level.
type Section struct {
	Level  hierarchy.Level            `json:"level"`
	Label  string                     `json:"label"`
	Chunks []vectorstore.SearchResult `json:"chunks"`
}

// OrderedContext is the assembled context of one request: non-empty
// sections in plan order, most specific level first.
type OrderedContext struct {
	Scope    hierarchy.Scope `json:"scope"`
	Sections []Section       `json:"sections"`
}

// Empty reports whether no level matched.
func (c *OrderedContext) Empty() bool {
	return c == nil || len(c.Sections) == 0
}

// Len returns the total number of chunks.
func (c *OrderedContext) Len() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, s := range c.Sections {
		n += len(s.Chunks)
	}
	return n
}

// Text renders the sections as labeled blocks:
//
//	EMPLOYEE-SPECIFIC INFORMATION:
//	chunk
//
//	chunk
//
//	COMPANY-LEVEL INFORMATION:
//	chunk
func (c *OrderedContext) Text() string {
	if c.Empty() {
		return ""
	}
	var b strings.Builder
	for i, s := range c.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s.Label)
		b.WriteString(":\n")
		for j, chunk := range s.Chunks {
			if j > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(chunk.Content)
		}
	}
	return b.String()
}

// Label returns the section heading of level.
func Label(level hierarchy.Level) string {
	switch level {
	case hierarchy.LevelEmployee:
		return "EMPLOYEE-SPECIFIC INFORMATION"
	case hierarchy.LevelDepartment:
		return "DEPARTMENT-LEVEL INFORMATION"
	case hierarchy.LevelCompany:
		return "COMPANY-LEVEL INFORMATION"
	case hierarchy.LevelGeneral:
		return "GENERAL COMPANY INFORMATION"
	default:
		return strings.ToUpper(level.String()) + " INFORMATION"
	}
}
