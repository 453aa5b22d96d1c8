package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/hierctx/internal/retrieval"
)

// FormatLatency formats d as "X.Xms" or "X.Xs".
func FormatLatency(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderContext renders the sections of oc with styled headings and the
// source of every chunk.
func RenderContext(oc *retrieval.OrderedContext) string {
	if oc.Empty() {
		return dimStyle.Render("No relevant context found.")
	}
	var b strings.Builder
	for i, s := range oc.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(sectionStyle.Render("┃ "+s.Label) + "\n")
		for _, c := range s.Chunks {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  %s (%.2f)", c.Source, c.Score)) + "\n")
			for _, line := range strings.Split(strings.TrimSpace(c.Content), "\n") {
				b.WriteString("  " + line + "\n")
			}
		}
	}
	return b.String()
}
