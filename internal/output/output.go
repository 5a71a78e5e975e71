// Package output renders memsearchd's domain objects — recall results,
// score breakdowns, unit listings — for the terminal.
package output

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/memsearch/memsearch/internal/memory"
)

// Printer writes human-readable renderings of search results and units.
// Write errors are intentionally ignored: this is console output.
type Printer struct {
	out io.Writer
}

// New creates a Printer writing to out.
func New(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Successf prints a checked line for a completed mutation.
func (p *Printer) Successf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Noticef prints an unadorned informational line.
func (p *Printer) Noticef(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, "- %s\n", fmt.Sprintf(format, args...))
}

// Results renders a ranked recall result list: rank, retrieval source,
// blended score, unit id, a content snippet, and — when present — the
// per-factor score breakdown.
func (p *Printer) Results(results []memory.SearchResult) {
	for i, r := range results {
		_, _ = fmt.Fprintf(p.out, "%2d. [%-6s] score=%.4f  %s\n", i+1, sourceTag(r.Source), r.Score, r.Unit.ID)
		_, _ = fmt.Fprintf(p.out, "    %s\n", Snippet(r.Unit.Content, 120))
		if r.Explain != nil {
			p.breakdown(r.Explain)
		}
	}
}

func (p *Printer) breakdown(b *memory.ScoreBreakdown) {
	_, _ = fmt.Fprintf(p.out, "    recency=%.3f importance=%.3f relevance=%.3f frequency=%.3f dense=%.3f fused=%.4f\n",
		b.Recency, b.Importance, b.Relevance, b.Frequency, b.Dense, b.Fused)
}

// Units renders an unranked unit listing: rank, id, type, creation time,
// a deletion marker for soft-deleted rows, and a content snippet.
func (p *Printer) Units(units []*memory.Unit) {
	for i, u := range units {
		deleted := ""
		if u.IsDeleted {
			deleted = "  (deleted)"
		}
		_, _ = fmt.Fprintf(p.out, "%2d. %s  [%s]  %s%s\n", i+1, u.ID, strings.ToLower(string(u.Type)), u.CreatedAt.Format("2006-01-02 15:04"), deleted)
		_, _ = fmt.Fprintf(p.out, "    %s\n", Snippet(u.Content, 120))
	}
}

func sourceTag(s memory.Source) string {
	return strings.ToLower(string(s))
}

// Snippet truncates s to at most max runes on a single line, collapsing
// newlines so one unit never spans multiple listing rows.
func Snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
