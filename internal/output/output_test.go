package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/memsearch/memsearch/internal/memory"
)

func sampleResult(id, content string, score float32, src memory.Source) memory.SearchResult {
	return memory.SearchResult{
		Unit:   &memory.Unit{ID: id, Content: content, Type: memory.TypeFact},
		Score:  score,
		Source: src,
	}
}

func TestResults_RendersRankSourceScoreAndSnippet(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Results([]memory.SearchResult{
		sampleResult("id-1", "The capital of France is Paris.", 0.91, memory.SourceHybrid),
		sampleResult("id-2", "Go uses goroutines for concurrency.", 0.42, memory.SourceSparse),
	})

	out := buf.String()
	assert.Contains(t, out, " 1. [hybrid] score=0.9100  id-1")
	assert.Contains(t, out, "The capital of France is Paris.")
	assert.Contains(t, out, " 2. [sparse] score=0.4200  id-2")
}

func TestResults_IncludesBreakdownWhenPresent(t *testing.T) {
	r := sampleResult("id-1", "content", 0.5, memory.SourceDense)
	r.Explain = &memory.ScoreBreakdown{Recency: 1, Importance: 0.5, Relevance: 0.25, Frequency: 0.1, Dense: 0.25, Fused: 0.0123}

	buf := &bytes.Buffer{}
	New(buf).Results([]memory.SearchResult{r})

	out := buf.String()
	assert.Contains(t, out, "recency=1.000")
	assert.Contains(t, out, "importance=0.500")
	assert.Contains(t, out, "fused=0.0123")
}

func TestResults_OmitsBreakdownWhenAbsent(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Results([]memory.SearchResult{sampleResult("id-1", "content", 0.5, memory.SourceDense)})
	assert.NotContains(t, buf.String(), "recency=")
}

func TestUnits_MarksSoftDeletedRows(t *testing.T) {
	created := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)
	live := &memory.Unit{ID: "a", Content: "kept", Type: memory.TypeSemantic, CreatedAt: created}
	gone := &memory.Unit{ID: "b", Content: "hidden", Type: memory.TypeEpisodic, CreatedAt: created, IsDeleted: true}

	buf := &bytes.Buffer{}
	New(buf).Units([]*memory.Unit{live, gone})

	out := buf.String()
	assert.Contains(t, out, " 1. a  [semantic]  2026-07-01 09:30\n")
	assert.Contains(t, out, " 2. b  [episodic]  2026-07-01 09:30  (deleted)\n")
}

func TestSnippet_CollapsesNewlinesAndTruncatesByRune(t *testing.T) {
	assert.Equal(t, "one two three", Snippet("one\ntwo\n\n three", 120))

	long := strings.Repeat("héllo ", 40)
	got := Snippet(long, 20)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, 23, len([]rune(got)))
}

func TestSuccessfAndNoticef_Prefixes(t *testing.T) {
	buf := &bytes.Buffer{}
	p := New(buf)
	p.Successf("stored %s", "id-1")
	p.Noticef("no matches")

	assert.Contains(t, buf.String(), "✓ stored id-1\n")
	assert.Contains(t, buf.String(), "- no matches\n")
}
