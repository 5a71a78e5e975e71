// Package optimizer implements ContextOptimizer: fitting a ranked
// candidate set into a token budget for a downstream LLM context window, via
// HyDE-style query expansion, MMR diversity, token-budget trimming, and
// long-context reordering, run in that fixed order.
package optimizer

import (
	"strings"

	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/mmr"
	"github.com/memsearch/memsearch/internal/vectormath"
)

// Options controls which passes run and their parameters. MMR and budget
// trim are independently toggleable; HyDE only has an effect when a query
// embedding is supplied to ExpandQuery.
type Options struct {
	UseMMR      bool
	MMRLambda   float64
	TokenBudget int // 0 means no trimming
	UseReorder  bool
}

// Report describes which passes ran and the before/after token counts, for
// callers that want to surface this to the user or log it.
type Report struct {
	MMRApplied     bool
	TrimApplied    bool
	ReorderApplied bool
	TokensBefore   int
	TokensAfter    int
	Dropped        int
}

// EstimateTokens approximates token count as
// ceil(1.3 * whitespace word count).
func EstimateTokens(content string) int {
	words := len(strings.Fields(content))
	return int((1.3 * float64(words)) + 0.999999)
}

func totalTokens(units []*memory.Unit) int {
	total := 0
	for _, u := range units {
		total += EstimateTokens(u.Content)
	}
	return total
}

// Candidate mirrors mmr.Candidate to avoid importing internal/hybrid; score
// is whatever relevance ranking the caller wants MMR to diversify around.
type Candidate struct {
	Unit  *memory.Unit
	Score float64
}

// Optimize runs HyDE (already applied upstream to the query vector, if any;
// this function operates purely on the candidate set) -> MMR -> budget-trim
// -> reorder, per the fixed composition order, and returns the final ordered
// subset plus a Report.
func Optimize(candidates []Candidate, opts Options) ([]*memory.Unit, Report) {
	units := make([]*memory.Unit, len(candidates))
	for i, c := range candidates {
		units[i] = c.Unit
	}

	report := Report{TokensBefore: totalTokens(units)}

	if opts.UseMMR && len(candidates) > 0 {
		limit := len(candidates)
		mmrCandidates := make([]mmr.Candidate, len(candidates))
		for i, c := range candidates {
			mmrCandidates[i] = mmr.Candidate{Unit: c.Unit, Score: c.Score}
		}
		lambda := opts.MMRLambda
		if lambda == 0 {
			lambda = 0.5
		}
		selected := mmr.Select(mmrCandidates, lambda, limit)
		units = make([]*memory.Unit, len(selected))
		for i, s := range selected {
			units[i] = s.Unit
		}
		report.MMRApplied = true
	}

	if opts.TokenBudget > 0 {
		units, report.Dropped = trimToBudget(units, opts.TokenBudget)
		report.TrimApplied = true
	}

	if opts.UseReorder {
		units = longContextReorder(units)
		report.ReorderApplied = true
	}

	report.TokensAfter = totalTokens(units)
	return units, report
}

// trimToBudget sorts by importance descending and admits units greedily
// until the next one would exceed budget. The input order is otherwise
// preserved as a stable sort (ties keep their relative order).
func trimToBudget(units []*memory.Unit, budget int) ([]*memory.Unit, int) {
	ordered := make([]*memory.Unit, len(units))
	copy(ordered, units)
	stableSortByImportanceDesc(ordered)

	kept := make([]*memory.Unit, 0, len(ordered))
	used := 0
	for _, u := range ordered {
		cost := EstimateTokens(u.Content)
		if used+cost > budget {
			break
		}
		kept = append(kept, u)
		used += cost
	}
	return kept, len(units) - len(kept)
}

func stableSortByImportanceDesc(units []*memory.Unit) {
	// insertion sort: stable, and these lists are small (overfetch-bounded).
	for i := 1; i < len(units); i++ {
		j := i
		for j > 0 && units[j-1].Importance < units[j].Importance {
			units[j-1], units[j] = units[j], units[j-1]
			j--
		}
	}
}

// longContextReorder sorts by importance descending, splits alternately into
// head/tail, and concatenates head ++ reverse(tail), placing the most
// important items at both ends of the output.
func longContextReorder(units []*memory.Unit) []*memory.Unit {
	ordered := make([]*memory.Unit, len(units))
	copy(ordered, units)
	stableSortByImportanceDesc(ordered)

	var head, tail []*memory.Unit
	for i, u := range ordered {
		if i%2 == 0 {
			head = append(head, u)
		} else {
			tail = append(tail, u)
		}
	}
	result := make([]*memory.Unit, 0, len(ordered))
	result = append(result, head...)
	for i := len(tail) - 1; i >= 0; i-- {
		result = append(result, tail[i])
	}
	return result
}

var leadingInterrogatives = map[string]string{
	"how":   "a detailed step-by-step explanation describing how it is done, including the relevant tools, methods, and context",
	"what":  "a clear definition and description explaining what it is, its purpose, and its key characteristics",
	"why":   "a thorough explanation of the underlying reasons, causes, and motivations behind it",
	"when":  "a precise account of the relevant timing, sequence of events, and conditions under which it occurs",
	"who":   "an identification of the relevant people, roles, or entities involved and their responsibilities",
	"where": "a description of the relevant location, context, or place where it applies",
}

// HypotheticalAnswer synthesizes a deterministic hypothetical-answer string
// from the query's lead interrogative word. If the query has no recognized
// lead interrogative, the query itself is echoed back (no expansion).
func HypotheticalAnswer(query string) string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ""
	}
	fields := strings.Fields(trimmed)
	lead := strings.ToLower(strings.Trim(fields[0], "?,.!"))
	expansion, ok := leadingInterrogatives[lead]
	if !ok {
		return trimmed
	}
	return trimmed + ": " + expansion
}

// ExpandQuery implements the HyDE pass: average the query embedding with the
// embedding of its synthesized hypothetical answer and re-normalize. embed
// is the caller's embedding function (kept abstract so this package never
// depends on internal/embedding); it is only called when hyDoc differs from
// query (an interrogative was recognized).
func ExpandQuery(queryVector []float32, query string, embed func(text string) ([]float32, error)) ([]float32, error) {
	hyDoc := HypotheticalAnswer(query)
	if hyDoc == "" || hyDoc == strings.TrimSpace(query) || queryVector == nil {
		return queryVector, nil
	}
	hyVec, err := embed(hyDoc)
	if err != nil {
		return queryVector, err
	}
	avg, err := vectormath.Average([][]float32{queryVector, hyVec})
	if err != nil {
		return queryVector, err
	}
	return vectormath.Normalize(avg), nil
}
