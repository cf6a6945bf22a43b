// Package resolver merges candidates that name the same physical product in
// different ways: a cheap lexical pass, then an LLM pass for large sets.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
	"ProductScout/internal/resilience"
)

// JaccardThreshold is the token-set similarity above which two names are merged.
const JaccardThreshold = 0.7

// Config gates the LLM pass.
type Config struct {
	// Threshold is the candidate count above which the LLM pass runs.
	Threshold int
	// Window is how many top candidates are sent to the LLM.
	Window int
}

// Resolver deduplicates candidates.
type Resolver struct {
	llm    ports.LLM
	retry  resilience.RetryPolicy
	cfg    Config
	logger *slog.Logger
}

// NewResolver builds a resolver; a nil llm disables the semantic pass.
func NewResolver(llm ports.LLM, retry resilience.RetryPolicy, cfg Config, log *slog.Logger) *Resolver {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 20
	}
	if cfg.Window <= 0 {
		cfg.Window = 80
	}
	return &Resolver{llm: llm, retry: retry, cfg: cfg, logger: log}
}

// Resolve never fails and never increases the candidate count or changes the
// total mention count. The input slice is not modified.
func (r *Resolver) Resolve(ctx context.Context, candidates []domain.CandidateProduct) []domain.CandidateProduct {
	if len(candidates) == 0 {
		return []domain.CandidateProduct{}
	}

	merged := MergeLexical(candidates)
	r.debug("lexical merge", "before", len(candidates), "after", len(merged))

	if len(merged) > r.cfg.Threshold && r.llm != nil {
		merged = r.mergeSemantic(ctx, merged)
	}

	sortByCount(merged)
	return merged
}

// MergeLexical greedily groups candidates whose normalized names are similar.
// Each group keeps the identity of its most-mentioned member.
func MergeLexical(candidates []domain.CandidateProduct) []domain.CandidateProduct {
	if len(candidates) <= 1 {
		return cloneAll(candidates)
	}

	type group struct {
		rep     string
		members []domain.CandidateProduct
	}
	var groups []*group

	for _, c := range candidates {
		name := Normalize(c.Brand + " " + c.Model)
		var target *group
		for _, g := range groups {
			if Similar(g.rep, name) {
				target = g
				break
			}
		}
		if target == nil {
			groups = append(groups, &group{rep: name, members: []domain.CandidateProduct{c}})
			continue
		}
		target.members = append(target.members, c)
	}

	out := make([]domain.CandidateProduct, 0, len(groups))
	for _, g := range groups {
		out = append(out, collapse(g.members))
	}
	sortByCount(out)
	return out
}

// collapse keeps the highest-count member's identity (first wins on ties).
func collapse(members []domain.CandidateProduct) domain.CandidateProduct {
	best := 0
	for i, m := range members {
		if m.MentionCount > members[best].MentionCount {
			best = i
		}
	}
	canonical := clone(members[best])
	canonical.MentionCount = 0
	canonical.Sources = nil

	var all [][]string
	for _, m := range members {
		canonical.MentionCount += m.MentionCount
		all = append(all, m.Sources)
	}
	canonical.Sources = unionSources(all...)
	return canonical
}

// Normalize lowercases, strips non-alphanumerics and collapses whitespace.
func Normalize(name string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		if unicode.IsSpace(r) {
			return ' '
		}
		return -1
	}, name)
	return strings.Join(strings.Fields(mapped), " ")
}

// Similar reports whether two normalized names denote the same product.
func Similar(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return Jaccard(a, b) > JaccardThreshold
}

// Jaccard is |A∩B| / |A∪B| over the whitespace token sets of a and b.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// MergeGroup names entries to fold into a canonical one, by list index.
type MergeGroup struct {
	CanonicalIndex int   `json:"canonicalIndex"`
	MergeIndices   []int `json:"mergeIndices"`
}

// groupList accepts {"groups": [...]} or a bare array.
type groupList []MergeGroup

func (l *groupList) UnmarshalJSON(data []byte) error {
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		var items []MergeGroup
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var wrapped struct {
		Groups []MergeGroup `json:"groups"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Groups
	return nil
}

func (r *Resolver) mergeSemantic(ctx context.Context, candidates []domain.CandidateProduct) []domain.CandidateProduct {
	window := min(r.cfg.Window, len(candidates))
	head := candidates[:window]
	tail := candidates[window:]

	policy := r.retry
	policy.OnRetry = func(attempt int, err error) {
		r.warn("semantic merge retry", "attempt", attempt, "error", err)
	}
	prompt := buildMergePrompt(head)
	groups, err := resilience.Retry(ctx, policy, func(ctx context.Context) (groupList, error) {
		var out groupList
		err := r.llm.GenerateJSON(ctx, prompt, &out)
		return out, err
	})
	if err != nil {
		r.warn("semantic merge failed, keeping lexical result", "error", err)
		return candidates
	}

	merged := ApplyGroups(head, groups)
	r.debug("semantic merge", "before", len(head), "after", len(merged), "groups", len(groups))
	return append(merged, cloneAll(tail)...)
}

// ApplyGroups folds each group's members into its canonical entry and drops them.
// Out-of-range, self-referencing and already absorbed indices are ignored.
func ApplyGroups(candidates []domain.CandidateProduct, groups []MergeGroup) []domain.CandidateProduct {
	work := cloneAll(candidates)
	absorbed := make([]bool, len(work))

	for _, g := range groups {
		ci := g.CanonicalIndex
		if ci < 0 || ci >= len(work) || absorbed[ci] {
			continue
		}
		for _, mi := range g.MergeIndices {
			if mi < 0 || mi >= len(work) || mi == ci || absorbed[mi] {
				continue
			}
			work[ci].MentionCount += work[mi].MentionCount
			work[ci].Sources = unionSources(work[ci].Sources, work[mi].Sources)
			absorbed[mi] = true
		}
	}

	out := make([]domain.CandidateProduct, 0, len(work))
	for i, c := range work {
		if !absorbed[i] {
			out = append(out, c)
		}
	}
	return out
}

func buildMergePrompt(candidates []domain.CandidateProduct) string {
	var b strings.Builder
	b.WriteString("The numbered list below contains product names collected from different websites.\n")
	b.WriteString("Find entries that refer to the SAME physical product written differently ")
	b.WriteString("(abbreviations, missing brand, typos, marketing suffixes).\n")
	b.WriteString("Never merge different model numbers or generations of the same brand, ")
	b.WriteString("e.g. \"WF-1000XM4\" and \"WF-1000XM5\" are different products.\n\n")
	b.WriteString(`Return {"groups": [{"canonicalIndex": 0, "mergeIndices": [3, 7]}]}; return {"groups": []} when nothing should merge.`)
	b.WriteString("\n\nProducts:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s", i, c.DisplayName())
		if c.Variant != "" {
			fmt.Fprintf(&b, " (%s)", c.Variant)
		}
		fmt.Fprintf(&b, " - %s, %d mentions\n", c.Category, c.MentionCount)
	}
	return b.String()
}

func unionSources(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func sortByCount(candidates []domain.CandidateProduct) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].MentionCount > candidates[j].MentionCount
	})
}

func clone(c domain.CandidateProduct) domain.CandidateProduct {
	if c.Sources != nil {
		c.Sources = append([]string{}, c.Sources...)
	}
	return c
}

func cloneAll(candidates []domain.CandidateProduct) []domain.CandidateProduct {
	out := make([]domain.CandidateProduct, len(candidates))
	for i, c := range candidates {
		out[i] = clone(c)
	}
	return out
}

func (r *Resolver) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *Resolver) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
