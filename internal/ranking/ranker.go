// Package ranking scores resolved candidates against the parsed intent and
// keeps the best ten with short rationales and citations.
package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
	"ProductScout/internal/resilience"
)

const (
	// TopN is the maximum number of ranked products.
	TopN = 10
	// MaxCitations is the number of evidence items kept per ranked product.
	MaxCitations = 5
)

// DefaultRationale is used for every rank the LLM does not explain.
func DefaultRationale(rank int) string {
	return fmt.Sprintf("Ranked #%d based on social proof analysis.", rank)
}

// Ranker orders candidates and writes rationales.
type Ranker struct {
	llm    ports.LLM
	retry  resilience.RetryPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewRanker builds a ranker; now may be nil.
func NewRanker(llm ports.LLM, retry resilience.RetryPolicy, log *slog.Logger, now func() time.Time) *Ranker {
	if now == nil {
		now = time.Now
	}
	return &Ranker{llm: llm, retry: retry, logger: log, now: now}
}

// Rank scores every candidate, keeps the top ten by overall score and attaches
// rationales and citations. Ties keep input order. It never fails.
func (r *Ranker) Rank(ctx context.Context, items []domain.CandidateEvidence, intent domain.IntentResult) domain.RankingResult {
	ranked := make([]domain.RankedProduct, 0, len(items))
	for _, it := range items {
		ranked = append(ranked, domain.RankedProduct{
			Product:  it.Candidate,
			Scores:   Score(it.Candidate, it.Evidence, intent.Intent),
			Evidence: it.Evidence,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Scores.Overall > ranked[j].Scores.Overall
	})
	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}

	capturedAt := r.now().UTC()
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Citations = citations(ranked[i].Evidence, capturedAt)
	}

	rationales := r.rationales(ctx, ranked, intent)
	for i := range ranked {
		if text := strings.TrimSpace(rationales[ranked[i].Rank]); text != "" {
			ranked[i].Rationale = text
		} else {
			ranked[i].Rationale = DefaultRationale(ranked[i].Rank)
		}
	}

	return domain.RankingResult{Products: ranked, CandidateCount: len(items)}
}

func citations(evidence []domain.Evidence, capturedAt time.Time) []domain.Citation {
	n := min(MaxCitations, len(evidence))
	out := make([]domain.Citation, 0, n)
	for _, e := range evidence[:n] {
		out = append(out, domain.Citation{
			Quote:      e.Quote,
			SourceURL:  e.SourceURL,
			Platform:   e.Platform,
			CapturedAt: capturedAt,
		})
	}
	return out
}

type rationale struct {
	Rank      int    `json:"rank"`
	Rationale string `json:"rationale"`
}

// rationaleList accepts {"rationales": [{rank, rationale}]} or a bare array of strings.
type rationaleList []rationale

func (l *rationaleList) UnmarshalJSON(data []byte) error {
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		var texts []string
		if err := json.Unmarshal(data, &texts); err == nil {
			items := make([]rationale, len(texts))
			for i, text := range texts {
				items[i] = rationale{Rank: i + 1, Rationale: text}
			}
			*l = items
			return nil
		}
		var items []rationale
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var wrapped struct {
		Rationales []rationale `json:"rationales"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Rationales
	return nil
}

// rationales returns rationale text by rank; empty on failure.
func (r *Ranker) rationales(ctx context.Context, ranked []domain.RankedProduct, intent domain.IntentResult) map[int]string {
	out := make(map[int]string, len(ranked))
	if len(ranked) == 0 || r.llm == nil {
		return out
	}

	prompt := buildRationalePrompt(ranked, intent)
	policy := r.retry
	policy.OnRetry = func(attempt int, err error) {
		r.warn("rationale retry", "attempt", attempt, "error", err)
	}
	list, err := resilience.Retry(ctx, policy, func(ctx context.Context) (rationaleList, error) {
		var out rationaleList
		err := r.llm.GenerateJSON(ctx, prompt, &out)
		return out, err
	})
	if err != nil {
		r.warn("rationale generation failed, using defaults", "error", err)
		return out
	}

	for _, item := range list {
		if item.Rank >= 1 && item.Rank <= len(ranked) {
			out[item.Rank] = item.Rationale
		}
	}
	return out
}

func buildRationalePrompt(ranked []domain.RankedProduct, intent domain.IntentResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A user is looking for: %s\n", intent.Intent.UseCase)
	if terms := intent.Intent.Terms(); len(terms) > 0 {
		fmt.Fprintf(&b, "Criteria: %s\n", strings.Join(terms, ", "))
	}
	b.WriteString("\nThese products were ranked from community evidence. ")
	b.WriteString("Write one short sentence per rank explaining why it sits there, citing the scores or themes.\n")
	b.WriteString(`Return {"rationales": [{"rank": 1, "rationale": ""}]}.`)
	b.WriteString("\n\n")

	for _, p := range ranked {
		pos, neu, neg := sentimentCounts(p.Evidence)
		fmt.Fprintf(&b, "#%d %s (%s)\n", p.Rank, p.Product.DisplayName(), p.Product.Category)
		fmt.Fprintf(&b, "  scores: overall=%d fit=%d reddit=%d coverage=%d risk=%d confidence=%d\n",
			p.Scores.Overall, p.Scores.QueryFit, p.Scores.RedditEndorsement,
			p.Scores.SocialProofCoverage, p.Scores.RiskScore, p.Scores.ConfidenceScore)
		fmt.Fprintf(&b, "  evidence: %d items (%d positive, %d neutral, %d negative), %d mentions\n",
			len(p.Evidence), pos, neu, neg, p.Product.MentionCount)
		if themes := topThemes(p.Evidence, 5); len(themes) > 0 {
			fmt.Fprintf(&b, "  top themes: %s\n", strings.Join(themes, ", "))
		}
	}
	return b.String()
}

func sentimentCounts(evidence []domain.Evidence) (pos, neu, neg int) {
	for _, e := range evidence {
		switch e.Sentiment {
		case domain.SentimentPositive:
			pos++
		case domain.SentimentNegative:
			neg++
		default:
			neu++
		}
	}
	return pos, neu, neg
}

// topThemes returns the n most frequent themes, ties broken alphabetically.
func topThemes(evidence []domain.Evidence, n int) []string {
	counts := make(map[string]int)
	for _, e := range evidence {
		for _, t := range e.Themes {
			counts[t]++
		}
	}
	themes := make([]string, 0, len(counts))
	for t := range counts {
		themes = append(themes, t)
	}
	sort.Slice(themes, func(i, j int) bool {
		if counts[themes[i]] != counts[themes[j]] {
			return counts[themes[i]] > counts[themes[j]]
		}
		return themes[i] < themes[j]
	})
	if len(themes) > n {
		themes = themes[:n]
	}
	return themes
}

func (r *Ranker) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
