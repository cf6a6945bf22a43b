package ranking

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"ProductScout/internal/domain"
)

func ev(platform domain.Platform, sentiment domain.Sentiment, url string, themes ...string) domain.Evidence {
	return domain.Evidence{Platform: platform, Sentiment: sentiment, SourceURL: url, Themes: themes, Quote: "q"}
}

func TestScoreFormulas(t *testing.T) {
	t.Parallel()

	intent := domain.ParsedIntent{
		Constraints: []string{"budget friendly"},
		MustHaves:   []string{"comfortable fit", "noise cancelling"},
	}
	evidence := []domain.Evidence{
		ev(domain.PlatformReddit, domain.SentimentPositive, "https://reddit.com/1", "comfort"),
		ev(domain.PlatformReddit, domain.SentimentNegative, "https://reddit.com/1", "noise"),
		ev(domain.PlatformWeb, domain.SentimentPositive, "https://example.com/a", "battery"),
		ev(domain.PlatformReddit, domain.SentimentPositive, "https://reddit.com/2"),
	}

	// Words must occur inside a tag: only "noise" matches, 1 of 3 terms.
	if got := QueryFit(evidence, intent); got != 47 {
		t.Fatalf("QueryFit = %d, want 47", got)
	}
	// 3 reddit items: min(50,15) + 2/3*50 = 48.33
	if got := RedditEndorsement(evidence); got != 48 {
		t.Fatalf("RedditEndorsement = %d, want 48", got)
	}
	// 2 platforms*20 + min(40,12) + min(20,6)
	if got := SocialProofCoverage(evidence, 3); got != 58 {
		t.Fatalf("SocialProofCoverage = %d, want 58", got)
	}
	// 100 - 0.25*150
	if got := RiskScore(evidence); got != 63 {
		t.Fatalf("RiskScore = %d, want 63", got)
	}
	// min(50,20) + min(30,15) + min(20,6)
	if got := ConfidenceScore(evidence, 3); got != 41 {
		t.Fatalf("ConfidenceScore = %d, want 41", got)
	}
}

func TestScoreDefaultsWithoutEvidence(t *testing.T) {
	t.Parallel()

	d := Score(domain.CandidateProduct{MentionCount: 1}, nil, domain.ParsedIntent{MustHaves: []string{"x"}})

	want := domain.ScoringDimensions{QueryFit: 20, RedditEndorsement: 10, SocialProofCoverage: 2, RiskScore: 50, ConfidenceScore: 2}
	want.Overall = Overall(want)
	if d != want {
		t.Fatalf("unexpected scores: %+v, want %+v", d, want)
	}
}

func TestQueryFitWithoutTerms(t *testing.T) {
	t.Parallel()

	evidence := []domain.Evidence{ev(domain.PlatformWeb, domain.SentimentNeutral, "u")}
	if got := QueryFit(evidence, domain.ParsedIntent{UseCase: "sleep"}); got != 50 {
		t.Fatalf("QueryFit = %d, want 50", got)
	}
}

func TestRiskScoreSteepPenalty(t *testing.T) {
	t.Parallel()

	evidence := []domain.Evidence{
		ev(domain.PlatformWeb, domain.SentimentNegative, "a"),
		ev(domain.PlatformWeb, domain.SentimentNegative, "b"),
		ev(domain.PlatformWeb, domain.SentimentPositive, "c"),
	}
	if got := RiskScore(evidence); got != 0 {
		t.Fatalf("RiskScore = %d, want 0", got)
	}
}

func TestScoresStayInRange(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	platforms := []domain.Platform{domain.PlatformReddit, domain.PlatformWeb, "youtube"}
	sentiments := []domain.Sentiment{domain.SentimentPositive, domain.SentimentNeutral, domain.SentimentNegative}
	intent := domain.ParsedIntent{MustHaves: []string{"battery", "comfort"}, NiceToHaves: []string{"case"}}

	for round := 0; round < 200; round++ {
		n := rng.Intn(60)
		evidence := make([]domain.Evidence, n)
		for i := range evidence {
			evidence[i] = ev(platforms[rng.Intn(len(platforms))], sentiments[rng.Intn(3)], fmt.Sprintf("u%d", rng.Intn(20)), "battery life")
		}
		d := Score(domain.CandidateProduct{MentionCount: rng.Intn(100)}, evidence, intent)

		for name, v := range map[string]int{
			"queryFit": d.QueryFit, "reddit": d.RedditEndorsement, "coverage": d.SocialProofCoverage,
			"risk": d.RiskScore, "confidence": d.ConfidenceScore, "overall": d.Overall,
		} {
			if v < 0 || v > 100 {
				t.Fatalf("%s out of range: %d", name, v)
			}
		}

		recomputed := 0.30*float64(d.QueryFit) + 0.25*float64(d.RedditEndorsement) +
			0.15*float64(d.SocialProofCoverage) + 0.15*float64(d.RiskScore) + 0.15*float64(d.ConfidenceScore)
		if math.Abs(recomputed-float64(d.Overall)) > 0.5 {
			t.Fatalf("overall %d does not match weights (%.2f)", d.Overall, recomputed)
		}
	}
}
