package ranking

import (
	"math"
	"strings"

	"ProductScout/internal/domain"
)

// Dimension weights of the overall score.
const (
	WeightQueryFit          = 0.30
	WeightRedditEndorsement = 0.25
	WeightSocialProof       = 0.15
	WeightRisk              = 0.15
	WeightConfidence        = 0.15
)

// Score computes all dimensions for one candidate.
func Score(candidate domain.CandidateProduct, evidence []domain.Evidence, intent domain.ParsedIntent) domain.ScoringDimensions {
	d := domain.ScoringDimensions{
		QueryFit:            QueryFit(evidence, intent),
		RedditEndorsement:   RedditEndorsement(evidence),
		SocialProofCoverage: SocialProofCoverage(evidence, candidate.MentionCount),
		RiskScore:           RiskScore(evidence),
		ConfidenceScore:     ConfidenceScore(evidence, candidate.MentionCount),
	}
	d.Overall = Overall(d)
	return d
}

// Overall is the weighted sum of the five dimensions, rounded.
func Overall(d domain.ScoringDimensions) int {
	return round(WeightQueryFit*float64(d.QueryFit) +
		WeightRedditEndorsement*float64(d.RedditEndorsement) +
		WeightSocialProof*float64(d.SocialProofCoverage) +
		WeightRisk*float64(d.RiskScore) +
		WeightConfidence*float64(d.ConfidenceScore))
}

// QueryFit is the share of intent terms echoed by evidence themes or claim tags.
// A term matches when any of its words is a substring of any theme or tag.
func QueryFit(evidence []domain.Evidence, intent domain.ParsedIntent) int {
	if len(evidence) == 0 {
		return 20
	}
	terms := intent.Terms()
	if len(terms) == 0 {
		return 50
	}

	var tags []string
	for _, e := range evidence {
		for _, t := range e.Themes {
			tags = append(tags, strings.ToLower(t))
		}
		for _, t := range e.ClaimTags {
			tags = append(tags, strings.ToLower(t))
		}
	}

	matched := 0
	for _, term := range terms {
		if termMatches(strings.ToLower(term), tags) {
			matched++
		}
	}
	ratio := float64(matched) / float64(len(terms))
	return clamp(math.Min(100, 20+80*ratio))
}

func termMatches(term string, tags []string) bool {
	for _, word := range strings.Fields(term) {
		for _, tag := range tags {
			if strings.Contains(tag, word) {
				return true
			}
		}
	}
	return false
}

// RedditEndorsement rewards volume and positivity of Reddit evidence.
func RedditEndorsement(evidence []domain.Evidence) int {
	count, positive := 0, 0
	for _, e := range evidence {
		if e.Platform != domain.PlatformReddit {
			continue
		}
		count++
		if e.Sentiment == domain.SentimentPositive {
			positive++
		}
	}
	if count == 0 {
		return 10
	}
	volume := math.Min(50, float64(count*5))
	return clamp(math.Min(100, volume+float64(positive)/float64(count)*50))
}

// SocialProofCoverage rewards platform breadth, evidence volume and raw mentions.
func SocialProofCoverage(evidence []domain.Evidence, mentionCount int) int {
	platforms := make(map[domain.Platform]struct{})
	for _, e := range evidence {
		platforms[e.Platform] = struct{}{}
	}
	score := float64(len(platforms)*20) +
		math.Min(40, float64(len(evidence)*3)) +
		math.Min(20, float64(mentionCount*2))
	return clamp(math.Min(100, score))
}

// RiskScore is the inverted complaint rate: 100 when nothing is negative, 0 from two thirds negative.
func RiskScore(evidence []domain.Evidence) int {
	if len(evidence) == 0 {
		return 50
	}
	negative := 0
	for _, e := range evidence {
		if e.Sentiment == domain.SentimentNegative {
			negative++
		}
	}
	ratio := float64(negative) / float64(len(evidence))
	return clamp(math.Max(0, 100-ratio*150))
}

// ConfidenceScore grows with evidence volume, distinct sources and mentions.
func ConfidenceScore(evidence []domain.Evidence, mentionCount int) int {
	urls := make(map[string]struct{})
	for _, e := range evidence {
		if e.SourceURL != "" {
			urls[e.SourceURL] = struct{}{}
		}
	}
	score := math.Min(50, float64(len(evidence)*5)) +
		math.Min(30, float64(len(urls)*5)) +
		math.Min(20, float64(mentionCount*2))
	return clamp(score)
}

func round(v float64) int {
	return int(math.Round(v))
}

func clamp(v float64) int {
	return max(0, min(100, round(v)))
}
