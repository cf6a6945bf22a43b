package domain

import (
	"strings"
	"time"
	"unicode"
)

// ParsedIntent is the structured reading of a free-text product query.
type ParsedIntent struct {
	UseCase     string   `json:"useCase"`
	Constraints []string `json:"constraints"`
	MustHaves   []string `json:"mustHaves"`
	NiceToHaves []string `json:"niceToHaves"`
}

// Terms returns constraints, must-haves and nice-to-haves in that order.
func (i ParsedIntent) Terms() []string {
	terms := make([]string, 0, len(i.Constraints)+len(i.MustHaves)+len(i.NiceToHaves))
	terms = append(terms, i.Constraints...)
	terms = append(terms, i.MustHaves...)
	terms = append(terms, i.NiceToHaves...)
	return terms
}

// IntentResult is the intent parser output consumed by every downstream stage.
type IntentResult struct {
	Intent           ParsedIntent `json:"intent"`
	SeedTerms        []string     `json:"seedTerms"`
	InferredCategory string       `json:"inferredCategory"`
	Fallback         bool         `json:"fallback"`
}

// Platform names the external source a mention came from.
type Platform string

const (
	PlatformReddit Platform = "reddit"
	PlatformWeb    Platform = "web"
)

// Mention is a single externally retrieved passage of text.
type Mention struct {
	Platform     Platform   `json:"platform"`
	URL          string     `json:"url"`
	Title        string     `json:"title,omitempty"`
	AuthorHandle string     `json:"authorHandle,omitempty"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	Text         string     `json:"text"`
}

// CandidateProduct is a brand/model tuple aggregated across mentions.
type CandidateProduct struct {
	Brand        string   `json:"brand"`
	Model        string   `json:"model"`
	Variant      string   `json:"variant,omitempty"`
	Category     string   `json:"category"`
	MentionCount int      `json:"mentionCount"`
	Sources      []string `json:"sources"`
}

// Key is the pre-merge identity: lowercase(brand) + "|" + lowercase(model).
func (c CandidateProduct) Key() string {
	return ProductKey(c.Brand, c.Model)
}

// DisplayName joins brand and model for prompts and logs.
func (c CandidateProduct) DisplayName() string {
	return strings.TrimSpace(c.Brand + " " + c.Model)
}

// ProductKey builds the aggregation key for a brand/model pair.
func ProductKey(brand, model string) string {
	return strings.ToLower(strings.TrimSpace(brand)) + "|" + strings.ToLower(strings.TrimSpace(model))
}

// Slug builds the persistence key of a product, e.g. "sony-wf-1000xm5".
func (c CandidateProduct) Slug() string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(c.Brand + " " + c.Model) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Sentiment of one evidence item.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment maps free-form labels onto the three known values.
func ParseSentiment(value string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "positive", "pos":
		return SentimentPositive
	case "negative", "neg":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Evidence links one mention to one candidate.
type Evidence struct {
	ProductRef string    `json:"productRef"`
	Sentiment  Sentiment `json:"sentiment"`
	Themes     []string  `json:"themes"`
	ClaimTags  []string  `json:"claimTags"`
	Quote      string    `json:"quote"`
	SourceURL  string    `json:"sourceUrl"`
	Platform   Platform  `json:"platform"`
}

// MaxQuoteLength bounds Evidence.Quote in runes.
const MaxQuoteLength = 150

// TruncateQuote cuts a quote to MaxQuoteLength runes.
func TruncateQuote(quote string) string {
	quote = strings.TrimSpace(quote)
	runes := []rune(quote)
	if len(runes) <= MaxQuoteLength {
		return quote
	}
	return string(runes[:MaxQuoteLength])
}

// CandidateEvidence pairs a resolved candidate with its extracted evidence.
type CandidateEvidence struct {
	Candidate CandidateProduct `json:"candidate"`
	Evidence  []Evidence       `json:"evidence"`
}
