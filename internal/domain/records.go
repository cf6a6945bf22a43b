package domain

import "time"

// ProductRecord is the upsert payload for a product keyed by slug.
type ProductRecord struct {
	Slug     string
	Brand    string
	Model    string
	Variant  string
	Category string
}

// SourceRecord persists one mention used as provenance.
type SourceRecord struct {
	QueryID      string
	Platform     Platform
	URL          string
	Title        string
	AuthorHandle string
	PostedAt     *time.Time
}

// EvidenceRecord persists one evidence item against stored product and source rows.
type EvidenceRecord struct {
	QueryID   string
	ProductID string
	SourceID  string
	Sentiment Sentiment
	Themes    []string
	ClaimTags []string
	Quote     string
}

// RankingEntry is one persisted rank.
type RankingEntry struct {
	ProductID string            `json:"productId"`
	Slug      string            `json:"slug"`
	Name      string            `json:"name"`
	Rank      int               `json:"rank"`
	Scores    ScoringDimensions `json:"scores"`
	Rationale string            `json:"rationale"`
	Citations []Citation        `json:"citations"`
}

// RankingRecord is the persisted ranking of one query.
type RankingRecord struct {
	ID             string         `json:"id"`
	QueryID        string         `json:"queryId"`
	CandidateCount int            `json:"candidateCount"`
	Entries        []RankingEntry `json:"entries"`
	CreatedAt      time.Time      `json:"createdAt"`
}
