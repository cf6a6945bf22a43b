package domain

import "time"

// ScoringDimensions holds the five 0-100 scores plus the weighted overall.
type ScoringDimensions struct {
	QueryFit            int `json:"queryFit"`
	RedditEndorsement   int `json:"redditEndorsement"`
	SocialProofCoverage int `json:"socialProofCoverage"`
	RiskScore           int `json:"riskScore"`
	ConfidenceScore     int `json:"confidenceScore"`
	Overall             int `json:"overall"`
}

// Citation is a quote kept alongside a ranked product.
type Citation struct {
	Quote      string    `json:"quote"`
	SourceURL  string    `json:"sourceUrl"`
	Platform   Platform  `json:"platform"`
	CapturedAt time.Time `json:"capturedAt"`
}

// RankedProduct is one entry of the top-10.
type RankedProduct struct {
	ProductID string            `json:"productId"`
	Product   CandidateProduct  `json:"product"`
	Rank      int               `json:"rank"`
	Scores    ScoringDimensions `json:"scores"`
	Rationale string            `json:"rationale"`
	Citations []Citation        `json:"citations"`
	Evidence  []Evidence        `json:"-"`
}

// RankingResult is the output of one ranking run.
type RankingResult struct {
	Products       []RankedProduct `json:"products"`
	CandidateCount int             `json:"candidateCount"`
}
