package domain

import "time"

type SentimentLabel string

const (
	LabelPositive SentimentLabel = "positive"
	LabelNeutral  SentimentLabel = "neutral"
	LabelNegative SentimentLabel = "negative"
)

// LabelFor maps a compound score onto a label using the ±0.05 dead band.
func LabelFor(score float64) SentimentLabel {
	switch {
	case score >= 0.05:
		return LabelPositive
	case score <= -0.05:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

type SentimentScores struct {
	PositiveScore float64 `json:"positive_score"`
	NegativeScore float64 `json:"negative_score"`
	CompoundScore float64 `json:"compound_score"`
	PositiveCount float64 `json:"positive_count"`
	NegativeCount float64 `json:"negative_count"`
}

type AspectScore struct {
	Mentions int     `json:"mentions"`
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Score    float64 `json:"score"`
}

// SentimentResult is the per-post analysis. It is never persisted on its own.
type SentimentResult struct {
	PostID     string                 `json:"post_id"`
	Source     string                 `json:"source"`
	Sentiment  SentimentScores        `json:"sentiment"`
	Label      SentimentLabel         `json:"sentiment_label"`
	Aspects    map[string]AspectScore `json:"aspects"`
	KeyPhrases []string               `json:"key_phrases"`
}

type Distribution struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

type OverallSentiment struct {
	Label        SentimentLabel `json:"label"`
	Score        float64        `json:"score"`
	Confidence   float64        `json:"confidence"`
	Distribution Distribution   `json:"distribution"`
}

type AspectSummary struct {
	Aspect string `json:"aspect"`
	AspectScore
}

// AggregatedAnalysis is the per-neighborhood reduction of all stored posts.
type AggregatedAnalysis struct {
	Neighborhood     string           `json:"neighborhood"`
	PostCount        int              `json:"post_count"`
	OverallSentiment OverallSentiment `json:"overall_sentiment"`
	AspectSentiment  []AspectSummary  `json:"aspect_sentiment"`
	KeyThemes        []string         `json:"key_themes"`
	Sources          []string         `json:"sources"`
	AnalysisDate     time.Time        `json:"analysis_date"`
}

// Aspect returns the named aspect summary, if present.
func (a AggregatedAnalysis) Aspect(name string) (AspectSummary, bool) {
	for _, s := range a.AspectSentiment {
		if s.Aspect == name {
			return s, true
		}
	}
	return AspectSummary{}, false
}

// EmptyAnalysis is the neutral analysis used when no posts contributed.
func EmptyAnalysis(neighborhood string, at time.Time) AggregatedAnalysis {
	return AggregatedAnalysis{
		Neighborhood: neighborhood,
		OverallSentiment: OverallSentiment{
			Label: LabelNeutral,
		},
		AspectSentiment: []AspectSummary{},
		KeyThemes:       []string{},
		Sources:         []string{},
		AnalysisDate:    at,
	}
}
