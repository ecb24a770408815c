package domain

import (
	"context"
	"time"
)

type ReputationComponents struct {
	BaseScore        float64 `json:"base_score"`
	VolumeBonus      float64 `json:"volume_bonus"`
	FreshnessPenalty float64 `json:"freshness_penalty"`
}

// ReputationRecord is a derived snapshot; it can always be recomputed from the cache.
type ReputationRecord struct {
	ZipCode        string               `json:"zip"`
	Neighborhood   string               `json:"neighborhood"`
	City           string               `json:"city"`
	IndexScore     float64              `json:"score"`
	DataVolume     int                  `json:"volume"`
	DataFreshness  *int                 `json:"age"`
	SentimentScore float64              `json:"sentiment_score"`
	LastUpdated    time.Time            `json:"last_updated"`
	Components     ReputationComponents `json:"components"`
	Summary        string               `json:"summary,omitempty"`
	Message        string               `json:"message,omitempty"`
}

type ReputationRepository interface {
	SaveReputation(ctx context.Context, rec ReputationRecord) error
	GetReputation(ctx context.Context, zipCode string) (*ReputationRecord, error)
}
