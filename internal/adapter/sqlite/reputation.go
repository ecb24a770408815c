package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pscheid92/hoodpulse/internal/domain"
)

func (s *Store) SaveReputation(ctx context.Context, rec domain.ReputationRecord) error {
	components, err := json.Marshal(rec.Components)
	if err != nil {
		return fmt.Errorf("failed to encode reputation components: %w", err)
	}

	var freshness sql.NullInt64
	if rec.DataFreshness != nil {
		freshness = sql.NullInt64{Int64: int64(*rec.DataFreshness), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO reputation_index (zip_code, neighborhood, city, index_score, data_volume, data_freshness,
			sentiment_score, last_updated, components_json, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(zip_code) DO UPDATE SET
			neighborhood = excluded.neighborhood,
			city = excluded.city,
			index_score = excluded.index_score,
			data_volume = excluded.data_volume,
			data_freshness = excluded.data_freshness,
			sentiment_score = excluded.sentiment_score,
			last_updated = excluded.last_updated,
			components_json = excluded.components_json,
			summary = excluded.summary
	`, rec.ZipCode, rec.Neighborhood, rec.City, rec.IndexScore, rec.DataVolume, freshness,
		rec.SentimentScore, rec.LastUpdated.UnixMilli(), string(components), rec.Summary); err != nil {
		return fmt.Errorf("failed to save reputation: %w", err)
	}
	return nil
}

func (s *Store) GetReputation(ctx context.Context, zipCode string) (*domain.ReputationRecord, error) {
	var (
		rec         domain.ReputationRecord
		freshness   sql.NullInt64
		lastUpdated sql.NullInt64
		components  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT zip_code, neighborhood, city, index_score, data_volume, data_freshness,
			sentiment_score, last_updated, components_json, summary
		FROM reputation_index WHERE zip_code = ?
	`, zipCode).Scan(&rec.ZipCode, &rec.Neighborhood, &rec.City, &rec.IndexScore, &rec.DataVolume, &freshness,
		&rec.SentimentScore, &lastUpdated, &components, &rec.Summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReputationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reputation: %w", err)
	}

	if freshness.Valid {
		age := int(freshness.Int64)
		rec.DataFreshness = &age
	}
	rec.LastUpdated = fromMillis(lastUpdated)
	if err := json.Unmarshal([]byte(components), &rec.Components); err != nil {
		return nil, fmt.Errorf("failed to decode reputation components: %w", err)
	}
	return &rec, nil
}
