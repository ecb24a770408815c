package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pscheid92/hoodpulse/internal/domain"
)

func (s *Store) SavePosts(ctx context.Context, posts []domain.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO posts (id, neighborhood, source, title, content, url, post_date, crawl_date, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare post insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, p := range posts {
		p.EnsureID()
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to encode post metadata: %w", err)
		}
		res, err := stmt.ExecContext(ctx, p.ID, p.Neighborhood, p.Source, p.Title, p.Content, p.URL,
			toMillis(p.PostDate), p.CrawlDate.UnixMilli(), string(meta))
		if err != nil {
			return 0, fmt.Errorf("failed to insert post %s: %w", p.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit posts: %w", err)
	}
	return inserted, nil
}

func (s *Store) ListPosts(ctx context.Context, neighborhood string) ([]domain.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, neighborhood, source, title, content, url, post_date, crawl_date, metadata
		FROM posts WHERE neighborhood = ?
		ORDER BY crawl_date, id
	`, neighborhood)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var posts []domain.Post
	for rows.Next() {
		var (
			p         domain.Post
			postDate  sql.NullInt64
			crawlDate sql.NullInt64
			meta      string
		)
		if err := rows.Scan(&p.ID, &p.Neighborhood, &p.Source, &p.Title, &p.Content, &p.URL, &postDate, &crawlDate, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p.PostDate = fromMillis(postDate)
		p.CrawlDate = fromMillis(crawlDate)
		if err := json.Unmarshal([]byte(meta), &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode post metadata: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

func (s *Store) GetAnalysis(ctx context.Context, neighborhood string) (*domain.AggregatedAnalysis, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT analysis_json FROM sentiment_analysis WHERE neighborhood = ?`, neighborhood).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	var a domain.AggregatedAnalysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &a, nil
}
