package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"catalog-ranking-service/internal/domain"
)

// --- SearchQueryStorer Implementation ---

// TrackQuery registers one execution of a search query. First sighting
// inserts the row with a fresh ranking index; repeats bump count_requests.
// Either way the query's popularity counter is incremented, all in one
// transaction.
func (s *PostgresStore) TrackQuery(ctx context.Context, text string) (*domain.SearchQuery, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: TrackQuery failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE store.search_queries
		SET count_requests = count_requests + 1
		WHERE text = $1
		RETURNING id, text, count_requests, popular_index_id, created_at;
	`
	var sq domain.SearchQuery
	err = tx.QueryRowContext(ctx, updateQuery, text).Scan(
		&sq.ID, &sq.Text, &sq.CountRequests, &sq.Popular.ID, &sq.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		popularID, idxErr := createRankingIndex(ctx, tx)
		if idxErr != nil {
			return nil, idxErr
		}
		insertQuery := `
			INSERT INTO store.search_queries (text, count_requests, popular_index_id)
			VALUES ($1, 1, $2)
			RETURNING id, text, count_requests, popular_index_id, created_at;
		`
		err = tx.QueryRowContext(ctx, insertQuery, text, popularID).Scan(
			&sq.ID, &sq.Text, &sq.CountRequests, &sq.Popular.ID, &sq.CreatedAt,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("store: TrackQuery failed to scan row: %w", err)
	}

	incrementQuery := `
		UPDATE store.ranking_indexes
		SET counter = jsonb_set(counter, '{first_week}', to_jsonb((counter->>'first_week')::int + 1))
		WHERE id = $1;
	`
	if _, err := tx.ExecContext(ctx, incrementQuery, sq.Popular.ID); err != nil {
		return nil, fmt.Errorf("store: TrackQuery failed to increment counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: TrackQuery failed to commit: %w", err)
	}
	return &sq, nil
}

// TrendingQueries returns the most popular tracked queries by decayed index,
// for search hint suggestions.
func (s *PostgresStore) TrendingQueries(ctx context.Context, limit int) ([]domain.SearchQuery, error) {
	if limit <= 0 {
		return []domain.SearchQuery{}, nil
	}
	query := `
		SELECT sq.id, sq.text, sq.count_requests, sq.created_at,
			r.id, r.index_value, r.counter
		FROM store.search_queries sq
		JOIN store.ranking_indexes r ON r.id = sq.popular_index_id
		WHERE r.index_value > 0
		ORDER BY r.index_value DESC, sq.count_requests DESC
		LIMIT $1;
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: TrendingQueries failed to query rows: %w", err)
	}
	defer rows.Close()

	queries := make([]domain.SearchQuery, 0, limit)
	for rows.Next() {
		var sq domain.SearchQuery
		var counterRaw []byte
		if err := rows.Scan(
			&sq.ID, &sq.Text, &sq.CountRequests, &sq.CreatedAt,
			&sq.Popular.ID, &sq.Popular.Index, &counterRaw,
		); err != nil {
			return nil, fmt.Errorf("store: TrendingQueries failed to scan row: %w", err)
		}
		if err := scanCounter(counterRaw, &sq.Popular.Counter); err != nil {
			return nil, err
		}
		queries = append(queries, sq)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: TrendingQueries iteration error: %w", err)
	}
	return queries, nil
}
