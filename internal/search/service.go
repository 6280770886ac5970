package search

import (
	"context"
	"fmt"
	"log"
	"strings"

	"catalog-ranking-service/internal/domain"
	"catalog-ranking-service/internal/store"
)

// ProductIndexSearcher resolves a free-text query to product IDs.
type ProductIndexSearcher interface {
	SearchProductIDs(ctx context.Context, query string, limit int) ([]int64, error)
}

// AppearanceRecorder bumps the often-searched counters of products that
// showed up in results.
type AppearanceRecorder interface {
	RecordSearchAppearances(ctx context.Context, productIDs []int64) error
}

// Service wires the full-text sidecar to query tracking: every search is
// tracked for trending hints, and every returned product is counted as a
// search appearance. Both side effects are best-effort; the search result
// itself never fails because of them.
type Service struct {
	searcher ProductIndexSearcher
	queries  store.SearchQueryStorer
	products AppearanceRecorder
	logger   *log.Logger
}

// NewService creates a search Service.
func NewService(searcher ProductIndexSearcher, queries store.SearchQueryStorer, products AppearanceRecorder, logger *log.Logger) *Service {
	return &Service{searcher: searcher, queries: queries, products: products, logger: logger}
}

// Search runs a tracked full-text search and returns the matching product
// IDs in relevance order.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]int64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []int64{}, nil
	}

	if _, err := s.queries.TrackQuery(ctx, query); err != nil {
		s.logger.Printf("WARN: Failed to track search query %q: %v", query, err)
	}

	ids, err := s.searcher.SearchProductIDs(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search: querying product index: %w", err)
	}

	if err := s.products.RecordSearchAppearances(ctx, ids); err != nil {
		s.logger.Printf("WARN: Failed to record search appearances: %v", err)
	}
	return ids, nil
}

// Hints returns the currently trending search queries.
func (s *Service) Hints(ctx context.Context, limit int) ([]domain.SearchQuery, error) {
	hints, err := s.queries.TrendingQueries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("search: loading trending queries: %w", err)
	}
	return hints, nil
}
