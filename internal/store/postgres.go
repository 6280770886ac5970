package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"catalog-ranking-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrRankingIndexNotFound     = errors.New("store: ranking index not found")
	ErrProductNotFound          = errors.New("store: product not found")
	ErrProductSKUExists         = errors.New("store: product SKU already exists")
	ErrProductSlugExists        = errors.New("store: product slug already exists")
	ErrCatalogNotFound          = errors.New("store: catalog not found")
	ErrCatalogSlugExists        = errors.New("store: catalog slug already exists under this parent")
	ErrListingAttributeNotFound = errors.New("store: listing attribute not found")
	ErrTagNotFound              = errors.New("store: tag catalog not found")
)

// PostgresStore implements the RankingStorer, ProductStorer, CatalogStorer
// and SearchQueryStorer interfaces using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// --- RankingStorer Implementation ---

// IncrementCounter adds amount to the current-week bucket of one ranking
// index. The whole read-modify-write happens inside a single UPDATE, so
// concurrent increments never lose counts.
func (s *PostgresStore) IncrementCounter(ctx context.Context, indexID int64, amount int) error {
	if amount < 1 {
		return domain.ErrInvalidIncrement
	}
	query := `
		UPDATE store.ranking_indexes
		SET counter = jsonb_set(counter, '{first_week}', to_jsonb((counter->>'first_week')::int + $1))
		WHERE id = $2;
	`
	result, err := s.db.ExecContext(ctx, query, amount, indexID)
	if err != nil {
		return fmt.Errorf("store: IncrementCounter failed to execute update: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: IncrementCounter failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRankingIndexNotFound
	}
	return nil
}

// UpdateIndex recomputes the decayed index from the weekly buckets and
// rotates them, as one atomic statement. Each call consumes one scheduling
// period; the recalculation jobs are the only intended callers.
func (s *PostgresStore) UpdateIndex(ctx context.Context, indexID int64) error {
	query := `
		UPDATE store.ranking_indexes
		SET index_value = (counter->>'first_week')::int * $1
			+ (counter->>'second_week')::int * $2
			+ (counter->>'third_week')::int * $3,
		    counter = jsonb_build_object(
			'first_week', 0,
			'second_week', (counter->>'first_week')::int,
			'third_week', (counter->>'second_week')::int)
		WHERE id = $4;
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.FirstWeekWeight, domain.SecondWeekWeight, domain.ThirdWeekWeight, indexID)
	if err != nil {
		return fmt.Errorf("store: UpdateIndex failed to execute update: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: UpdateIndex failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRankingIndexNotFound
	}
	return nil
}

// ListRankingIndexIDs returns the index IDs owned by one entity kind, for the
// periodic recalculation jobs to walk.
func (s *PostgresStore) ListRankingIndexIDs(ctx context.Context, owner IndexOwner) ([]int64, error) {
	var query string
	switch owner {
	case OwnerProductPopular:
		query = `SELECT popular_index_id FROM store.products WHERE publish = TRUE ORDER BY id;`
	case OwnerProductSales:
		query = `SELECT sales_index_id FROM store.products WHERE publish = TRUE ORDER BY id;`
	case OwnerProductOftenSearch:
		query = `SELECT often_search_index_id FROM store.products WHERE publish = TRUE ORDER BY id;`
	case OwnerCatalog:
		query = `SELECT popular_index_id FROM store.catalogs ORDER BY id;`
	case OwnerListingAttribute:
		query = `SELECT popular_index_id FROM store.listing_attributes ORDER BY id;`
	case OwnerSearchQuery:
		query = `SELECT popular_index_id FROM store.search_queries ORDER BY id;`
	default:
		return nil, fmt.Errorf("store: unknown index owner %q", owner)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: ListRankingIndexIDs failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: ListRankingIndexIDs failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListRankingIndexIDs iteration error: %w", err)
	}
	return ids, nil
}

// createRankingIndex inserts a zeroed index inside the caller's transaction.
// Indexes are only ever created together with their owning row.
func createRankingIndex(ctx context.Context, tx *sql.Tx) (int64, error) {
	query := `
		INSERT INTO store.ranking_indexes (index_value, counter)
		VALUES (0, '{"first_week": 0, "second_week": 0, "third_week": 0}'::jsonb)
		RETURNING id;
	`
	var id int64
	if err := tx.QueryRowContext(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: failed to create ranking index: %w", err)
	}
	return id, nil
}

// scanCounter decodes the JSONB counter column.
func scanCounter(raw []byte, c *domain.Counter) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("store: failed to decode counter json: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		log.Println("INFO: Closing database connection pool...")
		if err := s.db.Close(); err != nil {
			log.Printf("ERROR: Failed to close database connection pool: %v", err)
			return err
		}
		log.Println("INFO: Database connection pool closed successfully.")
	}
	return nil
}
