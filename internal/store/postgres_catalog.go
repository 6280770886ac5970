package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"catalog-ranking-service/internal/domain"
)

// --- CatalogStorer Implementation ---

// CreateCatalog inserts a catalog node together with its ranking index.
// Parent rules are validated by domain.NewCatalog before this is called; the
// store only enforces slug uniqueness within a parent.
func (s *PostgresStore) CreateCatalog(ctx context.Context, catalog *domain.Catalog) (*domain.Catalog, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: CreateCatalog failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	popularID, err := createRankingIndex(ctx, tx)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO store.catalogs
			(slug, name, short_name, object_class, parent_id, popular_index_id, active_filters)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, updated_at;
	`
	var activeFilters interface{}
	if catalog.ActiveFilters != nil {
		activeFilters = []byte(*catalog.ActiveFilters)
	}

	created := *catalog
	err = tx.QueryRowContext(ctx, query,
		catalog.Slug, catalog.Name, catalog.ShortName, catalog.ObjectClass,
		catalog.ParentID, popularID, activeFilters,
	).Scan(&created.ID, &created.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // Unique violation
			if strings.Contains(pqErr.Constraint, "catalogs_slug_parent_key") || strings.Contains(pqErr.Detail, "Key (slug") {
				return nil, ErrCatalogSlugExists
			}
		}
		return nil, fmt.Errorf("store: CreateCatalog failed to scan row: %w", err)
	}
	created.Popular = domain.RankingIndex{ID: popularID}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: CreateCatalog failed to commit: %w", err)
	}
	return &created, nil
}

// GetCatalogBySlug loads one catalog node with its ranking index and, when a
// parent exists, the parent's class for rule checks.
func (s *PostgresStore) GetCatalogBySlug(ctx context.Context, slug string) (*domain.Catalog, error) {
	query := `
		SELECT c.id, c.slug, c.name, c.short_name, c.object_class, c.parent_id, parent.object_class, parent.slug,
			c.active_filters, c.updated_at,
			r.id, r.index_value, r.counter
		FROM store.catalogs c
		JOIN store.ranking_indexes r ON r.id = c.popular_index_id
		LEFT JOIN store.catalogs parent ON parent.id = c.parent_id
		WHERE c.slug = $1;
	`
	var catalog domain.Catalog
	var parentClass sql.NullString
	var parentSlug sql.NullString
	var activeFilters sql.NullString
	var counterRaw []byte
	err := s.db.QueryRowContext(ctx, query, slug).Scan(
		&catalog.ID, &catalog.Slug, &catalog.Name, &catalog.ShortName, &catalog.ObjectClass,
		&catalog.ParentID, &parentClass, &parentSlug, &activeFilters, &catalog.UpdatedAt,
		&catalog.Popular.ID, &catalog.Popular.Index, &counterRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCatalogNotFound
		}
		return nil, fmt.Errorf("store: GetCatalogBySlug failed to scan row: %w", err)
	}
	if parentClass.Valid {
		class := domain.ObjectClass(parentClass.String)
		catalog.ParentClass = &class
	}
	if parentSlug.Valid {
		catalog.ParentSlug = &parentSlug.String
	}
	if activeFilters.Valid && activeFilters.String != "" && activeFilters.String != "null" {
		rawMsg := json.RawMessage(activeFilters.String)
		catalog.ActiveFilters = &rawMsg
	}
	if err := scanCounter(counterRaw, &catalog.Popular.Counter); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// ListingAttributes loads the filterable attributes of a listing with their
// possible values and usage indexes, in facet display order.
func (s *PostgresStore) ListingAttributes(ctx context.Context, listingID int64) ([]domain.ListingAttribute, error) {
	query := `
		SELECT la.id, la.listing_id, la.ord,
			a.id, a.group_name, a.name, a.slug, a.type, a.measure_unit,
			r.id, r.index_value, r.counter
		FROM store.listing_attributes la
		JOIN store.attributes a ON a.id = la.attribute_id
		JOIN store.ranking_indexes r ON r.id = la.popular_index_id
		WHERE la.listing_id = $1
		ORDER BY la.ord ASC, r.index_value DESC;
	`
	rows, err := s.db.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("store: ListingAttributes failed to query attributes: %w", err)
	}
	defer rows.Close()

	var attrs []domain.ListingAttribute
	for rows.Next() {
		var la domain.ListingAttribute
		var counterRaw []byte
		if err := rows.Scan(
			&la.ID, &la.ListingID, &la.Order,
			&la.Attribute.ID, &la.Attribute.GroupName, &la.Attribute.Name,
			&la.Attribute.Slug, &la.Attribute.Type, &la.Attribute.MeasureUnit,
			&la.Popular.ID, &la.Popular.Index, &counterRaw,
		); err != nil {
			return nil, fmt.Errorf("store: ListingAttributes failed to scan row: %w", err)
		}
		if err := scanCounter(counterRaw, &la.Popular.Counter); err != nil {
			return nil, err
		}
		attrs = append(attrs, la)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListingAttributes iteration error: %w", err)
	}

	if len(attrs) == 0 {
		return []domain.ListingAttribute{}, nil
	}
	if err := s.loadListingAttributeValues(ctx, attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (s *PostgresStore) loadListingAttributeValues(ctx context.Context, attrs []domain.ListingAttribute) error {
	ids := make([]int64, 0, len(attrs))
	index := make(map[int64]*domain.ListingAttribute, len(attrs))
	for i := range attrs {
		ids = append(ids, attrs[i].ID)
		index[attrs[i].ID] = &attrs[i]
	}

	query := `
		SELECT lav.listing_attribute_id, v.id, v.value, v.slug
		FROM store.listing_attribute_values lav
		JOIN store.attribute_values v ON v.id = lav.value_id
		WHERE lav.listing_attribute_id = ANY($1)
		ORDER BY lav.listing_attribute_id, v.id;
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("store: loadListingAttributeValues failed to query values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var laID int64
		var value domain.AttributeValue
		if err := rows.Scan(&laID, &value.ID, &value.Value, &value.Slug); err != nil {
			return fmt.Errorf("store: loadListingAttributeValues failed to scan row: %w", err)
		}
		if la, ok := index[laID]; ok {
			la.PossibleValues = append(la.PossibleValues, value)
		}
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("store: loadListingAttributeValues iteration error: %w", err)
	}
	return nil
}

// RecordFilterUse bumps the usage counter of one listing attribute.
func (s *PostgresStore) RecordFilterUse(ctx context.Context, listingAttributeID int64) error {
	query := `
		UPDATE store.ranking_indexes
		SET counter = jsonb_set(counter, '{first_week}', to_jsonb((counter->>'first_week')::int + 1))
		WHERE id = (SELECT popular_index_id FROM store.listing_attributes WHERE id = $1);
	`
	result, err := s.db.ExecContext(ctx, query, listingAttributeID)
	if err != nil {
		return fmt.Errorf("store: RecordFilterUse failed to execute update: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: RecordFilterUse failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrListingAttributeNotFound
	}
	return nil
}

// RecordCatalogView bumps the view counter of one catalog node.
func (s *PostgresStore) RecordCatalogView(ctx context.Context, catalogID int64) error {
	query := `
		UPDATE store.ranking_indexes
		SET counter = jsonb_set(counter, '{first_week}', to_jsonb((counter->>'first_week')::int + 1))
		WHERE id = (SELECT popular_index_id FROM store.catalogs WHERE id = $1);
	`
	result, err := s.db.ExecContext(ctx, query, catalogID)
	if err != nil {
		return fmt.Errorf("store: RecordCatalogView failed to execute update: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: RecordCatalogView failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCatalogNotFound
	}
	return nil
}
