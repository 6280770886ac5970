package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"catalog-ranking-service/internal/domain"
)

const productColumns = `p.id, p.slug, p.name, p.sku, p.short_description, p.price,
	p.discount_percent, p.quantity, p.publish, p.created_at, p.updated_at`

// --- ProductStorer Implementation ---

// CreateProduct inserts a product together with its three ranking indexes and
// its tag links, all in one transaction. Tag slugs must reference existing
// tag-class catalog nodes.
func (s *PostgresStore) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	popularID, err := createRankingIndex(ctx, tx)
	if err != nil {
		return nil, err
	}
	salesID, err := createRankingIndex(ctx, tx)
	if err != nil {
		return nil, err
	}
	oftenSearchID, err := createRankingIndex(ctx, tx)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO store.products
			(slug, name, sku, short_description, price, discount_percent, quantity, publish,
			 popular_index_id, sales_index_id, often_search_index_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at;
	`
	created := *product
	err = tx.QueryRowContext(ctx, query,
		product.Slug, product.Name, product.SKU, product.ShortDescription,
		product.Price, product.DiscountPercent, product.Quantity, product.Publish,
		popularID, salesID, oftenSearchID,
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // Unique violation
			if strings.Contains(pqErr.Constraint, "products_sku_key") || strings.Contains(pqErr.Detail, "Key (sku)") {
				return nil, ErrProductSKUExists
			}
			if strings.Contains(pqErr.Constraint, "products_slug_key") || strings.Contains(pqErr.Detail, "Key (slug)") {
				return nil, ErrProductSlugExists
			}
		}
		return nil, fmt.Errorf("store: CreateProduct failed to scan row: %w", err)
	}
	created.Popular = domain.RankingIndex{ID: popularID}
	created.Sales = domain.RankingIndex{ID: salesID}
	created.OftenSearch = domain.RankingIndex{ID: oftenSearchID}

	tagQuery := `
		INSERT INTO store.product_tags (product_id, catalog_id)
		SELECT $1, id FROM store.catalogs
		WHERE slug = $2 AND object_class IN ('listing', 'brand', 'selection', 'freetag');
	`
	for _, tagSlug := range product.TagSlugs {
		result, err := tx.ExecContext(ctx, tagQuery, created.ID, tagSlug)
		if err != nil {
			return nil, fmt.Errorf("store: CreateProduct failed to attach tag %q: %w", tagSlug, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("store: CreateProduct failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil, fmt.Errorf("%w: %q", ErrTagNotFound, tagSlug)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to commit: %w", err)
	}
	return &created, nil
}

// GetProductByID loads one product with all three ranking indexes, its tags
// and its attribute values.
func (s *PostgresStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `,
			rp.id, rp.index_value, rp.counter,
			rs.id, rs.index_value, rs.counter,
			ro.id, ro.index_value, ro.counter
		FROM store.products p
		JOIN store.ranking_indexes rp ON rp.id = p.popular_index_id
		JOIN store.ranking_indexes rs ON rs.id = p.sales_index_id
		JOIN store.ranking_indexes ro ON ro.id = p.often_search_index_id
		WHERE p.id = $1;
	`
	var product domain.Product
	var popularRaw, salesRaw, oftenRaw []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID, &product.Slug, &product.Name, &product.SKU, &product.ShortDescription,
		&product.Price, &product.DiscountPercent, &product.Quantity, &product.Publish,
		&product.CreatedAt, &product.UpdatedAt,
		&product.Popular.ID, &product.Popular.Index, &popularRaw,
		&product.Sales.ID, &product.Sales.Index, &salesRaw,
		&product.OftenSearch.ID, &product.OftenSearch.Index, &oftenRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductByID failed to scan row: %w", err)
	}
	if err := scanCounter(popularRaw, &product.Popular.Counter); err != nil {
		return nil, err
	}
	if err := scanCounter(salesRaw, &product.Sales.Counter); err != nil {
		return nil, err
	}
	if err := scanCounter(oftenRaw, &product.OftenSearch.Counter); err != nil {
		return nil, err
	}

	products := []domain.Product{product}
	if err := s.loadTags(ctx, products); err != nil {
		return nil, err
	}
	if err := s.loadAttributes(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// ListPublishedByListing loads the published candidate set of one listing
// page: every published product tagged with the listing, with its popularity
// index, tags and attribute values. AllowedProductIDs narrows the set when
// the request went through the search sidecar.
func (s *PostgresStore) ListPublishedByListing(ctx context.Context, params ListByListingParams) ([]domain.Product, error) {
	query := `
		SELECT ` + productColumns + `, r.id, r.index_value, r.counter
		FROM store.products p
		JOIN store.ranking_indexes r ON r.id = p.popular_index_id
		JOIN store.product_tags pt ON pt.product_id = p.id
		JOIN store.catalogs c ON c.id = pt.catalog_id
		WHERE c.slug = $1 AND c.object_class = 'listing' AND p.publish = TRUE
	`
	args := []interface{}{params.ListingSlug}
	if params.AllowedProductIDs != nil {
		query += " AND p.id = ANY($2)"
		args = append(args, pq.Array(params.AllowedProductIDs))
	}
	query += " ORDER BY p.id;"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: ListPublishedByListing failed to query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		var counterRaw []byte
		if err := rows.Scan(
			&p.ID, &p.Slug, &p.Name, &p.SKU, &p.ShortDescription,
			&p.Price, &p.DiscountPercent, &p.Quantity, &p.Publish,
			&p.CreatedAt, &p.UpdatedAt,
			&p.Popular.ID, &p.Popular.Index, &counterRaw,
		); err != nil {
			return nil, fmt.Errorf("store: ListPublishedByListing failed to scan product row: %w", err)
		}
		if err := scanCounter(counterRaw, &p.Popular.Counter); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListPublishedByListing iteration error: %w", err)
	}

	if len(products) == 0 {
		return []domain.Product{}, nil
	}
	if err := s.loadTags(ctx, products); err != nil {
		return nil, err
	}
	if err := s.loadAttributes(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// CountPublishedByListing counts the published products tagged with a listing.
func (s *PostgresStore) CountPublishedByListing(ctx context.Context, listingSlug string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM store.products p
		JOIN store.product_tags pt ON pt.product_id = p.id
		JOIN store.catalogs c ON c.id = pt.catalog_id
		WHERE c.slug = $1 AND c.object_class = 'listing' AND p.publish = TRUE;
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, listingSlug).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: CountPublishedByListing failed to scan row: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) loadTags(ctx context.Context, products []domain.Product) error {
	ids := make([]int64, 0, len(products))
	index := make(map[int64]*domain.Product, len(products))
	for i := range products {
		ids = append(ids, products[i].ID)
		index[products[i].ID] = &products[i]
	}

	query := `
		SELECT pt.product_id, c.slug
		FROM store.product_tags pt
		JOIN store.catalogs c ON c.id = pt.catalog_id
		WHERE pt.product_id = ANY($1)
		ORDER BY pt.product_id, c.slug;
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("store: loadTags failed to query tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID int64
		var slug string
		if err := rows.Scan(&productID, &slug); err != nil {
			return fmt.Errorf("store: loadTags failed to scan tag row: %w", err)
		}
		if p, ok := index[productID]; ok {
			p.TagSlugs = append(p.TagSlugs, slug)
		}
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("store: loadTags iteration error: %w", err)
	}
	return nil
}

func (s *PostgresStore) loadAttributes(ctx context.Context, products []domain.Product) error {
	ids := make([]int64, 0, len(products))
	index := make(map[int64]*domain.Product, len(products))
	for i := range products {
		ids = append(ids, products[i].ID)
		index[products[i].ID] = &products[i]
	}

	query := `
		SELECT pav.product_id, a.slug, a.type, v.id, v.value, v.slug
		FROM store.product_attribute_values pav
		JOIN store.attributes a ON a.id = pav.attribute_id
		JOIN store.attribute_values v ON v.id = pav.value_id
		WHERE pav.product_id = ANY($1)
		ORDER BY pav.product_id, a.slug, v.id;
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("store: loadAttributes failed to query attributes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID int64
		var attrSlug string
		var attrType domain.AttributeType
		var value domain.AttributeValue
		if err := rows.Scan(&productID, &attrSlug, &attrType, &value.ID, &value.Value, &value.Slug); err != nil {
			return fmt.Errorf("store: loadAttributes failed to scan attribute row: %w", err)
		}
		p, ok := index[productID]
		if !ok {
			continue
		}
		if n := len(p.Attributes); n > 0 && p.Attributes[n-1].AttributeSlug == attrSlug {
			p.Attributes[n-1].Values = append(p.Attributes[n-1].Values, value)
			continue
		}
		p.Attributes = append(p.Attributes, domain.ProductAttribute{
			AttributeSlug: attrSlug,
			AttributeType: attrType,
			Values:        []domain.AttributeValue{value},
		})
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("store: loadAttributes iteration error: %w", err)
	}
	return nil
}

// AnnotateShopStock marks products that have positive quantity in at least
// one shop of the given city.
func (s *PostgresStore) AnnotateShopStock(ctx context.Context, products []domain.Product, city string) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(products))
	for i := range products {
		ids = append(ids, products[i].ID)
	}

	query := `
		SELECT DISTINCT pis.product_id
		FROM store.products_in_shops pis
		JOIN store.shops sh ON sh.id = pis.shop_id
		WHERE sh.city = $1 AND pis.quantity > 0 AND pis.product_id = ANY($2);
	`
	rows, err := s.db.QueryContext(ctx, query, city, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("store: AnnotateShopStock failed to query shop stock: %w", err)
	}
	defer rows.Close()

	inStock := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("store: AnnotateShopStock failed to scan row: %w", err)
		}
		inStock[id] = true
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("store: AnnotateShopStock iteration error: %w", err)
	}

	for i := range products {
		products[i].HasShopStock = inStock[products[i].ID]
	}
	return nil
}

// RecordProductView bumps the product's page-view counter.
func (s *PostgresStore) RecordProductView(ctx context.Context, productID int64) error {
	query := `
		UPDATE store.ranking_indexes
		SET counter = jsonb_set(counter, '{first_week}', to_jsonb((counter->>'first_week')::int + 1))
		WHERE id = (SELECT popular_index_id FROM store.products WHERE id = $1);
	`
	result, err := s.db.ExecContext(ctx, query, productID)
	if err != nil {
		return fmt.Errorf("store: RecordProductView failed to execute update: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: RecordProductView failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// RecordSearchAppearances bumps the often-searched counter of every product
// that appeared in a search result page.
func (s *PostgresStore) RecordSearchAppearances(ctx context.Context, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	query := `
		UPDATE store.ranking_indexes
		SET counter = jsonb_set(counter, '{first_week}', to_jsonb((counter->>'first_week')::int + 1))
		WHERE id IN (SELECT often_search_index_id FROM store.products WHERE id = ANY($1));
	`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(productIDs)); err != nil {
		return fmt.Errorf("store: RecordSearchAppearances failed to execute update: %w", err)
	}
	return nil
}

// --- Curated section queries ---

// TopBySalesIndex returns product IDs ranked by the decayed sales index,
// excluding zero-index products and anything out of stock or unpublished.
func (s *PostgresStore) TopBySalesIndex(ctx context.Context, params SectionCandidatesParams) ([]int64, error) {
	query := `
		SELECT p.id
		FROM store.products p
		JOIN store.ranking_indexes r ON r.id = p.sales_index_id
		WHERE p.publish = TRUE AND p.quantity >= 1 AND r.index_value > 0
	`
	args := []interface{}{}
	argID := 1
	if len(params.ListingSlugs) > 0 {
		query += fmt.Sprintf(" AND %s", listingScopeClause(argID))
		args = append(args, pq.Array(params.ListingSlugs))
		argID++
	}
	query += fmt.Sprintf(" ORDER BY r.index_value DESC, p.id LIMIT $%d;", argID)
	args = append(args, params.Limit)

	return s.collectIDs(ctx, "TopBySalesIndex", query, args...)
}

// TopByDiscount returns in-stock discounted product IDs ranked by discount
// percent.
func (s *PostgresStore) TopByDiscount(ctx context.Context, params SectionCandidatesParams) ([]int64, error) {
	query := `
		SELECT p.id
		FROM store.products p
		WHERE p.publish = TRUE AND p.quantity >= 1 AND p.discount_percent > 0
	`
	args := []interface{}{}
	argID := 1
	if len(params.ListingSlugs) > 0 {
		query += fmt.Sprintf(" AND %s", listingScopeClause(argID))
		args = append(args, pq.Array(params.ListingSlugs))
		argID++
	}
	query += fmt.Sprintf(" ORDER BY p.discount_percent DESC, p.id LIMIT $%d;", argID)
	args = append(args, params.Limit)

	return s.collectIDs(ctx, "TopByDiscount", query, args...)
}

// TopByQuantity returns in-stock product IDs ranked by quantity, optionally
// restricted to a minimum price.
func (s *PostgresStore) TopByQuantity(ctx context.Context, params SectionCandidatesParams) ([]int64, error) {
	query := `
		SELECT p.id
		FROM store.products p
		WHERE p.publish = TRUE AND p.quantity >= 1
	`
	args := []interface{}{}
	argID := 1
	if params.MinPrice != nil {
		query += fmt.Sprintf(" AND p.price >= $%d", argID)
		args = append(args, *params.MinPrice)
		argID++
	}
	if len(params.ListingSlugs) > 0 {
		query += fmt.Sprintf(" AND %s", listingScopeClause(argID))
		args = append(args, pq.Array(params.ListingSlugs))
		argID++
	}
	query += fmt.Sprintf(" ORDER BY p.quantity DESC, p.id LIMIT $%d;", argID)
	args = append(args, params.Limit)

	return s.collectIDs(ctx, "TopByQuantity", query, args...)
}

// ProductIDsWithDiscount returns every published product carrying a nonzero
// discount, regardless of stock.
func (s *PostgresStore) ProductIDsWithDiscount(ctx context.Context) ([]int64, error) {
	query := `
		SELECT p.id FROM store.products p
		WHERE p.publish = TRUE AND p.discount_percent > 0
		ORDER BY p.id;
	`
	return s.collectIDs(ctx, "ProductIDsWithDiscount", query)
}

func listingScopeClause(argID int) string {
	return fmt.Sprintf(`EXISTS (
		SELECT 1 FROM store.product_tags pt
		JOIN store.catalogs c ON c.id = pt.catalog_id
		WHERE pt.product_id = p.id AND c.object_class = 'listing' AND c.slug = ANY($%d))`, argID)
}

func (s *PostgresStore) collectIDs(ctx context.Context, op, query string, args ...interface{}) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: %s failed to query ids: %w", op, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: %s failed to scan id: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: %s iteration error: %w", op, err)
	}
	return ids, nil
}

// ReplaceSectionTag swaps the full membership of a curated tag in one
// transaction: readers never observe a half-cleared section.
func (s *PostgresStore) ReplaceSectionTag(ctx context.Context, tagSlug string, productIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: ReplaceSectionTag failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var tagID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM store.catalogs WHERE slug = $1 AND object_class IN ('selection', 'freetag');`,
		tagSlug,
	).Scan(&tagID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %q", ErrTagNotFound, tagSlug)
		}
		return fmt.Errorf("store: ReplaceSectionTag failed to resolve tag: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM store.product_tags WHERE catalog_id = $1;`, tagID); err != nil {
		return fmt.Errorf("store: ReplaceSectionTag failed to clear tag: %w", err)
	}
	if len(productIDs) > 0 {
		insertQuery := `
			INSERT INTO store.product_tags (product_id, catalog_id)
			SELECT unnest($1::bigint[]), $2;
		`
		if _, err := tx.ExecContext(ctx, insertQuery, pq.Array(productIDs), tagID); err != nil {
			return fmt.Errorf("store: ReplaceSectionTag failed to insert tags: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: ReplaceSectionTag failed to commit: %w", err)
	}
	return nil
}

// RemoveTagFromStale detaches a tag from every product created before the
// cutoff and reports how many links were removed.
func (s *PostgresStore) RemoveTagFromStale(ctx context.Context, tagSlug string, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM store.product_tags pt
		USING store.catalogs c, store.products p
		WHERE c.id = pt.catalog_id AND c.slug = $1
		  AND p.id = pt.product_id AND p.created_at < $2;
	`
	result, err := s.db.ExecContext(ctx, query, tagSlug, olderThan)
	if err != nil {
		return 0, fmt.Errorf("store: RemoveTagFromStale failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: RemoveTagFromStale failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// ReplaceProductsOfDay clears the whole products-of-the-day table and inserts
// today's picks in one transaction.
func (s *PostgresStore) ReplaceProductsOfDay(ctx context.Context, showDate time.Time, productIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: ReplaceProductsOfDay failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM store.products_day;`); err != nil {
		return fmt.Errorf("store: ReplaceProductsOfDay failed to clear table: %w", err)
	}
	if len(productIDs) > 0 {
		insertQuery := `
			INSERT INTO store.products_day (product_id, show_date)
			SELECT unnest($1::bigint[]), $2;
		`
		if _, err := tx.ExecContext(ctx, insertQuery, pq.Array(productIDs), showDate); err != nil {
			return fmt.Errorf("store: ReplaceProductsOfDay failed to insert rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: ReplaceProductsOfDay failed to commit: %w", err)
	}
	return nil
}
