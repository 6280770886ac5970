package store

import (
	"context"
	"time"

	"catalog-ranking-service/internal/domain"
)

// IndexOwner selects which owning entity's ranking indexes a bulk operation
// targets. Every owner kind maps to one foreign key column in the schema.
type IndexOwner string

const (
	OwnerProductPopular     IndexOwner = "product_popular"
	OwnerProductSales       IndexOwner = "product_sales"
	OwnerProductOftenSearch IndexOwner = "product_often_search"
	OwnerCatalog            IndexOwner = "catalog"
	OwnerListingAttribute   IndexOwner = "listing_attribute"
	OwnerSearchQuery        IndexOwner = "search_query"
)

// RankingStorer defines the database operations on ranking indexes. Counter
// mutations are single atomic statements, safe under concurrent traffic.
type RankingStorer interface {
	IncrementCounter(ctx context.Context, indexID int64, amount int) error
	UpdateIndex(ctx context.Context, indexID int64) error
	ListRankingIndexIDs(ctx context.Context, owner IndexOwner) ([]int64, error)
}

// ListByListingParams scopes a product listing query.
type ListByListingParams struct {
	ListingSlug string
	// AllowedProductIDs narrows the candidate set to IDs returned by the
	// search sidecar. Nil means no narrowing; an empty non-nil slice means
	// the search matched nothing.
	AllowedProductIDs []int64
}

// SectionCandidatesParams holds the selection knobs shared by the curated
// section queries.
type SectionCandidatesParams struct {
	Limit        int
	ListingSlugs []string // restrict to products tagged with these listings
	MinPrice     *float64
}

// ProductStorer defines the database operations for products and the curated
// section maintenance they participate in.
type ProductStorer interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	ListPublishedByListing(ctx context.Context, params ListByListingParams) ([]domain.Product, error)
	CountPublishedByListing(ctx context.Context, listingSlug string) (int, error)
	AnnotateShopStock(ctx context.Context, products []domain.Product, city string) error
	RecordProductView(ctx context.Context, productID int64) error
	RecordSearchAppearances(ctx context.Context, productIDs []int64) error

	TopBySalesIndex(ctx context.Context, params SectionCandidatesParams) ([]int64, error)
	TopByDiscount(ctx context.Context, params SectionCandidatesParams) ([]int64, error)
	TopByQuantity(ctx context.Context, params SectionCandidatesParams) ([]int64, error)
	ProductIDsWithDiscount(ctx context.Context) ([]int64, error)
	ReplaceSectionTag(ctx context.Context, tagSlug string, productIDs []int64) error
	RemoveTagFromStale(ctx context.Context, tagSlug string, olderThan time.Time) (int64, error)
	ReplaceProductsOfDay(ctx context.Context, showDate time.Time, productIDs []int64) error
}

// CatalogStorer defines the database operations for catalog nodes and their
// filterable listing attributes.
type CatalogStorer interface {
	CreateCatalog(ctx context.Context, catalog *domain.Catalog) (*domain.Catalog, error)
	GetCatalogBySlug(ctx context.Context, slug string) (*domain.Catalog, error)
	ListingAttributes(ctx context.Context, listingID int64) ([]domain.ListingAttribute, error)
	RecordFilterUse(ctx context.Context, listingAttributeID int64) error
	RecordCatalogView(ctx context.Context, catalogID int64) error
}

// SearchQueryStorer defines the database operations for tracked search
// queries.
type SearchQueryStorer interface {
	TrackQuery(ctx context.Context, text string) (*domain.SearchQuery, error)
	TrendingQueries(ctx context.Context, limit int) ([]domain.SearchQuery, error)
}
