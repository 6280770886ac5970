package sections

import (
	"context"
	"fmt"
	"log"
	"time"

	"catalog-ranking-service/internal/store"
)

// Curated section tag slugs. Each one is a tag-class catalog node whose
// membership is fully rebuilt by the corresponding job.
const (
	TagBestsellers = "hit"
	TagBestPrice   = "luchshaya-cena"
	TagPromo       = "akcionnye-tovary"
	TagNewArrival  = "novinka"
)

// DisplayListings is the allow-list of listings whose products may appear in
// the curated storefront sections.
var DisplayListings = []string{
	"televizory",
	"noutbuki",
	"stiralnye-mashiny",
	"smartfony",
	"holodilniki",
	"morozilnye-lari",
	"morozilnye-kamery",
	"planshety",
	"gazovye-plity",
	"ehlektricheskie-plity",
	"kombinirovannye-plity",
	"vstraivaemye-duhovye-shkafy",
	"vstraivaemye-paneli",
	"vytyazhki",
	"posudomoechnye-mashiny",
	"mikrovolnovye-pechi",
	"multivarki",
	"ehlektropechi",
	"kuhonnye-kombajny",
	"myasorubki",
	"ehlektrochajniki",
	"akusticheskie-sistemy",
	"printery-i-mfu",
	"pylesosy",
	"kofemashiny",
	"kofevarki",
	"utyugi",
	"blendery",
	"feny",
	"ehlektrobritvy",
	"skovorodki",
	"nabory-posudy",
	"kastryuli",
}

const (
	sectionSize          = 100
	productsOfDayCount   = 10
	productOfDayMinPrice = 3000.0
	newArrivalMaxAgeDays = 29
)

// SectionStore is the subset of product storage the curator drives. Every
// replace method runs in its own transaction, so a crashed job leaves the
// previous section intact.
type SectionStore interface {
	TopBySalesIndex(ctx context.Context, params store.SectionCandidatesParams) ([]int64, error)
	TopByDiscount(ctx context.Context, params store.SectionCandidatesParams) ([]int64, error)
	TopByQuantity(ctx context.Context, params store.SectionCandidatesParams) ([]int64, error)
	ProductIDsWithDiscount(ctx context.Context) ([]int64, error)
	ReplaceSectionTag(ctx context.Context, tagSlug string, productIDs []int64) error
	RemoveTagFromStale(ctx context.Context, tagSlug string, olderThan time.Time) (int64, error)
	ReplaceProductsOfDay(ctx context.Context, showDate time.Time, productIDs []int64) error
}

// SalesRotator rotates the per-product sales indexes ahead of the bestsellers
// rebuild.
type SalesRotator interface {
	ListRankingIndexIDs(ctx context.Context, owner store.IndexOwner) ([]int64, error)
	UpdateIndex(ctx context.Context, indexID int64) error
}

// Curator rebuilds the curated storefront sections. All jobs are full
// replacements: the new membership is computed from scratch each run, which
// makes every job idempotent within one data state.
type Curator struct {
	products SectionStore
	sales    SalesRotator
	logger   *log.Logger
	now      func() time.Time
}

// NewCurator creates a Curator. now is used for date cutoffs and defaults to
// time.Now when nil.
func NewCurator(products SectionStore, sales SalesRotator, logger *log.Logger, now func() time.Time) *Curator {
	if now == nil {
		now = time.Now
	}
	return &Curator{products: products, sales: sales, logger: logger, now: now}
}

// UpdateBestsellers rotates every product's sales index and rebuilds the
// bestseller tag from the freshly decayed values: the top products by sales
// index, excluding zero-index and out-of-stock ones, scoped to the displayed
// listings.
func (c *Curator) UpdateBestsellers(ctx context.Context) error {
	ids, err := c.sales.ListRankingIndexIDs(ctx, store.OwnerProductSales)
	if err != nil {
		return fmt.Errorf("sections: listing sales indexes: %w", err)
	}
	for _, id := range ids {
		if err := c.sales.UpdateIndex(ctx, id); err != nil {
			c.logger.Printf("ERROR: Failed to rotate sales index %d: %v", id, err)
		}
	}

	top, err := c.products.TopBySalesIndex(ctx, store.SectionCandidatesParams{
		Limit:        sectionSize,
		ListingSlugs: DisplayListings,
	})
	if err != nil {
		return fmt.Errorf("sections: selecting bestsellers: %w", err)
	}
	if err := c.products.ReplaceSectionTag(ctx, TagBestsellers, top); err != nil {
		return fmt.Errorf("sections: replacing %q tag: %w", TagBestsellers, err)
	}
	c.logger.Printf("INFO: Bestsellers section rebuilt with %d products", len(top))
	return nil
}

// UpdateBestPrices rebuilds the best-price tag with the top discounted
// in-stock products of the displayed listings.
func (c *Curator) UpdateBestPrices(ctx context.Context) error {
	top, err := c.products.TopByDiscount(ctx, store.SectionCandidatesParams{
		Limit:        sectionSize,
		ListingSlugs: DisplayListings,
	})
	if err != nil {
		return fmt.Errorf("sections: selecting best prices: %w", err)
	}
	if err := c.products.ReplaceSectionTag(ctx, TagBestPrice, top); err != nil {
		return fmt.Errorf("sections: replacing %q tag: %w", TagBestPrice, err)
	}
	c.logger.Printf("INFO: Best-price section rebuilt with %d products", len(top))
	return nil
}

// UpdatePromoTag rebuilds the promo tag with every discounted product,
// regardless of stock: promo pages also show what sold out.
func (c *Curator) UpdatePromoTag(ctx context.Context) error {
	ids, err := c.products.ProductIDsWithDiscount(ctx)
	if err != nil {
		return fmt.Errorf("sections: selecting promo products: %w", err)
	}
	if err := c.products.ReplaceSectionTag(ctx, TagPromo, ids); err != nil {
		return fmt.Errorf("sections: replacing %q tag: %w", TagPromo, err)
	}
	c.logger.Printf("INFO: Promo section rebuilt with %d products", len(ids))
	return nil
}

// CleanupNewArrivals detaches the new-arrival tag from products older than
// the arrival window. The tag itself is attached on product intake, not here.
func (c *Curator) CleanupNewArrivals(ctx context.Context) error {
	cutoff := c.now().AddDate(0, 0, -newArrivalMaxAgeDays)
	removed, err := c.products.RemoveTagFromStale(ctx, TagNewArrival, cutoff)
	if err != nil {
		return fmt.Errorf("sections: cleaning up %q tag: %w", TagNewArrival, err)
	}
	c.logger.Printf("INFO: Removed %q tag from %d stale products", TagNewArrival, removed)
	return nil
}

// UpdateProductsOfDay replaces the products-of-the-day set with the most
// stocked premium products of the displayed listings.
func (c *Curator) UpdateProductsOfDay(ctx context.Context) error {
	minPrice := productOfDayMinPrice
	ids, err := c.products.TopByQuantity(ctx, store.SectionCandidatesParams{
		Limit:        productsOfDayCount,
		ListingSlugs: DisplayListings,
		MinPrice:     &minPrice,
	})
	if err != nil {
		return fmt.Errorf("sections: selecting products of the day: %w", err)
	}

	today := c.now().Truncate(24 * time.Hour)
	if err := c.products.ReplaceProductsOfDay(ctx, today, ids); err != nil {
		return fmt.Errorf("sections: replacing products of the day: %w", err)
	}
	c.logger.Printf("INFO: Products of the day rebuilt with %d products", len(ids))
	return nil
}
