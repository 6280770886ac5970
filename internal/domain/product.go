package domain

import (
	"math"
	"time"
)

// Stock status codes derived from the current quantity. The tier order
// (in stock, then limited, then out of stock) takes priority over every
// product sort mode.
const (
	StatusInStock    = "IN_STOCK"
	StatusLimited    = "LIMITED"
	StatusOutOfStock = "OUT_OF_STOCK"
)

// Product represents a storefront product together with the associations the
// filter and ranking engines operate on: its tag set, its attribute values,
// and its three independent ranking indexes.
type Product struct {
	ID               int64   `json:"id"`
	Slug             string  `json:"slug"`
	Name             string  `json:"name"`
	SKU              string  `json:"sku"`
	ShortDescription *string `json:"short_description,omitempty"`
	Price            float64 `json:"price"`
	DiscountPercent  float64 `json:"discount_percent"`
	Quantity         int     `json:"quantity"`
	Publish          bool    `json:"publish"`

	// Popular counts page views, Sales counts units sold, OftenSearch counts
	// appearances in search results. Each is owned exclusively by this product.
	Popular     RankingIndex `json:"popular"`
	Sales       RankingIndex `json:"sales"`
	OftenSearch RankingIndex `json:"often_search"`

	// TagSlugs is the slugs of the catalog nodes this product is tagged with:
	// exactly one listing, at most one brand, any number of selections and
	// free tags.
	TagSlugs []string `json:"tags"`

	// Attributes are the product's characteristic values, keyed for filtering.
	Attributes []ProductAttribute `json:"attributes"`

	// HasShopStock is an annotation, populated only when a city/shop context
	// was supplied to the availability computation.
	HasShopStock bool `json:"has_shop_stock,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DiscountAmount is the absolute discount, rounded down to a whole unit.
// Discounts below half a percent collapse to zero.
func (p *Product) DiscountAmount() float64 {
	if p.DiscountPercent < 0.5 {
		return 0
	}
	return math.Floor(p.Price * p.DiscountPercent / 100)
}

// DiscountedPrice is the price after the floored discount is applied.
func (p *Product) DiscountedPrice() float64 {
	return p.Price - p.DiscountAmount()
}

// Status returns the stock status code for the current quantity.
func (p *Product) Status() string {
	switch {
	case p.Quantity == 0:
		return StatusOutOfStock
	case p.Quantity < 4:
		return StatusLimited
	default:
		return StatusInStock
	}
}

// StatusOrder is the sort tier for the stock status: available products come
// first, then out-of-stock ones.
func (p *Product) StatusOrder() int {
	if p.Quantity > 0 {
		return 1
	}
	return 2
}

// HasTag reports whether the product carries the given tag slug.
func (p *Product) HasTag(slug string) bool {
	for _, t := range p.TagSlugs {
		if t == slug {
			return true
		}
	}
	return false
}

// AttributeBySlug returns the product's values for the given attribute slug.
func (p *Product) AttributeBySlug(slug string) (ProductAttribute, bool) {
	for _, pa := range p.Attributes {
		if pa.AttributeSlug == slug {
			return pa, true
		}
	}
	return ProductAttribute{}, false
}

// ProductDay is a "product of the day" record; (ProductID, ShowDate) is unique.
type ProductDay struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	ShowDate  time.Time `json:"show_date"`
}
