package catalog

import "catalog-ranking-service/internal/domain"

// Availability buckets for a city/shop context. Every product falls into
// exactly one bucket, so the three counts always sum to the candidate total.
const (
	AvailabilityInStock     = "in_stock"
	AvailabilityPreorder    = "preorder"
	AvailabilityUnavailable = "unavailable"
)

// DefaultAvailability is the bucket set applied when the request names none:
// purchasable products, whether from local shop stock or by preorder.
var DefaultAvailability = []string{AvailabilityInStock, AvailabilityPreorder}

// AvailabilityBucket classifies a product for the current shop context.
// HasShopStock must already be annotated for that context.
func AvailabilityBucket(p *domain.Product) string {
	switch {
	case p.Quantity == 0:
		return AvailabilityUnavailable
	case p.HasShopStock:
		return AvailabilityInStock
	default:
		return AvailabilityPreorder
	}
}

// AvailabilityFacet carries per-bucket product counts, computed over the
// unfiltered candidate set like the attribute facets.
type AvailabilityFacet struct {
	InStock     int `json:"in_stock"`
	Preorder    int `json:"preorder"`
	Unavailable int `json:"unavailable"`
}

// CountAvailability tallies the candidate set into availability buckets.
func CountAvailability(products []domain.Product) AvailabilityFacet {
	var f AvailabilityFacet
	for i := range products {
		switch AvailabilityBucket(&products[i]) {
		case AvailabilityInStock:
			f.InStock++
		case AvailabilityPreorder:
			f.Preorder++
		default:
			f.Unavailable++
		}
	}
	return f
}

// FilterByAvailability keeps products whose bucket is in the requested set.
// An empty request falls back to DefaultAvailability; a request naming all
// three buckets does not narrow at all.
func FilterByAvailability(products []domain.Product, requested []string) []domain.Product {
	if len(requested) == 0 {
		requested = DefaultAvailability
	}
	want := make(map[string]bool, len(requested))
	for _, r := range requested {
		want[r] = true
	}
	if want[AvailabilityInStock] && want[AvailabilityPreorder] && want[AvailabilityUnavailable] {
		return products
	}

	out := make([]domain.Product, 0, len(products))
	for i := range products {
		if want[AvailabilityBucket(&products[i])] {
			out = append(out, products[i])
		}
	}
	return out
}
