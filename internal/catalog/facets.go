package catalog

import (
	"sort"

	"catalog-ranking-service/internal/domain"
)

// FacetValue is one selectable value of a facet together with how many
// candidate products carry it.
type FacetValue struct {
	Value        domain.AttributeValue `json:"value"`
	ProductCount int                   `json:"product_count"`
}

// Facet describes one filterable attribute of a listing with per-value
// product counts. Counts are computed over the unfiltered candidate set, so
// the facet panel stays stable while the user toggles filters.
type Facet struct {
	Attribute    domain.Attribute `json:"attribute"`
	Values       []FacetValue     `json:"values"`
	Empty        bool             `json:"empty"`
	order        int
	popularIndex float64
}

// BuildFacets computes the facet panel for a listing from its declared
// filterable attributes and the full candidate product set. Facets are
// ordered by the listing attribute's explicit order, then by its decayed
// popularity index descending; values inside a facet are ordered by product
// count descending.
func BuildFacets(products []domain.Product, listingAttrs []domain.ListingAttribute) []Facet {
	facets := make([]Facet, 0, len(listingAttrs))
	for i := range listingAttrs {
		la := &listingAttrs[i]
		f := Facet{
			Attribute:    la.Attribute,
			Values:       make([]FacetValue, 0, len(la.PossibleValues)),
			order:        la.Order,
			popularIndex: la.Popular.Index,
		}
		total := 0
		for _, pv := range la.PossibleValues {
			count := countProductsWithValue(products, la.Attribute.Slug, pv.Slug)
			total += count
			f.Values = append(f.Values, FacetValue{Value: pv, ProductCount: count})
		}
		f.Empty = total == 0
		sort.SliceStable(f.Values, func(a, b int) bool {
			return f.Values[a].ProductCount > f.Values[b].ProductCount
		})
		facets = append(facets, f)
	}
	sort.SliceStable(facets, func(a, b int) bool {
		if facets[a].order != facets[b].order {
			return facets[a].order < facets[b].order
		}
		return facets[a].popularIndex > facets[b].popularIndex
	})
	return facets
}

func countProductsWithValue(products []domain.Product, attrSlug, valueSlug string) int {
	count := 0
	for i := range products {
		pa, ok := products[i].AttributeBySlug(attrSlug)
		if !ok {
			continue
		}
		for _, v := range pa.Values {
			if v.Slug == valueSlug {
				count++
				break
			}
		}
	}
	return count
}

// PriceBounds is the discounted price span of a candidate set, truncated to
// whole units for the filter UI sliders. Both bounds are zero for an empty set.
type PriceBounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ComputePriceBounds scans the candidate set for its discounted price range.
func ComputePriceBounds(products []domain.Product) PriceBounds {
	if len(products) == 0 {
		return PriceBounds{}
	}
	min := products[0].DiscountedPrice()
	max := min
	for i := range products[1:] {
		p := products[i+1].DiscountedPrice()
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	return PriceBounds{Min: int(min), Max: int(max)}
}
