package catalog

import (
	"context"
	"fmt"
	"log"

	"catalog-ranking-service/internal/domain"
)

// FilterUsageRecorder persists the fact that users filtered by a listing
// attribute. The engine calls it once per attribute filter in the spec.
type FilterUsageRecorder interface {
	RecordFilterUse(ctx context.Context, listingAttributeID int64) error
}

// Engine narrows a listing-scoped candidate set by a Filters spec. It works
// on already loaded products, so matching rules live in one place regardless
// of where the candidates came from.
type Engine struct {
	usage  FilterUsageRecorder
	logger *log.Logger
}

// NewEngine builds a filter engine. usage may be nil, in which case attribute
// filter usage is not recorded.
func NewEngine(usage FilterUsageRecorder, logger *log.Logger) *Engine {
	return &Engine{usage: usage, logger: logger}
}

// FilterProducts applies the filter spec to the candidate products of one
// listing. listingAttrs must be the attributes declared filterable on that
// listing; a spec referencing any other attribute slug fails with
// ErrUnknownFilterAttribute before any matching or counter updates happen.
//
// Every attribute filter actually applied increments that listing attribute's
// popularity counter. The side effect is not idempotent: re-running the same
// request counts as another use.
func (e *Engine) FilterProducts(ctx context.Context, products []domain.Product, listingAttrs []domain.ListingAttribute, f Filters) ([]domain.Product, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	bySlug := make(map[string]*domain.ListingAttribute, len(listingAttrs))
	for i := range listingAttrs {
		bySlug[listingAttrs[i].Attribute.Slug] = &listingAttrs[i]
	}
	for slug := range f.Attributes {
		if _, ok := bySlug[slug]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFilterAttribute, slug)
		}
	}

	for slug, af := range f.Attributes {
		if e.usage == nil || af.IsZero() {
			continue
		}
		if err := e.usage.RecordFilterUse(ctx, bySlug[slug].ID); err != nil {
			// Usage stats must not break product listings.
			if e.logger != nil {
				e.logger.Printf("WARN: failed to record filter use for attribute %q: %v", slug, err)
			}
		}
	}

	out := make([]domain.Product, 0, len(products))
	for i := range products {
		if e.matches(&products[i], f, bySlug) {
			out = append(out, products[i])
		}
	}
	return out, nil
}

func (e *Engine) matches(p *domain.Product, f Filters, bySlug map[string]*domain.ListingAttribute) bool {
	if !matchesTags(p, f.Tags) {
		return false
	}
	if !matchesPrices(p, f.Prices) {
		return false
	}
	for slug, af := range f.Attributes {
		if !matchesAttribute(p, bySlug[slug].Attribute, af) {
			return false
		}
	}
	return true
}

func matchesTags(p *domain.Product, tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if p.HasTag(t) {
			return true
		}
	}
	return false
}

func matchesPrices(p *domain.Product, ranges []PriceRange) bool {
	if len(ranges) == 0 {
		return true
	}
	price := p.DiscountedPrice()
	for _, r := range ranges {
		if price >= r.Min && price <= r.Max {
			return true
		}
	}
	return false
}

func matchesAttribute(p *domain.Product, attr domain.Attribute, af AttributeFilter) bool {
	// A filter naming the attribute but selecting no values does not narrow.
	if af.IsZero() {
		return true
	}

	pa, ok := p.AttributeBySlug(attr.Slug)
	if !ok {
		return false
	}

	for _, want := range af.Values {
		for _, v := range pa.Values {
			if v.Slug == want {
				return true
			}
		}
	}

	if len(af.Ranges) > 0 {
		for _, v := range pa.Values {
			num, ok := parseNumericValue(v.Value)
			if !ok {
				continue
			}
			for _, r := range af.Ranges {
				if num >= r.Min && num <= r.Max {
					return true
				}
			}
		}
	}
	return false
}
