package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"catalog-ranking-service/internal/catalog"
)

// Listing page query parameters understood by parseFilters:
//
//	tags=apple,samsung
//	price=1000-5000                (repeatable)
//	attr.color=red,black           (repeatable, value slugs)
//	attr.diagonal.range=5.5-6.7    (repeatable, numeric ranges)
func parseFilters(values url.Values) (catalog.Filters, error) {
	var f catalog.Filters

	if raw := values.Get("tags"); raw != "" {
		f.Tags = splitList(raw)
	}

	for _, raw := range values["price"] {
		min, max, err := parseRangeParam(raw)
		if err != nil {
			return catalog.Filters{}, fmt.Errorf("invalid price range %q", raw)
		}
		f.Prices = append(f.Prices, catalog.PriceRange{Min: min, Max: max})
	}

	for key, params := range values {
		if !strings.HasPrefix(key, "attr.") {
			continue
		}
		rest := strings.TrimPrefix(key, "attr.")
		if f.Attributes == nil {
			f.Attributes = make(map[string]catalog.AttributeFilter)
		}

		if slug, isRange := strings.CutSuffix(rest, ".range"); isRange {
			af := f.Attributes[slug]
			for _, raw := range params {
				min, max, err := parseRangeParam(raw)
				if err != nil {
					return catalog.Filters{}, fmt.Errorf("invalid range %q for attribute %q", raw, slug)
				}
				af.Ranges = append(af.Ranges, catalog.NumRange{Min: min, Max: max})
			}
			f.Attributes[slug] = af
			continue
		}

		af := f.Attributes[rest]
		for _, raw := range params {
			af.Values = append(af.Values, splitList(raw)...)
		}
		f.Attributes[rest] = af
	}

	return f, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseRangeParam(raw string) (float64, float64, error) {
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected min-max, got %q", raw)
	}
	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return min, max, nil
}
