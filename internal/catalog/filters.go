package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrUnknownFilterAttribute is returned when a filter references an
	// attribute slug that is not declared as filterable on the listing.
	ErrUnknownFilterAttribute = errors.New("catalog: unknown filter attribute")

	// ErrInvalidRange is returned when a price or numeric range has min > max.
	ErrInvalidRange = errors.New("catalog: range min exceeds max")
)

// PriceRange is an inclusive range applied to the discounted price.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NumRange is an inclusive numeric range applied to a NUM_RANGE or NUM_INT
// attribute value.
type NumRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// AttributeFilter selects products by one attribute. Values lists accepted
// value slugs; Ranges lists accepted numeric intervals. A product matches the
// filter when any of its values matches any entry (values and ranges alike).
type AttributeFilter struct {
	Values []string   `json:"values,omitempty"`
	Ranges []NumRange `json:"ranges,omitempty"`
}

// IsZero reports whether the filter selects no values at all. An empty filter
// names the attribute without narrowing by it.
func (af AttributeFilter) IsZero() bool {
	return len(af.Values) == 0 && len(af.Ranges) == 0
}

// Filters is a full filter spec for one listing request. Dimensions combine
// with AND; entries inside one dimension combine with OR. An empty dimension
// does not narrow the set.
type Filters struct {
	Tags       []string                   `json:"tags,omitempty"`
	Prices     []PriceRange               `json:"prices,omitempty"`
	Attributes map[string]AttributeFilter `json:"attributes,omitempty"`
}

// IsZero reports whether no dimension narrows the candidate set.
func (f Filters) IsZero() bool {
	return len(f.Tags) == 0 && len(f.Prices) == 0 && len(f.Attributes) == 0
}

// Validate rejects structurally invalid specs before any matching or side
// effects happen.
func (f Filters) Validate() error {
	for _, pr := range f.Prices {
		if pr.Min > pr.Max {
			return fmt.Errorf("%w: price %v..%v", ErrInvalidRange, pr.Min, pr.Max)
		}
	}
	for slug, af := range f.Attributes {
		for _, nr := range af.Ranges {
			if nr.Min > nr.Max {
				return fmt.Errorf("%w: attribute %q %v..%v", ErrInvalidRange, slug, nr.Min, nr.Max)
			}
		}
	}
	return nil
}

var nonNumericChars = regexp.MustCompile(`[^0-9.\-]`)

// parseNumericValue normalizes a stored attribute value text and parses it as
// a float. Values are entered by content managers, so commas stand in for
// decimal points and units or spaces may trail the number. Returns false for
// anything that still fails to parse, which makes the value silently not
// match any numeric range.
func parseNumericValue(raw string) (float64, bool) {
	s := strings.ReplaceAll(raw, ",", ".")
	s = strings.ReplaceAll(s, " ", "")
	s = nonNumericChars.ReplaceAllString(s, "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
