package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ObjectClass discriminates the catalog node variants stored in the single
// catalogs table.
type ObjectClass string

const (
	ClassCategory   ObjectClass = "category"
	ClassListing    ObjectClass = "listing"
	ClassCollection ObjectClass = "collection"
	ClassBrand      ObjectClass = "brand"
	ClassSelection  ObjectClass = "selection"
	ClassFreeTag    ObjectClass = "freetag"
)

var (
	ErrParentNotCategory = errors.New("domain: parent catalog must be a category")
	ErrParentNotListing  = errors.New("domain: parent catalog must be a listing")
	ErrParentNotAllowed  = errors.New("domain: catalog class does not allow a parent")
)

// Catalog is a polymorphic catalog node: category, listing, collection, brand,
// selection or free tag. The variant is carried in ObjectClass; per-variant
// parent rules are enforced by the NewCatalog constructor, not by subclassing.
type Catalog struct {
	ID          int64           `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	ShortName   *string         `json:"short_name,omitempty"`
	ObjectClass ObjectClass     `json:"object_class"`
	ParentID    *int64          `json:"parent_id,omitempty"`
	ParentClass *ObjectClass    `json:"-"` // loaded alongside ParentID for validation
	ParentSlug  *string         `json:"parent_slug,omitempty"`
	Popular     RankingIndex    `json:"popular"`
	// ActiveFilters is a pre-set filter spec; meaningful only for collection
	// nodes, which use it to statically scope their product set.
	ActiveFilters *json.RawMessage `json:"active_filters,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewCatalog builds a catalog node of the given class and validates the
// parent rule for that class:
//
//   - category, listing: parent absent or a category
//   - collection: parent required and must be a listing
//   - brand, selection, freetag: no parent
func NewCatalog(class ObjectClass, slug, name string, parentID *int64, parentClass *ObjectClass) (*Catalog, error) {
	switch class {
	case ClassCategory, ClassListing:
		if parentID != nil && (parentClass == nil || *parentClass != ClassCategory) {
			return nil, ErrParentNotCategory
		}
	case ClassCollection:
		if parentID == nil || parentClass == nil || *parentClass != ClassListing {
			return nil, ErrParentNotListing
		}
	case ClassBrand, ClassSelection, ClassFreeTag:
		if parentID != nil {
			return nil, ErrParentNotAllowed
		}
	default:
		return nil, fmt.Errorf("domain: unknown catalog class %q", class)
	}
	return &Catalog{
		Slug:        slug,
		Name:        name,
		ObjectClass: class,
		ParentID:    parentID,
		ParentClass: parentClass,
	}, nil
}

// IsTagClass reports whether the node can be attached to products as a tag.
func (c *Catalog) IsTagClass() bool {
	switch c.ObjectClass {
	case ClassListing, ClassBrand, ClassSelection, ClassFreeTag:
		return true
	}
	return false
}

// AttributeType enumerates the supported attribute value kinds.
type AttributeType string

const (
	AttrNumInt   AttributeType = "NUM_INT"
	AttrNumRange AttributeType = "NUM_RANGE"
	AttrText     AttributeType = "TEXT"
	AttrBoolean  AttributeType = "BOOLEAN"
	AttrList     AttributeType = "LIST"
	AttrSelect   AttributeType = "SELECT"
)

// Attribute describes a product characteristic (diagonal, color, ...).
type Attribute struct {
	ID          int64         `json:"id"`
	GroupName   string        `json:"group"`
	Name        string        `json:"name"`
	Slug        string        `json:"slug"`
	Type        AttributeType `json:"type"`
	MeasureUnit *string       `json:"measure_unit,omitempty"`
}

// AttributeValue is a distinct textual value shared across attributes.
// Slug uniqueness is global.
type AttributeValue struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
	Slug  string `json:"slug"`
}

// ProductAttribute links a product to one attribute with its selected values.
type ProductAttribute struct {
	AttributeSlug string           `json:"attribute_slug"`
	AttributeType AttributeType    `json:"attribute_type"`
	Values        []AttributeValue `json:"values"`
}

// ListingAttribute declares that an attribute is filterable on a listing page,
// with a display order and the subset of values offered in the filter UI.
// Its own RankingIndex counts how often users filter by this attribute.
type ListingAttribute struct {
	ID             int64            `json:"id"`
	ListingID      int64            `json:"listing_id"`
	Attribute      Attribute        `json:"attribute"`
	PossibleValues []AttributeValue `json:"possible_values"`
	Order          int              `json:"order"`
	Popular        RankingIndex     `json:"popular"`
}
