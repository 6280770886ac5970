package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrTo[T any](v T) *T { return &v }

func TestNewCatalog_ParentRules(t *testing.T) {
	category := ptrTo(ClassCategory)
	listing := ptrTo(ClassListing)

	t.Run("listing under category is allowed", func(t *testing.T) {
		c, err := NewCatalog(ClassListing, "smartfony", "Smartphones", ptrTo(int64(1)), category)
		require.NoError(t, err)
		assert.Equal(t, ClassListing, c.ObjectClass)
	})

	t.Run("top-level category is allowed", func(t *testing.T) {
		_, err := NewCatalog(ClassCategory, "tehnika", "Appliances", nil, nil)
		require.NoError(t, err)
	})

	t.Run("listing under listing is rejected", func(t *testing.T) {
		_, err := NewCatalog(ClassListing, "sub", "Sub", ptrTo(int64(2)), listing)
		assert.ErrorIs(t, err, ErrParentNotCategory)
	})

	t.Run("collection requires a listing parent", func(t *testing.T) {
		_, err := NewCatalog(ClassCollection, "gaming", "Gaming", nil, nil)
		assert.ErrorIs(t, err, ErrParentNotListing)

		_, err = NewCatalog(ClassCollection, "gaming", "Gaming", ptrTo(int64(3)), category)
		assert.ErrorIs(t, err, ErrParentNotListing)

		_, err = NewCatalog(ClassCollection, "gaming", "Gaming", ptrTo(int64(3)), listing)
		assert.NoError(t, err)
	})

	t.Run("brand cannot have a parent", func(t *testing.T) {
		_, err := NewCatalog(ClassBrand, "apple", "Apple", ptrTo(int64(4)), category)
		assert.ErrorIs(t, err, ErrParentNotAllowed)
	})

	t.Run("unknown class is rejected", func(t *testing.T) {
		_, err := NewCatalog(ObjectClass("gadget"), "x", "X", nil, nil)
		assert.Error(t, err)
	})
}

func TestCatalog_IsTagClass(t *testing.T) {
	tag, _ := NewCatalog(ClassFreeTag, "hit", "Bestseller", nil, nil)
	assert.True(t, tag.IsTagClass())

	cat, _ := NewCatalog(ClassCategory, "tehnika", "Appliances", nil, nil)
	assert.False(t, cat.IsTagClass())
}
