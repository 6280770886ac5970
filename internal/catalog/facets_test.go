package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-ranking-service/internal/domain"
)

func TestBuildFacets_CountsAndValueOrder(t *testing.T) {
	attrs := []domain.ListingAttribute{
		{
			ID:        11,
			Attribute: domain.Attribute{Slug: "color", Type: domain.AttrSelect},
			PossibleValues: []domain.AttributeValue{
				attrValue("red", "Red"), attrValue("black", "Black"), attrValue("gold", "Gold"),
			},
		},
	}

	facets := BuildFacets(testProducts(), attrs)

	require.Len(t, facets, 1)
	f := facets[0]
	assert.False(t, f.Empty)
	require.Len(t, f.Values, 3)
	// Two products are black, one is red, none is gold.
	assert.Equal(t, "black", f.Values[0].Value.Slug)
	assert.Equal(t, 2, f.Values[0].ProductCount)
	assert.Equal(t, "red", f.Values[1].Value.Slug)
	assert.Equal(t, 1, f.Values[1].ProductCount)
	assert.Equal(t, "gold", f.Values[2].Value.Slug)
	assert.Equal(t, 0, f.Values[2].ProductCount)
}

func TestBuildFacets_EmptyFlag(t *testing.T) {
	attrs := []domain.ListingAttribute{
		{
			Attribute:      domain.Attribute{Slug: "material", Type: domain.AttrSelect},
			PossibleValues: []domain.AttributeValue{attrValue("steel", "Steel")},
		},
	}

	facets := BuildFacets(testProducts(), attrs)

	require.Len(t, facets, 1)
	assert.True(t, facets[0].Empty)
}

func TestBuildFacets_OrderThenPopularity(t *testing.T) {
	attrs := []domain.ListingAttribute{
		{Attribute: domain.Attribute{Slug: "c"}, Order: 2, Popular: domain.RankingIndex{Index: 9}},
		{Attribute: domain.Attribute{Slug: "a"}, Order: 1, Popular: domain.RankingIndex{Index: 1}},
		{Attribute: domain.Attribute{Slug: "b"}, Order: 1, Popular: domain.RankingIndex{Index: 5}},
	}

	facets := BuildFacets(nil, attrs)

	require.Len(t, facets, 3)
	assert.Equal(t, "b", facets[0].Attribute.Slug, "same order rank, higher index first")
	assert.Equal(t, "a", facets[1].Attribute.Slug)
	assert.Equal(t, "c", facets[2].Attribute.Slug)
}

func TestComputePriceBounds(t *testing.T) {
	// Discounted prices: 1000, 1800, 500.
	bounds := ComputePriceBounds(testProducts())
	assert.Equal(t, PriceBounds{Min: 500, Max: 1800}, bounds)

	assert.Equal(t, PriceBounds{}, ComputePriceBounds(nil))
}
