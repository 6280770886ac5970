package sections

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"catalog-ranking-service/internal/store"
)

type mockSectionStore struct {
	mock.Mock
}

func (m *mockSectionStore) TopBySalesIndex(ctx context.Context, params store.SectionCandidatesParams) ([]int64, error) {
	args := m.Called(ctx, params)
	if ids := args.Get(0); ids != nil {
		return ids.([]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSectionStore) TopByDiscount(ctx context.Context, params store.SectionCandidatesParams) ([]int64, error) {
	args := m.Called(ctx, params)
	if ids := args.Get(0); ids != nil {
		return ids.([]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSectionStore) TopByQuantity(ctx context.Context, params store.SectionCandidatesParams) ([]int64, error) {
	args := m.Called(ctx, params)
	if ids := args.Get(0); ids != nil {
		return ids.([]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSectionStore) ProductIDsWithDiscount(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if ids := args.Get(0); ids != nil {
		return ids.([]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSectionStore) ReplaceSectionTag(ctx context.Context, tagSlug string, productIDs []int64) error {
	args := m.Called(ctx, tagSlug, productIDs)
	return args.Error(0)
}

func (m *mockSectionStore) RemoveTagFromStale(ctx context.Context, tagSlug string, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, tagSlug, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSectionStore) ReplaceProductsOfDay(ctx context.Context, showDate time.Time, productIDs []int64) error {
	args := m.Called(ctx, showDate, productIDs)
	return args.Error(0)
}

type mockSalesRotator struct {
	mock.Mock
}

func (m *mockSalesRotator) ListRankingIndexIDs(ctx context.Context, owner store.IndexOwner) ([]int64, error) {
	args := m.Called(ctx, owner)
	if ids := args.Get(0); ids != nil {
		return ids.([]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSalesRotator) UpdateIndex(ctx context.Context, indexID int64) error {
	args := m.Called(ctx, indexID)
	return args.Error(0)
}

func testCurator(products *mockSectionStore, sales *mockSalesRotator, now time.Time) *Curator {
	return NewCurator(products, sales, log.New(io.Discard, "", 0), func() time.Time { return now })
}

func TestDisplayListings_AllowList(t *testing.T) {
	assert.Len(t, DisplayListings, 33)
	// Spot-check the span: electronics through kitchenware.
	assert.Contains(t, DisplayListings, "smartfony")
	assert.Contains(t, DisplayListings, "stiralnye-mashiny")
	assert.Contains(t, DisplayListings, "kastryuli")

	seen := make(map[string]bool, len(DisplayListings))
	for _, slug := range DisplayListings {
		assert.False(t, seen[slug], "duplicate listing slug %q", slug)
		seen[slug] = true
	}
}

func TestCurator_UpdateBestsellers(t *testing.T) {
	products := new(mockSectionStore)
	sales := new(mockSalesRotator)
	sales.On("ListRankingIndexIDs", mock.Anything, store.OwnerProductSales).Return([]int64{1, 2}, nil)
	sales.On("UpdateIndex", mock.Anything, int64(1)).Return(nil)
	sales.On("UpdateIndex", mock.Anything, int64(2)).Return(assert.AnError)
	products.On("TopBySalesIndex", mock.Anything, store.SectionCandidatesParams{
		Limit:        100,
		ListingSlugs: DisplayListings,
	}).Return([]int64{9, 4}, nil)
	products.On("ReplaceSectionTag", mock.Anything, TagBestsellers, []int64{9, 4}).Return(nil)
	c := testCurator(products, sales, time.Now())

	err := c.UpdateBestsellers(context.Background())

	require.NoError(t, err, "one broken sales index must not fail the rebuild")
	products.AssertExpectations(t)
	sales.AssertExpectations(t)
}

func TestCurator_UpdateBestPrices_RerunIsIdempotent(t *testing.T) {
	products := new(mockSectionStore)
	products.On("TopByDiscount", mock.Anything, mock.Anything).Return([]int64{7, 3, 5}, nil)
	products.On("ReplaceSectionTag", mock.Anything, TagBestPrice, []int64{7, 3, 5}).Return(nil)
	c := testCurator(products, new(mockSalesRotator), time.Now())

	require.NoError(t, c.UpdateBestPrices(context.Background()))
	require.NoError(t, c.UpdateBestPrices(context.Background()))

	// Same data state, same full replacement: the section membership is
	// identical after one run or two.
	products.AssertNumberOfCalls(t, "ReplaceSectionTag", 2)
	products.AssertExpectations(t)
}

func TestCurator_UpdatePromoTag_IncludesOutOfStock(t *testing.T) {
	products := new(mockSectionStore)
	products.On("ProductIDsWithDiscount", mock.Anything).Return([]int64{1, 2, 3}, nil)
	products.On("ReplaceSectionTag", mock.Anything, TagPromo, []int64{1, 2, 3}).Return(nil)
	c := testCurator(products, new(mockSalesRotator), time.Now())

	require.NoError(t, c.UpdatePromoTag(context.Background()))
	products.AssertExpectations(t)
}

func TestCurator_CleanupNewArrivals_CutoffIs29Days(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	products := new(mockSectionStore)
	products.On("RemoveTagFromStale", mock.Anything, TagNewArrival, now.AddDate(0, 0, -29)).
		Return(int64(4), nil)
	c := testCurator(products, new(mockSalesRotator), now)

	require.NoError(t, c.CleanupNewArrivals(context.Background()))
	products.AssertExpectations(t)
}

func TestCurator_UpdateProductsOfDay(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	products := new(mockSectionStore)
	products.On("TopByQuantity", mock.Anything, mock.MatchedBy(func(p store.SectionCandidatesParams) bool {
		return p.Limit == 10 && p.MinPrice != nil && *p.MinPrice == 3000.0
	})).Return([]int64{8, 2}, nil)
	products.On("ReplaceProductsOfDay", mock.Anything, now.Truncate(24*time.Hour), []int64{8, 2}).Return(nil)
	c := testCurator(products, new(mockSalesRotator), now)

	require.NoError(t, c.UpdateProductsOfDay(context.Background()))
	products.AssertExpectations(t)
}

func TestCurator_UpdateBestsellers_SelectionErrorAborts(t *testing.T) {
	products := new(mockSectionStore)
	sales := new(mockSalesRotator)
	sales.On("ListRankingIndexIDs", mock.Anything, store.OwnerProductSales).Return([]int64{}, nil)
	products.On("TopBySalesIndex", mock.Anything, mock.Anything).Return(nil, assert.AnError)
	c := testCurator(products, sales, time.Now())

	err := c.UpdateBestsellers(context.Background())

	assert.ErrorIs(t, err, assert.AnError)
	products.AssertNotCalled(t, "ReplaceSectionTag", mock.Anything, mock.Anything, mock.Anything)
}
