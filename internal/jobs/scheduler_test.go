package jobs

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"catalog-ranking-service/internal/cache"
	"catalog-ranking-service/internal/config"
	"catalog-ranking-service/internal/ranking"
	"catalog-ranking-service/internal/sections"
	"catalog-ranking-service/internal/store"
)

type mockSectionStore struct {
	mock.Mock
}

func (m *mockSectionStore) TopBySalesIndex(ctx context.Context, params store.SectionCandidatesParams) ([]int64, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockSectionStore) TopByDiscount(ctx context.Context, params store.SectionCandidatesParams) ([]int64, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockSectionStore) TopByQuantity(ctx context.Context, params store.SectionCandidatesParams) ([]int64, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockSectionStore) ProductIDsWithDiscount(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	return args.Get(0).([]int64), args.Error(1)
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

type mockRankingStore struct {
	mock.Mock
}

func (m *mockRankingStore) IncrementCounter(ctx context.Context, indexID int64, amount int) error {
	args := m.Called(ctx, indexID, amount)
	return args.Error(0)
}

func (m *mockRankingStore) UpdateIndex(ctx context.Context, indexID int64) error {
	args := m.Called(ctx, indexID)
	return args.Error(0)
}

func (m *mockRankingStore) ListRankingIndexIDs(ctx context.Context, owner store.IndexOwner) ([]int64, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).([]int64), args.Error(1)
}

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) Invalidate(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestScheduler(products *mockSectionStore, rankings *mockRankingStore) *Scheduler {
	curator := sections.NewCurator(products, rankings, discardLogger(), nil)
	recalculator := ranking.NewRecalculator(rankings, discardLogger())
	cfg := config.JobsConfig{Enabled: true, WeeklySpec: "0 3 * * 1", DailySpec: "0 4 * * *"}
	return NewScheduler(curator, recalculator, nil, cfg, discardLogger())
}

func TestScheduler_StartAcceptsConfiguredSpecs(t *testing.T) {
	s := newTestScheduler(new(mockSectionStore), new(mockRankingStore))

	require.NoError(t, s.Start())
	s.Stop()
}

func TestScheduler_StartRejectsMalformedSpec(t *testing.T) {
	s := newTestScheduler(new(mockSectionStore), new(mockRankingStore))
	s.cfg.WeeklySpec = "not a cron spec"

	assert.Error(t, s.Start())
}

func TestScheduler_RunWeekly_BestsellersBeforeRecomputation(t *testing.T) {
	products := new(mockSectionStore)
	rankings := new(mockRankingStore)

	var calls []string
	rankings.On("ListRankingIndexIDs", mock.Anything, store.OwnerProductSales).
		Run(func(mock.Arguments) { calls = append(calls, "rotate-sales") }).
		Return([]int64{101}, nil)
	rankings.On("UpdateIndex", mock.Anything, int64(101)).Return(nil)
	products.On("TopBySalesIndex", mock.Anything, mock.Anything).Return([]int64{1, 2}, nil)
	products.On("ReplaceSectionTag", mock.Anything, sections.TagBestsellers, []int64{1, 2}).
		Run(func(mock.Arguments) { calls = append(calls, "replace-hit") }).
		Return(nil)

	for _, owner := range []store.IndexOwner{
		store.OwnerProductPopular, store.OwnerProductOftenSearch,
		store.OwnerCatalog, store.OwnerListingAttribute, store.OwnerSearchQuery,
	} {
		rankings.On("ListRankingIndexIDs", mock.Anything, owner).
			Run(func(mock.Arguments) { calls = append(calls, "recompute") }).
			Return([]int64{}, nil)
	}

	s := newTestScheduler(products, rankings)
	s.RunWeekly(context.Background())

	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, []string{"rotate-sales", "replace-hit"}, calls[:2],
		"sales rotation and bestseller rebuild must precede popularity recomputation")
	rankings.AssertNumberOfCalls(t, "ListRankingIndexIDs", 6)
}

func TestScheduler_RunDaily_OneFailureDoesNotStopTheRest(t *testing.T) {
	products := new(mockSectionStore)
	rankings := new(mockRankingStore)

	products.On("TopByQuantity", mock.Anything, mock.Anything).
		Return([]int64{}, errors.New("db down"))
	products.On("ProductIDsWithDiscount", mock.Anything).Return([]int64{5}, nil)
	products.On("ReplaceSectionTag", mock.Anything, sections.TagPromo, []int64{5}).Return(nil)
	products.On("TopByDiscount", mock.Anything, mock.Anything).Return([]int64{5}, nil)
	products.On("ReplaceSectionTag", mock.Anything, sections.TagBestPrice, []int64{5}).Return(nil)
	products.On("RemoveTagFromStale", mock.Anything, sections.TagNewArrival, mock.Anything).
		Return(int64(3), nil)

	s := newTestScheduler(products, rankings)
	s.RunDaily(context.Background())

	products.AssertExpectations(t)
}

func TestScheduler_RunDaily_InvalidatesListingCaches(t *testing.T) {
	products := new(mockSectionStore)
	rankings := new(mockRankingStore)
	products.On("TopByQuantity", mock.Anything, mock.Anything).Return([]int64{1}, nil)
	products.On("ReplaceProductsOfDay", mock.Anything, mock.Anything, []int64{1}).Return(nil)
	products.On("ProductIDsWithDiscount", mock.Anything).Return([]int64{}, nil)
	products.On("ReplaceSectionTag", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	products.On("TopByDiscount", mock.Anything, mock.Anything).Return([]int64{}, nil)
	products.On("RemoveTagFromStale", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)

	invalidator := new(mockInvalidator)
	invalidator.On("Invalidate", mock.Anything, mock.MatchedBy(func(keys []string) bool {
		found := false
		for _, k := range keys {
			if k == cache.Key("listing", "smartfony", "sort", "") {
				found = true
			}
		}
		return found && len(keys) == len(sections.DisplayListings)*5
	})).Return(nil)

	s := newTestScheduler(products, rankings)
	s.cache = invalidator
	s.RunDaily(context.Background())

	invalidator.AssertExpectations(t)
}
