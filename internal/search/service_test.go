package search

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"catalog-ranking-service/internal/domain"
)

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) SearchProductIDs(ctx context.Context, query string, limit int) ([]int64, error) {
	args := m.Called(ctx, query, limit)
	if ids := args.Get(0); ids != nil {
		return ids.([]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockQueryStore struct {
	mock.Mock
}

func (m *mockQueryStore) TrackQuery(ctx context.Context, text string) (*domain.SearchQuery, error) {
	args := m.Called(ctx, text)
	if sq := args.Get(0); sq != nil {
		return sq.(*domain.SearchQuery), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockQueryStore) TrendingQueries(ctx context.Context, limit int) ([]domain.SearchQuery, error) {
	args := m.Called(ctx, limit)
	if qs := args.Get(0); qs != nil {
		return qs.([]domain.SearchQuery), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAppearanceRecorder struct {
	mock.Mock
}

func (m *mockAppearanceRecorder) RecordSearchAppearances(ctx context.Context, productIDs []int64) error {
	args := m.Called(ctx, productIDs)
	return args.Error(0)
}

func newTestService(searcher *mockSearcher, queries *mockQueryStore, products *mockAppearanceRecorder) *Service {
	return NewService(searcher, queries, products, log.New(io.Discard, "", 0))
}

func TestService_Search_TracksAndRecords(t *testing.T) {
	searcher := new(mockSearcher)
	queries := new(mockQueryStore)
	products := new(mockAppearanceRecorder)
	queries.On("TrackQuery", mock.Anything, "iphone").Return(&domain.SearchQuery{ID: 1, Text: "iphone"}, nil)
	searcher.On("SearchProductIDs", mock.Anything, "iphone", 50).Return([]int64{3, 7}, nil)
	products.On("RecordSearchAppearances", mock.Anything, []int64{3, 7}).Return(nil)

	ids, err := newTestService(searcher, queries, products).Search(context.Background(), "  iphone ", 50)

	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, ids)
	queries.AssertExpectations(t)
	products.AssertExpectations(t)
}

func TestService_Search_BlankQueryShortCircuits(t *testing.T) {
	searcher := new(mockSearcher)
	queries := new(mockQueryStore)
	products := new(mockAppearanceRecorder)

	ids, err := newTestService(searcher, queries, products).Search(context.Background(), "   ", 50)

	require.NoError(t, err)
	assert.Empty(t, ids)
	searcher.AssertNotCalled(t, "SearchProductIDs", mock.Anything, mock.Anything, mock.Anything)
	queries.AssertNotCalled(t, "TrackQuery", mock.Anything, mock.Anything)
}

func TestService_Search_TrackingFailureIsNotFatal(t *testing.T) {
	searcher := new(mockSearcher)
	queries := new(mockQueryStore)
	products := new(mockAppearanceRecorder)
	queries.On("TrackQuery", mock.Anything, "iphone").Return(nil, assert.AnError)
	searcher.On("SearchProductIDs", mock.Anything, "iphone", 50).Return([]int64{3}, nil)
	products.On("RecordSearchAppearances", mock.Anything, []int64{3}).Return(nil)

	ids, err := newTestService(searcher, queries, products).Search(context.Background(), "iphone", 50)

	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)
}

func TestService_Search_SidecarFailureIsFatal(t *testing.T) {
	searcher := new(mockSearcher)
	queries := new(mockQueryStore)
	products := new(mockAppearanceRecorder)
	queries.On("TrackQuery", mock.Anything, "iphone").Return(&domain.SearchQuery{}, nil)
	searcher.On("SearchProductIDs", mock.Anything, "iphone", 50).Return(nil, assert.AnError)

	_, err := newTestService(searcher, queries, products).Search(context.Background(), "iphone", 50)

	assert.ErrorIs(t, err, assert.AnError)
	products.AssertNotCalled(t, "RecordSearchAppearances", mock.Anything, mock.Anything)
}

func TestService_Hints(t *testing.T) {
	searcher := new(mockSearcher)
	queries := new(mockQueryStore)
	products := new(mockAppearanceRecorder)
	queries.On("TrendingQueries", mock.Anything, 10).Return([]domain.SearchQuery{
		{ID: 1, Text: "iphone"}, {ID: 2, Text: "airpods"},
	}, nil)

	hints, err := newTestService(searcher, queries, products).Hints(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, hints, 2)
	assert.Equal(t, "iphone", hints[0].Text)
}
