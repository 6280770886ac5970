package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_TrackQuery_Repeat(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SET count_requests = count_requests + 1")).
		WithArgs("iphone").
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "count_requests", "popular_index_id", "created_at"}).
			AddRow(int64(3), "iphone", 8, int64(30), now))
	mock.ExpectExec(regexp.QuoteMeta("jsonb_set(counter, '{first_week}'")).
		WithArgs(int64(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sq, err := store.TrackQuery(context.Background(), "iphone")

	require.NoError(t, err)
	assert.Equal(t, int64(3), sq.ID)
	assert.Equal(t, 8, sq.CountRequests)
	assert.Equal(t, int64(30), sq.Popular.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TrackQuery_FirstSighting(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SET count_requests = count_requests + 1")).
		WithArgs("galaxy fold").
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "count_requests", "popular_index_id", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO store.ranking_indexes")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(99)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO store.search_queries (text, count_requests, popular_index_id)")).
		WithArgs("galaxy fold", int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "count_requests", "popular_index_id", "created_at"}).
			AddRow(int64(12), "galaxy fold", 1, int64(99), now))
	mock.ExpectExec(regexp.QuoteMeta("jsonb_set(counter, '{first_week}'")).
		WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sq, err := store.TrackQuery(context.Background(), "galaxy fold")

	require.NoError(t, err)
	assert.Equal(t, int64(12), sq.ID)
	assert.Equal(t, 1, sq.CountRequests)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TrendingQueries(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	rows := sqlmock.NewRows([]string{"id", "text", "count_requests", "created_at", "r.id", "index_value", "counter"}).
		AddRow(int64(1), "iphone", 40, now, int64(30), 12.5, []byte(`{"first_week": 3, "second_week": 1, "third_week": 0}`)).
		AddRow(int64(2), "airpods", 11, now, int64(31), 4.0, []byte(`{"first_week": 0, "second_week": 2, "third_week": 5}`))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY r.index_value DESC, sq.count_requests DESC")).
		WithArgs(10).
		WillReturnRows(rows)

	queries, err := store.TrendingQueries(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "iphone", queries[0].Text)
	assert.InDelta(t, 12.5, queries[0].Popular.Index, 1e-9)
	assert.Equal(t, 3, queries[0].Popular.Counter.FirstWeek)
	assert.Equal(t, "airpods", queries[1].Text)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TrendingQueries_NonPositiveLimit(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	queries, err := store.TrendingQueries(context.Background(), 0)

	require.NoError(t, err)
	assert.Empty(t, queries)
	require.NoError(t, mock.ExpectationsWereMet())
}
