package source

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer"
)

const query = "SELECT id, content FROM posts WHERE deleted_at IS NULL ORDER BY id"

func TestPostgresScan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "content"}).
		AddRow(int64(1), "first post").
		AddRow(int64(2), nil).
		AddRow("not-a-number", "bad id").
		AddRow(int64(4), "fourth post")
	mock.ExpectQuery("SELECT id, content FROM posts").WillReturnRows(rows)

	var got []indexer.Document
	err = NewPostgres(db, query).Scan(context.Background(), func(d indexer.Document) error {
		got = append(got, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []indexer.Document{
		{ID: 1, Text: "first post"},
		{ID: 2, Text: ""},
		{ID: 4, Text: "fourth post"},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresScanQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))
	err = NewPostgres(db, query).Scan(context.Background(), func(indexer.Document) error { return nil })
	assert.ErrorContains(t, err, "querying documents")
}

func TestPostgresScanStopsOnCallbackError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "content"}).
		AddRow(int64(1), "one").
		AddRow(int64(2), "two")
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	stop := errors.New("stop")
	calls := 0
	err = NewPostgres(db, query).Scan(context.Background(), func(indexer.Document) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
