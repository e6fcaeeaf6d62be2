package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/newswatch/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_InsertArticles_ReturnsOnlyNewRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// First row inserts, second conflicts on url.
	mock.ExpectQuery(`INSERT INTO articles`).
		WithArgs(pgxmock.AnyArg(), "Fresh", "https://a.com/1", "world", "Example", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("id-1"))
	mock.ExpectQuery(`INSERT INTO articles`).
		WithArgs(pgxmock.AnyArg(), "Stale", "https://a.com/2", "world", "Example", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	inserted, err := s.InsertArticles(context.Background(), []model.Article{
		{Headline: "Fresh", URL: "https://a.com/1", Category: model.CategoryWorld, Source: "Example"},
		{Headline: "Stale", URL: "https://a.com/2", Category: model.CategoryWorld, Source: "Example"},
	})

	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, "https://a.com/1", inserted[0].URL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertArticles_SkipsDuplicatesWithinBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Only one insert expected despite the repeated url.
	mock.ExpectQuery(`INSERT INTO articles`).
		WithArgs(pgxmock.AnyArg(), "Once", "https://a.com/1", "world", "Example", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("id-1"))

	inserted, err := s.InsertArticles(context.Background(), []model.Article{
		{Headline: "Once", URL: "https://a.com/1", Category: model.CategoryWorld, Source: "Example"},
		{Headline: "Twice", URL: "https://a.com/1", Category: model.CategoryWorld, Source: "Example"},
	})

	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GrantsMissingSummary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	agency := "DOD"
	mock.ExpectQuery(`SELECT id, topic, description, link, agency, program, close_date, created_at`).
		WithArgs(selectBatchLimit).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "topic", "description", "link", "agency", "program", "close_date", "created_at",
		}).
			AddRow("g-1", "Topic one", "Desc", "https://g.com/1", &agency, (*string)(nil), (*string)(nil), created).
			AddRow("g-2", "Topic two", "Desc", "https://g.com/2", (*string)(nil), (*string)(nil), (*string)(nil), created))

	grants, err := s.GrantsMissingSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "DOD", grants[0].Agency)
	assert.Empty(t, grants[1].Agency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetGrantSummary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE grants SET summary`).
		WithArgs("A short summary.", "g-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SetGrantSummary(context.Background(), "g-1", "A short summary."))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetGrantSummary_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE grants SET summary`).
		WithArgs("A short summary.", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetGrantSummary(context.Background(), "missing", "A short summary.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
