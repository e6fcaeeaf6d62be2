package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestBulkInsertIgnore(t *testing.T) {
	mock := newMockPool(t)

	cfg := InsertIgnoreConfig{
		Table:        "grants",
		Columns:      []string{"id", "link", "topic"},
		ConflictKeys: []string{"link"},
	}
	rows := [][]any{
		{"g-1", "https://g.com/1", "Topic one"},
		{"g-2", "https://g.com/2", "Topic two"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_ingest_grants"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_ingest_grants"}, cfg.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "grants" .* ON CONFLICT \("link"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := BulkInsertIgnore(context.Background(), mock, cfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertIgnore_EmptyBatch(t *testing.T) {
	mock := newMockPool(t)

	n, err := BulkInsertIgnore(context.Background(), mock, InsertIgnoreConfig{
		Table:        "grants",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertIgnore_MissingConfig(t *testing.T) {
	mock := newMockPool(t)
	rows := [][]any{{"g-1"}}

	_, err := BulkInsertIgnore(context.Background(), mock, InsertIgnoreConfig{
		Table:        "grants",
		ConflictKeys: []string{"id"},
	}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")

	_, err = BulkInsertIgnore(context.Background(), mock, InsertIgnoreConfig{
		Table:   "grants",
		Columns: []string{"id"},
	}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestBulkInsertIgnore_CopyFailureRollsBack(t *testing.T) {
	mock := newMockPool(t)

	cfg := InsertIgnoreConfig{
		Table:        "grants",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_ingest_grants"}, cfg.Columns).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := BulkInsertIgnore(context.Background(), mock, cfg, [][]any{{"g-1"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
