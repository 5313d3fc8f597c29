package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"sqlite untouched", DialectSQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"postgres numbered", DialectPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"quoted literal kept", DialectPostgres, "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
		{"no placeholders", DialectPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.Rebind(tt.in))
		})
	}
}

func TestParseDialect(t *testing.T) {
	d, ok := ParseDialect("PostgreSQL")
	assert.True(t, ok)
	assert.Equal(t, DialectPostgres, d)

	d, ok = ParseDialect("")
	assert.True(t, ok)
	assert.Equal(t, DialectSQLite, d)

	_, ok = ParseDialect("mssql")
	assert.False(t, ok)
}

func setupMockPostgres(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newSQLStore(db, DialectPostgres, zap.NewNop()), mock
}

func TestPostgres_ItemsMatchingAll(t *testing.T) {
	s, mock := setupMockPostgres(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "kind", "subtype", "title", "parent_id", "created_at"}).
		AddRow(int64(7), "asset", "image", "sunset", nil, created)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE t.tag_id IN ($1, $2) AND i.subtype = $3`)).
		WithArgs(int64(1), int64(2), "image", 2).
		WillReturnRows(rows)

	items, err := s.ItemsMatchingAll(context.Background(), []int64{1, 2, 1}, ItemFilter{Subtype: SubtypeImage})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(7), items[0].ID)
	assert.Equal(t, KindAsset, items[0].Kind)
	assert.Nil(t, items[0].ParentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AssociateConflictIsNotAnError(t *testing.T) {
	s, mock := setupMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (item_id, tag_id) DO NOTHING`)).
		WithArgs(int64(3), int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := s.Associate(context.Background(), 3, 4)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_StoreErrorPropagates(t *testing.T) {
	s, mock := setupMockPostgres(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM taggings WHERE tag_id = \$1`).
		WithArgs(int64(9)).
		WillReturnError(assert.AnError)

	_, err := s.CountTag(context.Background(), 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
