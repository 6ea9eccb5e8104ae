package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db))

	for _, name := range []string{"goose_db_version", "records", "products", "metadata"} {
		assert.True(t, tableExists(t, db, name), name)
	}
}

func TestOpenSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.PutRecord(ctx, sampleRecord("42")))
	require.NoError(t, s.PutState(ctx, &models.GlobalState{CurrentMPID: "42"}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.GetRecord(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "gold", rec.UserAttributes["tier"])

	st, err := s.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MPID("42"), st.CurrentMPID)
}

func TestSQLite_NumericAttributesDecodeAsFloat(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PutRecord(ctx, &models.Record{
		MPID:           "1",
		UserAttributes: models.Attributes{"age": 30, "list": []any{"a", "b"}},
	}))
	rec, err := s.GetRecord(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, float64(30), rec.UserAttributes["age"])
	assert.Equal(t, []any{"a", "b"}, rec.UserAttributes["list"])
	assert.NotNil(t, rec.UserIdentities)
	assert.NotNil(t, rec.CookieSyncDates)
}

func newMock(t *testing.T) (*SQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLite(db), mock
}

func TestSQLite_GetRecordQueryError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT identities, attributes, cookie_sync_dates FROM records WHERE mpid = ?`)).
		WithArgs("1").
		WillReturnError(errors.New("disk I/O"))

	_, err := s.GetRecord(context.Background(), "1")
	require.ErrorContains(t, err, "failed to get record[1]")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_GetRecordCorruptJSON(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT identities`).
		WillReturnRows(sqlmock.NewRows([]string{"identities", "attributes", "cookie_sync_dates"}).
			AddRow("{", "{}", "{}"))

	_, err := s.GetRecord(context.Background(), "1")
	require.ErrorContains(t, err, "failed to decode identities")
}

func TestSQLite_SetProductsRollsBackOnInsertError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM products WHERE mpid = ?`)).
		WithArgs("1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO products (mpid, position, data) VALUES (?, ?, ?)`)).
		WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err := s.SetProducts(context.Background(), "1", []models.Product{{Sku: "a"}})
	require.ErrorContains(t, err, "failed to insert product[1/0]")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_SetProductsCommits(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM products`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO products`).WithArgs("1", 0, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO products`).WithArgs("1", 1, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := s.SetProducts(context.Background(), "1", []models.Product{{Sku: "a"}, {Sku: "b"}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_PutStateExecError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO metadata`).
		WithArgs(stateKey, sqlmock.AnyArg()).
		WillReturnError(errors.New("readonly"))

	err := s.PutState(context.Background(), &models.GlobalState{CurrentMPID: "1"})
	require.ErrorContains(t, err, "failed to set metadata[global_state]")
}

func TestSQLite_ListRecordsScanError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT mpid, identities`).
		WillReturnRows(sqlmock.NewRows([]string{"mpid"}).AddRow("1"))

	_, err := s.ListRecords(context.Background())
	require.ErrorContains(t, err, "failed to scan record row")
}
