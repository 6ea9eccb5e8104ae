package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/idsync/internal/dbx"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/dmitrijs2005/idsync/internal/store/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const stateKey = "global_state"

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// RunMigrations applies the embedded schema. It is idempotent.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// SQLite is a Store over a single SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens dsn with the modernc driver and migrates it.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps ":memory:" on a single database
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return NewSQLite(db), nil
}

// NewSQLite wraps an already migrated database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

func (s *SQLite) GetRecord(ctx context.Context, mpid models.MPID) (*models.Record, error) {
	var ids, attrs, csd string
	found, err := dbx.QueryOne(ctx, s.db,
		`SELECT identities, attributes, cookie_sync_dates FROM records WHERE mpid = ?`,
		[]any{string(mpid)}, &ids, &attrs, &csd)
	if err != nil {
		return nil, fmt.Errorf("failed to get record[%s]: %w", mpid, err)
	}
	if !found {
		return nil, nil
	}
	return decodeRecord(mpid, ids, attrs, csd)
}

func (s *SQLite) PutRecord(ctx context.Context, rec *models.Record) error {
	ids, attrs, csd, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (mpid, identities, attributes, cookie_sync_dates, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(mpid) DO UPDATE SET
			identities = excluded.identities,
			attributes = excluded.attributes,
			cookie_sync_dates = excluded.cookie_sync_dates,
			updated_at = excluded.updated_at
	`, string(rec.MPID), ids, attrs, csd, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put record[%s]: %w", rec.MPID, err)
	}
	return nil
}

func (s *SQLite) ListRecords(ctx context.Context) ([]*models.Record, error) {
	out, err := dbx.QueryAll(ctx, s.db,
		`SELECT mpid, identities, attributes, cookie_sync_dates FROM records ORDER BY mpid`, nil,
		func(rows *sql.Rows) (*models.Record, error) {
			var mpid, ids, attrs, csd string
			if err := rows.Scan(&mpid, &ids, &attrs, &csd); err != nil {
				return nil, fmt.Errorf("failed to scan record row: %w", err)
			}
			return decodeRecord(models.MPID(mpid), ids, attrs, csd)
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return out, nil
}

func (s *SQLite) GetProducts(ctx context.Context, mpid models.MPID) ([]models.Product, error) {
	out, err := dbx.QueryAll(ctx, s.db,
		`SELECT data FROM products WHERE mpid = ? ORDER BY position`, []any{string(mpid)},
		func(rows *sql.Rows) (models.Product, error) {
			var data string
			var p models.Product
			if err := rows.Scan(&data); err != nil {
				return p, fmt.Errorf("failed to scan product row: %w", err)
			}
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				return p, fmt.Errorf("failed to decode product: %w", err)
			}
			return p, nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to get products[%s]: %w", mpid, err)
	}
	return out, nil
}

func (s *SQLite) SetProducts(ctx context.Context, mpid models.MPID, products []models.Product) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE mpid = ?`, string(mpid)); err != nil {
			return fmt.Errorf("failed to clear products[%s]: %w", mpid, err)
		}
		for i, p := range products {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to encode product: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO products (mpid, position, data) VALUES (?, ?, ?)`,
				string(mpid), i, string(data)); err != nil {
				return fmt.Errorf("failed to insert product[%s/%d]: %w", mpid, i, err)
			}
		}
		return nil
	})
}

func (s *SQLite) GetState(ctx context.Context) (*models.GlobalState, error) {
	var value []byte
	found, err := dbx.QueryOne(ctx, s.db, `SELECT value FROM metadata WHERE key = ?`, []any{stateKey}, &value)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", stateKey, err)
	}
	if !found {
		return nil, nil
	}
	var st models.GlobalState
	if err := json.Unmarshal(value, &st); err != nil {
		return nil, fmt.Errorf("failed to decode global state: %w", err)
	}
	return &st, nil
}

func (s *SQLite) PutState(ctx context.Context, st *models.GlobalState) error {
	value, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode global state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, stateKey, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", stateKey, err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func encodeRecord(rec *models.Record) (ids, attrs, csd string, err error) {
	b, err := json.Marshal(rec.UserIdentities.Clone())
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode identities: %w", err)
	}
	ids = string(b)
	if b, err = json.Marshal(rec.UserAttributes.Clone()); err != nil {
		return "", "", "", fmt.Errorf("failed to encode attributes: %w", err)
	}
	attrs = string(b)
	if b, err = json.Marshal(rec.CookieSyncDates.Clone()); err != nil {
		return "", "", "", fmt.Errorf("failed to encode cookie sync dates: %w", err)
	}
	csd = string(b)
	return ids, attrs, csd, nil
}

func decodeRecord(mpid models.MPID, ids, attrs, csd string) (*models.Record, error) {
	rec := &models.Record{
		MPID:            mpid,
		UserIdentities:  models.UserIdentities{},
		UserAttributes:  models.Attributes{},
		CookieSyncDates: models.CookieSyncDates{},
	}
	if err := json.Unmarshal([]byte(ids), &rec.UserIdentities); err != nil {
		return nil, fmt.Errorf("failed to decode identities[%s]: %w", mpid, err)
	}
	if err := json.Unmarshal([]byte(attrs), &rec.UserAttributes); err != nil {
		return nil, fmt.Errorf("failed to decode attributes[%s]: %w", mpid, err)
	}
	if err := json.Unmarshal([]byte(csd), &rec.CookieSyncDates); err != nil {
		return nil, fmt.Errorf("failed to decode cookie sync dates[%s]: %w", mpid, err)
	}
	return rec, nil
}
