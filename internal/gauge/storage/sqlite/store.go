// Package sqlite provides SQLite-backed persistence for gauge lifecycle data.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/kellyenterprises/gaugehub/internal/errors"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
	sqlitemigrate "github.com/kellyenterprises/gaugehub/internal/platform/storage/sqlitemigrate"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dbtx abstracts *sql.DB and *sql.Tx so every store method runs unchanged
// inside a transaction scope.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements storage.Store over a SQLite database.
type Store struct {
	sqlDB *sql.DB
	db    dbtx
}

var _ storage.Store = (*Store)(nil)

// Open opens and migrates a gauge SQLite store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrationsFS, "migrations"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, db: sqlDB}, nil
}

// OpenInMemory opens a throwaway in-memory store, used by tests.
func OpenInMemory() (*Store, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrationsFS, "migrations"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, db: sqlDB}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// WithTx runs fn against a transaction-scoped Stores view. Any error rolls
// back every write made inside the scope.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Stores) error) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if fn == nil {
		return fmt.Errorf("transaction function is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	scoped := &Store{db: tx}
	if err := fn(scoped); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Gauges returns the gauge row store.
func (s *Store) Gauges() storage.GaugeStore { return &gaugeStore{db: s.db} }

// Checkouts returns the checkout record store.
func (s *Store) Checkouts() storage.CheckoutStore { return &checkoutStore{db: s.db} }

// Batches returns the calibration batch store.
func (s *Store) Batches() storage.BatchStore { return &batchStore{db: s.db} }

// Transfers returns the transfer request store.
func (s *Store) Transfers() storage.TransferStore { return &transferStore{db: s.db} }

// Unseals returns the unseal request store.
func (s *Store) Unseals() storage.UnsealStore { return &unsealStore{db: s.db} }

// PairingHistory returns the append-only pairing history store.
func (s *Store) PairingHistory() storage.PairingHistoryStore { return &pairingHistoryStore{db: s.db} }

// Audit returns the append-only audit log store.
func (s *Store) Audit() storage.AuditStore { return &auditStore{db: s.db} }

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func notFound(entity, id string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("%s %s not found", entity, id),
		map[string]string{"id": id})
}

func staleState(gaugeID string, expected string) error {
	return apperrors.WithMetadata(apperrors.CodeStaleState,
		fmt.Sprintf("gauge %s is no longer %s", gaugeID, expected),
		map[string]string{"gauge_id": gaugeID, "expected": expected})
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

func timeToUnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func unixMillisToTime(millis int64) time.Time {
	if millis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis).UTC()
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}
