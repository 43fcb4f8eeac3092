/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the ledger persistence interfaces using SQLite. This is the
  default store for development, demos and single-node deployments.

INTERFACES IMPLEMENTED:
  generic.Store:           Entry persistence
  generic.TxStore:         Account-scoped transactions
  generic.AccountRegistry: Registered accounts

APPEND-ONLY ENFORCEMENT:
  The Store enforces append-only semantics at two levels:
  - No UPDATE or DELETE statements on pfand_entries exist in this package
  - Triggers abort any UPDATE or DELETE issued by anyone else

KEY TABLES:
  pfand_entries: Immutable ledger of all deposits and returns
  accounts:      Registered customer identities

MONEY:
  unit_value and amount are stored as TEXT decimal strings ("2.00"), never
  REAL, so values round-trip exactly.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithAccountTx holds the writer lock
  for the whole read-validate-append, which serializes returns for every
  account in the process. SQLite allows one writer at a time anyway.

USAGE:
  store, err := sqlite.New("./data/pfand.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store, generic.DefaultUnitValue)

SEE ALSO:
  - generic/store.go: Interface definitions
  - store/postgres/postgres.go: Server-grade implementation
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/pfand-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS pfand_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('deposit', 'return')),
		unit_count INTEGER NOT NULL CHECK (unit_count > 0 AND unit_count <= 10000),
		unit_value TEXT NOT NULL,
		amount TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		processed_by TEXT,
		order_id TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: entriesFor(account)
	CREATE INDEX IF NOT EXISTS idx_pfand_entries_account
		ON pfand_entries(account_id, created_at);

	CREATE INDEX IF NOT EXISTS idx_pfand_entries_order
		ON pfand_entries(order_id) WHERE order_id IS NOT NULL;

	CREATE TRIGGER IF NOT EXISTS pfand_entries_no_update
		BEFORE UPDATE ON pfand_entries
	BEGIN
		SELECT RAISE(ABORT, 'pfand_entries is append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS pfand_entries_no_delete
		BEFORE DELETE ON pfand_entries
	BEGIN
		SELECT RAISE(ABORT, 'pfand_entries is append-only');
	END;

	-- Registered accounts
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE (generic.Store interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const entryColumns = `id, account_id, kind, unit_count, unit_value, amount, note, processed_by, order_id, created_at`

// Append adds an entry to the ledger.
func (s *Store) Append(ctx context.Context, entry generic.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendEntry(ctx, s.db, entry)
}

func appendEntry(ctx context.Context, db execer, entry generic.Entry) error {
	query := `INSERT INTO pfand_entries (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Kind,
		entry.UnitCount,
		entry.UnitValue.String(),
		entry.Amount.String(),
		entry.Note,
		nullString(entry.ProcessedBy),
		nullString(entry.OrderID),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// LoadAccount returns all entries for an account, oldest first.
func (s *Store) LoadAccount(ctx context.Context, accountID generic.AccountID) ([]generic.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadAccount(ctx, s.db, accountID)
}

func loadAccount(ctx context.Context, db querier, accountID generic.AccountID) ([]generic.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM pfand_entries WHERE account_id = ? ORDER BY created_at ASC, id ASC`
	return queryEntries(ctx, db, query, accountID)
}

// LoadAll returns every entry, oldest first.
func (s *Store) LoadAll(ctx context.Context) ([]generic.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + ` FROM pfand_entries ORDER BY created_at ASC, id ASC`
	return queryEntries(ctx, s.db, query)
}

func queryEntries(ctx context.Context, db querier, query string, args ...any) ([]generic.Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []generic.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (generic.Entry, error) {
	var (
		entry       generic.Entry
		kind        string
		unitValue   string
		amount      string
		processedBy sql.NullString
		orderID     sql.NullString
		createdAt   string
	)

	err := rows.Scan(
		&entry.ID, &entry.AccountID, &kind, &entry.UnitCount,
		&unitValue, &amount, &entry.Note, &processedBy, &orderID, &createdAt,
	)
	if err != nil {
		return entry, fmt.Errorf("failed to scan entry: %w", err)
	}

	if entry.Kind, err = generic.ParseEntryKind(kind); err != nil {
		return entry, fmt.Errorf("entry %s: %w", entry.ID, err)
	}
	if entry.UnitValue, err = decimal.NewFromString(unitValue); err != nil {
		return entry, fmt.Errorf("entry %s: bad unit_value %q: %w", entry.ID, unitValue, err)
	}
	if entry.Amount, err = decimal.NewFromString(amount); err != nil {
		return entry, fmt.Errorf("entry %s: bad amount %q: %w", entry.ID, amount, err)
	}
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return entry, fmt.Errorf("entry %s: bad created_at %q: %w", entry.ID, createdAt, err)
	}
	entry.ProcessedBy = processedBy.String
	entry.OrderID = orderID.String

	return entry, nil
}

// =============================================================================
// ACCOUNT TRANSACTIONS (generic.TxStore interface)
// =============================================================================

// WithAccountTx runs fn inside a SQL transaction while holding the writer lock.
func (s *Store) WithAccountTx(ctx context.Context, _ generic.AccountID, fn func(ctx context.Context, tx generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Append(ctx context.Context, entry generic.Entry) error {
	return appendEntry(ctx, ts.tx, entry)
}

func (ts *txStore) LoadAccount(ctx context.Context, accountID generic.AccountID) ([]generic.Entry, error) {
	return loadAccount(ctx, ts.tx, accountID)
}

func (ts *txStore) LoadAll(ctx context.Context) ([]generic.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM pfand_entries ORDER BY created_at ASC, id ASC`
	return queryEntries(ctx, ts.tx, query)
}

// =============================================================================
// ACCOUNT REGISTRY (generic.AccountRegistry interface)
// =============================================================================

// RegisterAccount inserts an account, or renames it if the id exists.
func (s *Store) RegisterAccount(ctx context.Context, account generic.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accounts (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query, account.ID, account.Name, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to register account: %w", err)
	}
	return nil
}

func (s *Store) AccountExists(ctx context.Context, accountID generic.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE id = ?`, accountID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return count > 0, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ generic.TxStore         = (*Store)(nil)
	_ generic.AccountRegistry = (*Store)(nil)
)
