/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces using a pgx connection pool.

ACCOUNT TRANSACTIONS:
  WithAccountTx opens a transaction and takes pg_advisory_xact_lock keyed by
  a hash of the account id. Every process writing returns for that account
  queues on the same lock, which is released on commit or rollback. Other
  accounts are never blocked.

MONEY:
  unit_value and amount are NUMERIC and read back as text, then parsed into
  decimal.Decimal. No float ever touches a stored amount.

SEE ALSO:
  - store/sqlite/sqlite.go: Same schema in SQLite dialect
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/pfand-engine/generic"
)

const (
	pgUniqueViolationCode = "23505"

	schema = `
	create table if not exists pfand_entries (
		id text primary key,
		account_id text not null,
		kind text not null check (kind in ('deposit', 'return')),
		unit_count bigint not null check (unit_count > 0 and unit_count <= 10000),
		unit_value numeric(12,2) not null,
		amount numeric(18,2) not null,
		note text not null default '',
		processed_by text,
		order_id text,
		created_at timestamptz not null
	);

	create index if not exists idx_pfand_entries_account
		on pfand_entries(account_id, created_at);

	create or replace function pfand_entries_append_only() returns trigger as $$
	begin
		raise exception 'pfand_entries is append-only';
	end;
	$$ language plpgsql;

	drop trigger if exists pfand_entries_no_change on pfand_entries;
	create trigger pfand_entries_no_change
		before update or delete on pfand_entries
		for each row execute function pfand_entries_append_only();

	create table if not exists accounts (
		id text primary key,
		name text not null default '',
		created_at timestamptz not null default now()
	);
	`

	sqlInsertEntry = `
		insert into pfand_entries(id, account_id, kind, unit_count, unit_value, amount, note, processed_by, order_id, created_at)
		values ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7, nullif($8, ''), nullif($9, ''), $10)
	`

	sqlSelectEntries = `
		select id, account_id, kind, unit_count, unit_value::text, amount::text, note,
		       coalesce(processed_by, ''), coalesce(order_id, ''), created_at
		from pfand_entries
	`

	sqlAccountLock = `select pg_advisory_xact_lock(hashtextextended($1, 0))`

	sqlUpsertAccount = `
		insert into accounts(id, name) values ($1, $2)
		on conflict (id) do update set name = excluded.name
	`

	sqlAccountExists = `select exists(select 1 from accounts where id = $1)`
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements generic.TxStore and generic.AccountRegistry over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to databaseURL and migrates the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	store := New(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the schema if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// =============================================================================
// ENTRY STORE
// =============================================================================

func (s *Store) Append(ctx context.Context, entry generic.Entry) error {
	return appendEntry(ctx, s.pool, entry)
}

func (s *Store) LoadAccount(ctx context.Context, accountID generic.AccountID) ([]generic.Entry, error) {
	return loadAccount(ctx, s.pool, accountID)
}

func (s *Store) LoadAll(ctx context.Context) ([]generic.Entry, error) {
	return queryEntries(ctx, s.pool, sqlSelectEntries+` order by created_at, id`)
}

func appendEntry(ctx context.Context, db dbtx, entry generic.Entry) error {
	_, err := db.Exec(ctx, sqlInsertEntry,
		string(entry.ID),
		string(entry.AccountID),
		string(entry.Kind),
		entry.UnitCount,
		entry.UnitValue.String(),
		entry.Amount.String(),
		entry.Note,
		entry.ProcessedBy,
		entry.OrderID,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return generic.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func loadAccount(ctx context.Context, db dbtx, accountID generic.AccountID) ([]generic.Entry, error) {
	return queryEntries(ctx, db, sqlSelectEntries+` where account_id = $1 order by created_at, id`, string(accountID))
}

func queryEntries(ctx context.Context, db dbtx, query string, args ...any) ([]generic.Entry, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []generic.Entry
	for rows.Next() {
		var (
			id, accountID, kind, unitValue, amount string
			entry                                  generic.Entry
			createdAt                              time.Time
		)
		if err := rows.Scan(&id, &accountID, &kind, &entry.UnitCount, &unitValue, &amount,
			&entry.Note, &entry.ProcessedBy, &entry.OrderID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entry.ID = generic.EntryID(id)
		entry.AccountID = generic.AccountID(accountID)
		entry.CreatedAt = createdAt.UTC()
		if entry.Kind, err = generic.ParseEntryKind(kind); err != nil {
			return nil, fmt.Errorf("entry %s: %w", id, err)
		}
		if entry.UnitValue, err = decimal.NewFromString(unitValue); err != nil {
			return nil, fmt.Errorf("entry %s: bad unit_value: %w", id, err)
		}
		if entry.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("entry %s: bad amount: %w", id, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// =============================================================================
// ACCOUNT TRANSACTIONS
// =============================================================================

// WithAccountTx runs fn in a transaction holding the account's advisory lock.
func (s *Store) WithAccountTx(ctx context.Context, accountID generic.AccountID, fn func(ctx context.Context, tx generic.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, sqlAccountLock, string(accountID)); err != nil {
		return fmt.Errorf("failed to lock account %s: %w", accountID, err)
	}
	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

func (ts *txStore) Append(ctx context.Context, entry generic.Entry) error {
	return appendEntry(ctx, ts.tx, entry)
}

func (ts *txStore) LoadAccount(ctx context.Context, accountID generic.AccountID) ([]generic.Entry, error) {
	return loadAccount(ctx, ts.tx, accountID)
}

func (ts *txStore) LoadAll(ctx context.Context) ([]generic.Entry, error) {
	return queryEntries(ctx, ts.tx, sqlSelectEntries+` order by created_at, id`)
}

// =============================================================================
// ACCOUNT REGISTRY
// =============================================================================

func (s *Store) RegisterAccount(ctx context.Context, account generic.Account) error {
	if _, err := s.pool.Exec(ctx, sqlUpsertAccount, string(account.ID), account.Name); err != nil {
		return fmt.Errorf("failed to register account: %w", err)
	}
	return nil
}

func (s *Store) AccountExists(ctx context.Context, accountID generic.AccountID) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, sqlAccountExists, string(accountID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return exists, nil
}

var (
	_ generic.TxStore         = (*Store)(nil)
	_ generic.AccountRegistry = (*Store)(nil)
)
