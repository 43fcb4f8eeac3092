/*
store.go - Persistence interface for ledger entries

PURPOSE:
  Defines the interface between the ledger logic and the database.
  The Store handles persistence while maintaining append-only semantics.
  Implementations: SQLite, PostgreSQL, in-memory.

KEY INTERFACES:
  Store:            Core entry persistence (append, load)
  TxStore:          Account-scoped atomic read-validate-append
  AccountDirectory: Optional account existence check

APPEND-ONLY CONTRACT:
  - Append(): Single entry write
  - NO Update() or Delete() methods exist

ACCOUNT TRANSACTIONS:
  WithAccountTx() runs fn with exclusive write access to one account.
  The Postgres store takes a transaction-scoped advisory lock on the
  account; SQLite and memory serialize on their writer lock. Either way,
  two returns for the same account can never both read the same balance
  and both commit.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:     SQLite (default)
  - store/postgres/postgres.go: PostgreSQL via pgx
  - generic/store/memory.go:    In-memory for testing

SEE ALSO:
  - ledger.go: TransactionLog built on Store
*/
package generic

import "context"

// =============================================================================
// STORE - Interface for entry persistence (append-only)
// =============================================================================

// Store handles persistence of ledger entries.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists a fully formed entry. Returns ErrDuplicateEntry if the id exists.
	Append(ctx context.Context, entry Entry) error

	// LoadAccount returns all entries for one account. Order is unspecified.
	LoadAccount(ctx context.Context, accountID AccountID) ([]Entry, error)

	// LoadAll returns every entry across all accounts. Order is unspecified.
	LoadAll(ctx context.Context) ([]Entry, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For the read-validate-append sequence
// =============================================================================

// TxStore wraps Store with account-scoped transactions.
type TxStore interface {
	Store

	// WithAccountTx executes fn with exclusive write access to accountID.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithAccountTx(ctx context.Context, accountID AccountID, fn func(ctx context.Context, tx Store) error) error
}

// =============================================================================
// ACCOUNT DIRECTORY - Who exists, independent of ledger history
// =============================================================================

// AccountDirectory answers whether an account is known, independent of
// whether it has any ledger entries.
type AccountDirectory interface {
	AccountExists(ctx context.Context, accountID AccountID) (bool, error)
}

// Account is a registered customer identity.
type Account struct {
	ID   AccountID
	Name string
}

// AccountRegistry stores registered accounts.
type AccountRegistry interface {
	AccountDirectory
	RegisterAccount(ctx context.Context, account Account) error
}
