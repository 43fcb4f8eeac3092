/*
ledger.go - Append-only transaction log

PURPOSE:
  The TransactionLog is the immutable source of truth for all deposit
  movements. Every deposit and every return is recorded here. Balance is
  always computed by folding over entries - there's no separate "balance"
  field that can get out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. AUDITABLE: Every entry carries amount, note, actor and creation time

CORRECTIONS:
  If a mistake is made, nobody edits the entry. A correction is a new
  entry that offsets the old one; both stay in the log.

POST-COMMIT EVENTS:
  When a bus is attached, every committed append publishes EntryAppended.
  Appends made inside an account transaction publish nothing; the caller
  publishes once the transaction has committed.

SEE ALSO:
  - store.go: Low-level persistence interface
  - pfand/processor.go: Gated returns built on this log
*/
package generic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// TRANSACTION LOG - Append-only entry log
// =============================================================================

// TransactionLog is the source of truth for all deposit movements.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete. EVER.
//   - Immutable: Once written, entries cannot be modified.
type TransactionLog interface {
	// Append validates the draft, assigns id and timestamp, and persists it.
	// This is the ONLY write operation.
	Append(ctx context.Context, draft EntryDraft) (Entry, error)

	// EntriesFor returns all entries for an account, in no particular order.
	EntriesFor(ctx context.Context, accountID AccountID) ([]Entry, error)

	// AllEntries returns every entry across all accounts.
	AllEntries(ctx context.Context) ([]Entry, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	store     Store
	unitValue decimal.Decimal
	now       func() time.Time
	newID     func() EntryID
	bus       *EventBus
}

// LedgerOption configures a DefaultLedger.
type LedgerOption func(*DefaultLedger)

// WithClock overrides the creation-time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *DefaultLedger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides entry id assignment.
func WithIDGenerator(newID func() EntryID) LedgerOption {
	return func(l *DefaultLedger) {
		if newID != nil {
			l.newID = newID
		}
	}
}

// WithEventBus publishes EntryAppended after every committed append.
func WithEventBus(bus *EventBus) LedgerOption {
	return func(l *DefaultLedger) {
		l.bus = bus
	}
}

func NewLedger(store Store, unitValue decimal.Decimal, opts ...LedgerOption) *DefaultLedger {
	l := &DefaultLedger{
		store:     store,
		unitValue: unitValue,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() EntryID { return EntryID(uuid.NewString()) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// UnitValue returns the deposit value per unit.
func (l *DefaultLedger) UnitValue() decimal.Decimal { return l.unitValue }

// Bus returns the attached event bus, or nil.
func (l *DefaultLedger) Bus() *EventBus { return l.bus }

func (l *DefaultLedger) Append(ctx context.Context, draft EntryDraft) (Entry, error) {
	draft.AccountID = draft.AccountID.Normalize()
	if err := draft.Validate(); err != nil {
		return Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:          l.newID(),
		AccountID:   draft.AccountID,
		Kind:        draft.Kind,
		UnitCount:   draft.UnitCount,
		UnitValue:   l.unitValue,
		Amount:      UnitsValue(draft.UnitCount, l.unitValue),
		Note:        draft.Note,
		ProcessedBy: draft.ProcessedBy,
		OrderID:     draft.OrderID,
		CreatedAt:   l.now().UTC(),
	}
	if err := l.store.Append(ctx, entry); err != nil {
		return Entry{}, NewPersistenceError("append", err)
	}

	if l.bus != nil {
		l.bus.Publish(ctx, EntryAppended{Entry: entry})
	}
	return entry, nil
}

func (l *DefaultLedger) EntriesFor(ctx context.Context, accountID AccountID) ([]Entry, error) {
	entries, err := l.store.LoadAccount(ctx, accountID.Normalize())
	if err != nil {
		return nil, NewPersistenceError("entries_for", err)
	}
	return entries, nil
}

func (l *DefaultLedger) AllEntries(ctx context.Context) ([]Entry, error) {
	entries, err := l.store.LoadAll(ctx)
	if err != nil {
		return nil, NewPersistenceError("all_entries", err)
	}
	return entries, nil
}

// WithAccountTx runs fn against a log bound to an account transaction when
// the store supports one, and against this log otherwise. The bound log
// never publishes events.
func (l *DefaultLedger) WithAccountTx(ctx context.Context, accountID AccountID, fn func(ctx context.Context, log TransactionLog) error) error {
	txStore, ok := l.store.(TxStore)
	if !ok {
		return fn(ctx, l.bound(l.store))
	}
	var fnErr error
	err := txStore.WithAccountTx(ctx, accountID.Normalize(), func(ctx context.Context, tx Store) error {
		fnErr = fn(ctx, l.bound(tx))
		return fnErr
	})
	// Begin/commit failures come back raw from the store. Errors from fn pass
	// through untouched.
	passthrough := fnErr != nil && errors.Is(err, fnErr)
	if err != nil && !passthrough && KindOf(err) == KindUnknown &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return NewPersistenceError("account_tx", err)
	}
	return err
}

func (l *DefaultLedger) bound(store Store) *DefaultLedger {
	return &DefaultLedger{
		store:     store,
		unitValue: l.unitValue,
		now:       l.now,
		newID:     l.newID,
	}
}
