package generic_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pfand-engine/generic"
	"github.com/warp/pfand-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var fixedNow = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// sequentialIDs returns an id generator yielding e-0001, e-0002, ...
func sequentialIDs() func() generic.EntryID {
	n := 0
	return func() generic.EntryID {
		n++
		return generic.EntryID(fmt.Sprintf("e-%04d", n))
	}
}

func newTestLedger(opts ...generic.LedgerOption) (*generic.DefaultLedger, *store.Memory) {
	mem := store.NewMemory()
	base := []generic.LedgerOption{
		generic.WithClock(func() time.Time { return fixedNow }),
		generic.WithIDGenerator(sequentialIDs()),
	}
	return generic.NewLedger(mem, generic.DefaultUnitValue, append(base, opts...)...), mem
}

func deposit(account string, units int64) generic.EntryDraft {
	return generic.EntryDraft{
		AccountID: generic.AccountID(account),
		Kind:      generic.KindDeposit,
		UnitCount: units,
		Note:      fmt.Sprintf("Paid deposit for %d cup(s)", units),
	}
}

// failingStore fails every call with err.
type failingStore struct {
	err error
}

func (s failingStore) Append(context.Context, generic.Entry) error { return s.err }
func (s failingStore) LoadAccount(context.Context, generic.AccountID) ([]generic.Entry, error) {
	return nil, s.err
}
func (s failingStore) LoadAll(context.Context) ([]generic.Entry, error) { return nil, s.err }

// =============================================================================
// APPEND
// =============================================================================

func TestLedger_Append_AssignsIdentityAndAmount(t *testing.T) {
	ledger, _ := newTestLedger()

	entry, err := ledger.Append(context.Background(), deposit("  user-1 ", 3))
	require.NoError(t, err)

	assert.Equal(t, generic.EntryID("e-0001"), entry.ID)
	assert.Equal(t, generic.AccountID("user-1"), entry.AccountID, "account id is trimmed")
	assert.Equal(t, fixedNow, entry.CreatedAt)
	assert.True(t, money("6.00").Equal(entry.Amount), "3 x 2.00")
	assert.True(t, money("2.00").Equal(entry.UnitValue))
}

func TestLedger_Append_RejectsInvalidDrafts(t *testing.T) {
	ledger, mem := newTestLedger()
	ctx := context.Background()

	cases := []struct {
		name  string
		draft generic.EntryDraft
		field string
	}{
		{"empty account", deposit("   ", 1), "accountId"},
		{"zero units", deposit("user-1", 0), "unitCount"},
		{"negative units", deposit("user-1", -2), "unitCount"},
		{"above per-entry maximum", deposit("user-1", generic.MaxUnitsPerEntry+1), "unitCount"},
		{"max int64", deposit("user-1", math.MaxInt64), "unitCount"},
		{"unknown kind", generic.EntryDraft{AccountID: "user-1", Kind: "refund", UnitCount: 1}, "kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ledger.Append(ctx, tc.draft)

			var invalid *generic.InvalidRequestError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tc.field, invalid.Field)
			assert.Equal(t, generic.KindInvalidRequest, generic.KindOf(err))
		})
	}

	all, err := mem.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "rejected drafts never reach the store")
}

func TestLedger_Append_StoreFailureIsPersistenceError(t *testing.T) {
	boom := errors.New("disk full")
	ledger := generic.NewLedger(failingStore{err: boom}, generic.DefaultUnitValue)

	_, err := ledger.Append(context.Background(), deposit("user-1", 1))

	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrPersistence)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, generic.KindPersistence, generic.KindOf(err))
}

func TestLedger_Append_CancelledContext(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ledger.Append(ctx, deposit("user-1", 1))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLedger_EntriesFor_OnlyThatAccount(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	_, err := ledger.Append(ctx, deposit("user-1", 1))
	require.NoError(t, err)
	_, err = ledger.Append(ctx, deposit("user-2", 2))
	require.NoError(t, err)
	_, err = ledger.Append(ctx, deposit("user-1", 3))
	require.NoError(t, err)

	entries, err := ledger.EntriesFor(ctx, " user-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	all, err := ledger.AllEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLedger_ReadFailuresArePersistenceErrors(t *testing.T) {
	ledger := generic.NewLedger(failingStore{err: errors.New("connection refused")}, generic.DefaultUnitValue)
	ctx := context.Background()

	_, err := ledger.EntriesFor(ctx, "user-1")
	assert.Equal(t, generic.KindPersistence, generic.KindOf(err))

	_, err = ledger.AllEntries(ctx)
	assert.Equal(t, generic.KindPersistence, generic.KindOf(err))
}

// =============================================================================
// EVENTS
// =============================================================================

func TestLedger_Append_PublishesAfterCommit(t *testing.T) {
	bus := generic.NewEventBus()
	var seen []generic.Entry
	bus.Subscribe(func(_ context.Context, ev generic.Event) error {
		if appended, ok := ev.(generic.EntryAppended); ok {
			seen = append(seen, appended.Entry)
		}
		return nil
	})
	ledger, _ := newTestLedger(generic.WithEventBus(bus))

	entry, err := ledger.Append(context.Background(), deposit("user-1", 2))
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, entry.ID, seen[0].ID)
}

func TestLedger_Append_FailedWriteDoesNotPublish(t *testing.T) {
	bus := generic.NewEventBus()
	published := 0
	bus.Subscribe(func(context.Context, generic.Event) error {
		published++
		return nil
	})
	ledger := generic.NewLedger(failingStore{err: errors.New("down")}, generic.DefaultUnitValue, generic.WithEventBus(bus))

	_, err := ledger.Append(context.Background(), deposit("user-1", 2))

	require.Error(t, err)
	assert.Zero(t, published)
}

// =============================================================================
// ACCOUNT TRANSACTIONS
// =============================================================================

func TestLedger_WithAccountTx_RollsBackOnError(t *testing.T) {
	ledger, mem := newTestLedger()
	ctx := context.Background()
	abort := errors.New("abort")

	err := ledger.WithAccountTx(ctx, "user-1", func(ctx context.Context, log generic.TransactionLog) error {
		_, err := log.Append(ctx, deposit("user-1", 5))
		require.NoError(t, err)
		return abort
	})

	assert.ErrorIs(t, err, abort)
	assert.Equal(t, generic.KindUnknown, generic.KindOf(err), "errors from fn are not persistence failures")
	entries, err := mem.LoadAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedger_WithAccountTx_BoundLogDoesNotPublish(t *testing.T) {
	bus := generic.NewEventBus()
	published := 0
	bus.Subscribe(func(context.Context, generic.Event) error {
		published++
		return nil
	})
	ledger, mem := newTestLedger(generic.WithEventBus(bus))
	ctx := context.Background()

	err := ledger.WithAccountTx(ctx, "user-1", func(ctx context.Context, log generic.TransactionLog) error {
		_, err := log.Append(ctx, deposit("user-1", 1))
		return err
	})

	require.NoError(t, err)
	assert.Zero(t, published, "caller publishes after commit")
	entries, err := mem.LoadAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedger_WithAccountTx_WithoutTxStoreRunsDirectly(t *testing.T) {
	ledger := generic.NewLedger(failingStore{err: errors.New("down")}, generic.DefaultUnitValue)
	ran := false

	err := ledger.WithAccountTx(context.Background(), "user-1", func(context.Context, generic.TransactionLog) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
}

func TestLedger_Append_AcceptsPerEntryMaximum(t *testing.T) {
	ledger, _ := newTestLedger()

	entry, err := ledger.Append(context.Background(), deposit("user-1", generic.MaxUnitsPerEntry))

	require.NoError(t, err)
	assert.Equal(t, int64(generic.MaxUnitsPerEntry), entry.UnitCount)
}

func TestParseUnitValue(t *testing.T) {
	cases := []struct {
		raw   string
		want  string
		valid bool
	}{
		{"2.00", "2.00", true},
		{" 0.5 ", "0.50", true},
		{"2.500", "2.50", true},
		{"0.125", "", false},
		{"0", "", false},
		{"-1", "", false},
		{"abc", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			value, err := generic.ParseUnitValue(tc.raw)
			if !tc.valid {
				assert.ErrorIs(t, err, generic.ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, generic.FormatMoney(value))
		})
	}
}
