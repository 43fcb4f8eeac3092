package generic_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pfand-engine/generic"
)

// entry builds a stored entry directly, bypassing the ledger.
func entry(id, account string, kind generic.EntryKind, units int64, at time.Time) generic.Entry {
	return generic.Entry{
		ID:        generic.EntryID(id),
		AccountID: generic.AccountID(account),
		Kind:      kind,
		UnitCount: units,
		UnitValue: generic.DefaultUnitValue,
		Amount:    generic.UnitsValue(units, generic.DefaultUnitValue),
		CreatedAt: at,
	}
}

func minutes(n int) time.Time {
	return fixedNow.Add(time.Duration(n) * time.Minute)
}

var calc = generic.NewBalanceCalculator(generic.DefaultUnitValue)

func rawUnits(t *testing.T, entries []generic.Entry) int64 {
	t.Helper()
	units, err := calc.RawOutstandingUnits(entries)
	require.NoError(t, err)
	return units
}

func outstandingUnits(t *testing.T, entries []generic.Entry) int64 {
	t.Helper()
	units, err := calc.OutstandingUnits(entries)
	require.NoError(t, err)
	return units
}

func outstandingValue(t *testing.T, entries []generic.Entry) string {
	t.Helper()
	value, err := calc.OutstandingValue(entries)
	require.NoError(t, err)
	return generic.FormatMoney(value)
}

func accountSummary(t *testing.T, entries []generic.Entry) generic.AccountSummary {
	t.Helper()
	summary, err := calc.AccountSummary(entries)
	require.NoError(t, err)
	return summary
}

func systemSummary(t *testing.T, entries []generic.Entry) generic.SystemSummary {
	t.Helper()
	summary, err := calc.SystemSummary(entries)
	require.NoError(t, err)
	return summary
}

// =============================================================================
// OUTSTANDING BALANCE
// =============================================================================

func TestBalance_Outstanding(t *testing.T) {
	// GIVEN: deposits of 3 and 2, one return of 1
	entries := []generic.Entry{
		entry("a", "user-1", generic.KindDeposit, 3, minutes(0)),
		entry("b", "user-1", generic.KindDeposit, 2, minutes(1)),
		entry("c", "user-1", generic.KindReturn, 1, minutes(2)),
	}

	// THEN
	assert.Equal(t, int64(4), rawUnits(t, entries))
	assert.Equal(t, int64(4), outstandingUnits(t, entries))
	assert.Equal(t, "8.00", outstandingValue(t, entries))
}

func TestBalance_EmptyIsZero(t *testing.T) {
	assert.Equal(t, int64(0), rawUnits(t, nil))
	assert.Equal(t, "0.00", outstandingValue(t, nil))
}

func TestBalance_ClampedVersusRaw(t *testing.T) {
	// GIVEN: history that over-returned (e.g. imported from an older system)
	entries := []generic.Entry{
		entry("a", "user-1", generic.KindDeposit, 1, minutes(0)),
		entry("b", "user-1", generic.KindReturn, 3, minutes(1)),
	}

	// THEN: validation sees the truth, display never goes negative
	assert.Equal(t, int64(-2), rawUnits(t, entries))
	assert.Equal(t, int64(0), outstandingUnits(t, entries))
	assert.Equal(t, "0.00", outstandingValue(t, entries))
}

func TestBalance_ExactDecimalArithmetic(t *testing.T) {
	// GIVEN: 1000 single-unit deposits at 0.10
	calc := generic.NewBalanceCalculator(money("0.10"))
	entries := make([]generic.Entry, 0, 1000)
	for i := 0; i < 1000; i++ {
		e := entry("x", "user-1", generic.KindDeposit, 1, minutes(i))
		e.UnitValue = money("0.10")
		e.Amount = money("0.10")
		entries = append(entries, e)
	}

	// WHEN
	summary, err := calc.AccountSummary(entries)

	// THEN: no binary floating point drift
	require.NoError(t, err)
	assert.Equal(t, "100.00", generic.FormatMoney(summary.OutstandingValue))
	assert.Equal(t, "100.00", generic.FormatMoney(summary.TotalDepositPaid))
	assert.Equal(t, "10.00", generic.FormatMoney(generic.UnitsValue(5, generic.DefaultUnitValue)))
}

// =============================================================================
// ACCOUNT SUMMARY
// =============================================================================

func TestBalance_AccountSummary(t *testing.T) {
	// GIVEN
	entries := []generic.Entry{
		entry("a", "user-1", generic.KindDeposit, 3, minutes(0)),
		entry("b", "user-1", generic.KindReturn, 2, minutes(5)),
		entry("c", "user-1", generic.KindDeposit, 1, minutes(10)),
	}

	// WHEN
	summary := accountSummary(t, entries)

	// THEN
	assert.Equal(t, int64(2), summary.OutstandingUnits)
	assert.Equal(t, "4.00", generic.FormatMoney(summary.OutstandingValue))
	assert.Equal(t, int64(2), summary.TotalReturned)
	assert.Equal(t, "8.00", generic.FormatMoney(summary.TotalDepositPaid))
	assert.Equal(t, "4.00", generic.FormatMoney(summary.TotalReturnsIssued))

	require.Len(t, summary.Activity, 3)
	assert.Equal(t, minutes(10), summary.Activity[0].CreatedAt, "newest first")
	assert.Equal(t, generic.KindReturn, summary.Activity[1].Kind)
	assert.Equal(t, minutes(0), summary.Activity[2].CreatedAt)
}

func TestBalance_NewestFirst_TiesBreakOnID(t *testing.T) {
	entries := []generic.Entry{
		entry("a", "user-1", generic.KindDeposit, 1, minutes(0)),
		entry("c", "user-1", generic.KindDeposit, 1, minutes(0)),
		entry("b", "user-1", generic.KindDeposit, 1, minutes(0)),
	}

	sorted := generic.NewestFirst(entries)

	require.Len(t, sorted, 3)
	assert.Equal(t, generic.EntryID("c"), sorted[0].ID)
	assert.Equal(t, generic.EntryID("b"), sorted[1].ID)
	assert.Equal(t, generic.EntryID("a"), sorted[2].ID)
	assert.Equal(t, generic.EntryID("a"), entries[0].ID, "input untouched")
}

// =============================================================================
// SYSTEM SUMMARY
// =============================================================================

func TestBalance_SystemSummary(t *testing.T) {
	// GIVEN: three accounts, one fully returned
	entries := []generic.Entry{
		entry("1", "alice", generic.KindDeposit, 2, minutes(0)),
		entry("2", "bob", generic.KindDeposit, 5, minutes(1)),
		entry("3", "carol", generic.KindDeposit, 1, minutes(2)),
		entry("4", "carol", generic.KindReturn, 1, minutes(3)),
		entry("5", "bob", generic.KindReturn, 1, minutes(4)),
	}

	// WHEN
	summary := systemSummary(t, entries)

	// THEN
	assert.Equal(t, int64(6), summary.TotalUnitsOutstanding)
	assert.Equal(t, "12.00", generic.FormatMoney(summary.TotalValueOutstanding))
	assert.Equal(t, 2, summary.AccountsWithOutstandingUnits)
	assert.Equal(t, int64(2), summary.TotalUnitsReturned)
	assert.Equal(t, "4.00", generic.FormatMoney(summary.TotalValueRefunded))

	require.Len(t, summary.Accounts, 2)
	assert.Equal(t, generic.AccountID("bob"), summary.Accounts[0].AccountID)
	assert.Equal(t, int64(4), summary.Accounts[0].OutstandingUnits)
	assert.Equal(t, "8.00", generic.FormatMoney(summary.Accounts[0].OutstandingValue))
	assert.Equal(t, minutes(4), summary.Accounts[0].LastActivity)
	assert.Equal(t, generic.AccountID("alice"), summary.Accounts[1].AccountID)
}

func TestBalance_SystemSummary_TiesKeepFirstSeenOrder(t *testing.T) {
	entries := []generic.Entry{
		entry("1", "zed", generic.KindDeposit, 2, minutes(0)),
		entry("2", "amy", generic.KindDeposit, 2, minutes(1)),
		entry("3", "max", generic.KindDeposit, 3, minutes(2)),
	}

	summary := systemSummary(t, entries)

	require.Len(t, summary.Accounts, 3)
	assert.Equal(t, generic.AccountID("max"), summary.Accounts[0].AccountID)
	assert.Equal(t, generic.AccountID("zed"), summary.Accounts[1].AccountID)
	assert.Equal(t, generic.AccountID("amy"), summary.Accounts[2].AccountID)
}

func TestBalance_SystemSummary_IsPure(t *testing.T) {
	entries := []generic.Entry{
		entry("1", "alice", generic.KindDeposit, 2, minutes(0)),
		entry("2", "bob", generic.KindDeposit, 1, minutes(1)),
	}

	first := systemSummary(t, entries)
	second := systemSummary(t, entries)

	assert.Equal(t, first, second)
	assert.Empty(t, systemSummary(t, nil).Accounts)
	assert.Equal(t, int64(3), systemSummary(t, entries).TotalUnitsOutstanding)
}

func TestBalance_SystemSummary_TotalIsClamped(t *testing.T) {
	entries := []generic.Entry{
		entry("1", "alice", generic.KindDeposit, 1, minutes(0)),
		entry("2", "alice", generic.KindReturn, 4, minutes(1)),
	}

	summary := systemSummary(t, entries)

	assert.Equal(t, int64(0), summary.TotalUnitsOutstanding)
	assert.Equal(t, "0.00", generic.FormatMoney(summary.TotalValueOutstanding))
	assert.Empty(t, summary.Accounts)
}

func TestBalance_SystemSummary_TotalMatchesBreakdown(t *testing.T) {
	// GIVEN: alice over-returned by 3, bob holds 2
	entries := []generic.Entry{
		entry("1", "alice", generic.KindDeposit, 1, minutes(0)),
		entry("2", "alice", generic.KindReturn, 4, minutes(1)),
		entry("3", "bob", generic.KindDeposit, 2, minutes(2)),
	}

	// WHEN
	summary := systemSummary(t, entries)

	// THEN: alice adds 0, not -3
	assert.Equal(t, int64(2), summary.TotalUnitsOutstanding)
	assert.Equal(t, "4.00", generic.FormatMoney(summary.TotalValueOutstanding))
	assert.Equal(t, 1, summary.AccountsWithOutstandingUnits)
	require.Len(t, summary.Accounts, 1)
	assert.Equal(t, summary.TotalUnitsOutstanding, summary.Accounts[0].OutstandingUnits)
}

func TestBalance_AccountSummary_IsPure(t *testing.T) {
	// GIVEN: entries deliberately not in time order
	entries := []generic.Entry{
		entry("b", "user-1", generic.KindReturn, 1, minutes(5)),
		entry("a", "user-1", generic.KindDeposit, 3, minutes(0)),
		entry("c", "user-1", generic.KindDeposit, 2, minutes(10)),
	}
	before := append([]generic.Entry(nil), entries...)

	// WHEN
	first := accountSummary(t, entries)
	second := accountSummary(t, entries)

	// THEN
	assert.Equal(t, first, second)
	assert.Equal(t, before, entries, "input order survives the newest-first copy")
	assert.Equal(t, int64(4), first.OutstandingUnits)
}

// =============================================================================
// OVERFLOW
// =============================================================================

func TestBalance_UnitSumOverflowIsRejected(t *testing.T) {
	// GIVEN: stored history whose deposit sum does not fit in int64
	entries := []generic.Entry{
		entry("1", "alice", generic.KindDeposit, math.MaxInt64, minutes(0)),
		entry("2", "alice", generic.KindDeposit, 1, minutes(1)),
	}

	// WHEN / THEN: every fold refuses to wrap
	_, err := calc.RawOutstandingUnits(entries)
	assert.ErrorIs(t, err, generic.ErrUnitOverflow)
	_, err = calc.OutstandingUnits(entries)
	assert.ErrorIs(t, err, generic.ErrUnitOverflow)
	_, err = calc.OutstandingValue(entries)
	assert.ErrorIs(t, err, generic.ErrUnitOverflow)
	_, err = calc.AccountSummary(entries)
	assert.ErrorIs(t, err, generic.ErrUnitOverflow)
	_, err = calc.SystemSummary(entries)
	assert.ErrorIs(t, err, generic.ErrUnitOverflow)
}

func TestBalance_SystemTotalOverflowIsRejected(t *testing.T) {
	// GIVEN: each account fits, their sum does not
	entries := []generic.Entry{
		entry("1", "alice", generic.KindDeposit, math.MaxInt64, minutes(0)),
		entry("2", "bob", generic.KindDeposit, 1, minutes(1)),
	}

	_, err := calc.SystemSummary(entries)

	assert.ErrorIs(t, err, generic.ErrUnitOverflow)
}

func TestBalance_ReturnsDoNotUnderflow(t *testing.T) {
	entries := []generic.Entry{
		entry("1", "alice", generic.KindReturn, math.MaxInt64, minutes(0)),
		entry("2", "alice", generic.KindReturn, 2, minutes(1)),
	}

	_, err := calc.RawOutstandingUnits(entries)

	assert.ErrorIs(t, err, generic.ErrUnitOverflow)
}
