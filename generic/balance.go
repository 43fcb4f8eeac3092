/*
balance.go - Balance calculation over ledger entries

PURPOSE:
  Computes outstanding deposit balances from entries. This is the central
  calculation that answers "how many cups does this customer still have?"

KEY INSIGHT:
  There are two outstanding values, and they serve different readers:

  Raw:     sum(deposit units) - sum(return units), unclamped.
           Used by the return validator. It must see the truth.
  Clamped: max(0, raw). Used for display, so a transient inconsistency
           never surfaces to a customer as "-1 cups".

PURITY:
  Every method is a fold over the slice it is given. Nothing is cached and
  no map outlives a call, so the same entries always give the same result
  regardless of call order.

SYSTEM TOTALS:
  TotalUnitsOutstanding is the sum of the clamped per-account balances, so it
  always agrees with the Accounts breakdown. An account below zero adds 0.

OVERFLOW:
  Sums use checked addition. A sum that does not fit in int64 fails with
  ErrUnitOverflow instead of wrapping.

SYSTEM SUMMARY ORDERING:
  The per-account breakdown is sorted by outstanding units, descending.
  Ties keep the order in which accounts were first seen in the input.

EXAMPLE:
  Deposits: 3 + 2 units, Returns: 1 unit, unit value 2.00

  RawOutstandingUnits = 4
  OutstandingValue    = 8.00

SEE ALSO:
  - pfand/processor.go: Uses RawOutstandingUnits to gate returns
  - api/handlers.go:    Renders AccountSummary and SystemSummary
*/
package generic

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE CALCULATOR
// =============================================================================

// BalanceCalculator aggregates entries. It holds only the unit value.
type BalanceCalculator struct {
	UnitValue decimal.Decimal
}

func NewBalanceCalculator(unitValue decimal.Decimal) BalanceCalculator {
	return BalanceCalculator{UnitValue: unitValue}
}

// RawOutstandingUnits returns deposits minus returns, unclamped. A sum that
// does not fit in int64 is ErrUnitOverflow.
func (c BalanceCalculator) RawOutstandingUnits(entries []Entry) (int64, error) {
	var units int64
	for _, e := range entries {
		var ok bool
		if units, ok = addUnits(units, e.SignedUnits()); !ok {
			return 0, overflowError(e.AccountID)
		}
	}
	return units, nil
}

// OutstandingUnits returns the outstanding balance clamped to zero.
func (c BalanceCalculator) OutstandingUnits(entries []Entry) (int64, error) {
	raw, err := c.RawOutstandingUnits(entries)
	if err != nil {
		return 0, err
	}
	return clampUnits(raw), nil
}

// OutstandingValue returns OutstandingUnits * UnitValue.
func (c BalanceCalculator) OutstandingValue(entries []Entry) (decimal.Decimal, error) {
	units, err := c.OutstandingUnits(entries)
	if err != nil {
		return decimal.Zero, err
	}
	return UnitsValue(units, c.UnitValue), nil
}

func overflowError(accountID AccountID) error {
	return fmt.Errorf("account %s: %w", accountID, ErrUnitOverflow)
}

func clampUnits(units int64) int64 {
	if units < 0 {
		return 0
	}
	return units
}

// =============================================================================
// ACCOUNT SUMMARY
// =============================================================================

// Activity is one entry reduced for display.
type Activity struct {
	Kind      EntryKind
	Amount    decimal.Decimal
	UnitCount int64
	Note      string
	CreatedAt time.Time
}

// AccountSummary is the single-account rollup.
type AccountSummary struct {
	OutstandingUnits   int64
	OutstandingValue   decimal.Decimal
	TotalReturned      int64           // units
	TotalDepositPaid   decimal.Decimal // sum of deposit amounts
	TotalReturnsIssued decimal.Decimal // sum of refund amounts
	Activity           []Activity      // newest first
}

func (c BalanceCalculator) AccountSummary(entries []Entry) (AccountSummary, error) {
	summary := AccountSummary{
		TotalDepositPaid:   decimal.Zero,
		TotalReturnsIssued: decimal.Zero,
		Activity:           make([]Activity, 0, len(entries)),
	}

	var raw int64
	for _, e := range entries {
		var ok bool
		if raw, ok = addUnits(raw, e.SignedUnits()); !ok {
			return AccountSummary{}, overflowError(e.AccountID)
		}
		switch e.Kind {
		case KindDeposit:
			summary.TotalDepositPaid = summary.TotalDepositPaid.Add(e.Amount)
		case KindReturn:
			if summary.TotalReturned, ok = addUnits(summary.TotalReturned, e.UnitCount); !ok {
				return AccountSummary{}, overflowError(e.AccountID)
			}
			summary.TotalReturnsIssued = summary.TotalReturnsIssued.Add(e.Amount)
		}
	}
	summary.OutstandingUnits = clampUnits(raw)
	summary.OutstandingValue = UnitsValue(summary.OutstandingUnits, c.UnitValue)

	for _, e := range NewestFirst(entries) {
		summary.Activity = append(summary.Activity, Activity{
			Kind:      e.Kind,
			Amount:    e.Amount,
			UnitCount: e.UnitCount,
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		})
	}
	return summary, nil
}

// NewestFirst returns a sorted copy: CreatedAt descending, then ID descending
// so entries created in the same instant still order deterministically.
func NewestFirst(entries []Entry) []Entry {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})
	return sorted
}

// =============================================================================
// SYSTEM SUMMARY
// =============================================================================

// AccountOutstanding is one row of the system-wide breakdown.
type AccountOutstanding struct {
	AccountID        AccountID
	OutstandingUnits int64
	OutstandingValue decimal.Decimal
	LastActivity     time.Time
}

// SystemSummary aggregates across all accounts.
type SystemSummary struct {
	TotalUnitsOutstanding        int64
	TotalValueOutstanding        decimal.Decimal
	AccountsWithOutstandingUnits int
	TotalUnitsReturned           int64
	TotalValueRefunded           decimal.Decimal

	// Accounts with outstanding units > 0, descending by outstanding units.
	Accounts []AccountOutstanding
}

type accountFold struct {
	raw          int64
	lastActivity time.Time
}

func (c BalanceCalculator) SystemSummary(entries []Entry) (SystemSummary, error) {
	summary := SystemSummary{
		TotalValueRefunded: decimal.Zero,
		Accounts:           []AccountOutstanding{},
	}

	folds := make(map[AccountID]*accountFold)
	var order []AccountID

	for _, e := range entries {
		f, ok := folds[e.AccountID]
		if !ok {
			f = &accountFold{}
			folds[e.AccountID] = f
			order = append(order, e.AccountID)
		}
		if f.raw, ok = addUnits(f.raw, e.SignedUnits()); !ok {
			return SystemSummary{}, overflowError(e.AccountID)
		}
		if e.CreatedAt.After(f.lastActivity) {
			f.lastActivity = e.CreatedAt
		}

		if e.Kind == KindReturn {
			if summary.TotalUnitsReturned, ok = addUnits(summary.TotalUnitsReturned, e.UnitCount); !ok {
				return SystemSummary{}, overflowError(e.AccountID)
			}
			summary.TotalValueRefunded = summary.TotalValueRefunded.Add(e.Amount)
		}
	}

	for _, id := range order {
		f := folds[id]
		units := clampUnits(f.raw)
		if units == 0 {
			continue
		}
		total, ok := addUnits(summary.TotalUnitsOutstanding, units)
		if !ok {
			return SystemSummary{}, overflowError(id)
		}
		summary.TotalUnitsOutstanding = total
		summary.Accounts = append(summary.Accounts, AccountOutstanding{
			AccountID:        id,
			OutstandingUnits: units,
			OutstandingValue: UnitsValue(units, c.UnitValue),
			LastActivity:     f.lastActivity,
		})
	}
	sort.SliceStable(summary.Accounts, func(i, j int) bool {
		return summary.Accounts[i].OutstandingUnits > summary.Accounts[j].OutstandingUnits
	})

	summary.TotalValueOutstanding = UnitsValue(summary.TotalUnitsOutstanding, c.UnitValue)
	summary.AccountsWithOutstandingUnits = len(summary.Accounts)
	return summary, nil
}
