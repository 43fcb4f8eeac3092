/*
Package generic provides the core deposit-ledger engine.

PURPOSE:
  This package contains the domain-agnostic types and algorithms for tracking
  returnable deposit units. A unit is anything handed out against a fixed
  deposit: a reusable cup, a crate, a bottle. The engine records when units
  leave (deposit) and come back (return), and derives balances from that log.

KEY CONCEPTS IN THIS FILE (types.go):
  - AccountID / EntryID: Type-safe identifiers
  - EntryKind: Deposit or Return
  - EntryDraft: What a caller wants to record
  - Entry: An immutable ledger line, as stored

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified, only offset by new entries
  2. Precision: Money uses decimal.Decimal, unit counts are integers
  3. Auditability: Every entry stores its amount, note, actor and order ref

USAGE:
  draft := generic.EntryDraft{
      AccountID: "user-123",
      Kind:      generic.KindDeposit,
      UnitCount: 2,
      Note:      "Paid deposit for 2 cups",
  }
  entry, err := ledger.Append(ctx, draft)

SEE ALSO:
  - ledger.go: Transaction log over a Store
  - balance.go: Balance calculation from entries
  - errors.go: Error taxonomy
*/
package generic

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type EntryID string

// Normalize trims surrounding whitespace.
func (id AccountID) Normalize() AccountID { return AccountID(strings.TrimSpace(string(id))) }
func (id AccountID) IsZero() bool         { return id.Normalize() == "" }
func (id AccountID) String() string       { return string(id) }

// =============================================================================
// ENTRY KIND
// =============================================================================

type EntryKind string

const (
	KindDeposit EntryKind = "deposit" // Units handed out, deposit paid
	KindReturn  EntryKind = "return"  // Units brought back, deposit refunded
)

func (k EntryKind) Valid() bool { return k == KindDeposit || k == KindReturn }

// ParseEntryKind maps a stored kind back to an EntryKind.
func ParseEntryKind(raw string) (EntryKind, error) {
	kind := EntryKind(strings.ToLower(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", NewInvalidRequestError("kind", "unknown entry kind "+raw)
	}
	return kind, nil
}

// =============================================================================
// ENTRY - Immutable ledger line
// =============================================================================

// MaxUnitsPerEntry bounds a single deposit or return. Stores enforce the
// same bound with a CHECK constraint.
const MaxUnitsPerEntry = 10000

// EntryDraft is the input to TransactionLog.Append. ID, CreatedAt and Amount
// are assigned by the ledger.
type EntryDraft struct {
	AccountID   AccountID
	Kind        EntryKind
	UnitCount   int64
	Note        string
	ProcessedBy string // staff actor for returns, empty for customer deposits
	OrderID     string // order that produced a deposit, empty otherwise
}

// Validate checks the draft invariants.
func (d EntryDraft) Validate() error {
	if d.AccountID.IsZero() {
		return NewInvalidRequestError("accountId", "account id is required")
	}
	if !d.Kind.Valid() {
		return NewInvalidRequestError("kind", "kind must be deposit or return")
	}
	if d.UnitCount <= 0 {
		return NewInvalidRequestError("unitCount", "unit count must be a positive integer")
	}
	if d.UnitCount > MaxUnitsPerEntry {
		return NewInvalidRequestError("unitCount", fmt.Sprintf("unit count must not exceed %d", MaxUnitsPerEntry))
	}
	return nil
}

type Entry struct {
	ID          EntryID
	AccountID   AccountID
	Kind        EntryKind
	UnitCount   int64
	UnitValue   decimal.Decimal
	Amount      decimal.Decimal // UnitCount * UnitValue, stored for audit
	Note        string
	ProcessedBy string
	OrderID     string
	CreatedAt   time.Time
}

// SignedUnits returns +UnitCount for deposits and -UnitCount for returns.
func (e Entry) SignedUnits() int64 {
	if e.Kind == KindReturn {
		return -e.UnitCount
	}
	return e.UnitCount
}

// =============================================================================
// MONEY
// =============================================================================

// DefaultUnitValue is the deposit per cup when nothing else is configured.
var DefaultUnitValue = decimal.RequireFromString("2.00")

// ParseUnitValue parses a configured unit value. It must be strictly positive.
func ParseUnitValue(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, NewInvalidRequestError("unitValue", "unit value must be a decimal number")
	}
	if !value.IsPositive() {
		return decimal.Zero, NewInvalidRequestError("unitValue", "unit value must be positive")
	}
	if !value.Equal(value.Round(2)) {
		return decimal.Zero, NewInvalidRequestError("unitValue", "unit value must have at most 2 decimal places")
	}
	return value, nil
}

// addUnits returns a+b, reporting false when the sum overflows int64.
func addUnits(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// UnitsValue multiplies a unit count by the unit value.
func UnitsValue(units int64, unitValue decimal.Decimal) decimal.Decimal {
	return unitValue.Mul(decimal.NewFromInt(units))
}

// FormatMoney renders an amount with two decimals, e.g. "4.00".
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
