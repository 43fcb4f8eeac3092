/*
Package pfand implements the cup-deposit rules on top of the generic ledger.

PURPOSE:
  The generic engine knows how to record and fold entries. This package adds
  the one business rule that makes it a deposit system: a customer can never
  return more cups than they have outstanding.

THE RETURN SEQUENCE:
  1. Validate input (account id present, units > 0)
  2. Acquire the per-account lock
  3. Inside an account transaction: read entries, compute RAW outstanding,
     reject or append a Return entry. With no entries at all, the account
     directory decides between not found and insufficient.
  4. Release, then publish EntryAppended

  Steps 2 and 3 together close the check-then-act race. The in-process lock
  serializes processors in this binary; the store transaction serializes
  writers across processes (Postgres advisory lock, SQLite writer lock).

UNKNOWN ACCOUNTS:
  Without an AccountDirectory, an account with no entries is unknown.
  With one, a registered account with no entries simply has nothing to return
  and fails with InsufficientBalanceError{Available: 0}.

EXAMPLE:
  processor := pfand.NewReturnProcessor(ledger, pfand.WithLocks(locks))

  result, err := processor.ProcessReturn(ctx, "user-123", 2, "barista-anna")
  var balErr *generic.InsufficientBalanceError
  if errors.As(err, &balErr) {
      fmt.Printf("only %d cups outstanding\n", balErr.Available)
  }

SEE ALSO:
  - deposit.go: Order-time deposit recording
  - generic/balance.go: RawOutstandingUnits
*/
package pfand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/pfand-engine/generic"
)

// DefaultProcessedBy is recorded when staff identity is not supplied.
const DefaultProcessedBy = "Staff"

// =============================================================================
// OPTIONS
// =============================================================================

type options struct {
	directory generic.AccountDirectory
	logger    OperationLogger
	locks     *AccountLocks
}

// Option configures a ReturnProcessor or DepositRecorder.
type Option func(*options)

// WithAccountDirectory enables registration-based account existence.
func WithAccountDirectory(directory generic.AccountDirectory) Option {
	return func(o *options) {
		o.directory = directory
	}
}

// WithOperationLogger wires a logger that receives a callback per operation.
func WithOperationLogger(logger OperationLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLocks shares a lock table between processors. Every processor that
// writes returns for the same accounts must use the same table.
func WithLocks(locks *AccountLocks) Option {
	return func(o *options) {
		if locks != nil {
			o.locks = locks
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: noopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.locks == nil {
		o.locks = NewAccountLocks()
	}
	return o
}

// =============================================================================
// RETURN PROCESSOR
// =============================================================================

// ReturnResult is the outcome of an accepted return.
type ReturnResult struct {
	Transaction    generic.Entry
	RefundAmount   decimal.Decimal
	RemainingUnits int64
}

type ReturnProcessor struct {
	ledger *generic.DefaultLedger
	calc   generic.BalanceCalculator
	options
}

func NewReturnProcessor(ledger *generic.DefaultLedger, opts ...Option) *ReturnProcessor {
	return &ReturnProcessor{
		ledger:  ledger,
		calc:    generic.NewBalanceCalculator(ledger.UnitValue()),
		options: buildOptions(opts),
	}
}

// ProcessReturn validates a return against the true outstanding balance and
// records it. On rejection nothing is written.
func (p *ReturnProcessor) ProcessReturn(ctx context.Context, accountID generic.AccountID, units int64, processedBy string) (result ReturnResult, err error) {
	accountID = accountID.Normalize()
	defer func() {
		p.logger.LogOperation(ctx, OperationLog{
			Operation: OperationReturn,
			AccountID: accountID,
			Units:     units,
			Amount:    result.RefundAmount,
			Status:    statusFor(err),
			Error:     err,
		})
	}()

	if accountID.IsZero() {
		return ReturnResult{}, generic.NewInvalidRequestError("accountId", "account id is required")
	}
	if units <= 0 {
		return ReturnResult{}, generic.NewInvalidRequestError("unitsRequested", "units requested must be a positive integer")
	}
	if units > generic.MaxUnitsPerEntry {
		return ReturnResult{}, generic.NewInvalidRequestError("unitsRequested", fmt.Sprintf("units requested must not exceed %d", generic.MaxUnitsPerEntry))
	}
	processedBy = strings.TrimSpace(processedBy)
	if processedBy == "" {
		processedBy = DefaultProcessedBy
	}

	result, err = p.returnLocked(ctx, accountID, units, processedBy)
	if err != nil {
		return ReturnResult{}, err
	}

	if bus := p.ledger.Bus(); bus != nil {
		bus.Publish(ctx, generic.EntryAppended{Entry: result.Transaction})
	}
	return result, nil
}

// returnLocked runs the read-validate-append sequence under the account lock.
func (p *ReturnProcessor) returnLocked(ctx context.Context, accountID generic.AccountID, units int64, processedBy string) (ReturnResult, error) {
	defer p.locks.Lock(accountID)()

	var result ReturnResult
	err := p.ledger.WithAccountTx(ctx, accountID, func(ctx context.Context, log generic.TransactionLog) error {
		entries, err := log.EntriesFor(ctx, accountID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errNoHistory
		}

		available, err := p.calc.RawOutstandingUnits(entries)
		if err != nil {
			return err
		}
		if units > available {
			return &generic.InsufficientBalanceError{
				AccountID: accountID,
				Requested: units,
				Available: available,
			}
		}

		entry, err := log.Append(ctx, generic.EntryDraft{
			AccountID:   accountID,
			Kind:        generic.KindReturn,
			UnitCount:   units,
			Note:        fmt.Sprintf("Returned %d cup(s) - processed by %s", units, processedBy),
			ProcessedBy: processedBy,
		})
		if err != nil {
			return err
		}
		result = ReturnResult{
			Transaction:    entry,
			RefundAmount:   entry.Amount,
			RemainingUnits: available - units,
		}
		return nil
	})
	if errors.Is(err, errNoHistory) {
		return ReturnResult{}, p.checkKnown(ctx, accountID, units)
	}
	if err != nil {
		return ReturnResult{}, err
	}
	return result, nil
}

// errNoHistory aborts the account transaction when there is nothing to
// return. The directory is consulted outside the transaction: it may be the
// same store, whose writer lock the transaction holds.
var errNoHistory = errors.New("account has no entries")

// checkKnown decides whether an account without entries exists. A known
// account simply has nothing outstanding.
func (p *ReturnProcessor) checkKnown(ctx context.Context, accountID generic.AccountID, units int64) error {
	if p.directory == nil {
		return &generic.AccountNotFoundError{AccountID: accountID}
	}
	exists, err := p.directory.AccountExists(ctx, accountID)
	if err != nil {
		return generic.NewPersistenceError("account_exists", err)
	}
	if !exists {
		return &generic.AccountNotFoundError{AccountID: accountID}
	}
	return &generic.InsufficientBalanceError{AccountID: accountID, Requested: units}
}
