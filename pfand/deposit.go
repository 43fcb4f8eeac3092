package pfand

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/pfand-engine/generic"
)

// DepositRequest is what order placement hands over once an order carrying
// deposit-bearing items has been created.
type DepositRequest struct {
	AccountID generic.AccountID
	OrderID   string
	UnitCount int64
}

// DepositRecorder appends Deposit entries. Deposits only ever raise the
// outstanding balance, so no balance check or lock is needed.
type DepositRecorder struct {
	ledger *generic.DefaultLedger
	options
}

func NewDepositRecorder(ledger *generic.DefaultLedger, opts ...Option) *DepositRecorder {
	return &DepositRecorder{ledger: ledger, options: buildOptions(opts)}
}

// RecordDeposit appends one Deposit entry. The ledger publishes EntryAppended.
func (r *DepositRecorder) RecordDeposit(ctx context.Context, req DepositRequest) (entry generic.Entry, err error) {
	defer func() {
		r.logger.LogOperation(ctx, OperationLog{
			Operation: OperationDeposit,
			AccountID: req.AccountID.Normalize(),
			Units:     req.UnitCount,
			Amount:    entry.Amount,
			Status:    statusFor(err),
			Error:     err,
		})
	}()

	return r.ledger.Append(ctx, generic.EntryDraft{
		AccountID: req.AccountID,
		Kind:      generic.KindDeposit,
		UnitCount: req.UnitCount,
		Note:      fmt.Sprintf("Paid deposit for %d cup(s)", req.UnitCount),
		OrderID:   strings.TrimSpace(req.OrderID),
	})
}
