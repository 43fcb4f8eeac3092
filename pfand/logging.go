package pfand

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/pfand-engine/generic"
)

const (
	OperationReturn  = "pfand.return"
	OperationDeposit = "pfand.deposit"

	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// OperationLogger records domain-level events emitted by processor operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one state-changing deposit operation.
type OperationLog struct {
	Operation string
	AccountID generic.AccountID
	Units     int64
	Amount    decimal.Decimal
	Status    string
	Error     error
}

type noopLogger struct{}

func (noopLogger) LogOperation(context.Context, OperationLog) {}

// statusFor classifies err: expected business outcomes are rejections,
// everything else is an error.
func statusFor(err error) string {
	switch generic.KindOf(err) {
	case generic.KindNone:
		return StatusOK
	case generic.KindInvalidRequest, generic.KindInsufficientBalance, generic.KindAccountNotFound:
		return StatusRejected
	default:
		return StatusError
	}
}

// =============================================================================
// ZAP ADAPTER
// =============================================================================

type zapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger logs successes and rejections at Info, failures at Error.
func NewZapOperationLogger(logger *zap.Logger) OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &zapOperationLogger{logger: logger}
}

func (l *zapOperationLogger) LogOperation(_ context.Context, entry OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("account_id", entry.AccountID.String()),
		zap.Int64("units", entry.Units),
		zap.String("amount", generic.FormatMoney(entry.Amount)),
		zap.String("status", entry.Status),
	}
	if entry.Error == nil {
		l.logger.Info("pfand operation", fields...)
		return
	}
	fields = append(fields, zap.String("error_code", string(generic.KindOf(entry.Error))), zap.Error(entry.Error))
	if entry.Status == StatusRejected {
		l.logger.Info("pfand operation rejected", fields...)
		return
	}
	l.logger.Error("pfand operation failed", fields...)
}
