// Package events holds subscribers for the ledger event bus.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warp/pfand-engine/generic"
)

// EntryMessage is the wire form of an appended entry.
type EntryMessage struct {
	EventType   string    `json:"eventType"`
	EntryID     string    `json:"entryId"`
	AccountID   string    `json:"accountId"`
	Kind        string    `json:"kind"`
	UnitCount   int64     `json:"unitCount"`
	UnitValue   string    `json:"unitValue"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency,omitempty"`
	Note        string    `json:"note"`
	ProcessedBy string    `json:"processedBy,omitempty"`
	OrderID     string    `json:"orderId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewEntryMessage converts the event, reporting false for other event types.
func NewEntryMessage(event generic.Event, currency string) (EntryMessage, bool) {
	appended, ok := event.(generic.EntryAppended)
	if !ok {
		return EntryMessage{}, false
	}
	e := appended.Entry
	return EntryMessage{
		EventType:   event.EventName(),
		EntryID:     string(e.ID),
		AccountID:   e.AccountID.String(),
		Kind:        string(e.Kind),
		UnitCount:   e.UnitCount,
		UnitValue:   generic.FormatMoney(e.UnitValue),
		Amount:      generic.FormatMoney(e.Amount),
		Currency:    currency,
		Note:        e.Note,
		ProcessedBy: e.ProcessedBy,
		OrderID:     e.OrderID,
		CreatedAt:   e.CreatedAt,
	}, true
}

// NewAuditSubscriber writes every appended entry to logger.
func NewAuditSubscriber(logger *zap.Logger) generic.Subscriber {
	return func(_ context.Context, event generic.Event) error {
		msg, ok := NewEntryMessage(event, "")
		if !ok {
			return nil
		}
		logger.Info("ledger entry appended",
			zap.String("entry_id", msg.EntryID),
			zap.String("account_id", msg.AccountID),
			zap.String("kind", msg.Kind),
			zap.Int64("unit_count", msg.UnitCount),
			zap.String("amount", msg.Amount),
			zap.String("processed_by", msg.ProcessedBy),
			zap.String("order_id", msg.OrderID),
		)
		return nil
	}
}

// LogFailures returns a bus error hook that logs subscriber failures.
func LogFailures(logger *zap.Logger) func(generic.Event, error) {
	return func(event generic.Event, err error) {
		logger.Warn("event subscriber failed", zap.String("event", event.EventName()), zap.Error(err))
	}
}
