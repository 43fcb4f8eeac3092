package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pfand-engine/events"
	"github.com/warp/pfand-engine/generic"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

type otherEvent struct{}

func (otherEvent) EventName() string { return "other" }

func TestPublisher_WritesEntryKeyedByAccount(t *testing.T) {
	// GIVEN
	writer := &recordingWriter{}
	publisher := newPublisher(writer, "EUR")
	entry := generic.Entry{
		ID:          "e-1",
		AccountID:   "user-1",
		Kind:        generic.KindReturn,
		UnitCount:   2,
		UnitValue:   generic.DefaultUnitValue,
		Amount:      generic.UnitsValue(2, generic.DefaultUnitValue),
		Note:        "Returned 2 cup(s) - processed by Staff",
		ProcessedBy: "Staff",
		CreatedAt:   time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC),
	}

	// WHEN
	bus := generic.NewEventBus()
	bus.Subscribe(publisher.Subscriber())
	bus.Publish(context.Background(), generic.EntryAppended{Entry: entry})

	// THEN
	require.Len(t, writer.messages, 1)
	assert.Equal(t, "user-1", string(writer.messages[0].Key))

	var msg events.EntryMessage
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &msg))
	assert.Equal(t, "ledger.entry_appended", msg.EventType)
	assert.Equal(t, "return", msg.Kind)
	assert.Equal(t, "4.00", msg.Amount)
	assert.Equal(t, "2.00", msg.UnitValue)
	assert.Equal(t, "EUR", msg.Currency)
}

func TestPublisher_IgnoresOtherEvents(t *testing.T) {
	writer := &recordingWriter{}
	publisher := newPublisher(writer, "")

	require.NoError(t, publisher.Publish(context.Background(), otherEvent{}))
	assert.Empty(t, writer.messages)
}

func TestPublisher_WriteFailureReachesBusHook(t *testing.T) {
	writer := &recordingWriter{err: errors.New("no brokers")}
	publisher := newPublisher(writer, "")
	bus := generic.NewEventBus()
	var failures int
	bus.OnError(func(generic.Event, error) { failures++ })
	bus.Subscribe(publisher.Subscriber())

	bus.Publish(context.Background(), generic.EntryAppended{Entry: generic.Entry{ID: "e-1", AccountID: "user-1"}})

	assert.Equal(t, 1, failures)
}
