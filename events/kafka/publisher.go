// Package kafka publishes ledger events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/warp/pfand-engine/events"
	"github.com/warp/pfand-engine/generic"
)

const DefaultTopic = "pfand.entries"

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer   messageWriter
	currency string
}

// NewPublisher writes to topic on brokers. Messages are keyed by account id
// so one account's entries stay ordered within a partition.
func NewPublisher(brokers []string, topic, currency string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}, currency)
}

func newPublisher(writer messageWriter, currency string) *Publisher {
	return &Publisher{writer: writer, currency: currency}
}

// Subscriber adapts the publisher to the ledger event bus.
func (p *Publisher) Subscriber() generic.Subscriber {
	return p.Publish
}

func (p *Publisher) Publish(ctx context.Context, event generic.Event) error {
	msg, ok := events.NewEntryMessage(event, p.currency)
	if !ok {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.AccountID),
		Value: data,
	}); err != nil {
		return fmt.Errorf("kafka publish %s: %w", msg.EntryID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
