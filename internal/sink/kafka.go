package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"vibroscope/internal/config"
	"vibroscope/internal/model"
)

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON keyed by stream and region, so one
// region's raise and clear land on the same partition in order.
type Kafka struct {
	w       MessageWriter
	timeout time.Duration
}

func NewKafka(cfg config.KafkaSinkConfig) *Kafka {
	return NewKafkaWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	})
}

func NewKafkaWriter(w MessageWriter) *Kafka {
	return &Kafka{w: w, timeout: 5 * time.Second}
}

func (k *Kafka) Deliver(ctx context.Context, events []model.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(MessageKey(ev)),
			Value: value,
			Time:  ev.Timestamp,
		})
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka publish %d events: %w", len(msgs), err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}

func MessageKey(ev model.AlertEvent) string {
	return fmt.Sprintf("%s/%d/%d", ev.StreamID, ev.Region.X, ev.Region.Y)
}
