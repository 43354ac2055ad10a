// Package event publishes executed fills to downstream consumers.
package event

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stock_sim/internal/domain"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per fill, keyed by instrument so fills of one
// instrument stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

var _ domain.FillPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a synchronous publisher for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		topic: topic,
	}
}

// PublishFill sends f.
func (p *KafkaPublisher) PublishFill(ctx context.Context, f domain.Fill) error {
	value, err := EncodeFill(f)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(f.Instrument),
		Value: value,
		Headers: []kafka.Header{
			{Key: "order_id", Value: []byte(f.OrderID)},
			{Key: "subtype", Value: []byte(f.Subtype)},
		},
		Time: f.ExecutedAt,
	})
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Fanout publishes every fill to all publishers. A failing publisher does not stop the others.
type Fanout struct {
	publishers []domain.FillPublisher
	logger     *slog.Logger
}

// NewFanout combines publishers.
func NewFanout(logger *slog.Logger, publishers ...domain.FillPublisher) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{publishers: publishers, logger: logger}
}

// Add appends a publisher. It is not safe to call concurrently with PublishFill.
func (f *Fanout) Add(p domain.FillPublisher) {
	f.publishers = append(f.publishers, p)
}

// PublishFill returns the joined errors of all failing publishers.
func (f *Fanout) PublishFill(ctx context.Context, fill domain.Fill) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.PublishFill(ctx, fill); err != nil {
			f.logger.Warn("Fill publish failed",
				slog.String("order_id", fill.OrderID),
				slog.Any("error", err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (f *Fanout) Close() error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
