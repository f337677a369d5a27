// Package kafka publishes batch events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per batch, keyed by platform so a source's
// batches stay ordered within a partition.
type Publisher struct {
	writer messageWriter
}

// New creates a publisher for the given brokers and topic.
func New(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required")
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
		},
	}, nil
}

// NewWithWriter builds a publisher using a custom writer (tests).
func NewWithWriter(writer messageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// Publish implements crawler.Publisher.
func (p *Publisher) Publish(ctx context.Context, evt crawler.BatchEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal batch event: %w", err)
	}
	ts := evt.PublishedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	msg := kafka.Message{
		Key:   []byte(evt.Platform),
		Value: payload,
		Time:  ts,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(evt.RunID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Close shuts down the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
