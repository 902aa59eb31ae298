// Package kafka publishes submission events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/metrics"
)

// Name is the publisher label used in metrics.
const Name = "kafka"

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "verification-events"

type Config struct {
	Brokers []string
	Topic   string
}

// producer is the subset of *kgo.Client the publisher uses.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher implements ports.EventPublisher with a franz-go client.
type Publisher struct {
	client producer
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a client for cfg.Brokers. kgo connects lazily, so an
// unreachable broker surfaces on the first Publish.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return newPublisher(client, cfg.Topic, logger), nil
}

func newPublisher(client producer, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, topic: topic, logger: logger}
}

// Publish writes the event keyed by submission id so every event for one
// submission lands on the same partition.
func (p *Publisher) Publish(ctx context.Context, event *domain.SubmissionEvent) error {
	if event == nil {
		return fmt.Errorf("event required")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.SubmissionID),
		Value: data,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		metrics.EventsPublished.WithLabelValues(Name, "error").Inc()
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}

	metrics.EventsPublished.WithLabelValues(Name, "ok").Inc()
	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", p.topic),
		slog.String("submission_id", event.SubmissionID))
	return nil
}

// Close flushes and closes the client.
func (p *Publisher) Close() error {
	p.client.Close()
	return nil
}
