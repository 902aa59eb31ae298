// Package nats publishes submission events to a NATS subject.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/metrics"
)

// Name is the publisher label used in metrics.
const Name = "nats"

// DefaultSubject is used when Config.Subject is empty.
const DefaultSubject = "verification.events"

type Config struct {
	URL     string
	Subject string
	// Name identifies the connection on the server. Optional.
	Name string
}

// Publisher implements ports.EventPublisher over a core NATS connection.
type Publisher struct {
	conn    *natsgo.Conn
	subject string
	logger  *slog.Logger
}

// NewPublisher connects to cfg.URL. The connection retries in the background
// if the server is not reachable yet.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url required")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, natsgo.Name(cfg.Name))
	}

	conn, err := natsgo.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	return &Publisher{conn: conn, subject: cfg.Subject, logger: logger}, nil
}

// Subject returns the subject events are published on.
func (p *Publisher) Subject() string { return p.subject }

// Publish encodes the event as JSON and publishes it. The submission id is
// carried in the Nats-Msg-Id header so JetStream consumers can deduplicate.
func (p *Publisher) Publish(ctx context.Context, event *domain.SubmissionEvent) error {
	if event == nil {
		return fmt.Errorf("event required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := natsgo.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(natsgo.MsgIdHdr, string(event.Type)+":"+event.SubmissionID)
	msg.Header.Set("Event-Type", string(event.Type))

	if err := p.conn.PublishMsg(msg); err != nil {
		metrics.EventsPublished.WithLabelValues(Name, "error").Inc()
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}

	metrics.EventsPublished.WithLabelValues(Name, "ok").Inc()
	p.logger.DebugContext(ctx, "event published",
		slog.String("subject", p.subject),
		slog.String("submission_id", event.SubmissionID))
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	err := p.conn.Drain()
	if err != nil {
		p.conn.Close()
	}
	return err
}
