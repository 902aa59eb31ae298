// Package direct provides an in-process event publisher.
package direct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/metrics"
)

// Name is the publisher label used in metrics.
const Name = "direct"

// Handler receives a published event. Handlers run synchronously on the
// publishing goroutine.
type Handler func(ctx context.Context, event *domain.SubmissionEvent) error

// Publisher implements ports.EventPublisher by logging each event and handing
// it to the registered handlers. This is the default implementation for
// single-instance deployments.
type Publisher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

// NewPublisher creates a new direct event publisher. A nil logger uses
// slog.Default.
func NewPublisher(logger *slog.Logger, handlers ...Handler) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		logger:   logger,
		handlers: handlers,
	}
}

// Subscribe registers an additional handler.
func (p *Publisher) Subscribe(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Publish logs the event and delivers it to every handler. Handler errors are
// joined; one failing handler does not stop the others.
func (p *Publisher) Publish(ctx context.Context, event *domain.SubmissionEvent) error {
	if event == nil {
		return fmt.Errorf("event required")
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		metrics.EventsPublished.WithLabelValues(Name, "closed").Inc()
		return fmt.Errorf("publisher closed")
	}
	handlers := append([]Handler(nil), p.handlers...)
	p.mu.RUnlock()

	p.logger.InfoContext(ctx, "submission event",
		slog.String("type", string(event.Type)),
		slog.String("submission_id", event.SubmissionID),
		slog.String("log_id", string(event.LogID)),
		slog.String("verdict", event.Verdict),
		slog.Any("failed_checks", event.FailedChecks),
	)

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		metrics.EventsPublished.WithLabelValues(Name, "error").Inc()
		return err
	}

	metrics.EventsPublished.WithLabelValues(Name, "ok").Inc()
	return nil
}

// Close stops delivery. Later Publish calls fail.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
