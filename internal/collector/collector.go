// Package collector captures interaction telemetry into a BehaviorSession.
//
// A Collector owns one session for the lifetime of a login view. Sources are
// attached as subscriptions and released together when the view goes away,
// either by Finalize at submission time or by Close when abandoned. The
// collector never talks to the network; a finalized session is handed to the
// submission layer as a payload.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

// Source is an interaction source a Collector can subscribe to.
type Source interface {
	Name() string
	// Subscribe starts delivering events to sink until release is called.
	Subscribe(sink func(domain.RawInteractionEvent)) (release func(), err error)
}

// sessionContext holds the per-session references that callbacks read and
// update. It is only touched with Collector.mu held.
type sessionContext struct {
	start         time.Time
	lastScrollTop float64
	lastKeyDown   map[string]time.Time
	hoverStart    map[string]time.Time
	idle          *idleTracker
}

// Collector appends interaction records to one BehaviorSession.
type Collector struct {
	mu      sync.Mutex
	session *domain.BehaviorSession
	sc      sessionContext
	subs    *Subscriptions

	now    func() time.Time
	period time.Duration
	logger *slog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock sets the time source used for ticks and hover measurements.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithTickPeriod overrides the idle tick period.
func WithTickPeriod(d time.Duration) Option {
	return func(c *Collector) { c.period = d }
}

// WithLogger sets the logger for capture anomalies.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) { c.logger = logger }
}

// New creates a collector with an open session starting now.
func New(sessionID string, device domain.DeviceContext, opts ...Option) *Collector {
	c := &Collector{
		now:    time.Now,
		period: TickPeriod,
		logger: slog.Default(),
		subs:   NewSubscriptions(),
	}
	for _, opt := range opts {
		opt(c)
	}

	start := c.now()
	c.session = domain.NewBehaviorSession(sessionID, start, device)
	c.sc = sessionContext{
		start:       start,
		lastKeyDown: make(map[string]time.Time),
		hoverStart:  make(map[string]time.Time),
		idle:        newIdleTracker(start, c.period),
	}
	return c
}

// Attach subscribes to src for the rest of the session.
func (c *Collector) Attach(src Source) error {
	release, err := src.Subscribe(func(ev domain.RawInteractionEvent) {
		if err := c.Record(ev); err != nil {
			c.logger.Debug("capture anomaly",
				slog.String("session_id", c.session.ID),
				slog.String("source", src.Name()),
				slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", src.Name(), err)
	}
	return c.subs.Add("source:"+src.Name(), release)
}

// Start runs the idle ticker until the session ends or ctx is done.
func (c *Collector) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	if err := c.subs.Add("idle-ticker", func() {
		cancel()
		<-done
	}); err != nil {
		cancel()
		return err
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Tick(c.now())
			}
		}
	}()
	return nil
}

// Tick runs one idle check at now.
func (c *Collector) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Finalized() {
		return
	}
	_ = c.session.AddIdle(c.sc.idle.tick(now))
}

// Record appends ev to the session and closes any open idle period.
func (c *Collector) Record(ev domain.RawInteractionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.session.Append(ev); err != nil {
		return err
	}
	_ = c.session.AddIdle(c.sc.idle.touch(ev.Timestamp))

	switch ev.Kind {
	case domain.EventScroll:
		c.sc.lastScrollTop = ev.Scroll.ScrollTop
	case domain.EventKeyDown:
		if _, held := c.sc.lastKeyDown[ev.Key.Key]; !held {
			c.sc.lastKeyDown[ev.Key.Key] = ev.Timestamp
		}
	case domain.EventKeyUp:
		delete(c.sc.lastKeyDown, ev.Key.Key)
	case domain.EventGeoFix:
		c.session.Geo = domain.Some(*ev.Geo)
	}
	return nil
}

// LastScrollTop returns the most recent scroll offset.
func (c *Collector) LastScrollTop() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sc.lastScrollTop
}

// HeldKeys returns the number of keys currently down.
func (c *Collector) HeldKeys() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sc.lastKeyDown)
}

// MouseEnter starts a hover measurement for element. Measurements on
// different elements are independent and may overlap.
func (c *Collector) MouseEnter(element string) error {
	c.mu.Lock()
	if _, ok := c.sc.hoverStart[element]; ok {
		c.mu.Unlock()
		return nil
	}
	c.sc.hoverStart[element] = c.now()
	c.mu.Unlock()

	return c.subs.Add(hoverKey(element), func() {
		c.mu.Lock()
		delete(c.sc.hoverStart, element)
		c.mu.Unlock()
	})
}

// MouseLeave completes the hover measurement for element.
func (c *Collector) MouseLeave(element string) error {
	c.mu.Lock()
	start, ok := c.sc.hoverStart[element]
	var err error
	if ok {
		d := c.now().Sub(start)
		err = c.session.AppendHover(domain.HoverRecord{
			Element:  element,
			Duration: float64(d) / float64(time.Millisecond),
		})
	}
	c.mu.Unlock()

	c.subs.Release(hoverKey(element))
	return err
}

func hoverKey(element string) string { return "hover:" + element }

// SetFingerprint records the device fingerprint once obtained.
func (c *Collector) SetFingerprint(fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Finalized() {
		c.session.Fingerprint = fp
	}
}

// GeoUnavailable notes that geolocation was denied or unsupported. The
// session keeps an absent fix.
func (c *Collector) GeoUnavailable(reason string) {
	c.logger.Debug("geolocation unavailable",
		slog.String("session_id", c.session.ID),
		slog.String("reason", reason))
}

// OrientationUnavailable notes that device orientation cannot be captured.
func (c *Collector) OrientationUnavailable(reason string) {
	c.mu.Lock()
	c.session.Context.OrientationSupported = false
	c.mu.Unlock()
	c.logger.Debug("device orientation unavailable",
		slog.String("session_id", c.session.ID),
		slog.String("reason", reason))
}

// Subscriptions exposes the active subscription set.
func (c *Collector) Subscriptions() *Subscriptions { return c.subs }

// Finalize releases every subscription and closes the session at the
// submission trigger time. The session is read-only afterwards.
func (c *Collector) Finalize() (*domain.BehaviorSession, error) {
	c.subs.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.session.Finalize(c.now()); err != nil {
		return nil, err
	}
	return c.session, nil
}

// Close releases every subscription without finalizing. Use it when the view
// goes away without a submission.
func (c *Collector) Close() {
	c.subs.Close()
}
