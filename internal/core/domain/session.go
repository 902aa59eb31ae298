package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrSessionFinalized is returned when appending to a finalized session.
	ErrSessionFinalized = errors.New("session already finalized")
	// ErrSessionNotFinalized is returned when aggregating an open session.
	ErrSessionNotFinalized = errors.New("session not finalized")
)

// DeviceClass is the coarse device category reported by the client.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceUnknown DeviceClass = "unknown"
)

// TouchCapable reports whether the class is expected to report orientation.
func (c DeviceClass) TouchCapable() bool {
	return c == DeviceMobile || c == DeviceTablet
}

// DeviceContext is the static context captured when the session starts.
type DeviceContext struct {
	DeviceClass DeviceClass `json:"deviceType"`
	UserAgent   string      `json:"userAgent"`
	Platform    string      `json:"platform,omitempty"`
	Browser     string      `json:"browser,omitempty"`
	OS          string      `json:"os,omitempty"`
	PixelRatio  float64     `json:"pixelRatio,omitempty"`
	ZoomLevel   float64     `json:"zoomLevel,omitempty"`
	// OrientationSupported is false when the device orientation API is
	// missing or permission was denied.
	OrientationSupported bool `json:"orientationSupported"`
}

// BehaviorSession is the aggregate root of one login attempt. Events are
// appended per kind and the session becomes read-only once finalized.
type BehaviorSession struct {
	ID          string
	Start       time.Time
	Context     DeviceContext
	Fingerprint string
	Geo         Opt[GeoPayload]

	events      map[EventKind][]RawInteractionEvent
	hovers      []HoverRecord
	idle        time.Duration
	finalized   bool
	submittedAt time.Time
}

// NewBehaviorSession creates an open session.
func NewBehaviorSession(id string, start time.Time, ctx DeviceContext) *BehaviorSession {
	return &BehaviorSession{
		ID:      id,
		Start:   start,
		Context: ctx,
		events:  make(map[EventKind][]RawInteractionEvent),
	}
}

// Append records an event. Records are never removed or rewritten.
func (s *BehaviorSession) Append(ev RawInteractionEvent) error {
	if s.finalized {
		return ErrSessionFinalized
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	s.events[ev.Kind] = append(s.events[ev.Kind], ev)
	return nil
}

// AppendHover records a completed hover measurement.
func (s *BehaviorSession) AppendHover(h HoverRecord) error {
	if s.finalized {
		return ErrSessionFinalized
	}
	s.hovers = append(s.hovers, h)
	return nil
}

// AddIdle accumulates idle time.
func (s *BehaviorSession) AddIdle(d time.Duration) error {
	if s.finalized {
		return ErrSessionFinalized
	}
	if d > 0 {
		s.idle += d
	}
	return nil
}

// Finalize closes the session at the submission trigger time. It succeeds
// exactly once.
func (s *BehaviorSession) Finalize(at time.Time) error {
	if s.finalized {
		return ErrSessionFinalized
	}
	s.finalized = true
	s.submittedAt = at
	return nil
}

// Finalized reports whether Finalize has been called.
func (s *BehaviorSession) Finalized() bool { return s.finalized }

// SubmittedAt returns the finalize time.
func (s *BehaviorSession) SubmittedAt() time.Time { return s.submittedAt }

// Events returns a copy of the events recorded for kind, in append order.
func (s *BehaviorSession) Events(kind EventKind) []RawInteractionEvent {
	return slices.Clone(s.events[kind])
}

// EventCount returns the number of events of kind.
func (s *BehaviorSession) EventCount(kind EventKind) int {
	return len(s.events[kind])
}

// TotalEvents returns the number of events across all kinds.
func (s *BehaviorSession) TotalEvents() int {
	n := 0
	for _, evs := range s.events {
		n += len(evs)
	}
	return n
}

// Hovers returns a copy of the hover records.
func (s *BehaviorSession) Hovers() []HoverRecord {
	return slices.Clone(s.hovers)
}

// IdleTime returns the accumulated idle time.
func (s *BehaviorSession) IdleTime() time.Duration { return s.idle }
