package collector

import (
	"errors"
	"fmt"
	"time"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

// BehaviorPayload is the wire form of a finalized session, sent as
// userBehaviorData on /verify.
type BehaviorPayload struct {
	SessionID          string                       `json:"sessionId,omitempty" validate:"omitempty,max=128"`
	SessionStart       time.Time                    `json:"sessionStart" validate:"required"`
	SubmittedAt        *time.Time                   `json:"submittedAt,omitempty"`
	Context            domain.DeviceContext         `json:"context"`
	BrowserFingerprint string                       `json:"browserFingerprint" validate:"max=512"`
	IdleTime           *float64                     `json:"idleTime,omitempty" validate:"omitempty,gte=0"` // ms
	Events             []domain.RawInteractionEvent `json:"events" validate:"max=50000"`
	Hovers             []domain.HoverRecord         `json:"hoverData,omitempty" validate:"max=5000"`
	GeoLocation        *domain.GeoPayload           `json:"geoLocation,omitempty"`
}

// EncodePayload converts a finalized session to its wire form. Events are
// grouped by kind with append order kept inside each kind.
func EncodePayload(s *domain.BehaviorSession) (*BehaviorPayload, error) {
	if !s.Finalized() {
		return nil, domain.ErrSessionNotFinalized
	}
	submitted := s.SubmittedAt()
	idle := float64(s.IdleTime()) / float64(time.Millisecond)
	p := &BehaviorPayload{
		SessionID:          s.ID,
		SessionStart:       s.Start,
		SubmittedAt:        &submitted,
		Context:            s.Context,
		BrowserFingerprint: s.Fingerprint,
		IdleTime:           &idle,
		Hovers:             s.Hovers(),
		GeoLocation:        s.Geo.Ptr(),
	}
	for _, kind := range domain.EventKinds {
		p.Events = append(p.Events, s.Events(kind)...)
	}
	return p, nil
}

// Replay rebuilds and finalizes a session from its wire form. receivedAt is
// the trigger time when the payload does not carry one. Idle time is taken
// from the payload or, when absent, recomputed from event timestamps.
func Replay(p *BehaviorPayload, receivedAt time.Time) (*domain.BehaviorSession, error) {
	if p.SessionStart.IsZero() {
		return nil, errors.New("sessionStart is required")
	}
	s := domain.NewBehaviorSession(p.SessionID, p.SessionStart, p.Context)
	s.Fingerprint = p.BrowserFingerprint
	s.Geo = domain.FromPtr(p.GeoLocation)

	stamps := make([]time.Time, 0, len(p.Events))
	for i, ev := range p.Events {
		if err := s.Append(ev); err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		if ev.Kind == domain.EventGeoFix && !s.Geo.Present() {
			s.Geo = domain.Some(*ev.Geo)
		}
		stamps = append(stamps, ev.Timestamp)
	}
	for _, h := range p.Hovers {
		if h.Duration < 0 {
			return nil, fmt.Errorf("hover %q: negative duration", h.Element)
		}
		_ = s.AppendHover(h)
	}

	submitted := receivedAt
	if p.SubmittedAt != nil {
		submitted = *p.SubmittedAt
	}
	if submitted.Before(p.SessionStart) {
		return nil, errors.New("submittedAt precedes sessionStart")
	}

	if p.IdleTime != nil {
		_ = s.AddIdle(time.Duration(*p.IdleTime * float64(time.Millisecond)))
	} else {
		_ = s.AddIdle(SimulateIdle(p.SessionStart, submitted, stamps, TickPeriod))
	}

	if err := s.Finalize(submitted); err != nil {
		return nil, err
	}
	return s, nil
}
