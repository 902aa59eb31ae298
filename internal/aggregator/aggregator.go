// Package aggregator reduces a finalized BehaviorSession to DerivedFeatures.
//
// Aggregation is a pure function of the session's events: the same session
// always yields identical features. Within one event kind the recorded order
// is kept and any sample whose timestamp does not advance past the last
// accepted sample is rejected as a capture anomaly. Statistics that need more
// samples than were captured are reported absent, never zero.
package aggregator

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

// Aggregator computes DerivedFeatures and logs capture anomalies.
type Aggregator struct {
	logger *slog.Logger
}

// New returns an Aggregator. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger}
}

// Aggregate computes features for a finalized session.
func (a *Aggregator) Aggregate(s *domain.BehaviorSession) (*domain.DerivedFeatures, error) {
	f, err := Compute(s)
	if err != nil {
		return nil, err
	}
	for _, anomaly := range f.Anomalies {
		a.logger.Debug("capture anomaly",
			slog.String("session_id", s.ID),
			slog.String("anomaly", anomaly))
	}
	return f, nil
}

// Compute is the pure reduction behind Aggregate.
func Compute(s *domain.BehaviorSession) (*domain.DerivedFeatures, error) {
	if !s.Finalized() {
		return nil, domain.ErrSessionNotFinalized
	}

	f := &domain.DerivedFeatures{
		IdleTime:   millis(s.IdleTime()),
		TimeOnPage: millis(s.SubmittedAt().Sub(s.Start)),
	}
	var anomalies []string

	mouse, rejected := pointerMetrics(s.Events(domain.EventPointerMove))
	f.Mouse = mouse
	if rejected > 0 {
		anomalies = append(anomalies, fmt.Sprintf("pointer_move: rejected %d samples with non-increasing timestamps", rejected))
	}

	keyboard, unmatched := keyboardMetrics(s.Events(domain.EventKeyDown), s.Events(domain.EventKeyUp))
	f.Keyboard = keyboard
	if unmatched > 0 {
		anomalies = append(anomalies, fmt.Sprintf("key_up: %d releases without a matching press", unmatched))
	}

	scroll, rejected := scrollMetrics(s.Events(domain.EventScroll))
	f.Scroll = scroll
	if rejected > 0 {
		anomalies = append(anomalies, fmt.Sprintf("scroll: rejected %d samples with non-increasing timestamps", rejected))
	}

	angular, rejected := angularVelocity(s.Events(domain.EventOrientation))
	f.AngularVelocity = angular
	if rejected > 0 {
		anomalies = append(anomalies, fmt.Sprintf("orientation: rejected %d samples with non-increasing timestamps", rejected))
	}

	f.Counts = domain.InteractionCounts{
		Clicks:        s.EventCount(domain.EventClick),
		Touches:       s.EventCount(domain.EventTouch),
		FocusChanges:  s.EventCount(domain.EventFocusChange),
		Visibility:    s.EventCount(domain.EventVisibility),
		ClipboardUses: s.EventCount(domain.EventCopyPaste),
		Resizes:       s.EventCount(domain.EventResize),
		Hovers:        len(s.Hovers()),
	}
	f.Anomalies = anomalies
	return f, nil
}

// increasing keeps the events whose timestamps strictly advance over the last
// accepted one, in recorded order.
func increasing(evs []domain.RawInteractionEvent) (accepted []domain.RawInteractionEvent, rejected int) {
	accepted = make([]domain.RawInteractionEvent, 0, len(evs))
	for _, ev := range evs {
		if n := len(accepted); n > 0 && !ev.Timestamp.After(accepted[n-1].Timestamp) {
			rejected++
			continue
		}
		accepted = append(accepted, ev)
	}
	return accepted, rejected
}

func pointerMetrics(evs []domain.RawInteractionEvent) (domain.MouseMetrics, int) {
	samples, rejected := increasing(evs)
	m := domain.MouseMetrics{SampleCount: len(samples), RejectedSamples: rejected}
	if len(samples) < 2 {
		return m, rejected
	}

	speeds := make([]float64, 0, len(samples)-1)
	stamps := make([]time.Time, 0, len(samples)-1)
	var directions histogram
	maxSpeed := 0.0
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		dx, dy := cur.Pointer.X-prev.Pointer.X, cur.Pointer.Y-prev.Pointer.Y
		d := math.Hypot(dx, dy)
		dt := millis(cur.Timestamp.Sub(prev.Timestamp))

		m.TotalDistance += d
		speed := d / dt
		speeds = append(speeds, speed)
		stamps = append(stamps, cur.Timestamp)
		maxSpeed = math.Max(maxSpeed, speed)
		if d > 0 {
			directions.add(directionBucket(dx, dy))
		}
	}

	m.TotalTime = millis(samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp))
	m.AverageSpeed = domain.Some(m.TotalDistance / m.TotalTime)
	m.MaxSpeed = domain.Some(maxSpeed)
	m.Entropy = directions.entropy()

	if len(speeds) >= 2 {
		var sum float64
		for i := 1; i < len(speeds); i++ {
			sum += (speeds[i] - speeds[i-1]) / millis(stamps[i].Sub(stamps[i-1]))
		}
		m.Acceleration = domain.Some(sum / float64(len(speeds)-1))
	}
	return m, rejected
}

// directionBucket maps a movement vector to one of 8 compass sectors.
func directionBucket(dx, dy float64) int {
	angle := math.Atan2(dy, dx) + math.Pi // [0, 2π]
	b := int(angle / (math.Pi / 4))
	if b >= 8 {
		b = 0
	}
	return b
}

type keyEvent struct {
	down bool
	key  string
	at   time.Time
}

func keyboardMetrics(downs, ups []domain.RawInteractionEvent) (domain.KeyboardMetrics, int) {
	k := domain.KeyboardMetrics{TotalKeystrokes: len(downs)}

	presses, _ := increasing(downs)
	intervals := make([]float64, 0, len(presses))
	var buckets histogram
	for i := 1; i < len(presses); i++ {
		iv := millis(presses[i].Timestamp.Sub(presses[i-1].Timestamp))
		intervals = append(intervals, iv)
		buckets.add(int(iv / 50))
	}
	if len(intervals) > 0 {
		mean, std := meanStdDev(intervals)
		k.AverageInterval = domain.Some(mean)
		k.IntervalStdDev = domain.Some(std)
		k.Entropy = buckets.entropy()
	}

	// Holds pair presses with releases across both kinds, so the merged
	// stream is ordered by timestamp with presses first on ties.
	merged := make([]keyEvent, 0, len(downs)+len(ups))
	for _, ev := range downs {
		merged = append(merged, keyEvent{down: true, key: ev.Key.Key, at: ev.Timestamp})
	}
	for _, ev := range ups {
		merged = append(merged, keyEvent{key: ev.Key.Key, at: ev.Timestamp})
	}
	slices.SortStableFunc(merged, func(a, b keyEvent) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		switch {
		case a.down && !b.down:
			return -1
		case !a.down && b.down:
			return 1
		}
		return 0
	})

	pending := make(map[string]time.Time)
	unmatched := 0
	var holdSum float64
	for _, ev := range merged {
		if ev.down {
			if _, held := pending[ev.key]; !held {
				pending[ev.key] = ev.at
			}
			continue
		}
		start, ok := pending[ev.key]
		if !ok {
			unmatched++
			continue
		}
		delete(pending, ev.key)
		hold := millis(ev.at.Sub(start))
		k.Holds = append(k.Holds, domain.KeyHold{Key: ev.key, Duration: hold})
		holdSum += hold
	}
	if len(k.Holds) > 0 {
		k.AverageHold = domain.Some(holdSum / float64(len(k.Holds)))
	}
	return k, unmatched
}

func scrollMetrics(evs []domain.RawInteractionEvent) (domain.ScrollMetrics, int) {
	samples, rejected := increasing(evs)
	m := domain.ScrollMetrics{SampleCount: len(samples)}
	if len(samples) == 0 {
		return m, rejected
	}

	var sum, maxSpeed, prevTop float64
	lastDir := 0
	for _, ev := range samples {
		delta := ev.Scroll.ScrollTop - prevTop
		prevTop = ev.Scroll.ScrollTop

		speed := math.Abs(delta)
		sum += speed
		maxSpeed = math.Max(maxSpeed, speed)

		dir := 0
		switch {
		case delta > 0:
			dir = 1
			m.Downward++
		case delta < 0:
			dir = -1
			m.Upward++
		}
		if dir != 0 {
			if lastDir != 0 && dir != lastDir {
				m.DirectionChanges++
			}
			lastDir = dir
		}
	}
	m.AverageSpeed = domain.Some(sum / float64(len(samples)))
	m.MaxSpeed = domain.Some(maxSpeed)
	return m, rejected
}

func angularVelocity(evs []domain.RawInteractionEvent) (domain.Opt[float64], int) {
	samples, rejected := increasing(evs)
	if len(samples) < 2 {
		return domain.None[float64](), rejected
	}
	var sum float64
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1].Orientation, samples[i].Orientation
		da := wrapDegrees(cur.Alpha - prev.Alpha)
		db := wrapDegrees(cur.Beta - prev.Beta)
		dg := cur.Gamma - prev.Gamma
		mag := math.Sqrt(da*da + db*db + dg*dg)
		sum += mag / millis(samples[i].Timestamp.Sub(samples[i-1].Timestamp))
	}
	return domain.Some(sum / float64(len(samples)-1)), rejected
}

// wrapDegrees maps an angle difference into [-180, 180).
func wrapDegrees(d float64) float64 {
	d = math.Mod(d+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

func meanStdDev(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		std += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(std / float64(len(xs)))
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// histogram counts small non-negative bucket indexes.
type histogram struct {
	counts map[int]int
	total  int
}

func (h *histogram) add(bucket int) {
	if h.counts == nil {
		h.counts = make(map[int]int)
	}
	h.counts[bucket]++
	h.total++
}

// entropy returns the Shannon entropy in bits. Buckets are summed in sorted
// order so the result does not depend on map iteration.
func (h *histogram) entropy() float64 {
	if h.total == 0 {
		return 0
	}
	keys := make([]int, 0, len(h.counts))
	for k := range h.counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var e float64
	for _, k := range keys {
		p := float64(h.counts[k]) / float64(h.total)
		e -= p * math.Log2(p)
	}
	return e
}
