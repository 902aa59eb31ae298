package collector

import (
	"slices"
	"time"
)

// TickPeriod is the idle detection period.
const TickPeriod = time.Second

// idleTracker accumulates idle time from periodic ticks. An idle period opens
// at the first tick that finds no interaction for a full period and closes at
// the next interaction.
type idleTracker struct {
	period          time.Duration
	lastInteraction time.Time
	lastTick        time.Time
	open            bool
}

func newIdleTracker(start time.Time, period time.Duration) *idleTracker {
	return &idleTracker{period: period, lastInteraction: start, lastTick: start}
}

// tick returns the idle time to add at now.
func (t *idleTracker) tick(now time.Time) time.Duration {
	var add time.Duration
	if now.Sub(t.lastInteraction) >= t.period {
		from := t.lastTick
		if t.lastInteraction.After(from) {
			from = t.lastInteraction
		}
		add = now.Sub(from)
		t.open = true
	}
	if now.After(t.lastTick) {
		t.lastTick = now
	}
	return add
}

// touch records an interaction at ts and returns the idle time that closes.
func (t *idleTracker) touch(ts time.Time) time.Duration {
	var add time.Duration
	if t.open {
		if d := ts.Sub(t.lastTick); d > 0 {
			add = d
		}
		t.open = false
	}
	if ts.After(t.lastInteraction) {
		t.lastInteraction = ts
	}
	return add
}

// SimulateIdle replays the tick loop over [start, end] against interaction
// timestamps, giving the idle total a live collector would have measured.
func SimulateIdle(start, end time.Time, interactions []time.Time, period time.Duration) time.Duration {
	if period <= 0 {
		period = TickPeriod
	}
	ts := slices.Clone(interactions)
	slices.SortFunc(ts, func(a, b time.Time) int { return a.Compare(b) })

	tr := newIdleTracker(start, period)
	var total time.Duration
	next := start.Add(period)
	for _, t := range ts {
		for !next.After(t) && !next.After(end) {
			total += tr.tick(next)
			next = next.Add(period)
		}
		if t.After(end) {
			break
		}
		total += tr.touch(t)
	}
	for !next.After(end) {
		total += tr.tick(next)
		next = next.Add(period)
	}
	return total
}
