package aggregator

import (
	"errors"
	"math"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func ms(n float64) time.Time {
	return t0.Add(time.Duration(n * float64(time.Millisecond)))
}

func move(at float64, x, y float64) domain.RawInteractionEvent {
	return domain.RawInteractionEvent{Kind: domain.EventPointerMove, Timestamp: ms(at), Pointer: &domain.Point{X: x, Y: y}}
}

func key(kind domain.EventKind, at float64, k string) domain.RawInteractionEvent {
	return domain.RawInteractionEvent{Kind: kind, Timestamp: ms(at), Key: &domain.KeyPayload{Key: k}}
}

func finalized(t *testing.T, end float64, evs ...domain.RawInteractionEvent) *domain.BehaviorSession {
	t.Helper()
	s := domain.NewBehaviorSession("s", t0, domain.DeviceContext{DeviceClass: domain.DeviceDesktop})
	for _, ev := range evs {
		if err := s.Append(ev); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := s.Finalize(ms(end)); err != nil {
		t.Fatal(err)
	}
	return s
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCompute_PointerSpeedAndAcceleration(t *testing.T) {
	s := finalized(t, 1000, move(0, 0, 0), move(100, 100, 0), move(200, 300, 0))

	f, err := Compute(s)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := f.Mouse.AverageSpeed.Get(); !ok || !approx(got, 1.5) {
		t.Errorf("AverageSpeed = %v (%v), want 1.5", got, ok)
	}
	if got, _ := f.Mouse.MaxSpeed.Get(); !approx(got, 2) {
		t.Errorf("MaxSpeed = %v, want 2", got)
	}
	if got, ok := f.Mouse.Acceleration.Get(); !ok || !approx(got, 0.01) {
		t.Errorf("Acceleration = %v (%v), want 0.01", got, ok)
	}
	if f.Mouse.TotalDistance != 300 || f.Mouse.TotalTime != 200 {
		t.Errorf("distance/time = %v/%v", f.Mouse.TotalDistance, f.Mouse.TotalTime)
	}
	if f.TimeOnPage != 1000 {
		t.Errorf("TimeOnPage = %v, want 1000", f.TimeOnPage)
	}
}

func TestCompute_AccelerationAbsentWithOneSpeedSample(t *testing.T) {
	f, err := Compute(finalized(t, 500, move(0, 0, 0), move(100, 30, 40)))
	if err != nil {
		t.Fatal(err)
	}
	if f.Mouse.Acceleration.Present() {
		t.Error("Acceleration present with a single speed sample")
	}
	if got, _ := f.Mouse.AverageSpeed.Get(); !approx(got, 0.5) {
		t.Errorf("AverageSpeed = %v, want 0.5", got)
	}

	f, _ = Compute(finalized(t, 500, move(0, 0, 0)))
	if f.Mouse.AverageSpeed.Present() {
		t.Error("AverageSpeed present with a single sample")
	}
}

func TestCompute_OrderMatters(t *testing.T) {
	samples := []domain.RawInteractionEvent{move(0, 0, 0), move(50, 10, 0), move(100, 40, 0), move(150, 50, 0)}

	forward, _ := Compute(finalized(t, 1000, samples...))

	reversed := slices.Clone(samples)
	slices.Reverse(reversed)
	backward, _ := Compute(finalized(t, 1000, reversed...))
	if reflect.DeepEqual(forward.Mouse, backward.Mouse) {
		t.Error("reversed samples produced identical mouse metrics")
	}
	if backward.Mouse.RejectedSamples != 3 || len(backward.Anomalies) == 0 {
		t.Errorf("rejected = %d anomalies = %v", backward.Mouse.RejectedSamples, backward.Anomalies)
	}

	sorted := slices.Clone(reversed)
	slices.SortFunc(sorted, func(a, b domain.RawInteractionEvent) int { return a.Timestamp.Compare(b.Timestamp) })
	canonical, _ := Compute(finalized(t, 1000, sorted...))
	if !reflect.DeepEqual(forward.Mouse, canonical.Mouse) {
		t.Errorf("sorted order = %+v, want %+v", canonical.Mouse, forward.Mouse)
	}
}

func TestCompute_RejectsDuplicateTimestamps(t *testing.T) {
	f, _ := Compute(finalized(t, 1000, move(0, 0, 0), move(100, 100, 0), move(100, 500, 0), move(200, 200, 0)))
	if f.Mouse.SampleCount != 3 || f.Mouse.RejectedSamples != 1 {
		t.Errorf("samples = %d rejected = %d", f.Mouse.SampleCount, f.Mouse.RejectedSamples)
	}
	if f.Mouse.TotalDistance != 200 {
		t.Errorf("TotalDistance = %v, want 200", f.Mouse.TotalDistance)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	var evs []domain.RawInteractionEvent
	for i := 0; i < 40; i++ {
		evs = append(evs, move(float64(i*37), float64(i*i%97), float64(i*13%41)))
	}
	evs = append(evs,
		key(domain.EventKeyDown, 10, "a"), key(domain.EventKeyUp, 90, "a"),
		key(domain.EventKeyDown, 210, "b"), key(domain.EventKeyUp, 260, "b"),
		key(domain.EventKeyDown, 400, "c"), key(domain.EventKeyUp, 480, "c"),
	)
	s := finalized(t, 5000, evs...)

	a := New(nil)
	first, err := a.Aggregate(s)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Aggregate(s)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Aggregate() not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestCompute_Keyboard(t *testing.T) {
	s := finalized(t, 2000,
		key(domain.EventKeyDown, 0, "h"),
		key(domain.EventKeyDown, 100, "i"),
		key(domain.EventKeyUp, 120, "h"),
		key(domain.EventKeyUp, 180, "i"),
		key(domain.EventKeyDown, 300, "!"),
		key(domain.EventKeyUp, 420, "!"),
		key(domain.EventKeyUp, 500, "x"),
	)
	f, err := Compute(s)
	if err != nil {
		t.Fatal(err)
	}
	k := f.Keyboard
	if k.TotalKeystrokes != 3 {
		t.Errorf("TotalKeystrokes = %d", k.TotalKeystrokes)
	}
	if got, _ := k.AverageInterval.Get(); !approx(got, 150) {
		t.Errorf("AverageInterval = %v, want 150", got)
	}
	want := []domain.KeyHold{{Key: "h", Duration: 120}, {Key: "i", Duration: 80}, {Key: "!", Duration: 120}}
	if !reflect.DeepEqual(k.Holds, want) {
		t.Errorf("Holds = %+v, want %+v", k.Holds, want)
	}
	if got, _ := k.AverageHold.Get(); !approx(got, 320.0/3) {
		t.Errorf("AverageHold = %v", got)
	}
	if len(f.Anomalies) != 1 {
		t.Errorf("Anomalies = %v, want one unmatched release", f.Anomalies)
	}
}

func TestCompute_SingleKeyPress(t *testing.T) {
	f, _ := Compute(finalized(t, 1000, key(domain.EventKeyDown, 0, "a"), key(domain.EventKeyUp, 120, "a")))
	if f.Keyboard.AverageInterval.Present() {
		t.Error("AverageInterval present with one key press")
	}
	if got, ok := f.Keyboard.AverageHold.Get(); !ok || got != 120 {
		t.Errorf("AverageHold = %v (%v), want 120", got, ok)
	}
}

func TestCompute_Scroll(t *testing.T) {
	scroll := func(at, top float64) domain.RawInteractionEvent {
		return domain.RawInteractionEvent{Kind: domain.EventScroll, Timestamp: ms(at), Scroll: &domain.ScrollPayload{ScrollTop: top}}
	}
	f, _ := Compute(finalized(t, 1000, scroll(0, 100), scroll(50, 300), scroll(100, 250), scroll(150, 250)))

	sm := f.Scroll
	if sm.SampleCount != 4 || sm.Downward != 2 || sm.Upward != 1 || sm.DirectionChanges != 1 {
		t.Errorf("scroll = %+v", sm)
	}
	if got, _ := sm.AverageSpeed.Get(); !approx(got, 350.0/4) {
		t.Errorf("AverageSpeed = %v", got)
	}
	if got, _ := sm.MaxSpeed.Get(); got != 200 {
		t.Errorf("MaxSpeed = %v", got)
	}
}

func TestCompute_AngularVelocity(t *testing.T) {
	orient := func(at, a, b, g float64) domain.RawInteractionEvent {
		return domain.RawInteractionEvent{Kind: domain.EventOrientation, Timestamp: ms(at), Orientation: &domain.OrientationPayload{Alpha: a, Beta: b, Gamma: g}}
	}

	f, _ := Compute(finalized(t, 1000, orient(0, 350, 0, 0), orient(100, 10, 0, 0)))
	if got, ok := f.AngularVelocity.Get(); !ok || !approx(got, 0.2) {
		t.Errorf("AngularVelocity = %v (%v), want 0.2 across the alpha wrap", got, ok)
	}

	f, _ = Compute(finalized(t, 1000, orient(0, 0, 0, 0)))
	if f.AngularVelocity.Present() {
		t.Error("AngularVelocity present with one sample")
	}
}

func TestCompute_NotFinalized(t *testing.T) {
	s := domain.NewBehaviorSession("s", t0, domain.DeviceContext{})
	if _, err := Compute(s); !errors.Is(err, domain.ErrSessionNotFinalized) {
		t.Errorf("Compute() error = %v", err)
	}
}
