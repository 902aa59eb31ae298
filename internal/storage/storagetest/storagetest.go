// Package storagetest holds the behaviour every ports.LogStore backend must
// share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
)

// Opener returns a fresh, empty store. The store is closed by Run.
type Opener func(t *testing.T) ports.LogStore

var base = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// NewLog builds a log submitted n seconds after a fixed base time.
func NewLog(n int, isBot domain.Opt[bool]) *domain.VerificationLog {
	return &domain.VerificationLog{
		SubmissionID:       fmt.Sprintf("sub-%03d", n),
		SubmittedAt:        base.Add(time.Duration(n) * time.Second),
		IPAddress:          fmt.Sprintf("198.51.100.%d", n%5),
		UserAgent:          "Mozilla/5.0 test",
		BrowserFingerprint: fmt.Sprintf("fp-%d", n),
		DeviceClass:        domain.DeviceDesktop,
		ReportedLatitude:   domain.Some(52.37),
		IPLatitude:         domain.Some(52.09),
		IPLongitude:        domain.Some(5.12),
		TimeOnPage:         10000,
		IdleTime:           1200,
		MouseMetrics: &domain.MouseMetrics{
			SampleCount:   50,
			TotalDistance: 1300,
			TotalTime:     1000,
			AverageSpeed:  domain.Some(1.3),
		},
		KeyboardMetrics: &domain.KeyboardMetrics{
			TotalKeystrokes: 1,
			AverageHold:     domain.Some(120.0),
			Holds:           []domain.KeyHold{{Key: "a", Duration: 120}},
		},
		ValidationResults: domain.ValidationResult{IPValid: true, UserAgentValid: true, MouseMovementValid: true, GeolocationMatch: true},
		IsBot:             isBot,
		Notes:             "test",
	}
}

// Run executes the shared store behaviour tests.
func Run(t *testing.T, open Opener) {
	t.Run("AppendAndGet", func(t *testing.T) { testAppendAndGet(t, open) })
	t.Run("AppendIdempotent", func(t *testing.T) { testAppendIdempotent(t, open) })
	t.Run("FindBySubmission", func(t *testing.T) { testFindBySubmission(t, open) })
	t.Run("ListOrderAndPaging", func(t *testing.T) { testListOrderAndPaging(t, open) })
	t.Run("ListSameTimestamp", func(t *testing.T) { testListSameTimestamp(t, open) })
	t.Run("Filter", func(t *testing.T) { testFilter(t, open) })
	t.Run("Stats", func(t *testing.T) { testStats(t, open) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, open) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open) })
}

func withStore(t *testing.T, open Opener) ports.LogStore {
	t.Helper()
	s := open(t)
	t.Cleanup(func() { s.Close() })
	return s
}

func testAppendAndGet(t *testing.T, open Opener) {
	s := withStore(t, open)
	ctx := context.Background()

	in := NewLog(1, domain.Some(false))
	id, err := s.AppendLog(ctx, in)
	if err != nil {
		t.Fatalf("AppendLog() error = %v", err)
	}
	if id == "" {
		t.Fatal("AppendLog() returned empty id")
	}

	got, err := s.GetLog(ctx, id)
	if err != nil {
		t.Fatalf("GetLog() error = %v", err)
	}
	if got.SubmissionID != in.SubmissionID || !got.SubmittedAt.Equal(in.SubmittedAt) {
		t.Errorf("GetLog() = %s at %v", got.SubmissionID, got.SubmittedAt)
	}
	if got.MouseMetrics == nil {
		t.Fatal("mouse_metrics lost")
	}
	if v, ok := got.MouseMetrics.AverageSpeed.Get(); !ok || v != 1.3 {
		t.Errorf("average_speed = %v (%v)", v, ok)
	}
	if got.ScrollMetrics != nil {
		t.Error("absent scroll_metrics stored as present")
	}
	if v, ok := got.IsBot.Get(); !ok || v {
		t.Errorf("is_bot = %v (%v), want false", v, ok)
	}
	if got.Confidence.Present() {
		t.Error("absent confidence stored as present")
	}
	if !got.ValidationResults.IPValid || !got.ValidationResults.GeolocationMatch || got.ValidationResults.FingerprintPresent {
		t.Errorf("validation_results = %+v", got.ValidationResults)
	}
	if v, ok := got.IPLatitude.Get(); !ok || v != 52.09 {
		t.Errorf("ip_latitude = %v (%v), want 52.09", v, ok)
	}
	if v, ok := got.IPLongitude.Get(); !ok || v != 5.12 {
		t.Errorf("ip_longitude = %v (%v), want 5.12", v, ok)
	}
	if got.ReportedLongitude.Present() {
		t.Error("absent reported_longitude stored as present")
	}
	if len(got.KeyboardMetrics.Holds) != 1 {
		t.Errorf("keyboard holds = %+v", got.KeyboardMetrics.Holds)
	}
}

func testAppendIdempotent(t *testing.T, open Opener) {
	s := withStore(t, open)
	ctx := context.Background()

	first, err := s.AppendLog(ctx, NewLog(7, domain.None[bool]()))
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.AppendLog(ctx, NewLog(7, domain.None[bool]()))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("resubmission id = %s, want %s", second, first)
	}
	if n, _ := s.CountLogs(ctx, domain.LogFilter{}); n != 1 {
		t.Errorf("CountLogs() = %d, want 1", n)
	}
}

func testFindBySubmission(t *testing.T, open Opener) {
	s := withStore(t, open)
	ctx := context.Background()

	if _, err := s.FindBySubmission(ctx, "sub-404"); !errors.Is(err, domain.ErrLogNotFound) {
		t.Errorf("FindBySubmission(missing) error = %v, want ErrLogNotFound", err)
	}

	id, err := s.AppendLog(ctx, NewLog(3, domain.Some(true)))
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.FindBySubmission(ctx, "sub-003")
	if err != nil {
		t.Fatalf("FindBySubmission() error = %v", err)
	}
	if got.ID != id {
		t.Errorf("FindBySubmission() id = %s, want %s", got.ID, id)
	}
	if v, ok := got.IsBot.Get(); !ok || !v {
		t.Errorf("is_bot = %v (%v), want true", v, ok)
	}
}

// testListSameTimestamp checks that logs sharing submitted_at come back in
// descending id order on every backend.
func testListSameTimestamp(t *testing.T, open Opener) {
	s := withStore(t, open)
	ctx := context.Background()

	ids := []domain.LogID{"log-b", "log-a", "log-c"}
	for i, id := range ids {
		l := NewLog(i, domain.None[bool]())
		l.ID = id
		l.SubmittedAt = base
		if _, err := s.AppendLog(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	logs, err := s.ListLogs(ctx, domain.LogListOptions{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.LogID{"log-c", "log-b", "log-a"}
	if len(logs) != len(want) {
		t.Fatalf("ListLogs() returned %d logs, want %d", len(logs), len(want))
	}
	for i, l := range logs {
		if l.ID != want[i] {
			t.Errorf("logs[%d] = %s, want %s", i, l.ID, want[i])
		}
	}
}

func testListOrderAndPaging(t *testing.T, open Opener) {
	s := withStore(t, open)
	ctx := context.Background()

	for i := 0; i < 23; i++ {
		if _, err := s.AppendLog(ctx, NewLog(i, domain.None[bool]())); err != nil {
			t.Fatal(err)
		}
	}

	total, err := s.CountLogs(ctx, domain.LogFilter{})
	if err != nil || total != 23 {
		t.Fatalf("CountLogs() = %d, %v", total, err)
	}

	page1, err := s.ListLogs(ctx, domain.LogListOptions{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(page1) != 10 {
		t.Fatalf("page 1 len = %d", len(page1))
	}
	if page1[0].SubmissionID != "sub-022" {
		t.Errorf("newest first: got %s", page1[0].SubmissionID)
	}
	for i := 1; i < len(page1); i++ {
		if page1[i].SubmittedAt.After(page1[i-1].SubmittedAt) {
			t.Fatalf("page not in descending order at %d", i)
		}
	}

	page3, _ := s.ListLogs(ctx, domain.LogListOptions{Limit: 10, Offset: 20})
	if len(page3) != 3 || page3[2].SubmissionID != "sub-000" {
		t.Errorf("page 3 = %d logs", len(page3))
	}
	page4, err := s.ListLogs(ctx, domain.LogListOptions{Limit: 10, Offset: 30})
	if err != nil {
		t.Fatal(err)
	}
	if len(page4) != 0 {
		t.Errorf("page 4 len = %d, want 0", len(page4))
	}
}

func testFilter(t *testing.T, open Opener) {
	s := withStore(t, open)
	ctx := context.Background()

	verdicts := []domain.Opt[bool]{domain.Some(true), domain.Some(false), domain.None[bool](), domain.Some(true)}
	for i, v := range verdicts {
		if _, err := s.AppendLog(ctx, NewLog(i, v)); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		filter domain.LogFilter
		want   int
	}{
		{domain.LogFilter{Verdict: domain.VerdictBot}, 2},
		{domain.LogFilter{Verdict: domain.VerdictHuman}, 1},
		{domain.LogFilter{Verdict: domain.VerdictUnknown}, 1},
		{domain.LogFilter{IPAddress: "198.51.100.3"}, 1},
		{domain.LogFilter{IPAddress: "198.51.100.3", Verdict: domain.VerdictHuman}, 0},
	}
	for _, c := range cases {
		n, err := s.CountLogs(ctx, c.filter)
		if err != nil {
			t.Fatal(err)
		}
		logs, err := s.ListLogs(ctx, domain.LogListOptions{Filter: c.filter, Limit: 50})
		if err != nil {
			t.Fatal(err)
		}
		if n != c.want || len(logs) != c.want {
			t.Errorf("filter %+v: count %d list %d, want %d", c.filter, n, len(logs), c.want)
		}
	}
}

func testStats(t *testing.T, open Opener) {
	s := withStore(t, open)
	ctx := context.Background()

	for i, v := range []domain.Opt[bool]{domain.Some(true), domain.Some(false), domain.Some(false), domain.None[bool]()} {
		if _, err := s.AppendLog(ctx, NewLog(i, v)); err != nil {
			t.Fatal(err)
		}
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := domain.LogStats{Total: 4, Bot: 1, Human: 2, Unknown: 1}
	if *stats != want {
		t.Errorf("Stats() = %+v, want %+v", *stats, want)
	}
}

func testConcurrentAppend(t *testing.T, open Opener) {
	s := withStore(t, open)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.AppendLog(ctx, NewLog(i, domain.None[bool]())); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent AppendLog() error = %v", err)
	}

	if total, _ := s.CountLogs(ctx, domain.LogFilter{}); total != n {
		t.Errorf("CountLogs() = %d, want %d", total, n)
	}
}

func testGetMissing(t *testing.T, open Opener) {
	s := withStore(t, open)
	if _, err := s.GetLog(context.Background(), "does-not-exist"); !errors.Is(err, domain.ErrLogNotFound) {
		t.Errorf("GetLog() error = %v, want ErrLogNotFound", err)
	}
}
