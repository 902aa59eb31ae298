package runtime

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tjfontaine/behavior-verify-gateway/internal/adapters/auth/apikey"
	"github.com/tjfontaine/behavior-verify-gateway/internal/collector"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/logquery"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
	"github.com/tjfontaine/behavior-verify-gateway/internal/submission"
	"github.com/tjfontaine/behavior-verify-gateway/internal/validation"
)

const safariUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func sessionPayload() *collector.BehaviorPayload {
	start := time.Now().Add(-15 * time.Second).UTC()
	var events []domain.RawInteractionEvent
	for i := 1; i <= 50; i++ {
		events = append(events, domain.RawInteractionEvent{
			Kind:      domain.EventPointerMove,
			Timestamp: start.Add(time.Duration(i) * 200 * time.Millisecond),
			Pointer:   &domain.Point{X: float64(i * 18), Y: float64(240 + i%7)},
		})
	}
	events = append(events,
		domain.RawInteractionEvent{Kind: domain.EventKeyDown, Timestamp: start.Add(4 * time.Second), Key: &domain.KeyPayload{Key: "k"}},
		domain.RawInteractionEvent{Kind: domain.EventKeyUp, Timestamp: start.Add(4*time.Second + 120*time.Millisecond), Key: &domain.KeyPayload{Key: "k"}},
	)
	submitted := start.Add(12 * time.Second)
	return &collector.BehaviorPayload{
		SessionStart:       start,
		SubmittedAt:        &submitted,
		Context:            domain.DeviceContext{DeviceClass: domain.DeviceDesktop, UserAgent: safariUA},
		BrowserFingerprint: "fp-runtime",
		Events:             events,
	}
}

func startVerifier(t *testing.T, cfg *config.Config, opts ...Option) (*Verifier, string) {
	t.Helper()
	ln := listen(t)
	opts = append([]Option{WithLogger(quietLogger()), WithConfig(cfg), WithMemoryStorage(), WithListener(ln)}, opts...)
	v, err := New(opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := v.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = v.Shutdown(ctx)
	})
	return v, "http://" + ln.Addr().String()
}

func getJSON(t *testing.T, url, token string, dst any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if dst != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func TestVerifier_New_RequiresConfig(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("Expected error without config provider")
	}
	if err.Error() != "config provider required (use WithFileConfig or WithConfig)" {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestVerifier_AccessorsBeforeStart(t *testing.T) {
	v, err := New(WithConfig(&config.Config{}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if v.Handler() != nil {
		t.Error("Handler should be nil before Start")
	}
	if _, err := v.Logs(); err != ErrNotStarted {
		t.Errorf("Logs err = %v, want ErrNotStarted", err)
	}
}

func TestVerifier_EndToEnd(t *testing.T) {
	key := "admin-key-0001"
	cfg := &config.Config{
		Admin: config.AdminConfig{APIKeys: []config.APIKeyConfig{{KeyHash: apikey.HashAPIKey(key), Description: "ops"}}},
	}

	var mu sync.Mutex
	var events []*domain.SubmissionEvent
	_, baseURL := startVerifier(t, cfg, WithDirectEvents(func(_ context.Context, ev *domain.SubmissionEvent) error {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		return nil
	}))

	var health map[string]string
	if code := getJSON(t, baseURL+"/healthz", "", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("healthz = %d %v", code, health)
	}

	client := submission.NewClient(baseURL, submission.WithClientLogger(quietLogger()))
	resp, err := client.Submit(context.Background(), &validation.VerifyRequest{
		FormData:         validation.FormData{Identifier: "grace@example.test", CredentialProof: "proof"},
		UserBehaviorData: sessionPayload(),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if resp.Message != "Success" || resp.LogID == "" {
		t.Fatalf("response = %+v", resp)
	}

	if code := getJSON(t, baseURL+"/admin/verification-logs", "", nil); code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", code)
	}

	var page logquery.Page
	if code := getJSON(t, baseURL+"/admin/verification-logs?page=1&limit=10", key, &page); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if len(page.Logs) != 1 || page.TotalPages != 1 {
		t.Fatalf("page = %+v", page)
	}
	got := page.Logs[0]
	if string(got.ID) != resp.LogID {
		t.Errorf("log id = %q, want %q", got.ID, resp.LogID)
	}
	if got.IPAddress != "127.0.0.1" {
		t.Errorf("IPAddress = %q", got.IPAddress)
	}
	if got.MouseMetrics == nil {
		t.Error("expected mouse metrics")
	}
	if got.IsBot.Present() {
		t.Error("static classifier should leave is_bot absent")
	}

	if code := getJSON(t, baseURL+"/admin/verification-logs?limit=7", key, nil); code != http.StatusBadRequest {
		t.Errorf("invalid limit status = %d, want 400", code)
	}
	if code := getJSON(t, baseURL+"/admin/verification-logs/"+resp.LogID, key, nil); code != http.StatusOK {
		t.Errorf("detail status = %d", code)
	}

	metricsResp, err := http.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(metricsResp.Body)
	metricsResp.Body.Close()
	if !strings.Contains(string(body), "bvg_submissions_total") {
		t.Error("expected submission counter in /metrics")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0].Type != domain.SubmissionEventRecorded {
		t.Errorf("events = %+v", events)
	}
}

func TestVerifier_ConfigReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("validation:\n  min_pointer_samples: 5\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ln := listen(t)
	v, err := New(WithLogger(quietLogger()), WithFileConfig(path), WithMemoryStorage(), WithListener(ln))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := v.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = v.Shutdown(ctx)
	}()

	baseURL := "http://" + ln.Addr().String()
	if code := getJSON(t, baseURL+"/admin/verification-stats", "", nil); code != http.StatusOK {
		t.Fatalf("stats before reload = %d, want 200 (no keys configured)", code)
	}

	// Give the watcher a moment to register before writing.
	time.Sleep(200 * time.Millisecond)
	updated := "validation:\n  min_pointer_samples: 40\nadmin:\n  api_keys:\n    - key_hash: " + apikey.HashAPIKey("rotated") + "\n"
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if v.validator.Rules().MinPointerSamples == 40 && v.auth.Enabled() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := v.validator.Rules().MinPointerSamples; got != 40 {
		t.Fatalf("MinPointerSamples = %d, want 40", got)
	}
	if code := getJSON(t, baseURL+"/admin/verification-stats", "", nil); code != http.StatusUnauthorized {
		t.Errorf("stats after reload = %d, want 401", code)
	}
	if code := getJSON(t, baseURL+"/admin/verification-stats", "rotated", nil); code != http.StatusOK {
		t.Errorf("stats with rotated key = %d, want 200", code)
	}
}

func TestVerifier_StartTwice(t *testing.T) {
	v, _ := startVerifier(t, &config.Config{})
	if err := v.Start(context.Background()); err == nil {
		t.Error("expected error starting twice")
	}
}

func TestNewPublisher_Unsupported(t *testing.T) {
	if _, err := newPublisher(config.EventsConfig{Type: "carrier-pigeon"}, quietLogger()); err == nil {
		t.Error("expected error for unsupported events type")
	}
}
