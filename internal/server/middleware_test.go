package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/behavior-verify-gateway/internal/adapters/auth/apikey"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// =============================================================================
// RequestIDMiddleware Tests
// =============================================================================

func TestRequestIDMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("Expected request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	RequestIDMiddleware(handler).ServeHTTP(rec, req)

	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected X-Request-ID header to be set")
	}
}

func TestRequestIDMiddleware_UniqueIDs(t *testing.T) {
	wrapped := RequestIDMiddleware(okHandler)

	rec1 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/", nil))
	rec2 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/", nil))

	if id1, id2 := rec1.Header().Get(RequestIDHeader), rec2.Header().Get(RequestIDHeader); id1 == id2 {
		t.Errorf("Expected unique request IDs, got same: %s", id1)
	}
}

func TestRequestIDMiddleware_KeepsIncoming(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		wantKept bool
	}{
		{name: "kept", incoming: "retry-7f3a", wantKept: true},
		{name: "too long", incoming: strings.Repeat("x", maxRequestIDLen+1), wantKept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, tt.incoming)
			rec := httptest.NewRecorder()
			RequestIDMiddleware(okHandler).ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if (got == tt.incoming) != tt.wantKept {
				t.Errorf("X-Request-ID = %q, kept = %v, want kept %v", got, got == tt.incoming, tt.wantKept)
			}
		})
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("Expected empty string, got %q", id)
	}
}

// =============================================================================
// TimeoutMiddleware Tests
// =============================================================================

func TestTimeoutMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		timeout      time.Duration
		wantDeadline bool
	}{
		{name: "enabled", timeout: 30 * time.Second, wantDeadline: true},
		{name: "disabled", timeout: 0, wantDeadline: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, ok := r.Context().Deadline(); ok != tt.wantDeadline {
					t.Errorf("deadline set = %v, want %v", ok, tt.wantDeadline)
				}
				w.WriteHeader(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			TimeoutMiddleware(tt.timeout)(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != http.StatusOK {
				t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
			}
		})
	}
}

func TestTimeoutMiddleware_ContextCancelled(t *testing.T) {
	cancelled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			cancelled = true
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	TimeoutMiddleware(10*time.Millisecond)(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !cancelled {
		t.Error("Expected context to be cancelled due to timeout")
	}
}

// =============================================================================
// AdminAuth Tests
// =============================================================================

func TestAdminAuth(t *testing.T) {
	provider := apikey.NewProvider(config.AdminConfig{
		APIKeys: []config.APIKeyConfig{{KeyHash: apikey.HashAPIKey("valid-key-123"), Description: "ops"}},
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "bearer", header: "Bearer valid-key-123", wantStatus: http.StatusOK},
		{name: "bare key", header: "valid-key-123", wantStatus: http.StatusOK},
		{name: "invalid", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "missing", header: "", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				authCtx := GetAuthContext(r.Context())
				if authCtx == nil || authCtx.Description != "ops" {
					t.Errorf("auth context = %+v", authCtx)
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/admin/verification-logs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			AdminAuth(provider)(handler).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), "invalid_api_key") {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestAdminAuth_NoKeysConfigured(t *testing.T) {
	tests := []struct {
		name     string
		provider *apikey.Provider
	}{
		{name: "empty provider", provider: apikey.NewProvider(config.AdminConfig{})},
		{name: "nil provider", provider: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := AdminAuth(nil)
			if tt.provider != nil {
				mw = AdminAuth(tt.provider)
			}
			rec := httptest.NewRecorder()
			mw(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		})
	}
}

func TestGetAuthContext_NotSet(t *testing.T) {
	if a := GetAuthContext(context.Background()); a != nil {
		t.Errorf("Expected nil, got %+v", a)
	}
}

// =============================================================================
// CORS and rate limit Tests
// =============================================================================

func TestCORSMiddleware(t *testing.T) {
	wrapped := CORSMiddleware([]string{"https://login.example.test"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/verify", nil)
	req.Header.Set("Origin", "https://login.example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://login.example.test" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/verify", nil)
	req.Header.Set("Origin", "https://evil.example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Access-Control-Allow-Origin = %q", got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	wrapped := RateLimitMiddleware(2, time.Minute)(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/verify", nil)
		req.RemoteAddr = "203.0.113.9:4100"
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	// A different client has its own budget.
	req := httptest.NewRequest(http.MethodPost, "/verify", nil)
	req.RemoteAddr = "198.51.100.4:4100"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other client status = %d", rec.Code)
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	wrapped := RateLimitMiddleware(0, time.Minute)(okHandler)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verify", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
}

// =============================================================================
// LoggingMiddleware Tests
// =============================================================================

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Get("/admin/verification-logs/{id}", func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "log_id", chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/verification-logs/abc", nil))

	output := buf.String()
	for _, want := range []string{"msg=http_request", "path=/admin/verification-logs/abc", "route=/admin/verification-logs/{id}", "log_id=abc", "status=200"} {
		if !strings.Contains(output, want) {
			t.Errorf("log output missing %q: %s", want, output)
		}
	}
	if strings.Count(output, "http_request") != 1 {
		t.Errorf("expected one log line, got: %s", output)
	}
}

func TestLoggingMiddleware_ServerErrorLevel(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddError(r.Context(), errors.New("store offline"))
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	LoggingMiddleware(logger)(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verify", nil))

	output := buf.String()
	if !strings.Contains(output, "level=ERROR") || !strings.Contains(output, `error="store offline"`) {
		t.Errorf("unexpected log output: %s", output)
	}
}

func TestAddLogField_EmptyValueAndNoContext(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "empty_field", "")
		AddError(r.Context(), nil)
		w.WriteHeader(http.StatusOK)
	})
	LoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Contains(buf.String(), "empty_field") || strings.Contains(buf.String(), "error=") {
		t.Errorf("unexpected fields: %s", buf.String())
	}

	// Should not panic without the middleware.
	AddLogField(context.Background(), "key", "value")
	AddError(context.Background(), errors.New("x"))
}

// =============================================================================
// Server Tests
// =============================================================================

func TestServer_RealIPAndRecoverer(t *testing.T) {
	srv := New(config.ServerConfig{Port: 0, RequestTimeout: time.Second}, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))

	var seenAddr string
	srv.Router.Get("/ip", func(w http.ResponseWriter, r *http.Request) {
		seenAddr = r.RemoteAddr
		w.WriteHeader(http.StatusOK)
	})
	srv.Router.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/ip", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if seenAddr != "203.0.113.50" {
		t.Errorf("RemoteAddr = %q, want forwarded address", seenAddr)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("panic status = %d, want 500", rec.Code)
	}
}

func TestServer_ServeShutdown(t *testing.T) {
	srv := New(config.ServerConfig{}, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))
	srv.Router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	ts := httptest.NewUnstartedServer(nil)
	ln := ts.Listener
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
