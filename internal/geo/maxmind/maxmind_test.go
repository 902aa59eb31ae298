package maxmind

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{AccountID: "42"}); err == nil {
		t.Error("expected error without license key")
	}
	if _, err := New(Config{LicenseKey: "secret"}); err == nil {
		t.Error("expected error without account id")
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  error
		wantFail bool
		wantLat  float64
		wantAcc  float64
	}{
		{
			name:    "city",
			status:  http.StatusOK,
			body:    `{"city":{"names":{"en":"Amsterdam"}},"location":{"latitude":52.37,"longitude":4.9,"accuracy_radius":20}}`,
			wantLat: 52.37,
			wantAcc: 20000,
		},
		{
			name:    "no location",
			status:  http.StatusOK,
			body:    `{"country":{"iso_code":"NL"}}`,
			wantErr: domain.ErrLocationUnknown,
		},
		{
			name:    "not found code",
			status:  http.StatusNotFound,
			body:    `{"code":"IP_ADDRESS_NOT_FOUND","error":"not in database"}`,
			wantErr: domain.ErrLocationUnknown,
		},
		{
			name:    "bare 404",
			status:  http.StatusNotFound,
			body:    ``,
			wantErr: domain.ErrLocationUnknown,
		},
		{
			name:     "bad credentials",
			status:   http.StatusUnauthorized,
			body:     `{"code":"AUTHORIZATION_INVALID","error":"bad key"}`,
			wantFail: true,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `oops`,
			wantFail: true,
		},
		{
			name:     "malformed body",
			status:   http.StatusOK,
			body:     `{"location":`,
			wantFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user, pass, ok := r.BasicAuth()
				if !ok || user != "42" || pass != "secret" {
					t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
				}
				if !strings.HasSuffix(r.URL.Path, "/city/203.0.113.5") {
					t.Errorf("path = %q", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			res, err := New(Config{AccountID: "42", LicenseKey: "secret", URL: srv.URL + "/city/"}, WithLogger(quietLogger()))
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			geo, err := res.Lookup(context.Background(), "203.0.113.5")
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantFail:
				if err == nil || errors.Is(err, domain.ErrLocationUnknown) {
					t.Fatalf("error = %v, want a call failure", err)
				}
			default:
				if err != nil {
					t.Fatalf("Lookup failed: %v", err)
				}
				if geo.Latitude != tt.wantLat || geo.Accuracy != tt.wantAcc {
					t.Errorf("geo = %+v, want latitude %v accuracy %v", geo, tt.wantLat, tt.wantAcc)
				}
			}
		})
	}
}

func TestLookup_SkipsUnroutable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := New(Config{AccountID: "42", LicenseKey: "secret", URL: srv.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, ip := range []string{"10.1.2.3", "127.0.0.1", "fe80::1", "::", "not-an-ip"} {
		if _, err := res.Lookup(context.Background(), ip); !errors.Is(err, domain.ErrLocationUnknown) {
			t.Errorf("Lookup(%q) error = %v, want ErrLocationUnknown", ip, err)
		}
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("server called %d times, want 0", n)
	}
}
