package classifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/safehttp"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ClassifierConfig
		wantName string
		wantErr  bool
	}{
		{name: "default", cfg: config.ClassifierConfig{}, wantName: "static"},
		{name: "static", cfg: config.ClassifierConfig{Type: "static"}, wantName: "static"},
		{name: "webhook", cfg: config.ClassifierConfig{Type: "webhook", URL: "http://127.0.0.1:9/classify"}, wantName: "webhook"},
		{name: "webhook without url", cfg: config.ClassifierConfig{Type: "webhook"}, wantErr: true},
		{name: "unknown", cfg: config.ClassifierConfig{Type: "onnx"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if c.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", c.Name(), tt.wantName)
			}
		})
	}
}

func TestNew_WebhookDenyPrivateNetworks(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"is_bot":false}`))
	}))
	defer srv.Close()

	c, err := New(config.ClassifierConfig{
		Type:                "webhook",
		URL:                 srv.URL,
		Timeout:             time.Second,
		DenyPrivateNetworks: true,
	}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = c.Classify(context.Background(), &domain.ClassifierInput{SubmissionID: "sub-1"})
	if !errors.Is(err, domain.ErrClassifierUnavailable) || !errors.Is(err, safehttp.ErrPrivateAddress) {
		t.Fatalf("err = %v, want unavailable wrapping ErrPrivateAddress", err)
	}
	if calls != 0 {
		t.Errorf("server received %d calls", calls)
	}
}
