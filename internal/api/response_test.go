package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   domain.ErrorType
		wantCode   domain.ErrorCode
	}{
		{
			name:       "invalid request",
			err:        domain.ErrInvalidRequest("bad page").WithCode(domain.ErrorCodeInvalidPage).WithParam("page"),
			wantStatus: http.StatusBadRequest,
			wantType:   domain.ErrorTypeInvalidRequest,
			wantCode:   domain.ErrorCodeInvalidPage,
		},
		{
			name:       "persistence",
			err:        &domain.PersistenceError{Op: "append", Err: errors.New("disk full")},
			wantStatus: http.StatusInternalServerError,
			wantType:   domain.ErrorTypePersistence,
			wantCode:   domain.ErrorCodeStoreUnavailable,
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   domain.ErrorTypeServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error == nil || body.Error.Type != tt.wantType || body.Error.Code != tt.wantCode {
				t.Errorf("error = %+v", body.Error)
			}
			if strings.Contains(rec.Body.String(), "disk full") || strings.Contains(rec.Body.String(), "boom") {
				t.Errorf("internal detail leaked: %s", rec.Body.String())
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name     string
		body     string
		maxBytes int64
		wantErr  bool
	}{
		{name: "valid", body: `{"name":"a"}`},
		{name: "empty", body: "", wantErr: true},
		{name: "malformed", body: `{"name":`, wantErr: true},
		{name: "too large", body: `{"name":"abcdefghij"}`, maxBytes: 8, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var dst payload
			err := DecodeJSON(rec, req, tt.maxBytes, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				apiErr := domain.ToAPIError(err)
				if apiErr.Code != domain.ErrorCodeInvalidBody || apiErr.HTTPStatusCode() != http.StatusBadRequest {
					t.Errorf("api error = %+v", apiErr)
				}
				return
			}
			if dst.Name != "a" {
				t.Errorf("Name = %q", dst.Name)
			}
		})
	}
}
