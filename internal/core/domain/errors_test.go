package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "error with type and message",
			err:      &APIError{Type: ErrorTypeInvalidRequest, Message: "bad request"},
			expected: "invalid_request: bad request",
		},
		{
			name:     "error with type, code, and message",
			err:      &APIError{Type: ErrorTypeInvalidRequest, Code: ErrorCodeInvalidLimit, Message: "limit must be one of 10 25 50"},
			expected: "invalid_request (invalid_limit): limit must be one of 10 25 50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected int
	}{
		{"invalid request", ErrInvalidRequest("x"), http.StatusBadRequest},
		{"authentication", ErrAuthentication("x"), http.StatusUnauthorized},
		{"not found", ErrNotFound("x"), http.StatusNotFound},
		{"rate limit", ErrRateLimit("x"), http.StatusTooManyRequests},
		{"persistence", ErrPersistence("x"), http.StatusInternalServerError},
		{"server", ErrServer("x"), http.StatusInternalServerError},
		{"explicit status", &APIError{Type: ErrorTypeServer, StatusCode: http.StatusServiceUnavailable}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	storeErr := fmt.Errorf("submit: %w", &PersistenceError{Op: "append", Err: errors.New("disk full")})

	if got := ToAPIError(storeErr); got.Type != ErrorTypePersistence {
		t.Errorf("persistence error mapped to %q", got.Type)
	}
	if got := ToAPIError(ErrInvalidRequest("bad")); got.Type != ErrorTypeInvalidRequest {
		t.Errorf("api error mapped to %q", got.Type)
	}
	if got := ToAPIError(fmt.Errorf("get: %w", ErrLogNotFound)); got.HTTPStatusCode() != http.StatusNotFound {
		t.Errorf("missing log mapped to %d", got.HTTPStatusCode())
	}
	if got := ToAPIError(errors.New("boom")); got.Type != ErrorTypeServer {
		t.Errorf("plain error mapped to %q", got.Type)
	}
	if !IsPersistence(storeErr) {
		t.Error("IsPersistence() = false for wrapped PersistenceError")
	}
}
