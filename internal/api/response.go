// Package api holds the JSON codec shared by the HTTP handlers.
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

// DefaultMaxBodyBytes bounds request bodies when the caller passes no limit.
const DefaultMaxBodyBytes int64 = 1 << 20

// ErrorBody is the wire envelope for every error response.
type ErrorBody struct {
	Error *domain.APIError `json:"error"`
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError maps err onto an APIError and writes it. Internal detail never
// reaches the body; callers log the original error.
func WriteError(w http.ResponseWriter, err error) {
	apiErr := domain.ToAPIError(err)
	WriteJSON(w, apiErr.HTTPStatusCode(), ErrorBody{Error: apiErr})
}

// DecodeJSON reads a JSON body of at most maxBytes into dst. Failures come
// back as invalid_body APIErrors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.ErrInvalidRequest(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)).
				WithCode(domain.ErrorCodeInvalidBody)
		}
		return domain.ErrInvalidRequest("failed to read request body").WithCode(domain.ErrorCodeInvalidBody)
	}
	if len(data) == 0 {
		return domain.ErrInvalidRequest("request body is empty").WithCode(domain.ErrorCodeInvalidBody)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return domain.ErrInvalidRequest("request body is not valid JSON").WithCode(domain.ErrorCodeInvalidBody)
	}
	return nil
}
