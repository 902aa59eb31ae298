package validation

import (
	"net/url"
	"strconv"

	"github.com/tjfontaine/behavior-verify-gateway/internal/collector"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

// Pagination defaults for the log list.
const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// FormData is the login form half of a /verify body. The credential proof is
// checked for presence only; it is never persisted.
type FormData struct {
	Identifier      string `json:"identifier" validate:"required,max=256"`
	CredentialProof string `json:"credentialProof" validate:"required,max=4096"`
}

// VerifyRequest is the /verify body.
type VerifyRequest struct {
	// SubmissionID is a client-generated idempotency key. Optional.
	SubmissionID     string                     `json:"submissionId,omitempty" validate:"omitempty,max=128"`
	FormData         FormData                   `json:"formData"`
	UserBehaviorData *collector.BehaviorPayload `json:"userBehaviorData" validate:"required"`
}

// ListQuery holds the admin log list parameters.
type ListQuery struct {
	Page  int    `query:"page" validate:"gte=1"`
	Limit int    `query:"limit" validate:"oneof=10 25 50"`
	IsBot string `query:"is_bot" validate:"omitempty,oneof=true false unknown"`
	IP    string `query:"ip" validate:"omitempty,ip"`
}

// Filter converts the optional filters to a store filter.
func (q ListQuery) Filter() domain.LogFilter {
	return domain.LogFilter{
		Verdict:   domain.VerdictFilter(q.IsBot),
		IPAddress: q.IP,
	}
}

// ParseListQuery reads and validates page, limit, is_bot and ip. Missing page
// and limit take their defaults; present but malformed values are errors,
// never clamped.
func ParseListQuery(values url.Values) (ListQuery, *RequestValidationError) {
	q := ListQuery{
		Page:  DefaultPage,
		Limit: DefaultLimit,
		IsBot: values.Get("is_bot"),
		IP:    values.Get("ip"),
	}

	var parseErrs []FieldError
	if raw, ok := lookup(values, "page"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			parseErrs = append(parseErrs, FieldError{Field: "page", Tag: "int", Message: "page must be an integer"})
		}
		q.Page = n
	}
	if raw, ok := lookup(values, "limit"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			parseErrs = append(parseErrs, FieldError{Field: "limit", Tag: "int", Message: "limit must be an integer"})
		}
		q.Limit = n
	}
	if len(parseErrs) > 0 {
		return q, &RequestValidationError{errors: parseErrs}
	}

	if verr := ValidateStruct(q); verr != nil {
		return q, verr
	}
	return q, nil
}

func lookup(values url.Values, key string) (string, bool) {
	if !values.Has(key) {
		return "", false
	}
	return values.Get(key), true
}
