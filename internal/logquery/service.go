// Package logquery serves paginated reads of the verification log.
package logquery

import (
	"context"
	"fmt"
	"time"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
	"github.com/tjfontaine/behavior-verify-gateway/internal/metrics"
)

// AllowedLimits are the accepted page sizes.
var AllowedLimits = []int{10, 25, 50}

// Page is one page of logs.
type Page struct {
	Logs       []*domain.VerificationLog `json:"logs"`
	TotalPages int                       `json:"total_pages"`
	Page       int                       `json:"page"`
	Limit      int                       `json:"limit"`
	Total      int                       `json:"total"`
}

// Service reads from a LogReader. Page and limit are checked here so a bad
// request never reaches the store.
type Service struct {
	store ports.LogReader
}

func NewService(store ports.LogReader) *Service {
	return &Service{store: store}
}

// List returns page (1-based) of size limit, newest first. A page past the
// end is empty, not an error. total_pages is computed from a separate count
// and may trail a concurrent append by one page.
func (s *Service) List(ctx context.Context, page, limit int, filter domain.LogFilter) (*Page, error) {
	if page < 1 {
		return nil, domain.ErrInvalidRequest("page must be an integer >= 1").
			WithCode(domain.ErrorCodeInvalidPage).WithParam("page")
	}
	if !validLimit(limit) {
		return nil, domain.ErrInvalidRequest("limit must be one of 10, 25, 50").
			WithCode(domain.ErrorCodeInvalidLimit).WithParam("limit")
	}

	start := time.Now()
	total, err := s.store.CountLogs(ctx, filter)
	metrics.ObserveStore("count", start)
	if err != nil {
		return nil, fmt.Errorf("count logs: %w", err)
	}

	result := &Page{
		Logs:       []*domain.VerificationLog{},
		TotalPages: TotalPages(total, limit),
		Page:       page,
		Limit:      limit,
		Total:      total,
	}
	if page > result.TotalPages {
		return result, nil
	}

	start = time.Now()
	logs, err := s.store.ListLogs(ctx, domain.LogListOptions{
		Filter: filter,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	metrics.ObserveStore("list", start)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	if logs != nil {
		result.Logs = logs
	}
	return result, nil
}

// Get returns one log.
func (s *Service) Get(ctx context.Context, id domain.LogID) (*domain.VerificationLog, error) {
	if id == "" {
		return nil, domain.ErrInvalidRequest("log id is required").WithParam("id")
	}
	start := time.Now()
	defer metrics.ObserveStore("get", start)
	return s.store.GetLog(ctx, id)
}

// Stats returns verdict totals.
func (s *Service) Stats(ctx context.Context) (*domain.LogStats, error) {
	start := time.Now()
	defer metrics.ObserveStore("stats", start)
	return s.store.Stats(ctx)
}

// TotalPages is ceil(total / limit).
func TotalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

func validLimit(limit int) bool {
	for _, l := range AllowedLimits {
		if l == limit {
			return true
		}
	}
	return false
}
