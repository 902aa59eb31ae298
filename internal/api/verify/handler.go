// Package verify serves POST /verify.
package verify

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/tjfontaine/behavior-verify-gateway/internal/api"
	"github.com/tjfontaine/behavior-verify-gateway/internal/server"
	"github.com/tjfontaine/behavior-verify-gateway/internal/submission"
	"github.com/tjfontaine/behavior-verify-gateway/internal/validation"
)

// Submitter records a submission.
type Submitter interface {
	Submit(ctx context.Context, req *submission.Request) (*submission.Result, error)
}

// Handler decodes and validates the body, then hands it to the Submitter.
type Handler struct {
	submitter    Submitter
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewHandler creates a /verify handler. A non-positive maxBodyBytes uses
// api.DefaultMaxBodyBytes.
func NewHandler(s Submitter, maxBodyBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{submitter: s, maxBodyBytes: maxBodyBytes, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req validation.VerifyRequest
	if err := api.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		server.AddError(ctx, err)
		api.WriteError(w, err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		server.AddError(ctx, verr)
		api.WriteError(w, verr.ToAPIError())
		return
	}
	server.AddLogField(ctx, "submission_id", req.SubmissionID)

	res, err := h.submitter.Submit(ctx, &submission.Request{
		SubmissionID: req.SubmissionID,
		Payload:      req.UserBehaviorData,
		IPAddress:    clientIP(r),
		UserAgent:    r.Header.Get("User-Agent"),
	})
	if err != nil {
		server.AddError(ctx, err)
		h.logger.ErrorContext(ctx, "verification submission failed",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("submission_id", req.SubmissionID),
			slog.String("error", err.Error()),
		)
		api.WriteError(w, err)
		return
	}

	server.AddLogField(ctx, "log_id", string(res.LogID))
	api.WriteJSON(w, http.StatusOK, submission.VerifyResponse{
		Message:      "Success",
		LogID:        string(res.LogID),
		SubmissionID: res.SubmissionID,
	})
}

// clientIP strips the port from RemoteAddr. chi's RealIP may already have
// replaced it with a bare address.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
