// Package controlplane serves the admin console's read API over the
// verification log store.
package controlplane

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/behavior-verify-gateway/internal/api"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/logquery"
	"github.com/tjfontaine/behavior-verify-gateway/internal/server"
	"github.com/tjfontaine/behavior-verify-gateway/internal/validation"
)

type Server struct {
	router    *chi.Mux
	startTime time.Time
	logs      *logquery.Service
	storage   string
}

// NewServer builds the admin routes. storageType is reported by the stats
// endpoint.
func NewServer(logs *logquery.Service, storageType string) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		logs:      logs,
		storage:   storageType,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/verification-logs", s.handleListLogs)
	s.router.Get("/verification-logs/{log_id}", s.handleLogDetail)
	s.router.Get("/verification-stats", s.handleStats)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q, verr := validation.ParseListQuery(r.URL.Query())
	if verr != nil {
		server.AddError(r.Context(), verr)
		api.WriteError(w, verr.ToAPIError())
		return
	}

	page, err := s.logs.List(r.Context(), q.Page, q.Limit, q.Filter())
	if err != nil {
		server.AddError(r.Context(), err)
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, page)
}

func (s *Server) handleLogDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "log_id")
	server.AddLogField(r.Context(), "log_id", id)

	log, err := s.logs.Get(r.Context(), domain.LogID(id))
	if err != nil {
		server.AddError(r.Context(), err)
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, log)
}

type StatsResponse struct {
	Logs         *domain.LogStats `json:"logs"`
	Storage      string           `json:"storage"`
	Uptime       string           `json:"uptime"`
	GoVersion    string           `json:"go_version"`
	NumGoroutine int              `json:"num_goroutine"`
	Memory       MemoryStats      `json:"memory"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.logs.Stats(r.Context())
	if err != nil {
		server.AddError(r.Context(), err)
		api.WriteError(w, err)
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	api.WriteJSON(w, http.StatusOK, StatsResponse{
		Logs:         stats,
		Storage:      s.storage,
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	})
}
