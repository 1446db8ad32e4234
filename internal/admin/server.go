// Package admin serves read-only runtime stats and submission history.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/mealgen/internal/server"
	"github.com/tjfontaine/mealgen/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Options wires the admin server to the running app.
type Options struct {
	// Store may be nil when history is disabled.
	Store    storage.SubmissionStore
	Sessions func() int
	InFlight func() int64
}

type Server struct {
	router    *chi.Mux
	startTime time.Time
	opts      Options
}

func NewServer(opts Options) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		opts:      opts,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/stats", s.handleStats)
	s.router.Get("/api/history", s.handleHistory)
	s.router.Get("/api/history/{id}", s.handleSubmission)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type StatsResponse struct {
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	Memory       MemoryStats `json:"memory"`
	Sessions     int         `json:"sessions"`
	InFlight     int64       `json:"in_flight"`
	History      bool        `json:"history_enabled"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := StatsResponse{
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
		History: s.opts.Store != nil,
	}
	if s.opts.Sessions != nil {
		stats.Sessions = s.opts.Sessions()
	}
	if s.opts.InFlight != nil {
		stats.InFlight = s.opts.InFlight()
	}

	writeJSON(w, http.StatusOK, stats)
}

type HistoryResponse struct {
	Submissions []*storage.Submission `json:"submissions"`
	Limit       int                   `json:"limit"`
	Offset      int                   `json:"offset"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusNotFound, "submission history is disabled")
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultHistoryLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxHistoryLimit)

	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	subs, err := s.opts.Store.ListSubmissions(r.Context(), storage.ListOptions{
		Generator: q.Get("generator"),
		SessionID: q.Get("session_id"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	if subs == nil {
		subs = []*storage.Submission{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{Submissions: subs, Limit: limit, Offset: offset})
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusNotFound, "submission history is disabled")
		return
	}

	sub, err := s.opts.Store.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to load submission")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
