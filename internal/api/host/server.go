// Package host exposes the agent's pipeline and version store to local
// processes over HTTP.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/server"
	"github.com/tjfontaine/polyglot-telemetry/internal/versioning"
)

// maxBodyBytes bounds request bodies, content snapshots included.
const maxBodyBytes = 8 << 20

// Events is the pipeline surface served by the host.
type Events interface {
	RecordEvent(in domain.EventInput)
	UpdateGlobalContext(u domain.ContextUpdate)
	Flush(ctx context.Context) error
	Len() int
}

// Versions is the version store surface served by the host.
type Versions interface {
	CaptureVersion(ctx context.Context, req versioning.CaptureRequest) (*domain.VersionRecord, error)
	GetVersions(ctx context.Context, contentRef string) ([]*domain.VersionRecord, error)
	GetAllVersions(ctx context.Context) ([]*domain.VersionRecord, error)
	GetVersionContent(ctx context.Context, versionID string) (string, error)
	RevertToVersion(ctx context.Context, versionID string) (string, error)
	GenerateDiff(oldContent, newContent string) string
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

type Server struct {
	router    *chi.Mux
	startTime time.Time
	events    Events
	versions  Versions
	metrics   http.Handler
}

func NewServer(events Events, versions Versions, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		events:    events,
		versions:  versions,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/stats", s.handleStats)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Post("/v1/events", s.handleRecordEvent)
	s.router.Patch("/v1/context", s.handleUpdateContext)
	s.router.Post("/v1/flush", s.handleFlush)

	s.router.Post("/v1/versions", s.handleCaptureVersion)
	s.router.Get("/v1/versions", s.handleListVersions)
	s.router.Get("/v1/versions/{version_id}/content", s.handleVersionContent)
	s.router.Post("/v1/versions/{version_id}/revert", s.handleRevert)
	s.router.Post("/v1/diff", s.handleDiff)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type StatsResponse struct {
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	QueueLength  int         `json:"queue_length"`
	Memory       MemoryStats `json:"memory"`
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

	writeJSON(w, http.StatusOK, StatsResponse{
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		QueueLength:  s.events.Len(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	})
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var in domain.EventInput
	if !decodeBody(w, r, &in) {
		return
	}
	if in.EventType == "" || in.InteractionType == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("eventType and interactionType are required"))
		return
	}
	s.events.RecordEvent(in)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleUpdateContext(w http.ResponseWriter, r *http.Request) {
	var u domain.ContextUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	s.events.UpdateGlobalContext(u)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	err := s.events.Flush(r.Context())
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrDrainInFlight):
		writeError(w, r, http.StatusConflict, err)
	case errors.Is(err, domain.ErrPipelineClosed):
		writeError(w, r, http.StatusServiceUnavailable, err)
	default:
		writeError(w, r, http.StatusBadGateway, err)
	}
}

func (s *Server) handleCaptureVersion(w http.ResponseWriter, r *http.Request) {
	var req versioning.CaptureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.versions.CaptureVersion(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, rec)
	case errors.Is(err, domain.ErrInvalidVersion):
		writeError(w, r, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrStorageExhausted):
		writeError(w, r, http.StatusInsufficientStorage, err)
	default:
		writeError(w, r, http.StatusInternalServerError, err)
	}
}

// VersionListResponse is the response for listing versions
type VersionListResponse struct {
	Versions []*domain.VersionRecord `json:"versions"`
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	var (
		recs []*domain.VersionRecord
		err  error
	)
	if ref := r.URL.Query().Get("ref"); ref != "" {
		recs, err = s.versions.GetVersions(r.Context(), ref)
	} else {
		recs, err = s.versions.GetAllVersions(r.Context())
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, VersionListResponse{Versions: recs})
}

func (s *Server) handleVersionContent(w http.ResponseWriter, r *http.Request) {
	content, err := s.versions.GetVersionContent(r.Context(), chi.URLParam(r, "version_id"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(content))
}

type RevertResponse struct {
	Content string `json:"content"`
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	content, err := s.versions.RevertToVersion(r.Context(), chi.URLParam(r, "version_id"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RevertResponse{Content: content})
}

type DiffRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type DiffResponse struct {
	Diff string `json:"diff"`
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req DiffRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, DiffResponse{Diff: s.versions.GenerateDiff(req.Old, req.New)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	writeError(w, r, http.StatusInternalServerError, err)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	server.AddError(r.Context(), err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
