package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tuchang/junit5"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
)

// Launcher is the part of junit5.Launcher served over HTTP.
type Launcher interface {
	Discover(ctx context.Context, req junit5.DiscoveryRequest) (*junit5.Plan, error)
	Execute(ctx context.Context, plan *junit5.Plan, listeners ...ports.ExecutionListener) (*junit5.Run, error)
	Watch(ctx context.Context) (<-chan string, error)
}

// Server exposes discovery, execution and stored results.
type Server struct {
	Launcher Launcher
	Results  ports.ResultStore
	Streams  *StreamManager

	gatherer prometheus.Gatherer
	version  string
	logger   *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithResults serves stored runs from store.
func WithResults(store ports.ResultStore) Option {
	return func(s *Server) {
		s.Results = store
	}
}

// WithMetrics serves GET /metrics from gatherer.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for launcher.
func NewHandler(launcher Launcher, opts ...Option) http.Handler {
	s := &Server{
		Launcher: launcher,
		Streams:  NewStreamManager(),
		version:  "dev",
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/plan", s.GetPlan)
	r.Get("/events", s.SubscribeEvents)
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.CreateRun)
		r.Get("/", s.ListRuns)
		r.Get("/{id}", s.GetRun)
		r.Delete("/{id}", s.DeleteRun)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RunRequest is the body of POST /runs.
type RunRequest struct {
	Selectors   []string          `json:"selectors,omitempty"`
	IncludeTags []string          `json:"include_tags,omitempty"`
	ExcludeTags []string          `json:"exclude_tags,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

func (rr RunRequest) discovery() (junit5.DiscoveryRequest, error) {
	req, err := junit5.NewRequest(rr.Selectors, rr.IncludeTags, rr.ExcludeTags)
	if err != nil {
		return req, err
	}
	req.Parameters = rr.Parameters
	return req, nil
}

// RunResponse describes a finished run.
type RunResponse struct {
	ID       string   `json:"id"`
	Summary  any      `json:"summary"`
	Recorded bool     `json:"recorded"`
	Warnings []string `json:"warnings,omitempty"`
}

// GetPlan handles GET /plan. Query parameters select, include_tag and
// exclude_tag may repeat.
func (s *Server) GetPlan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := RunRequest{
		Selectors:   q["select"],
		IncludeTags: q["include_tag"],
		ExcludeTags: q["exclude_tag"],
	}.discovery()
	if err != nil {
		s.error(w, http.StatusBadRequest, "invalid request", err)
		return
	}

	plan, err := s.Launcher.Discover(r.Context(), req)
	if err != nil {
		s.error(w, statusOf(err), "discovery failed", err)
		return
	}
	s.json(w, http.StatusOK, plan)
}

// CreateRun handles POST /runs. The run executes before the response is
// written; its events are broadcast to GET /events subscribers.
func (s *Server) CreateRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.error(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}
	req, err := body.discovery()
	if err != nil {
		s.error(w, http.StatusBadRequest, "invalid request", err)
		return
	}

	plan, err := s.Launcher.Discover(r.Context(), req)
	if err != nil {
		s.error(w, statusOf(err), "discovery failed", err)
		return
	}
	if err := plan.Err(); err != nil {
		s.error(w, http.StatusUnprocessableEntity, "discovery failed", err)
		return
	}

	broadcast := &streamListener{streams: s.Streams}
	run, err := s.Launcher.Execute(r.Context(), plan, broadcast)
	if err != nil {
		s.error(w, statusOf(err), "execution failed", err)
		return
	}
	s.logger.Info("run finished", "run_id", run.ID, "failures", run.Summary.TotalFailureCount())

	resp := RunResponse{ID: run.ID, Summary: run.Summary, Recorded: run.Recorded}
	for _, warning := range plan.Warnings {
		resp.Warnings = append(resp.Warnings, warning.String())
	}
	s.json(w, http.StatusCreated, resp)
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	if s.Results == nil {
		s.error(w, http.StatusNotImplemented, "no result store", nil)
		return
	}
	runs, err := s.Results.Runs(r.Context())
	if err != nil {
		s.error(w, http.StatusInternalServerError, "list runs failed", err)
		return
	}
	if runs == nil {
		runs = []string{}
	}
	s.json(w, http.StatusOK, map[string][]string{"runs": runs})
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	if s.Results == nil {
		s.error(w, http.StatusNotImplemented, "no result store", nil)
		return
	}
	id := chi.URLParam(r, "id")
	records, err := s.Results.List(r.Context(), id)
	if err != nil {
		s.error(w, statusOf(err), "get run failed", err)
		return
	}
	s.json(w, http.StatusOK, map[string]any{"id": id, "results": records})
}

// DeleteRun handles DELETE /runs/{id}.
func (s *Server) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if s.Results == nil {
		s.error(w, http.StatusNotImplemented, "no result store", nil)
		return
	}
	if err := s.Results.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.error(w, statusOf(err), "delete run failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, map[string]string{
		"app":     "junit5-http",
		"version": strings.TrimSpace(s.version),
	})
}

// SubscribeEvents handles GET /events (SSE). By default it streams the
// execution events of every run; with ?watch=true it streams source changes.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.error(w, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	var events <-chan string
	if r.URL.Query().Get("watch") == "true" {
		changes, err := s.Launcher.Watch(r.Context())
		if err != nil {
			s.error(w, http.StatusNotImplemented, "watch unavailable", err)
			return
		}
		events = changes
	} else {
		ch, cancel := s.Streams.Subscribe()
		defer cancel()
		events = ch
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) json(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) error(w http.ResponseWriter, status int, msg string, err error) {
	body := map[string]string{"error": msg}
	if err != nil {
		body["detail"] = err.Error()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, "err", err)
	} else {
		s.logger.Warn(msg, "err", err)
	}
	s.json(w, status, body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, junit5.ErrPlanExecuted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// StreamManager fans execution events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan string]struct{}),
		logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
}

func (sm *StreamManager) Subscribe() (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 64)
	sm.subscribers[ch] = struct{}{}
	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

func (sm *StreamManager) Broadcast(msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE client buffer full, dropping message")
		}
	}
}

// Event is the SSE payload of one execution event.
type Event struct {
	Type        string `json:"type"`
	UniqueID    string `json:"unique_id"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type streamListener struct {
	ports.NopListener
	streams *StreamManager
}

func (l *streamListener) send(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	l.streams.Broadcast(string(data))
}

func (l *streamListener) ExecutionStarted(d *domain.Descriptor) {
	l.send(Event{Type: "started", UniqueID: d.UniqueID().String(), DisplayName: d.DisplayName()})
}

func (l *streamListener) ExecutionSkipped(d *domain.Descriptor, reason string) {
	l.send(Event{Type: "skipped", UniqueID: d.UniqueID().String(), DisplayName: d.DisplayName(), Reason: reason})
}

func (l *streamListener) ExecutionFinished(d *domain.Descriptor, result domain.Result) {
	e := Event{Type: "finished", UniqueID: d.UniqueID().String(), DisplayName: d.DisplayName(), Status: result.Status.String()}
	if err := result.Err(); err != nil {
		e.Reason = err.Error()
	}
	l.send(e)
}

func (l *streamListener) DynamicTestRegistered(d *domain.Descriptor) {
	l.send(Event{Type: "dynamic", UniqueID: d.UniqueID().String(), DisplayName: d.DisplayName()})
}
