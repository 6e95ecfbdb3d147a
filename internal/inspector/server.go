// Package inspector serves run status, stored results and live run events
// over HTTP.
package inspector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cgast/prowrite/pkg/bench"
	"github.com/cgast/prowrite/pkg/events"
	"github.com/cgast/prowrite/pkg/store"
)

// RunSource is the read side of the results store.
type RunSource interface {
	ListRuns() ([]store.RunInfo, error)
	LoadReport(runID string) (bench.SuiteReport, error)
	Results(runID string) ([]bench.TaskResult, error)
}

// Server is the inspector HTTP + SSE server.
type Server struct {
	bus       events.Bus
	runs      RunSource
	mux       *http.ServeMux
	clients   map[*sseClient]bool
	clientsMu sync.Mutex
	startTime time.Time
	logger    *slog.Logger
}

// sseClient represents a connected event stream.
type sseClient struct {
	send chan []byte
}

// New creates a new inspector server. runs may be nil when no store is
// configured; gatherer may be nil to omit /metrics.
func New(bus events.Bus, runs RunSource, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		bus:       bus,
		runs:      runs,
		mux:       http.NewServeMux(),
		clients:   make(map[*sseClient]bool),
		startTime: time.Now(),
		logger:    logger,
	}

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	if gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves on port until ctx is done.
func (s *Server) Start(ctx context.Context, port int) error {
	ch := s.bus.Subscribe()
	go s.broadcastEvents(ch)
	defer s.bus.Unsubscribe(ch)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("inspector listening", slog.Int("port", port))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// StartAsync starts the server in a goroutine and returns immediately.
func (s *Server) StartAsync(ctx context.Context, port int) {
	go func() {
		if err := s.Start(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("inspector stopped", slog.String("error", err.Error()))
		}
	}()
}

func (s *Server) broadcastEvents(ch <-chan events.Event) {
	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}

		s.clientsMu.Lock()
		for client := range s.clients {
			select {
			case client.send <- data:
			default:
				// Client is slow, drop the event.
			}
		}
		s.clientsMu.Unlock()
	}
}

// handleEvents streams run events as Server-Sent Events, starting with the
// retained history.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client := &sseClient{send: make(chan []byte, 64)}
	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client)
		s.clientsMu.Unlock()
	}()

	for _, ev := range s.bus.History(time.Time{}) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-client.send:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Status summarizes activity seen on the bus.
type Status struct {
	Uptime       string `json:"uptime"`
	Events       int    `json:"events"`
	RunsStarted  int    `json:"runs_started"`
	RunsFinished int    `json:"runs_finished"`
	TasksScored  int    `json:"tasks_scored"`
	TasksFailed  int    `json:"tasks_failed"`
	CurrentRun   string `json:"current_run,omitempty"`
}

func (s *Server) status() Status {
	history := s.bus.History(time.Time{})
	st := Status{Uptime: time.Since(s.startTime).Round(time.Second).String(), Events: len(history)}
	open := make(map[string]bool)
	for _, ev := range history {
		switch ev.Type {
		case events.EventRunStart:
			st.RunsStarted++
			open[ev.RunID] = true
			st.CurrentRun = ev.RunID
		case events.EventRunEnd:
			st.RunsFinished++
			delete(open, ev.RunID)
		case events.EventTaskEnd:
			st.TasksScored++
		case events.EventTaskFailed:
			st.TasksFailed++
		}
	}
	if !open[st.CurrentRun] {
		st.CurrentRun = ""
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, []store.RunInfo{})
		return
	}
	runs, err := s.runs.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []store.RunInfo{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// runProgress is returned for a run that has results but no report yet.
type runProgress struct {
	RunID      string             `json:"run_id"`
	InProgress bool               `json:"in_progress"`
	Results    []bench.TaskResult `json:"results"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.runs == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("run %s: %w", id, store.ErrNotFound))
		return
	}

	report, err := s.runs.LoadReport(id)
	if err == nil {
		writeJSON(w, http.StatusOK, report)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	results, rerr := s.runs.Results(id)
	if rerr != nil {
		writeError(w, http.StatusInternalServerError, rerr)
		return
	}
	if len(results) == 0 {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, runProgress{RunID: id, InProgress: true, Results: results})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
