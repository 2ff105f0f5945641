// Package web provides an HTTP status server for the floor-mixer daemon,
// plus an HTTP mirror of the remote setpoint/telemetry channel.
package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sweeney/floor-mixer/internal/journal"
	"github.com/sweeney/floor-mixer/internal/logger"
	"github.com/sweeney/floor-mixer/internal/status"
)

// maxFrameBody bounds a setpoint request body; valid frames are 28 bytes.
const maxFrameBody = 1024

// Responder answers the remote channel. bus.Responder implements it.
type Responder interface {
	Receive(payload []byte) bool
	Request() []byte
}

// Journal lists recent journal entries. journal.Store implements it.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Journal listing limits.
const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	responder  Responder
	journal    Journal
	log        *logger.Logger
}

// New creates a Server that reads state from the given tracker. history and
// metrics may be nil, in which case /journal and /metrics are not served.
func New(addr string, tracker *status.Tracker, responder Responder, history Journal, metrics http.Handler, log *logger.Logger) *Server {
	s := &Server{tracker: tracker, responder: responder, journal: history, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/telemetry", s.handleTelemetry).Methods(http.MethodGet)
	r.HandleFunc("/setpoint", s.handleSetpoint).Methods(http.MethodPost)
	if history != nil {
		r.HandleFunc("/journal", s.handleJournal).Methods(http.MethodGet)
	}
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	access := zap.NewStdLog(log.Desugar().Named("http")).Writer()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handlers.RecoveryHandler()(handlers.LoggingHandler(access, r)),
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(s.responder.Request())
}

// handleSetpoint mirrors a bus write: the caller always gets 204, whether
// or not the frame was accepted.
func (s *Server) handleSetpoint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBody))
	if err == nil {
		s.responder.Receive(body)
	}
	w.WriteHeader(http.StatusNoContent)
}

// journalEntryJSON is one row of the /journal listing.
type journalEntryJSON struct {
	ID      string  `json:"id"`
	At      string  `json:"at"`
	Kind    string  `json:"kind"`
	State   string  `json:"state,omitempty"`
	Mixed   float64 `json:"mixed"`
	Target  float64 `json:"target"`
	Diff    float64 `json:"diff"`
	PulseMs int64   `json:"pulse_ms"`
	Reason  string  `json:"reason,omitempty"`
}

// handleJournal lists the newest entries first; ?limit= caps the count.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxJournalLimit {
			http.Error(w, "limit must be 1 to "+strconv.Itoa(maxJournalLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.log.Errorw("journal listing failed", "err", err)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}

	out := make([]journalEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalEntryJSON{
			ID:      e.ID,
			At:      e.At.UTC().Format(time.RFC3339Nano),
			Kind:    e.Kind,
			State:   string(e.State),
			Mixed:   e.Mixed,
			Target:  e.Target,
			Diff:    e.Diff,
			PulseMs: e.PulseMs,
			Reason:  e.Reason,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
