// Package server exposes live swarms and Prometheus metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShayCichocki/swarmer/internal/registry"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// Server serves the read-only observation API.
type Server struct {
	reg      *registry.Registry
	gatherer prometheus.Gatherer
	srv      *http.Server
}

// New creates a server over reg. A nil gatherer serves the default registry.
func New(reg *registry.Registry, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{reg: reg, gatherer: gatherer}
}

// Handler returns the routes:
//
//	GET /metrics                 Prometheus exposition
//	GET /swarms                  summaries of registered swarms
//	GET /swarms/{id}             full snapshot
//	GET /swarms/{id}/events      coordination log, ?since=<seq> for newer entries
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Route("/swarms", func(r chi.Router) {
		r.Get("/", s.listSwarms)
		r.Get("/{id}", s.getSwarm)
		r.Get("/{id}/events", s.getEvents)
	})
	return r
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr asks for port 0.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[server] warning: %v", err)
		}
	}()
	log.Printf("[server] listening on %s", ln.Addr())
	return ln.Addr().String(), nil
}

// Shutdown stops a started server, waiting for open requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// SwarmSummary is the list view of one swarm.
type SwarmSummary struct {
	ID             string             `json:"id"`
	Label          string             `json:"label"`
	Status         models.SwarmStatus `json:"status"`
	RegisteredAt   time.Time          `json:"registered_at"`
	Agents         int                `json:"agents"`
	Tasks          int                `json:"tasks"`
	ActiveTasks    int                `json:"active_tasks"`
	CompletedTasks int                `json:"completed_tasks"`
	FailedTasks    int                `json:"failed_tasks"`
	Unallocated    int                `json:"unallocated"`
}

func (s *Server) listSwarms(w http.ResponseWriter, r *http.Request) {
	entries := s.reg.List()
	if r.URL.Query().Get("active") == "true" {
		entries = s.reg.ListActive()
	}
	out := make([]SwarmSummary, 0, len(entries))
	for _, e := range entries {
		st := e.State()
		out = append(out, SwarmSummary{
			ID:             e.ID,
			Label:          e.Label,
			Status:         st.Status,
			RegisteredAt:   e.RegisteredAt,
			Agents:         len(st.Agents),
			Tasks:          len(st.Tasks),
			ActiveTasks:    st.ActiveTasks,
			CompletedTasks: st.CompletedTasks,
			FailedTasks:    st.FailedTasks,
			Unallocated:    len(st.Unallocated),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getSwarm(w http.ResponseWriter, r *http.Request) {
	e, ok := s.reg.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "swarm not found")
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

type eventsResponse struct {
	Trimmed int                        `json:"trimmed"`
	Events  []models.CoordinationEvent `json:"events"`
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	e, ok := s.reg.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "swarm not found")
		return
	}
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "since must be a non-negative sequence number")
			return
		}
		since = n
	}
	st := e.State()
	events := make([]models.CoordinationEvent, 0, len(st.Events))
	for _, ev := range st.Events {
		if ev.Seq > since {
			events = append(events, ev)
		}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Trimmed: st.Trimmed, Events: events})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[server] warning: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
