package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/engine"
	"github.com/phenomenon0/bet-copilot/pkg/metrics"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/breaker"
	"github.com/phenomenon0/bet-copilot/pkg/streaming"
	"github.com/phenomenon0/bet-copilot/tools"
)

// server exposes the runtime over HTTP.
type server struct {
	rt      *engine.Runtime
	watcher *engine.Watcher
	hub     *streaming.Hub
	metrics *metrics.CopilotMetrics
	logger  *log.Logger
	started time.Time
}

type statusResponse struct {
	Uptime    string                        `json:"uptime"`
	Breakers  []breaker.Snapshot            `json:"breakers"`
	Providers map[string][]string           `json:"providers"`
	LLMUsage  map[string]tools.CostSnapshot `json:"llm_usage"`
	Watcher   *engine.WatcherStatus         `json:"watcher,omitempty"`
	WSClients int                           `json:"ws_clients"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.With(middleware.Timeout(60*time.Second)).Post("/analyze", s.handleAnalyze)
	r.Get("/analyses/latest", s.handleLatest)
	r.Post("/breakers/{name}/open", s.handleBreaker(true))
	r.Post("/breakers/{name}/close", s.handleBreaker(false))
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeWS)
	}
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Breakers:  s.rt.Breakers(),
		Providers: s.rt.Providers(),
		LLMUsage:  s.rt.LLMUsage(),
	}
	if s.watcher != nil {
		st := s.watcher.Status()
		resp.Watcher = &st
	}
	if s.hub != nil {
		resp.WSClients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	a, err := s.rt.Aggregator.Analyze(r.Context(), req)
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("analysis failed", "home", req.HomeTeam, "away", req.AwayTeam, "err", err)
		if s.hub != nil {
			s.hub.BroadcastError(err, "analyze")
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.watcher == nil {
		writeError(w, http.StatusNotFound, "no fixtures are watched")
		return
	}
	out := make([]*engine.Analysis, 0)
	for _, f := range s.watcher.Status().Fixtures {
		if a, ok := s.watcher.Latest(f); ok {
			out = append(out, a)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleBreaker(open bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		b, ok := s.rt.Breaker(name)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown provider "+name)
			return
		}
		if open {
			b.ForceOpen()
		} else {
			b.ForceClose()
		}
		s.logger.Warn("breaker forced", "provider", name, "state", b.State())
		writeJSON(w, http.StatusOK, b.Snapshot())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
