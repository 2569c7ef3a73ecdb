// Package server exposes the banter gateway over HTTP.
//
// DESIGN: Thin layer: decode, validate, call the engine, encode. All
// pipeline behavior lives in internal/engine; handlers never reach
// around it. Routes:
//   - POST /v1/generate          generate one NPC reply
//   - GET  /healthz              health and pipeline snapshot
//   - GET  /v1/quality           aggregated quality report
//   - POST /v1/cache/invalidate  drop cached replies for a speaker
//   - GET  /ws/events            live interaction feed (websocket)
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/questline/banter-gateway/internal/config"
	"github.com/questline/banter-gateway/internal/engine"
	"github.com/questline/banter-gateway/internal/monitoring"
)

// Server is the HTTP front end for the engine.
type Server struct {
	cfg     *config.Config
	engine  *engine.Engine
	tracker *monitoring.Tracker
	httpSrv *http.Server
}

// New builds a Server with its routes registered.
func New(cfg *config.Config, eng *engine.Engine, tracker *monitoring.Tracker) *Server {
	s := &Server{cfg: cfg, engine: eng, tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/generate", s.handleGenerate)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/quality", s.handleQuality)
	mux.HandleFunc("/v1/cache/invalidate", s.handleInvalidate)
	mux.HandleFunc("/ws/events", s.handleEvents)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout.D(),
		WriteTimeout: cfg.Server.WriteTimeout.D(),
	}
	return s
}

// Handler exposes the route mux for in-process test servers.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.httpSrv.Addr).Msg("banter gateway listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": msg, "type": "gateway_error"},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleGenerate runs one request through the generation pipeline.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CharacterID == "" || req.Intent == "" {
		writeError(w, "character_id and intent are required", http.StatusBadRequest)
		return
	}
	if req.IntentCtx.Goal == "" {
		writeError(w, "intent_context.goal is required", http.StatusBadRequest)
		return
	}

	resp := s.engine.Generate(r.Context(), &req)
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth returns the pipeline health snapshot.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health()
	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// handleQuality aggregates recent interactions into a quality report.
func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	limit := 500
	if v := r.URL.Query().Get("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit < 1 || limit > 5000 {
			writeError(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}
	records, err := s.tracker.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("quality report query failed")
		writeError(w, "interaction store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, monitoring.BuildReport(records))
}

// handleInvalidate drops cached replies for one speaker. Used when a
// speaker's voice profile or bank is redeployed mid-session.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		Speaker string `json:"speaker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Speaker == "" {
		writeError(w, "speaker is required", http.StatusBadRequest)
		return
	}

	evicted := s.engine.InvalidateSpeaker(req.Speaker)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"speaker":   req.Speaker,
		"evicted":   evicted,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
