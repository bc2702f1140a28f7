// Package server exposes the read-only HTTP API: aggregated snapshots, trade
// history and Prometheus metrics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/collector"
	"github.com/quantfold/basisarb/internal/record"
)

type Server struct {
	store *collector.Store
	repo  *record.Repository
}

func New(store *collector.Store, repo *record.Repository) *Server {
	return &Server{store: store, repo: repo}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/perp-snapshots", s.handlePerps).Methods(http.MethodGet)
	r.HandleFunc("/spot-snapshots", s.handleSpots).Methods(http.MethodGet)
	r.HandleFunc("/unified-snapshots", s.handleUnified).Methods(http.MethodGet)
	r.HandleFunc("/trade-records", s.handleTrades).Methods(http.MethodGet)
	r.HandleFunc("/position-records", s.handlePositions).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// ListenAndServe blocks serving the API on the given port.
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("http server listening")
	return srv.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePerps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Perps())
}

func (s *Server) handleSpots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Spots())
}

func (s *Server) handleUnified(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Unified())
}

func (s *Server) handleTrades(w http.ResponseWriter, _ *http.Request) {
	if s.repo == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "repository not initialized"})
		return
	}
	records, err := s.repo.Trades(100)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch trade records")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	if s.repo == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "repository not initialized"})
		return
	}
	records, err := s.repo.Positions(100)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch position records")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}
