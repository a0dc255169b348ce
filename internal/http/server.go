// Package http exposes the series and occurrence API.
package http

import (
	"context"
	"net/http"
	"time"

	applog "cadenza/internal/log"
	"cadenza/internal/services"
)

type Server struct {
	http.Server

	seriesSvc     *services.SeriesService
	projectionSvc *services.ProjectionService
	summarySvc    *services.SummaryService
	window        services.WindowProvider

	ready func(ctx context.Context) error
}

// NewServer configures routes and returns a ready-to-run http.Server.
// ready is probed by /readyz; nil means always ready.
func NewServer(addr string, seriesSvc *services.SeriesService, projectionSvc *services.ProjectionService, summarySvc *services.SummaryService, window services.WindowProvider, logger *applog.Logger, ready func(ctx context.Context) error) *Server {
	mux := http.NewServeMux()

	s := &Server{
		seriesSvc:     seriesSvc,
		projectionSvc: projectionSvc,
		summarySvc:    summarySvc,
		window:        window,
		ready:         ready,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/series", s.handleCreateSeries)
	mux.HandleFunc("GET /api/series", s.handleListSeries)
	mux.HandleFunc("GET /api/series/{id}", s.handleGetSeries)
	mux.HandleFunc("GET /api/series/{id}/occurrences", s.handleSeriesOccurrences)
	mux.HandleFunc("PATCH /api/series/{id}", s.handleEditSeries)
	mux.HandleFunc("DELETE /api/series/{id}", s.handleDeleteSeries)

	mux.HandleFunc("GET /api/occurrences", s.handleUpcoming)
	mux.HandleFunc("GET /api/summary", s.handleSummary)

	var handler http.Handler = mux
	if logger != nil {
		handler = applog.Middleware(logger)(handler)
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
