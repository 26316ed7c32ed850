// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/FairForge/spancache/internal/cache"
	"github.com/FairForge/spancache/internal/engine"
	"github.com/FairForge/spancache/internal/labeling"
	"github.com/FairForge/spancache/internal/predict"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type snapshotResponse struct {
	Entries   []cache.SnapshotItem   `json:"entries"`
	Stats     cache.Stats            `json:"stats"`
	HitRate   float64                `json:"hitRate"`
	Hydration *cache.HydrationReport `json:"hydration,omitempty"`
}

type predictionsResponse struct {
	Predictions []predict.Candidate `json:"predictions"`
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "RequestTooLarge", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "InvalidRequest", "failed to read request body")
		return
	}
	if err := validateLabelRequest(body); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	var payload labeling.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	resp, err := s.engine.Label(r.Context(), payload)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var labelErr *engine.LabelError
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case errors.Is(err, engine.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "ServiceUnavailable", err.Error())
	case errors.As(err, &labelErr):
		writeError(w, http.StatusBadGateway, "LabelerError", "labeling service failed")
	default:
		s.logger.Error("unexpected engine error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "InternalError", "internal error")
	}
}

func (s *Server) handleCacheSnapshot(w http.ResponseWriter, r *http.Request) {
	stats := s.cache.Stats()
	resp := snapshotResponse{
		Entries: s.cache.GetSnapshot(),
		Stats:   stats,
		HitRate: stats.HitRate(),
	}
	if report, ok := s.cache.LastHydration(); ok {
		resp.Hydration = &report
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheHydrate(w http.ResponseWriter, r *http.Request) {
	s.cache.Hydrate()
	if err := s.cache.WaitHydrated(r.Context()); err != nil {
		writeError(w, http.StatusGatewayTimeout, "HydrationPending", "hydration still running")
		return
	}
	report, _ := s.cache.LastHydration()
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, predictionsResponse{Predictions: s.predictor.GetPredictions()})
}

func (s *Server) handlePredictionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.predictor.GetStats())
}

func (s *Server) handlePreWarm(w http.ResponseWriter, r *http.Request) {
	s.engine.PreWarm(r.Context())
	writeJSON(w, http.StatusOK, s.predictor.GetStats())
}

func (s *Server) handlePredictionsClear(w http.ResponseWriter, r *http.Request) {
	s.predictor.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
