// Package api exposes the prediction service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kartoza/somnia/internal/history"
	"github.com/kartoza/somnia/internal/models"
	"github.com/kartoza/somnia/internal/predict"
)

// maxBodyBytes bounds a /predict request body.
const maxBodyBytes = 1 << 20

// Predictor computes risks and describes the loaded model.
type Predictor interface {
	Predict(ctx context.Context, personID string, days []models.DayRecord) (*models.PredictResponse, error)
	Info() predict.Info
}

// HistoryReader lists stored predictions.
type HistoryReader interface {
	ListByPerson(ctx context.Context, personID string, limit int) ([]history.Entry, error)
}

// Handler provides HTTP API endpoints
type Handler struct {
	svc     Predictor
	history HistoryReader
	logger  *zap.Logger
	version string
}

// NewHandler creates a new API handler. hist may be nil when history is
// disabled.
func NewHandler(svc Predictor, hist HistoryReader, logger *zap.Logger, version string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:     svc,
		history: hist,
		logger:  logger,
		version: version,
	}
}

// RegisterRoutes sets up all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(accessLog(h.logger))

	// Liveness, readiness and info
	r.HandleFunc("/", h.handleRoot).Methods("GET")
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")

	// Scoring
	r.HandleFunc("/predict", h.handlePredict).Methods("POST")
	r.HandleFunc("/predictions/{person_id}", h.handleListPredictions).Methods("GET")
}

// respondJSON sends a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("error encoding response", zap.Error(err))
	}
}

// respondError sends a JSON error response
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}

// handleRoot is the liveness probe
func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealth reports readiness and the expected request shape
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := h.svc.Info()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"service":    info.Service,
		"seq_len":    info.SeqLen,
		"n_features": info.NFeatures,
	})
}

// handleInfo returns model and artifact information
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, struct {
		predict.Info
		Version string `json:"version"`
	}{h.svc.Info(), h.version})
}

// handlePredict scores one window of daily records
func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Predict(r.Context(), req.PersonID, req.Days)
	if err != nil {
		var lenErr *predict.SequenceLengthError
		if errors.As(err, &lenErr) {
			h.respondJSON(w, http.StatusBadRequest, models.ErrorResponse{
				Error:    lenErr.Error(),
				Expected: &lenErr.Expected,
				Actual:   &lenErr.Actual,
			})
			return
		}
		h.logger.Error("prediction failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// handleListPredictions returns stored results for a person, newest first
func (h *Handler) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusNotFound, "prediction history is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	personID := mux.Vars(r)["person_id"]
	entries, err := h.history.ListByPerson(r.Context(), personID, limit)
	if err != nil {
		h.logger.Error("history lookup failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	h.respondJSON(w, http.StatusOK, entries)
}
