// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/propensity/internal/app"
	"github.com/okian/propensity/internal/domain/inference"
	"github.com/okian/propensity/internal/domain/registry"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Models lists the models users may pick, in display order.
	Models(ctx context.Context) ([]ModelOption, error)

	// LoadModel loads the chosen model so load failures show before any
	// customer data is entered.
	LoadModel(ctx context.Context, model string) (ModelOption, error)

	// Predict runs one prediction for the chosen model.
	Predict(ctx context.Context, req PredictRequest) (Prediction, error)

	// ModelsDir names the directory scanned for models, for user messages.
	ModelsDir() string
}

// Aliases for the service shapes exchanged over HTTP.
type (
	ModelOption    = service.ModelOption
	PredictRequest = service.PredictRequest
	Prediction     = service.Prediction
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	formHandler    *FormHandler
	predictHandler *PredictHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(deps),
		statsHandler:   NewStatsHandler(statsProvider, deps),
		formHandler:    NewFormHandler(deps),
		predictHandler: NewPredictHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/models", MetricsMiddleware(s.predictHandler.HandleModels, "api_models"))
	mux.HandleFunc("/api/predict", MetricsMiddleware(s.predictHandler.HandlePredict, "api_predict"))
	mux.HandleFunc("/predict", MetricsMiddleware(s.formHandler.HandleSubmit, "predict"))
	mux.HandleFunc("/", MetricsMiddleware(s.formHandler.HandleForm, "form"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	markError(r, code)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps service errors onto an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrRegistryEmpty):
		return http.StatusServiceUnavailable, "registry_empty"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	case errors.Is(err, service.ErrUnknownModel):
		return http.StatusNotFound, "unknown_model"
	case errors.Is(err, registry.ErrArtifactNotFound):
		return http.StatusNotFound, "artifact_not_found"
	case registry.IsCorrupt(err):
		return http.StatusInternalServerError, "artifact_corrupt"
	case inference.IsInvocation(err):
		return http.StatusUnprocessableEntity, "invocation_failed"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
