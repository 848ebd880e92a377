package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/propensity/internal/domain/registry"
	"github.com/okian/propensity/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthResponse is the JSON body of GET /healthz.
type healthResponse struct {
	Status    string `json:"status"`
	ModelsDir string `json:"models_dir"`
	Models    int    `json:"models"`
	Error     string `json:"error,omitempty"`
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	deps    Dependencies
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps Dependencies) *HealthHandler {
	return &HealthHandler{
		deps:    deps,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz requests.
// Scrapers asking for "application/openmetrics-text" or "text/plain" get
// Prometheus metrics. Other clients get the registry state as JSON; an
// empty models directory reports "degraded" but still answers 200.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if wantsMetrics(r) {
		h.metrics.ServeHTTP(w, r)
		return
	}

	resp := healthResponse{Status: "ok", ModelsDir: h.deps.ModelsDir()}
	models, err := h.deps.Models(r.Context())
	switch {
	case err == nil:
		resp.Models = len(models)
	case errors.Is(err, registry.ErrRegistryEmpty):
		resp.Status = "degraded"
		resp.Error = err.Error()
	default:
		status, code := classify(err)
		markError(r, code)
		resp.Status = "unavailable"
		resp.Error = err.Error()
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func wantsMetrics(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/openmetrics-text") || strings.Contains(accept, "text/plain")
}
