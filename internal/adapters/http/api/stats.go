package api

import (
	"net/http"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	deps          Dependencies
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, deps Dependencies) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, deps: deps}
}

// HandleStats handles GET /stats requests. The provider's counters are
// extended with the labels of the models users can pick, or with the
// registry error code when there are none.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	stats := make(map[string]interface{})
	for k, v := range h.statsProvider.GetStats() {
		stats[k] = v
	}
	models, err := h.deps.Models(r.Context())
	if err != nil {
		_, code := classify(err)
		stats["registry"] = code
	} else {
		labels := make([]string, len(models))
		for i, m := range models {
			labels[i] = m.Label
		}
		stats["models"] = labels
	}
	writeJSON(w, http.StatusOK, stats)
}
