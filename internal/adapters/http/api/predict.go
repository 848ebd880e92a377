package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/propensity/internal/domain/features"
)

// modelsResponse is the body of GET /api/models.
type modelsResponse struct {
	ModelsDir string        `json:"models_dir"`
	Models    []ModelOption `json:"models"`
}

// predictRequest is the body of POST /api/predict. Inputs left out take
// the form defaults.
type predictRequest struct {
	Model  string           `json:"model"`
	Inputs *features.Inputs `json:"inputs"`
}

// PredictHandler serves the JSON prediction API.
type PredictHandler struct {
	deps Dependencies
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps Dependencies) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// HandleModels handles GET /api/models requests.
func (h *PredictHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	models, err := h.deps.Models(r.Context())
	if err != nil {
		status, code := classify(err)
		writeError(w, r, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, modelsResponse{ModelsDir: h.deps.ModelsDir(), Models: models})
}

// HandlePredict handles POST /api/predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	defaults := features.DefaultInputs()
	body := predictRequest{Inputs: &defaults}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if body.Model == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: model is required", ErrBadRequest))
		return
	}

	in := features.DefaultInputs()
	if body.Inputs != nil {
		in = *body.Inputs
	}

	pred, err := h.deps.Predict(r.Context(), PredictRequest{Model: body.Model, Inputs: in})
	if err != nil {
		status, code := classify(err)
		writeError(w, r, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}
