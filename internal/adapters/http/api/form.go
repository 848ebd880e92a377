package api

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	service "github.com/okian/propensity/internal/app"
	"github.com/okian/propensity/internal/domain/features"
	"github.com/okian/propensity/internal/domain/inference"
	"github.com/okian/propensity/internal/domain/registry"
)

// clusterChoices are the values offered by the cluster select.
var clusterChoices = []int{0, 1, 2, 3}

// maxFormBytes caps the size of a submitted form.
const maxFormBytes = 64 << 10

// formPage is the data rendered by the form template. The customer form
// is shown only when Ready.
type formPage struct {
	Empty      string
	Models     []ModelOption
	Selected   ModelOption
	Ready      bool
	LoadFailed string
	LoadDetail string
	Inputs     features.Inputs
	Clusters   []int
	Result     *Prediction
	Error      string
	Hint       bool

	code string
}

// FormHandler serves the interactive prediction page.
type FormHandler struct {
	deps Dependencies
}

// NewFormHandler creates a new form handler.
func NewFormHandler(deps Dependencies) *FormHandler {
	return &FormHandler{deps: deps}
}

// HandleForm handles GET / requests. The optional model query parameter
// preselects a model by label; the chosen model is loaded right away.
func (h *FormHandler) HandleForm(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	page, status := h.page(r, r.URL.Query().Get("model"))
	page.Inputs = features.DefaultInputs()
	render(w, r, status, page)
}

// HandleSubmit handles POST /predict requests from the form.
func (h *FormHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.reject(w, r, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	model := r.PostForm.Get("model")
	if model == "" {
		h.reject(w, r, fmt.Errorf("%w: model is required", ErrBadRequest))
		return
	}

	page, status := h.page(r, model)
	in, err := parseInputs(r.PostForm)
	page.Inputs = in
	if !page.Ready {
		render(w, r, status, page)
		return
	}
	if err != nil {
		render(w, r, page.fail(err), page)
		return
	}

	pred, err := h.deps.Predict(r.Context(), PredictRequest{Model: page.Selected.Label, Inputs: in})
	if err != nil {
		render(w, r, page.fail(err), page)
		return
	}
	page.Result = &pred
	render(w, r, http.StatusOK, page)
}

// reject renders the default page with a request error.
func (h *FormHandler) reject(w http.ResponseWriter, r *http.Request, err error) {
	page, status := h.page(r, "")
	page.Inputs = features.DefaultInputs()
	if page.Empty == "" {
		status = page.fail(err)
	}
	render(w, r, status, page)
}

// page lists the models, picks the selected one and loads it. An empty
// model selects the first one; a model that is not exposed is unknown.
func (h *FormHandler) page(r *http.Request, model string) (formPage, int) {
	page := formPage{Clusters: clusterChoices}
	models, err := h.deps.Models(r.Context())
	if err != nil {
		status, code := classify(err)
		page.code = code
		if errors.Is(err, registry.ErrRegistryEmpty) {
			page.Empty = fmt.Sprintf("No model files found in '%s' directory!", h.deps.ModelsDir())
		} else {
			page.Empty = err.Error()
		}
		return page, status
	}
	page.Models = models

	selected, ok := models[0], model == ""
	for _, m := range models {
		if m.Label == model || m.Identifier == model {
			selected, ok = m, true
			break
		}
	}
	if !ok {
		return page, page.fail(fmt.Errorf("%w: %q", service.ErrUnknownModel, model))
	}
	page.Selected = selected

	if _, err := h.deps.LoadModel(r.Context(), selected.Identifier); err != nil {
		return page, page.fail(err)
	}
	page.Ready = true
	return page, http.StatusOK
}

// fail records err on the page and returns its status. Only invocation
// errors carry the feature-name hint; load errors hide the customer form.
func (p *formPage) fail(err error) int {
	status, code := classify(err)
	p.code = code
	switch {
	case registry.IsCorrupt(err):
		p.LoadDetail = err.Error()
		fallthrough
	case errors.Is(err, registry.ErrArtifactNotFound):
		p.Ready = false
		p.LoadFailed = p.Selected.Identifier
	case inference.IsInvocation(err):
		p.Error = "Prediction failed: " + err.Error()
		p.Hint = true
	default:
		p.Error = err.Error()
	}
	return status
}

func render(w http.ResponseWriter, r *http.Request, status int, page formPage) {
	if page.code != "" {
		markError(r, page.code)
	}
	var buf bytes.Buffer
	if err := formTemplate.Execute(&buf, page); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// parseInputs reads the customer attributes from form values. Absent
// fields keep their default value.
func parseInputs(v url.Values) (features.Inputs, error) {
	in := features.DefaultInputs()
	ints := []struct {
		name string
		dst  *int
	}{
		{"age", &in.Age},
		{"number_of_purchases", &in.NumberOfPurchases},
		{"last_purchase_days_ago", &in.LastPurchaseDaysAgo},
		{"discounts_availed", &in.DiscountsAvailed},
		{"session_count", &in.SessionCount},
		{"customer_satisfaction", &in.CustomerSatisfaction},
		{"loyalty_program", &in.LoyaltyProgram},
		{"cluster", &in.Cluster},
	}
	for _, f := range ints {
		raw := strings.TrimSpace(v.Get(f.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return in, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, f.name)
		}
		*f.dst = n
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"annual_income", &in.AnnualIncome},
		{"time_spent_on_website", &in.TimeSpentOnWebsite},
		{"customer_tenure_years", &in.CustomerTenureYears},
	}
	for _, f := range floats {
		raw := strings.TrimSpace(v.Get(f.name))
		if raw == "" {
			continue
		}
		x, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
			return in, fmt.Errorf("%w: %s must be a finite number", ErrBadRequest, f.name)
		}
		*f.dst = x
	}
	return in, nil
}

func formatFixed2(p float64) string { return strconv.FormatFloat(p, 'f', 2, 64) }

func formatPercent(p float64) string { return strconv.FormatFloat(p*100, 'f', 2, 64) + "%" }
