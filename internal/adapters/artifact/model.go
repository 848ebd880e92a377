package artifact

import (
	"context"
	"math"

	"github.com/okian/propensity/internal/domain/features"
)

// linearModel scores rows with an optional standard scaler followed by a
// linear decision function.
type linearModel struct {
	featureNames []string
	mean         []float64
	scale        []float64
	coef         []float64
	intercept    float64
	threshold    float64
}

func (m *linearModel) checkSchema(r features.Record) error {
	missing, extra := r.Diff(m.featureNames)
	if len(missing) > 0 || len(extra) > 0 {
		return &SchemaError{Missing: missing, Extra: extra}
	}
	return nil
}

// decision returns the linear score of a single row.
func (m *linearModel) decision(r features.Record) (float64, error) {
	if err := m.checkSchema(r); err != nil {
		return 0, err
	}
	z := m.intercept
	for i, name := range m.featureNames {
		x, _ := r.Get(name)
		if len(m.mean) > 0 {
			x = (x - m.mean[i]) / m.scale[i]
		}
		z += m.coef[i] * x
	}
	return z, nil
}

func (m *linearModel) positive(r features.Record) (float64, error) {
	z, err := m.decision(r)
	if err != nil {
		return 0, err
	}
	return sigmoid(z), nil
}

// Predict labels each row 1 when its positive probability reaches the threshold.
func (m *linearModel) Predict(ctx context.Context, rows []features.Record) ([]int, error) {
	out := make([]int, len(rows))
	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := m.positive(r)
		if err != nil {
			return nil, err
		}
		if p >= m.threshold {
			out[i] = 1
		}
	}
	return out, nil
}

// LogisticPipeline is a scaled logistic regression exposing both capabilities.
type LogisticPipeline struct {
	linearModel
}

// PredictProba returns [P(label=0), P(label=1)] per row.
func (m *LogisticPipeline) PredictProba(ctx context.Context, rows []features.Record) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := m.positive(r)
		if err != nil {
			return nil, err
		}
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

// LabelOnly is a linear classifier without a probability capability.
type LabelOnly struct {
	linearModel
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
