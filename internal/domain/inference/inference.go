// Package inference invokes loaded classification models on a single
// feature record and normalizes what they return.
package inference

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/propensity/internal/domain/features"
)

// Class labels returned by purchase models.
const (
	LabelUnlikely = 0
	LabelLikely   = 1
)

// PositiveClassIndex is the probability column read as "will purchase".
// Probability rows are ordered by class label, so column 1 is label 1.
const PositiveClassIndex = 1

// Classifier is the capability every loaded model exposes.
type Classifier interface {
	// Predict returns one class label per row.
	Predict(ctx context.Context, rows []features.Record) ([]int, error)
}

// ProbabilisticClassifier is implemented by models that can also estimate
// class probabilities. Each returned row holds one probability per class,
// ordered by class label.
type ProbabilisticClassifier interface {
	Classifier
	PredictProba(ctx context.Context, rows []features.Record) ([][]float64, error)
}

// Result is the outcome of one prediction.
type Result struct {
	Label int `json:"label"`
	// Probability is the positive-class probability; nil when the model
	// has no probability capability.
	Probability *float64 `json:"probability,omitempty"`
}

// Likely reports whether the model predicted a purchase.
func (r Result) Likely() bool { return r.Label == LabelLikely }

// HasProbability reports whether a probability estimate is available.
func (r Result) HasProbability() bool { return r.Probability != nil }

// Predict runs handle on a single record. Every failure, including a panic
// inside the model, is returned as *InvocationError.
func Predict(ctx context.Context, handle Classifier, rec features.Record) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{}
			err = &InvocationError{Stage: StageClassify, Cause: fmt.Errorf("%w: %v", ErrModelPanicked, p)}
		}
	}()

	if handle == nil {
		return Result{}, &InvocationError{Stage: StageClassify, Cause: ErrNoHandle}
	}

	rows := []features.Record{rec}

	labels, err := handle.Predict(ctx, rows)
	if err != nil {
		return Result{}, &InvocationError{Stage: StageClassify, Cause: err}
	}
	if len(labels) == 0 {
		return Result{}, &InvocationError{Stage: StageClassify, Cause: ErrEmptyOutput}
	}
	res.Label = labels[0]

	prob, ok := handle.(ProbabilisticClassifier)
	if !ok {
		return res, nil
	}

	p, err := positiveProbability(ctx, prob, rows)
	if err != nil {
		return Result{}, &InvocationError{Stage: StageProbability, Cause: err}
	}
	res.Probability = &p
	return res, nil
}

func positiveProbability(ctx context.Context, m ProbabilisticClassifier, rows []features.Record) (float64, error) {
	probs, err := m.PredictProba(ctx, rows)
	if err != nil {
		return 0, err
	}
	if len(probs) == 0 {
		return 0, ErrEmptyOutput
	}
	row := probs[0]
	if len(row) <= PositiveClassIndex {
		return 0, fmt.Errorf("%w: got %d columns, need at least %d", ErrProbabilityShape, len(row), PositiveClassIndex+1)
	}
	p := row[PositiveClassIndex]
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: %v", ErrProbabilityRange, p)
	}
	return p, nil
}
