package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/okian/propensity/internal/domain/registry"
)

// Supported model kinds.
const (
	KindLogisticPipeline = "logistic_pipeline"
	KindLabelOnly        = "label_only"

	defaultThreshold = 0.5
)

// Definition is the on-disk JSON shape of a linear model artifact.
type Definition struct {
	Kind         string    `json:"kind"`
	FeatureNames []string  `json:"feature_names"`
	Mean         []float64 `json:"mean,omitempty"`
	Scale        []float64 `json:"scale,omitempty"`
	Coef         []float64 `json:"coef"`
	Intercept    float64   `json:"intercept"`
	Threshold    float64   `json:"threshold,omitempty"`
}

// DecodeFunc builds a handle from a parsed definition.
type DecodeFunc func(def Definition) (registry.Handle, error)

// JSONCodec decodes JSON artifacts, dispatching on their "kind" field.
type JSONCodec struct {
	mu    sync.RWMutex
	kinds map[string]DecodeFunc
}

// NewJSONCodec returns a codec that understands the built-in kinds.
func NewJSONCodec() *JSONCodec {
	c := &JSONCodec{kinds: make(map[string]DecodeFunc)}
	c.Register(KindLogisticPipeline, func(def Definition) (registry.Handle, error) {
		lm, err := newLinear(def)
		if err != nil {
			return nil, err
		}
		return &LogisticPipeline{linearModel: lm}, nil
	})
	c.Register(KindLabelOnly, func(def Definition) (registry.Handle, error) {
		lm, err := newLinear(def)
		if err != nil {
			return nil, err
		}
		return &LabelOnly{linearModel: lm}, nil
	})
	return c
}

// Register adds or replaces the decoder for kind.
func (c *JSONCodec) Register(kind string, fn DecodeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds[kind] = fn
}

// Decode implements registry.Codec.
func (c *JSONCodec) Decode(_ context.Context, identifier string, r io.Reader) (registry.Handle, error) {
	var def Definition
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parse %s: %w", identifier, err)
	}

	c.mu.RLock()
	fn, ok := c.kinds[def.Kind]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, def.Kind)
	}
	return fn(def)
}

func newLinear(def Definition) (linearModel, error) {
	n := len(def.FeatureNames)
	if n == 0 {
		return linearModel{}, fmt.Errorf("%w: feature_names is empty", ErrInvalidModel)
	}
	seen := make(map[string]struct{}, n)
	for _, name := range def.FeatureNames {
		if name == "" {
			return linearModel{}, fmt.Errorf("%w: empty feature name", ErrInvalidModel)
		}
		if _, dup := seen[name]; dup {
			return linearModel{}, fmt.Errorf("%w: feature %q repeated", ErrInvalidModel, name)
		}
		seen[name] = struct{}{}
	}
	if len(def.Coef) != n {
		return linearModel{}, fmt.Errorf("%w: %d coefficients for %d features", ErrInvalidModel, len(def.Coef), n)
	}
	if len(def.Mean) != len(def.Scale) || (len(def.Mean) != 0 && len(def.Mean) != n) {
		return linearModel{}, fmt.Errorf("%w: mean and scale must both be empty or match the features", ErrInvalidModel)
	}
	for i, s := range def.Scale {
		if s == 0 || !finite(s) || !finite(def.Mean[i]) {
			return linearModel{}, fmt.Errorf("%w: bad scaler entry for %q", ErrInvalidModel, def.FeatureNames[i])
		}
	}
	for i, w := range def.Coef {
		if !finite(w) {
			return linearModel{}, fmt.Errorf("%w: bad coefficient for %q", ErrInvalidModel, def.FeatureNames[i])
		}
	}
	if !finite(def.Intercept) {
		return linearModel{}, fmt.Errorf("%w: bad intercept", ErrInvalidModel)
	}

	threshold := def.Threshold
	if threshold == 0 {
		threshold = defaultThreshold
	}
	if threshold <= 0 || threshold >= 1 {
		return linearModel{}, fmt.Errorf("%w: threshold %v outside (0,1)", ErrInvalidModel, def.Threshold)
	}

	return linearModel{
		featureNames: append([]string(nil), def.FeatureNames...),
		mean:         append([]float64(nil), def.Mean...),
		scale:        append([]float64(nil), def.Scale...),
		coef:         append([]float64(nil), def.Coef...),
		intercept:    def.Intercept,
		threshold:    threshold,
	}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
