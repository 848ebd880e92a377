package inference

import (
	"errors"
	"fmt"
)

// Sentinel kinds for invocation causes.
var (
	ErrNoHandle         = errors.New("no model handle")
	ErrEmptyOutput      = errors.New("model returned no rows")
	ErrProbabilityShape = errors.New("probability row has too few columns")
	ErrProbabilityRange = errors.New("probability outside [0,1]")
	ErrModelPanicked    = errors.New("model panicked")
)

// Stage names the capability that failed.
type Stage string

const (
	StageClassify    Stage = "predict"
	StageProbability Stage = "predict_proba"
)

// InvocationError reports that a model rejected or failed on a record.
type InvocationError struct {
	Stage Stage
	Cause error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation failed in %s: %v", e.Stage, e.Cause)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

// IsInvocation reports whether err is an *InvocationError.
func IsInvocation(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie)
}
