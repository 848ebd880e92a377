package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for artifact errors.
var (
	ErrUnknownKind    = errors.New("unknown model kind")
	ErrInvalidModel   = errors.New("invalid model definition")
	ErrSchemaMismatch = errors.New("feature names mismatch")
)

// SchemaError reports a record whose key set differs from the trained features.
type SchemaError struct {
	Missing []string
	Extra   []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Extra, ", "))
	}
	return fmt.Sprintf("%s: %s", ErrSchemaMismatch, strings.Join(parts, "; "))
}

func (e *SchemaError) Unwrap() error { return ErrSchemaMismatch }
