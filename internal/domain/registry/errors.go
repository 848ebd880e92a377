package registry

import (
	"errors"
	"fmt"
)

// Sentinel kinds for registry errors.
var (
	// ErrRegistryEmpty means no allow-listed artifact is present on disk.
	ErrRegistryEmpty = errors.New("no eligible model artifacts")
	// ErrArtifactNotFound means the identifier has no backing file.
	ErrArtifactNotFound = errors.New("model artifact not found")
)

// ArtifactCorruptError reports a file that exists but could not be decoded.
type ArtifactCorruptError struct {
	Identifier string
	Cause      error
}

func (e *ArtifactCorruptError) Error() string {
	return fmt.Sprintf("model artifact %q is corrupt: %v", e.Identifier, e.Cause)
}

func (e *ArtifactCorruptError) Unwrap() error { return e.Cause }

// IsCorrupt reports whether err is an *ArtifactCorruptError.
func IsCorrupt(err error) bool {
	var ce *ArtifactCorruptError
	return errors.As(err, &ce)
}
