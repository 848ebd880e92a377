package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrUnknownModel = errors.New("unknown model")
	ErrNotStarted   = errors.New("service not started")
)
