package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/propensity/pkg/metrics"
)

// errorCodeKey carries a *string the handler fills with its error code.
type errorCodeKey struct{}

// markError tags the request with the API error code it ended with, so
// error metrics name the failure (unknown_model, artifact_corrupt, ...)
// instead of only its status class.
func markError(r *http.Request, code string) {
	if p, ok := r.Context().Value(errorCodeKey{}).(*string); ok {
		*p = code
	}
}

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		var code string
		r = r.WithContext(context.WithValue(r.Context(), errorCodeKey{}, &code))

		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Milliseconds())
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= http.StatusBadRequest {
			errorType := code
			if errorType == "" {
				errorType = getErrorType(wrapped.statusCode)
			}
			severity := getErrorSeverity(wrapped.statusCode, errorType)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
			metrics.RecordErrorByType(errorType, severity)
			metrics.RecordErrorLatency("http", errorType, durationMs)
		}
	}
}

// getErrorType names errors that carry no API error code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	case statusCode == http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode >= http.StatusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// getErrorSeverity ranks an error. Server side and registry failures are
// high; a model that rejects its input or lost its file is medium.
func getErrorSeverity(statusCode int, errorType string) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "high"
	case errorType == "invocation_failed", errorType == "artifact_not_found":
		return "medium"
	default:
		return "low"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}
