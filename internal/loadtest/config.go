// Package loadtest drives a running prediction service with generated
// customers and checks that every answer is well formed.
package loadtest

import (
	"time"

	service "github.com/okian/propensity/internal/app"
	"github.com/okian/propensity/internal/domain/features"
)

// Config holds configuration for a load test run.
type Config struct {
	BaseURL      string        // Base URL of the service
	NumCustomers int           // Number of customers to generate and score
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	Seed         uint64        // Seed for customer generation; 0 picks one from the clock
	OutputFile   string        // Optional JSON file receiving the scored customers
	Verbose      bool          // Log every failed request
}

// Customer is one generated request and, once submitted, its outcome.
type Customer struct {
	Index      int                 `json:"index"`
	Model      string              `json:"model"`
	Inputs     features.Inputs     `json:"inputs"`
	Status     int                 `json:"status"`
	Prediction *service.Prediction `json:"prediction,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Stats holds run statistics.
type Stats struct {
	Models     int
	Generated  int
	Submitted  int
	Successful int
	Rejected   int
	Failed     int
	Likely     int
	Issues     int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

// modelsResponse mirrors the body of GET /api/models.
type modelsResponse struct {
	ModelsDir string                `json:"models_dir"`
	Models    []service.ModelOption `json:"models"`
}

// errorResponse mirrors API error bodies.
// healthResponse is the JSON body of GET /healthz.
type healthResponse struct {
	Status string `json:"status"`
	Models int    `json:"models"`
	Error  string `json:"error"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
