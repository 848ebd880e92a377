package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/propensity/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
	percentage          = 100
)

// ErrVerification is returned when the service answered inconsistently.
var ErrVerification = errors.New("prediction verification failed")

// Run executes a complete load test and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("loadtest")
	stats := &Stats{StartTime: time.Now()}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(stats.StartTime.UnixNano())
	}

	log.Info(ctx, "starting prediction load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("customers", cfg.NumCustomers),
		logger.Int("workers", cfg.Workers),
		logger.String("timeout", cfg.Timeout.String()),
		logger.Any("seed", seed),
	)

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Discover models
	models, err := fetchModels(ctx, client)
	if err != nil {
		return stats, err
	}
	stats.Models = len(models)

	// Step 3: Generate customers
	customers := generateCustomers(cfg.NumCustomers, models, seed)
	stats.Generated = len(customers)

	// Step 4: Submit concurrently
	submitCustomers(ctx, cfg, client, customers, stats)
	for _, c := range customers {
		if c.Prediction != nil && c.Prediction.Likely {
			stats.Likely++
		}
	}

	// Step 5: Verify answers
	issues, total := verifyResults(customers, models)
	stats.Issues = total

	// Step 6: Save customers
	if cfg.OutputFile != "" {
		if err := saveCustomers(cfg.OutputFile, customers); err != nil {
			log.Warn(ctx, "failed to save customers to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logFinalStats(ctx, log, stats)

	if total > 0 {
		for _, issue := range issues {
			log.Error(ctx, "inconsistent prediction", logger.String("issue", issue))
		}
		return stats, fmt.Errorf("%w: %d issues", ErrVerification, total)
	}
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, c *httpClient) error {
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return err
	}
	var health healthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("failed to decode health status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s %s", resp.StatusCode, health.Status, health.Error)
	}
	logger.Get().Info(ctx, "service health", logger.String("status", health.Status), logger.Int("models", health.Models))
	return nil
}

// saveCustomers writes the scored customers as a JSON array.
func saveCustomers(filename string, customers []Customer) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(customers, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal customers: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func logFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var successRate, perSecond, likelyRate float64
	if stats.Submitted > 0 {
		successRate = float64(stats.Successful) / float64(stats.Submitted) * percentage
	}
	if stats.Successful > 0 {
		likelyRate = float64(stats.Likely) / float64(stats.Successful) * percentage
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("models", stats.Models),
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("successful", stats.Successful),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("issues", stats.Issues),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("likelyRate", likelyRate),
		logger.Float64("predictionsPerSecond", perSecond),
	)
}
