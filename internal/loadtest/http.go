package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	service "github.com/okian/propensity/internal/app"
	"github.com/okian/propensity/pkg/logger"
)

// workerChannelMultiplier sizes the job channel relative to the pool.
const workerChannelMultiplier = 2

// httpClient wraps http.Client with the service base URL.
type httpClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *httpClient {
	return &httpClient{client: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

func (c *httpClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

func (c *httpClient) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// readBody reads and closes the response body.
func readBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

// fetchModels lists the models the service exposes.
func fetchModels(ctx context.Context, c *httpClient) ([]service.ModelOption, error) {
	resp, err := c.get(ctx, "/api/models")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to service: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.Unmarshal(body, &e)
		return nil, fmt.Errorf("listing models failed with status %d: %s", resp.StatusCode, e.Message)
	}

	var out modelsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}
	if len(out.Models) == 0 {
		return nil, fmt.Errorf("service in %q exposes no models", out.ModelsDir)
	}
	return out.Models, nil
}

// submitCustomers scores every customer with a pool of workers, filling
// in each customer's outcome in place.
func submitCustomers(ctx context.Context, cfg *Config, c *httpClient, customers []Customer, stats *Stats) {
	log := logger.Get().Named("loadtest")
	log.Info(ctx, "submitting predictions",
		logger.Int("customers", len(customers)),
		logger.Int("workers", cfg.Workers),
	)

	var submitted, successful, rejected, failed int64

	jobs := make(chan int, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				cust := &customers[idx]
				submitOne(ctx, c, cust)
				atomic.AddInt64(&submitted, 1)

				switch {
				case cust.Prediction != nil:
					atomic.AddInt64(&successful, 1)
				case cust.Status >= http.StatusBadRequest && cust.Status < http.StatusInternalServerError:
					atomic.AddInt64(&rejected, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				if cust.Error != "" && cfg.Verbose {
					log.Warn(ctx, "prediction failed",
						logger.Int("index", cust.Index),
						logger.String("model", cust.Model),
						logger.Int("status", cust.Status),
						logger.String("error", cust.Error),
					)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range customers {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	wg.Wait()

	stats.Submitted = int(submitted)
	stats.Successful = int(successful)
	stats.Rejected = int(rejected)
	stats.Failed = int(failed)
}

func submitOne(ctx context.Context, c *httpClient, cust *Customer) {
	resp, err := c.postJSON(ctx, "/api/predict", service.PredictRequest{Model: cust.Model, Inputs: cust.Inputs})
	if err != nil {
		cust.Error = err.Error()
		return
	}
	cust.Status = resp.StatusCode
	body, err := readBody(resp)
	if err != nil {
		cust.Error = err.Error()
		return
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if err := json.Unmarshal(body, &e); err != nil {
			cust.Error = fmt.Sprintf("status %d", resp.StatusCode)
			return
		}
		cust.Error = e.Code + ": " + e.Message
		return
	}

	var p service.Prediction
	if err := json.Unmarshal(body, &p); err != nil {
		cust.Error = fmt.Sprintf("failed to decode prediction: %v", err)
		return
	}
	cust.Prediction = &p
}
