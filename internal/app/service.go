// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/propensity/internal/adapters/artifact"
	"github.com/okian/propensity/internal/config"
	"github.com/okian/propensity/internal/domain/features"
	"github.com/okian/propensity/internal/domain/inference"
	"github.com/okian/propensity/internal/domain/registry"
	"github.com/okian/propensity/pkg/logger"
	"github.com/okian/propensity/pkg/metrics"
)

// Prediction outcome labels used in metrics.
const (
	outcomeLikely   = "likely"
	outcomeUnlikely = "unlikely"
	outcomeError    = "error"
)

// ModelOption is one model a user can choose.
type ModelOption struct {
	Label       string `json:"label"`
	Identifier  string `json:"identifier"`
	UsesCluster bool   `json:"uses_cluster"`
}

// PredictRequest selects a model by display label (or identifier) and
// carries the raw form values.
type PredictRequest struct {
	Model  string          `json:"model"`
	Inputs features.Inputs `json:"inputs"`
}

// Prediction is the reported result of one request.
type Prediction struct {
	RequestID   string   `json:"request_id"`
	Model       string   `json:"model"`
	Identifier  string   `json:"identifier"`
	Label       int      `json:"label"`
	Likely      bool     `json:"likely"`
	Probability *float64 `json:"probability,omitempty"`
	Features    []string `json:"features"`
}

// Service implements the API dependencies for the prediction front-end.
type Service struct {
	mu sync.RWMutex

	registry *registry.Registry

	// Configuration
	modelsDir       string
	extension       string
	excludeMarkers  []string
	noClusterMarker string
	allowList       []registry.Entry
	cache           *registry.Cache

	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithModelsDir sets the directory scanned for artifacts.
func WithModelsDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.modelsDir = dir
		}
	}
}

// WithModelExtension sets the artifact file extension.
func WithModelExtension(ext string) Option {
	return func(s *Service) {
		if ext != "" {
			s.extension = ext
		}
	}
}

// WithExcludeMarkers sets the markers that hide unrelated artifacts.
func WithExcludeMarkers(markers []string) Option {
	return func(s *Service) {
		if markers != nil {
			s.excludeMarkers = markers
		}
	}
}

// WithNoClusterMarker sets the identifier marker of models trained without Cluster.
func WithNoClusterMarker(marker string) Option {
	return func(s *Service) {
		if marker != "" {
			s.noClusterMarker = marker
		}
	}
}

// WithAllowList sets the ordered models exposed to users.
func WithAllowList(entries []registry.Entry) Option {
	return func(s *Service) {
		s.allowList = entries
	}
}

// WithCache injects the handle cache.
func WithCache(c *registry.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithRegistry uses a prebuilt registry instead of one over modelsDir.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithConfig applies the model discovery settings of a loaded Config.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		entries := make([]registry.Entry, len(cfg.AllowList))
		for i, e := range cfg.AllowList {
			entries[i] = registry.Entry{Identifier: e.Identifier, Label: e.Label}
		}
		for _, opt := range []Option{
			WithModelsDir(cfg.ModelsDir),
			WithModelExtension(cfg.ModelExtension),
			WithExcludeMarkers(cfg.ExcludeMarkers),
			WithNoClusterMarker(cfg.NoClusterMarker),
			WithAllowList(entries),
		} {
			opt(s)
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with the defaults of config.New,
// including its allow-list.
func New(opts ...Option) *Service {
	s := &Service{
		noClusterMarker: features.DefaultNoClusterMarker,
		cache:           registry.NewCache(),
	}
	WithConfig(config.New(context.Background()))(s)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the registry and reports what it can expose. An empty
// registry is logged, not fatal: the front-end shows it to the user.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if s.registry == nil {
		s.registry = registry.New(
			artifact.NewDirStore(s.modelsDir, artifact.WithExtension(s.extension)),
			artifact.NewJSONCodec(),
			registry.WithAllowList(s.allowList),
			registry.WithExcludeMarkers(s.excludeMarkers...),
			registry.WithCache(s.cache),
			registry.WithLoadHook(s.observeLoad),
			registry.WithLogger(s.logger.Named("registry")),
		)
	}
	s.started = true

	entries, err := s.registry.Options(ctx)
	switch {
	case errors.Is(err, registry.ErrRegistryEmpty):
		metrics.UpdateAvailableModels(0)
		s.logger.Warn(ctx, "no model files found", logger.String("modelsDir", s.modelsDir))
	case err != nil:
		s.logger.Error(ctx, "model discovery failed", logger.String("modelsDir", s.modelsDir), logger.Error(err))
	default:
		metrics.UpdateAvailableModels(len(entries))
		s.logger.Info(ctx, "prediction service started",
			logger.String("modelsDir", s.modelsDir),
			logger.Int("models", len(entries)),
		)
	}
	return nil
}

// Stop marks the service stopped. Cached handles are kept.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "prediction service stopped")
}

func (s *Service) reg() (*registry.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.registry, nil
}

// ModelsDir returns the directory scanned for artifacts.
func (s *Service) ModelsDir() string { return s.modelsDir }

// Models lists the models a user may choose, in allow-list order.
// It returns registry.ErrRegistryEmpty when none are present.
func (s *Service) Models(ctx context.Context) ([]ModelOption, error) {
	reg, err := s.reg()
	if err != nil {
		return nil, err
	}
	entries, err := reg.Options(ctx)
	if err != nil {
		if errors.Is(err, registry.ErrRegistryEmpty) {
			metrics.UpdateAvailableModels(0)
		}
		return nil, err
	}
	metrics.UpdateAvailableModels(len(entries))

	out := make([]ModelOption, len(entries))
	for i, e := range entries {
		out[i] = ModelOption{
			Label:       e.Label,
			Identifier:  e.Identifier,
			UsesCluster: features.UsesCluster(e.Identifier, s.noClusterMarker),
		}
	}
	return out, nil
}

// Resolve finds the exposed model matching a display label or identifier.
func (s *Service) Resolve(ctx context.Context, model string) (ModelOption, error) {
	opts, err := s.Models(ctx)
	if err != nil {
		return ModelOption{}, err
	}
	for _, o := range opts {
		if o.Label == model || o.Identifier == model {
			return o, nil
		}
	}
	return ModelOption{}, fmt.Errorf("%w: %q", ErrUnknownModel, model)
}

// LoadModel resolves model and loads its artifact into the handle cache,
// so a broken artifact is reported as soon as the model is chosen.
func (s *Service) LoadModel(ctx context.Context, model string) (ModelOption, error) {
	opt, _, err := s.load(ctx, model)
	return opt, err
}

func (s *Service) load(ctx context.Context, model string) (ModelOption, registry.Handle, error) {
	opt, err := s.Resolve(ctx, model)
	if err != nil {
		metrics.RecordErrorByComponent("service", "resolve")
		return ModelOption{}, nil, err
	}

	reg, err := s.reg()
	if err != nil {
		return ModelOption{}, nil, err
	}

	handle, err := reg.Load(ctx, opt.Identifier)
	if err != nil {
		s.logger.Error(ctx, "failed to load model",
			logger.String("identifier", opt.Identifier),
			logger.Error(err),
		)
		return opt, nil, err
	}
	metrics.UpdateCachedHandles(reg.Cached())
	return opt, handle, nil
}

// Predict loads the chosen model (once per process) and runs it on a
// record built from req.Inputs. Cluster is sent only to cluster models.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (Prediction, error) {
	start := time.Now()
	requestID := uuid.NewString()
	ctx = logger.WithFields(ctx, logger.String("requestID", requestID), logger.String("model", req.Model))

	opt, handle, err := s.load(ctx, req.Model)
	if err != nil {
		if opt.Label != "" {
			metrics.RecordPrediction(opt.Label, outcomeError)
		}
		return Prediction{}, err
	}

	rec := features.Build(req.Inputs, opt.UsesCluster)
	res, err := inference.Predict(ctx, handle, rec)
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	metrics.RecordPredictionLatency(opt.Label, elapsed)
	if err != nil {
		metrics.RecordPrediction(opt.Label, outcomeError)
		metrics.RecordErrorByComponent("inference", "invocation")
		s.logger.Warn(ctx, "prediction failed",
			logger.String("identifier", opt.Identifier),
			logger.Error(err),
		)
		return Prediction{}, err
	}

	outcome := outcomeUnlikely
	if res.Likely() {
		outcome = outcomeLikely
	}
	metrics.RecordPrediction(opt.Label, outcome)
	if res.Probability != nil {
		metrics.RecordPredictedProbability(opt.Label, *res.Probability)
	}

	p := Prediction{
		RequestID:   requestID,
		Model:       opt.Label,
		Identifier:  opt.Identifier,
		Label:       res.Label,
		Likely:      res.Likely(),
		Probability: res.Probability,
		Features:    rec.Keys(),
	}
	s.logger.Debug(ctx, "prediction served",
		logger.String("identifier", p.Identifier),
		logger.Int("label", p.Label),
		logger.Float64("elapsedMs", elapsed),
	)
	return p, nil
}

// observeLoad feeds storage loads into metrics.
func (s *Service) observeLoad(_ string, elapsed time.Duration, err error) {
	outcome := "loaded"
	switch {
	case errors.Is(err, registry.ErrArtifactNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "corrupt"
	}
	metrics.RecordModelLoad(outcome)
	metrics.RecordModelLoadLatency(float64(elapsed.Microseconds()) / 1000)
	if err != nil {
		metrics.RecordErrorByComponent("registry", outcome)
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":   s.started,
		"modelsDir": s.modelsDir,
		"extension": s.extension,
	}
	if s.started {
		cached := s.registry.Cached()
		stats["cachedModels"] = cached
		metrics.UpdateCachedHandles(cached)

		ids, err := s.registry.ListAvailable(context.Background())
		if err == nil {
			stats["discoveredModels"] = len(ids)
		}
	}
	return stats
}
