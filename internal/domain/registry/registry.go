// Package registry discovers model artifacts, exposes the curated subset to
// users and loads the chosen one into a cached handle.
//
// Exposure is a two-stage filter: an artifact must be present in storage
// (and survive the exclusion markers) AND be listed in the allow-list.
// Presence alone never exposes an artifact.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/okian/propensity/pkg/logger"
)

// Store lists and opens artifacts. Implementations read only.
type Store interface {
	// List returns the identifiers of every artifact file. A missing
	// storage location yields an empty list and no error.
	List(ctx context.Context) ([]string, error)
	// Open returns the artifact contents, or an error wrapping
	// ErrArtifactNotFound when the identifier has no backing file.
	Open(ctx context.Context, identifier string) (io.ReadCloser, error)
}

// Codec turns artifact bytes into a handle.
type Codec interface {
	Decode(ctx context.Context, identifier string, r io.Reader) (Handle, error)
}

// Entry is one model exposed to users.
type Entry struct {
	Identifier string `json:"identifier"`
	Label      string `json:"label"`
}

// LoadHook observes every load that reaches storage. Cache hits are not reported.
type LoadHook func(identifier string, elapsed time.Duration, err error)

// Registry resolves and loads model artifacts.
type Registry struct {
	store          Store
	codec          Codec
	cache          *Cache
	allowList      []Entry
	excludeMarkers []string
	onLoad         LoadHook
	logger         logger.Logger
}

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithAllowList sets the ordered identifier -> label pairs that may be exposed.
func WithAllowList(entries []Entry) Option {
	return func(r *Registry) {
		r.allowList = append([]Entry(nil), entries...)
	}
}

// WithExcludeMarkers drops any identifier containing one of markers from discovery.
func WithExcludeMarkers(markers ...string) Option {
	return func(r *Registry) {
		r.excludeMarkers = nil
		for _, m := range markers {
			if m = strings.TrimSpace(m); m != "" {
				r.excludeMarkers = append(r.excludeMarkers, m)
			}
		}
	}
}

// WithCache injects the handle cache. Sharing a cache between registries
// shares loaded handles.
func WithCache(c *Cache) Option {
	return func(r *Registry) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithLoadHook registers an observer for storage loads.
func WithLoadHook(h LoadHook) Option {
	return func(r *Registry) {
		r.onLoad = h
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Registry over store and codec.
func New(store Store, codec Codec, opts ...Option) *Registry {
	r := &Registry{
		store:          store,
		codec:          codec,
		cache:          NewCache(),
		excludeMarkers: []string{"kmeans"},
		logger:         logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListAvailable returns the sorted identifiers found in storage, minus any
// identifier that carries an exclusion marker.
func (r *Registry) ListAvailable(ctx context.Context) ([]string, error) {
	ids, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if r.excluded(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Registry) excluded(id string) bool {
	for _, m := range r.excludeMarkers {
		if strings.Contains(id, m) {
			return true
		}
	}
	return false
}

// CuratedLabels maps display label -> identifier for every identifier that is
// both allow-listed and present in identifiers.
func (r *Registry) CuratedLabels(identifiers []string) map[string]string {
	out := make(map[string]string)
	for _, e := range r.curate(identifiers) {
		out[e.Label] = e.Identifier
	}
	return out
}

func (r *Registry) curate(identifiers []string) []Entry {
	present := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		present[id] = struct{}{}
	}
	var out []Entry
	for _, e := range r.allowList {
		if _, ok := present[e.Identifier]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Options runs discovery and curation and returns the exposed models in
// allow-list order. It returns ErrRegistryEmpty when nothing qualifies.
func (r *Registry) Options(ctx context.Context) ([]Entry, error) {
	ids, err := r.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	entries := r.curate(ids)
	if len(entries) == 0 {
		return nil, ErrRegistryEmpty
	}
	return entries, nil
}

// Load returns the handle for identifier, reading storage only the first
// time a given identifier loads successfully.
func (r *Registry) Load(ctx context.Context, identifier string) (Handle, error) {
	h, hit, err := r.cache.GetOrLoad(ctx, identifier, func() (Handle, error) {
		return r.loadFromStore(ctx, identifier)
	})
	if hit && err == nil {
		r.logger.Debug(ctx, "model served from cache", logger.String("identifier", identifier))
	}
	return h, err
}

func (r *Registry) loadFromStore(ctx context.Context, identifier string) (h Handle, err error) {
	start := time.Now()
	defer func() {
		if r.onLoad != nil {
			r.onLoad(identifier, time.Since(start), err)
		}
	}()

	rc, err := r.store.Open(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			return nil, err
		}
		return nil, &ArtifactCorruptError{Identifier: identifier, Cause: err}
	}
	defer func() { _ = rc.Close() }()

	h, err = r.decode(ctx, identifier, rc)
	if err != nil {
		r.logger.Warn(ctx, "model artifact failed to decode",
			logger.String("identifier", identifier),
			logger.Error(err),
		)
		return nil, &ArtifactCorruptError{Identifier: identifier, Cause: err}
	}

	r.logger.Info(ctx, "model loaded",
		logger.String("identifier", identifier),
		logger.Float64("elapsedMs", float64(time.Since(start).Microseconds())/1000),
	)
	return h, nil
}

func (r *Registry) decode(ctx context.Context, identifier string, rd io.Reader) (h Handle, err error) {
	defer func() {
		if p := recover(); p != nil {
			h, err = nil, fmt.Errorf("decoder panicked: %v", p)
		}
	}()
	h, err = r.codec.Decode(ctx, identifier, rd)
	if err == nil && h == nil {
		err = errors.New("decoder returned no handle")
	}
	return h, err
}

// Cached returns the number of identifiers held by the handle cache.
func (r *Registry) Cached() int {
	return r.cache.Len()
}
