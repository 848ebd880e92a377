package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "PROPENSITY_"
	envConfigFile = envPrefix + "CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if PROPENSITY_CONFIG is set
//  3. env (prefix PROPENSITY_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like PROPENSITY_MODELS_DIR -> models_dir (flat keys).
	// Lists are comma separated: PROPENSITY_EXCLUDE_MARKERS=kmeans,dbscan.
	envProvider := env.ProviderWithValue(envPrefix, ".", envValue)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Slices decode in place, so start them empty and fall back below.
	cfg := *base
	cfg.ExcludeMarkers = nil
	cfg.AllowList = nil
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if !k.Exists("exclude_markers") {
		cfg.ExcludeMarkers = base.ExcludeMarkers
	}
	if !k.Exists("allow_list") {
		cfg.AllowList = base.AllowList
	}

	if err := cfg.Validate(ctx); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// listKeys are decoded from comma separated env values.
var listKeys = map[string]struct{}{
	"exclude_markers": {},
}

func envValue(key, value string) (string, any) {
	key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
	if _, ok := listKeys[key]; !ok {
		return key, value
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// Validate checks invariants the rest of the service relies on.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ModelsDir == "":
		return fmt.Errorf("%w: models_dir must not be empty", ErrInvalidConfig)
	case c.ModelExtension == "":
		return fmt.Errorf("%w: model_extension must not be empty", ErrInvalidConfig)
	case c.NoClusterMarker == "":
		return fmt.Errorf("%w: no_cluster_marker must not be empty", ErrInvalidConfig)
	}

	identifiers := make(map[string]struct{}, len(c.AllowList))
	labels := make(map[string]struct{}, len(c.AllowList))
	for i, e := range c.AllowList {
		if strings.TrimSpace(e.Identifier) == "" || strings.TrimSpace(e.Label) == "" {
			return fmt.Errorf("%w: allow_list[%d] needs identifier and label", ErrInvalidConfig, i)
		}
		if _, dup := identifiers[e.Identifier]; dup {
			return fmt.Errorf("%w: allow_list identifier %q repeated", ErrInvalidConfig, e.Identifier)
		}
		if _, dup := labels[e.Label]; dup {
			return fmt.Errorf("%w: allow_list label %q repeated", ErrInvalidConfig, e.Label)
		}
		identifiers[e.Identifier] = struct{}{}
		labels[e.Label] = struct{}{}
	}
	return nil
}
