// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - All functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
)

// AllowEntry exposes one model artifact to users under a display label.
type AllowEntry struct {
	// Identifier is the artifact file name inside ModelsDir.
	Identifier string `koanf:"identifier"`
	// Label is the human-readable name shown in model pickers.
	Label string `koanf:"label"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoder: json or console.
	LogFormat string `koanf:"log_format"`

	// LogFile, when set, also writes logs to a rotated file.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ModelsDir is the directory scanned for model artifacts.
	ModelsDir string `koanf:"models_dir"`

	// ModelExtension is the file extension that marks an artifact.
	ModelExtension string `koanf:"model_extension"`

	// ExcludeMarkers drops any artifact whose name contains one of them
	// (clustering artifacts share the extension but are not classifiers).
	ExcludeMarkers []string `koanf:"exclude_markers"`

	// NoClusterMarker identifies artifacts trained without the Cluster feature.
	NoClusterMarker string `koanf:"no_cluster_marker"`

	// AllowList is the ordered set of artifacts exposed to users.
	AllowList []AllowEntry `koanf:"allow_list"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "json",
		Addr:            ":9080",
		ModelsDir:       "models",
		ModelExtension:  ".json",
		ExcludeMarkers:  []string{"kmeans"},
		NoClusterMarker: "no_cluster",
		AllowList: []AllowEntry{
			{Identifier: "logistic_no_cluster.json", Label: "Logistic Regression (No Cluster)"},
			{Identifier: "logistic_with_cluster.json", Label: "Logistic Regression (With Cluster)"},
		},
	}
}

