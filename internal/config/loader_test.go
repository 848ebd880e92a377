package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/propensity/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "models")
				convey.So(cfg.ExcludeMarkers, convey.ShouldResemble, []string{"kmeans"})
				convey.So(cfg.AllowList, convey.ShouldHaveLength, 2)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PROPENSITY_ADDR", ":8080")
			_ = os.Setenv("PROPENSITY_MODELS_DIR", "/srv/models")
			_ = os.Setenv("PROPENSITY_MODEL_EXTENSION", ".pkl")
			_ = os.Setenv("PROPENSITY_EXCLUDE_MARKERS", "kmeans,dbscan")
			_ = os.Setenv("PROPENSITY_LOG_LEVEL", "debug")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "/srv/models")
				convey.So(cfg.ModelExtension, convey.ShouldEqual, ".pkl")
				convey.So(cfg.ExcludeMarkers, convey.ShouldResemble, []string{"kmeans", "dbscan"})
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
			})
		})

		convey.Convey("When a list env var has spaces and empty items", func() {
			_ = os.Setenv("PROPENSITY_EXCLUDE_MARKERS", " kmeans , ,dbscan ")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then each marker is trimmed and empty ones dropped", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ExcludeMarkers, convey.ShouldResemble, []string{"kmeans", "dbscan"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
models_dir: "./artifacts"
model_extension: ".pkl"
allow_list:
  - identifier: random_forest_no_cluster.pkl
    label: Random Forest (No Cluster)
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PROPENSITY_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and replace the allow-list", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "./artifacts")
				convey.So(cfg.AllowList, convey.ShouldResemble, []config.AllowEntry{
					{Identifier: "random_forest_no_cluster.pkl", Label: "Random Forest (No Cluster)"},
				})
				convey.So(cfg.ExcludeMarkers, convey.ShouldResemble, []string{"kmeans"})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
models_dir: "./artifacts"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PROPENSITY_CONFIG", tmpFile)
			_ = os.Setenv("PROPENSITY_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "./artifacts")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PROPENSITY_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("PROPENSITY_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("PROPENSITY_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestExampleConfig(t *testing.T) {
	convey.Convey("Given the example config shipped with the repo", t, func() {
		clearConfigEnvVars()
		_ = os.Setenv("PROPENSITY_CONFIG", "../../config.example.yaml")
		defer clearConfigEnvVars()

		cfg, err := config.Load(context.Background())

		convey.Convey("Then it should match the built-in defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg, convey.ShouldResemble, config.New(context.Background()))
		})
	})
}

func clearConfigEnvVars() {
	envVars := []string{
		"PROPENSITY_CONFIG",
		"PROPENSITY_ADDR",
		"PROPENSITY_MODELS_DIR",
		"PROPENSITY_MODEL_EXTENSION",
		"PROPENSITY_EXCLUDE_MARKERS",
		"PROPENSITY_LOG_LEVEL",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "propensity-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
