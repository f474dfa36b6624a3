// Package config loads user configuration from ~/.pulsar/config.toml
// with PULSAR_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// AppDirName is the dot-directory under the user home.
const AppDirName = ".pulsar"

// GitHub holds tracker credentials.
type GitHub struct {
	Token string `mapstructure:"token"`
}

// Claude configures the LLM subprocess.
type Claude struct {
	Path           string `mapstructure:"path"`
	TimeoutMinutes int    `mapstructure:"timeout_minutes"`
}

// MLflow gates telemetry export. The MLFLOW_TRACKING_URI and
// MLFLOW_EXPERIMENT_NAME environment variables win over the file block.
type MLflow struct {
	Enabled        bool   `mapstructure:"enabled"`
	TrackingURI    string `mapstructure:"tracking_uri"`
	ExperimentName string `mapstructure:"experiment_name"`
}

// Config is the full user configuration.
type Config struct {
	GitHub GitHub `mapstructure:"github"`
	Claude Claude `mapstructure:"claude"`
	MLflow MLflow `mapstructure:"mlflow"`
}

// Dir returns the app config directory, creating nothing.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, AppDirName), nil
}

// Load reads config.toml from dir (the app dir when empty) and applies
// environment overrides. A missing file yields defaults, not an error.
func Load(dir string) (*Config, error) {
	if dir == "" {
		var err error
		if dir, err = Dir(); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("PULSAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only surfaces keys viper already knows about, so
	// every key must be bound or env-only settings like
	// PULSAR_GITHUB_TOKEN never reach Unmarshal.
	for _, key := range []string{
		"github.token",
		"claude.path",
		"claude.timeout_minutes",
		"mlflow.enabled",
		"mlflow.tracking_uri",
		"mlflow.experiment_name",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	v.SetDefault("claude.path", "claude")
	v.SetDefault("claude.timeout_minutes", 30)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if uri := os.Getenv("MLFLOW_TRACKING_URI"); uri != "" {
		cfg.MLflow.TrackingURI = uri
	}
	if name := os.Getenv("MLFLOW_EXPERIMENT_NAME"); name != "" {
		cfg.MLflow.ExperimentName = name
	}
	return &cfg, nil
}

// RequireToken fails when no tracker token is configured. Commands that
// talk to the tracker call this at startup.
func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.GitHub.Token) == "" {
		return errors.New("no github token configured: set [github] token in config.toml or PULSAR_GITHUB_TOKEN")
	}
	return nil
}
