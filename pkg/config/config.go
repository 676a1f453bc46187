// Package config loads server configuration from an optional YAML file,
// environment variables (CLIPPERD_*), and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/clipper-ai/clipperd/pkg/download"
)

// Config holds the clipperd server configuration
type Config struct {
	Port      string `mapstructure:"port" yaml:"port"`
	DBPath    string `mapstructure:"db_path" yaml:"db_path"`
	UploadDir string `mapstructure:"upload_dir" yaml:"upload_dir"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`

	// External analysis/render programs
	ScriptDir string `mapstructure:"script_dir" yaml:"script_dir"`
	Python    string `mapstructure:"python" yaml:"python"`

	// Download fallback chain
	DownloadTimeout time.Duration       `mapstructure:"download_timeout" yaml:"download_timeout"`
	Providers       []download.Provider `mapstructure:"providers" yaml:"providers"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" yaml:"log_json"`

	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// Load reads configuration. An empty path searches the working directory and
// /etc/clipperd for clipperd.yaml; a missing file is not an error, the
// defaults and environment carry the run.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "3000")
	v.SetDefault("db_path", "jobs.db")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("output_dir", "outputs")
	v.SetDefault("script_dir", "python")
	v.SetDefault("python", "python3")
	v.SetDefault("download_timeout", "60s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("metrics_enabled", true)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("clipperd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/clipperd")
	}

	v.SetEnvPrefix("CLIPPERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		// A missing default config file is fine; a malformed one is not
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultProviders()
	}

	return &cfg, nil
}

// DefaultProviders returns the fallback download services used when the
// config names none. The instances are interchangeable; the chain shuffles
// them per call.
func DefaultProviders() []download.Provider {
	return []download.Provider{
		{Name: "cobalt-main", URL: "https://api.cobalt.tools/"},
		{Name: "cobalt-backup", URL: "https://cobalt-backend.canine.tools/"},
	}
}
