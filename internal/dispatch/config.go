package dispatch

import (
	"os"
	"runtime"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors dispatcher.yml
type Config struct {
	Workers          int    `yaml:"workers"`           // worker pool size (default: NumCPU)
	LogLevel         string `yaml:"log_level"`         // debug, info, warn, error
	LogFormat        string `yaml:"log_format"`        // text, json
	MetricsNamespace string `yaml:"metrics_namespace"` // prometheus namespace
	MetricsAddr      string `yaml:"metrics_addr"`      // listen address for /metrics, empty = disabled
}

// If the config file is not found, we use default values
func defaultConfig() Config {
	return Config{
		Workers:          runtime.NumCPU(),
		LogLevel:         "info",
		LogFormat:        "text",
		MetricsNamespace: "dispatcher",
		MetricsAddr:      "",
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)

	// sanity clamps
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.MetricsNamespace == "" {
		cfg.MetricsNamespace = "dispatcher"
	}

	return cfg
}
