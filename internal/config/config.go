package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported renderer backends
const (
	RendererChrome = "chrome"
	RendererHTTP   = "http"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all runtime configuration parameters
type Config struct {
	SeedURL  string `json:"seed_url" yaml:"seed_url"`
	MaxDepth *int   `json:"max_depth" yaml:"max_depth"`
	Workers  int    `json:"workers" yaml:"workers"`

	Renderer        string `json:"renderer" yaml:"renderer"`
	RenderTimeoutMs int    `json:"render_timeout_ms" yaml:"render_timeout_ms"`
	ReadyTimeoutMs  int    `json:"ready_timeout_ms" yaml:"ready_timeout_ms"`
	ReadySelector   string `json:"ready_selector" yaml:"ready_selector"`
	ChromePath      string `json:"chrome_path" yaml:"chrome_path"`
	Headless        *bool  `json:"headless" yaml:"headless"`
	UserAgent       string `json:"user_agent" yaml:"user_agent"`

	SearchEngine string `json:"search_engine" yaml:"search_engine"`
	SearchQuery  string `json:"search_query" yaml:"search_query"`
	SearchPages  int    `json:"search_pages" yaml:"search_pages"`

	FileExtensions       []string `json:"file_extensions" yaml:"file_extensions"`
	SkipPaths            []string `json:"skip_paths" yaml:"skip_paths"`
	NonNavigablePrefixes []string `json:"non_navigable_prefixes" yaml:"non_navigable_prefixes"`

	DBPath      string `json:"db_path" yaml:"db_path"`
	MetricsPath string `json:"metrics_path" yaml:"metrics_path"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
}

// LoadConfig reads and validates configuration from a JSON or YAML file
func LoadConfig(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile parses a config file without applying defaults or validating it,
// so callers can layer overrides before calling Finalize
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes config data. The format is chosen by the extension of name:
// .yaml and .yml are YAML, anything else is JSON.
func Parse(data []byte, name string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no seed
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Finalize applies defaults and validates the configuration
func (c *Config) Finalize() error {
	applyDefaults(c)
	if err := validate(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Depth returns the configured depth bound
func (c *Config) Depth() int {
	if c.MaxDepth == nil {
		return DefaultMaxDepth
	}
	return *c.MaxDepth
}

// IsHeadless reports whether Chrome should run without a window
func (c *Config) IsHeadless() bool {
	return c.Headless == nil || *c.Headless
}

// DefaultMaxDepth is used when max_depth is not set
const DefaultMaxDepth = 2

// DefaultReadyTimeoutMs bounds the anchor wait. It is halved when the render
// timeout is not larger, so the wait always expires before the page deadline.
const DefaultReadyTimeoutMs = 5000

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.MaxDepth == nil {
		depth := DefaultMaxDepth
		cfg.MaxDepth = &depth
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.Renderer == "" {
		cfg.Renderer = RendererChrome
	}
	if cfg.RenderTimeoutMs == 0 {
		cfg.RenderTimeoutMs = 20000
	}
	if cfg.ReadyTimeoutMs == 0 {
		cfg.ReadyTimeoutMs = DefaultReadyTimeoutMs
		if cfg.ReadyTimeoutMs >= cfg.RenderTimeoutMs {
			cfg.ReadyTimeoutMs = cfg.RenderTimeoutMs / 2
		}
	}
	if cfg.ReadySelector == "" {
		cfg.ReadySelector = "a"
	}
	if cfg.SearchEngine == "" {
		cfg.SearchEngine = "duckduckgo"
	}
	if cfg.SearchPages == 0 {
		cfg.SearchPages = 1
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "links.db"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if cfg.SeedURL == "" && cfg.SearchQuery == "" {
		return fmt.Errorf("seed_url or search_query is required")
	}
	if cfg.Depth() < 0 {
		return fmt.Errorf("max_depth must be >= 0")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if cfg.Renderer != RendererChrome && cfg.Renderer != RendererHTTP {
		return fmt.Errorf("renderer must be %q or %q", RendererChrome, RendererHTTP)
	}
	if cfg.RenderTimeoutMs < 1000 {
		return fmt.Errorf("render_timeout_ms must be >= 1000")
	}
	if cfg.ReadyTimeoutMs < 1 || cfg.ReadyTimeoutMs >= cfg.RenderTimeoutMs {
		return fmt.Errorf("ready_timeout_ms must be positive and below render_timeout_ms")
	}
	if cfg.SearchPages < 1 {
		return fmt.Errorf("search_pages must be >= 1")
	}
	return nil
}
