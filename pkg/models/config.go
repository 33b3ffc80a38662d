package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Global  GlobalConfig  `yaml:"global" json:"global"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Scanner ScannerConfig `yaml:"scanner" json:"scanner"`
	GitHub  GitHubConfig  `yaml:"github" json:"github"`
	AI      AIConfig      `yaml:"ai" json:"ai"`
	Cache   CacheConfig   `yaml:"cache" json:"cache"`
}

type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
	LogFile   string `yaml:"log_file" json:"log_file"`
	DataDir   string `yaml:"data_dir" json:"data_dir"`
}

type ServerConfig struct {
	Host           string        `yaml:"host" json:"host"`
	Port           int           `yaml:"port" json:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	SessionSecret  string        `yaml:"session_secret" json:"session_secret"`
	MetricsEnabled bool          `yaml:"metrics_enabled" json:"metrics_enabled"`
}

type ScannerConfig struct {
	MaxConcurrentScans int           `yaml:"max_concurrent_scans" json:"max_concurrent_scans"`
	DefaultModel       string        `yaml:"default_model" json:"default_model"`
	StepDelay          time.Duration `yaml:"step_delay" json:"step_delay"`
	IssueSampleSize    int           `yaml:"issue_sample_size" json:"issue_sample_size"`

	// MaxPasses is derived from ai.max_passes at wiring time, not a
	// scanner config key of its own.
	MaxPasses int `yaml:"-" json:"-"`
}

type GitHubConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit"`
	Burst     int           `yaml:"burst" json:"burst"`
}

type AIConfig struct {
	BaseURL      string        `yaml:"base_url" json:"base_url"`
	APIKey       string        `yaml:"api_key" json:"api_key"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	DefaultModel string        `yaml:"default_model" json:"default_model"`
	MaxPasses    int           `yaml:"max_passes" json:"max_passes"`
}

type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	TTL            time.Duration `yaml:"ttl" json:"ttl"`
	MaxEntries     int           `yaml:"max_entries" json:"max_entries"`
	StaleRetention time.Duration `yaml:"stale_retention" json:"stale_retention"`
	SweepInterval  time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			LogLevel:  "info",
			LogFormat: "json",
			DataDir:   "./data",
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			MetricsEnabled: true,
		},
		Scanner: ScannerConfig{
			MaxConcurrentScans: 5,
			DefaultModel:       "gpt-4o-mini",
			IssueSampleSize:    30,
		},
		GitHub: GitHubConfig{
			BaseURL:   "https://api.github.com",
			Timeout:   30 * time.Second,
			RateLimit: 10,
			Burst:     5,
		},
		AI: AIConfig{
			BaseURL:      "https://api.openai.com/v1",
			Timeout:      2 * time.Minute,
			DefaultModel: "gpt-4o-mini",
			MaxPasses:    3,
		},
		Cache: CacheConfig{
			Enabled:        true,
			TTL:            5 * time.Minute,
			MaxEntries:     1024,
			StaleRetention: 24 * time.Hour,
			SweepInterval:  10 * time.Minute,
		},
	}
}

func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Global.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		errs = append(errs, "global.log_level must be one of trace|debug|info|warn|error|fatal|panic")
	}
	switch strings.ToLower(c.Global.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, "global.log_format must be text or json")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be in 1..65535")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be > 0")
	}

	if c.Scanner.MaxConcurrentScans <= 0 {
		errs = append(errs, "scanner.max_concurrent_scans must be > 0")
	}
	if c.Scanner.StepDelay < 0 {
		errs = append(errs, "scanner.step_delay must be >= 0")
	}
	if c.Scanner.IssueSampleSize < 0 {
		errs = append(errs, "scanner.issue_sample_size must be >= 0")
	}

	if c.GitHub.BaseURL == "" {
		errs = append(errs, "github.base_url must not be empty")
	}
	if c.GitHub.Timeout <= 0 {
		errs = append(errs, "github.timeout must be > 0")
	}
	if c.GitHub.RateLimit <= 0 {
		errs = append(errs, "github.rate_limit must be > 0")
	}
	if c.GitHub.Burst <= 0 {
		errs = append(errs, "github.burst must be > 0")
	}

	if c.AI.BaseURL == "" {
		errs = append(errs, "ai.base_url must not be empty")
	}
	if c.AI.Timeout <= 0 {
		errs = append(errs, "ai.timeout must be > 0")
	}
	if c.AI.MaxPasses <= 0 {
		errs = append(errs, "ai.max_passes must be > 0")
	}

	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			errs = append(errs, "cache.ttl must be > 0 when the cache is enabled")
		}
		if c.Cache.MaxEntries <= 0 {
			errs = append(errs, "cache.max_entries must be > 0 when the cache is enabled")
		}
		if c.Cache.StaleRetention < c.Cache.TTL {
			errs = append(errs, "cache.stale_retention must be >= cache.ttl")
		}
		if c.Cache.SweepInterval <= 0 {
			errs = append(errs, "cache.sweep_interval must be > 0 when the cache is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var (
		data []byte
		err  error
	)
	switch ext {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomically write config: %w", err)
	}
	return nil
}

func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
	}

	return c.Validate()
}
