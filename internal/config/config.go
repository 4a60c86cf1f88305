// Package config loads the application configuration from a YAML file with
// environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Debug      bool            `yaml:"debug"`
	Server     ServerConfig    `yaml:"server"`
	Database   DatabaseConfig  `yaml:"database"`
	Extractors ExtractorConfig `yaml:"extractors"`
	Vectorize  VectorizeConfig `yaml:"vectorize"`
	Search     SearchConfig    `yaml:"search"`
	Jobs       JobsConfig      `yaml:"jobs"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig selects sqlite or postgres, mirroring the store's dual
// driver support.
type DatabaseConfig struct {
	Type           string `yaml:"type"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Name           string `yaml:"name"`
	SQLitePath     string `yaml:"sqlite_path"`
	MigrationsPath string `yaml:"migrations_path"`
}

// ExtractorConfig points at the external model services.
type ExtractorConfig struct {
	EmbedderURL   string `yaml:"embedder_url"`
	DetectorURL   string `yaml:"detector_url"`
	MediaURL      string `yaml:"media_url"`
	TimeoutSec    int    `yaml:"timeout_sec"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

type VectorizeConfig struct {
	FrameIntervalSec float64 `yaml:"frame_interval_sec"`
	SnapshotDir      string  `yaml:"snapshot_dir"`
	StoreRetries     int     `yaml:"store_retries"`
	RetryBackoffMS   int     `yaml:"retry_backoff_ms"`
}

// SearchConfig holds candidate limits and fusion weights. Weights are
// renormalized over the components applicable to each candidate, so they only
// need to be positive, not sum to one.
type SearchConfig struct {
	MaxCandidates int     `yaml:"max_candidates"`
	TopResults    int     `yaml:"top_results"`
	MinClipScore  float64 `yaml:"min_clip_score"`
	EventBatch    int     `yaml:"event_batch"`
	ClipWeight    float64 `yaml:"clip_weight"`
	ColorWeight   float64 `yaml:"color_weight"`
	PlateWeight   float64 `yaml:"plate_weight"`
}

type JobsConfig struct {
	Workers int `yaml:"workers"`
}

// Load reads the config file at path when it exists, applies defaults, then
// environment overrides. A missing file is not an error; env-only deployments
// are supported.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "./video-searcher.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.MigrationsPath == "" {
		c.Database.MigrationsPath = "./migrations"
	}
	if c.Extractors.TimeoutSec == 0 {
		c.Extractors.TimeoutSec = 30
	}
	if c.Extractors.MaxConcurrent == 0 {
		c.Extractors.MaxConcurrent = 4
	}
	if c.Vectorize.FrameIntervalSec == 0 {
		c.Vectorize.FrameIntervalSec = 1.0
	}
	if c.Vectorize.StoreRetries == 0 {
		c.Vectorize.StoreRetries = 3
	}
	if c.Vectorize.RetryBackoffMS == 0 {
		c.Vectorize.RetryBackoffMS = 200
	}
	if c.Search.MaxCandidates == 0 {
		c.Search.MaxCandidates = 500
	}
	if c.Search.TopResults == 0 {
		c.Search.TopResults = 50
	}
	if c.Search.EventBatch == 0 {
		c.Search.EventBatch = 20
	}
	if c.Search.ClipWeight == 0 {
		c.Search.ClipWeight = 0.4
	}
	if c.Search.ColorWeight == 0 {
		c.Search.ColorWeight = 0.2
	}
	if c.Search.PlateWeight == 0 {
		c.Search.PlateWeight = 0.4
	}
	if c.Jobs.Workers == 0 {
		c.Jobs.Workers = 4
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DB_TYPE"); v != "" {
		c.Database.Type = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Database.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("MIGRATIONS_PATH"); v != "" {
		c.Database.MigrationsPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("EMBEDDER_URL"); v != "" {
		c.Extractors.EmbedderURL = v
	}
	if v := os.Getenv("DETECTOR_URL"); v != "" {
		c.Extractors.DetectorURL = v
	}
	if v := os.Getenv("MEDIA_URL"); v != "" {
		c.Extractors.MediaURL = v
	}
}
