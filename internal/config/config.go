package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig supplies per-provider defaults. Environment variables win
// over anything set here.
type ProviderConfig struct {
	BaseURL    string `json:"base_url"`
	Model      string `json:"model"`
	APIKey     string `json:"api_key"`
	APIVersion string `json:"api_version"`
}

type BasicConfig struct {
	ServerAddress         string `json:"server_address"`
	MinWorkers            int    `json:"min_workers"`
	MaxWorkers            int    `json:"max_workers"`
	QueueSize             int    `json:"queue_size"`
	WorkerIdleTimeout     int    `json:"worker_idle_timeout"` // seconds
	RequestTimeout        int    `json:"request_timeout"`     // seconds
	MaxUploadMB           int    `json:"max_upload_mb"`
	SummaryCacheSize      int    `json:"summary_cache_size"`
	MaxPromptContextBytes int    `json:"max_prompt_context_bytes"`
}

const (
	DefaultServerAddress  = ":8000"
	DefaultMinWorkers     = 2
	DefaultMaxWorkers     = 8
	DefaultQueueSize      = 64
	DefaultWorkerIdle     = 60
	DefaultRequestTimeout = 120
	DefaultMaxUploadMB    = 32
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{Providers: map[string]ProviderConfig{}}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the provided path. An empty path falls back
// to config.json in the working directory, and to built-in defaults when that
// file does not exist either.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if err := cfg.BasicConfig.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (b BasicConfig) validate() error {
	if b.MinWorkers < 0 || b.MaxWorkers < 0 || b.QueueSize < 0 {
		return fmt.Errorf("worker settings must not be negative")
	}
	if b.MaxWorkers > 0 && b.MinWorkers > b.MaxWorkers {
		return fmt.Errorf("min_workers (%d) exceeds max_workers (%d)", b.MinWorkers, b.MaxWorkers)
	}
	if b.RequestTimeout < 0 || b.MaxUploadMB < 0 {
		return fmt.Errorf("request_timeout and max_upload_mb must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = DefaultServerAddress
	}
	if b.MinWorkers == 0 {
		b.MinWorkers = DefaultMinWorkers
	}
	if b.MaxWorkers == 0 {
		b.MaxWorkers = DefaultMaxWorkers
	}
	if b.MaxWorkers < b.MinWorkers {
		b.MaxWorkers = b.MinWorkers
	}
	if b.QueueSize == 0 {
		b.QueueSize = DefaultQueueSize
	}
	if b.WorkerIdleTimeout <= 0 {
		b.WorkerIdleTimeout = DefaultWorkerIdle
	}
	if b.RequestTimeout == 0 {
		b.RequestTimeout = DefaultRequestTimeout
	}
	if b.MaxUploadMB == 0 {
		b.MaxUploadMB = DefaultMaxUploadMB
	}
}

// RequestTimeoutDuration bounds every gateway call.
func (b BasicConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(b.RequestTimeout) * time.Second
}

func (b BasicConfig) WorkerIdleDuration() time.Duration {
	return time.Duration(b.WorkerIdleTimeout) * time.Second
}

func (b BasicConfig) MaxUploadBytes() int64 {
	return int64(b.MaxUploadMB) << 20
}

// LoadDotEnv loads .env from the working directory and its parent. Variables
// already present in the environment are left untouched.
func LoadDotEnv() {
	candidates := []string{".env", filepath.Join("..", ".env")}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Printf("load %s: %v", path, err)
		}
	}
}
