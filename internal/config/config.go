// Package config provides configuration management for cyberrag.
// Settings start from defaults, are overlaid by an optional YAML file and
// finally by environment variables with the CYBERRAG_ prefix.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration settings for cyberrag.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// LLMConfig contains language model provider configuration.
type LLMConfig struct {
	Provider   string        `yaml:"provider"`    // openai, anthropic, ollama, demo (default: openai)
	Model      string        `yaml:"model"`       // default: gpt-3.5-turbo
	APIKey     string        `yaml:"api_key"`     // falls back to OPENAI_API_KEY / ANTHROPIC_API_KEY
	BaseURL    string        `yaml:"base_url"`    // provider endpoint override
	Timeout    time.Duration `yaml:"timeout"`     // per request (default: 60s)
	MaxRetries int           `yaml:"max_retries"` // total attempts, 1 disables retry (default: 3)
	RateLimit  float64       `yaml:"rate_limit"`  // requests per second, 0 disables (default: 0)
	RateBurst  int           `yaml:"rate_burst"`  // default: 1
}

// EmbeddingConfig selects the embedding function shared by both engines and
// the evaluator.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`   // hashing, openai, ollama (default: hashing)
	Model      string `yaml:"model"`      // remote model name
	Dimensions int    `yaml:"dimensions"` // hashing encoder width (default: 384)
	CacheSize  int    `yaml:"cache_size"` // LRU entries, 0 disables (default: 1024)
}

// RetrievalConfig contains per-query generation settings.
type RetrievalConfig struct {
	TopK          int     `yaml:"top_k"`          // default: 3
	Temperature   float64 `yaml:"temperature"`    // default: 0.7
	MaxTokens     int     `yaml:"max_tokens"`     // default: 500
	FailurePolicy string  `yaml:"failure_policy"` // degrade, propagate (default: degrade)
}

// ExperimentConfig contains batch run settings.
type ExperimentConfig struct {
	Workers   int    `yaml:"workers"`    // concurrent queries per method (default: 1)
	OutputDir string `yaml:"output_dir"` // default: ./results
	Dataset   string `yaml:"dataset"`    // YAML dataset path, empty uses the built-in corpus
}

// StorageConfig contains run history storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // sqlite, postgres, none (default: sqlite)
	DataPath    string `yaml:"data_path"`    // sqlite directory (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // required for postgres
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host      string  `yaml:"host"`       // default: 127.0.0.1
	Port      int     `yaml:"port"`       // default: 8080
	APIToken  string  `yaml:"api_token"`  // bearer token, empty disables auth
	RateLimit float64 `yaml:"rate_limit"` // requests per second per server (default: 20)
	RateBurst int     `yaml:"rate_burst"` // default: 40
}

// CacheConfig contains LLM response cache configuration.
type CacheConfig struct {
	Backend  string        `yaml:"backend"`   // none, memory, redis (default: none)
	Size     int           `yaml:"size"`      // memory entries (default: 512)
	RedisURL string        `yaml:"redis_url"` // e.g. redis://localhost:6379/0
	TTL      time.Duration `yaml:"ttl"`       // redis expiry (default: 24h)
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // text, json (default: text)
}

// TracingConfig contains OpenTelemetry configuration.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`      // default: false
	Endpoint    string  `yaml:"endpoint"`     // OTLP gRPC endpoint (default: localhost:4317)
	Insecure    bool    `yaml:"insecure"`     // default: true
	ServiceName string  `yaml:"service_name"` // default: cyberrag
	SampleRatio float64 `yaml:"sample_ratio"` // default: 1.0
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:   "openai",
			Model:      "gpt-3.5-turbo",
			Timeout:    60 * time.Second,
			MaxRetries: 3,
			RateBurst:  1,
		},
		Embedding: EmbeddingConfig{
			Provider:   "hashing",
			Dimensions: 384,
			CacheSize:  1024,
		},
		Retrieval: RetrievalConfig{
			TopK:          3,
			Temperature:   0.7,
			MaxTokens:     500,
			FailurePolicy: "degrade",
		},
		Experiment: ExperimentConfig{
			Workers:   1,
			OutputDir: "./results",
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			RateLimit: 20,
			RateBurst: 40,
		},
		Cache: CacheConfig{
			Backend: "none",
			Size:    512,
			TTL:     24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "cyberrag",
			SampleRatio: 1.0,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and CYBERRAG_ environment variables, in that order.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LLM.Provider = getEnv("CYBERRAG_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = getEnv("CYBERRAG_LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("CYBERRAG_LLM_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("CYBERRAG_LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Timeout = getEnvDuration("CYBERRAG_LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxRetries = getEnvInt("CYBERRAG_LLM_MAX_RETRIES", c.LLM.MaxRetries)
	c.LLM.RateLimit = getEnvFloat("CYBERRAG_LLM_RATE_LIMIT", c.LLM.RateLimit)
	c.LLM.RateBurst = getEnvInt("CYBERRAG_LLM_RATE_BURST", c.LLM.RateBurst)

	c.Embedding.Provider = getEnv("CYBERRAG_EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("CYBERRAG_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimensions = getEnvInt("CYBERRAG_EMBEDDING_DIMENSIONS", c.Embedding.Dimensions)
	c.Embedding.CacheSize = getEnvInt("CYBERRAG_EMBEDDING_CACHE_SIZE", c.Embedding.CacheSize)

	c.Retrieval.TopK = getEnvInt("CYBERRAG_TOP_K", c.Retrieval.TopK)
	c.Retrieval.Temperature = getEnvFloat("CYBERRAG_TEMPERATURE", c.Retrieval.Temperature)
	c.Retrieval.MaxTokens = getEnvInt("CYBERRAG_MAX_TOKENS", c.Retrieval.MaxTokens)
	c.Retrieval.FailurePolicy = getEnv("CYBERRAG_FAILURE_POLICY", c.Retrieval.FailurePolicy)

	c.Experiment.Workers = getEnvInt("CYBERRAG_WORKERS", c.Experiment.Workers)
	c.Experiment.OutputDir = getEnv("CYBERRAG_OUTPUT_DIR", c.Experiment.OutputDir)
	c.Experiment.Dataset = getEnv("CYBERRAG_DATASET", c.Experiment.Dataset)

	c.Storage.Engine = getEnv("CYBERRAG_STORAGE_ENGINE", c.Storage.Engine)
	c.Storage.DataPath = getEnv("CYBERRAG_DATA_PATH", c.Storage.DataPath)
	c.Storage.PostgresDSN = getEnv("CYBERRAG_POSTGRES_DSN", c.Storage.PostgresDSN)

	c.Server.Host = getEnv("CYBERRAG_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("CYBERRAG_PORT", c.Server.Port)
	c.Server.APIToken = getEnv("CYBERRAG_API_TOKEN", c.Server.APIToken)
	c.Server.RateLimit = getEnvFloat("CYBERRAG_SERVER_RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateBurst = getEnvInt("CYBERRAG_SERVER_RATE_BURST", c.Server.RateBurst)

	c.Cache.Backend = getEnv("CYBERRAG_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Size = getEnvInt("CYBERRAG_CACHE_SIZE", c.Cache.Size)
	c.Cache.RedisURL = getEnv("CYBERRAG_REDIS_URL", c.Cache.RedisURL)
	c.Cache.TTL = getEnvDuration("CYBERRAG_CACHE_TTL", c.Cache.TTL)

	c.Logging.Level = getEnv("CYBERRAG_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("CYBERRAG_LOG_FORMAT", c.Logging.Format)

	c.Tracing.Enabled = getEnvBool("CYBERRAG_TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.Endpoint = getEnv("CYBERRAG_OTLP_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.Insecure = getEnvBool("CYBERRAG_OTLP_INSECURE", c.Tracing.Insecure)
	c.Tracing.ServiceName = getEnv("CYBERRAG_SERVICE_NAME", c.Tracing.ServiceName)
	c.Tracing.SampleRatio = getEnvFloat("CYBERRAG_TRACE_SAMPLE_RATIO", c.Tracing.SampleRatio)
}

func (c *Config) normalize() {
	for _, s := range []*string{
		&c.LLM.Provider, &c.Embedding.Provider, &c.Retrieval.FailurePolicy,
		&c.Storage.Engine, &c.Cache.Backend, &c.Logging.Level, &c.Logging.Format,
	} {
		*s = strings.ToLower(strings.TrimSpace(*s))
	}
}

// Validate reports every setting that would make the program fail later.
// All problems are joined into one error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(oneOf(c.LLM.Provider, "openai", "anthropic", "ollama", "demo"),
		"llm.provider %q is not supported", c.LLM.Provider)
	check(c.LLM.Timeout > 0, "llm.timeout must be positive")
	check(c.LLM.MaxRetries >= 1, "llm.max_retries must be at least 1")
	check(c.LLM.RateLimit >= 0, "llm.rate_limit must not be negative")

	check(oneOf(c.Embedding.Provider, "hashing", "openai", "ollama"),
		"embedding.provider %q is not supported", c.Embedding.Provider)
	check(c.Embedding.Dimensions > 0, "embedding.dimensions must be positive")
	check(c.Embedding.CacheSize >= 0, "embedding.cache_size must not be negative")

	check(c.Retrieval.TopK >= 1, "retrieval.top_k must be positive")
	check(c.Retrieval.Temperature >= 0 && c.Retrieval.Temperature <= 2, "retrieval.temperature must be within [0, 2]")
	check(c.Retrieval.MaxTokens >= 1, "retrieval.max_tokens must be positive")
	check(oneOf(c.Retrieval.FailurePolicy, "degrade", "propagate"),
		"retrieval.failure_policy %q is not supported", c.Retrieval.FailurePolicy)

	check(c.Experiment.Workers >= 1, "experiment.workers must be at least 1")

	check(oneOf(c.Storage.Engine, "sqlite", "postgres", "none"),
		"storage.engine %q is not supported", c.Storage.Engine)
	if c.Storage.Engine == "postgres" {
		check(c.Storage.PostgresDSN != "", "storage.postgres_dsn is required for postgres")
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d is out of range", c.Server.Port)
	check(c.Server.RateLimit >= 0, "server.rate_limit must not be negative")

	check(oneOf(c.Cache.Backend, "none", "memory", "redis"),
		"cache.backend %q is not supported", c.Cache.Backend)
	if c.Cache.Backend == "redis" {
		check(c.Cache.RedisURL != "", "cache.redis_url is required for redis")
	}
	if c.Cache.Backend == "memory" {
		check(c.Cache.Size > 0, "cache.size must be positive")
	}

	check(oneOf(c.Logging.Level, "debug", "info", "warn", "error"),
		"logging.level %q is not supported", c.Logging.Level)
	check(oneOf(c.Logging.Format, "text", "json"),
		"logging.format %q is not supported", c.Logging.Format)

	if c.Tracing.Enabled {
		check(c.Tracing.Endpoint != "", "tracing.endpoint is required when tracing is enabled")
	}
	check(c.Tracing.SampleRatio >= 0 && c.Tracing.SampleRatio <= 1, "tracing.sample_ratio must be within [0, 1]")

	return errors.Join(errs...)
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
