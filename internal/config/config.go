package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the geosearch service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds RediSearch connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// IndexConfig holds index naming, schema, and HNSW settings.
type IndexConfig struct {
	Name            string `yaml:"name"`
	SchemaPath      string `yaml:"schema_path"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// SearchConfig holds retrieval and ranking settings.
type SearchConfig struct {
	PageSize           int     `yaml:"page_size"`
	MaxPageSize        int     `yaml:"max_page_size"`
	SearchThreshold    float64 `yaml:"search_threshold"`    // minimum fused score to appear at all
	ConfidentThreshold float64 `yaml:"confident_threshold"` // stricter tier boundary
	LexicalWeight      float64 `yaml:"lexical_weight"`      // convex fusion weight in [0,1]
	OverfetchFactor    int     `yaml:"overfetch_factor"`    // retrieval limit = page size * factor
	QueryTimeoutSec    int     `yaml:"query_timeout_sec"`
}

// EmbeddingConfig holds inference backend settings.
type EmbeddingConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	MaxTokens   int    `yaml:"max_tokens"`
	Pooling     string `yaml:"pooling"` // mean | cls
	Normalize   bool   `yaml:"normalize"`
	Quantized   bool   `yaml:"quantized"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"` // 0 = no expiry
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	Workers           int `yaml:"workers"`
	MaxBatchSize      int `yaml:"max_batch_size"`
	MaxRetries        int `yaml:"max_retries"`
	RetryBaseMs       int `yaml:"retry_base_ms"`
	AttemptTimeoutSec int `yaml:"attempt_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "geosearch:"
	}
	if c.Index.Name == "" {
		c.Index.Name = "geoss-records"
	}
	if c.Index.SchemaPath == "" {
		c.Index.SchemaPath = "schema.yaml"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Search.PageSize <= 0 {
		c.Search.PageSize = 10
	}
	if c.Search.MaxPageSize <= 0 {
		c.Search.MaxPageSize = 100
	}
	if c.Search.SearchThreshold <= 0 {
		c.Search.SearchThreshold = 0.6
	}
	if c.Search.ConfidentThreshold <= 0 {
		c.Search.ConfidentThreshold = 0.7
	}
	if c.Search.LexicalWeight <= 0 {
		c.Search.LexicalWeight = 0.5
	}
	if c.Search.OverfetchFactor <= 0 {
		c.Search.OverfetchFactor = 4
	}
	if c.Search.QueryTimeoutSec <= 0 {
		c.Search.QueryTimeoutSec = 15
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "distiluse-base-multilingual-cased-v2"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Embedding.MaxTokens <= 0 {
		c.Embedding.MaxTokens = 512
	}
	if c.Embedding.Pooling == "" {
		c.Embedding.Pooling = "mean"
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.MaxBatchSize <= 0 {
		c.Ingest.MaxBatchSize = 500
	}
	if c.Ingest.MaxRetries <= 0 {
		c.Ingest.MaxRetries = 5
	}
	if c.Ingest.RetryBaseMs <= 0 {
		c.Ingest.RetryBaseMs = 200
	}
	if c.Ingest.AttemptTimeoutSec <= 0 {
		c.Ingest.AttemptTimeoutSec = 30
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	if c.Search.SearchThreshold > 1 {
		return fmt.Errorf("search.search_threshold must be in [0,1], got %g", c.Search.SearchThreshold)
	}
	if c.Search.ConfidentThreshold > 1 {
		return fmt.Errorf("search.confident_threshold must be in [0,1], got %g", c.Search.ConfidentThreshold)
	}
	if c.Search.ConfidentThreshold < c.Search.SearchThreshold {
		return fmt.Errorf(
			"search.confident_threshold (%g) must be >= search.search_threshold (%g)",
			c.Search.ConfidentThreshold, c.Search.SearchThreshold,
		)
	}
	if c.Search.LexicalWeight > 1 {
		return fmt.Errorf("search.lexical_weight must be in [0,1], got %g", c.Search.LexicalWeight)
	}
	switch c.Embedding.Pooling {
	case "mean", "cls":
	default:
		return fmt.Errorf("embedding.pooling must be \"mean\" or \"cls\", got %q", c.Embedding.Pooling)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
