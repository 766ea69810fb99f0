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

// Config holds the ragd service configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Logging      LoggingConfig      `yaml:"logging"`
	Documents    DocumentsConfig    `yaml:"documents"`
	Chunking     ChunkingConfig     `yaml:"chunking"`
	Index        IndexConfig        `yaml:"index"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Generation   GenerationConfig   `yaml:"generation"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Conversation ConversationConfig `yaml:"conversation"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DocumentsConfig holds the corpus location and glob filters.
type DocumentsConfig struct {
	Path    string   `yaml:"path"`
	Include []string `yaml:"include"` // doublestar globs; default **/*.txt, **/*.md
	Exclude []string `yaml:"exclude"`
}

// ChunkingConfig holds splitter settings. Sizes are in runes. The pointer
// fields distinguish unset from an explicit zero: leaving them out selects a
// default scaled to max_chunk_chars, while 0 turns the feature off.
type ChunkingConfig struct {
	MaxChunkChars int      `yaml:"max_chunk_chars"`
	OverlapChars  *int     `yaml:"overlap_chars"`   // unset: a fifth of max_chunk_chars; 0: no overlap
	MinChunkChars *int     `yaml:"min_chunk_chars"` // unset: overlap+1; 0: no floor
	Separators    []string `yaml:"separators"`      // coarse to fine; empty selects the default hierarchy
}

// Overlap and MinChunk return the effective rune sizes, treating unset as
// zero. Load always fills the pointers via ApplyDefaults; the nil handling
// covers hand-built configs.
func (c ChunkingConfig) Overlap() int  { return deref(c.OverlapChars) }
func (c ChunkingConfig) MinChunk() int { return deref(c.MinChunkChars) }

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// IndexConfig holds vector index settings. Driver selects the backend.
type IndexConfig struct {
	Driver string      `yaml:"driver"` // memory, bolt, redis (default: memory)
	Metric string      `yaml:"metric"` // cosine, l2 (default: cosine)
	Bolt   BoltConfig  `yaml:"bolt"`
	Redis  RedisConfig `yaml:"redis"`
}

// BoltConfig holds the bolt driver settings.
type BoltConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds the redis driver settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	Provider        string  `yaml:"provider"`
	BaseURL         string  `yaml:"base_url"`
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	Dimensions      int     `yaml:"dimensions"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"` // 0 disables throttling

	// Asymmetric instruction prefixes for models that expect them
	// (nomic-embed-text wants "search_document: " / "search_query: ").
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// GenerationConfig holds the generation model settings.
type GenerationConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	TopK        int     `yaml:"top_k"`
	MaxDistance float64 `yaml:"max_distance"` // 0 keeps every candidate
}

// ConversationConfig holds conversation store settings.
type ConversationConfig struct {
	HistoryWindow   int `yaml:"history_window"`
	MaxTurns        int `yaml:"max_turns"`
	MaxContextChars int `yaml:"max_context_chars"`
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
		// streamed answers hold the response open for the whole generation
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Documents.Path == "" {
		c.Documents.Path = "./documents"
	}
	if c.Chunking.MaxChunkChars <= 0 {
		c.Chunking.MaxChunkChars = 500
	}
	if c.Chunking.OverlapChars == nil {
		overlap := c.Chunking.MaxChunkChars / 5
		c.Chunking.OverlapChars = &overlap
	}
	if c.Chunking.MinChunkChars == nil {
		// a floor just above the overlap keeps non-final chunks from being
		// pure repeats of the previous chunk's tail
		floor := 0
		if o := *c.Chunking.OverlapChars; o > 0 && o+1 < c.Chunking.MaxChunkChars {
			floor = o + 1
		}
		c.Chunking.MinChunkChars = &floor
	}
	if c.Index.Driver == "" {
		c.Index.Driver = "memory"
	}
	if c.Index.Metric == "" {
		c.Index.Metric = "cosine"
	}
	if c.Index.Bolt.Path == "" {
		c.Index.Bolt.Path = "./data/ragd.db"
	}
	if c.Index.Redis.ReadinessTimeout <= 0 {
		c.Index.Redis.ReadinessTimeout = 10
	}
	if c.Index.Redis.HNSWM <= 0 {
		c.Index.Redis.HNSWM = 32
	}
	if c.Index.Redis.HNSWEFConstruct <= 0 {
		c.Index.Redis.HNSWEFConstruct = 400
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 10
	}
	if c.Conversation.HistoryWindow <= 0 {
		c.Conversation.HistoryWindow = 3
	}
	if c.Conversation.MaxTurns <= 0 {
		c.Conversation.MaxTurns = 100
	}
	if c.Conversation.MaxContextChars <= 0 {
		c.Conversation.MaxContextChars = 8000
	}
}

// Validate checks the configuration for correctness. Anything wrong here is
// fatal at startup; per-call validation never re-checks these.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	overlap := c.Chunking.Overlap()
	if overlap < 0 || overlap >= c.Chunking.MaxChunkChars {
		return fmt.Errorf("chunking.overlap_chars must be in [0, %d), got %d",
			c.Chunking.MaxChunkChars, overlap)
	}
	floor := c.Chunking.MinChunk()
	if floor < 0 || floor >= c.Chunking.MaxChunkChars {
		return fmt.Errorf("chunking.min_chunk_chars must be in [0, %d), got %d",
			c.Chunking.MaxChunkChars, floor)
	}
	switch c.Index.Driver {
	case "memory", "bolt":
	case "redis":
		if len(c.Index.Redis.Addrs) == 0 {
			return fmt.Errorf("index.redis.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("index.driver must be memory, bolt, or redis, got %q", c.Index.Driver)
	}
	switch c.Index.Metric {
	case "cosine", "l2":
	default:
		return fmt.Errorf("index.metric must be cosine or l2, got %q", c.Index.Metric)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.RateLimitPerSec < 0 {
		return fmt.Errorf("embedding.rate_limit_per_sec must not be negative, got %g",
			c.Embedding.RateLimitPerSec)
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.Retrieval.MaxDistance < 0 {
		return fmt.Errorf("retrieval.max_distance must not be negative, got %g", c.Retrieval.MaxDistance)
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
