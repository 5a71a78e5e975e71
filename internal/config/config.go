// Package config loads memsearchd's configuration: storage backend
// selection, embedding provider settings, scoring weights, and search
// defaults, from a YAML file with environment-variable overrides, applied
// in layered precedence: defaults, then project file, then environment.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is memsearchd's complete configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Scoring   ScoringConfig   `yaml:"scoring" json:"scoring"`
	Search    SearchConfig    `yaml:"search" json:"search"`
}

// StorageConfig selects and configures the MemoryStore backend.
type StorageConfig struct {
	// Type is one of "memory", "sqlite", "hnsw", or "remote".
	Type string `yaml:"type" json:"type"`
	// Connection is a backend-specific DSN: a file path for sqlite,
	// a host:port for remote. Unused for "memory" and "hnsw" (the hnsw
	// backend keeps everything in memory).
	Connection string `yaml:"connection" json:"connection"`
	// Collection namespaces multiple logical collections sharing one
	// backend connection.
	Collection string `yaml:"collection" json:"collection"`
	// Dimensions fixes the embedding width the collection was created
	// with; 0 means unvalidated.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// WAL enables SQLite's write-ahead log for concurrent readers during
	// writer transactions.
	WAL bool `yaml:"wal" json:"wal"`
	// FTSTokenizer selects the SQLite FTS5 tokenizer ("unicode61",
	// "porter", "trigram").
	FTSTokenizer string `yaml:"fts_tokenizer" json:"fts_tokenizer"`
}

// EmbeddingConfig configures the embedding provider boundary.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider" json:"provider"`
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
	Model       string `yaml:"model" json:"model"`
	Dimensions  int    `yaml:"dimensions" json:"dimensions"`
	CacheTTLMin int    `yaml:"cache_ttl_min" json:"cache_ttl_min"`
	BatchSize   int    `yaml:"batch_size" json:"batch_size"`
	TimeoutS    int    `yaml:"timeout_s" json:"timeout_s"`
}

// ScoringConfig configures the recency/importance/relevance/frequency
// weighting model.
type ScoringConfig struct {
	Alpha       float32 `yaml:"alpha" json:"alpha"`
	Beta        float32 `yaml:"beta" json:"beta"`
	Gamma       float32 `yaml:"gamma" json:"gamma"`
	Delta       float32 `yaml:"delta" json:"delta"`
	Decay       float32 `yaml:"decay" json:"decay"`
	ExpectedMax float32 `yaml:"expected_max" json:"expected_max"`
}

// SearchConfig configures HybridSearch defaults.
type SearchConfig struct {
	DefaultLimit int     `yaml:"default_limit" json:"default_limit"`
	MinScore     float64 `yaml:"min_score" json:"min_score"`
	DenseWeight  float64 `yaml:"dense_weight" json:"dense_weight"`
	SparseWeight float64 `yaml:"sparse_weight" json:"sparse_weight"`
	RRFK         int     `yaml:"rrf_k" json:"rrf_k"`
	UseMMR       bool    `yaml:"use_mmr" json:"use_mmr"`
	MMRLambda    float64 `yaml:"mmr_lambda" json:"mmr_lambda"`
}

// New returns the hardcoded defaults.
func New() *Config {
	return &Config{
		Storage: StorageConfig{
			Type:         "memory",
			Collection:   "default",
			Dimensions:   768,
			WAL:          true,
			FTSTokenizer: "unicode61",
		},
		Embedding: EmbeddingConfig{
			Provider:    "static",
			Model:       "static-768",
			Dimensions:  768,
			CacheTTLMin: 60,
			BatchSize:   32,
			TimeoutS:    30,
		},
		Scoring: ScoringConfig{
			Alpha:       0.3,
			Beta:        0.3,
			Gamma:       0.3,
			Delta:       0.1,
			Decay:       0.995,
			ExpectedMax: 100,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MinScore:     0,
			DenseWeight:  0.6,
			SparseWeight: 0.4,
			RRFK:         60,
			UseMMR:       false,
			MMRLambda:    0.5,
		},
	}
}

// Load applies configuration in order of increasing precedence:
//  1. Hardcoded defaults (New)
//  2. A project config file, ".memsearch.yaml" or ".memsearch.yml", in dir
//  3. Environment variables (MEMSEARCH_*)
//  4. Validation of the final result
func Load(dir string) (*Config, error) {
	cfg := New()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".memsearch.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".memsearch.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Storage.Type != "" {
		c.Storage.Type = other.Storage.Type
	}
	if other.Storage.Connection != "" {
		c.Storage.Connection = other.Storage.Connection
	}
	if other.Storage.Collection != "" {
		c.Storage.Collection = other.Storage.Collection
	}
	if other.Storage.Dimensions != 0 {
		c.Storage.Dimensions = other.Storage.Dimensions
	}
	if other.Storage.FTSTokenizer != "" {
		c.Storage.FTSTokenizer = other.Storage.FTSTokenizer
	}
	c.Storage.WAL = other.Storage.WAL || c.Storage.WAL

	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Endpoint != "" {
		c.Embedding.Endpoint = other.Embedding.Endpoint
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.CacheTTLMin != 0 {
		c.Embedding.CacheTTLMin = other.Embedding.CacheTTLMin
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.TimeoutS != 0 {
		c.Embedding.TimeoutS = other.Embedding.TimeoutS
	}

	if other.Scoring.Alpha != 0 {
		c.Scoring.Alpha = other.Scoring.Alpha
	}
	if other.Scoring.Beta != 0 {
		c.Scoring.Beta = other.Scoring.Beta
	}
	if other.Scoring.Gamma != 0 {
		c.Scoring.Gamma = other.Scoring.Gamma
	}
	if other.Scoring.Delta != 0 {
		c.Scoring.Delta = other.Scoring.Delta
	}
	if other.Scoring.Decay != 0 {
		c.Scoring.Decay = other.Scoring.Decay
	}
	if other.Scoring.ExpectedMax != 0 {
		c.Scoring.ExpectedMax = other.Scoring.ExpectedMax
	}

	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MinScore != 0 {
		c.Search.MinScore = other.Search.MinScore
	}
	if other.Search.DenseWeight != 0 {
		c.Search.DenseWeight = other.Search.DenseWeight
	}
	if other.Search.SparseWeight != 0 {
		c.Search.SparseWeight = other.Search.SparseWeight
	}
	if other.Search.RRFK != 0 {
		c.Search.RRFK = other.Search.RRFK
	}
	c.Search.UseMMR = other.Search.UseMMR || c.Search.UseMMR
	if other.Search.MMRLambda != 0 {
		c.Search.MMRLambda = other.Search.MMRLambda
	}
}

// applyEnvOverrides applies MEMSEARCH_* environment variable overrides,
// the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEMSEARCH_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("MEMSEARCH_STORAGE_CONNECTION"); v != "" {
		c.Storage.Connection = v
	}
	if v := os.Getenv("MEMSEARCH_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("MEMSEARCH_EMBEDDING_ENDPOINT"); v != "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("MEMSEARCH_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("MEMSEARCH_DENSE_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.DenseWeight = w
		}
	}
	if v := os.Getenv("MEMSEARCH_SPARSE_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.SparseWeight = w
		}
	}
	if v := os.Getenv("MEMSEARCH_RRF_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFK = k
		}
	}
}

// Validate rejects configurations the retrieval core cannot run with:
// impossible search weights, non-positive RRF constants, and unknown
// storage/provider selections.
func (c *Config) Validate() error {
	if c.Search.DenseWeight < 0 || c.Search.SparseWeight < 0 {
		return fmt.Errorf("search.dense_weight and search.sparse_weight must be non-negative, got %f and %f", c.Search.DenseWeight, c.Search.SparseWeight)
	}
	if c.Search.DenseWeight+c.Search.SparseWeight == 0 {
		return fmt.Errorf("search.dense_weight and search.sparse_weight must not both be zero")
	}
	if c.Search.RRFK <= 0 {
		return fmt.Errorf("search.rrf_k must be positive, got %d", c.Search.RRFK)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}

	validStorage := map[string]bool{"memory": true, "sqlite": true, "hnsw": true, "remote": true}
	if !validStorage[strings.ToLower(c.Storage.Type)] {
		return fmt.Errorf("storage.type must be one of memory, sqlite, hnsw, remote, got %s", c.Storage.Type)
	}

	validProviders := map[string]bool{"static": true, "ollama": true, "http": true, "": true}
	if !validProviders[strings.ToLower(c.Embedding.Provider)] {
		return fmt.Errorf("embedding.provider must be static, ollama, http, or empty, got %s", c.Embedding.Provider)
	}

	weightSum := c.Scoring.Alpha + c.Scoring.Beta + c.Scoring.Gamma + c.Scoring.Delta
	if math.Abs(float64(weightSum)-1.0) > 0.05 {
		return fmt.Errorf("scoring weights (alpha+beta+gamma+delta) should sum close to 1.0, got %.3f", weightSum)
	}
	if c.Scoring.Decay <= 0 || c.Scoring.Decay > 1 {
		return fmt.Errorf("scoring.decay must be in (0,1], got %f", c.Scoring.Decay)
	}

	return nil
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory spec:
//   - $XDG_CONFIG_HOME/memsearch/config.yaml, if set
//   - ~/.config/memsearch/config.yaml, otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "memsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "memsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "memsearch", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	_, err := os.Stat(GetUserConfigPath())
	return err == nil
}

// WriteYAML writes the configuration to path, for `memsearchd config init`.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
