package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete loreleaf configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Fusion    FusionConfig    `yaml:"fusion" json:"fusion"`
	Rerank    RerankConfig    `yaml:"rerank" json:"rerank"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// IndexConfig selects and tunes the index backends.
type IndexConfig struct {
	// Dir is the index data directory, relative to the project root
	// unless absolute.
	Dir string `yaml:"dir" json:"dir"`

	// LexicalBackend selects the lexical index.
	// Options: "sqlite" (default), "bleve", "meilisearch" (remote).
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// VectorBackend selects the ANN index.
	// Options: "hnsw" (default, in-process), "pgvector" (remote).
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`

	// BM25K1 is the term-frequency saturation constant (typical 1.2-2.0).
	BM25K1 float64 `yaml:"bm25_k1" json:"bm25_k1"`

	// BM25B is the document-length normalization constant (typical 0.5-0.8).
	BM25B float64 `yaml:"bm25_b" json:"bm25_b"`

	// EfSearch is the HNSW query-time accuracy/speed knob.
	// Higher is more accurate and slower.
	EfSearch int `yaml:"ef_search" json:"ef_search"`

	Meilisearch MeilisearchConfig `yaml:"meilisearch" json:"meilisearch"`
	Postgres    PostgresConfig    `yaml:"postgres" json:"postgres"`
}

// MeilisearchConfig configures the remote lexical backend.
type MeilisearchConfig struct {
	URL    string `yaml:"url" json:"url"`
	APIKey string `yaml:"api_key" json:"api_key"`
	Index  string `yaml:"index" json:"index"`
}

// PostgresConfig configures the remote pgvector backend.
type PostgresConfig struct {
	DSN      string `yaml:"dsn" json:"dsn"`
	MaxConns int    `yaml:"max_conns" json:"max_conns"`
}

// SearchConfig bounds the request pipeline.
type SearchConfig struct {
	// TotalBudget is the end-to-end search deadline (duration string).
	TotalBudget string `yaml:"total_budget" json:"total_budget"`

	// ScorerShare is the fraction of the total budget each scorer gets
	// as its independent timeout. Default 0.70, leaving headroom for
	// fusion and reranking.
	ScorerShare float64 `yaml:"scorer_share" json:"scorer_share"`

	// DefaultTopK is the result count when the request omits top_k.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`

	// MaxTopK is the hard upper bound on top_k.
	MaxTopK int `yaml:"max_top_k" json:"max_top_k"`

	// MaxQueryChars is the maximum accepted query length.
	MaxQueryChars int `yaml:"max_query_chars" json:"max_query_chars"`

	// CandidateLimit is how many candidates each scorer is asked for.
	// Kept above the rerank window so fusion sees both distributions.
	CandidateLimit int `yaml:"candidate_limit" json:"candidate_limit"`
}

// FusionConfig tunes score combination.
// Alpha is the lexical weight; the vector weight is 1-alpha.
type FusionConfig struct {
	// Mode is "fixed" (always Alpha) or "auto" (query-kind presets).
	Mode string `yaml:"mode" json:"mode"`

	// Alpha is the lexical weight used in fixed mode (0.0-1.0).
	Alpha float64 `yaml:"alpha" json:"alpha"`

	// AlphaKeyword is the auto-mode preset for keyword-style queries.
	AlphaKeyword float64 `yaml:"alpha_keyword" json:"alpha_keyword"`

	// AlphaQuestion is the auto-mode preset for natural-language questions.
	AlphaQuestion float64 `yaml:"alpha_question" json:"alpha_question"`
}

// RerankConfig configures the pairwise reranker adapter.
type RerankConfig struct {
	// Enabled turns the rerank stage on. Requests can still opt out.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// URL is the reranker service endpoint.
	URL string `yaml:"url" json:"url"`

	// Model is the reranker model identifier passed to the service.
	Model string `yaml:"model" json:"model"`

	// Window is the fused top-N sent for reranking (typical 20-50).
	Window int `yaml:"window" json:"window"`

	// BatchSize is how many query/passage pairs go in one service call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Budget is the rerank stage deadline (duration string).
	Budget string `yaml:"budget" json:"budget"`
}

// EmbeddingConfig configures the external embedding service.
type EmbeddingConfig struct {
	// URL is the embedding service endpoint.
	URL string `yaml:"url" json:"url"`

	// Model is the embedding model identifier.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the embedding width. 0 auto-detects on first call.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is texts per embed call during ingest.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// CacheSize is the LRU entry count for repeated texts. 0 disables.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// CacheConfig configures the read-through query cache. The cache sits
// outside the retrieval core; disabling it never changes results.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Backend string `yaml:"backend" json:"backend"` // "memory" or "redis"
	Size    int    `yaml:"size" json:"size"`
	TTL     string `yaml:"ttl" json:"ttl"`

	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig configures the optional Redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// ServerConfig configures serving surfaces.
type ServerConfig struct {
	// HTTPAddr is the REST listen address.
	HTTPAddr string `yaml:"http_addr" json:"http_addr"`

	// Transport is the MCP transport ("stdio").
	Transport string `yaml:"transport" json:"transport"`

	// LogLevel is the minimum log level.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with documented defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Dir:            ".loreleaf",
			LexicalBackend: "sqlite",
			VectorBackend:  "hnsw",
			BM25K1:         1.5,
			BM25B:          0.75,
			EfSearch:       64,
			Meilisearch: MeilisearchConfig{
				URL:   "",
				Index: "passages",
			},
			Postgres: PostgresConfig{
				DSN:      "",
				MaxConns: 10,
			},
		},
		Search: SearchConfig{
			TotalBudget:    "1s",
			ScorerShare:    0.70,
			DefaultTopK:    10,
			MaxTopK:        100,
			MaxQueryChars:  1000,
			CandidateLimit: 50,
		},
		Fusion: FusionConfig{
			Mode:  "auto",
			Alpha: 0.5,
			// Keyword queries lean lexical, questions lean vector.
			AlphaKeyword:  0.6,
			AlphaQuestion: 0.3,
		},
		Rerank: RerankConfig{
			Enabled:   true,
			URL:       "http://localhost:9785",
			Model:     "",
			Window:    30,
			BatchSize: 16,
			Budget:    "400ms",
		},
		Embedding: EmbeddingConfig{
			// Empty URL selects the deterministic offline embedder.
			URL:        "",
			Model:      "nomic-embed-text",
			Dimensions: 0,
			BatchSize:  32,
			CacheSize:  2048,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "memory",
			Size:    1024,
			TTL:     "30s",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Server: ServerConfig{
			HTTPAddr:  ":8080",
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/loreleaf/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/loreleaf/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "loreleaf", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "loreleaf", "config.yaml")
	}
	return filepath.Join(home, ".config", "loreleaf", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/loreleaf/config.yaml)
//  3. Project config (.loreleaf.yaml in project root)
//  4. Environment variables (LORELEAF_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ProjectConfigPath returns the project config path under dir, or ""
// when no project config exists.
func ProjectConfigPath(dir string) string {
	yamlPath := filepath.Join(dir, ".loreleaf.yaml")
	if fileExists(yamlPath) {
		return yamlPath
	}
	ymlPath := filepath.Join(dir, ".loreleaf.yml")
	if fileExists(ymlPath) {
		return ymlPath
	}
	return ""
}

// loadFromFile attempts to load configuration from .loreleaf.yaml or .loreleaf.yml.
func (c *Config) loadFromFile(dir string) error {
	path := ProjectConfigPath(dir)
	if path == "" {
		// No config file is fine - use defaults.
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML loads and merges configuration from a YAML file.
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

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Index
	if other.Index.Dir != "" {
		c.Index.Dir = other.Index.Dir
	}
	if other.Index.LexicalBackend != "" {
		c.Index.LexicalBackend = other.Index.LexicalBackend
	}
	if other.Index.VectorBackend != "" {
		c.Index.VectorBackend = other.Index.VectorBackend
	}
	if other.Index.BM25K1 != 0 {
		c.Index.BM25K1 = other.Index.BM25K1
	}
	if other.Index.BM25B != 0 {
		c.Index.BM25B = other.Index.BM25B
	}
	if other.Index.EfSearch != 0 {
		c.Index.EfSearch = other.Index.EfSearch
	}
	if other.Index.Meilisearch.URL != "" {
		c.Index.Meilisearch.URL = other.Index.Meilisearch.URL
	}
	if other.Index.Meilisearch.APIKey != "" {
		c.Index.Meilisearch.APIKey = other.Index.Meilisearch.APIKey
	}
	if other.Index.Meilisearch.Index != "" {
		c.Index.Meilisearch.Index = other.Index.Meilisearch.Index
	}
	if other.Index.Postgres.DSN != "" {
		c.Index.Postgres.DSN = other.Index.Postgres.DSN
	}
	if other.Index.Postgres.MaxConns != 0 {
		c.Index.Postgres.MaxConns = other.Index.Postgres.MaxConns
	}

	// Search
	if other.Search.TotalBudget != "" {
		c.Search.TotalBudget = other.Search.TotalBudget
	}
	if other.Search.ScorerShare != 0 {
		c.Search.ScorerShare = other.Search.ScorerShare
	}
	if other.Search.DefaultTopK != 0 {
		c.Search.DefaultTopK = other.Search.DefaultTopK
	}
	if other.Search.MaxTopK != 0 {
		c.Search.MaxTopK = other.Search.MaxTopK
	}
	if other.Search.MaxQueryChars != 0 {
		c.Search.MaxQueryChars = other.Search.MaxQueryChars
	}
	if other.Search.CandidateLimit != 0 {
		c.Search.CandidateLimit = other.Search.CandidateLimit
	}

	// Fusion. Zero is a meaningful alpha, but only reachable via env
	// override; file merges treat zero as unset, matching the other
	// numeric fields.
	if other.Fusion.Mode != "" {
		c.Fusion.Mode = other.Fusion.Mode
	}
	if other.Fusion.Alpha != 0 {
		c.Fusion.Alpha = other.Fusion.Alpha
	}
	if other.Fusion.AlphaKeyword != 0 {
		c.Fusion.AlphaKeyword = other.Fusion.AlphaKeyword
	}
	if other.Fusion.AlphaQuestion != 0 {
		c.Fusion.AlphaQuestion = other.Fusion.AlphaQuestion
	}

	// Rerank. Enabled defaults true; a bare `rerank:` block with other
	// fields set implies the author touched the stage deliberately.
	if other.Rerank.URL != "" || other.Rerank.Window != 0 || other.Rerank.Model != "" {
		c.Rerank.Enabled = other.Rerank.Enabled
	}
	if other.Rerank.URL != "" {
		c.Rerank.URL = other.Rerank.URL
	}
	if other.Rerank.Model != "" {
		c.Rerank.Model = other.Rerank.Model
	}
	if other.Rerank.Window != 0 {
		c.Rerank.Window = other.Rerank.Window
	}
	if other.Rerank.BatchSize != 0 {
		c.Rerank.BatchSize = other.Rerank.BatchSize
	}
	if other.Rerank.Budget != "" {
		c.Rerank.Budget = other.Rerank.Budget
	}

	// Embedding
	if other.Embedding.URL != "" {
		c.Embedding.URL = other.Embedding.URL
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	// Cache
	if other.Cache.Backend != "" || other.Cache.Size != 0 || other.Cache.TTL != "" {
		c.Cache.Enabled = other.Cache.Enabled
	}
	if other.Cache.Backend != "" {
		c.Cache.Backend = other.Cache.Backend
	}
	if other.Cache.Size != 0 {
		c.Cache.Size = other.Cache.Size
	}
	if other.Cache.TTL != "" {
		c.Cache.TTL = other.Cache.TTL
	}
	if other.Cache.Redis.Addr != "" {
		c.Cache.Redis.Addr = other.Cache.Redis.Addr
	}
	if other.Cache.Redis.Password != "" {
		c.Cache.Redis.Password = other.Cache.Redis.Password
	}
	if other.Cache.Redis.DB != 0 {
		c.Cache.Redis.DB = other.Cache.Redis.DB
	}

	// Server
	if other.Server.HTTPAddr != "" {
		c.Server.HTTPAddr = other.Server.HTTPAddr
	}
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies LORELEAF_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LORELEAF_ALPHA"); v != "" {
		// Env alpha accepts explicit zero (pure vector ranking).
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Fusion.Alpha = w
			c.Fusion.Mode = "fixed"
		}
	}
	if v := os.Getenv("LORELEAF_FUSION_MODE"); v != "" {
		c.Fusion.Mode = v
	}
	if v := os.Getenv("LORELEAF_LEXICAL_BACKEND"); v != "" {
		c.Index.LexicalBackend = v
	}
	if v := os.Getenv("LORELEAF_VECTOR_BACKEND"); v != "" {
		c.Index.VectorBackend = v
	}
	if v := os.Getenv("LORELEAF_BM25_K1"); v != "" {
		if k, err := strconv.ParseFloat(v, 64); err == nil && k > 0 {
			c.Index.BM25K1 = k
		}
	}
	if v := os.Getenv("LORELEAF_BM25_B"); v != "" {
		if b, err := strconv.ParseFloat(v, 64); err == nil && b >= 0 && b <= 1 {
			c.Index.BM25B = b
		}
	}
	if v := os.Getenv("LORELEAF_EF_SEARCH"); v != "" {
		if ef, err := strconv.Atoi(v); err == nil && ef > 0 {
			c.Index.EfSearch = ef
		}
	}
	if v := os.Getenv("LORELEAF_TOTAL_BUDGET"); v != "" {
		c.Search.TotalBudget = v
	}
	if v := os.Getenv("LORELEAF_EMBED_URL"); v != "" {
		c.Embedding.URL = v
	}
	if v := os.Getenv("LORELEAF_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("LORELEAF_RERANK_URL"); v != "" {
		c.Rerank.URL = v
	}
	if v := os.Getenv("LORELEAF_RERANK_ENABLED"); v != "" {
		c.Rerank.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("LORELEAF_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("LORELEAF_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("LORELEAF_PG_DSN"); v != "" {
		c.Index.Postgres.DSN = v
	}
	if v := os.Getenv("LORELEAF_MEILI_URL"); v != "" {
		c.Index.Meilisearch.URL = v
	}
	if v := os.Getenv("LORELEAF_MEILI_API_KEY"); v != "" {
		c.Index.Meilisearch.APIKey = v
	}
	if v := os.Getenv("LORELEAF_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv("LORELEAF_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Index.BM25K1 <= 0 {
		return fmt.Errorf("index.bm25_k1 must be positive, got %f", c.Index.BM25K1)
	}
	if c.Index.BM25B < 0 || c.Index.BM25B > 1 {
		return fmt.Errorf("index.bm25_b must be between 0 and 1, got %f", c.Index.BM25B)
	}
	if c.Index.EfSearch <= 0 {
		return fmt.Errorf("index.ef_search must be positive, got %d", c.Index.EfSearch)
	}

	validLexical := map[string]bool{"sqlite": true, "bleve": true, "meilisearch": true}
	if !validLexical[strings.ToLower(c.Index.LexicalBackend)] {
		return fmt.Errorf("index.lexical_backend must be 'sqlite', 'bleve', or 'meilisearch', got %s", c.Index.LexicalBackend)
	}
	validVector := map[string]bool{"hnsw": true, "pgvector": true}
	if !validVector[strings.ToLower(c.Index.VectorBackend)] {
		return fmt.Errorf("index.vector_backend must be 'hnsw' or 'pgvector', got %s", c.Index.VectorBackend)
	}
	if strings.ToLower(c.Index.LexicalBackend) == "meilisearch" && c.Index.Meilisearch.URL == "" {
		return fmt.Errorf("index.meilisearch.url is required for the meilisearch backend")
	}
	if strings.ToLower(c.Index.VectorBackend) == "pgvector" && c.Index.Postgres.DSN == "" {
		return fmt.Errorf("index.postgres.dsn is required for the pgvector backend")
	}

	if _, err := time.ParseDuration(c.Search.TotalBudget); err != nil {
		return fmt.Errorf("search.total_budget is not a duration: %w", err)
	}
	if c.Search.ScorerShare <= 0 || c.Search.ScorerShare > 1 {
		return fmt.Errorf("search.scorer_share must be in (0, 1], got %f", c.Search.ScorerShare)
	}
	if c.Search.DefaultTopK < 1 {
		return fmt.Errorf("search.default_top_k must be at least 1, got %d", c.Search.DefaultTopK)
	}
	if c.Search.MaxTopK < c.Search.DefaultTopK {
		return fmt.Errorf("search.max_top_k (%d) must be >= default_top_k (%d)", c.Search.MaxTopK, c.Search.DefaultTopK)
	}
	if c.Search.MaxQueryChars < 1 {
		return fmt.Errorf("search.max_query_chars must be positive, got %d", c.Search.MaxQueryChars)
	}
	if c.Search.CandidateLimit < 1 {
		return fmt.Errorf("search.candidate_limit must be positive, got %d", c.Search.CandidateLimit)
	}

	for name, a := range map[string]float64{
		"fusion.alpha":          c.Fusion.Alpha,
		"fusion.alpha_keyword":  c.Fusion.AlphaKeyword,
		"fusion.alpha_question": c.Fusion.AlphaQuestion,
	} {
		if a < 0 || a > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, a)
		}
	}
	validModes := map[string]bool{"fixed": true, "auto": true}
	if !validModes[strings.ToLower(c.Fusion.Mode)] {
		return fmt.Errorf("fusion.mode must be 'fixed' or 'auto', got %s", c.Fusion.Mode)
	}

	if c.Rerank.Window < 1 {
		return fmt.Errorf("rerank.window must be positive, got %d", c.Rerank.Window)
	}
	if c.Rerank.BatchSize < 1 {
		return fmt.Errorf("rerank.batch_size must be positive, got %d", c.Rerank.BatchSize)
	}
	if _, err := time.ParseDuration(c.Rerank.Budget); err != nil {
		return fmt.Errorf("rerank.budget is not a duration: %w", err)
	}

	validCache := map[string]bool{"memory": true, "redis": true}
	if !validCache[strings.ToLower(c.Cache.Backend)] {
		return fmt.Errorf("cache.backend must be 'memory' or 'redis', got %s", c.Cache.Backend)
	}
	if c.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return fmt.Errorf("cache.ttl is not a duration: %w", err)
		}
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// TotalBudget returns the parsed end-to-end search deadline.
func (c *Config) TotalBudget() time.Duration {
	d, err := time.ParseDuration(c.Search.TotalBudget)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// ScorerBudget returns the per-scorer timeout derived from the total
// budget and the configured share.
func (c *Config) ScorerBudget() time.Duration {
	share := c.Search.ScorerShare
	if share <= 0 || share > 1 {
		share = 0.70
	}
	return time.Duration(float64(c.TotalBudget()) * share)
}

// RerankBudget returns the parsed rerank stage deadline.
func (c *Config) RerankBudget() time.Duration {
	d, err := time.ParseDuration(c.Rerank.Budget)
	if err != nil || d <= 0 {
		return 400 * time.Millisecond
	}
	return d
}

// CacheTTL returns the parsed query cache TTL.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// IndexDir resolves the index directory against the project root.
func (c *Config) IndexDir(root string) string {
	if filepath.IsAbs(c.Index.Dir) {
		return c.Index.Dir
	}
	return filepath.Join(root, c.Index.Dir)
}

// FindProjectRoot finds the project root directory.
// It looks for a .git directory or .loreleaf.yaml/.yml file by walking
// up the directory tree; falls back to the starting directory.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".loreleaf.yaml")) ||
			fileExists(filepath.Join(currentDir, ".loreleaf.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
