// Package config loads and validates docrag configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// ProjectConfigName is the per-project configuration file name.
const ProjectConfigName = ".docrag.yaml"

// DefaultDataDir is where indexes live, relative to the project directory.
const DefaultDataDir = ".docrag"

// Config is the full docrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Docs       DocsConfig       `yaml:"docs" json:"docs"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Answer     AnswerConfig     `yaml:"answer" json:"answer"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// DocsConfig describes the document tree to ingest.
type DocsConfig struct {
	// Root is the documentation directory. Relative paths resolve against the project dir.
	Root string `yaml:"root" json:"root"`
	// Extensions restricts ingestion to these file extensions.
	Extensions []string `yaml:"extensions" json:"extensions"`
	// FilenamePrefix keeps only files whose base name starts with it (e.g. "git-").
	FilenamePrefix string `yaml:"filename_prefix" json:"filename_prefix"`
	// Exclude holds glob patterns matched against slash-separated relative paths.
	Exclude []string `yaml:"exclude" json:"exclude"`
	// MaxFileSizeKB skips larger files.
	MaxFileSizeKB int `yaml:"max_file_size_kb" json:"max_file_size_kb"`
	// RespectGitignore also skips paths ignored by the root .gitignore.
	RespectGitignore bool `yaml:"respect_gitignore" json:"respect_gitignore"`
	// Workers bounds the chunking worker pool (0 = NumCPU).
	Workers int `yaml:"workers" json:"workers"`
}

// ChunkingConfig controls the section chunker.
type ChunkingConfig struct {
	MaxChunkChars int `yaml:"max_chunk_chars" json:"max_chunk_chars"`
	OverlapChars  int `yaml:"overlap_chars" json:"overlap_chars"`
}

// EmbeddingsConfig selects and tunes the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of "static", "ollama", "openai".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	APIKey     string `yaml:"api_key" json:"-"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	// CacheSize is the in-process LRU size (0 disables it).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// RedisAddr enables the shared Redis embedding cache when set.
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
}

// IndexConfig controls index storage.
type IndexConfig struct {
	DataDir  string `yaml:"data_dir" json:"data_dir"`
	M        int    `yaml:"m" json:"m"`
	EfSearch int    `yaml:"ef_search" json:"ef_search"`
	// ExactSearchMax is the largest index searched by a full scan instead of
	// the graph. Negative always uses the graph.
	ExactSearchMax int `yaml:"exact_search_max" json:"exact_search_max"`
	// KeepGenerations is how many published generations stay on disk.
	KeepGenerations int `yaml:"keep_generations" json:"keep_generations"`
}

// IntentTopK holds the default result size per intent.
type IntentTopK struct {
	Procedural int `yaml:"procedural" json:"procedural"`
	Reasoning  int `yaml:"reasoning" json:"reasoning"`
	Comparison int `yaml:"comparison" json:"comparison"`
	Definition int `yaml:"definition" json:"definition"`
	General    int `yaml:"general" json:"general"`
}

// RetrievalConfig tunes expansion, over-fetch, MMR and dedup.
type RetrievalConfig struct {
	Oversample     int        `yaml:"oversample" json:"oversample"`
	Lambda         float64    `yaml:"lambda" json:"lambda"`
	MaxVariants    int        `yaml:"max_variants" json:"max_variants"`
	DedupThreshold float64    `yaml:"dedup_threshold" json:"dedup_threshold"`
	VariantTimeout string     `yaml:"variant_timeout" json:"variant_timeout"`
	MaxParallel    int        `yaml:"max_parallel" json:"max_parallel"`
	Subject        string     `yaml:"subject" json:"subject"`
	TopK           IntentTopK `yaml:"top_k" json:"top_k"`
	IntentCache    int        `yaml:"intent_cache" json:"intent_cache"`
	// Rerank reorders deduplicated results by section, command name and
	// keyword heuristics before truncating to top-k.
	Rerank bool `yaml:"rerank" json:"rerank"`
}

// AnswerConfig selects the answer generator.
type AnswerConfig struct {
	// Provider is "extractive" (offline) or "openai".
	Provider        string  `yaml:"provider" json:"provider"`
	Model           string  `yaml:"model" json:"model"`
	BaseURL         string  `yaml:"base_url" json:"base_url"`
	APIKey          string  `yaml:"api_key" json:"-"`
	MaxContextChars int     `yaml:"max_context_chars" json:"max_context_chars"`
	MaxTokens       int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature     float32 `yaml:"temperature" json:"temperature"`
	Timeout         string  `yaml:"timeout" json:"timeout"`
}

// ServerConfig configures the HTTP service and logging.
type ServerConfig struct {
	Addr            string `yaml:"addr" json:"addr"`
	LogLevel        string `yaml:"log_level" json:"log_level"`
	ReadTimeout     string `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	WatchIndex      bool   `yaml:"watch_index" json:"watch_index"`
}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Docs: DocsConfig{
			Root:             "Documentation",
			Extensions:       []string{".txt", ".adoc", ".asciidoc", ".md", ".markdown"},
			Exclude:          []string{"**/.git/**", "**/" + DefaultDataDir + "/**"},
			MaxFileSizeKB:    1024,
			RespectGitignore: true,
		},
		Chunking: ChunkingConfig{
			MaxChunkChars: 1200,
			OverlapChars:  150,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "static-hash-256",
			Dimensions: 256,
			OllamaHost: "http://localhost:11434",
			BaseURL:    "https://api.openai.com/v1",
			BatchSize:  32,
			Timeout:    "30s",
			CacheSize:  2048,
		},
		Index: IndexConfig{
			DataDir:         DefaultDataDir,
			M:               16,
			EfSearch:        64,
			ExactSearchMax:  20000,
			KeepGenerations: 2,
		},
		Retrieval: RetrievalConfig{
			Oversample:     3,
			Lambda:         0.7,
			MaxVariants:    4,
			DedupThreshold: 0.9,
			VariantTimeout: "10s",
			MaxParallel:    4,
			Subject:        "git",
			TopK: IntentTopK{
				Procedural: 4,
				Reasoning:  4,
				Comparison: 6,
				Definition: 4,
				General:    4,
			},
			IntentCache: 1000,
			Rerank:      false,
		},
		Answer: AnswerConfig{
			Provider:        "extractive",
			Model:           "gpt-4o-mini",
			BaseURL:         "https://api.openai.com/v1",
			MaxContextChars: 5000,
			MaxTokens:       512,
			Temperature:     0,
			Timeout:         "60s",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			LogLevel:        "info",
			ReadTimeout:     "15s",
			WriteTimeout:    "90s",
			ShutdownTimeout: "10s",
			WatchIndex:      true,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/docrag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/docrag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml")
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/docrag/config.yaml)
//  3. Project config (.docrag.yaml in dir)
//  4. Environment variables (DOCRAG_*)
//
// Relative paths are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := filepath.Join(dir, ProjectConfigName); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML overlays values from a YAML file onto c. Keys missing from the
// file keep their current values. ${VAR} references are expanded first.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := os.Expand(string(data), os.Getenv)
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return docerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies DOCRAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("DOCRAG_DOCS_ROOT", &c.Docs.Root)
	setString("DOCRAG_DATA_DIR", &c.Index.DataDir)
	setString("DOCRAG_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	setString("DOCRAG_EMBEDDINGS_MODEL", &c.Embeddings.Model)
	setString("DOCRAG_OLLAMA_HOST", &c.Embeddings.OllamaHost)
	setString("DOCRAG_EMBEDDINGS_BASE_URL", &c.Embeddings.BaseURL)
	setString("DOCRAG_REDIS_ADDR", &c.Embeddings.RedisAddr)
	setString("DOCRAG_ANSWER_PROVIDER", &c.Answer.Provider)
	setString("DOCRAG_ANSWER_MODEL", &c.Answer.Model)
	setString("DOCRAG_ANSWER_BASE_URL", &c.Answer.BaseURL)
	setString("DOCRAG_ADDR", &c.Server.Addr)
	setString("DOCRAG_LOG_LEVEL", &c.Server.LogLevel)

	// API keys fall back to the conventional OpenAI variable.
	for _, key := range []string{"OPENAI_API_KEY", "DOCRAG_OPENAI_API_KEY"} {
		if v := os.Getenv(key); v != "" {
			c.Embeddings.APIKey = v
			c.Answer.APIKey = v
		}
	}

	if v := os.Getenv("DOCRAG_EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("DOCRAG_OVERSAMPLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retrieval.Oversample = n
		}
	}
	// Explicit zero is a valid lambda, so the env var is applied as given.
	if v := os.Getenv("DOCRAG_MMR_LAMBDA"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Retrieval.Lambda = f
		}
	}
	if v := os.Getenv("DOCRAG_DEDUP_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Retrieval.DedupThreshold = f
		}
	}
	if v := os.Getenv("DOCRAG_RERANK"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Retrieval.Rerank = b
		}
	}
	if v := os.Getenv("DOCRAG_MAX_CHUNK_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.MaxChunkChars = n
		}
	}
}

func (c *Config) resolvePaths(dir string) {
	if dir == "" {
		return
	}
	if c.Docs.Root != "" && !filepath.IsAbs(c.Docs.Root) {
		c.Docs.Root = filepath.Join(dir, c.Docs.Root)
	}
	if c.Index.DataDir != "" && !filepath.IsAbs(c.Index.DataDir) {
		c.Index.DataDir = filepath.Join(dir, c.Index.DataDir)
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return docerrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if c.Chunking.MaxChunkChars < 100 {
		return invalid("chunking.max_chunk_chars must be at least 100, got %d", c.Chunking.MaxChunkChars)
	}
	if c.Chunking.OverlapChars < 0 || c.Chunking.OverlapChars*2 >= c.Chunking.MaxChunkChars {
		return invalid("chunking.overlap_chars must be in [0, max_chunk_chars/2), got %d", c.Chunking.OverlapChars)
	}

	if c.Retrieval.Oversample < 2 {
		return invalid("retrieval.oversample must be at least 2, got %d", c.Retrieval.Oversample)
	}
	if c.Retrieval.Lambda < 0 || c.Retrieval.Lambda > 1 {
		return invalid("retrieval.lambda must be between 0 and 1, got %g", c.Retrieval.Lambda)
	}
	if c.Retrieval.MaxVariants < 2 || c.Retrieval.MaxVariants > 4 {
		return invalid("retrieval.max_variants must be between 2 and 4, got %d", c.Retrieval.MaxVariants)
	}
	if c.Retrieval.DedupThreshold <= 0 || c.Retrieval.DedupThreshold > 1 {
		return invalid("retrieval.dedup_threshold must be in (0, 1], got %g", c.Retrieval.DedupThreshold)
	}
	if c.Retrieval.MaxParallel < 1 {
		return invalid("retrieval.max_parallel must be at least 1, got %d", c.Retrieval.MaxParallel)
	}
	for name, k := range map[string]int{
		"procedural": c.Retrieval.TopK.Procedural,
		"reasoning":  c.Retrieval.TopK.Reasoning,
		"comparison": c.Retrieval.TopK.Comparison,
		"definition": c.Retrieval.TopK.Definition,
		"general":    c.Retrieval.TopK.General,
	} {
		if k < 1 {
			return invalid("retrieval.top_k.%s must be at least 1, got %d", name, k)
		}
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "static", "ollama", "openai":
	default:
		return invalid("embeddings.provider must be 'static', 'ollama' or 'openai', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize < 1 {
		return invalid("embeddings.batch_size must be at least 1, got %d", c.Embeddings.BatchSize)
	}

	switch strings.ToLower(c.Answer.Provider) {
	case "extractive", "openai":
	default:
		return invalid("answer.provider must be 'extractive' or 'openai', got %q", c.Answer.Provider)
	}
	if c.Answer.MaxContextChars < 1 {
		return invalid("answer.max_context_chars must be positive, got %d", c.Answer.MaxContextChars)
	}

	if c.Index.KeepGenerations < 1 {
		return invalid("index.keep_generations must be at least 1, got %d", c.Index.KeepGenerations)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return invalid("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	for name, d := range map[string]string{
		"embeddings.timeout":        c.Embeddings.Timeout,
		"retrieval.variant_timeout": c.Retrieval.VariantTimeout,
		"answer.timeout":            c.Answer.Timeout,
		"server.read_timeout":       c.Server.ReadTimeout,
		"server.write_timeout":      c.Server.WriteTimeout,
		"server.shutdown_timeout":   c.Server.ShutdownTimeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return invalid("%s is not a valid duration: %q", name, d)
		}
	}

	return nil
}

// Duration parses a duration field, returning fallback when empty or invalid.
// Validate has already rejected invalid values for loaded configs.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
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

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
