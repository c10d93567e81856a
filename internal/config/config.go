// Package config loads scholar settings from a YAML file with
// environment variable overrides. Resolution order: built-in defaults,
// then the config file, then SCHOLAR_* env vars.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved scholar configuration.
type Config struct {
	// CorpusPath is the passage corpus in JSONL form.
	CorpusPath string `yaml:"corpus_path"`
	// Subject tags loaded passages and filters search when set.
	Subject string `yaml:"subject"`

	Embed     EmbedConfig     `yaml:"embed"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Rewrite   RewriteConfig   `yaml:"rewrite"`
}

// EmbedConfig selects and tunes the semantic channel backend.
type EmbedConfig struct {
	// Provider is "local", "ollama", "openai", "custom", or empty to
	// disable the semantic channel.
	Provider string `yaml:"provider"`
	// Model is the remote model name (remote providers only).
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`

	// ModelPath and TokenizerPath locate the local ONNX model.
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	LibraryPath   string `yaml:"library_path"`

	// CachePath is the SQLite corpus embedding cache. Empty disables
	// caching.
	CachePath string `yaml:"cache_path"`
	Workers   int    `yaml:"workers"`
	BatchSize int    `yaml:"batch_size"`
}

// RerankConfig controls the local cross-encoder rerank stage.
type RerankConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
}

// RetrievalConfig exposes the ranking tunables.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	RRFK           int     `yaml:"rrf_k"`
	PoolMultiplier int     `yaml:"pool_multiplier"`
	RerankInput    int     `yaml:"rerank_input"`
	ContextWindow  int     `yaml:"context_window"`
	BM25K1         float64 `yaml:"bm25_k1"`
	BM25B          float64 `yaml:"bm25_b"`
}

// RewriteConfig controls LLM query rewriting for the semantic channel.
type RewriteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// DefaultConfigPath is where Load looks when no path is given.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".scholar", "config.yaml")
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Retrieval: RetrievalConfig{
			TopK:           5,
			RRFK:           60,
			PoolMultiplier: 4,
			RerankInput:    30,
			ContextWindow:  1,
			BM25K1:         1.5,
			BM25B:          0.75,
		},
		Embed: EmbedConfig{
			Workers:   4,
			BatchSize: 32,
		},
	}
}

// Load resolves the configuration from path (DefaultConfigPath when
// empty). A missing file is not an error; env overrides still apply.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnv(&cfg.CorpusPath, "SCHOLAR_CORPUS")
	applyEnv(&cfg.Subject, "SCHOLAR_SUBJECT")

	applyEnv(&cfg.Embed.Provider, "SCHOLAR_EMBED_PROVIDER")
	applyEnv(&cfg.Embed.Model, "SCHOLAR_EMBED_MODEL")
	applyEnv(&cfg.Embed.Endpoint, "SCHOLAR_EMBED_ENDPOINT")
	applyEnv(&cfg.Embed.APIKey, "SCHOLAR_EMBED_API_KEY")
	applyEnv(&cfg.Embed.ModelPath, "SCHOLAR_EMBED_MODEL_PATH")
	applyEnv(&cfg.Embed.TokenizerPath, "SCHOLAR_EMBED_TOKENIZER_PATH")
	applyEnv(&cfg.Embed.LibraryPath, "SCHOLAR_ONNX_LIB")
	applyEnv(&cfg.Embed.CachePath, "SCHOLAR_EMBED_CACHE")

	applyEnvBool(&cfg.Rerank.Enabled, "SCHOLAR_RERANK")
	applyEnv(&cfg.Rerank.ModelPath, "SCHOLAR_RERANK_MODEL_PATH")
	applyEnv(&cfg.Rerank.TokenizerPath, "SCHOLAR_RERANK_TOKENIZER_PATH")

	applyEnvInt(&cfg.Retrieval.TopK, "SCHOLAR_TOP_K")
	applyEnvInt(&cfg.Retrieval.ContextWindow, "SCHOLAR_CONTEXT_WINDOW")

	applyEnvBool(&cfg.Rewrite.Enabled, "SCHOLAR_REWRITE")
	applyEnv(&cfg.Rewrite.Model, "SCHOLAR_REWRITE_MODEL")
	applyEnv(&cfg.Rewrite.BaseURL, "SCHOLAR_REWRITE_BASE_URL")
	applyEnv(&cfg.Rewrite.Token, "SCHOLAR_REWRITE_TOKEN")

	cfg.CorpusPath = expandUserPath(cfg.CorpusPath)
	cfg.Embed.CachePath = expandUserPath(cfg.Embed.CachePath)

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.RRFK <= 0 {
		return fmt.Errorf("retrieval.rrf_k must be positive, got %d", c.Retrieval.RRFK)
	}
	if c.Retrieval.PoolMultiplier <= 0 {
		return fmt.Errorf("retrieval.pool_multiplier must be positive, got %d", c.Retrieval.PoolMultiplier)
	}
	if c.Retrieval.BM25K1 < 0 || c.Retrieval.BM25B < 0 || c.Retrieval.BM25B > 1 {
		return fmt.Errorf("invalid bm25 parameters k1=%v b=%v", c.Retrieval.BM25K1, c.Retrieval.BM25B)
	}
	switch c.Embed.Provider {
	case "", "local", "ollama", "openai", "custom":
	default:
		return fmt.Errorf("unknown embed provider %q", c.Embed.Provider)
	}
	if c.Embed.Provider == "local" && c.Embed.ModelPath == "" {
		return fmt.Errorf("embed.model_path is required for the local provider")
	}
	if c.Rerank.Enabled && c.Rerank.ModelPath == "" {
		return fmt.Errorf("rerank.model_path is required when rerank is enabled")
	}
	return nil
}

func applyEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func applyEnvInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func applyEnvBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
