package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.RRFK != 60 || cfg.Retrieval.PoolMultiplier != 4 {
		t.Errorf("unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.BM25K1 != 1.5 || cfg.Retrieval.BM25B != 0.75 {
		t.Errorf("unexpected bm25 defaults: %+v", cfg.Retrieval)
	}
	if cfg.Embed.Provider != "" {
		t.Errorf("semantic channel should default to disabled, got %q", cfg.Embed.Provider)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
corpus_path: /data/corpus.jsonl
subject: operating-systems
embed:
  provider: ollama
  model: nomic-embed-text
  cache_path: /data/cache.db
rerank:
  enabled: true
  model_path: /models/cross.onnx
  tokenizer_path: /models/tokenizer.json
retrieval:
  top_k: 8
  rrf_k: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CorpusPath != "/data/corpus.jsonl" || cfg.Subject != "operating-systems" {
		t.Errorf("corpus settings: %+v", cfg)
	}
	if cfg.Embed.Provider != "ollama" || cfg.Embed.Model != "nomic-embed-text" {
		t.Errorf("embed settings: %+v", cfg.Embed)
	}
	if !cfg.Rerank.Enabled || cfg.Rerank.ModelPath != "/models/cross.onnx" {
		t.Errorf("rerank settings: %+v", cfg.Rerank)
	}
	if cfg.Retrieval.TopK != 8 || cfg.Retrieval.RRFK != 30 {
		t.Errorf("retrieval overrides: %+v", cfg.Retrieval)
	}
	// Untouched values keep their defaults.
	if cfg.Retrieval.PoolMultiplier != 4 {
		t.Errorf("pool_multiplier = %d, want default 4", cfg.Retrieval.PoolMultiplier)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
corpus_path: /data/from-file.jsonl
retrieval:
  top_k: 8
`)

	t.Setenv("SCHOLAR_CORPUS", "/data/from-env.jsonl")
	t.Setenv("SCHOLAR_TOP_K", "12")
	t.Setenv("SCHOLAR_EMBED_PROVIDER", "openai")
	t.Setenv("SCHOLAR_EMBED_MODEL", "text-embedding-3-small")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CorpusPath != "/data/from-env.jsonl" {
		t.Errorf("CorpusPath = %q, env should win over file", cfg.CorpusPath)
	}
	if cfg.Retrieval.TopK != 12 {
		t.Errorf("TopK = %d, want 12", cfg.Retrieval.TopK)
	}
	if cfg.Embed.Provider != "openai" || cfg.Embed.Model != "text-embedding-3-small" {
		t.Errorf("embed env overrides: %+v", cfg.Embed)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []string{
		"retrieval:\n  top_k: -1\n",
		"retrieval:\n  rrf_k: 0\n",
		"retrieval:\n  bm25_b: 2.0\n",
		"embed:\n  provider: carrier-pigeon\n",
		"embed:\n  provider: local\n",
		"rerank:\n  enabled: true\n",
	}
	for _, yaml := range cases {
		path := writeConfig(t, yaml)
		if _, err := Load(path); err == nil {
			t.Errorf("Load accepted invalid config:\n%s", yaml)
		}
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "corpus_path: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
