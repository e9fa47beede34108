package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("API_PORT", "")
	t.Setenv("RETRIEVAL_TOP_K", "")
	t.Setenv("API_RATE_LIMIT_RPS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIPort != "8080" {
		t.Fatalf("expected default api port 8080, got %q", cfg.APIPort)
	}
	if cfg.RetrievalTopK != 5 {
		t.Fatalf("expected default top k 5, got %d", cfg.RetrievalTopK)
	}
	if cfg.APIRateLimitRPS != 20 || cfg.APIRateLimitBurst != 40 {
		t.Fatalf("unexpected default rate limits: rps=%d burst=%d", cfg.APIRateLimitRPS, cfg.APIRateLimitBurst)
	}
	if cfg.OpenAIChatModel != "gpt-4o-mini" {
		t.Fatalf("unexpected default chat model %q", cfg.OpenAIChatModel)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("RETRIEVAL_TOP_K", "9")
	t.Setenv("API_RATE_LIMIT_RPS", "3")
	t.Setenv("REDIS_ADDR", "redis-1:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RetrievalTopK != 9 {
		t.Fatalf("expected top k override 9, got %d", cfg.RetrievalTopK)
	}
	if cfg.APIRateLimitRPS != 3 {
		t.Fatalf("expected rate limit override 3, got %d", cfg.APIRateLimitRPS)
	}
	if cfg.RedisAddr != "redis-1:6379" {
		t.Fatalf("expected redis addr override, got %q", cfg.RedisAddr)
	}
}

func TestLoadReadsConfigFileWithExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
api_port: "9091"
qdrant_collection: ${TEST_QDRANT_COLLECTION:-passages_v2}
retrieval_top_k: 7
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("TEST_QDRANT_COLLECTION", "")
	t.Setenv("API_PORT", "")
	t.Setenv("RETRIEVAL_TOP_K", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIPort != "9091" {
		t.Fatalf("expected file port 9091, got %q", cfg.APIPort)
	}
	if cfg.QdrantCollection != "passages_v2" {
		t.Fatalf("expected expanded default collection, got %q", cfg.QdrantCollection)
	}
	if cfg.RetrievalTopK != 7 {
		t.Fatalf("expected file top k 7, got %d", cfg.RetrievalTopK)
	}
}

func TestEnvOverrideBeatsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("retrieval_top_k: 7\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("RETRIEVAL_TOP_K", "11")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RetrievalTopK != 11 {
		t.Fatalf("expected env to beat file, got %d", cfg.RetrievalTopK)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("API_PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for invalid port")
	}
}
