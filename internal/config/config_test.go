package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "port: \"8088\"\ndatabaseDSN: kltndb.sqlite3\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultShopID != "shop_books_1" {
		t.Fatalf("default shop id not applied: %q", cfg.DefaultShopID)
	}
	if cfg.RetrieverIndexPath != "data/retriever_index.json" {
		t.Fatalf("default index path not applied: %q", cfg.RetrieverIndexPath)
	}
	if cfg.LLMTemperature != 0.2 || cfg.LLMTopP != 0.9 {
		t.Fatalf("sampling defaults not applied: %v %v", cfg.LLMTemperature, cfg.LLMTopP)
	}
}

func TestLoadRequiresPortAndDSN(t *testing.T) {
	if _, err := Load(writeConfig(t, "databaseDSN: x\n")); err == nil {
		t.Fatalf("expected error for missing port")
	}
	if _, err := Load(writeConfig(t, "port: \"8088\"\n")); err == nil {
		t.Fatalf("expected error for missing DSN")
	}
}

func TestLoadRequiresModelWithBaseURL(t *testing.T) {
	body := "port: \"8088\"\ndatabaseDSN: x\nllmBaseURL: http://127.0.0.1:8001/v1\n"
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error when llmBaseURL set without llmModel")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-wins")
	t.Setenv("LLM_MODEL", "qwen-sale-lora")
	body := "port: \"8088\"\ndatabaseDSN: file-value\nllmBaseURL: http://127.0.0.1:8001/v1\nllmModel: file-model\n"
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseDSN != "postgres://env-wins" {
		t.Fatalf("env DATABASE_URL not applied: %q", cfg.DatabaseDSN)
	}
	if cfg.LLMModel != "qwen-sale-lora" {
		t.Fatalf("env LLM_MODEL not applied: %q", cfg.LLMModel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
