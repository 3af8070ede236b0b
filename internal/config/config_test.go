package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
port: "8090"
databaseURL: "postgres://localhost/cheryl"
generationModel: "llama3.2"
embeddingModel: "nomic-embed-text"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.OllamaBaseURL != "http://127.0.0.1:11434" {
		t.Fatalf("expected ollama default, got %q", cfg.OllamaBaseURL)
	}
	if cfg.ConversationID != "main" || cfg.AssistantUserID != "cheryl" {
		t.Fatalf("expected conversation defaults, got %q/%q", cfg.ConversationID, cfg.AssistantUserID)
	}
	if cfg.Notifier != NotifierNone {
		t.Fatalf("expected notifier default none, got %q", cfg.Notifier)
	}
	if cfg.MessageLimit != 30 || cfg.MessageWindowSeconds != 60 {
		t.Fatalf("expected rate limit defaults, got %d/%d", cfg.MessageLimit, cfg.MessageWindowSeconds)
	}
}

func TestLoadEnvOverridesDatabaseURL(t *testing.T) {
	path := writeTempConfig(t, `
port: "8090"
databaseURL: "postgres://file/db"
generationModel: "llama3.2"
embeddingModel: "nomic-embed-text"
`)
	t.Setenv("DATABASE_URL", "postgres://env/db")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env/db" {
		t.Fatalf("expected env override, got %q", cfg.DatabaseURL)
	}
}

func TestLoadRequiresModelsUnlessMocked(t *testing.T) {
	path := writeTempConfig(t, `
port: "8090"
databaseURL: "postgres://localhost/cheryl"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing models")
	}

	path = writeTempConfig(t, `
port: "8090"
databaseURL: "postgres://localhost/cheryl"
mockAssistant: true
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("mocked assistant should not require models: %v", err)
	}
}

func TestLoadValidatesNotifier(t *testing.T) {
	path := writeTempConfig(t, `
port: "8090"
databaseURL: "postgres://localhost/cheryl"
mockAssistant: true
notifier: "redis"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for redis notifier without redisAddr")
	}

	path = writeTempConfig(t, `
port: "8090"
databaseURL: "postgres://localhost/cheryl"
mockAssistant: true
notifier: "carrier-pigeon"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown notifier kind")
	}
}

func TestLoadValidatesTokenIssuers(t *testing.T) {
	path := writeTempConfig(t, `
port: "8090"
databaseURL: "postgres://localhost/cheryl"
mockAssistant: true
internalTokenSecret: "shared"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when secret set without issuers")
	}
}
