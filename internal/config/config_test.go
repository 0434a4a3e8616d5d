package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SMARTTODO_CONFIG_FILE", "SMARTTODO_DB_PATH", "SMARTTODO_LOG_LEVEL",
		"SMARTTODO_LLM_TIMEOUT", "SMARTTODO_MAX_ROUNDS", "SMARTTODO_MAX_ERRORS",
		"OPENAI_ENDPOINT", "OPENAI_MODEL", "OPENAI_API_KEY",
	} {
		t.Setenv(key, "")
	}
	// An empty SMARTTODO_CONFIG_FILE falls back to the home-dir default;
	// point it at a nonexistent file so host config cannot leak in.
	t.Setenv("SMARTTODO_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := LoadConfig()
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
	if cfg.OpenAIBaseURL != "https://openrouter.ai/api/v1" {
		t.Fatalf("unexpected base url: %s", cfg.OpenAIBaseURL)
	}
	if cfg.MaxConversationRounds != 20 || cfg.MaxCommandErrors != 3 {
		t.Fatalf("unexpected session limits: rounds=%d errors=%d", cfg.MaxConversationRounds, cfg.MaxCommandErrors)
	}
	if cfg.LLMTimeoutSeconds != 600 {
		t.Fatalf("unexpected timeout: %d", cfg.LLMTimeoutSeconds)
	}
	if cfg.DatabasePath == "" {
		t.Fatal("database path must have a default")
	}
	if cfg.OpenAIModel != "" || cfg.OpenAIAPIKey != "" {
		t.Fatal("model and key should default empty")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMARTTODO_DB_PATH", "/tmp/todo.db")
	t.Setenv("SMARTTODO_LOG_LEVEL", "debug")
	t.Setenv("SMARTTODO_MAX_ROUNDS", "5")
	t.Setenv("SMARTTODO_MAX_ERRORS", "1")
	t.Setenv("OPENAI_ENDPOINT", "https://api.example.com/v1")
	t.Setenv("OPENAI_MODEL", "gpt-5-mini")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := LoadConfig()
	if cfg.DatabasePath != "/tmp/todo.db" {
		t.Fatalf("unexpected db path: %s", cfg.DatabasePath)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
	if cfg.MaxConversationRounds != 5 || cfg.MaxCommandErrors != 1 {
		t.Fatalf("unexpected limits: rounds=%d errors=%d", cfg.MaxConversationRounds, cfg.MaxCommandErrors)
	}
	if cfg.OpenAIBaseURL != "https://api.example.com/v1" || cfg.OpenAIModel != "gpt-5-mini" || cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("openai overrides not applied: %+v", cfg)
	}
}

func TestLoadConfig_FileOverlayAndEnvPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
database_path = "/data/file.db"
log_level = "warn"

[llm]
base_url = "https://file.example.com/v1"
model = "file-model"
timeout_seconds = 30

[session]
max_rounds = 7
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("SMARTTODO_CONFIG_FILE", path)
	t.Setenv("SMARTTODO_LOG_LEVEL", "debug")

	cfg := LoadConfig()
	if cfg.DatabasePath != "/data/file.db" {
		t.Fatalf("file db path not applied: %s", cfg.DatabasePath)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("env must win over file, got %s", cfg.LogLevel)
	}
	if cfg.OpenAIBaseURL != "https://file.example.com/v1" || cfg.OpenAIModel != "file-model" {
		t.Fatalf("file llm section not applied: %+v", cfg)
	}
	if cfg.LLMTimeoutSeconds != 30 || cfg.MaxConversationRounds != 7 {
		t.Fatalf("file limits not applied: timeout=%d rounds=%d", cfg.LLMTimeoutSeconds, cfg.MaxConversationRounds)
	}
	if cfg.MaxCommandErrors != 3 {
		t.Fatalf("untouched fields must keep defaults, got %d", cfg.MaxCommandErrors)
	}
}

func TestLoadConfig_MalformedFileIgnored(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("SMARTTODO_CONFIG_FILE", path)

	cfg := LoadConfig()
	if cfg.LogLevel != "info" {
		t.Fatalf("malformed file must leave defaults, got %s", cfg.LogLevel)
	}
}

func TestGetConfig_UsesCacheWithinTTL(t *testing.T) {
	resetConfigCacheForTest()
	clearEnv(t)
	t.Setenv("SMARTTODO_LOG_LEVEL", "info")
	_ = LoadConfig()

	t.Setenv("SMARTTODO_LOG_LEVEL", "debug")
	got := GetConfig()
	if got == nil {
		t.Fatal("GetConfig should not return nil")
	}
	if got.LogLevel != "info" {
		t.Fatalf("expected cached level info, got %s", got.LogLevel)
	}
}

func TestGetConfig_RefreshesAfterTTL(t *testing.T) {
	resetConfigCacheForTest()
	clearEnv(t)

	oldNow := nowFunc
	oldTTL := cacheTTL
	defer func() {
		nowFunc = oldNow
		cacheTTL = oldTTL
		resetConfigCacheForTest()
	}()

	base := time.Date(2026, time.February, 19, 0, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return base }
	cacheTTL = 10 * time.Second

	t.Setenv("SMARTTODO_LOG_LEVEL", "info")
	_ = LoadConfig()

	base = base.Add(11 * time.Second)
	t.Setenv("SMARTTODO_LOG_LEVEL", "debug")

	got := GetConfig()
	if got == nil {
		t.Fatal("GetConfig should not return nil")
	}
	if got.LogLevel != "debug" {
		t.Fatalf("expected refreshed level debug, got %s", got.LogLevel)
	}
}

func resetConfigCacheForTest() {
	cacheMu.Lock()
	cachedCfg = Config{}
	cachedAt = time.Time{}
	cacheValid = false
	cacheMu.Unlock()
}
