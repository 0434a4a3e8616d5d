// Package config resolves runtime settings from an optional TOML file and
// SMARTTODO_* / OPENAI_* environment variables. Environment wins over the
// file, the file wins over defaults.
package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	DatabasePath string
	LogLevel     string

	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIAPIKey      string
	LLMTimeoutSeconds int

	MaxConversationRounds int
	MaxCommandErrors      int
}

// fileConfig is the TOML layout; zero values leave defaults untouched.
type fileConfig struct {
	DatabasePath string `toml:"database_path"`
	LogLevel     string `toml:"log_level"`
	LLM          struct {
		BaseURL        string `toml:"base_url"`
		Model          string `toml:"model"`
		APIKey         string `toml:"api_key"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"llm"`
	Session struct {
		MaxRounds int `toml:"max_rounds"`
		MaxErrors int `toml:"max_errors"`
	} `toml:"session"`
}

var (
	cacheTTL   = 10 * time.Second
	nowFunc    = time.Now
	cacheMu    sync.RWMutex
	cachedCfg  Config
	cachedAt   time.Time
	cacheValid bool
)

func LoadConfig() Config {
	cfg := load()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = nowFunc()
	cacheValid = true
	cacheMu.Unlock()
	return cfg
}

func GetConfig() *Config {
	now := nowFunc()
	cacheMu.RLock()
	valid := cacheValid && now.Sub(cachedAt) < cacheTTL
	if valid {
		out := cachedCfg
		cacheMu.RUnlock()
		return &out
	}
	cacheMu.RUnlock()

	cfg := load()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = now
	cacheValid = true
	cacheMu.Unlock()

	out := cfg
	return &out
}

func load() Config {
	cfg := Config{
		DatabasePath:          defaultDatabasePath(),
		LogLevel:              "info",
		OpenAIBaseURL:         "https://openrouter.ai/api/v1",
		LLMTimeoutSeconds:     600,
		MaxConversationRounds: 20,
		MaxCommandErrors:      3,
	}
	applyFile(&cfg, configFilePath())
	applyEnv(&cfg)
	return cfg
}

func configFilePath() string {
	if path := os.Getenv("SMARTTODO_CONFIG_FILE"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "smarttodo", "config.toml")
}

func applyFile(cfg *Config, path string) {
	if path == "" {
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return
	}
	if fc.DatabasePath != "" {
		cfg.DatabasePath = fc.DatabasePath
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LLM.BaseURL != "" {
		cfg.OpenAIBaseURL = fc.LLM.BaseURL
	}
	if fc.LLM.Model != "" {
		cfg.OpenAIModel = fc.LLM.Model
	}
	if fc.LLM.APIKey != "" {
		cfg.OpenAIAPIKey = fc.LLM.APIKey
	}
	if fc.LLM.TimeoutSeconds > 0 {
		cfg.LLMTimeoutSeconds = fc.LLM.TimeoutSeconds
	}
	if fc.Session.MaxRounds > 0 {
		cfg.MaxConversationRounds = fc.Session.MaxRounds
	}
	if fc.Session.MaxErrors > 0 {
		cfg.MaxCommandErrors = fc.Session.MaxErrors
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SMARTTODO_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("SMARTTODO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OPENAI_ENDPOINT"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if n := atoiOrDefault(os.Getenv("SMARTTODO_LLM_TIMEOUT"), 0); n > 0 {
		cfg.LLMTimeoutSeconds = n
	}
	if n := atoiOrDefault(os.Getenv("SMARTTODO_MAX_ROUNDS"), 0); n > 0 {
		cfg.MaxConversationRounds = n
	}
	if n := atoiOrDefault(os.Getenv("SMARTTODO_MAX_ERRORS"), 0); n > 0 {
		cfg.MaxCommandErrors = n
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "smarttodo.db"
	}
	return filepath.Join(home, ".local", "share", "smarttodo", "smarttodo.db")
}

func atoiOrDefault(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n := 0
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return fallback
		}
		n = n*10 + int(v[i]-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}
