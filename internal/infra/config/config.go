// Package config provides runtime configuration for clinico.
// Values come from an optional YAML file, then environment variables,
// then safe defaults — the binary runs locally with no setup at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the service.
type Config struct {
	// HTTP
	HTTPHost string // CLINICO_HTTP_HOST — default "0.0.0.0"
	HTTPPort int    // CLINICO_HTTP_PORT — default 8080

	// Storage
	DBPath string // CLINICO_DB_PATH — default "clinico.db"

	// LLM provider
	LLMProvider      string        // LLM_PROVIDER — default "ollama"
	OllamaBaseURL    string        // OLLAMA_BASE_URL — default "http://localhost:11434"
	OllamaEmbedModel string        // OLLAMA_EMBED_MODEL — default "nomic-embed-text"
	OllamaChatModel  string        // OLLAMA_CHAT_MODEL — default "llama3.2:3b"
	ProviderTimeout  time.Duration // CLINICO_PROVIDER_TIMEOUT — default 30s

	// Session cache
	SessionTTL    time.Duration // CLINICO_SESSION_TTL — default 30m
	SweepInterval time.Duration // CLINICO_SWEEP_INTERVAL — default 5m

	// Refresh scheduler
	RefreshInterval time.Duration // CLINICO_REFRESH_INTERVAL — default 24h
	EntityTimeout   time.Duration // CLINICO_ENTITY_TIMEOUT — default 1m

	// Auth
	JWTSecret   string // JWT_SECRET — no default
	APIUser     string // CLINICO_API_USER
	APIPassHash string // CLINICO_API_PASS_HASH — bcrypt hash

	// Logging
	LogLevel string // LOG_LEVEL — default "info"
}

// fileConfig mirrors Config for YAML decoding. Durations are Go duration
// strings ("45s", "10m") so operators write the same syntax as the env vars.
type fileConfig struct {
	HTTPHost         *string `yaml:"http_host"`
	HTTPPort         *int    `yaml:"http_port"`
	DBPath           *string `yaml:"db_path"`
	LLMProvider      *string `yaml:"llm_provider"`
	OllamaBaseURL    *string `yaml:"ollama_base_url"`
	OllamaEmbedModel *string `yaml:"ollama_embed_model"`
	OllamaChatModel  *string `yaml:"ollama_chat_model"`
	ProviderTimeout  *string `yaml:"provider_timeout"`
	SessionTTL       *string `yaml:"session_ttl"`
	SweepInterval    *string `yaml:"sweep_interval"`
	RefreshInterval  *string `yaml:"refresh_interval"`
	EntityTimeout    *string `yaml:"entity_timeout"`
	JWTSecret        *string `yaml:"jwt_secret"`
	APIUser          *string `yaml:"api_user"`
	APIPassHash      *string `yaml:"api_pass_hash"`
	LogLevel         *string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPHost:         "0.0.0.0",
		HTTPPort:         8080,
		DBPath:           "clinico.db",
		LLMProvider:      "ollama",
		OllamaBaseURL:    "http://localhost:11434",
		OllamaEmbedModel: "nomic-embed-text",
		OllamaChatModel:  "llama3.2:3b",
		ProviderTimeout:  30 * time.Second,
		SessionTTL:       30 * time.Minute,
		SweepInterval:    5 * time.Minute,
		RefreshInterval:  24 * time.Hour,
		EntityTimeout:    time.Minute,
		LogLevel:         "info",
	}
}

// Load builds the effective configuration: defaults, overlaid by the YAML
// file at path (skipped when path is empty or the file does not exist),
// overlaid by environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}

	setStr(&cfg.HTTPHost, fc.HTTPHost)
	setInt(&cfg.HTTPPort, fc.HTTPPort)
	setStr(&cfg.DBPath, fc.DBPath)
	setStr(&cfg.LLMProvider, fc.LLMProvider)
	setStr(&cfg.OllamaBaseURL, fc.OllamaBaseURL)
	setStr(&cfg.OllamaEmbedModel, fc.OllamaEmbedModel)
	setStr(&cfg.OllamaChatModel, fc.OllamaChatModel)
	setStr(&cfg.JWTSecret, fc.JWTSecret)
	setStr(&cfg.APIUser, fc.APIUser)
	setStr(&cfg.APIPassHash, fc.APIPassHash)
	setStr(&cfg.LogLevel, fc.LogLevel)

	for _, d := range []struct {
		dst *time.Duration
		src *string
		key string
	}{
		{&cfg.ProviderTimeout, fc.ProviderTimeout, "provider_timeout"},
		{&cfg.SessionTTL, fc.SessionTTL, "session_ttl"},
		{&cfg.SweepInterval, fc.SweepInterval, "sweep_interval"},
		{&cfg.RefreshInterval, fc.RefreshInterval, "refresh_interval"},
		{&cfg.EntityTimeout, fc.EntityTimeout, "entity_timeout"},
	} {
		if d.src == nil {
			continue
		}
		parsed, perr := time.ParseDuration(*d.src)
		if perr != nil {
			return fmt.Errorf("config: %s: %w", d.key, perr)
		}
		*d.dst = parsed
	}

	return nil
}

func setStr(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func applyEnv(cfg *Config) {
	cfg.HTTPHost = envOr("CLINICO_HTTP_HOST", cfg.HTTPHost)
	cfg.HTTPPort = envIntOr("CLINICO_HTTP_PORT", cfg.HTTPPort)
	cfg.DBPath = envOr("CLINICO_DB_PATH", cfg.DBPath)
	cfg.LLMProvider = envOr("LLM_PROVIDER", cfg.LLMProvider)
	cfg.OllamaBaseURL = envOr("OLLAMA_BASE_URL", cfg.OllamaBaseURL)
	cfg.OllamaEmbedModel = envOr("OLLAMA_EMBED_MODEL", cfg.OllamaEmbedModel)
	cfg.OllamaChatModel = envOr("OLLAMA_CHAT_MODEL", cfg.OllamaChatModel)
	cfg.ProviderTimeout = envDurationOr("CLINICO_PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	cfg.SessionTTL = envDurationOr("CLINICO_SESSION_TTL", cfg.SessionTTL)
	cfg.SweepInterval = envDurationOr("CLINICO_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.RefreshInterval = envDurationOr("CLINICO_REFRESH_INTERVAL", cfg.RefreshInterval)
	cfg.EntityTimeout = envDurationOr("CLINICO_ENTITY_TIMEOUT", cfg.EntityTimeout)
	cfg.JWTSecret = envOr("JWT_SECRET", cfg.JWTSecret)
	cfg.APIUser = envOr("CLINICO_API_USER", cfg.APIUser)
	cfg.APIPassHash = envOr("CLINICO_API_PASS_HASH", cfg.APIPassHash)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envIntOr parses an integer env var, keeping fallback on absence or bad input.
func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envDurationOr parses a Go duration env var ("45s", "10m"), keeping fallback
// on absence or bad input.
func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
