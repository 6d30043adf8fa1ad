package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Providers accepted by CHATKEEP_PROVIDER.
const (
	ProviderEndpoint = "endpoint"
	ProviderGemini   = "gemini"
	ProviderDummy    = "dummy"
)

const (
	defaultEndpointURL = "https://chatbot-api-rouge.vercel.app/api"
	defaultGeminiModel = "gemini-2.5-flash"
)

// Config holds configuration for the chatkeep client.
type Config struct {
	DBPath                 string `yaml:"db_path"`
	Provider               string `yaml:"provider"`
	EndpointURL            string `yaml:"endpoint_url"`
	TimeoutSeconds         int    `yaml:"timeout_seconds"`
	RetentionCap           int    `yaml:"retention_cap"`
	HistoryWindow          int    `yaml:"history_window"`
	GeminiAPIKey           string `yaml:"gemini_api_key"`
	GeminiModel            string `yaml:"gemini_model"`
	SystemPrompt           string `yaml:"system_prompt"`
	DummyScript            string `yaml:"dummy_script"`
	ErrorPrefix            string `yaml:"error_prefix"`
	BreakerThreshold       int    `yaml:"breaker_threshold"`
	BreakerCooldownSeconds int    `yaml:"breaker_cooldown_seconds"`
	RenderStyle            string `yaml:"render_style"`
	WordWrap               int    `yaml:"word_wrap"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DBPath:                 defaultDBPath(),
		Provider:               ProviderEndpoint,
		EndpointURL:            defaultEndpointURL,
		TimeoutSeconds:         60,
		RetentionCap:           50,
		HistoryWindow:          0,
		GeminiModel:            defaultGeminiModel,
		DummyScript:            "echo",
		ErrorPrefix:            "An error occurred: ",
		BreakerThreshold:       5,
		BreakerCooldownSeconds: 30,
		WordWrap:               80,
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".chatkeep", "chat.db")
	}
	return filepath.Join(home, ".chatkeep", "chat.db")
}

// Load builds the configuration from defaults, the YAML file named by
// CHATKEEP_CONFIG (if any) and environment variables, in increasing order of
// precedence.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CHATKEEP_CONFIG"); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.DBPath = expandHome(envOrDefault("CHATKEEP_DB_PATH", cfg.DBPath))
	cfg.Provider = strings.ToLower(envOrDefault("CHATKEEP_PROVIDER", cfg.Provider))
	cfg.EndpointURL = envOrDefault("CHATKEEP_ENDPOINT_URL", cfg.EndpointURL)
	cfg.TimeoutSeconds = envIntOrDefault("CHATKEEP_TIMEOUT_SECONDS", cfg.TimeoutSeconds)
	cfg.RetentionCap = envIntOrDefault("CHATKEEP_RETENTION_CAP", cfg.RetentionCap)
	cfg.HistoryWindow = envIntOrDefault("CHATKEEP_HISTORY_WINDOW", cfg.HistoryWindow)
	cfg.GeminiAPIKey = envOrDefault("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = envOrDefault("CHATKEEP_GEMINI_MODEL", cfg.GeminiModel)
	cfg.SystemPrompt = envOrDefault("CHATKEEP_SYSTEM_PROMPT", cfg.SystemPrompt)
	cfg.DummyScript = envOrDefault("CHATKEEP_DUMMY_SCRIPT", cfg.DummyScript)
	cfg.ErrorPrefix = envOrDefault("CHATKEEP_ERROR_PREFIX", cfg.ErrorPrefix)
	cfg.BreakerThreshold = envIntOrDefault("CHATKEEP_BREAKER_THRESHOLD", cfg.BreakerThreshold)
	cfg.BreakerCooldownSeconds = envIntOrDefault("CHATKEEP_BREAKER_COOLDOWN_SECONDS", cfg.BreakerCooldownSeconds)
	cfg.RenderStyle = envOrDefault("CHATKEEP_RENDER_STYLE", cfg.RenderStyle)
	cfg.WordWrap = envIntOrDefault("CHATKEEP_WORD_WRAP", cfg.WordWrap)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.DBPath = expandHome(cfg.DBPath)
	return nil
}

// Validate reports configuration that cannot be used.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("CHATKEEP_DB_PATH must not be empty"))
	}
	switch c.Provider {
	case ProviderEndpoint:
		if c.EndpointURL == "" {
			errs = append(errs, errors.New("CHATKEEP_ENDPOINT_URL is required when CHATKEEP_PROVIDER=endpoint"))
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required in environment when CHATKEEP_PROVIDER=gemini"))
		}
	case ProviderDummy:
	default:
		errs = append(errs, fmt.Errorf("CHATKEEP_PROVIDER must be one of endpoint, gemini, dummy; got %q", c.Provider))
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("CHATKEEP_TIMEOUT_SECONDS must be > 0, got %d", c.TimeoutSeconds))
	}
	if c.RetentionCap <= 0 {
		errs = append(errs, fmt.Errorf("CHATKEEP_RETENTION_CAP must be > 0, got %d", c.RetentionCap))
	}
	if c.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("CHATKEEP_HISTORY_WINDOW must be >= 0, got %d", c.HistoryWindow))
	}
	if c.BreakerThreshold <= 0 {
		errs = append(errs, fmt.Errorf("CHATKEEP_BREAKER_THRESHOLD must be > 0, got %d", c.BreakerThreshold))
	}
	if c.BreakerCooldownSeconds <= 0 {
		errs = append(errs, fmt.Errorf("CHATKEEP_BREAKER_COOLDOWN_SECONDS must be > 0, got %d", c.BreakerCooldownSeconds))
	}
	return errors.Join(errs...)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
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
