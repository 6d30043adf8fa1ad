package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CHATKEEP_CONFIG", "CHATKEEP_DB_PATH", "CHATKEEP_PROVIDER", "CHATKEEP_ENDPOINT_URL",
		"CHATKEEP_TIMEOUT_SECONDS", "CHATKEEP_RETENTION_CAP", "CHATKEEP_HISTORY_WINDOW",
		"GEMINI_API_KEY", "CHATKEEP_GEMINI_MODEL", "CHATKEEP_SYSTEM_PROMPT", "CHATKEEP_DUMMY_SCRIPT",
		"CHATKEEP_ERROR_PREFIX", "CHATKEEP_BREAKER_THRESHOLD", "CHATKEEP_BREAKER_COOLDOWN_SECONDS",
		"CHATKEEP_RENDER_STYLE", "CHATKEEP_WORD_WRAP",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatkeep.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Provider != ProviderEndpoint {
		t.Fatalf("unexpected provider: %s", cfg.Provider)
	}
	if cfg.EndpointURL != "https://chatbot-api-rouge.vercel.app/api" {
		t.Fatalf("unexpected endpoint: %s", cfg.EndpointURL)
	}
	if cfg.RetentionCap != 50 || cfg.TimeoutSeconds != 60 || cfg.HistoryWindow != 0 {
		t.Fatalf("unexpected numeric defaults: %+v", cfg)
	}
	if !strings.HasSuffix(cfg.DBPath, filepath.Join(".chatkeep", "chat.db")) {
		t.Fatalf("unexpected db path: %s", cfg.DBPath)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATKEEP_CONFIG", writeConfig(t, `
provider: dummy
dummy_script: "msg:from-yaml"
retention_cap: 10
error_prefix: "Có lỗi xảy ra: "
`))
	t.Setenv("CHATKEEP_RETENTION_CAP", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Provider != ProviderDummy {
		t.Fatalf("yaml provider not applied: %s", cfg.Provider)
	}
	if cfg.DummyScript != "msg:from-yaml" {
		t.Fatalf("yaml script not applied: %s", cfg.DummyScript)
	}
	if cfg.RetentionCap != 20 {
		t.Fatalf("env should win over yaml, got %d", cfg.RetentionCap)
	}
	if cfg.ErrorPrefix != "Có lỗi xảy ra: " {
		t.Fatalf("unexpected prefix: %q", cfg.ErrorPrefix)
	}
	if cfg.TimeoutSeconds != 60 {
		t.Fatalf("default should survive overlay, got %d", cfg.TimeoutSeconds)
	}
}

func TestLoad_ExpandsHome(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CHATKEEP_DB_PATH", "~/chats/a.db")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.DBPath != filepath.Join(home, "chats", "a.db") {
		t.Fatalf("unexpected db path: %s", cfg.DBPath)
	}
}

func TestLoad_GeminiRequiresKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATKEEP_PROVIDER", "gemini")
	_, err := Load()
	if err == nil {
		t.Fatal("expected missing key error")
	}
	if !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("unexpected err: %v", err)
	}

	t.Setenv("GEMINI_API_KEY", "test-key")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATKEEP_PROVIDER", "carrier-pigeon")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "CHATKEEP_PROVIDER") {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestLoad_ValidatesLimits(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATKEEP_TIMEOUT_SECONDS", "0")
	t.Setenv("CHATKEEP_HISTORY_WINDOW", "-1")
	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, key := range []string{"CHATKEEP_TIMEOUT_SECONDS", "CHATKEEP_HISTORY_WINDOW"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in err: %v", key, err)
		}
	}
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATKEEP_CONFIG", writeConfig(t, "provider: [unterminated"))
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
	t.Setenv("CHATKEEP_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected read error")
	}
}

func TestEnvIntOrDefault_IgnoresGarbage(t *testing.T) {
	t.Setenv("CHATKEEP_TEST_INT", "nope")
	if got := envIntOrDefault("CHATKEEP_TEST_INT", 7); got != 7 {
		t.Fatalf("unexpected value: %d", got)
	}
}

func TestLoad_RejectsNonPositiveRetentionCap(t *testing.T) {
	for _, v := range []string{"0", "-5"} {
		clearEnv(t)
		t.Setenv("CHATKEEP_RETENTION_CAP", v)
		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for cap %s", v)
		}
		if !strings.Contains(err.Error(), "CHATKEEP_RETENTION_CAP") {
			t.Fatalf("unexpected err: %v", err)
		}
	}
}
