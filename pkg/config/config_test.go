package config

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("PHISHGUARD_TEST_STR", "hello")
	if got := GetEnv("PHISHGUARD_TEST_STR", "fallback"); got != "hello" {
		t.Errorf("GetEnv = %q, want hello", got)
	}
	if got := GetEnv("PHISHGUARD_TEST_STR_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnv default = %q, want fallback", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("PHISHGUARD_TEST_BOOL", "false")
	if GetEnvBool("PHISHGUARD_TEST_BOOL", true) {
		t.Error("GetEnvBool ignored explicit false")
	}

	t.Setenv("PHISHGUARD_TEST_BOOL", "not-a-bool")
	if !GetEnvBool("PHISHGUARD_TEST_BOOL", true) {
		t.Error("GetEnvBool should fall back on unparseable value")
	}

	if !GetEnvBool("PHISHGUARD_TEST_BOOL_UNSET", true) {
		t.Error("GetEnvBool should return the default when unset")
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("PHISHGUARD_TEST_FLOAT", "0.75")
	if got := GetEnvFloat("PHISHGUARD_TEST_FLOAT", 0.55); got != 0.75 {
		t.Errorf("GetEnvFloat = %v, want 0.75", got)
	}

	t.Setenv("PHISHGUARD_TEST_FLOAT", "garbage")
	if got := GetEnvFloat("PHISHGUARD_TEST_FLOAT", 0.55); got != 0.55 {
		t.Errorf("GetEnvFloat should fall back on unparseable value, got %v", got)
	}

	if got := GetEnvFloat("PHISHGUARD_TEST_FLOAT_UNSET", 0.55); got != 0.55 {
		t.Errorf("GetEnvFloat default = %v, want 0.55", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("PHISHGUARD_TEST_INT", "42")
	if got := GetEnvInt("PHISHGUARD_TEST_INT", 7); got != 42 {
		t.Errorf("GetEnvInt = %d, want 42", got)
	}
	if got := GetEnvInt("PHISHGUARD_TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("GetEnvInt default = %d, want 7", got)
	}
}

func TestDefaultConfigSemanticSettings(t *testing.T) {
	t.Setenv("PHISHGUARD_SEMANTIC_KB", "false")
	t.Setenv("PHISHGUARD_SEMANTIC_THRESHOLD", "0.8")

	cfg := NewDefaultConfig()
	if cfg.SemanticKB {
		t.Error("SemanticKB = true, want false from env")
	}
	if cfg.SemanticThreshold != 0.8 {
		t.Errorf("SemanticThreshold = %v, want 0.8", cfg.SemanticThreshold)
	}
}

func TestClampInt(t *testing.T) {
	if got := clampInt(0, 1, 64); got != 1 {
		t.Errorf("clampInt below min = %d, want 1", got)
	}
	if got := clampInt(100, 1, 64); got != 64 {
		t.Errorf("clampInt above max = %d, want 64", got)
	}
	if got := clampInt(8, 1, 64); got != 8 {
		t.Errorf("clampInt in range = %d, want 8", got)
	}
}

func TestLocalConfigIsOffline(t *testing.T) {
	t.Setenv("PHISHGUARD_CACHE_TTL_SECONDS", "")

	cfg := NewLocalConfig()
	if cfg.GeminiAPIKey != "" || cfg.RedisAddr != "" || cfg.DatabaseURL != "" || cfg.OllamaBaseURL != "" {
		t.Errorf("local config should have no external endpoints: %+v", cfg)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h default", cfg.CacheTTL)
	}
}
