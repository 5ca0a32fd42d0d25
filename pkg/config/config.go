package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds global settings for the PhishGuard service.
// All settings can be configured via environment variables or programmatically.
type Config struct {
	// === Neural Engine ===
	ModelName       string // HuggingFace model identifier (default: ElSlay/BERT-Phishing-Email-Model)
	ModelPath       string // Local path to the ONNX model directory (downloaded here if missing)
	OnnxLibraryPath string // Path to libonnxruntime.so; empty = pure Go backend

	// === Attribution Engine ===
	AttributionWorkers int // Concurrent attribution computations (default: 2)
	AttributionSamples int // Shapley permutation samples per request (default: 24)
	AttributionTopK    int // Ranked tokens returned per explanation (default: 12)

	// === Verdict Cache ===
	CacheTTL  time.Duration // Entry lifetime for cached verdicts (default: 1h)
	RedisAddr string        // If set, the cache is Redis-backed instead of in-memory

	// === Narrative Assistant ===
	GeminiAPIKey      string        // Credential for the generative-language API; empty = offline fallback only
	GeminiModel       string        // Model identifier (default: gemini-1.5-flash)
	GeminiTimeout     time.Duration // Per-call timeout (default: 30s)
	OllamaBaseURL     string        // Optional local embedder for semantic knowledge-base retrieval
	SemanticKB        bool          // Allows disabling semantic retrieval even with Ollama configured (default: true)
	SemanticThreshold float64       // Minimum cosine similarity for a semantic match (default: 0.55)

	// === Persistence (optional) ===
	DatabaseURL string // Postgres connection string; empty = accounts/history disabled

	// === Accounts ===
	TokenSecret string        // HMAC secret for bearer tokens (REQUIRED in production)
	TokenTTL    time.Duration // Token lifetime (default: 24h)

	// === Heuristic Rules ===
	RulesFile string // Optional YAML file overriding trusted domains / risky TLDs

	// === HTTP ===
	Port string // Listen port for serve mode (default: 8000)
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		ModelName:       GetEnv("PHISHGUARD_MODEL_NAME", "ElSlay/BERT-Phishing-Email-Model"),
		ModelPath:       GetEnv("PHISHGUARD_MODEL_PATH", "./models/bert-phishing"),
		OnnxLibraryPath: GetEnv("PHISHGUARD_ONNX_LIB", defaultOnnxPath()),

		AttributionWorkers: clampInt(GetEnvInt("PHISHGUARD_ATTRIBUTION_WORKERS", 2), 1, 64),
		AttributionSamples: clampInt(GetEnvInt("PHISHGUARD_ATTRIBUTION_SAMPLES", 24), 4, 512),
		AttributionTopK:    clampInt(GetEnvInt("PHISHGUARD_ATTRIBUTION_TOPK", 12), 1, 100),

		CacheTTL:  time.Duration(GetEnvInt("PHISHGUARD_CACHE_TTL_SECONDS", 3600)) * time.Second,
		RedisAddr: GetEnv("PHISHGUARD_REDIS_ADDR", ""),

		GeminiAPIKey:      GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:       GetEnv("PHISHGUARD_GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiTimeout:     time.Duration(GetEnvInt("PHISHGUARD_GEMINI_TIMEOUT_MS", 30000)) * time.Millisecond,
		OllamaBaseURL:     GetEnv("PHISHGUARD_OLLAMA_URL", ""),
		SemanticKB:        GetEnvBool("PHISHGUARD_SEMANTIC_KB", true),
		SemanticThreshold: GetEnvFloat("PHISHGUARD_SEMANTIC_THRESHOLD", 0.55),

		DatabaseURL: GetEnv("DATABASE_URL", ""),

		TokenSecret: getTokenSecret(),
		TokenTTL:    time.Duration(GetEnvInt("PHISHGUARD_TOKEN_TTL_SECONDS", 86400)) * time.Second,

		RulesFile: GetEnv("PHISHGUARD_RULES_FILE", ""),

		Port: GetEnv("PHISHGUARD_PORT", "8000"),
	}
}

// NewLocalConfig creates a Config for fully offline operation: no Gemini,
// no Redis, no database. Detection and the deterministic assistant still work.
func NewLocalConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.GeminiAPIKey = ""
	cfg.RedisAddr = ""
	cfg.DatabaseURL = ""
	cfg.OllamaBaseURL = ""
	return cfg
}

// getTokenSecret returns the token secret from env, or generates a random one
// for development. In production PHISHGUARD_TOKEN_SECRET MUST be set.
func getTokenSecret() string {
	if secret := os.Getenv("PHISHGUARD_TOKEN_SECRET"); secret != "" {
		return secret
	}

	log.Printf("[WARN] PHISHGUARD_TOKEN_SECRET not set - using ephemeral secret. Bearer tokens will NOT survive restarts. Set PHISHGUARD_TOKEN_SECRET in production!")

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		if isProduction() {
			log.Fatalf("[FATAL] crypto/rand failure in production - cannot generate secure token secret: %v", err)
		}
		log.Printf("[CRITICAL] crypto/rand failure - token security severely compromised: %v", err)
		fallback := make([]byte, 32)
		for i := range fallback {
			fallback[i] = byte((os.Getpid() + time.Now().Nanosecond() + i*31) & 0xFF)
		}
		return hex.EncodeToString(fallback)
	}
	return hex.EncodeToString(b)
}

func isProduction() bool {
	env := strings.ToLower(os.Getenv("PHISHGUARD_ENV"))
	return env == "production" || env == "prod"
}

// defaultOnnxPath returns the ONNX Runtime library directory for the current
// platform, or empty when no runtime is installed (pure Go backend is used).
func defaultOnnxPath() string {
	paths := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p[:strings.LastIndex(p, "/")]
		}
	}
	return ""
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// RequiredSecret defines a required environment variable for startup validation
type RequiredSecret struct {
	Name        string // Environment variable name
	Description string // Human-readable description
	Production  bool   // Required in production only (false = required always)
}

// CriticalSecrets returns the list of secrets required for the service to operate
func CriticalSecrets() []RequiredSecret {
	return []RequiredSecret{
		{Name: "PHISHGUARD_TOKEN_SECRET", Description: "HMAC secret for bearer tokens (32+ bytes)", Production: true},
	}
}

// Validate checks that all required configuration is present.
// In production mode this returns an error if critical secrets are missing;
// in development it logs warnings but allows startup.
func (c *Config) Validate() error {
	production := isProduction()

	var missing []string
	for _, secret := range CriticalSecrets() {
		if os.Getenv(secret.Name) != "" {
			continue
		}
		if secret.Production && !production {
			log.Printf("[STARTUP] Warning: Missing optional secret: %s (%s)", secret.Name, secret.Description)
			continue
		}
		missing = append(missing, secret.Name+" ("+secret.Description+")")
	}

	if production && len(c.TokenSecret) < 32 {
		missing = append(missing, "PHISHGUARD_TOKEN_SECRET (must be at least 32 characters)")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required secrets: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}

// Helper functions for environment variable parsing.
// Exported for use by other packages.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
