// Package config loads runtime configuration from the environment and a
// declarative YAML agent catalog.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ModelConfig identifies one (provider, model-id) pair the rotator can hand
// out, e.g. {Provider: "anthropic", Model: "claude-3-7-sonnet-latest"}.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Config holds process-wide settings assembled from the environment.
type Config struct {
	// AnthropicAPIKeys, OpenAIAPIKeys, GoogleAPIKeys are comma-separated in
	// the environment; each entry becomes one credential pool slot.
	AnthropicAPIKeys []string
	OpenAIAPIKeys    []string
	GoogleAPIKeys    []string

	LogLevel string
	LogPath  string

	DBPath string

	// Ingestion defaults, overridable per CLI invocation.
	MaxChunkTokens int
	GroupSize      int
	MaxDepth       int
	Workers        int
	MaxRetries     int
	CallsPerModel  int

	Models []ModelConfig

	CatalogPath string
}

// Load reads Config from the process environment, optionally overlaying a
// .env file via godotenv (present-but-missing .env is not an error).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		LogLevel:       firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		LogPath:        os.Getenv("LOG_PATH"),
		DBPath:         firstNonEmpty(os.Getenv("DOCMIND_DB_PATH"), "docmind.db"),
		MaxChunkTokens: intEnv("DOCMIND_MAX_CHUNK_TOKENS", 1000),
		GroupSize:      intEnv("DOCMIND_GROUP_SIZE", 5),
		MaxDepth:       intEnv("DOCMIND_MAX_DEPTH", 4),
		Workers:        intEnv("DOCMIND_WORKERS", 4),
		MaxRetries:     intEnv("DOCMIND_MAX_RETRIES", 3),
		CallsPerModel:  intEnv("DOCMIND_CALLS_PER_MODEL", 10),
		CatalogPath:    os.Getenv("DOCMIND_AGENT_CATALOG"),
	}

	cfg.AnthropicAPIKeys = splitCSV(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.OpenAIAPIKeys = splitCSV(os.Getenv("OPENAI_API_KEY"))
	cfg.GoogleAPIKeys = splitCSV(os.Getenv("GEMINI_API_KEY"))

	cfg.Models = defaultModelRotation(cfg)

	return cfg, nil
}

// defaultModelRotation builds the rotator's model list from whichever
// providers have credentials configured, in a fixed, documented order.
func defaultModelRotation(cfg Config) []ModelConfig {
	var out []ModelConfig
	if len(cfg.AnthropicAPIKeys) > 0 {
		out = append(out, ModelConfig{Provider: "anthropic", Model: firstNonEmpty(os.Getenv("ANTHROPIC_MODEL"), "claude-3-7-sonnet-latest")})
	}
	if len(cfg.OpenAIAPIKeys) > 0 {
		out = append(out, ModelConfig{Provider: "openai", Model: firstNonEmpty(os.Getenv("OPENAI_MODEL"), "gpt-4o-mini")})
	}
	if len(cfg.GoogleAPIKeys) > 0 {
		out = append(out, ModelConfig{Provider: "google", Model: firstNonEmpty(os.Getenv("GEMINI_MODEL"), "gemini-2.0-flash")})
	}
	return out
}

// CredentialCount returns the number of credential slots available across
// all configured providers, used to size the credential pool.
func (c Config) CredentialCount() int {
	n := len(c.AnthropicAPIKeys) + len(c.OpenAIAPIKeys) + len(c.GoogleAPIKeys)
	if n == 0 {
		return c.Workers
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
