// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Storage settings.
	DataDir string // Root directory for per-tenant record stores.

	// Template catalog settings.
	TemplateFile  string // Flat file of templates (JSON map or list).
	TemplateDir   string // Directory of per-template files; overrides the flat file.
	TemplateWatch bool   // Hot-reload the catalog on file changes.

	// Document classifier settings.
	ClassifierProvider string // "auto", "openai", "ollama", or "noop"
	ClassifierTimeout  time.Duration
	OpenAIAPIKey       string
	OpenAIModel        string
	OllamaURL          string
	OllamaModel        string

	// Vault settings for sealed connector tokens.
	VaultKeyPath    string // Path to the 32-byte base64 vault key file.
	VaultPassphrase string // Passphrase alternative when no key file is set.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		DataDir:            envStr("LODESTONE_DATA_DIR", "data"),
		TemplateFile:       envStr("LODESTONE_TEMPLATE_FILE", ""),
		TemplateDir:        envStr("LODESTONE_TEMPLATE_DIR", ""),
		TemplateWatch:      envBool("LODESTONE_TEMPLATE_WATCH", false),
		ClassifierProvider: envStr("LODESTONE_CLASSIFIER_PROVIDER", "auto"),
		ClassifierTimeout:  envDuration("LODESTONE_CLASSIFIER_TIMEOUT", 60*time.Second),
		OpenAIAPIKey:       envStr("OPENAI_API_KEY", ""),
		OpenAIModel:        envStr("LODESTONE_OPENAI_MODEL", "gpt-4o-mini"),
		OllamaURL:          envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:        envStr("OLLAMA_MODEL", "llama3.2"),
		VaultKeyPath:       envStr("LODESTONE_VAULT_KEY", ""),
		VaultPassphrase:    envStr("LODESTONE_VAULT_PASSPHRASE", ""),
		OTELEndpoint:       envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:       envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:        envStr("OTEL_SERVICE_NAME", "lodestone"),
		LogLevel:           envStr("LODESTONE_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: LODESTONE_DATA_DIR is required")
	}
	switch c.ClassifierProvider {
	case "auto", "openai", "ollama", "noop":
	default:
		return fmt.Errorf("config: unknown classifier provider %q", c.ClassifierProvider)
	}
	if c.ClassifierTimeout <= 0 {
		return fmt.Errorf("config: LODESTONE_CLASSIFIER_TIMEOUT must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
