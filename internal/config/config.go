// Package config loads apistyles settings.
//
// Configuration is layered:
//  1. Built-in defaults
//  2. YAML config file (explicit path, APISTYLES_CONFIG, ./apistyles.yaml)
//  3. Environment variable overrides (OPENAI_* and APISTYLES_*)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"cmp"
	"os"
	"path/filepath"
	"time"

	"github.com/picatz/apistyles"
	"github.com/picatz/apistyles/internal/chat"
	"github.com/picatz/apistyles/internal/tools"
)

// Config holds all configuration for the CLI.
type Config struct {
	OpenAI       OpenAIConfig       `yaml:"openai"`
	Models       ModelsConfig       `yaml:"models"`
	Limits       LimitsConfig       `yaml:"limits"`
	Conversation ConversationConfig `yaml:"conversation"`
	Storage      StorageConfig      `yaml:"storage"`
	Log          LogConfig          `yaml:"log"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// OpenAIConfig holds client settings.
type OpenAIConfig struct {
	APIKey     string        `yaml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
	BaseURL    string        `yaml:"base_url"`     // optional, for compatible servers
	MaxRetries int           `yaml:"max_retries"`  // default: 2
	Timeout    time.Duration `yaml:"timeout"`      // default: 2m
}

// ModelsConfig selects the model per style.
type ModelsConfig struct {
	Chat      string `yaml:"chat"`      // default: gpt-5-mini
	Responses string `yaml:"responses"` // default: gpt-4o-mini
	Parse     string `yaml:"parse"`     // default: gpt-4o-2024-08-06
}

// LimitsConfig holds the client-side rate limits, applied per style.
type LimitsConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"` // default: 500, <= 0 disables
	TokensPerMinute   int `yaml:"tokens_per_minute"`   // default: 200000, <= 0 disables
}

// ConversationConfig bounds the conversation loops.
type ConversationConfig struct {
	SystemPrompt     string `yaml:"system_prompt"`
	MaxToolRounds    int    `yaml:"max_tool_rounds"`    // default: 8
	MaxSchemaRetries int    `yaml:"max_schema_retries"` // default: 2

	// CompactAtTokens summarizes the turn-based history once a request
	// reaches this many tokens. 0 disables it.
	CompactAtTokens int `yaml:"compact_at_tokens"`
}

// StorageConfig selects where transcripts are kept.
type StorageConfig struct {
	Type string `yaml:"type"` // "pebble" or "memory", default: "pebble"
	Path string `yaml:"path"` // pebble directory, default: ~/.apistyles/transcripts
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn" or "error", default: "info"
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
	Path string `yaml:"path"` // default: "/metrics"
}

// Storage types.
const (
	StoragePebble = "pebble"
	StorageMemory = "memory"
)

// DefaultStoragePath is where transcripts are kept when no path is
// configured: ~/.apistyles/transcripts on Unix-like systems and
// %USERPROFILE%/.apistyles/transcripts on Windows.
var DefaultStoragePath = filepath.Join(cmp.Or(os.Getenv("HOME"), os.Getenv("USERPROFILE")), ".apistyles", "transcripts")

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		OpenAI: OpenAIConfig{
			MaxRetries: 2,
			Timeout:    2 * time.Minute,
		},
		Models: ModelsConfig{
			Chat:      apistyles.DefaultModel(apistyles.StyleTurnBased),
			Responses: apistyles.DefaultModel(apistyles.StyleManaged),
			Parse:     apistyles.ModelGPT4oStructured,
		},
		Limits: LimitsConfig{
			RequestsPerMinute: apistyles.DefaultRequestsPerMinute,
			TokensPerMinute:   apistyles.DefaultTokensPerMinute,
		},
		Conversation: ConversationConfig{
			MaxToolRounds:    tools.DefaultMaxToolRounds,
			MaxSchemaRetries: chat.DefaultMaxSchemaRetries,
		},
		Storage: StorageConfig{
			Type: StoragePebble,
			Path: DefaultStoragePath,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Model returns the configured model for style s.
func (c *Config) Model(s apistyles.Style) string {
	switch s {
	case apistyles.StyleManaged:
		return c.Models.Responses
	default:
		return c.Models.Chat
	}
}

// RateLimiters builds the per style limiters.
func (c *Config) RateLimiters() *apistyles.RateLimiters {
	return apistyles.NewRateLimiters(c.Limits.RequestsPerMinute, c.Limits.TokensPerMinute)
}
