package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrMissingAPIKey is returned by RequireAPIKey.
var ErrMissingAPIKey = errors.New("no API key: set OPENAI_API_KEY or openai.api_key in the config file")

// Validate checks the configuration for required fields and valid values.
// An API key is not required here, since reading transcripts needs none.
func (c *Config) Validate() error {
	var errs []error

	if c.OpenAI.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("openai.max_retries must be >= 0, got %d", c.OpenAI.MaxRetries))
	}
	if c.OpenAI.Timeout < 0 {
		errs = append(errs, fmt.Errorf("openai.timeout must be >= 0, got %s", c.OpenAI.Timeout))
	}

	if c.Models.Chat == "" {
		errs = append(errs, errors.New("models.chat is required"))
	}
	if c.Models.Responses == "" {
		errs = append(errs, errors.New("models.responses is required"))
	}

	if c.Conversation.MaxToolRounds < 1 {
		errs = append(errs, fmt.Errorf("conversation.max_tool_rounds must be > 0, got %d", c.Conversation.MaxToolRounds))
	}
	if c.Conversation.MaxSchemaRetries < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_schema_retries must be >= 0, got %d", c.Conversation.MaxSchemaRetries))
	}
	if c.Conversation.CompactAtTokens < 0 {
		errs = append(errs, fmt.Errorf("conversation.compact_at_tokens must be >= 0, got %d", c.Conversation.CompactAtTokens))
	}

	switch c.Storage.Type {
	case StoragePebble:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required when storage.type is \"pebble\""))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.type must be %q or %q, got %q", StoragePebble, StorageMemory, c.Storage.Type))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path))
	}

	return errors.Join(errs...)
}

// RequireAPIKey fails when no API key was configured.
func (c *Config) RequireAPIKey() error {
	if c.OpenAI.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", l.Level)
	}
	return level, nil
}
