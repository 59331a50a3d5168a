package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked for in the working directory when no path is
// given.
const DefaultConfigFile = "apistyles.yaml"

// Load loads configuration from a layered set of sources. The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, APISTYLES_CONFIG env, ./apistyles.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if filePath := discoverConfigFile(configPath); filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile returns the explicit path, then APISTYLES_CONFIG, then
// ./apistyles.yaml if it exists, or an empty string.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("APISTYLES_CONFIG"); envPath != "" {
		return envPath
	}

	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}

	return ""
}

// loadYAMLFile parses path into cfg. Fields not present in the file keep
// their current values. Unknown fields are an error.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps environment variables to config fields. The
// OPENAI_* names are the ones the official client libraries read.
func applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		env string
		dst *string
	}{
		{"OPENAI_API_KEY", &cfg.OpenAI.APIKey},
		{"OPENAI_API_KEY_FILE", &cfg.OpenAI.APIKeyFile},
		{"OPENAI_BASE_URL", &cfg.OpenAI.BaseURL},
		{"OPENAI_MODEL", &cfg.Models.Chat},
		{"OPENAI_MODEL", &cfg.Models.Responses},
		{"APISTYLES_CHAT_MODEL", &cfg.Models.Chat},
		{"APISTYLES_RESPONSES_MODEL", &cfg.Models.Responses},
		{"APISTYLES_PARSE_MODEL", &cfg.Models.Parse},
		{"APISTYLES_SYSTEM_PROMPT", &cfg.Conversation.SystemPrompt},
		{"APISTYLES_STORAGE", &cfg.Storage.Type},
		{"APISTYLES_STORAGE_PATH", &cfg.Storage.Path},
		{"APISTYLES_LOG_LEVEL", &cfg.Log.Level},
		{"APISTYLES_METRICS_ADDR", &cfg.Metrics.Addr},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"APISTYLES_MAX_RETRIES", &cfg.OpenAI.MaxRetries},
		{"APISTYLES_REQUESTS_PER_MINUTE", &cfg.Limits.RequestsPerMinute},
		{"APISTYLES_TOKENS_PER_MINUTE", &cfg.Limits.TokensPerMinute},
		{"APISTYLES_MAX_TOOL_ROUNDS", &cfg.Conversation.MaxToolRounds},
		{"APISTYLES_MAX_SCHEMA_RETRIES", &cfg.Conversation.MaxSchemaRetries},
		{"APISTYLES_COMPACT_AT_TOKENS", &cfg.Conversation.CompactAtTokens},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", i.env, err)
		}
		*i.dst = n
	}

	return nil
}

// resolveFileReferences reads _file fields into their empty value fields.
func resolveFileReferences(cfg *Config) error {
	if cfg.OpenAI.APIKeyFile != "" && cfg.OpenAI.APIKey == "" {
		val, err := readSecretFile(cfg.OpenAI.APIKeyFile)
		if err != nil {
			return fmt.Errorf("openai.api_key_file: %w", err)
		}
		cfg.OpenAI.APIKey = val
	}
	return nil
}

// readSecretFile returns the file's content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
