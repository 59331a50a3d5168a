package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/picatz/apistyles"
	"github.com/picatz/apistyles/internal/config"
	"github.com/shoenig/test/must"
)

var envVars = []string{
	"APISTYLES_CONFIG",
	"OPENAI_API_KEY",
	"OPENAI_API_KEY_FILE",
	"OPENAI_BASE_URL",
	"OPENAI_MODEL",
	"APISTYLES_CHAT_MODEL",
	"APISTYLES_RESPONSES_MODEL",
	"APISTYLES_PARSE_MODEL",
	"APISTYLES_SYSTEM_PROMPT",
	"APISTYLES_STORAGE",
	"APISTYLES_STORAGE_PATH",
	"APISTYLES_LOG_LEVEL",
	"APISTYLES_METRICS_ADDR",
	"APISTYLES_MAX_RETRIES",
	"APISTYLES_REQUESTS_PER_MINUTE",
	"APISTYLES_TOKENS_PER_MINUTE",
	"APISTYLES_MAX_TOOL_ROUNDS",
	"APISTYLES_MAX_SCHEMA_RETRIES",
	"APISTYLES_COMPACT_AT_TOKENS",
}

// clearEnv isolates a test from the caller's environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
	}
	t.Chdir(t.TempDir())
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	must.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	must.NoError(t, err)

	must.Eq(t, apistyles.ModelGPT5Mini, cfg.Models.Chat)
	must.Eq(t, apistyles.ModelGPT4oMini, cfg.Models.Responses)
	must.Eq(t, apistyles.ModelGPT4oStructured, cfg.Models.Parse)
	must.Eq(t, 8, cfg.Conversation.MaxToolRounds)
	must.Eq(t, 2, cfg.Conversation.MaxSchemaRetries)
	must.Eq(t, 2*time.Minute, cfg.OpenAI.Timeout)
	must.Eq(t, config.StoragePebble, cfg.Storage.Type)
	must.Eq(t, config.DefaultStoragePath, cfg.Storage.Path)
	must.Eq(t, "", cfg.Metrics.Addr)
	must.ErrorIs(t, cfg.RequireAPIKey(), config.ErrMissingAPIKey)

	level, err := cfg.Log.SlogLevel()
	must.NoError(t, err)
	must.Eq(t, slog.LevelInfo, level)

	must.Eq(t, apistyles.ModelGPT4oMini, cfg.Model(apistyles.StyleManaged))
	must.NotNil(t, cfg.RateLimiters().For(apistyles.StyleTurnBased))
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)

	path := writeTemp(t, "apistyles.yaml", `
openai:
  api_key: sk-yaml
  base_url: http://localhost:4000/v1/
  max_retries: 5
  timeout: 30s
models:
  chat: chat-model
  responses: responses-model
limits:
  requests_per_minute: 60
  tokens_per_minute: 0
conversation:
  system_prompt: Be brief.
  max_tool_rounds: 3
  max_schema_retries: 0
storage:
  type: memory
log:
  level: debug
metrics:
  addr: ":9090"
`)

	cfg, err := config.Load(path)
	must.NoError(t, err)

	must.Eq(t, "sk-yaml", cfg.OpenAI.APIKey)
	must.Eq(t, "http://localhost:4000/v1/", cfg.OpenAI.BaseURL)
	must.Eq(t, 5, cfg.OpenAI.MaxRetries)
	must.Eq(t, 30*time.Second, cfg.OpenAI.Timeout)
	must.Eq(t, "chat-model", cfg.Models.Chat)
	must.Eq(t, "responses-model", cfg.Models.Responses)
	must.Eq(t, apistyles.ModelGPT4oStructured, cfg.Models.Parse)
	must.Eq(t, 60, cfg.Limits.RequestsPerMinute)
	must.Eq(t, 0, cfg.Limits.TokensPerMinute)
	must.Eq(t, "Be brief.", cfg.Conversation.SystemPrompt)
	must.Eq(t, 3, cfg.Conversation.MaxToolRounds)
	must.Eq(t, 0, cfg.Conversation.MaxSchemaRetries)
	must.Eq(t, config.StorageMemory, cfg.Storage.Type)
	must.Eq(t, ":9090", cfg.Metrics.Addr)
	must.Eq(t, "/metrics", cfg.Metrics.Path)
	must.NoError(t, cfg.RequireAPIKey())
}

func TestLoad_discovery(t *testing.T) {
	clearEnv(t)

	// ./apistyles.yaml in the working directory.
	must.NoError(t, os.WriteFile(config.DefaultConfigFile, []byte("models:\n  chat: from-cwd\n"), 0o600))
	cfg, err := config.Load("")
	must.NoError(t, err)
	must.Eq(t, "from-cwd", cfg.Models.Chat)

	// APISTYLES_CONFIG wins over the working directory.
	t.Setenv("APISTYLES_CONFIG", writeTemp(t, "env.yaml", "models:\n  chat: from-env\n"))
	cfg, err = config.Load("")
	must.NoError(t, err)
	must.Eq(t, "from-env", cfg.Models.Chat)

	// An explicit path wins over both.
	cfg, err = config.Load(writeTemp(t, "explicit.yaml", "models:\n  chat: explicit\n"))
	must.NoError(t, err)
	must.Eq(t, "explicit", cfg.Models.Chat)
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)

	path := writeTemp(t, "apistyles.yaml", `
openai:
  api_key: sk-yaml
models:
  chat: yaml-chat
  parse: yaml-parse
`)

	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_BASE_URL", "http://from-env/v1/")
	t.Setenv("OPENAI_MODEL", "env-model")
	t.Setenv("APISTYLES_RESPONSES_MODEL", "env-responses")
	t.Setenv("APISTYLES_MAX_TOOL_ROUNDS", "4")
	t.Setenv("APISTYLES_COMPACT_AT_TOKENS", "4096")
	t.Setenv("APISTYLES_STORAGE", "memory")
	t.Setenv("APISTYLES_LOG_LEVEL", "warn")

	cfg, err := config.Load(path)
	must.NoError(t, err)

	must.Eq(t, "sk-env", cfg.OpenAI.APIKey)
	must.Eq(t, "http://from-env/v1/", cfg.OpenAI.BaseURL)
	must.Eq(t, "env-model", cfg.Models.Chat)
	must.Eq(t, "env-responses", cfg.Models.Responses)
	must.Eq(t, "yaml-parse", cfg.Models.Parse)
	must.Eq(t, 4, cfg.Conversation.MaxToolRounds)
	must.Eq(t, 4096, cfg.Conversation.CompactAtTokens)
	must.Eq(t, config.StorageMemory, cfg.Storage.Type)

	level, err := cfg.Log.SlogLevel()
	must.NoError(t, err)
	must.Eq(t, slog.LevelWarn, level)
}

func TestEnvOverride_invalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("APISTYLES_MAX_RETRIES", "lots")

	_, err := config.Load("")
	must.ErrorContains(t, err, "APISTYLES_MAX_RETRIES")
}

func TestFileReference(t *testing.T) {
	clearEnv(t)

	secret := writeTemp(t, "key", "  sk-from-file\n")
	path := writeTemp(t, "apistyles.yaml", "openai:\n  api_key_file: "+secret+"\n")

	cfg, err := config.Load(path)
	must.NoError(t, err)
	must.Eq(t, "sk-from-file", cfg.OpenAI.APIKey)

	// A value set directly wins over the file.
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg, err = config.Load(path)
	must.NoError(t, err)
	must.Eq(t, "sk-env", cfg.OpenAI.APIKey)

	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY_FILE", filepath.Join(t.TempDir(), "missing"))
	_, err = config.Load("")
	must.ErrorContains(t, err, "openai.api_key_file")
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	path := writeTemp(t, "apistyles.yaml", `
openai:
  max_retries: -1
models:
  chat: ""
conversation:
  max_tool_rounds: 0
  compact_at_tokens: -5
storage:
  type: postgres
log:
  level: loud
metrics:
  addr: ":9090"
  path: metrics
`)

	_, err := config.Load(path)
	must.ErrorContains(t, err, "openai.max_retries")
	must.ErrorContains(t, err, "models.chat is required")
	must.ErrorContains(t, err, "conversation.max_tool_rounds")
	must.ErrorContains(t, err, "conversation.compact_at_tokens")
	must.ErrorContains(t, err, `storage.type must be "pebble" or "memory"`)
	must.ErrorContains(t, err, "log.level")
	must.ErrorContains(t, err, "metrics.path")
}

func TestLoad_unknownField(t *testing.T) {
	clearEnv(t)

	_, err := config.Load(writeTemp(t, "apistyles.yaml", "model: typo\n"))
	must.ErrorContains(t, err, "loading config file")
}

func TestLoad_emptyFile(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load(writeTemp(t, "apistyles.yaml", ""))
	must.NoError(t, err)
	must.Eq(t, config.Defaults(), *cfg)
}
