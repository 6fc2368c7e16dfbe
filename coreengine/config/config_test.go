package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DEFAULTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:11434", cfg.LLM.Host)
	assert.Equal(t, "mistral", cfg.LLM.Model)
	assert.Equal(t, "llava", cfg.LLM.VisionModel)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, 300, cfg.Session.TimeoutSeconds)
	assert.Equal(t, 1, cfg.Workflow.RetryLimit)
	assert.Equal(t, 2, cfg.Workflow.CritiqueAttemptLimit)
	assert.Equal(t, 32, cfg.Workflow.MaxHops)
	assert.Equal(t, 1000, cfg.Corpus.ChunkSize)
	assert.Equal(t, 200, cfg.Corpus.ChunkOverlap)
	assert.Equal(t, MemoryTypeMemory, cfg.Memory.Type)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Durations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workflow.StageTimeouts = map[string]int{"research": 30}

	assert.Equal(t, 5*time.Minute, cfg.SessionTimeout())
	assert.Equal(t, time.Minute, cfg.CleanupInterval())
	assert.Equal(t, 2*time.Minute, cfg.StageTimeout())
	assert.Equal(t, map[string]time.Duration{"research": 30 * time.Second}, cfg.StageTimeoutOverrides())
}

func TestConfig_Conversions(t *testing.T) {
	cfg := DefaultConfig()

	logOpts := cfg.LoggerOptions()
	assert.Equal(t, "INFO", logOpts.Level)
	assert.Equal(t, 10, logOpts.MaxSizeMB)
	assert.True(t, logOpts.Compress)

	traceOpts := cfg.TracingOptions("1.2.3")
	assert.Equal(t, "assistant", traceOpts.ServiceName)
	assert.Equal(t, "1.2.3", traceOpts.ServiceVersion)
	assert.Equal(t, "localhost:4317", traceOpts.Endpoint)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing host", func(c *Config) { c.LLM.Host = "" }, "llm.host"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"memory type", func(c *Config) { c.Memory.Type = "file" }, "memory.type"},
		{"redis url", func(c *Config) { c.Memory.Type = MemoryTypeRedis; c.Memory.RedisURL = "" }, "memory.redis_url"},
		{"overlap", func(c *Config) { c.Corpus.ChunkOverlap = c.Corpus.ChunkSize }, "corpus.chunk_overlap"},
		{"critique attempts", func(c *Config) { c.Workflow.CritiqueAttemptLimit = 0 }, "workflow.critique_attempt_limit"},
		{"negative retry", func(c *Config) { c.Workflow.RetryLimit = -1 }, "workflow.retry_limit"},
		{"max hops", func(c *Config) { c.Workflow.MaxHops = 0 }, "workflow.max_hops"},
		{"session timeout", func(c *Config) { c.Session.TimeoutSeconds = 0 }, "session.timeout_seconds"},
		{"tracing endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Endpoint = "" }, "tracing.endpoint"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "tracing.sample_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateReportsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Host = ""
	cfg.LLM.Model = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.host")
	assert.Contains(t, err.Error(), "llm.model")
}

// =============================================================================
// LOAD
// =============================================================================

// chdirTemp runs the test from an empty directory so no stray .env is read.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().LLM, cfg.LLM)
	assert.Equal(t, DefaultConfig().Workflow.MaxHops, cfg.Workflow.MaxHops)
	assert.NotNil(t, cfg.Workflow.StageTimeouts)
}

func TestLoad_File(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "assistant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  model: llama3
workflow:
  retry_limit: 0
  stage_timeouts:
    research: 45
memory:
  type: none
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, "llava", cfg.LLM.VisionModel)
	assert.Equal(t, 0, cfg.Workflow.RetryLimit)
	assert.Equal(t, 45, cfg.Workflow.StageTimeouts["research"])
	assert.Equal(t, MemoryTypeNone, cfg.Memory.Type)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("OLLAMA_MODEL", "phi3")
	t.Setenv("SESSION_TIMEOUT", "600")
	t.Setenv("ASSISTANT_WORKFLOW_MAX_HOPS", "16")
	t.Setenv("TTS_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "phi3", cfg.LLM.Model)
	assert.Equal(t, 600, cfg.Session.TimeoutSeconds)
	assert.Equal(t, 16, cfg.Workflow.MaxHops)
	assert.False(t, cfg.Speech.TTSEnabled)
}

func TestLoad_StructuredEnvWinsOverLegacy(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ASSISTANT_LLM_MODEL", "structured")
	t.Setenv("OLLAMA_MODEL", "legacy")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "structured", cfg.LLM.Model)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OLLAMA_HOST=http://ollama:11434\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("OLLAMA_HOST") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://ollama:11434", cfg.LLM.Host)
}

func TestLoad_Errors(t *testing.T) {
	chdirTemp(t)

	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")

	t.Setenv("MEMORY_TYPE", "file")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory.type")
}
