// Package config provides the assistant configuration.
//
// Values come from, in increasing precedence:
//   - DefaultConfig
//   - an optional YAML file
//   - environment variables, either ASSISTANT_<SECTION>_<KEY> or the
//     flat names used by earlier deployments (OLLAMA_HOST, SESSION_TIMEOUT, ...)
//
// A .env file in the working directory is loaded first when present.
//
// Timeouts are whole seconds so plain environment values work.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
)

// EnvPrefix prefixes structured environment variables.
const EnvPrefix = "ASSISTANT"

// Memory backends.
const (
	MemoryTypeMemory = "memory"
	MemoryTypeRedis  = "redis"
	MemoryTypeNone   = "none"
)

// Config is the complete assistant configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Speech   SpeechConfig   `mapstructure:"speech" yaml:"speech"`
	Memory   MemoryConfig   `mapstructure:"memory" yaml:"memory"`
	Corpus   CorpusConfig   `mapstructure:"corpus" yaml:"corpus"`
	Workflow WorkflowConfig `mapstructure:"workflow" yaml:"workflow"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
	Events   EventsConfig   `mapstructure:"events" yaml:"events"`
}

// LLMConfig configures the Ollama client.
type LLMConfig struct {
	Host              string  `mapstructure:"host" yaml:"host"`
	Model             string  `mapstructure:"model" yaml:"model"`
	VisionModel       string  `mapstructure:"vision_model" yaml:"vision_model"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// SpeechConfig configures the speech server clients.
type SpeechConfig struct {
	TTSEnabled     bool   `mapstructure:"tts_enabled" yaml:"tts_enabled"`
	STTEnabled     bool   `mapstructure:"stt_enabled" yaml:"stt_enabled"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	WhisperModel   string `mapstructure:"whisper_model" yaml:"whisper_model"`
	TTSModel       string `mapstructure:"tts_model" yaml:"tts_model"`
	Voice          string `mapstructure:"voice" yaml:"voice"`
	AudioDir       string `mapstructure:"audio_dir" yaml:"audio_dir"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// MemoryConfig configures conversation memory.
type MemoryConfig struct {
	Type         string `mapstructure:"type" yaml:"type"`
	RedisURL     string `mapstructure:"redis_url" yaml:"redis_url"`
	TTLSeconds   int    `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
	MaxEntries   int    `mapstructure:"max_entries" yaml:"max_entries"`
	HistoryLimit int    `mapstructure:"history_limit" yaml:"history_limit"`
}

// CorpusConfig configures the retrieval corpus and document uploads.
type CorpusConfig struct {
	ChunkSize    int      `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
	SeedPaths    []string `mapstructure:"seed_paths" yaml:"seed_paths"`
	UploadDir    string   `mapstructure:"upload_dir" yaml:"upload_dir"`
	MaxFileSize  int64    `mapstructure:"max_file_size" yaml:"max_file_size"`
}

// WorkflowConfig bounds graph traversal and stage execution.
type WorkflowConfig struct {
	RetryLimit           int            `mapstructure:"retry_limit" yaml:"retry_limit"`
	CritiqueAttemptLimit int            `mapstructure:"critique_attempt_limit" yaml:"critique_attempt_limit"`
	ImprovementThreshold float64        `mapstructure:"improvement_threshold" yaml:"improvement_threshold"`
	SummaryTargetLength  int            `mapstructure:"summary_target_length" yaml:"summary_target_length"`
	RetrieveLimit        int            `mapstructure:"retrieve_limit" yaml:"retrieve_limit"`
	MaxHops              int            `mapstructure:"max_hops" yaml:"max_hops"`
	StageTimeoutSeconds  int            `mapstructure:"stage_timeout_seconds" yaml:"stage_timeout_seconds"`
	StageTimeouts        map[string]int `mapstructure:"stage_timeouts" yaml:"stage_timeouts"`
}

// SessionConfig configures session retention.
type SessionConfig struct {
	TimeoutSeconds         int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds" yaml:"cleanup_interval_seconds"`
}

// ServerConfig configures listeners.
type ServerConfig struct {
	GRPCAddr    string `mapstructure:"grpc_addr" yaml:"grpc_addr"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
	Console    bool   `mapstructure:"console" yaml:"console"`
}

// TracingConfig configures OTLP export.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	Environment string  `mapstructure:"environment" yaml:"environment"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// EventsConfig configures workflow event forwarding. An empty NATSURL
// keeps events in process.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url" yaml:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Host:           "http://localhost:11434",
			Model:          "mistral",
			VisionModel:    "llava",
			MaxTokens:      2048,
			Temperature:    0.7,
			TimeoutSeconds: 120,
			Burst:          1,
		},
		Speech: SpeechConfig{
			TTSEnabled:     true,
			STTEnabled:     true,
			BaseURL:        "http://localhost:8000",
			WhisperModel:   "base",
			TTSModel:       "tts-1",
			Voice:          "alloy",
			AudioDir:       "./static/audio",
			TimeoutSeconds: 60,
		},
		Memory: MemoryConfig{
			Type:         MemoryTypeMemory,
			RedisURL:     "redis://localhost:6379",
			TTLSeconds:   3600,
			MaxEntries:   50,
			HistoryLimit: 5,
		},
		Corpus: CorpusConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			SeedPaths:    []string{},
			UploadDir:    "./uploads",
			MaxFileSize:  10 * 1024 * 1024,
		},
		Workflow: WorkflowConfig{
			RetryLimit:           1,
			CritiqueAttemptLimit: 2,
			ImprovementThreshold: 6.0,
			SummaryTargetLength:  200,
			RetrieveLimit:        5,
			MaxHops:              32,
			StageTimeoutSeconds:  120,
			StageTimeouts:        map[string]int{},
		},
		Session: SessionConfig{
			TimeoutSeconds:         300,
			CleanupIntervalSeconds: 60,
		},
		Server: ServerConfig{
			GRPCAddr:    ":50051",
			MetricsAddr: ":9090",
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			File:       "logs/assistant.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
			Console:    true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "assistant",
			Environment: "development",
			SampleRatio: 1.0,
		},
		Events: EventsConfig{
			SubjectPrefix: "assistant.events",
		},
	}
}

// legacyEnv maps config keys to the flat environment names of earlier deployments.
var legacyEnv = map[string]string{
	"llm.host":                "OLLAMA_HOST",
	"llm.model":               "OLLAMA_MODEL",
	"llm.vision_model":        "OLLAMA_VISION_MODEL",
	"llm.max_tokens":          "MAX_TOKENS",
	"llm.temperature":         "TEMPERATURE",
	"speech.tts_enabled":      "TTS_ENABLED",
	"speech.stt_enabled":      "STT_ENABLED",
	"speech.whisper_model":    "WHISPER_MODEL",
	"speech.audio_dir":        "AUDIO_DIR",
	"memory.type":             "MEMORY_TYPE",
	"memory.redis_url":        "REDIS_URL",
	"corpus.upload_dir":       "UPLOAD_DIR",
	"corpus.max_file_size":    "MAX_FILE_SIZE",
	"session.timeout_seconds": "SESSION_TIMEOUT",
	"logging.level":           "LOG_LEVEL",
	"events.nats_url":         "NATS_URL",
	"tracing.endpoint":        "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// Load reads configuration. path may be empty; a missing .env file is ignored.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	for _, key := range v.AllKeys() {
		envs := []string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		if legacy, ok := legacyEnv[key]; ok {
			envs = append(envs, legacy)
		}
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Workflow.StageTimeouts == nil {
		cfg.Workflow.StageTimeouts = map[string]int{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("llm.host", d.LLM.Host)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.vision_model", d.LLM.VisionModel)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.timeout_seconds", d.LLM.TimeoutSeconds)
	v.SetDefault("llm.requests_per_second", d.LLM.RequestsPerSecond)
	v.SetDefault("llm.burst", d.LLM.Burst)

	v.SetDefault("speech.tts_enabled", d.Speech.TTSEnabled)
	v.SetDefault("speech.stt_enabled", d.Speech.STTEnabled)
	v.SetDefault("speech.base_url", d.Speech.BaseURL)
	v.SetDefault("speech.whisper_model", d.Speech.WhisperModel)
	v.SetDefault("speech.tts_model", d.Speech.TTSModel)
	v.SetDefault("speech.voice", d.Speech.Voice)
	v.SetDefault("speech.audio_dir", d.Speech.AudioDir)
	v.SetDefault("speech.timeout_seconds", d.Speech.TimeoutSeconds)

	v.SetDefault("memory.type", d.Memory.Type)
	v.SetDefault("memory.redis_url", d.Memory.RedisURL)
	v.SetDefault("memory.ttl_seconds", d.Memory.TTLSeconds)
	v.SetDefault("memory.max_entries", d.Memory.MaxEntries)
	v.SetDefault("memory.history_limit", d.Memory.HistoryLimit)

	v.SetDefault("corpus.chunk_size", d.Corpus.ChunkSize)
	v.SetDefault("corpus.chunk_overlap", d.Corpus.ChunkOverlap)
	v.SetDefault("corpus.seed_paths", d.Corpus.SeedPaths)
	v.SetDefault("corpus.upload_dir", d.Corpus.UploadDir)
	v.SetDefault("corpus.max_file_size", d.Corpus.MaxFileSize)

	v.SetDefault("workflow.retry_limit", d.Workflow.RetryLimit)
	v.SetDefault("workflow.critique_attempt_limit", d.Workflow.CritiqueAttemptLimit)
	v.SetDefault("workflow.improvement_threshold", d.Workflow.ImprovementThreshold)
	v.SetDefault("workflow.summary_target_length", d.Workflow.SummaryTargetLength)
	v.SetDefault("workflow.retrieve_limit", d.Workflow.RetrieveLimit)
	v.SetDefault("workflow.max_hops", d.Workflow.MaxHops)
	v.SetDefault("workflow.stage_timeout_seconds", d.Workflow.StageTimeoutSeconds)

	v.SetDefault("session.timeout_seconds", d.Session.TimeoutSeconds)
	v.SetDefault("session.cleanup_interval_seconds", d.Session.CleanupIntervalSeconds)

	v.SetDefault("server.grpc_addr", d.Server.GRPCAddr)
	v.SetDefault("server.metrics_addr", d.Server.MetricsAddr)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.console", d.Logging.Console)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)

	v.SetDefault("events.nats_url", d.Events.NATSURL)
	v.SetDefault("events.subject_prefix", d.Events.SubjectPrefix)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.LLM.Host != "", "llm.host is required")
	check(c.LLM.Model != "", "llm.model is required")
	check(c.LLM.MaxTokens > 0, "llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature must be in [0, 2], got %v", c.LLM.Temperature)
	check(c.LLM.RequestsPerSecond >= 0, "llm.requests_per_second must not be negative")

	switch c.Memory.Type {
	case MemoryTypeMemory, MemoryTypeNone:
	case MemoryTypeRedis:
		check(c.Memory.RedisURL != "", "memory.redis_url is required for redis memory")
	default:
		errs = append(errs, fmt.Errorf("memory.type must be one of memory, redis, none; got %q", c.Memory.Type))
	}

	check(c.Corpus.ChunkSize > 0, "corpus.chunk_size must be positive")
	check(c.Corpus.ChunkOverlap >= 0 && c.Corpus.ChunkOverlap < c.Corpus.ChunkSize,
		"corpus.chunk_overlap must be in [0, chunk_size), got %d", c.Corpus.ChunkOverlap)

	check(c.Workflow.RetryLimit >= 0, "workflow.retry_limit must not be negative")
	check(c.Workflow.CritiqueAttemptLimit >= 1, "workflow.critique_attempt_limit must be at least 1")
	check(c.Workflow.MaxHops > 0, "workflow.max_hops must be positive")
	check(c.Workflow.SummaryTargetLength > 0, "workflow.summary_target_length must be positive")
	check(c.Workflow.StageTimeoutSeconds >= 0, "workflow.stage_timeout_seconds must not be negative")

	check(c.Session.TimeoutSeconds > 0, "session.timeout_seconds must be positive")
	check(c.Session.CleanupIntervalSeconds > 0, "session.cleanup_interval_seconds must be positive")

	check(c.Tracing.SampleRatio >= 0 && c.Tracing.SampleRatio <= 1, "tracing.sample_ratio must be in [0, 1]")
	if c.Tracing.Enabled {
		check(c.Tracing.Endpoint != "", "tracing.endpoint is required when tracing is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SessionTimeout is the session retention window.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutSeconds) * time.Second
}

// CleanupInterval is how often expired sessions are evicted.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Session.CleanupIntervalSeconds) * time.Second
}

// StageTimeout is the default per-stage timeout.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Workflow.StageTimeoutSeconds) * time.Second
}

// StageTimeoutOverrides converts per-stage overrides to durations.
func (c *Config) StageTimeoutOverrides() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.Workflow.StageTimeouts))
	for stage, seconds := range c.Workflow.StageTimeouts {
		out[stage] = time.Duration(seconds) * time.Second
	}
	return out
}

// LoggerOptions converts the logging section.
func (c *Config) LoggerOptions() observability.LoggerOptions {
	return observability.LoggerOptions{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
		Console:    c.Logging.Console,
	}
}

// TracingOptions converts the tracing section.
func (c *Config) TracingOptions(version string) observability.TracingOptions {
	return observability.TracingOptions{
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    c.Tracing.Environment,
		Endpoint:       c.Tracing.Endpoint,
		SampleRatio:    c.Tracing.SampleRatio,
	}
}
