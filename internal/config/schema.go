// Package config handles YAML configuration loading, environment variable
// expansion, defaults, and structural validation for sandy.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/sandy/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Bot       BotConfig       `yaml:"bot"`
	Models    ModelsConfig    `yaml:"models"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	History   HistoryConfig   `yaml:"history"`
	Memory    MemoryConfig    `yaml:"memory"`
	Recall    RecallConfig    `yaml:"recall"`
	Vector    VectorConfig    `yaml:"vector"`
	Registry  RegistryConfig  `yaml:"registry"`
	RAG       RAGConfig       `yaml:"rag"`
	Cron      CronConfig      `yaml:"cron"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "channel.discord").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// BotConfig describes the agent's identity and generation behaviour.
type BotConfig struct {
	Name string `yaml:"name"`

	// Persona overrides the built-in system prompt when set.
	Persona  string `yaml:"persona,omitempty"`
	Timezone string `yaml:"timezone"`

	MaxToolRounds int `yaml:"max_tool_rounds"`

	// Classifier selects deferral detection: "phrase" or "model".
	Classifier string `yaml:"classifier"`

	Temperature float64 `yaml:"temperature"`
	NumPredict  int     `yaml:"num_predict"`
	NumCtx      int     `yaml:"num_ctx"`
	KeepAlive   string  `yaml:"keep_alive"`

	// Workers is the number of turns handled concurrently.
	Workers   int `yaml:"workers"`
	InboxSize int `yaml:"inbox_size"`
}

// ModelsConfig names the backend model used by each role.
type ModelsConfig struct {
	Brain      string `yaml:"brain"`
	Gate       string `yaml:"gate"`
	Tagger     string `yaml:"tagger"`
	Summarizer string `yaml:"summarizer"`
	Embed      string `yaml:"embed"`
}

// SchedulerConfig tunes the inference gate.
type SchedulerConfig struct {
	BackgroundSkipWhenBusy bool `yaml:"background_skip_when_busy"`
}

// HistoryConfig sizes the short-term cache and its startup seed.
type HistoryConfig struct {
	Capacity  int  `yaml:"capacity"`
	Seed      bool `yaml:"seed"`
	SeedHours int  `yaml:"seed_hours"`
	SeedLimit int  `yaml:"seed_limit"`
}

// MemoryConfig controls the write-back pipeline.
type MemoryConfig struct {
	SummarizeThreshold int  `yaml:"summarize_threshold"`
	DisableTagger      bool `yaml:"disable_tagger,omitempty"`
	DisableSummarizer  bool `yaml:"disable_summarizer,omitempty"`
	DisableVector      bool `yaml:"disable_vector,omitempty"`
}

// RecallConfig points the agent at the archive API.
type RecallConfig struct {
	URL           string        `yaml:"url"`
	CreateTimeout time.Duration `yaml:"create_timeout"`
	ListTimeout   time.Duration `yaml:"list_timeout"`
	// Token is sent as a bearer token when the archive API requires auth.
	Token string `yaml:"token"`
}

// VectorConfig configures the embedding index.
type VectorConfig struct {
	Path        string  `yaml:"path"`
	MaxDistance float64 `yaml:"max_distance"`
	Results     int     `yaml:"results"`
}

// RegistryConfig configures the name lookup cache.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// RAGConfig toggles memory injection into generation prompts.
type RAGConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// On reports whether RAG is enabled. Unset means enabled.
func (c RAGConfig) On() bool {
	return c.Enabled == nil || *c.Enabled
}

// CronConfig holds the periodic job schedules. Empty disables a job.
type CronConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BackendHealth  string `yaml:"backend_health"`
	VectorBackfill string `yaml:"vector_backfill"`
	RegistryVacuum string `yaml:"registry_vacuum"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// MetricsBind starts a standalone /metrics listener when set.
	MetricsBind string `yaml:"metrics_bind,omitempty"`

	Tracing telemetry.TracingConfig `yaml:",inline"`
}

// LogConfig selects log level and format ("text" or "json").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
