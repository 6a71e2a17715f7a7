package config

import "time"

// Default values applied by WithDefaults.
const (
	DefaultBotName            = "Sandy"
	DefaultTimezone           = "America/Los_Angeles"
	DefaultMaxToolRounds      = 5
	DefaultBrainModel         = "qwen2.5:14b"
	DefaultSmallModel         = "hf.co/bartowski/Llama-3.2-3B-Instruct-GGUF:Q8_0"
	DefaultEmbedModel         = "mxbai-embed-large"
	DefaultRecallURL          = "http://localhost:8000"
	DefaultSummarizeThreshold = 144
	DefaultMaxDistance        = 0.6
	DefaultVectorResults      = 5
)

// WithDefaults fills zero values in place and returns cfg.
func (cfg *Config) WithDefaults() *Config {
	b := &cfg.Bot
	if b.Name == "" {
		b.Name = DefaultBotName
	}
	if b.Timezone == "" {
		b.Timezone = DefaultTimezone
	}
	if b.MaxToolRounds == 0 {
		b.MaxToolRounds = DefaultMaxToolRounds
	}
	if b.Classifier == "" {
		b.Classifier = "phrase"
	}
	if b.Temperature == 0 {
		b.Temperature = 1.1
	}
	if b.NumPredict == 0 {
		b.NumPredict = 512
	}
	if b.NumCtx == 0 {
		b.NumCtx = 8192
	}
	if b.KeepAlive == "" {
		b.KeepAlive = "1h"
	}
	if b.Workers == 0 {
		b.Workers = 4
	}
	if b.InboxSize == 0 {
		b.InboxSize = 256
	}

	m := &cfg.Models
	if m.Brain == "" {
		m.Brain = DefaultBrainModel
	}
	if m.Gate == "" {
		m.Gate = m.Brain
	}
	if m.Tagger == "" {
		m.Tagger = DefaultSmallModel
	}
	if m.Summarizer == "" {
		m.Summarizer = DefaultSmallModel
	}
	if m.Embed == "" {
		m.Embed = DefaultEmbedModel
	}

	if cfg.History.Capacity == 0 {
		cfg.History.Capacity = 10
	}
	if cfg.History.SeedHours == 0 {
		cfg.History.SeedHours = 24
	}
	if cfg.History.SeedLimit == 0 {
		cfg.History.SeedLimit = 1000
	}

	if cfg.Memory.SummarizeThreshold == 0 {
		cfg.Memory.SummarizeThreshold = DefaultSummarizeThreshold
	}

	if cfg.Recall.URL == "" {
		cfg.Recall.URL = DefaultRecallURL
	}
	if cfg.Recall.CreateTimeout == 0 {
		cfg.Recall.CreateTimeout = 10 * time.Second
	}
	if cfg.Recall.ListTimeout == 0 {
		cfg.Recall.ListTimeout = 15 * time.Second
	}

	if cfg.Vector.Path == "" {
		cfg.Vector.Path = "vectors.db"
	}
	if cfg.Vector.MaxDistance == 0 {
		cfg.Vector.MaxDistance = DefaultMaxDistance
	}
	if cfg.Vector.Results == 0 {
		cfg.Vector.Results = DefaultVectorResults
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "registry.db"
	}

	if cfg.Cron.BackendHealth == "" {
		cfg.Cron.BackendHealth = "@every 5m"
	}
	if cfg.Cron.VectorBackfill == "" {
		cfg.Cron.VectorBackfill = "0 4 * * *"
	}
	if cfg.Cron.RegistryVacuum == "" {
		cfg.Cron.RegistryVacuum = "@weekly"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return cfg
}
