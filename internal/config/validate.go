package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/sandy/internal/core"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, checks that
// all referenced module IDs exist in the registry, and range-checks the
// agent sections. Every problem is reported, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateBot(&cfg.Bot)...)
	errs = append(errs, validateMemory(cfg)...)

	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", cfg.Log.Format))
	}

	if r := cfg.Telemetry.Tracing.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio must be within 0..1, got %v", r))
	}

	return errors.Join(errs...)
}

func validateBot(b *BotConfig) []error {
	var errs []error
	if strings.TrimSpace(b.Name) == "" {
		errs = append(errs, errors.New("config: bot.name is required"))
	}
	if b.Timezone != "" {
		if _, err := time.LoadLocation(b.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("config: bot.timezone: %w", err))
		}
	}
	if b.MaxToolRounds < 1 {
		errs = append(errs, fmt.Errorf("config: bot.max_tool_rounds must be at least 1, got %d", b.MaxToolRounds))
	}
	switch b.Classifier {
	case "", "phrase", "model":
	default:
		errs = append(errs, fmt.Errorf("config: bot.classifier must be phrase or model, got %q", b.Classifier))
	}
	if b.Workers < 1 {
		errs = append(errs, fmt.Errorf("config: bot.workers must be at least 1, got %d", b.Workers))
	}
	return errs
}

func validateMemory(cfg *Config) []error {
	var errs []error
	if cfg.History.Capacity < 1 {
		errs = append(errs, fmt.Errorf("config: history.capacity must be at least 1, got %d", cfg.History.Capacity))
	}
	if l := cfg.History.SeedLimit; l < 1 || l > 1000 {
		errs = append(errs, fmt.Errorf("config: history.seed_limit must be within 1..1000, got %d", l))
	}
	if cfg.Memory.SummarizeThreshold < 0 {
		errs = append(errs, errors.New("config: memory.summarize_threshold must not be negative"))
	}
	if d := cfg.Vector.MaxDistance; d < 0 || d > 2 {
		errs = append(errs, fmt.Errorf("config: vector.max_distance must be within 0..2, got %v", d))
	}
	if cfg.Recall.URL == "" {
		errs = append(errs, errors.New("config: recall.url is required"))
	}
	return errs
}
