package agent

import "time"

// Default values for Config.
const (
	DefaultMaxToolRounds = 5
	DefaultTemperature   = 1.1
	DefaultNumPredict    = 512
	DefaultNumCtx        = 8192
	DefaultKeepAlive     = "1h"
)

// Config controls generation.
type Config struct {
	// Model overrides the backend's default model.
	Model string

	// MaxToolRounds bounds the rounds that may dispatch tools or nudge.
	// One more completion answers the last of them; the single retry
	// without tools is not counted.
	MaxToolRounds int

	Temperature float64
	NumPredict  int
	NumCtx      int
	KeepAlive   string

	// Location is the timezone of the grounding clock.
	Location *time.Location

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.NumPredict <= 0 {
		c.NumPredict = DefaultNumPredict
	}
	if c.NumCtx <= 0 {
		c.NumCtx = DefaultNumCtx
	}
	if c.KeepAlive == "" {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
