package discord

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/flemzord/sandy/pkg/message"
)

// Defaults.
const (
	DefaultAPIURL     = "https://discord.com/api/v10"
	DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"
)

// Config holds the Discord channel configuration.
type Config struct {
	Token      string `yaml:"token"`
	APIURL     string `yaml:"api_url"`
	GatewayURL string `yaml:"gateway_url"`

	// AllowServers and AllowChannels restrict which rooms are observed.
	// Both empty observes everything the bot can see.
	AllowServers  []int64 `yaml:"allow_servers"`
	AllowChannels []int64 `yaml:"allow_channels"`

	MaxMessageLength int `yaml:"max_message_length"`

	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

func (c *Config) defaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.GatewayURL == "" {
		c.GatewayURL = DefaultGatewayURL
	}
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = message.MaxMessageLength
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 2 * time.Minute
	}
}

// Validate checks the configuration after defaults have been applied.
func (c Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("discord: token is required"))
	}
	if c.MaxMessageLength < 1 || c.MaxMessageLength > message.MaxMessageLength {
		errs = append(errs, fmt.Errorf("discord: max_message_length must be 1-%d, got %d", message.MaxMessageLength, c.MaxMessageLength))
	}
	if c.ReconnectMax < c.ReconnectMin {
		errs = append(errs, errors.New("discord: reconnect_max must not be below reconnect_min"))
	}
	for name, raw := range map[string]string{"api_url": c.APIURL, "gateway_url": c.GatewayURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("discord: invalid %s %q", name, raw))
		}
	}
	return errors.Join(errs...)
}
