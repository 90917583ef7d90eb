package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrConfParamMissing = errors.New("configuration parameter missing")

const (
	defaultScriptURL  = "https://checkout.razorpay.com/v1/checkout.js"
	defaultTimeoutSec = 10
	defaultPageLimit  = 50
)

type Config struct {
	ServiceName       string `toml:"serviceName"`
	APIURL            string `toml:"apiURL"`
	APIToken          string `toml:"apiToken"`
	LogLevel          string `toml:"logLevel"`
	RequestTimeoutSec int    `toml:"requestTimeoutSec"`
	PageLimit         int    `toml:"pageLimit"`

	CommunityID string  `toml:"communityID"`
	Profile     Profile `toml:"profile"`
	Gateway     Gateway `toml:"gateway"`
	Kafka       Kafka   `toml:"kafka"`
}

type Profile struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Email   string `toml:"email"`
	Contact string `toml:"contact"`
}

type Gateway struct {
	Key              string `toml:"key"`
	Name             string `toml:"name"`
	ThemeColor       string `toml:"themeColor"`
	ScriptURL        string `toml:"scriptURL"`
	NavigateDelaySec int    `toml:"navigateDelaySec"`
}

type Kafka struct {
	Addr  string `toml:"addr"`
	Topic string `toml:"topic"`
	Batch int    `toml:"batch"`
}

// Load reads the TOML file at path (a missing file is not an error), applies
// environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"KLUB_API_URL":      &c.APIURL,
		"KLUB_API_TOKEN":    &c.APIToken,
		"KLUB_COMMUNITY_ID": &c.CommunityID,
		"KLUB_GATEWAY_KEY":  &c.Gateway.Key,
		"KLUB_LOG_LEVEL":    &c.LogLevel,
		"KLUB_KAFKA_ADDR":   &c.Kafka.Addr,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "klub"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RequestTimeoutSec <= 0 {
		c.RequestTimeoutSec = defaultTimeoutSec
	}
	if c.PageLimit <= 0 {
		c.PageLimit = defaultPageLimit
	}
	if c.Gateway.ScriptURL == "" {
		c.Gateway.ScriptURL = defaultScriptURL
	}
	if c.Gateway.Name == "" {
		c.Gateway.Name = "Klub"
	}
	if c.Gateway.ThemeColor == "" {
		c.Gateway.ThemeColor = "#0A0A0A"
	}
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c *Config) NavigateDelay() time.Duration {
	return time.Duration(c.Gateway.NavigateDelaySec) * time.Second
}

// Validate reports the first required parameter that is missing.
func (c *Config) Validate() error {
	switch {
	case c.APIURL == "":
		return fmt.Errorf("%w: apiURL", ErrConfParamMissing)
	case c.APIToken == "":
		return fmt.Errorf("%w: apiToken", ErrConfParamMissing)
	case c.Profile.ID == "":
		return fmt.Errorf("%w: profile.id", ErrConfParamMissing)
	}
	return nil
}

func (c *Config) IsValid() bool {
	return c.Validate() == nil
}

// KafkaEnabled reports whether events should be shipped to Kafka.
func (c *Config) KafkaEnabled() bool {
	return c.Kafka.Addr != "" && c.Kafka.Topic != ""
}

func (c Config) String() string {
	c.APIToken = mask(c.APIToken)
	c.Gateway.Key = mask(c.Gateway.Key)

	return fmt.Sprintf("%#v", c)
}

func mask(s string) string {
	return strings.Repeat("*", len([]rune(s)))
}
