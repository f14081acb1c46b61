package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/ergsync/go/internal/relay"
	"github.com/mcdev12/ergsync/go/internal/scoring"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	storeDriverPostgres = "postgres"
	storeDriverMemory   = "memory"

	defaultRelayURL = "ws://leds-ws-server.under-code.fr:8081"
)

// Config is the server configuration. Values come from an optional YAML file
// and are then overridden by environment variables.
type Config struct {
	Port        string `yaml:"port"`
	StoreDriver string `yaml:"store_driver"`
	LogLevel    string `yaml:"log_level"`

	Scoring struct {
		Strategy string `yaml:"strategy"`
	} `yaml:"scoring"`

	Relay struct {
		URL            string        `yaml:"url"`
		Game           string        `yaml:"game"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		// WriteTimeout bounds a relay write, which runs on the hub loop.
		WriteTimeout   time.Duration `yaml:"write_timeout"`
	} `yaml:"relay"`

	ErgRace struct {
		URL            string        `yaml:"url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	} `yaml:"ergrace"`

	NATS struct {
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Port:        "8081",
		StoreDriver: storeDriverPostgres,
		LogLevel:    "info",
	}
	cfg.Scoring.Strategy = scoring.StrategyElapsedTime
	cfg.Relay.URL = defaultRelayURL
	cfg.Relay.Game = relay.DefaultGame
	cfg.Relay.ReconnectDelay = 5 * time.Second
	cfg.Relay.WriteTimeout = time.Second
	cfg.ErgRace.ReconnectDelay = 5 * time.Second
	return cfg
}

// loadConfig builds the configuration from defaults, the YAML file at path
// (skipped when path is empty) and the environment, in that order.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Scoring.Strategy = getEnv("SCORING_STRATEGY", c.Scoring.Strategy)
	c.Relay.URL = getEnv("RELAY_URL", c.Relay.URL)
	c.Relay.Game = getEnv("RELAY_GAME", c.Relay.Game)
	c.Relay.ReconnectDelay = getEnvAsDuration("RELAY_RECONNECT_DELAY", c.Relay.ReconnectDelay)
	c.Relay.WriteTimeout = getEnvAsDuration("RELAY_WRITE_TIMEOUT", c.Relay.WriteTimeout)
	c.ErgRace.URL = getEnv("ERGRACE_URL", c.ErgRace.URL)
	c.ErgRace.ReconnectDelay = getEnvAsDuration("ERGRACE_RECONNECT_DELAY", c.ErgRace.ReconnectDelay)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case storeDriverPostgres, storeDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if _, err := scoring.StrategyByName(c.Scoring.Strategy); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q: %w", c.Port, err)
	}
	return nil
}

func (c *Config) level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
