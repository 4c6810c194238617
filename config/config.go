package config

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: server.port -> CAISSE_SERVER_PORT.
const EnvPrefix = "CAISSE"

// Config holds all process configuration
type Config struct {
	// HTTP server
	Port int

	// Database configuration; ":memory:" keeps everything in process
	DatabasePath string

	// NATS event publishing, disabled when URL is empty
	NATSURL           string
	NATSSubjectPrefix string

	// Lateness sweep
	SweepEnabled     bool
	SweepInterval    time.Duration
	SweepParallelism int

	// Rate book JSON file; empty uses the built-in default book
	RatesFile string

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "caisse.db")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "caisse")
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", "1h")
	v.SetDefault("sweep.parallelism", 4)
	v.SetDefault("rates.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads defaults, then the optional file at path, then CAISSE_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:              v.GetInt("server.port"),
		DatabasePath:      v.GetString("database.path"),
		NATSURL:           v.GetString("nats.url"),
		NATSSubjectPrefix: v.GetString("nats.subject_prefix"),
		SweepEnabled:      v.GetBool("sweep.enabled"),
		SweepInterval:     v.GetDuration("sweep.interval"),
		SweepParallelism:  v.GetInt("sweep.parallelism"),
		RatesFile:         v.GetString("rates.file"),
		LogLevel:          v.GetString("log.level"),
		LogFormat:         v.GetString("log.format"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Port)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SweepEnabled && c.SweepInterval <= 0 {
		return fmt.Errorf("sweep.interval must be positive when the sweep is enabled")
	}
	if c.SweepParallelism < 1 {
		c.SweepParallelism = 1
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ConfigureLogging applies level and format to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
