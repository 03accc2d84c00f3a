package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// Config holds all orchestrator tunables.
type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
	Broker struct {
		QueueSize   int `mapstructure:"queue_size"`
		HistorySize int `mapstructure:"history_size"`
	} `mapstructure:"broker"`
	Workflow struct {
		DefaultTimeoutMinutes int `mapstructure:"default_timeout_minutes"`
	} `mapstructure:"workflow"`
	Redis struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"redis"`
	Database struct {
		Enabled bool   `mapstructure:"enabled"`
		DSN     string `mapstructure:"dsn"`
	} `mapstructure:"database"`
}

// Path returns the active config file path: CONFIG_PATH or the default.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/orchestrator.yaml"
}

// Load reads the config file (missing file falls back to defaults) and
// applies environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(Path())

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; anything else is a real error.
		if _, statErr := os.Stat(Path()); statErr == nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("logging.level", "info")
	v.SetDefault("broker.queue_size", 256)
	v.SetDefault("broker.history_size", 1000)
	v.SetDefault("workflow.default_timeout_minutes", 30)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.dsn", "")
}

func applyEnvOverrides(cfg *Config) {
	if p := envInt("SERVER_PORT"); p > 0 {
		cfg.Server.Port = p
	}
	if p := envInt("METRICS_PORT"); p > 0 {
		cfg.Metrics.Port = p
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
		cfg.Database.Enabled = true
	}
}

func envInt(key string) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}
