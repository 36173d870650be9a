package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Data   DataConfig   `mapstructure:"data" yaml:"data"`
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`
	Sink   SinkConfig   `mapstructure:"sink" yaml:"sink"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`

	Port string `mapstructure:"port" yaml:"port"`
}

type DataConfig struct {
	Dir          string `mapstructure:"dir" yaml:"dir"`
	ActivePath   string `mapstructure:"active_path" yaml:"active_path"`
	HistoryPath  string `mapstructure:"history_path" yaml:"history_path"`
	SpoolDir     string `mapstructure:"spool_dir" yaml:"spool_dir"`
	CompletedDir string `mapstructure:"completed_dir" yaml:"completed_dir"`
}

type EngineConfig struct {
	UserAgent        string        `mapstructure:"user_agent" yaml:"user_agent"`
	RateLimit        int64         `mapstructure:"rate_limit" yaml:"rate_limit"`
	Retries          int           `mapstructure:"retries" yaml:"retries"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
}

type SinkConfig struct {
	// Bucket is a gocloud.dev bucket URL such as s3://payloads or
	// file:///var/lib/haul/completed. Empty means the local completed
	// directory.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

// Load reads the configuration from path, environment variables prefixed
// with HAUL_ overriding file values. An explicitly named file must exist;
// the implicit default may be absent, leaving the defaults in charge.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}

	haveFile := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		haveFile = false
	}

	v := viper.New()

	// Set Defaults
	v.SetDefault("port", "8080")
	v.SetDefault("data.dir", "./data")
	v.SetDefault("engine.user_agent", "haul/1.0")
	v.SetDefault("engine.retries", 3)
	v.SetDefault("engine.progress_interval", "200ms")
	v.SetDefault("log.path", "haul.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)

	if haveFile {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Support Environment Variables
	v.SetEnvPrefix("HAUL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Data.Dir == "" {
		c.Data.Dir = "./data"
	}
	if c.Data.ActivePath == "" {
		c.Data.ActivePath = filepath.Join(c.Data.Dir, "active.json")
	}
	if c.Data.HistoryPath == "" {
		c.Data.HistoryPath = filepath.Join(c.Data.Dir, "history.db")
	}
	if c.Data.SpoolDir == "" {
		c.Data.SpoolDir = filepath.Join(c.Data.Dir, "spool")
	}
	if c.Data.CompletedDir == "" {
		c.Data.CompletedDir = filepath.Join(c.Data.Dir, "completed")
	}

	if c.Engine.RateLimit < 0 {
		return fmt.Errorf("engine.rate_limit must not be negative, got %d", c.Engine.RateLimit)
	}
	if c.Engine.ProgressInterval < 0 {
		return fmt.Errorf("engine.progress_interval must not be negative, got %s", c.Engine.ProgressInterval)
	}

	if c.Port == "" {
		c.Port = "8080"
	}

	return nil
}
