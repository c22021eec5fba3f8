package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"streamdash/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DataSource struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Mock    bool   `yaml:"mock"`
	} `yaml:"data_source"`
	Watch struct {
		Symbols                []string `yaml:"symbols"`
		RefreshIntervalSeconds int      `yaml:"refresh_interval_seconds"`
		HistoricalPeriod       string   `yaml:"historical_period"`
		HistoricalInterval     string   `yaml:"historical_interval"`
		AutoRefresh            bool     `yaml:"auto_refresh"`
		BufferSize             int      `yaml:"buffer_size"`
	} `yaml:"watch"`
	Schedule struct {
		PollCron  string `yaml:"poll_cron"`
		PruneCron string `yaml:"prune_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath    string `yaml:"sqlite_path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"database"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides, then defaults and range clamping.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// Booleans defaulting to true must be set before unmarshal so an absent
	// key keeps the default.
	cfg.Watch.AutoRefresh = true

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("DASH_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PROVIDER_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("MOCK_DATA"); v != "" {
		cfg.DataSource.Mock = v == "true"
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		cfg.Watch.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Watch.RefreshIntervalSeconds = n
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	cfg.Watch.Symbols = model.NormalizeSymbols(cfg.Watch.Symbols)
	if len(cfg.Watch.Symbols) == 0 {
		cfg.Watch.Symbols = []string{"AAPL", "SPY", "MSFT"}
	}
	if cfg.Watch.RefreshIntervalSeconds == 0 {
		cfg.Watch.RefreshIntervalSeconds = 5
	}
	if cfg.Watch.HistoricalPeriod == "" {
		cfg.Watch.HistoricalPeriod = "1d"
	}
	if cfg.Watch.HistoricalInterval == "" {
		cfg.Watch.HistoricalInterval = "5m"
	}
	if cfg.Watch.BufferSize == 0 {
		cfg.Watch.BufferSize = 120
	}
	if cfg.Schedule.PollCron == "" {
		cfg.Schedule.PollCron = "@every 1s"
	}
	if cfg.Schedule.PruneCron == "" {
		cfg.Schedule.PruneCron = "0 0 3 * * *"
	}
	if cfg.Database.RetentionDays == 0 {
		cfg.Database.RetentionDays = 7
	}

	// Range clamping
	if cfg.Watch.RefreshIntervalSeconds < 1 {
		cfg.Watch.RefreshIntervalSeconds = 1
	}
	if cfg.Watch.RefreshIntervalSeconds > 60 {
		cfg.Watch.RefreshIntervalSeconds = 60
	}
	if cfg.Watch.BufferSize < 50 {
		cfg.Watch.BufferSize = 50
	}
	if cfg.Watch.BufferSize > 200 {
		cfg.Watch.BufferSize = 200
	}

	return cfg, nil
}

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if len(c.Watch.Symbols) == 0 {
		return fmt.Errorf("watch.symbols must not be empty")
	}
	if c.Watch.RefreshIntervalSeconds < 1 || c.Watch.RefreshIntervalSeconds > 60 {
		return fmt.Errorf("watch.refresh_interval_seconds must be in [1,60]")
	}
	if c.Watch.BufferSize < 50 || c.Watch.BufferSize > 200 {
		return fmt.Errorf("watch.buffer_size must be in [50,200]")
	}
	if c.Database.RetentionDays < 1 {
		return fmt.Errorf("database.retention_days must be positive")
	}
	return nil
}
