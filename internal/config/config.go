package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"wick/internal/logger"
)

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if err := validateStrategyParams(v.Sub("strategy")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	return &cfg, nil
}

// Watch re-reads the file on change and hands each good new snapshot
// to onChange. Broken edits are logged and skipped, keeping the last
// good snapshot in effect.
func Watch(path string, onChange func(*Config)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("watching config file failed (%s): %w", path, err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		cfg, err := Load(path)
		if err != nil {
			logger.Errorf("Config: reload rejected path=%s err=%v", path, err)
			return
		}
		logger.Infof("Config: reloaded path=%s", path)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// Dump renders the effective configuration for the startup log.
// Secrets carry `json:"-"`-style omissions at the type level already.
func (c *Config) Dump() (string, error) {
	redacted := *c
	if redacted.Exchange.APISecret != "" {
		redacted.Exchange.APISecret = "***"
	}
	raw, err := yaml.Marshal(redacted)
	if err != nil {
		return "", fmt.Errorf("dumping config failed: %w", err)
	}
	return string(raw), nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.ReportPath == "" {
		c.App.ReportPath = "report.json"
	}
	if c.Robot.Interval == "" {
		c.Robot.Interval = "1m"
	}
	if c.Robot.FeedLagRetryDelay <= 0 {
		c.Robot.FeedLagRetryDelay = time.Second
	}
	if c.Trading.LotsPerBet <= 0 {
		c.Trading.LotsPerBet = 1
	}
	if c.Trading.MaxConcurrentBets <= 0 {
		c.Trading.MaxConcurrentBets = 1
	}
	if c.Trading.OrderStatePollInterval <= 0 {
		c.Trading.OrderStatePollInterval = time.Second
	}
	if c.Backtest.CacheDir == "" {
		c.Backtest.CacheDir = "cache"
	}
}
