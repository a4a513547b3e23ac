// Package config loads the process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL  string        `mapstructure:"database_url"`
	Addr         string        `mapstructure:"addr"`
	StaticDir    string        `mapstructure:"static_dir"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	Staleness    time.Duration `mapstructure:"staleness"`
}

// Load reads PUBHOUSE_* environment variables over defaults. DATABASE_URL
// and FRONTEND are also honored unprefixed for compatibility with existing
// deployments.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PUBHOUSE")
	v.AutomaticEnv()

	_ = v.BindEnv("database_url", "PUBHOUSE_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("static_dir", "PUBHOUSE_STATIC_DIR", "FRONTEND")
	_ = v.BindEnv("addr")
	_ = v.BindEnv("reap_interval")
	_ = v.BindEnv("staleness")

	v.SetDefault("addr", "0.0.0.0:5000")
	v.SetDefault("static_dir", "./web")
	v.SetDefault("reap_interval", "60s")
	v.SetDefault("staleness", "5m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}
	return &cfg, nil
}
