// Package config loads process configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/stockpulse/trading-backend/internal/brokerage"
	"github.com/stockpulse/trading-backend/pkg/types"
)

// Config is the full process configuration.
type Config struct {
	LogLevel     string           `mapstructure:"logLevel"`
	TickInterval time.Duration    `mapstructure:"tickInterval"`
	Server       ServerSection    `mapstructure:"server"`
	Brokerage    brokerage.Config `mapstructure:"brokerage"`
	Securities   []string         `mapstructure:"securities"`
}

// ServerSection mirrors types.ServerConfig in file form.
type ServerSection struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	WebSocketPath string        `mapstructure:"websocketPath"`
	ReadTimeout   time.Duration `mapstructure:"readTimeout"`
	WriteTimeout  time.Duration `mapstructure:"writeTimeout"`
	EnableMetrics bool          `mapstructure:"enableMetrics"`
}

// Load reads configuration from an optional YAML file and TRADING_* env vars,
// falling back to defaults for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults := types.DefaultServerConfig()
	v.SetDefault("logLevel", "info")
	v.SetDefault("tickInterval", time.Hour)
	v.SetDefault("server.host", defaults.Host)
	v.SetDefault("server.port", defaults.Port)
	v.SetDefault("server.websocketPath", defaults.WebSocketPath)
	v.SetDefault("server.readTimeout", defaults.ReadTimeout)
	v.SetDefault("server.writeTimeout", defaults.WriteTimeout)
	v.SetDefault("server.enableMetrics", defaults.EnableMetrics)

	broker := brokerage.DefaultConfig()
	v.SetDefault("brokerage.host", broker.Host)
	v.SetDefault("brokerage.port", broker.Port)
	v.SetDefault("brokerage.apiPassword", "")

	v.SetEnvPrefix("TRADING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// ServerConfig converts the file section to the runtime type.
func (c *Config) ServerConfig() *types.ServerConfig {
	return &types.ServerConfig{
		Host:          c.Server.Host,
		Port:          c.Server.Port,
		WebSocketPath: c.Server.WebSocketPath,
		ReadTimeout:   c.Server.ReadTimeout,
		WriteTimeout:  c.Server.WriteTimeout,
		EnableMetrics: c.Server.EnableMetrics,
	}
}
