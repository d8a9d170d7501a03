// Package config loads WispWatch configuration through Viper and builds
// the Zap logger from it.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment variables.
// An empty configPath falls back to the default search locations;
// a missing config file is not an error (defaults apply).
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/wispwatch.db")

	v.SetDefault("vault.salt", "")

	v.SetDefault("gateway.host", "")
	v.SetDefault("gateway.port", 22)
	v.SetDefault("gateway.username", "")
	v.SetDefault("gateway.password", "")
	v.SetDefault("gateway.interface", "bridge-lan")

	v.SetDefault("monitor.max_concurrent", 10)
	v.SetDefault("monitor.stagger_step", "2s")
	v.SetDefault("monitor.reload_interval", "1m")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("wispwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/wispwatch")
	}

	// Environment variable support: WW_GATEWAY_HOST=10.0.0.1
	v.SetEnvPrefix("WW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}

// Gateway holds the reconciliation gateway's connection settings.
type Gateway struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Interface string `mapstructure:"interface"`
}

// Monitor holds the scheduler's global tuning knobs.
type Monitor struct {
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	StaggerStep    time.Duration `mapstructure:"stagger_step"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// GatewayFromViper extracts the gateway section.
func GatewayFromViper(v *viper.Viper) (Gateway, error) {
	var g Gateway
	if err := v.UnmarshalKey("gateway", &g); err != nil {
		return Gateway{}, fmt.Errorf("gateway config: %w", err)
	}
	return g, nil
}

// MonitorFromViper extracts the monitor section.
func MonitorFromViper(v *viper.Viper) (Monitor, error) {
	var m Monitor
	if err := v.UnmarshalKey("monitor", &m); err != nil {
		return Monitor{}, fmt.Errorf("monitor config: %w", err)
	}
	return m, nil
}
