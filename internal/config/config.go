// Package config loads application and tuning configuration with the
// precedence: command-line flags > environment variables > config file >
// built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/eventdeck/eventdeck/internal/cluster"
)

// Config holds the application configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// StatusPort is the port for the status HTTP endpoints (0 disables).
	StatusPort int `mapstructure:"status_port"`

	// Clusters lists every cluster to aggregate.
	Clusters []cluster.ClusterConfig `mapstructure:"clusters"`

	// Subscription is the initial stream subscription. Each field is a
	// list of accepted values; empty or the literal "all" means no
	// filter on that dimension.
	Subscription SubscriptionConfig `mapstructure:"subscription"`
}

// SubscriptionConfig mirrors the stream subscription frame.
type SubscriptionConfig struct {
	Clusters   []string `mapstructure:"clusters"`
	Namespaces []string `mapstructure:"namespaces"`
	Types      []string `mapstructure:"types"`
	Reasons    []string `mapstructure:"reasons"`
}

// configFileUsed records which config file Load resolved, for the
// startup banner.
var configFileUsed string

// BindFlags binds override flags to viper so they take precedence over
// environment variables and the config file.
func BindFlags(flags *pflag.FlagSet) {
	if f := flags.Lookup("log-level"); f != nil {
		viper.BindPFlag("log_level", f)
	}
	if f := flags.Lookup("status-port"); f != nil {
		viper.BindPFlag("status_port", f)
	}
}

// Load loads configuration from the standard search path.
func Load() (*Config, error) {
	return LoadWithConfigFile("")
}

// LoadWithConfigFile loads configuration, optionally from an explicit
// file path. With an empty path it searches for config.yaml in the
// current directory, ./configs, and /etc/eventdeck. A missing config
// file is not an error; defaults and environment variables still apply.
func LoadWithConfigFile(configFile string) (*Config, error) {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("status_port", 8080)

	viper.SetEnvPrefix("EVENTDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/eventdeck")
	}

	if err := viper.ReadInConfig(); err != nil {
		// A missing file falls through to defaults; anything else (e.g.
		// a parse error) is fatal.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		_, pathErr := err.(*os.PathError)
		if !notFound && !pathErr {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	configFileUsed = viper.ConfigFileUsed()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfigFile returns the config file Load resolved, if any.
func GetConfigFile() string {
	return configFileUsed
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("status_port must be in [0, 65535], got %d", c.StatusPort)
	}

	if len(c.Clusters) == 0 {
		return fmt.Errorf("at least one cluster is required")
	}
	for i := range c.Clusters {
		if err := c.Clusters[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}
