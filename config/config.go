package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type Config struct {
	Endpoint struct {
		URL         string            `mapstructure:"url"`
		Origin      string            `mapstructure:"origin"`
		Headers     map[string]string `mapstructure:"headers"`
		Subprotocol string            `mapstructure:"subprotocol"`
		TLS         TLSConfig         `mapstructure:"tls"`
	} `mapstructure:"endpoint"`
	Timeouts struct {
		Connect    int `mapstructure:"connect"`    // seconds
		Receive    int `mapstructure:"receive"`    // seconds, per transport receive
		Write      int `mapstructure:"write"`      // seconds
		Disconnect int `mapstructure:"disconnect"` // seconds
	} `mapstructure:"timeouts"`
}

func Load(cfgFile, env string) (*Config, error) {
	v := viper.New()

	// Default values
	v.SetDefault("endpoint.url", "ws://localhost:8000/graphql/")
	v.SetDefault("endpoint.subprotocol", "graphql-ws")
	v.SetDefault("endpoint.tls.enabled", false)
	v.SetDefault("timeouts.connect", 10)
	v.SetDefault("timeouts.receive", 60)
	v.SetDefault("timeouts.write", 10)
	v.SetDefault("timeouts.disconnect", 10)

	// If config file passed via CLI flag
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Read main config
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	// Merge environment-specific config (config.prod.yaml, etc.)
	if env != "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		_ = v.MergeInConfig() // optional, ignore error if not found
	}

	// Environment overrides
	v.SetEnvPrefix("GQLWSC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &cfg, nil
}
