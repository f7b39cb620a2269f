package bde

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds tunables for a Volume that are operational, not part of the
// on-disk format itself (spec §9 ambient configuration).
type Config struct {
	// CacheSize is the sector LRU's capacity; 0 disables caching entirely
	// (spec §4.G "default 64 entries").
	CacheSize int `mapstructure:"cache_size"`
	// StretchAbortPollInterval is how many stretch-key rounds elapse
	// between abort-flag checks (spec §5 "every 4,096 iterations").
	StretchAbortPollInterval int `mapstructure:"stretch_abort_poll_interval"`
	// LogLevel is advisory only; the injected interfaces.Logger decides
	// what it does with Warnf calls.
	LogLevel string `mapstructure:"log_level"`
}

// LoadConfig loads a Config using Viper, binding from an optional
// bde-config.yaml and BDE_-prefixed environment variables, the same
// pattern the teacher's LoadDMGConfig uses for its own device config.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("bde-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.bde")
	v.AddConfigPath("/etc/bde")

	v.SetDefault("cache_size", 64)
	v.SetDefault("stretch_abort_poll_interval", 4096)
	v.SetDefault("log_level", "warn")

	v.SetEnvPrefix("BDE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("bde: reading config file: %w", err)
		}
		// Config file not found is OK; defaults and env vars still apply.
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("bde: unmarshaling config: %w", err)
	}
	return &config, nil
}
