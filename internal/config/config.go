// Package config loads CLI configuration from file and environment and
// bootstraps the global logger. Library packages take explicit options and
// never read configuration themselves.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full CLI configuration.
type Config struct {
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`
	Log   LogConfig   `yaml:"log" mapstructure:"log"`
}

// CacheConfig configures the HTTP cache and its polite-fetch behavior.
// UserAgent and From ship empty: SEC EDGAR requires filers of requests to
// identify themselves, and a default would misidentify them.
type CacheConfig struct {
	Dir           string  `yaml:"dir" mapstructure:"dir"`
	DelayMS       int     `yaml:"delay_ms" mapstructure:"delay_ms"`
	Retries       int     `yaml:"retries" mapstructure:"retries"`
	BackoffFactor float64 `yaml:"backoff_factor" mapstructure:"backoff_factor"`
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
	From          string  `yaml:"from" mapstructure:"from"`
}

// Headers returns the configured request headers.
func (c CacheConfig) Headers() map[string]string {
	headers := map[string]string{}
	if c.UserAgent != "" {
		headers["User-Agent"] = c.UserAgent
	}
	if c.From != "" {
		headers["From"] = c.From
	}
	return headers
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml and XBRL_-prefixed environment
// variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("XBRL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("cache.dir", "./xbrl-cache")
	v.SetDefault("cache.delay_ms", 0)
	v.SetDefault("cache.retries", 5)
	v.SetDefault("cache.backoff_factor", 0.8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
