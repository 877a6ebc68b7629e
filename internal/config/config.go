// Package config centralizes process configuration. Values come from viper,
// which layers explicit flags over MASKFLOW_* environment variables over an
// optional YAML file over the defaults registered here.
//
// Typical usage from a command:
//
//	v := viper.New()
//	_ = v.BindPFlags(cmd.Flags())
//	cfg, err := config.Load(v, configFile)
//
// Tests pass a fresh viper.New() so nothing leaks between cases.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MASKFLOW"

// Config holds all process configuration. It is a plain value, safe to copy
// and share across goroutines once loaded.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Secrets SecretsConfig `mapstructure:"secrets"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StoreConfig selects where connections, workflows and executions live.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory | postgres
	DSN    string `mapstructure:"dsn"`
	// Bundle is a YAML file of connections and workflows loaded into the
	// memory store at startup.
	Bundle string `mapstructure:"bundle"`
}

// SecretsConfig holds the base64 secretbox key used for connection passwords.
type SecretsConfig struct {
	Key string `mapstructure:"key"`
}

// EngineConfig tunes execution.
type EngineConfig struct {
	PageSize        int           `mapstructure:"page_size"`
	ProgressTimeout time.Duration `mapstructure:"progress_timeout"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	OpenTimeout     time.Duration `mapstructure:"open_timeout"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	MaskCacheSize   int           `mapstructure:"mask_cache_size"`
	AuditDir        string        `mapstructure:"audit_dir"`
	// Admins may run workflows owned by other users.
	Admins []string `mapstructure:"admins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig selects and configures the metrics backend.
type MetricsConfig struct {
	Backend        string `mapstructure:"backend"` // none | prompush | datadog
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
	DatadogAddr    string `mapstructure:"datadog_addr"`
	Namespace      string `mapstructure:"namespace"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.bundle", "")
	v.SetDefault("secrets.key", "")
	v.SetDefault("engine.page_size", 1000)
	v.SetDefault("engine.progress_timeout", 10*time.Second)
	v.SetDefault("engine.probe_timeout", 10*time.Second)
	v.SetDefault("engine.open_timeout", 60*time.Second)
	v.SetDefault("engine.max_concurrent", 4)
	v.SetDefault("engine.mask_cache_size", 100000)
	v.SetDefault("engine.audit_dir", "")
	v.SetDefault("engine.admins", []string{})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "maskflow")
	v.SetDefault("metrics.datadog_addr", "")
	v.SetDefault("metrics.namespace", "")
}

// Load reads configuration into a Config. When file is empty, maskflow.yaml
// is looked up in the working directory and ./config; a missing file is not
// an error. An explicitly named file must exist.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("maskflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
