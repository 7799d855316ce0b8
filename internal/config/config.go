// Package config loads runtime configuration from a config file, METEORS_*
// environment variables (optionally seeded from a .env file) and CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/meteor-showers/internal/logging"
	"github.com/signalsfoundry/meteor-showers/internal/observability"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "METEORS"

// ObserverConfig places the observer for horizontal coordinates.
type ObserverConfig struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NotifyConfig selects where update messages are forwarded besides the
// in-process display queue. Empty addresses disable a sink.
type NotifyConfig struct {
	MessageTimeout time.Duration `mapstructure:"message_timeout"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisChannel   string        `mapstructure:"redis_channel"`
	KafkaBrokers   []string      `mapstructure:"kafka_brokers"`
	KafkaTopic     string        `mapstructure:"kafka_topic"`
	AMQPURL        string        `mapstructure:"amqp_url"`
	AMQPQueue      string        `mapstructure:"amqp_queue"`
}

// TracingConfig mirrors observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Config holds all runtime configuration for the engine.
type Config struct {
	DataDir       string        `mapstructure:"data_dir"`
	CatalogFile   string        `mapstructure:"catalog_file"`
	SettingsFile  string        `mapstructure:"settings_file"`
	HTTPAddr      string        `mapstructure:"http_addr"`
	GRPCAddr      string        `mapstructure:"grpc_addr"`
	Tick          time.Duration `mapstructure:"tick"`
	TimeRate      float64       `mapstructure:"time_rate"`
	Seed          uint64        `mapstructure:"seed"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	WatchCatalog  bool          `mapstructure:"watch_catalog"`

	Observer ObserverConfig `mapstructure:"observer"`
	Log      LogConfig      `mapstructure:"log"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("catalog_file", "")
	v.SetDefault("settings_file", "")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("grpc_addr", ":9090")
	v.SetDefault("tick", "50ms")
	v.SetDefault("time_rate", 1.0)
	v.SetDefault("seed", 0)
	v.SetDefault("check_interval", "1m")
	v.SetDefault("fetch_timeout", "30s")
	v.SetDefault("watch_catalog", true)

	v.SetDefault("observer.latitude", 0.0)
	v.SetDefault("observer.longitude", 0.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("notify.message_timeout", "6s")
	v.SetDefault("notify.redis_addr", "")
	v.SetDefault("notify.redis_channel", "meteors.updates")
	v.SetDefault("notify.kafka_brokers", []string{})
	v.SetDefault("notify.kafka_topic", "meteors.updates")
	v.SetDefault("notify.amqp_url", "")
	v.SetDefault("notify.amqp_queue", "meteors.updates")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "meteorshowers")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// BindEnv makes v read METEORS_* variables, with nested keys joined by "_"
// (tracing.enabled is METEORS_TRACING_ENABLED).
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from the global viper instance, applying built-in
// defaults for any values not set by config file, environment, or flags.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v.
func LoadFrom(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	BindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.CatalogFile == "" {
		cfg.CatalogFile = filepath.Join(cfg.DataDir, "showers.json")
	}
	if cfg.SettingsFile == "" {
		cfg.SettingsFile = filepath.Join(cfg.DataDir, "meteors.toml")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("tick must be positive, got %s", c.Tick))
	}
	if c.TimeRate < 0 {
		errs = append(errs, fmt.Errorf("time_rate must not be negative, got %v", c.TimeRate))
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("check_interval must be positive, got %s", c.CheckInterval))
	}
	if c.Observer.Latitude < -90 || c.Observer.Latitude > 90 {
		errs = append(errs, fmt.Errorf("observer.latitude out of range: %v", c.Observer.Latitude))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be in [0,1], got %v", c.Tracing.SampleRatio))
	}
	return errors.Join(errs...)
}

// LoggingConfig converts to the logging package's configuration.
func (c Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// TracingConfig converts to the observability package's configuration,
// tagging the trace resource with the installed catalog version.
func (c Config) TracingConfig(catalogVersion string) observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:        c.Tracing.Enabled,
		ServiceName:    c.Tracing.ServiceName,
		Exporter:       strings.ToLower(c.Tracing.Exporter),
		Endpoint:       c.Tracing.Endpoint,
		SampleRatio:    c.Tracing.SampleRatio,
		CatalogVersion: catalogVersion,
	}
}
