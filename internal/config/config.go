package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrMissingInstrumentationKey is returned when no Application Insights
// instrumentation key is configured. The relay must not start without one.
var ErrMissingInstrumentationKey = errors.New("application insights instrumentation key is missing")

// Environment variables with platform-defined names.
const (
	EnvInstrumentationKey = "APPINSIGHTS_INSTRUMENTATIONKEY"
	EnvCustomHandlerPort  = "FUNCTIONS_CUSTOMHANDLER_PORT"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Mirror    MirrorConfig    `mapstructure:"mirror"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	Route        string        `mapstructure:"route" validate:"required,startswith=/"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
}

type TelemetryConfig struct {
	InstrumentationKey string        `mapstructure:"instrumentation_key" validate:"required"`
	EndpointURL        string        `mapstructure:"endpoint_url" validate:"required,url"`
	RoleName           string        `mapstructure:"role_name"`
	MaxBatchSize       int           `mapstructure:"max_batch_size" validate:"gte=1"`
	MaxBatchInterval   time.Duration `mapstructure:"max_batch_interval" validate:"gt=0"`
	FlushTimeout       time.Duration `mapstructure:"flush_timeout" validate:"gt=0"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RedisURL string        `mapstructure:"redis_url" validate:"required_if=Enabled true"`
	Requests int           `mapstructure:"requests" validate:"required_if=Enabled true,gte=0"`
	Window   time.Duration `mapstructure:"window" validate:"required_if=Enabled true"`
}

type MirrorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	NatsURL string `mapstructure:"nats_url" validate:"required_if=Enabled true"`
	Subject string `mapstructure:"subject" validate:"required_if=Enabled true"`
	Token   string `mapstructure:"token"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// Load reads configuration from defaults, an optional YAML file and the
// environment. RELAY_* variables override file values (server.port ->
// RELAY_SERVER_PORT). The instrumentation key is read from
// APPINSIGHTS_INSTRUMENTATIONKEY.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.route", "/api/LogToAppInsights")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_body_bytes", 1048576)
	v.SetDefault("telemetry.instrumentation_key", "")
	v.SetDefault("telemetry.endpoint_url", "https://dc.services.visualstudio.com/v2/track")
	v.SetDefault("telemetry.role_name", "telhawk-relay")
	v.SetDefault("telemetry.max_batch_size", 1024)
	v.SetDefault("telemetry.max_batch_interval", "10s")
	v.SetDefault("telemetry.flush_timeout", "10s")
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.redis_url", "redis://localhost:6379/0")
	v.SetDefault("ratelimit.requests", 600)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.nats_url", "nats://localhost:4222")
	v.SetDefault("mirror.subject", "relay.events.logicapp")
	v.SetDefault("mirror.token", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/telhawk/relay")
	}

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Platform-defined names; the RELAY_ form is checked first.
	_ = v.BindEnv("telemetry.instrumentation_key", "RELAY_TELEMETRY_INSTRUMENTATION_KEY", EnvInstrumentationKey)
	_ = v.BindEnv("server.port", "RELAY_SERVER_PORT", EnvCustomHandlerPort)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the loaded configuration. A missing instrumentation key is
// reported as ErrMissingInstrumentationKey so callers can match it.
func (c *Config) Validate() error {
	if c.Telemetry.InstrumentationKey == "" {
		return fmt.Errorf("invalid config: %w (set %s)", ErrMissingInstrumentationKey, EnvInstrumentationKey)
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
