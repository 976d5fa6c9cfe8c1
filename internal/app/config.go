package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the attachvault server.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Messages   MessagesConfig   `mapstructure:"messages"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig holds the attachment cache policy.
type CacheConfig struct {
	MaxSizeBytes    int64         `mapstructure:"max_size_bytes"`
	MaxAge          time.Duration `mapstructure:"max_age"`
	MaxAccessCount  int           `mapstructure:"max_access_count"`
	RespectPrivacy  bool          `mapstructure:"respect_privacy"`
	CleanupInterval string        `mapstructure:"cleanup_interval"`
	SignedURLTTL    time.Duration `mapstructure:"signed_url_ttl"`
	StorageTimeout  time.Duration `mapstructure:"storage_timeout"`
	SigningSecret   string        `mapstructure:"signing_secret"`
}

// VaultConfig controls conversation key derivation.
type VaultConfig struct {
	Salt             string `mapstructure:"salt"`
	PBKDF2Iterations int    `mapstructure:"pbkdf2_iterations"`
}

// MessagesConfig controls the encrypted message log.
type MessagesConfig struct {
	MaxAge time.Duration `mapstructure:"max_age"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures authentication settings for the management API.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("ATTACHVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/attachvault.sqlite")

	v.SetDefault("cache.max_size_bytes", 100*1024*1024)
	v.SetDefault("cache.max_age", "168h")
	v.SetDefault("cache.max_access_count", 100)
	v.SetDefault("cache.respect_privacy", true)
	v.SetDefault("cache.cleanup_interval", "@hourly")
	v.SetDefault("cache.signed_url_ttl", "15m")
	v.SetDefault("cache.storage_timeout", "5s")
	v.SetDefault("cache.signing_secret", "")

	v.SetDefault("vault.salt", "")
	v.SetDefault("vault.pbkdf2_iterations", 100_000)

	v.SetDefault("messages.max_age", "168h")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("auth.jwt.issuer", "attachvault")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
