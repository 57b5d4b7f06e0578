package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the Blotter guest portal.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Guest       GuestConfig       `mapstructure:"guest"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Email       EmailConfig       `mapstructure:"email"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	BaseURL       string        `mapstructure:"base_url"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	// RequestsPerMinute bounds guest requests per client IP and route. Zero disables it.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver    string        `mapstructure:"driver"`
	Path      string        `mapstructure:"path"`
	DSN       string        `mapstructure:"dsn"`
	SlowQuery time.Duration `mapstructure:"slow_query"`
	Postgres  DBAuthConfig  `mapstructure:"postgres"`
	MySQL     DBAuthConfig  `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// AuthConfig captures staff token verification settings. Tokens are issued by
// the case management system; this service only validates them.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access token validation.
type JWTSettings struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	TTL      time.Duration `mapstructure:"access_token_ttl"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

// GuestConfig controls the guest portal.
type GuestConfig struct {
	SessionTTL            time.Duration   `mapstructure:"session_ttl"`
	CookieSecure          bool            `mapstructure:"cookie_secure"`
	RateLimit             GuestRateLimit  `mapstructure:"rate_limit"`
	MaxUploadSize         int64           `mapstructure:"max_upload_size"`
	AllowedTypes          []string        `mapstructure:"allowed_types"`
	MaxUploadsPerLink     int             `mapstructure:"max_uploads_per_link"`
	MaxActiveLinksPerCase int             `mapstructure:"max_active_links_per_case"`
	LinkDuration          LinkDurationCfg `mapstructure:"link_duration"`
}

// GuestRateLimit bounds PIN attempts per link token.
type GuestRateLimit struct {
	Points   int           `mapstructure:"points"`
	Duration time.Duration `mapstructure:"duration"`
}

// LinkDurationCfg bounds the lifetime staff may request for a link, in hours.
type LinkDurationCfg struct {
	Default int `mapstructure:"default"`
	Min     int `mapstructure:"min"`
	Max     int `mapstructure:"max"`
}

// StorageConfig selects the evidence object store.
type StorageConfig struct {
	Driver     string                  `mapstructure:"driver"`
	Filesystem FilesystemStorageConfig `mapstructure:"filesystem"`
	S3         S3StorageConfig         `mapstructure:"s3"`
}

// FilesystemStorageConfig roots evidence objects on local disk.
type FilesystemStorageConfig struct {
	Root string `mapstructure:"root"`
}

// S3StorageConfig configures an S3 compatible bucket.
type S3StorageConfig struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Prefix         string `mapstructure:"prefix"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	ServerSideKMS  bool   `mapstructure:"server_side_kms"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig schedules background cleanup.
type MaintenanceConfig struct {
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
	CacheSchedule      string `mapstructure:"cache_schedule"`
	AuditSchedule      string `mapstructure:"audit_schedule"`
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

	v.SetEnvPrefix("BLOTTER")
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

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "filesystem":
		if strings.TrimSpace(c.Storage.Filesystem.Root) == "" {
			return errors.New("config: storage.filesystem.root is required")
		}
	case "s3":
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return errors.New("config: storage.s3.bucket is required")
		}
	default:
		return fmt.Errorf("config: unsupported storage driver %q", c.Storage.Driver)
	}

	d := c.Guest.LinkDuration
	if d.Min <= 0 || d.Max < d.Min || d.Default < d.Min || d.Default > d.Max {
		return fmt.Errorf("config: guest.link_duration must satisfy 0 < min <= default <= max (got %d/%d/%d)", d.Min, d.Default, d.Max)
	}
	if c.Guest.RateLimit.Points <= 0 || c.Guest.RateLimit.Duration <= 0 {
		return errors.New("config: guest.rate_limit points and duration must be positive")
	}
	if c.Guest.MaxUploadSize <= 0 {
		return errors.New("config: guest.max_upload_size must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.upload_timeout", "2m")
	v.SetDefault("server.requests_per_minute", 120)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/blotter.sqlite")
	v.SetDefault("database.slow_query", "500ms")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")

	v.SetDefault("auth.jwt.issuer", "blotter")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.jwt.audience", "")
	v.SetDefault("auth.jwt.leeway", "30s")

	v.SetDefault("guest.session_ttl", "24h")
	v.SetDefault("guest.cookie_secure", true)
	v.SetDefault("guest.rate_limit.points", 5)
	v.SetDefault("guest.rate_limit.duration", "10m")
	v.SetDefault("guest.max_upload_size", 20<<20)
	v.SetDefault("guest.allowed_types", []string{"image/jpeg", "image/png", "image/webp", "image/gif", "application/pdf"})
	v.SetDefault("guest.max_uploads_per_link", 3)
	v.SetDefault("guest.max_active_links_per_case", 5)
	v.SetDefault("guest.link_duration.default", 24)
	v.SetDefault("guest.link_duration.min", 1)
	v.SetDefault("guest.link_duration.max", 168)

	v.SetDefault("storage.driver", "filesystem")
	v.SetDefault("storage.filesystem.root", "./data/evidence")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.prefix", "evidence")
	v.SetDefault("storage.s3.force_path_style", false)
	v.SetDefault("storage.s3.server_side_kms", false)

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("maintenance.audit_retention_days", 365)
	v.SetDefault("maintenance.cache_schedule", "@every 15m")
	v.SetDefault("maintenance.audit_schedule", "@daily")
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
