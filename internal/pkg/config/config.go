package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Trail     TrailConfig     `mapstructure:"trail"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TemporalConfig struct {
	HostPort   string        `mapstructure:"host_port"`
	Namespace  string        `mapstructure:"namespace"`
	TaskQueue  string        `mapstructure:"task_queue"`
	ScheduleID string        `mapstructure:"schedule_id"`
	Interval   time.Duration `mapstructure:"interval"`
}

type TrailConfig struct {
	Name                 string  `mapstructure:"name"`
	MarginDegrees        float64 `mapstructure:"margin_degrees"`
	TrackingRadiusMeters float64 `mapstructure:"tracking_radius_meters"`
	TimeZone             string  `mapstructure:"time_zone"`
}

// Location resolves the trail's calendar time zone.
func (t TrailConfig) Location() (*time.Location, error) {
	return time.LoadLocation(t.TimeZone)
}

type SourcesConfig struct {
	LocationsURL      string        `mapstructure:"locations_url"`
	PerimetersURL     string        `mapstructure:"perimeters_url"`
	HistoryURL        string        `mapstructure:"history_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type RefreshConfig struct {
	Workers          int           `mapstructure:"workers"`
	LookupTimeout    time.Duration `mapstructure:"lookup_timeout"`
	DistanceCacheTTL time.Duration `mapstructure:"distance_cache_ttl"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: TRACKER_DATABASE_HOST → database.host
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tracker")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "tracker")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "incident-refresh")
	v.SetDefault("temporal.schedule_id", "incident-refresh-hourly")
	v.SetDefault("temporal.interval", time.Hour)
	v.SetDefault("trail.name", "PCT")
	v.SetDefault("trail.margin_degrees", 0.5)
	v.SetDefault("trail.tracking_radius_meters", 16093.4)
	v.SetDefault("trail.time_zone", "America/Los_Angeles")
	v.SetDefault("sources.locations_url", "")
	v.SetDefault("sources.perimeters_url", "")
	v.SetDefault("sources.history_url", "")
	v.SetDefault("sources.timeout", 30*time.Second)
	v.SetDefault("sources.requests_per_second", 5.0)
	v.SetDefault("sources.burst", 1)
	v.SetDefault("refresh.workers", 8)
	v.SetDefault("refresh.lookup_timeout", 20*time.Second)
	v.SetDefault("refresh.distance_cache_ttl", 36*time.Hour)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "database.max_conns must be positive")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required")
	}
	if c.Temporal.Interval < time.Minute {
		errs = append(errs, fmt.Sprintf("temporal.interval must be at least 1m, got %s", c.Temporal.Interval))
	}
	if c.Trail.Name == "" {
		errs = append(errs, "trail.name is required")
	}
	if c.Trail.MarginDegrees < 0 {
		errs = append(errs, "trail.margin_degrees must not be negative")
	}
	if c.Trail.TrackingRadiusMeters < 0 {
		errs = append(errs, "trail.tracking_radius_meters must not be negative")
	}
	if _, err := c.Trail.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("trail.time_zone: %v", err))
	}
	if c.Sources.Timeout <= 0 {
		errs = append(errs, "sources.timeout must be positive")
	}
	if c.Sources.RequestsPerSecond <= 0 {
		errs = append(errs, "sources.requests_per_second must be positive")
	}
	if c.Refresh.Workers <= 0 {
		errs = append(errs, "refresh.workers must be positive")
	}
	if c.Refresh.LookupTimeout <= 0 {
		errs = append(errs, "refresh.lookup_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
