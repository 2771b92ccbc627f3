package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Valkey      ValkeyConfig      `mapstructure:"valkey"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Temporal    TemporalConfig    `mapstructure:"temporal"`
	Geocoding   GeocodingConfig   `mapstructure:"geocoding"`
	OCR         OCRConfig         `mapstructure:"ocr"`
	Matching    MatchingConfig    `mapstructure:"matching"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Selection   SelectionConfig   `mapstructure:"selection"`
	Registry    RegistryConfig    `mapstructure:"registry"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
	BodyLimitMB  int `mapstructure:"body_limit_mb"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
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
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// GeocodingConfig configures the provider chain. Nominatim is always tried
// first; Google is added when an API key is set.
type GeocodingConfig struct {
	NominatimURL   string  `mapstructure:"nominatim_url"`
	ContactEmail   string  `mapstructure:"contact_email"`
	GoogleAPIKey   string  `mapstructure:"google_api_key"`
	GoogleURL      string  `mapstructure:"google_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	CacheTTLHours  int     `mapstructure:"cache_ttl_hours"`
	SessionMinutes int     `mapstructure:"session_minutes"`
	PaidRate       float64 `mapstructure:"paid_rate"`
	PaidBurst      int     `mapstructure:"paid_burst"`
}

func (g GeocodingConfig) Timeout() time.Duration { return time.Duration(g.TimeoutSeconds) * time.Second }

type OCRConfig struct {
	VisionAPIKey      string `mapstructure:"vision_api_key"`
	VisionURL         string `mapstructure:"vision_url"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	PdftoppmPath      string `mapstructure:"pdftoppm_path"`
	DPI               int    `mapstructure:"dpi"`
	MaxImageDimension int    `mapstructure:"max_image_dimension"`
}

func (o OCRConfig) Timeout() time.Duration { return time.Duration(o.TimeoutSeconds) * time.Second }

type MatchingConfig struct {
	HighThreshold       float64 `mapstructure:"high_threshold"`
	MediumThreshold     float64 `mapstructure:"medium_threshold"`
	AutoSelectMargin    float64 `mapstructure:"auto_select_margin"`
	NearbyRadiusMeters  float64 `mapstructure:"nearby_radius_m"`
	CandidateLimit      int     `mapstructure:"candidate_limit"`
	StoreTimeoutSeconds int     `mapstructure:"store_timeout_seconds"`
}

type CalibrationConfig struct {
	MaxResidualMeters float64 `mapstructure:"max_residual_m"`
}

type SelectionConfig struct {
	IdleMinutes  int `mapstructure:"idle_minutes"`
	SweepSeconds int `mapstructure:"sweep_seconds"`
}

// RegistryConfig extends the built-in county format table. An entry for a
// built-in county replaces it in place.
type RegistryConfig struct {
	Version  string                   `mapstructure:"version"`
	Counties []apnformat.CountyFormat `mapstructure:"counties"`
}

// Build returns the configured registry.
func (r RegistryConfig) Build() (*apnformat.StaticRegistry, error) {
	if len(r.Counties) == 0 {
		return apnformat.Default(), nil
	}
	return apnformat.NewRegistry(r.Version, apnformat.DefaultFormats, r.Counties)
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.body_limit_mb", 26)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "siteintel")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "siteintel")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.key_prefix", "siteintel:")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "siteintel-surveys")
	v.SetDefault("geocoding.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoding.timeout_seconds", 15)
	v.SetDefault("geocoding.cache_ttl_hours", 24*30)
	v.SetDefault("geocoding.session_minutes", 3)
	v.SetDefault("geocoding.paid_rate", 10)
	v.SetDefault("geocoding.paid_burst", 20)
	v.SetDefault("ocr.timeout_seconds", 30)
	v.SetDefault("ocr.dpi", 200)
	v.SetDefault("ocr.max_image_dimension", 2000)
	v.SetDefault("matching.high_threshold", 70)
	v.SetDefault("matching.medium_threshold", 40)
	v.SetDefault("matching.auto_select_margin", 15)
	v.SetDefault("matching.nearby_radius_m", 75)
	v.SetDefault("matching.candidate_limit", 10)
	v.SetDefault("matching.store_timeout_seconds", 10)
	v.SetDefault("calibration.max_residual_m", 25)
	v.SetDefault("selection.idle_minutes", 30)
	v.SetDefault("selection.sweep_seconds", 60)
	v.SetDefault("registry.version", "custom")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: SITEINTEL_DATABASE_HOST → database.host
	v.SetEnvPrefix("SITEINTEL")
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

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
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
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Geocoding.TimeoutSeconds <= 0 {
		errs = append(errs, "geocoding.timeout_seconds must be positive")
	}
	if c.OCR.TimeoutSeconds <= 0 {
		errs = append(errs, "ocr.timeout_seconds must be positive")
	}
	m := c.Matching
	if m.MediumThreshold <= 0 || m.HighThreshold <= m.MediumThreshold || m.HighThreshold > 100 {
		errs = append(errs, fmt.Sprintf("matching thresholds must satisfy 0 < medium < high <= 100, got %.0f/%.0f", m.MediumThreshold, m.HighThreshold))
	}
	if m.AutoSelectMargin < 0 {
		errs = append(errs, "matching.auto_select_margin must not be negative")
	}
	if c.Calibration.MaxResidualMeters <= 0 {
		errs = append(errs, "calibration.max_residual_m must be positive")
	}
	if _, err := c.Registry.Build(); err != nil {
		errs = append(errs, "registry: "+err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
