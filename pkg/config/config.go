package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env         string
	ServiceName string
	Port        int
	APIPrefix   string

	Database    DatabaseConfig
	Redis       RedisConfig
	CORS        CORSConfig
	Log         LogConfig
	Upstream    UpstreamConfig
	Makeup      MakeupConfig
	Submissions SubmissionsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UpstreamConfig points at the core education-center API that owns students, credits and sessions.
type UpstreamConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// MakeupConfig tunes the make-up resolution workflows.
type MakeupConfig struct {
	FetchTimeout     time.Duration
	FetchWorkers     int
	WorkflowTTL      time.Duration
	MaxWorkflows     int
	SweepSchedule    string
	CatalogCacheTTL  time.Duration
	UTCOffset        string
	MaxViewWait      time.Duration
	EnableFetchQueue bool
}

// SubmissionsConfig toggles the submission log store and its exports.
type SubmissionsConfig struct {
	Enabled       bool
	RunMigrations bool
	SlipTitle     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.ServiceName = v.GetString("SERVICE_NAME")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Upstream = UpstreamConfig{
		BaseURL:  strings.TrimRight(v.GetString("UPSTREAM_BASE_URL"), "/"),
		APIToken: v.GetString("UPSTREAM_API_TOKEN"),
		Timeout:  parseDuration(v.GetString("UPSTREAM_TIMEOUT"), 25*time.Second),
	}

	cfg.Makeup = MakeupConfig{
		FetchTimeout:     parseDuration(v.GetString("MAKEUP_FETCH_TIMEOUT"), 20*time.Second),
		FetchWorkers:     v.GetInt("MAKEUP_FETCH_WORKERS"),
		WorkflowTTL:      parseDuration(v.GetString("MAKEUP_WORKFLOW_TTL"), 30*time.Minute),
		MaxWorkflows:     v.GetInt("MAKEUP_MAX_WORKFLOWS"),
		SweepSchedule:    v.GetString("MAKEUP_SWEEP_SCHEDULE"),
		CatalogCacheTTL:  parseDuration(v.GetString("MAKEUP_CATALOG_CACHE_TTL"), time.Minute),
		UTCOffset:        v.GetString("MAKEUP_UTC_OFFSET"),
		MaxViewWait:      parseDuration(v.GetString("MAKEUP_MAX_VIEW_WAIT"), 10*time.Second),
		EnableFetchQueue: v.GetBool("MAKEUP_ENABLE_FETCH_QUEUE"),
	}

	cfg.Submissions = SubmissionsConfig{
		Enabled:       v.GetBool("ENABLE_SUBMISSION_LOG"),
		RunMigrations: v.GetBool("SUBMISSION_LOG_MIGRATE"),
		SlipTitle:     v.GetString("SUBMISSION_SLIP_TITLE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL is required")
	}
	if _, err := ParseUTCOffset(c.Makeup.UTCOffset); err != nil {
		return err
	}
	return nil
}

// Location returns the fixed zone used for make-up dates and date ranges.
func (c MakeupConfig) Location() *time.Location {
	loc, err := ParseUTCOffset(c.UTCOffset)
	if err != nil {
		return time.FixedZone("+07:00", 7*60*60)
	}
	return loc
}

// ParseUTCOffset turns "+07:00" style offsets into a fixed zone.
func ParseUTCOffset(raw string) (*time.Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "+07:00"
	}
	t, err := time.Parse("-07:00", raw)
	if err != nil {
		return nil, fmt.Errorf("invalid MAKEUP_UTC_OFFSET %q: %w", raw, err)
	}
	_, offset := t.Zone()
	return time.FixedZone(raw, offset), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("SERVICE_NAME", "edu-makeup-api")
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "edu_center_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPSTREAM_BASE_URL", "http://localhost:5000/api")
	v.SetDefault("UPSTREAM_API_TOKEN", "")
	v.SetDefault("UPSTREAM_TIMEOUT", "25s")

	v.SetDefault("MAKEUP_FETCH_TIMEOUT", "20s")
	v.SetDefault("MAKEUP_FETCH_WORKERS", 8)
	v.SetDefault("MAKEUP_WORKFLOW_TTL", "30m")
	v.SetDefault("MAKEUP_MAX_WORKFLOWS", 500)
	v.SetDefault("MAKEUP_SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("MAKEUP_CATALOG_CACHE_TTL", "1m")
	v.SetDefault("MAKEUP_UTC_OFFSET", "+07:00")
	v.SetDefault("MAKEUP_MAX_VIEW_WAIT", "10s")
	v.SetDefault("MAKEUP_ENABLE_FETCH_QUEUE", true)

	v.SetDefault("ENABLE_SUBMISSION_LOG", false)
	v.SetDefault("SUBMISSION_LOG_MIGRATE", true)
	v.SetDefault("SUBMISSION_SLIP_TITLE", "Make-up Session Slip")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
