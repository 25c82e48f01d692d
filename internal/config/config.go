// Package config resolves server settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

type FirebaseConfig struct {
	ProjectID          string
	ServiceAccountPath string
	StorageBucket      string
}

type PostgresConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
}

// DSN returns URL when set, otherwise a URL built from the parts.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type Config struct {
	Port         string
	StoreBackend string
	IsProduction bool

	Firebase FirebaseConfig
	Postgres PostgresConfig
	Redis    RedisConfig

	JournalSecret string
	CommentSecret string
	TripTimezone  string

	WriteTimeout       time.Duration
	FetchTimeout       time.Duration
	FetchRetryDelay    time.Duration
	RefocusMinInterval time.Duration
	RefocusDebounce    time.Duration

	WeatherEnabled bool
	WeatherCron    string
	WeatherRPS     float64

	NotifyTopic string

	// RateLimit is a ulule/limiter formatted rate such as "20-S".
	RateLimit      string
	AllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "9091")
	v.SetDefault("STORE_BACKEND", BackendFirestore)
	v.SetDefault("IS_PRODUCTION", false)

	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_SERVICE_ACCOUNT_PATH", "")
	v.SetDefault("FIREBASE_STORAGE_BUCKET", "")

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "")
	v.SetDefault("POSTGRES_DB", "triptracker")
	v.SetDefault("POSTGRES_SSLMODE", "disable")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JOURNAL_SECRET", "")
	v.SetDefault("COMMENT_SECRET", "")
	v.SetDefault("TRIP_TIMEZONE", "America/Denver")

	v.SetDefault("WRITE_TIMEOUT", "10s")
	v.SetDefault("FETCH_TIMEOUT", "10s")
	v.SetDefault("FETCH_RETRY_DELAY", "2s")
	v.SetDefault("REFOCUS_MIN_INTERVAL", "30s")
	v.SetDefault("REFOCUS_DEBOUNCE", "1500ms")

	v.SetDefault("WEATHER_ENABLED", true)
	v.SetDefault("WEATHER_CRON", "@every 30m")
	v.SetDefault("WEATHER_RPS", 2.0)

	v.SetDefault("NOTIFY_TOPIC", "trip-updates")
	v.SetDefault("RATE_LIMIT", "20-S")
	v.SetDefault("ALLOWED_ORIGINS", "*")
}

// Load reads .env when present and resolves every setting, with real
// environment variables taking precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:         v.GetString("PORT"),
		StoreBackend: strings.ToLower(v.GetString("STORE_BACKEND")),
		IsProduction: v.GetBool("IS_PRODUCTION"),
		Firebase: FirebaseConfig{
			ProjectID:          v.GetString("FIREBASE_PROJECT_ID"),
			ServiceAccountPath: v.GetString("FIREBASE_SERVICE_ACCOUNT_PATH"),
			StorageBucket:      v.GetString("FIREBASE_STORAGE_BUCKET"),
		},
		Postgres: PostgresConfig{
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("POSTGRES_HOST"),
			Port:     v.GetString("POSTGRES_PORT"),
			User:     v.GetString("POSTGRES_USER"),
			Password: v.GetString("POSTGRES_PASSWORD"),
			DB:       v.GetString("POSTGRES_DB"),
			SSLMode:  v.GetString("POSTGRES_SSLMODE"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JournalSecret:  v.GetString("JOURNAL_SECRET"),
		CommentSecret:  v.GetString("COMMENT_SECRET"),
		TripTimezone:   v.GetString("TRIP_TIMEZONE"),
		WeatherEnabled: v.GetBool("WEATHER_ENABLED"),
		WeatherCron:    v.GetString("WEATHER_CRON"),
		WeatherRPS:     v.GetFloat64("WEATHER_RPS"),
		NotifyTopic:    v.GetString("NOTIFY_TOPIC"),
		RateLimit:      v.GetString("RATE_LIMIT"),
	}

	for _, o := range strings.Split(v.GetString("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"FETCH_TIMEOUT", &cfg.FetchTimeout},
		{"FETCH_RETRY_DELAY", &cfg.FetchRetryDelay},
		{"REFOCUS_MIN_INTERVAL", &cfg.RefocusMinInterval},
		{"REFOCUS_DEBOUNCE", &cfg.RefocusDebounce},
	}
	for _, d := range durations {
		raw := v.GetString(d.key)
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid value for %s (%q)", d.key, raw)
		}
		*d.dst = parsed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendFirestore, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.JournalSecret == "" {
		return fmt.Errorf("JOURNAL_SECRET is required")
	}
	if c.CommentSecret == "" {
		return fmt.Errorf("COMMENT_SECRET is required")
	}
	if _, err := time.LoadLocation(c.TripTimezone); err != nil {
		return fmt.Errorf("invalid TRIP_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the trip timezone. Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TripTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
