package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AutoMigrate    bool          `mapstructure:"AUTO_MIGRATE"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	DirectionsAPIKey  string        `mapstructure:"DIRECTIONS_API_KEY"`
	DirectionsBaseURL string        `mapstructure:"DIRECTIONS_BASE_URL"`
	DirectionsTimeout time.Duration `mapstructure:"DIRECTIONS_TIMEOUT"`
	DirectionsRPS     float64       `mapstructure:"DIRECTIONS_RPS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	TravelCacheTTL    time.Duration `mapstructure:"TRAVEL_CACHE_TTL"`

	ScheduleTimezone string `mapstructure:"SCHEDULE_TIMEZONE"`
	WorkdayStart     string `mapstructure:"WORKDAY_START"`
	BufferMinutes    int    `mapstructure:"SCHEDULE_BUFFER_MINUTES"`
	WorkerPoolSize   int    `mapstructure:"WORKER_POOL_SIZE"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("DIRECTIONS_API_KEY", "")
	v.SetDefault("DIRECTIONS_BASE_URL", "https://maps.googleapis.com")
	v.SetDefault("DIRECTIONS_TIMEOUT", "8s")
	v.SetDefault("DIRECTIONS_RPS", 10)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("TRAVEL_CACHE_TTL", "24h")

	v.SetDefault("SCHEDULE_TIMEZONE", "UTC")
	v.SetDefault("WORKDAY_START", "08:00")
	v.SetDefault("SCHEDULE_BUFFER_MINUTES", 15)
	v.SetDefault("WORKER_POOL_SIZE", 8)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.BufferMinutes < 0 {
		return Config{}, fmt.Errorf("SCHEDULE_BUFFER_MINUTES must be >= 0, got %d", cfg.BufferMinutes)
	}
	return cfg, nil
}

// Location resolves SCHEDULE_TIMEZONE, which decides calendar day and week
// boundaries for scoring and scheduling.
func (c Config) Location() (*time.Location, error) {
	if c.ScheduleTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.ScheduleTimezone)
}
