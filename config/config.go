package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL   string        `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	LogLevel      string        `mapstructure:"LOG_LEVEL"`
	ScanSchedule  string        `mapstructure:"SCAN_SCHEDULE"`
	ReminderGrace time.Duration `mapstructure:"REMINDER_GRACE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SCAN_SCHEDULE", "*/5 * * * *")
	v.SetDefault("REMINDER_GRACE", "15m")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("SCAN_SCHEDULE")
	v.BindEnv("REMINDER_GRACE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.ReminderGrace < 0 {
		return nil, fmt.Errorf("REMINDER_GRACE must not be negative")
	}

	return cfg, nil
}
