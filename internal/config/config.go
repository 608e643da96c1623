package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for our application
type Config struct {
	DiscordToken    string
	DBPath          string
	RefreshInterval time.Duration
	LogLevel        string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// .env file is optional, continue with environment variables
	}

	config := &Config{
		DiscordToken:    os.Getenv("DISCORD_TOKEN"),
		DBPath:          os.Getenv("DUTY_DB_PATH"),
		RefreshInterval: time.Minute,
		LogLevel:        os.Getenv("LOG_LEVEL"),
	}

	if config.DiscordToken == "" {
		return nil, &ConfigError{Field: "DISCORD_TOKEN", Message: "DISCORD_TOKEN is required"}
	}

	if config.DBPath == "" {
		config.DBPath = "./duty.db"
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if raw := os.Getenv("DUTY_REFRESH_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil || interval <= 0 {
			return nil, &ConfigError{Field: "DUTY_REFRESH_INTERVAL", Message: "DUTY_REFRESH_INTERVAL must be a positive duration, e.g. 1m"}
		}
		config.RefreshInterval = interval
	}

	return config, nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
