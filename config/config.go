package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Slack credentials. The API token authenticates Web API calls, the
	// app-level token opens the Socket Mode connection.
	SlackAPIToken string `env:"SLACK_API_TOKEN"`
	SlackAppToken string `env:"SLACK_APP_TOKEN"`

	// Path of the versioned storage file
	StorageFile string `env:"STORAGE_FILE"`

	// IANA timezone name used for ticket timestamps
	Timezone string `env:"TIMEZONE"`
}

// Load resolves configuration in priority order: environment variables, then
// the settings file (name=value lines), then built-in defaults. Missing
// required values are an error.
func Load(settingsFile string) (*Config, error) {
	cfg := &Config{
		StorageFile: defaultStorageFile(),
		Timezone:    "UTC",
	}

	if _, err := os.Stat(settingsFile); err == nil {
		values, err := godotenv.Read(settingsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", settingsFile, err)
		}
		applyFileValues(cfg, values)
	}

	// Environment wins over the settings file
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.SlackAPIToken == "" {
		return nil, fmt.Errorf("no value provided for SLACK_API_TOKEN")
	}
	if cfg.SlackAppToken == "" {
		return nil, fmt.Errorf("no value provided for SLACK_APP_TOKEN")
	}

	return cfg, nil
}

func applyFileValues(cfg *Config, values map[string]string) {
	for name, value := range values {
		switch name {
		case "SLACK_API_TOKEN":
			cfg.SlackAPIToken = value
		case "SLACK_APP_TOKEN":
			cfg.SlackAppToken = value
		case "STORAGE_FILE":
			cfg.StorageFile = value
		case "TIMEZONE":
			cfg.Timezone = value
		}
	}
}

func defaultStorageFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pepubot-data.json"
	}
	return filepath.Join(home, "pepubot-data.json")
}
