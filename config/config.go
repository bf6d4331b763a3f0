package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	// EnvDatabasePath overrides the local state database location
	EnvDatabasePath = "ISSUEDECK_DATABASE_PATH"

	// EnvAPIBaseURL overrides the API origin (GitHub Enterprise)
	EnvAPIBaseURL = "ISSUEDECK_API_BASE_URL"
)

// Config represents the application configuration
type Config struct {
	// Path to the SQLite database holding credentials and the
	// repository cache
	DatabasePath string `json:"database_path"`

	// Optional API base URL override; empty means api.github.com
	APIBaseURL string `json:"api_base_url,omitempty"`

	// Per-repository page size for issue/PR aggregation
	PageSize int `json:"page_size,omitempty"`
}

// LoadConfig loads the configuration from a JSON file, applying .env
// and environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	// A missing .env is fine; an unreadable one is not worth failing over.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if env := os.Getenv(EnvDatabasePath); env != "" {
		config.DatabasePath = env
	}
	if env := os.Getenv(EnvAPIBaseURL); env != "" {
		config.APIBaseURL = env
	}

	if config.DatabasePath == "" {
		config.DatabasePath = "issuedeck.db"
	}
	if config.PageSize <= 0 {
		config.PageSize = 30
	}

	// Make database path absolute if it's relative
	if !filepath.IsAbs(config.DatabasePath) {
		configDir := filepath.Dir(path)
		config.DatabasePath = filepath.Join(configDir, config.DatabasePath)
	}

	return &config, nil
}

// SaveConfig saves the configuration to a JSON file
func SaveConfig(config *Config, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't exist
func CreateDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}

	config := &Config{
		DatabasePath: "issuedeck.db",
		PageSize:     30,
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return SaveConfig(config, path)
}
