package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

// Config holds the configuration of the host application.
type Config struct {
	ServerAddr   string            `json:"server_addr"`
	ApiAddr      string            `json:"api_addr"`
	LogLevel     string            `json:"log_level"`
	DatabasePath string            `json:"database_path"`
	UseStore     bool              `json:"use_store"`
	ImportDir    string            `json:"import_dir"`
	ViewConfig   string            `json:"view_config"`
	IndexView    string            `json:"index_view"`
	Headers      map[string]string `json:"headers"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		ServerAddr:   ":7277",
		ApiAddr:      ":7278",
		LogLevel:     "info",
		DatabasePath: "./data/viewkit.db",
		UseStore:     false,
		ImportDir:    "",
		ViewConfig:   "./views.json",
		IndexView:    "index",
		Headers: map[string]string{
			"Cache-Control": "no-cache",
			"Content-Type":  "text/html; charset=utf-8",
		},
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}
