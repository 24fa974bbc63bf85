// Package config describes how a view factory is assembled: where views
// live, which engines are enabled and what data every view shares.
//
// Configs are JSON files by default. Files ending in ".hcl" are decoded as
// HCL; see LoadHCL for the block layout.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// ErrNoPaths is returned when a config lists no view paths.
var ErrNoPaths = errors.New("config: at least one view path is required")

// Paths is a list of view directories. In JSON it may also be written as
// a single string.
type Paths []string

// UnmarshalJSON accepts either "dir" or ["dir", ...].
func (p *Paths) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*p = Paths{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("paths must be a string or a list of strings: %w", err)
	}
	*p = list
	return nil
}

// Pongo2Config holds the options of the pongo2 engine. Parsed templates
// are cached in memory and re-parsed when any file they were built from
// changes, unless AutoReload is turned off.
type Pongo2Config struct {
	Debug      bool `json:"debug"`
	Cache      bool `json:"cache"`
	AutoReload bool `json:"auto_reload"`
}

// Config is the configuration of a view factory.
type Config struct {
	// Paths are the global search paths, highest priority first.
	Paths Paths `json:"paths"`

	// Engines lists the engines to enable. "go" is always enabled;
	// "pongo2" adds the pongo2 engine for ".j2" files.
	Engines []string `json:"engines"`

	// Pongo2 configures the pongo2 engine when it is enabled.
	Pongo2 Pongo2Config `json:"pongo2"`

	// Namespaces maps namespace names to their hint paths.
	Namespaces map[string][]string `json:"namespaces"`

	// Extensions are extra finder extensions, highest priority first.
	// They render with the Go engine.
	Extensions []string `json:"extensions"`

	// Shared is data every view receives.
	Shared map[string]any `json:"shared"`

	// AutoReload makes the Go engine re-parse templates that changed on disk.
	AutoReload bool `json:"auto_reload"`
}

// DefaultConfig returns a config that searches ./views with the Go engine.
func DefaultConfig() *Config {
	return &Config{
		Paths:      Paths{"./views"},
		Engines:    []string{"go"},
		Pongo2:     Pongo2Config{Cache: true, AutoReload: true},
		Namespaces: map[string][]string{},
		Extensions: []string{},
		Shared:     map[string]any{},
		AutoReload: false,
	}
}

// Validate reports whether the config can build a factory.
func (c *Config) Validate() error {
	if len(c.Paths) == 0 {
		return ErrNoPaths
	}
	for i, p := range c.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("paths[%d] is empty: %w", i, ErrNoPaths)
		}
	}
	for ns, hints := range c.Namespaces {
		if ns == "" || strings.Contains(ns, "::") {
			return fmt.Errorf("invalid namespace name %q", ns)
		}
		if len(hints) == 0 {
			return fmt.Errorf("namespace %q has no paths", ns)
		}
	}
	return nil
}

// Load reads the config at path. Files ending in ".hcl" are decoded with
// LoadHCL; anything else is JSON. A missing JSON file is created with
// default values and the defaults are returned.
func Load(path string) (*Config, error) {
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		return LoadHCL(path)
	}

	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err = Save(path, config); err != nil {
				return nil, err
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes config to path as indented JSON, replacing the file
// atomically.
func Save(path string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
