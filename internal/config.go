package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Watch     WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	return c.Watch.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, routes logs to a rotating file instead of
	// stdout. Required for MCP mode, where stdout carries the protocol.
	LogFile string     `yaml:"log_file"`
	HTTP    HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkspaceConfig holds the path to the spec workspace root. Feature
// folders always live under `specs/` inside the root; that layout is
// part of the document path identity, not a knob.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// WatchConfig holds file-watcher timing configuration.
type WatchConfig struct {
	DebounceMS        int `yaml:"debounce_ms"`
	FallbackRescanSec int `yaml:"fallback_rescan_sec"`
}

// Validate validates the watcher configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceMS, validation.Required, validation.Min(10), validation.Max(10000)),
		validation.Field(&c.FallbackRescanSec, validation.Required, validation.Min(1), validation.Max(3600)),
	)
}

// Debounce returns the per-path quiet window as a duration.
func (c *WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// FallbackRescan returns the degraded-mode rescan interval as a duration.
func (c *WatchConfig) FallbackRescan() time.Duration {
	return time.Duration(c.FallbackRescanSec) * time.Second
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8484,
			},
		},
		Workspace: WorkspaceConfig{
			Root: ".",
		},
		Watch: WatchConfig{
			DebounceMS:        250,
			FallbackRescanSec: 30,
		},
	}
}
