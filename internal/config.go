package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/postdesk/internal/storage"
	"github.com/starford/postdesk/internal/validate"
	"github.com/starford/postdesk/internal/workflow"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Store    storage.Config    `yaml:"store"`
	Composer ComposerConfig    `yaml:"composer"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	return c.Composer.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
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
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ComposerConfig tunes the composer workflow. Latencies simulate the
// round trip of a remote save and may be zero.
type ComposerConfig struct {
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	AutosaveLatency  time.Duration `yaml:"autosave_latency"`
	SaveLatency      time.Duration `yaml:"save_latency"`
	PublishLatency   time.Duration `yaml:"publish_latency"`
	Author           string        `yaml:"author"`
	MaxCoverBytes    int64         `yaml:"max_cover_bytes"`
}

// Validate validates the composer configuration.
func (c *ComposerConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.AutosaveInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.AutosaveLatency, validation.Min(time.Duration(0))),
		validation.Field(&c.SaveLatency, validation.Min(time.Duration(0))),
		validation.Field(&c.PublishLatency, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxCoverBytes, validation.Required, validation.Min(int64(1))),
	); err != nil {
		return fmt.Errorf("composer: %w", err)
	}
	return nil
}

// WorkflowOptions maps the section onto workflow options.
func (c *ComposerConfig) WorkflowOptions() workflow.Options {
	return workflow.Options{
		AutosaveInterval: c.AutosaveInterval,
		AutosaveLatency:  c.AutosaveLatency,
		SaveLatency:      c.SaveLatency,
		PublishLatency:   c.PublishLatency,
		Author:           c.Author,
		MaxCoverBytes:    c.MaxCoverBytes,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: storage.Config{
			Driver: storage.DriverFS,
			Path:   "./data",
		},
		Composer: ComposerConfig{
			AutosaveInterval: 30 * time.Second,
			AutosaveLatency:  500 * time.Millisecond,
			SaveLatency:      time.Second,
			PublishLatency:   1500 * time.Millisecond,
			Author:           workflow.DefaultAuthor,
			MaxCoverBytes:    validate.MaxCoverBytes,
		},
	}
}
