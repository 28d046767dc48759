package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dagaz/internal/query"
	"github.com/starford/dagaz/internal/source"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Source kinds.
const (
	SourceDir    = "dir"
	SourceBucket = "bucket"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Source SourceConfig      `yaml:"source"`
	Store  StoreConfig       `yaml:"store"`
	Sync   SyncConfig        `yaml:"sync"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// SourceConfig selects where preset files come from.
//
// Kind controls the backend:
//   - "dir" (default): a local directory walked recursively.
//   - "bucket": a remote object listing reached over HTTP.
type SourceConfig struct {
	Kind    string             `yaml:"kind"`
	Dir     DirSourceConfig    `yaml:"dir"`
	Bucket  BucketSourceConfig `yaml:"bucket"`
	Prefix  string             `yaml:"prefix"`
	Suffix  string             `yaml:"suffix"`
	Exclude string             `yaml:"exclude"`
}

// DirSourceConfig holds the local directory backend settings.
type DirSourceConfig struct {
	Path string `yaml:"path"`
}

// BucketSourceConfig holds the remote bucket backend settings.
type BucketSourceConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	// Normalise empty kind to "dir" so a bare config works out of the box.
	if c.Kind == "" {
		c.Kind = SourceDir
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Kind, validation.Required, validation.In(SourceDir, SourceBucket)),
	); err != nil {
		return err
	}
	switch c.Kind {
	case SourceDir:
		if c.Dir.Path == "" {
			return fmt.Errorf("source: kind is %q but dir.path is empty", SourceDir)
		}
	case SourceBucket:
		if c.Bucket.URL == "" {
			return fmt.Errorf("source: kind is %q but bucket.url is empty", SourceBucket)
		}
	}
	return nil
}

// Filter returns the name filter applied to source listings.
func (c *SourceConfig) Filter() source.ListFilter {
	return source.ListFilter{Prefix: c.Prefix, Suffix: c.Suffix, Exclude: c.Exclude}
}

// StoreConfig selects where flattened records live.
//
// Kind controls the backend:
//   - "sqlite" (default): a SQLite database file, durable across restarts.
//   - "memory": process-local, rebuilt from the source on start.
type StoreConfig struct {
	Kind         string `yaml:"kind"`
	Path         string `yaml:"path"`
	Presence     string `yaml:"presence"`
	MaxResults   int    `yaml:"max_results"`
	PreviewLimit int    `yaml:"preview_limit"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Kind == "" {
		c.Kind = StoreSQLite
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Kind, validation.Required, validation.In(StoreMemory, StoreSQLite)),
	); err != nil {
		return err
	}
	if c.Kind == StoreSQLite && c.Path == "" {
		return fmt.Errorf("store: kind is %q but path is empty", StoreSQLite)
	}
	if _, err := query.ParsePresence(c.Presence); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// SyncConfig controls the reconciliation passes.
type SyncConfig struct {
	Initial bool `yaml:"initial"`
	Watch   bool `yaml:"watch"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
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
		Source: SourceConfig{
			Kind:   SourceDir,
			Dir:    DirSourceConfig{Path: "./presets"},
			Suffix: ".json",
		},
		Store: StoreConfig{
			Kind:         StoreSQLite,
			Path:         "./dagaz.db",
			Presence:     "key",
			MaxResults:   10000,
			PreviewLimit: 100,
		},
		Sync: SyncConfig{
			Initial: true,
			Watch:   true,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
