// Package config loads the deduper configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev/deduper/internal/deduplication"
	"github.com/mcdev/deduper/internal/server"
	"github.com/mcdev/deduper/internal/storage"
	"github.com/mcdev/deduper/internal/tracker"
)

// DefaultPath is where commands look for the config file
const DefaultPath = "deduper.yaml"

// Config is the full deduper configuration
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	GitHub   GitHubConfig         `yaml:"github"`
	Sync     deduplication.Config `yaml:"sync"`
	Log      LogConfig            `yaml:"log"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects and configures the storage backend
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver storage.Driver `yaml:"driver"`

	// Path is the SQLite database file
	Path string `yaml:"path"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

// GitHubConfig identifies the GitHub App and the repository it manages
type GitHubConfig struct {
	AppID          string `yaml:"app_id"`
	PrivateKeyFile string `yaml:"private_key_file"`
	Organization   string `yaml:"organization"`
	Repository     string `yaml:"repository"`

	// InstallationID skips the installation lookup when set
	InstallationID int64 `yaml:"installation_id"`

	WebhookSecret string `yaml:"webhook_secret"`

	// BaseURL overrides the API endpoint, for GitHub Enterprise
	BaseURL string `yaml:"base_url"`

	// RequestsPerSecond limits outbound API calls. 0 disables the limit.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// LogConfig configures the root logger
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`

	// Format is text or json
	Format string `yaml:"format"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   storage.DriverSQLite,
			Path:     "deduper.db",
			Host:     "localhost",
			Port:     5432,
			Name:     "deduper",
			User:     "deduper",
			SSLMode:  "prefer",
			MaxConns: 10,
		},
		GitHub: GitHubConfig{
			PrivateKeyFile:    "private-key.pem",
			Organization:      "minecraft-dev",
			Repository:        "MinecraftDev",
			RequestsPerSecond: 10,
		},
		Sync: deduplication.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies DEDUPER_*
// environment overrides and validates the result. A missing file yields an
// error matching fs.ErrNotExist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("config file %s is empty", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("config file %s already exists", path)
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}

// ApplyEnv overrides fields from environment variables
//
// Environment variables:
//   - DEDUPER_SERVER_HOST, DEDUPER_SERVER_PORT: HTTP listen address
//   - DEDUPER_DB_DRIVER: sqlite or postgres
//   - DEDUPER_DB_PATH: SQLite database file
//   - DEDUPER_DB_HOST, DEDUPER_DB_PORT, DEDUPER_DB_NAME, DEDUPER_DB_USER,
//     DEDUPER_DB_PASSWORD, DEDUPER_DB_SSLMODE: PostgreSQL connection
//   - DEDUPER_GITHUB_APP_ID, DEDUPER_GITHUB_PRIVATE_KEY_FILE,
//     DEDUPER_GITHUB_INSTALLATION_ID: GitHub App credentials
//   - DEDUPER_WEBHOOK_SECRET: Webhook shared secret
//   - DEDUPER_LOG_LEVEL, DEDUPER_LOG_FORMAT: Logging
//
// The sync section reads the variables documented on deduplication.Config.
func (c *Config) ApplyEnv() error {
	parseEnvString("DEDUPER_SERVER_HOST", &c.Server.Host)
	if err := parseEnvInt("DEDUPER_SERVER_PORT", &c.Server.Port); err != nil {
		return err
	}

	var driver string
	parseEnvString("DEDUPER_DB_DRIVER", &driver)
	if driver != "" {
		c.Database.Driver = storage.Driver(driver)
	}
	parseEnvString("DEDUPER_DB_PATH", &c.Database.Path)
	parseEnvString("DEDUPER_DB_HOST", &c.Database.Host)
	if err := parseEnvInt("DEDUPER_DB_PORT", &c.Database.Port); err != nil {
		return err
	}
	parseEnvString("DEDUPER_DB_NAME", &c.Database.Name)
	parseEnvString("DEDUPER_DB_USER", &c.Database.User)
	parseEnvString("DEDUPER_DB_PASSWORD", &c.Database.Password)
	parseEnvString("DEDUPER_DB_SSLMODE", &c.Database.SSLMode)

	parseEnvString("DEDUPER_GITHUB_APP_ID", &c.GitHub.AppID)
	parseEnvString("DEDUPER_GITHUB_PRIVATE_KEY_FILE", &c.GitHub.PrivateKeyFile)
	if err := parseEnvInt64("DEDUPER_GITHUB_INSTALLATION_ID", &c.GitHub.InstallationID); err != nil {
		return err
	}
	parseEnvString("DEDUPER_WEBHOOK_SECRET", &c.GitHub.WebhookSecret)

	parseEnvString("DEDUPER_LOG_LEVEL", &c.Log.Level)
	parseEnvString("DEDUPER_LOG_FORMAT", &c.Log.Format)

	return c.Sync.ApplyEnv()
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout cannot be negative (got %v)", c.Server.ShutdownTimeout)
	}
	if err := c.StorageConfig().Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.GitHub.Organization == "" {
		return fmt.Errorf("github.organization is required")
	}
	if c.GitHub.Repository == "" {
		return fmt.Errorf("github.repository is required")
	}
	if c.GitHub.RequestsPerSecond < 0 {
		return fmt.Errorf("github.requests_per_second cannot be negative (got %v)", c.GitHub.RequestsPerSecond)
	}
	if c.GitHub.InstallationID < 0 {
		return fmt.Errorf("github.installation_id cannot be negative (got %d)", c.GitHub.InstallationID)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json' (got %q)", c.Log.Format)
	}
	return nil
}

// ValidateGitHubApp checks the settings needed to talk to GitHub
func (c *Config) ValidateGitHubApp() error {
	if c.GitHub.AppID == "" {
		return fmt.Errorf("github.app_id is required")
	}
	if c.GitHub.PrivateKeyFile == "" {
		return fmt.Errorf("github.private_key_file is required")
	}
	return nil
}

// StorageConfig returns the storage backend configuration
func (c *Config) StorageConfig() *storage.Config {
	return &storage.Config{
		Driver: c.Database.Driver,
		Path:   c.Database.Path,
		Postgres: storage.PostgresConfig{
			Host:     c.Database.Host,
			Port:     c.Database.Port,
			Database: c.Database.Name,
			User:     c.Database.User,
			Password: c.Database.Password,
			SSLMode:  c.Database.SSLMode,
			MaxConns: c.Database.MaxConns,
		},
	}
}

// ServerConfig returns the HTTP server configuration
func (c *Config) ServerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
	return cfg
}

// TrackerConfig returns the GitHub client configuration
func (c *Config) TrackerConfig() tracker.GitHubConfig {
	return tracker.GitHubConfig{
		Owner:             c.GitHub.Organization,
		Repo:              c.GitHub.Repository,
		BaseURL:           c.GitHub.BaseURL,
		RequestsPerSecond: c.GitHub.RequestsPerSecond,
	}
}

// AppConfig returns the GitHub App token minter configuration
func (c *Config) AppConfig() tracker.AppConfig {
	return tracker.AppConfig{
		Owner:          c.GitHub.Organization,
		Repo:           c.GitHub.Repository,
		InstallationID: c.GitHub.InstallationID,
		BaseURL:        c.GitHub.BaseURL,
	}
}

// NewLogger builds the root logger writing to w
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format must be 'text' or 'json' (got %q)", l.Format)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn or error (got %q)", s)
	}
	return level, nil
}
