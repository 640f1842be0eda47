package deduplication

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev/deduper/internal/stacktrace"
)

// DefaultReporterLogin is the account that files crash reports
const DefaultReporterLogin = "minecraft-dev-autoreporter"

// Config holds configuration for the reconciliation engine
type Config struct {
	// ReporterLogin is the tracker account whose issues are tracked.
	// Issues from anyone else are ignored.
	// Default: "minecraft-dev-autoreporter"
	ReporterLogin string `yaml:"reporter_login"`

	// FramePrefix selects the stack frames that make up a fingerprint
	// Default: "\tat com.demonwav.mcdev"
	FramePrefix string `yaml:"frame_prefix"`

	// PlaceholderTitle is the title reports are filed with before a real
	// title is derived from the exception message
	// Default: "[auto-generated] Exception in plugin"
	PlaceholderTitle string `yaml:"placeholder_title"`

	// Concurrency bounds the per-issue comment scans during a sweep
	// Default: 8
	Concurrency int `yaml:"concurrency"`

	// UpdateTitles pushes derived titles back to the tracker
	// Default: true
	UpdateTitles bool `yaml:"update_titles"`

	// PassTimeout bounds a single sweep + close pass. 0 disables the bound.
	// Default: 1 hour
	PassTimeout time.Duration `yaml:"pass_timeout"`

	// RunOnStart runs a pass immediately instead of waiting for midnight UTC
	// Default: true
	RunOnStart bool `yaml:"run_on_start"`

	// WebhookWorkers is the number of goroutines handling webhook events
	// Default: 4
	WebhookWorkers int `yaml:"webhook_workers"`

	// WebhookQueueSize is how many webhook events may wait for a worker.
	// Events arriving at a full queue are dropped; the daily sweep catches up.
	// Default: 256
	WebhookQueueSize int `yaml:"webhook_queue_size"`
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		ReporterLogin:    DefaultReporterLogin,
		FramePrefix:      stacktrace.DefaultFramePrefix,
		PlaceholderTitle: stacktrace.DefaultPlaceholderTitle,
		Concurrency:      8,
		UpdateTitles:     true,
		PassTimeout:      time.Hour,
		RunOnStart:       true,
		WebhookWorkers:   4,
		WebhookQueueSize: 256,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.ReporterLogin == "" {
		return fmt.Errorf("reporter_login is required")
	}
	if c.FramePrefix == "" {
		return fmt.Errorf("frame_prefix is required")
	}
	if c.PlaceholderTitle == "" {
		return fmt.Errorf("placeholder_title is required")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive (got %d)", c.Concurrency)
	}
	if c.Concurrency > 64 {
		return fmt.Errorf("concurrency too large (got %d, max 64)", c.Concurrency)
	}
	if c.PassTimeout < 0 {
		return fmt.Errorf("pass_timeout cannot be negative (got %v)", c.PassTimeout)
	}
	if c.WebhookWorkers <= 0 {
		return fmt.Errorf("webhook_workers must be positive (got %d)", c.WebhookWorkers)
	}
	if c.WebhookWorkers > 64 {
		return fmt.Errorf("webhook_workers too large (got %d, max 64)", c.WebhookWorkers)
	}
	if c.WebhookQueueSize < 0 {
		return fmt.Errorf("webhook_queue_size cannot be negative (got %d)", c.WebhookQueueSize)
	}
	if c.WebhookQueueSize > 100000 {
		return fmt.Errorf("webhook_queue_size too large (got %d, max 100000)", c.WebhookQueueSize)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Reporter: %s, FramePrefix: %q, Concurrency: %d, UpdateTitles: %t, "+
			"PassTimeout: %v, RunOnStart: %t, WebhookWorkers: %d, WebhookQueue: %d}",
		c.ReporterLogin, c.FramePrefix, c.Concurrency, c.UpdateTitles,
		c.PassTimeout, c.RunOnStart, c.WebhookWorkers, c.WebhookQueueSize,
	)
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables and validates the result
//
// Environment variables:
//   - DEDUPER_REPORTER_LOGIN: Account whose issues are tracked
//   - DEDUPER_FRAME_PREFIX: Stack frame prefix kept in fingerprints
//   - DEDUPER_PLACEHOLDER_TITLE: Title reports are filed with
//   - DEDUPER_SYNC_CONCURRENCY: Parallel comment scans per sweep (default: 8)
//   - DEDUPER_UPDATE_TITLES: Push derived titles to the tracker (default: true)
//   - DEDUPER_PASS_TIMEOUT_SECS: Timeout for one pass in seconds (default: 3600)
//   - DEDUPER_RUN_ON_START: Run a pass at startup (default: true)
//   - DEDUPER_WEBHOOK_WORKERS: Webhook worker goroutines (default: 4)
//   - DEDUPER_WEBHOOK_QUEUE: Webhook queue capacity (default: 256)
//
// Returns an error if any environment variable has an invalid value.
func (c *Config) ApplyEnv() error {
	parseEnvString("DEDUPER_REPORTER_LOGIN", &c.ReporterLogin)
	parseEnvString("DEDUPER_FRAME_PREFIX", &c.FramePrefix)
	parseEnvString("DEDUPER_PLACEHOLDER_TITLE", &c.PlaceholderTitle)

	if err := parseEnvInt("DEDUPER_SYNC_CONCURRENCY", &c.Concurrency); err != nil {
		return err
	}
	if err := parseEnvBool("DEDUPER_UPDATE_TITLES", &c.UpdateTitles); err != nil {
		return err
	}
	if err := parseEnvDuration("DEDUPER_PASS_TIMEOUT_SECS", &c.PassTimeout, time.Second); err != nil {
		return err
	}
	if err := parseEnvBool("DEDUPER_RUN_ON_START", &c.RunOnStart); err != nil {
		return err
	}
	if err := parseEnvInt("DEDUPER_WEBHOOK_WORKERS", &c.WebhookWorkers); err != nil {
		return err
	}
	if err := parseEnvInt("DEDUPER_WEBHOOK_QUEUE", &c.WebhookQueueSize); err != nil {
		return err
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return nil
}

// parseEnvString copies a non-empty environment variable into dest
func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable
// The multiplier is used to convert the numeric value to a duration
// (e.g., for seconds: multiplier = time.Second)
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}
