package deduplication

import (
	"strings"
	"testing"
	"time"
)

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg Config)
	}{
		{
			name:    "no environment variables uses defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg Config) {
				defaults := DefaultConfig()
				if cfg != defaults {
					t.Errorf("ConfigFromEnv() = %v, want %v", cfg, defaults)
				}
			},
		},
		{
			name: "valid custom configuration",
			envVars: map[string]string{
				"DEDUPER_REPORTER_LOGIN":    "crash-bot",
				"DEDUPER_FRAME_PREFIX":      "\tat org.example",
				"DEDUPER_PLACEHOLDER_TITLE": "Crash",
				"DEDUPER_SYNC_CONCURRENCY":  "16",
				"DEDUPER_UPDATE_TITLES":     "false",
				"DEDUPER_PASS_TIMEOUT_SECS": "120",
				"DEDUPER_RUN_ON_START":      "false",
				"DEDUPER_WEBHOOK_WORKERS":   "2",
				"DEDUPER_WEBHOOK_QUEUE":     "10",
			},
			check: func(t *testing.T, cfg Config) {
				if cfg.ReporterLogin != "crash-bot" {
					t.Errorf("ReporterLogin = %q, want crash-bot", cfg.ReporterLogin)
				}
				if cfg.FramePrefix != "\tat org.example" {
					t.Errorf("FramePrefix = %q", cfg.FramePrefix)
				}
				if cfg.PlaceholderTitle != "Crash" {
					t.Errorf("PlaceholderTitle = %q, want Crash", cfg.PlaceholderTitle)
				}
				if cfg.Concurrency != 16 {
					t.Errorf("Concurrency = %d, want 16", cfg.Concurrency)
				}
				if cfg.UpdateTitles {
					t.Errorf("UpdateTitles = true, want false")
				}
				if cfg.PassTimeout != 2*time.Minute {
					t.Errorf("PassTimeout = %v, want 2m", cfg.PassTimeout)
				}
				if cfg.RunOnStart {
					t.Errorf("RunOnStart = true, want false")
				}
				if cfg.WebhookWorkers != 2 {
					t.Errorf("WebhookWorkers = %d, want 2", cfg.WebhookWorkers)
				}
				if cfg.WebhookQueueSize != 10 {
					t.Errorf("WebhookQueueSize = %d, want 10", cfg.WebhookQueueSize)
				}
			},
		},
		{
			name:    "invalid integer",
			envVars: map[string]string{"DEDUPER_SYNC_CONCURRENCY": "many"},
			wantErr: true,
		},
		{
			name:    "invalid bool",
			envVars: map[string]string{"DEDUPER_UPDATE_TITLES": "sometimes"},
			wantErr: true,
		},
		{
			name:    "out of range concurrency",
			envVars: map[string]string{"DEDUPER_SYNC_CONCURRENCY": "0"},
			wantErr: true,
		},
		{
			name:    "too many workers",
			envVars: map[string]string{"DEDUPER_WEBHOOK_WORKERS": "1000"},
			wantErr: true,
		},
	}

	clearEnv := []string{
		"DEDUPER_REPORTER_LOGIN",
		"DEDUPER_FRAME_PREFIX",
		"DEDUPER_PLACEHOLDER_TITLE",
		"DEDUPER_SYNC_CONCURRENCY",
		"DEDUPER_UPDATE_TITLES",
		"DEDUPER_PASS_TIMEOUT_SECS",
		"DEDUPER_RUN_ON_START",
		"DEDUPER_WEBHOOK_WORKERS",
		"DEDUPER_WEBHOOK_QUEUE",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range clearEnv {
				t.Setenv(key, "")
			}
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := ConfigFromEnv()
			if (err != nil) != tt.wantErr {
				t.Errorf("ConfigFromEnv() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty reporter", mutate: func(c *Config) { c.ReporterLogin = "" }, wantErr: "reporter_login"},
		{name: "empty prefix", mutate: func(c *Config) { c.FramePrefix = "" }, wantErr: "frame_prefix"},
		{name: "empty placeholder", mutate: func(c *Config) { c.PlaceholderTitle = "" }, wantErr: "placeholder_title"},
		{name: "concurrency too large", mutate: func(c *Config) { c.Concurrency = 65 }, wantErr: "concurrency"},
		{name: "negative timeout", mutate: func(c *Config) { c.PassTimeout = -time.Second }, wantErr: "pass_timeout"},
		{name: "zero workers", mutate: func(c *Config) { c.WebhookWorkers = 0 }, wantErr: "webhook_workers"},
		{name: "negative queue", mutate: func(c *Config) { c.WebhookQueueSize = -1 }, wantErr: "webhook_queue_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
