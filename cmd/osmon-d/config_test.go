package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rmax-ai/osmon/pkg/store"
)

func TestLoadConfig_PollIntervalValidation(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		envVars     map[string]string
		expectError bool
		errorSubstr string
	}{
		{
			name:        "valid poll interval from flag",
			args:        []string{"-poll-interval", "5s"},
			expectError: false,
		},
		{
			name:        "zero poll interval from flag",
			args:        []string{"-poll-interval", "0s"},
			expectError: true,
			errorSubstr: "poll interval must be positive",
		},
		{
			name:        "negative poll interval from flag",
			args:        []string{"-poll-interval", "-5s"},
			expectError: true,
			errorSubstr: "poll interval must be positive",
		},
		{
			name:        "valid poll interval from env",
			envVars:     map[string]string{"OSMON_POLL_INTERVAL": "5s"},
			expectError: false,
		},
		{
			name:        "zero poll interval from env",
			envVars:     map[string]string{"OSMON_POLL_INTERVAL": "0s"},
			expectError: true,
			errorSubstr: "OSMON_POLL_INTERVAL must be positive",
		},
		{
			name:        "invalid poll interval format from flag",
			args:        []string{"-poll-interval", "invalid"},
			expectError: true,
			errorSubstr: "invalid poll interval",
		},
		{
			name:        "invalid poll interval format from env",
			envVars:     map[string]string{"OSMON_POLL_INTERVAL": "invalid"},
			expectError: true,
			errorSubstr: "invalid OSMON_POLL_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig(tt.args)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errorSubstr)
				} else if !strings.Contains(err.Error(), tt.errorSubstr) {
					t.Errorf("expected error containing %q, got %q", tt.errorSubstr, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				} else if cfg.PollInterval != 5*time.Second {
					t.Errorf("expected 5s poll interval, got %v", cfg.PollInterval)
				}
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig([]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.PollInterval != 10*time.Second {
		t.Errorf("expected default poll interval of 10s, got %v", cfg.PollInterval)
	}
	if cfg.Addr != defaultAddr {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if !filepath.IsAbs(cfg.DBPath) {
		t.Errorf("DBPath %q should be absolute", cfg.DBPath)
	}
	if cfg.Redis.Addr != "" || cfg.Archive.Enabled {
		t.Errorf("redis and archiving should be off by default: %+v", cfg)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "osmon.yaml")
	doc := `
addr: 127.0.0.1:9000
backend_url: http://sim:8080/api
poll_interval: 3s
log_level: debug
redis:
  addr: redis:6379
archive:
  enabled: true
  retention: 48h
retention:
  by_type:
    snapshot_observed: 24h
notifier:
  urls: [http://hooks.local/a]
  max_retries: 5
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OSMON_BACKEND_URL", "http://env:8080/api")
	t.Setenv("OSMON_WEBHOOK_URLS", "http://hooks.local/b, http://hooks.local/c")

	cfg, err := LoadConfig([]string{"-config", path, "-addr", "127.0.0.1:9100"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Addr != "127.0.0.1:9100" {
		t.Errorf("flag should win over file: Addr = %q", cfg.Addr)
	}
	if cfg.BackendURL != "http://env:8080/api" {
		t.Errorf("env should win over file: BackendURL = %q", cfg.BackendURL)
	}
	if cfg.PollInterval != 3*time.Second || cfg.LogLevel != "debug" {
		t.Errorf("file values not applied: %v %q", cfg.PollInterval, cfg.LogLevel)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.CacheTTL != defaultCacheTTL {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Retention != 48*time.Hour {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if cfg.Retention.ByType[store.EventTypeSnapshotObserved] != 24*time.Hour {
		t.Errorf("Retention.ByType = %v", cfg.Retention.ByType)
	}
	if cfg.Retention.ByType[store.EventTypeBackendError] != 7*24*time.Hour {
		t.Error("file should merge into the default retention windows")
	}
	if len(cfg.Notifier.URLs) != 2 || cfg.Notifier.URLs[1] != "http://hooks.local/c" || cfg.Notifier.MaxRetries != 5 {
		t.Errorf("Notifier = %+v", cfg.Notifier)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		errorSubstr string
	}{
		{"empty addr", []string{"-addr", " "}, "addr cannot be empty"},
		{"bad backend scheme", []string{"-backend", "ftp://sim"}, "must be http or https"},
		{"missing config file", []string{"-config", "/nonexistent/osmon.yaml"}, "read config"},
		{"unknown flag", []string{"-nope"}, "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.errorSubstr) {
				t.Errorf("err = %v, want %q", err, tt.errorSubstr)
			}
		})
	}
}
