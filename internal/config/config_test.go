package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalTOML = `
[server]
port = 8080

[adsb]
local_source_url = "http://127.0.0.1/data/aircraft.json"

[airport]
path = "configs/airports/rksi.toml"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.ADSB.SourceType != SourceLocal {
		t.Errorf("source type = %q", cfg.ADSB.SourceType)
	}
	if cfg.ADSB.FetchInterval() != time.Second || cfg.ADSB.Timeout() != time.Second {
		t.Errorf("interval %v timeout %v", cfg.ADSB.FetchInterval(), cfg.ADSB.Timeout())
	}
	if cfg.Engine.CycleBudget() != 900*time.Millisecond || cfg.Engine.HistoryWindow() != 3*time.Second {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Engine.HistorySamples != 10 || cfg.Engine.AlertSeverity != "HIGH" {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.WebSocket.SendBuffer != 256 || cfg.Recorder.Level != 1 {
		t.Errorf("websocket %d recorder level %d", cfg.WebSocket.SendBuffer, cfg.Recorder.Level)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"duplicate port", func(c *Config) { c.Server.AdditionalPorts = []int{8080} }, "duplicate port"},
		{"missing url", func(c *Config) { c.ADSB.LocalSourceURL = "" }, "local_source_url is required"},
		{"missing file", func(c *Config) { c.ADSB.SourceType = SourceFile }, "file_path is required"},
		{"missing external url", func(c *Config) { c.ADSB.SourceType = SourceExternal }, "external_source_url is required"},
		{"unknown source", func(c *Config) { c.ADSB.SourceType = "opensky" }, "invalid ADSB source type"},
		{"missing airport", func(c *Config) { c.Airport.Path = "" }, "airport.path is required"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging format"},
		{"bad severity", func(c *Config) { c.Engine.AlertSeverity = "SEVERE" }, "invalid alert_severity"},
		{"bad level", func(c *Config) { c.Recorder.Level = 9 }, "invalid recorder level"},
		{"missing static dir", func(c *Config) { c.Server.StaticFilesDir = "/nonexistent/www" }, "static files directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalTOML))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadWithFallback(t *testing.T) {
	path := writeConfig(t, minimalTOML)
	cfg, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}

	if _, err := LoadWithFallback(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error when no config exists")
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	if _, err := Load(writeConfig(t, "[server\nport = ")); err == nil {
		t.Error("expected decode error")
	}
}
