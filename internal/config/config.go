package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ADS-B source types
const (
	SourceLocal    = "local"    // readsb / dump1090 aircraft.json over HTTP
	SourceExternal = "external" // adsb.lol / ADS-B Exchange style aggregator API
	SourceFile     = "file"     // the same JSON format read from disk
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server    ServerConfig    `toml:"server"`    // HTTP server settings
	Logging   LoggingConfig   `toml:"logging"`   // Application logging settings
	Storage   StorageConfig   `toml:"storage"`   // Event history persistence
	ADSB      ADSBConfig      `toml:"adsb"`      // Aircraft telemetry source
	Engine    EngineConfig    `toml:"engine"`    // RWSL decision engine tuning
	Airport   AirportConfig   `toml:"airport"`   // Airport layout files
	Recorder  RecorderConfig  `toml:"recorder"`  // Black-box cycle recording
	WebSocket WebSocketConfig `toml:"websocket"` // Push channel settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	AdditionalPorts    []int    `toml:"additional_ports"`      // Additional HTTP ports to listen on (useful for multiple interfaces)
	StaticFilesDir     string   `toml:"static_files_dir"`      // Optional directory with a dashboard to serve at /
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`        // Log level: "debug", "info", "warn", or "error"
	Format     string `toml:"format"`       // Log format: "json" (structured) or "console" (human-readable)
	FilePath   string `toml:"file_path"`    // Optional rotated log file written alongside stdout
	MaxSizeMB  int    `toml:"max_size_mb"`  // Rotate after this many megabytes
	MaxBackups int    `toml:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `toml:"max_age_days"` // Days to keep rotated files
	Compress   bool   `toml:"compress"`     // Gzip rotated files
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Enabled        bool   `toml:"enabled"`          // Persist conflicts, light transitions and health samples
	SQLiteBasePath string `toml:"sqlite_base_path"` // Directory for daily databases (co-rwsl-YYYY-MM-DD.db)
	HealthEvery    int    `toml:"health_every"`     // Store one health sample every N cycles
	RetentionDays  int    `toml:"retention_days"`   // Delete daily databases older than this (0 = keep forever)
}

// ADSBConfig contains aircraft telemetry source configuration
type ADSBConfig struct {
	// Allowed values:
	// - "local": readsb / dump1090 / tar1090 aircraft.json over HTTP
	// - "external": an aggregator API returning {"ac": [...]}
	// - "file": the same format read from a file, for replays and bench testing
	SourceType        string `toml:"source_type"`
	LocalSourceURL    string `toml:"local_source_url"`         // e.g. http://192.168.1.10/tar1090/data/aircraft.json
	ExternalSourceURL string `toml:"external_source_url"`      // e.g. https://api.adsb.lol/v2/point/37.46/126.44/10
	FilePath          string `toml:"file_path"`                // used when source_type = "file"
	FetchIntervalMs   int    `toml:"fetch_interval_ms"`        // How often to fetch and run a decision cycle
	TimeoutMs         int    `toml:"timeout_ms"`               // HTTP timeout per fetch
	MaxPositionAgeSec int    `toml:"max_position_age_seconds"` // Targets whose position is older than this are skipped
}

// EngineConfig tunes the decision engine
type EngineConfig struct {
	CycleBudgetMs   int     `toml:"cycle_budget_ms"`   // Processing time above which a cycle counts as slow
	GridCellSize    float64 `toml:"grid_cell_size"`    // Spatial index cell size in meters
	HistoryWindowMs int     `toml:"history_window_ms"` // Speed history kept per aircraft for acceleration
	HistorySamples  int     `toml:"history_samples"`   // Maximum speed samples kept per aircraft
	AlertSeverity   string  `toml:"alert_severity"`    // Minimum severity pushed as conflict_alert
}

// AirportConfig points at the airport layout
type AirportConfig struct {
	Path            string `toml:"path"`              // Airport TOML or JSON file
	WakeCatalogPath string `toml:"wake_catalog_path"` // Optional icao_type,category CSV
}

// RecorderConfig contains black-box recording configuration
type RecorderConfig struct {
	Enabled    bool   `toml:"enabled"`     // Record every cycle
	Dir        string `toml:"dir"`         // Directory for daily cycle-YYYY-MM-DD.msgpack.zst files
	Level      int    `toml:"level"`       // zstd level 1-4 (fastest to best compression)
	FlushEvery int    `toml:"flush_every"` // Flush buffered records to disk every N cycles
}

// WebSocketConfig contains push channel configuration
type WebSocketConfig struct {
	SendBuffer int `toml:"send_buffer"` // Messages queued per client before it is dropped
}

// SourceURL returns the URL polled for the configured source type
func (c ADSBConfig) SourceURL() string {
	if c.SourceType == SourceExternal {
		return c.ExternalSourceURL
	}
	return c.LocalSourceURL
}

// FetchInterval returns the cycle period
func (c ADSBConfig) FetchInterval() time.Duration {
	return time.Duration(c.FetchIntervalMs) * time.Millisecond
}

// Timeout returns the per-fetch timeout
func (c ADSBConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// MaxPositionAge returns the oldest acceptable position report
func (c ADSBConfig) MaxPositionAge() time.Duration {
	return time.Duration(c.MaxPositionAgeSec) * time.Second
}

// CycleBudget returns the processing time budget
func (c EngineConfig) CycleBudget() time.Duration {
	return time.Duration(c.CycleBudgetMs) * time.Millisecond
}

// HistoryWindow returns the speed history window
func (c EngineConfig) HistoryWindow() time.Duration {
	return time.Duration(c.HistoryWindowMs) * time.Millisecond
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	portsSeen := make(map[int]bool)
	portsSeen[c.Server.Port] = true
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid additional server port: %d", p)
		}
		if portsSeen[p] {
			return fmt.Errorf("duplicate port configured: %d (primary or additional)", p)
		}
		portsSeen[p] = true
	}
	if c.Server.StaticFilesDir != "" {
		if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
			return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
		}
	}

	// Logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s (must be 'console' or 'json')", c.Logging.Format)
	}
	if c.Logging.FilePath != "" && c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 100
	}

	// ADS-B
	if c.ADSB.SourceType == "" {
		c.ADSB.SourceType = SourceLocal
	}
	switch c.ADSB.SourceType {
	case SourceLocal:
		if c.ADSB.LocalSourceURL == "" {
			return fmt.Errorf("local_source_url is required when source_type is local")
		}
	case SourceExternal:
		if c.ADSB.ExternalSourceURL == "" {
			return fmt.Errorf("external_source_url is required when source_type is external")
		}
	case SourceFile:
		if c.ADSB.FilePath == "" {
			return fmt.Errorf("file_path is required when source_type is file")
		}
	default:
		return fmt.Errorf("invalid ADSB source type: %s (must be 'local', 'external' or 'file')", c.ADSB.SourceType)
	}
	if c.ADSB.FetchIntervalMs <= 0 {
		c.ADSB.FetchIntervalMs = 1000
	}
	if c.ADSB.TimeoutMs <= 0 {
		c.ADSB.TimeoutMs = c.ADSB.FetchIntervalMs
	}
	if c.ADSB.MaxPositionAgeSec <= 0 {
		c.ADSB.MaxPositionAgeSec = 10
	}

	// Engine
	if c.Engine.CycleBudgetMs <= 0 {
		c.Engine.CycleBudgetMs = 900
	}
	if c.Engine.GridCellSize < 0 {
		return fmt.Errorf("grid_cell_size must not be negative: %f", c.Engine.GridCellSize)
	}
	if c.Engine.HistoryWindowMs <= 0 {
		c.Engine.HistoryWindowMs = 3000
	}
	if c.Engine.HistorySamples <= 0 {
		c.Engine.HistorySamples = 10
	}
	if c.Engine.AlertSeverity == "" {
		c.Engine.AlertSeverity = "HIGH"
	}
	switch c.Engine.AlertSeverity {
	case "LOW", "MEDIUM", "HIGH", "CRITICAL", "EMERGENCY":
	default:
		return fmt.Errorf("invalid alert_severity: %s", c.Engine.AlertSeverity)
	}

	// Airport
	if c.Airport.Path == "" {
		return fmt.Errorf("airport.path is required")
	}

	// Storage
	if c.Storage.Enabled && c.Storage.SQLiteBasePath == "" {
		c.Storage.SQLiteBasePath = "data"
	}
	if c.Storage.HealthEvery <= 0 {
		c.Storage.HealthEvery = 10
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative: %d", c.Storage.RetentionDays)
	}

	// Recorder
	if c.Recorder.Enabled && c.Recorder.Dir == "" {
		c.Recorder.Dir = "recordings"
	}
	if c.Recorder.Level == 0 {
		c.Recorder.Level = 1
	}
	if c.Recorder.Level < 1 || c.Recorder.Level > 4 {
		return fmt.Errorf("invalid recorder level: %d (must be 1-4)", c.Recorder.Level)
	}
	if c.Recorder.FlushEvery <= 0 {
		c.Recorder.FlushEvery = 10
	}

	// WebSocket
	if c.WebSocket.SendBuffer <= 0 {
		c.WebSocket.SendBuffer = 256
	}

	return nil
}
