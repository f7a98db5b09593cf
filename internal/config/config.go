package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Engine contains configuration for the transfer engine.
type Engine struct {
	ListenPort           int  `toml:"listen_port"`
	DHT                  bool `toml:"dht"`
	Seed                 bool `toml:"seed"`
	DownloadRateLimitKiB int  `toml:"download_rate_limit_kib"`
	UploadRateLimitKiB   int  `toml:"upload_rate_limit_kib"`
	MaxConnections       int  `toml:"max_connections"`
	CallTimeout          int  `toml:"call_timeout"`
	ResolveTimeout       int  `toml:"resolve_timeout"`
}

// Scheduler contains configuration for transfer admission.
type Scheduler struct {
	MaxActive          int `toml:"max_active"`
	KickInterval       int `toml:"kick_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Poller contains configuration for progress polling.
type Poller struct {
	Interval int `toml:"interval"`
}

// Storage contains configuration for free-space monitoring.
type Storage struct {
	WarningFreeGiB  int `toml:"warning_free_gib"`
	CriticalFreeGiB int `toml:"critical_free_gib"`
	RecoveryFreeGiB int `toml:"recovery_free_gib"`
	ActiveInterval  int `toml:"active_interval"`
	IdleInterval    int `toml:"idle_interval"`
}

// Import contains configuration for moving finished downloads into the catalog.
type Import struct {
	Auto               bool   `toml:"auto"`
	MaxAttempts        int    `toml:"max_attempts"`
	BackoffBaseSeconds int    `toml:"backoff_base_seconds"`
	Workers            int    `toml:"workers"`
	RemoveStaging      bool   `toml:"remove_staging"`
	DefaultDestination string `toml:"default_destination"`
}

// Catalog contains configuration for the content catalog destinations.
type Catalog struct {
	VideoDir      string `toml:"video_dir"`
	AudioDir      string `toml:"audio_dir"`
	OtherDir      string `toml:"other_dir"`
	RescanEnabled bool   `toml:"rescan_enabled"`
	RescanURL     string `toml:"rescan_url"`
	RescanToken   string `toml:"rescan_token"`
	RescanTimeout int    `toml:"rescan_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	Added              bool   `toml:"added"`
	Started            bool   `toml:"started"`
	Completed          bool   `toml:"completed"`
	Imported           bool   `toml:"imported"`
	Storage            bool   `toml:"storage"`
	Errors             bool   `toml:"errors"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format             string            `toml:"format"`
	Level              string            `toml:"level"`
	RetentionDays      int               `toml:"retention_days"`
	ComponentOverrides map[string]string `toml:"component_overrides"`
}

// Config encapsulates all configuration values for Capstan.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Engine: transfer engine ports, limits, and call timeouts
//   - Scheduler: admission concurrency and kick cadence
//   - Poller: progress polling cadence
//   - Storage: free-space thresholds and monitor cadence
//   - Import: catalog import retries and worker pool
//   - Catalog: destination directories and rescan endpoint
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engine        Engine        `toml:"engine"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Poller        Poller        `toml:"poller"`
	Storage       Storage       `toml:"storage"`
	Import        Import        `toml:"import"`
	Catalog       Catalog       `toml:"catalog"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/capstan/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// ResolvePath reports where configuration would be loaded from without
// parsing the file. The boolean indicates whether the file exists.
func ResolvePath(path string) (string, bool, error) {
	return resolveConfigPath(path)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/capstan/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("capstan.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
		for _, dir := range c.DestinationDirs() {
			_ = os.MkdirAll(dir, 0o755)
		}
	}
	return nil
}

// DestinationDirs returns the resolved catalog destination directories.
// Relative entries are rooted under LibraryDir.
func (c *Config) DestinationDirs() []string {
	dirs := make([]string, 0, 3)
	for _, dir := range []string{c.Catalog.VideoDir, c.Catalog.AudioDir, c.Catalog.OtherDir} {
		if resolved := c.ResolveLibraryPath(dir); resolved != "" {
			dirs = append(dirs, resolved)
		}
	}
	return dirs
}

// ResolveLibraryPath roots a relative catalog directory under LibraryDir.
// Absolute paths are returned unchanged; empty input yields empty output.
func (c *Config) ResolveLibraryPath(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return ""
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(c.Paths.LibraryDir, dir)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
