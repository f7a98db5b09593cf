package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"capstan/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "capstan", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "library") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7163" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Scheduler.MaxActive != 3 {
		t.Fatalf("unexpected max_active default: %d", cfg.Scheduler.MaxActive)
	}
	if cfg.Poller.Interval != 2 {
		t.Fatalf("unexpected poller interval default: %d", cfg.Poller.Interval)
	}
	if !cfg.Import.Auto {
		t.Fatal("expected automatic import enabled by default")
	}
	if cfg.Import.MaxAttempts != 3 || cfg.Import.BackoffBaseSeconds != 5 {
		t.Fatalf("unexpected import retry defaults: %d attempts, base %ds",
			cfg.Import.MaxAttempts, cfg.Import.BackoffBaseSeconds)
	}
	if cfg.Catalog.RescanEnabled {
		t.Fatal("expected rescan disabled by default")
	}
	if cfg.Storage.CriticalFreeGiB >= cfg.Storage.WarningFreeGiB {
		t.Fatalf("default thresholds inverted: critical %d warning %d",
			cfg.Storage.CriticalFreeGiB, cfg.Storage.WarningFreeGiB)
	}
	if cfg.Storage.RecoveryFreeGiB <= cfg.Storage.CriticalFreeGiB {
		t.Fatalf("default recovery %d not above critical %d",
			cfg.Storage.RecoveryFreeGiB, cfg.Storage.CriticalFreeGiB)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LibraryDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "capstan.toml")

	type payload struct {
		Scheduler struct {
			MaxActive    int `toml:"max_active"`
			KickInterval int `toml:"kick_interval"`
		} `toml:"scheduler"`
		Engine struct {
			ListenPort           int `toml:"listen_port"`
			DownloadRateLimitKiB int `toml:"download_rate_limit_kib"`
		} `toml:"engine"`
		Catalog struct {
			VideoDir string `toml:"video_dir"`
		} `toml:"catalog"`
	}
	custom := payload{}
	custom.Scheduler.MaxActive = 8
	custom.Scheduler.KickInterval = 30
	custom.Engine.ListenPort = 42100
	custom.Engine.DownloadRateLimitKiB = 4096
	custom.Catalog.VideoDir = "movies"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Scheduler.MaxActive != 8 {
		t.Fatalf("expected max_active 8, got %d", cfg.Scheduler.MaxActive)
	}
	if cfg.Scheduler.KickInterval != 30 {
		t.Fatalf("expected kick_interval 30, got %d", cfg.Scheduler.KickInterval)
	}
	if cfg.Engine.ListenPort != 42100 {
		t.Fatalf("expected listen_port 42100, got %d", cfg.Engine.ListenPort)
	}
	if cfg.Engine.DownloadRateLimitKiB != 4096 {
		t.Fatalf("expected download rate limit 4096, got %d", cfg.Engine.DownloadRateLimitKiB)
	}
	if cfg.Catalog.VideoDir != "movies" {
		t.Fatalf("expected video_dir override, got %q", cfg.Catalog.VideoDir)
	}
	// Unset sections keep their defaults.
	if cfg.Poller.Interval != 2 {
		t.Fatalf("expected default poller interval, got %d", cfg.Poller.Interval)
	}
}

func TestEnvVarOverridesConfigFileForTokens(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "capstan.toml")

	type payload struct {
		Paths struct {
			APIToken string `toml:"api_token"`
		} `toml:"paths"`
		Catalog struct {
			RescanToken string `toml:"rescan_token"`
		} `toml:"catalog"`
	}
	custom := payload{}
	custom.Paths.APIToken = "file-api-token"
	custom.Catalog.RescanToken = "file-rescan-token"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("CAPSTAN_API_TOKEN", "env-api-token")
	t.Setenv("CAPSTAN_RESCAN_TOKEN", "env-rescan-token")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Paths.APIToken != "env-api-token" {
		t.Errorf("expected API token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Catalog.RescanToken != "env-rescan-token" {
		t.Errorf("expected rescan token from env, got %q", cfg.Catalog.RescanToken)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	// Validate it decodes
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	// On Windows join uses backslashes; skip path expectation specifics when running there to avoid
	// differences in drive letters during CI.
	if runtime.GOOS != "windows" {
		if !strings.Contains(cfg.Paths.StagingDir, "capstan") {
			t.Fatalf("expected staging dir to contain capstan, got %q", cfg.Paths.StagingDir)
		}
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.MaxActive = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive max_active")
	}

	cfg = config.Default()
	cfg.Storage.CriticalFreeGiB = cfg.Storage.WarningFreeGiB
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when critical >= warning")
	}

	cfg = config.Default()
	cfg.Storage.RecoveryFreeGiB = cfg.Storage.CriticalFreeGiB
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when recovery <= critical")
	}

	cfg = config.Default()
	cfg.Engine.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range listen_port")
	}

	cfg = config.Default()
	cfg.Catalog.RescanEnabled = true
	cfg.Catalog.RescanURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when rescan enabled without url")
	}
}

func TestResolveLibraryPath(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LibraryDir = "/srv/library"

	if got := cfg.ResolveLibraryPath("video"); got != filepath.Join("/srv/library", "video") {
		t.Fatalf("relative dir not rooted under library: %q", got)
	}
	if got := cfg.ResolveLibraryPath("/mnt/other"); got != "/mnt/other" {
		t.Fatalf("absolute dir should pass through, got %q", got)
	}
	if got := cfg.ResolveLibraryPath("  "); got != "" {
		t.Fatalf("blank dir should resolve empty, got %q", got)
	}
}
