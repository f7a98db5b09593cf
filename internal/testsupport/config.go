package testsupport

import (
	"path/filepath"
	"testing"

	"capstan/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithMaxActive overrides the scheduler concurrency limit on the test config.
func WithMaxActive(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.MaxActive = limit
	}
}

// WithAutoImportDisabled leaves completed downloads in place for manual
// import.
func WithAutoImportDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Import.Auto = false
	}
}

// WithImportBackoff tightens the import retry parameters so tests do not
// sleep for real durations.
func WithImportBackoff(baseSeconds, maxAttempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Import.BackoffBaseSeconds = baseSeconds
		b.cfg.Import.MaxAttempts = maxAttempts
	}
}

// WithPollerInterval overrides the progress sampling cadence in seconds.
func WithPollerInterval(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Poller.Interval = seconds
	}
}

// WithRemoveStaging makes imports move the staged payload into the catalog
// instead of copying it.
func WithRemoveStaging() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Import.RemoveStaging = true
	}
}

// WithOfflineEngine keeps the transfer engine off the network: random listen
// port, no DHT, no seeding.
func WithOfflineEngine() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.ListenPort = 0
		b.cfg.Engine.DHT = false
		b.cfg.Engine.Seed = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
