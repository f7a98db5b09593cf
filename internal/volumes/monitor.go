package volumes

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"golang.org/x/sys/unix"

	"capstan/internal/config"
	"capstan/internal/logging"
	"capstan/internal/services"
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// AlertSink receives storage gate transitions for operator notification.
type AlertSink interface {
	StorageCritical(ctx context.Context, statuses []VolumeStatus)
	StorageRecovered(ctx context.Context)
}

// Monitor samples free space on the monitored volumes, classifies each
// against the configured thresholds, and latches the admission gate when
// any volume goes critical.
type Monitor struct {
	logger *slog.Logger
	statfs statfsFunc

	paths          []string
	primaryPath    string
	warningBytes   uint64
	criticalBytes  uint64
	recoveryBytes  uint64
	activeInterval time.Duration
	idleInterval   time.Duration

	activityProbe func() bool
	gateReopened  func()
	alerts        AlertSink

	mu       sync.Mutex
	critical bool
	statuses []VolumeStatus
}

// NewMonitor builds a monitor over the staging volume and every distinct
// catalog destination directory.
func NewMonitor(cfg *config.Config, logger *slog.Logger) *Monitor {
	if cfg == nil {
		return nil
	}
	const gib = 1024 * 1024 * 1024
	primary := filepath.Clean(strings.TrimSpace(cfg.Paths.StagingDir))
	return &Monitor{
		logger:         logging.ComponentLogger(logger, "volumes", logging.ComponentOverrides(cfg)),
		statfs:         realStatfs,
		paths:          monitoredPaths(cfg),
		primaryPath:    primary,
		warningBytes:   uint64(cfg.Storage.WarningFreeGiB) * gib,
		criticalBytes:  uint64(cfg.Storage.CriticalFreeGiB) * gib,
		recoveryBytes:  uint64(cfg.Storage.RecoveryFreeGiB) * gib,
		activeInterval: time.Duration(cfg.Storage.ActiveInterval) * time.Second,
		idleInterval:   time.Duration(cfg.Storage.IdleInterval) * time.Second,
	}
}

func monitoredPaths(cfg *config.Config) []string {
	paths := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)
	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return
		}
		dir = filepath.Clean(dir)
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		paths = append(paths, dir)
	}
	add(cfg.Paths.StagingDir)
	for _, dir := range cfg.DestinationDirs() {
		add(dir)
	}
	return paths
}

// SetActivityProbe installs the callback that reports whether any record
// is active or importing. Must be called before Run.
func (m *Monitor) SetActivityProbe(probe func() bool) {
	if m == nil {
		return
	}
	m.activityProbe = probe
}

// SetGateReopened installs the callback fired once each time the gate
// transitions from critical back to open. Must be called before Run.
func (m *Monitor) SetGateReopened(fn func()) {
	if m == nil {
		return
	}
	m.gateReopened = fn
}

// SetAlertSink installs the notification sink for gate transitions.
// Must be called before Run.
func (m *Monitor) SetAlertSink(sink AlertSink) {
	if m == nil {
		return
	}
	m.alerts = sink
}

// IsCritical reports the latched state of the admission gate.
func (m *Monitor) IsCritical() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.critical
}

// Statuses returns the most recent sample. Empty until the first check.
func (m *Monitor) Statuses() []VolumeStatus {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]VolumeStatus, len(m.statuses))
	copy(out, m.statuses)
	return out
}

// FreeBytes samples available space on the volume holding path. It is a
// fresh point read for import space checks, not a cached value.
func (m *Monitor) FreeBytes(path string) (uint64, error) {
	if m == nil {
		return 0, services.Wrap(services.ErrConfiguration, "volumes", "free bytes", "storage monitor unavailable", nil)
	}
	_, free, err := m.statfs(path)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "volumes", "free bytes", "sample "+path, err)
	}
	return free, nil
}

// Run samples immediately and then on the adaptive cadence until the
// context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	if m == nil {
		return
	}
	m.CheckNow(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval()):
			m.CheckNow(ctx)
		}
	}
}

func (m *Monitor) interval() time.Duration {
	if m.activityProbe != nil && m.activityProbe() {
		return m.activeInterval
	}
	return m.idleInterval
}

// CheckNow samples every monitored volume, updates the gate latch, and
// returns the fresh statuses. Volumes that cannot be sampled are reported
// at warning level and excluded from both gate decisions; the import
// space check catches an offline destination at move time.
func (m *Monitor) CheckNow(ctx context.Context) []VolumeStatus {
	if m == nil {
		return nil
	}
	statuses := make([]VolumeStatus, 0, len(m.paths))
	anyCritical := false
	allAboveRecovery := true
	for _, path := range m.paths {
		status := VolumeStatus{Path: path, Primary: path == m.primaryPath}
		total, free, err := m.statfs(path)
		if err != nil {
			status.Level = LevelWarning
			statuses = append(statuses, status)
			m.logger.WarnContext(ctx, "volume sample failed; excluded from gate decisions",
				logging.String("volume_path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "volume_sample_failed"),
				logging.String(logging.FieldErrorHint, "check that the volume is mounted and readable"),
				logging.String(logging.FieldImpact, "free space on this volume is unknown"),
			)
			continue
		}
		status.TotalBytes = total
		status.FreeBytes = free
		status.Level = m.levelFor(free)
		if status.Level == LevelCritical {
			anyCritical = true
		}
		if free <= m.recoveryBytes {
			allAboveRecovery = false
		}
		statuses = append(statuses, status)
	}

	m.mu.Lock()
	wasCritical := m.critical
	switch {
	case anyCritical:
		m.critical = true
	case m.critical && allAboveRecovery:
		m.critical = false
	}
	nowCritical := m.critical
	m.statuses = statuses
	m.mu.Unlock()

	switch {
	case !wasCritical && nowCritical:
		m.logger.WarnContext(ctx, "storage critical; gating new downloads and imports",
			logging.Alert("storage_critical"),
			logging.String(logging.FieldEventType, "storage_critical"),
			logging.String(logging.FieldErrorHint, "free space on the affected volume or run capstan cleanup"),
			logging.String(logging.FieldImpact, "queued downloads stay queued and imports wait until space recovers"),
		)
		if m.alerts != nil {
			m.alerts.StorageCritical(ctx, statuses)
		}
	case wasCritical && !nowCritical:
		m.logger.InfoContext(ctx, "storage recovered; admissions resume",
			logging.String(logging.FieldEventType, "storage_recovered"),
		)
		if m.gateReopened != nil {
			m.gateReopened()
		}
		if m.alerts != nil {
			m.alerts.StorageRecovered(ctx)
		}
	}
	return statuses
}

func (m *Monitor) levelFor(free uint64) Level {
	switch {
	case free < m.criticalBytes:
		return LevelCritical
	case free < m.warningBytes:
		return LevelWarning
	default:
		return LevelNormal
	}
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
