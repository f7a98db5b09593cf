package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeScheduler()
	c.normalizePoller()
	c.normalizeStorage()
	c.normalizeImport()
	c.normalizeCatalog()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if value, ok := os.LookupEnv("CAPSTAN_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIToken = strings.TrimSpace(value)
	}
	return nil
}

func (c *Config) normalizeEngine() {
	if c.Engine.ListenPort < 0 {
		c.Engine.ListenPort = 0
	}
	if c.Engine.DownloadRateLimitKiB < 0 {
		c.Engine.DownloadRateLimitKiB = 0
	}
	if c.Engine.UploadRateLimitKiB < 0 {
		c.Engine.UploadRateLimitKiB = 0
	}
	if c.Engine.MaxConnections <= 0 {
		c.Engine.MaxConnections = defaultEngineMaxConnections
	}
	if c.Engine.CallTimeout <= 0 {
		c.Engine.CallTimeout = defaultEngineCallTimeout
	}
	if c.Engine.ResolveTimeout <= 0 {
		c.Engine.ResolveTimeout = defaultEngineResolveTimeout
	}
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.MaxActive <= 0 {
		c.Scheduler.MaxActive = defaultSchedulerMaxActive
	}
	if c.Scheduler.KickInterval <= 0 {
		c.Scheduler.KickInterval = defaultSchedulerKickInterval
	}
	if c.Scheduler.ErrorRetryInterval <= 0 {
		c.Scheduler.ErrorRetryInterval = defaultSchedulerErrorRetry
	}
}

func (c *Config) normalizePoller() {
	if c.Poller.Interval <= 0 {
		c.Poller.Interval = defaultPollerInterval
	}
}

func (c *Config) normalizeStorage() {
	if c.Storage.WarningFreeGiB <= 0 {
		c.Storage.WarningFreeGiB = defaultStorageWarningFreeGiB
	}
	if c.Storage.CriticalFreeGiB <= 0 {
		c.Storage.CriticalFreeGiB = defaultStorageCriticalFreeGiB
	}
	if c.Storage.RecoveryFreeGiB <= 0 {
		c.Storage.RecoveryFreeGiB = defaultStorageRecoveryFreeGiB
	}
	if c.Storage.ActiveInterval <= 0 {
		c.Storage.ActiveInterval = defaultStorageActiveInterval
	}
	if c.Storage.IdleInterval <= 0 {
		c.Storage.IdleInterval = defaultStorageIdleInterval
	}
}

func (c *Config) normalizeImport() {
	if c.Import.MaxAttempts <= 0 {
		c.Import.MaxAttempts = defaultImportMaxAttempts
	}
	if c.Import.BackoffBaseSeconds <= 0 {
		c.Import.BackoffBaseSeconds = defaultImportBackoffBase
	}
	if c.Import.Workers <= 0 {
		c.Import.Workers = defaultImportWorkers
	}
	c.Import.DefaultDestination = strings.TrimSpace(c.Import.DefaultDestination)
}

func (c *Config) normalizeCatalog() {
	c.Catalog.VideoDir = strings.TrimSpace(c.Catalog.VideoDir)
	if c.Catalog.VideoDir == "" {
		c.Catalog.VideoDir = defaultVideoDir
	}
	c.Catalog.AudioDir = strings.TrimSpace(c.Catalog.AudioDir)
	if c.Catalog.AudioDir == "" {
		c.Catalog.AudioDir = defaultAudioDir
	}
	c.Catalog.OtherDir = strings.TrimSpace(c.Catalog.OtherDir)
	if c.Catalog.OtherDir == "" {
		c.Catalog.OtherDir = defaultOtherDir
	}
	c.Catalog.RescanURL = strings.TrimSpace(c.Catalog.RescanURL)
	c.Catalog.RescanToken = strings.TrimSpace(c.Catalog.RescanToken)
	if value, ok := os.LookupEnv("CAPSTAN_RESCAN_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Catalog.RescanToken = strings.TrimSpace(value)
	}
	if c.Catalog.RescanTimeout <= 0 {
		c.Catalog.RescanTimeout = defaultCatalogRescanTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		c.Notifications.DedupWindowSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if len(c.Logging.ComponentOverrides) > 0 {
		normalized := make(map[string]string, len(c.Logging.ComponentOverrides))
		for component, level := range c.Logging.ComponentOverrides {
			component = strings.ToLower(strings.TrimSpace(component))
			level = strings.ToLower(strings.TrimSpace(level))
			if component == "" || level == "" {
				continue
			}
			normalized[component] = level
		}
		c.Logging.ComponentOverrides = normalized
	}
}
