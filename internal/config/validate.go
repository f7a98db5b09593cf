package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateImport(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.ListenPort < 0 || c.Engine.ListenPort > 65535 {
		return errors.New("engine.listen_port must be between 0 and 65535")
	}
	return ensurePositiveMap(map[string]int{
		"engine.call_timeout":    c.Engine.CallTimeout,
		"engine.resolve_timeout": c.Engine.ResolveTimeout,
		"engine.max_connections": c.Engine.MaxConnections,
	})
}

func (c *Config) validateScheduler() error {
	return ensurePositiveMap(map[string]int{
		"scheduler.max_active":           c.Scheduler.MaxActive,
		"scheduler.kick_interval":        c.Scheduler.KickInterval,
		"scheduler.error_retry_interval": c.Scheduler.ErrorRetryInterval,
		"poller.interval":                c.Poller.Interval,
	})
}

func (c *Config) validateStorage() error {
	if err := ensurePositiveMap(map[string]int{
		"storage.warning_free_gib":  c.Storage.WarningFreeGiB,
		"storage.critical_free_gib": c.Storage.CriticalFreeGiB,
		"storage.recovery_free_gib": c.Storage.RecoveryFreeGiB,
		"storage.active_interval":   c.Storage.ActiveInterval,
		"storage.idle_interval":     c.Storage.IdleInterval,
	}); err != nil {
		return err
	}
	if c.Storage.CriticalFreeGiB >= c.Storage.WarningFreeGiB {
		return errors.New("storage.critical_free_gib must be less than storage.warning_free_gib")
	}
	if c.Storage.RecoveryFreeGiB <= c.Storage.CriticalFreeGiB {
		return errors.New("storage.recovery_free_gib must be greater than storage.critical_free_gib")
	}
	return nil
}

func (c *Config) validateImport() error {
	return ensurePositiveMap(map[string]int{
		"import.max_attempts":         c.Import.MaxAttempts,
		"import.backoff_base_seconds": c.Import.BackoffBaseSeconds,
		"import.workers":              c.Import.Workers,
	})
}

func (c *Config) validateCatalog() error {
	if c.Catalog.VideoDir == "" {
		return errors.New("catalog.video_dir must be set")
	}
	if c.Catalog.AudioDir == "" {
		return errors.New("catalog.audio_dir must be set")
	}
	if c.Catalog.RescanEnabled {
		if c.Catalog.RescanURL == "" {
			return errors.New("catalog.rescan_url must be set when catalog.rescan_enabled is true")
		}
		if c.Catalog.RescanTimeout <= 0 {
			return errors.New("catalog.rescan_timeout must be positive (seconds)")
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
