package preflight

import (
	"context"
	"strings"

	"capstan/internal/config"
)

// CheckRescanFromConfig evaluates the catalog rescan endpoint from config
// and connectivity. Disabled counts as passed.
func CheckRescanFromConfig(cfg *config.Config) Result {
	const name = "Catalog rescan"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Catalog.RescanEnabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if strings.TrimSpace(cfg.Catalog.RescanURL) == "" {
		return Result{Name: name, Detail: "Missing URL"}
	}
	return CheckRescanEndpoint(context.Background(), cfg.Catalog.RescanURL)
}

// CheckNotificationsFromConfig reports whether push notifications are
// configured. There is no connectivity probe here; "capstan notify test"
// covers that on demand.
func CheckNotificationsFromConfig(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return Result{Name: name, Passed: true, Detail: "Configured"}
}
