// Package notifications delivers lifecycle events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set.
// Enumerated event types cover the download milestones and storage alerts so
// components can emit consistent, user-friendly messages without duplicating
// HTTP glue. Per-event toggles and a dedup window keep a busy queue from
// flooding the topic.
//
// Extend this package if you need alternative transports; all lifecycle code
// depends only on the simple Service interface.
package notifications
