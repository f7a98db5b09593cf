// Package config loads, normalizes, and validates Capstan configuration.
//
// Settings come from a TOML file merged over built-in defaults, with
// environment fallbacks for secrets such as CAPSTAN_API_TOKEN. Paths are
// expanded (tilde shortcuts included) before validation, so the daemon and
// CLI only ever see absolute, sanitized locations for the staging and
// library directories along with the engine limits.
//
// Load configuration through this package rather than reading files
// directly; it is the single place where defaults, overrides, and
// validation meet.
package config
