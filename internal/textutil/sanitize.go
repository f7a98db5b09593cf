package textutil

import "strings"

// SanitizeFileName makes a display name safe to use as a file or directory
// name. Path separators, colons, and asterisks become dashes; quotes, angle
// brackets, pipes, and question marks are dropped entirely.
func SanitizeFileName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*':
			return '-'
		case '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	return strings.TrimSpace(cleaned)
}

// DestinationName builds the catalog directory name for an imported
// download from its display name, falling back when sanitization strips
// everything usable.
func DestinationName(displayName, fallback string) string {
	name := strings.Trim(SanitizeFileName(displayName), "-. ")
	if name == "" {
		return fallback
	}
	return name
}

// SanitizeToken lowercases a string into a machine-safe token for dedup keys
// and tags. ASCII letters, digits, hyphens, and underscores survive;
// everything else becomes an underscore. Empty input yields "unknown".
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	token := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, value)
	token = strings.Trim(token, "_-")
	if token == "" {
		return "unknown"
	}
	return token
}
