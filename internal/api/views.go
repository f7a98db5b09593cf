package api

import (
	"sort"
	"time"
)

// SortDownloadsNewestFirst orders downloads by CreatedAt descending, breaking ties by ID descending.
func SortDownloadsNewestFirst(downloads []Download) []Download {
	if len(downloads) == 0 {
		return nil
	}
	sorted := make([]Download, len(downloads))
	copy(sorted, downloads)
	sort.Slice(sorted, func(i, j int) bool {
		ti := parseAPITime(sorted[i].CreatedAt)
		tj := parseAPITime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}

func parseAPITime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

// ParseAPITime exposes API timestamp parsing for consumers that need display formatting.
func ParseAPITime(value string) time.Time {
	return parseAPITime(value)
}
