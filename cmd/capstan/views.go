package main

import (
	"fmt"
	"strings"

	"capstan/internal/api"
	"capstan/internal/logging"
	"capstan/internal/records"
)

// buildStatsRows orders status counts by lifecycle position rather than
// alphabetically so the table reads queued-to-imported top to bottom.
func buildStatsRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(stats)+1)
	for _, status := range records.AllStatuses() {
		count, ok := stats[string(status)]
		if !ok {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(string(status)), fmt.Sprintf("%d", count)})
	}
	if total, ok := stats["total"]; ok {
		rows = append(rows, []string{"Total", fmt.Sprintf("%d", total)})
	}
	return rows
}

func buildDownloadRows(downloads []api.Download) [][]string {
	if len(downloads) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(downloads))
	for _, d := range downloads {
		rows = append(rows, []string{
			fmt.Sprintf("%d", d.ID),
			downloadTitle(d),
			formatStatusLabel(d.Status),
			logging.FormatPercent(d.Percent),
			formatSizeCell(d.TotalBytes),
			formatRateCell(d.DownloadRate),
			formatDisplayTime(d.CreatedAt),
		})
	}
	return rows
}

func buildVolumeRows(volumes []api.VolumeStatus) [][]string {
	if len(volumes) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(volumes))
	for _, vol := range volumes {
		rows = append(rows, []string{
			vol.Path,
			formatStatusLabel(vol.Level),
			logging.FormatBytes(int64(vol.FreeBytes)),
			logging.FormatBytes(int64(vol.TotalBytes)),
			yesNo(vol.Primary),
		})
	}
	return rows
}

func buildHistoryRows(entries []api.HistoryEntry) [][]string {
	if len(entries) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		name := strings.TrimSpace(entry.DisplayName)
		if name == "" {
			name = truncateSource(entry.Source)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", entry.RecordID),
			name,
			formatStatusLabel(entry.Outcome),
			formatSizeCell(entry.TotalBytes),
			formatDisplayTime(entry.FinishedAt),
		})
	}
	return rows
}

// downloadTitle prefers the resolved display name and falls back to a
// shortened source string for records added moments ago.
func downloadTitle(d api.Download) string {
	if title := strings.TrimSpace(d.DisplayName); title != "" {
		return title
	}
	return truncateSource(d.Source)
}

func truncateSource(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return "Unknown"
	}
	if len(source) > 40 {
		return source[:37] + "..."
	}
	return source
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	t := api.ParseAPITime(value)
	if t.IsZero() {
		return value
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func formatSizeCell(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return logging.FormatBytes(bytes)
}

func formatRateCell(rate float64) string {
	if rate <= 0 {
		return "-"
	}
	return logging.FormatRate(rate)
}

func formatETA(seconds *int64) string {
	if seconds == nil || *seconds < 0 {
		return "-"
	}
	s := *seconds
	switch {
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 3600:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	default:
		return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
	}
}
