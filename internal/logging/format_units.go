package logging

import (
	"fmt"
	"strconv"
	"time"
)

var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes renders a byte count with IEC units, one decimal below 10.
func FormatBytes(value int64) string {
	if value < 0 {
		return strconv.FormatInt(value, 10)
	}
	size := float64(value)
	unit := 0
	for size >= 1024 && unit < len(byteUnits)-1 {
		size /= 1024
		unit++
	}
	if unit == 0 {
		return strconv.FormatInt(value, 10) + " B"
	}
	if size < 10 {
		return fmt.Sprintf("%.1f %s", size, byteUnits[unit])
	}
	return fmt.Sprintf("%.0f %s", size, byteUnits[unit])
}

// FormatRate renders a bytes-per-second rate with IEC units.
func FormatRate(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// formatDurationHuman renders a duration in the largest two useful units.
func formatDurationHuman(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) - minutes*60
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		hours := int(d.Hours())
		minutes := int(d.Minutes()) - hours*60
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
}

// FormatPercent renders a 0-100 percentage with a single decimal place.
func FormatPercent(value float64) string {
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return strconv.FormatFloat(value, 'f', 1, 64) + "%"
}
