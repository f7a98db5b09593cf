package volumes

// Level classifies how much free space a monitored volume has left.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// VolumeStatus describes one monitored volume at sampling time. The
// monitor rebuilds these slices on every sample and never mutates a
// published entry, so callers may retain what they receive.
type VolumeStatus struct {
	Path       string `json:"path"`
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
	Level      Level  `json:"level"`
	Primary    bool   `json:"primary"`
}
