package logging

import (
	"log/slog"
	"sort"
	"strings"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

// infoHighlightKeys ranks the fields shown first on info bullets. Anything
// not listed trails in call-site order.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldDecisionType,
	"name",
	"source",
	"status",
	FieldProgressStage,
	FieldProgressPercent,
	FieldProgressMessage,
	FieldProgressETA,
	"error_message",
	FieldErrorKind,
	FieldErrorHint,
	"download_rate",
	"upload_rate",
	"peers",
	"seeds",
	"total_bytes",
	"completed_bytes",
	"remaining_bytes",
	"destination",
	"class",
	"attempt",
	"max_attempts",
	"backoff",
	"free_bytes",
	"warning_level",
	"active",
	"queued",
	"max_active",
	"removed",
	"bytes_freed",
	"file_count",
	"duration",
	"elapsed",
	"decision_result",
	"decision_reason",
	"reason",
}

var highlightRank = func() map[string]int {
	m := make(map[string]int, len(infoHighlightKeys))
	for i, key := range infoHighlightKeys {
		m[key] = i
	}
	return m
}()

// selectInfoFields picks and formats the attrs worth showing at info level,
// returning them with the count of entries withheld. A zero limit means
// unlimited; includeDebug admits keys normally reserved for debug output.
func selectInfoFields(attrs []pair, limit int, includeDebug bool) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	if limit < 0 {
		limit = 0
	}

	// Order candidates by highlight rank, then call-site order. Only the
	// first occurrence of a highlighted key gets its rank.
	type candidate struct {
		pair
		rank int
	}
	ordered := make([]candidate, 0, len(attrs))
	ranked := make(map[string]bool, len(attrs))
	base := len(infoHighlightKeys)
	for i, attr := range attrs {
		rank := base + i
		if r, ok := highlightRank[attr.key]; ok && !ranked[attr.key] {
			rank = r
			ranked[attr.key] = true
		}
		ordered = append(ordered, candidate{pair: attr, rank: rank})
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].rank < ordered[j].rank })

	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0
	for _, c := range ordered {
		if skipInfoKey(c.key) {
			continue
		}
		if !includeDebug && isDebugOnlyKey(c.key) {
			hidden++
			continue
		}
		val := formatValueForKey(c.key, c.value)
		if !includeDebug && shouldHideInfoValue(c.key, val) {
			hidden++
			continue
		}
		if limit > 0 && len(result) >= limit {
			hidden++
			continue
		}
		result = append(result, infoField{label: displayLabel(c.key), value: val})
	}
	return result, hidden
}

// formatValueForKey renders a value with unit-aware formatting inferred from
// the key name: rates, byte sizes, durations, percentages.
func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	case slog.KindDuration:
		if isDurationKey(key) {
			return formatDurationHuman(v.Duration())
		}
	case slog.KindFloat64:
		if isRateKey(key) {
			return FormatRate(v.Float64())
		}
		if isPercentKey(key) {
			return FormatPercent(v.Float64())
		}
	case slog.KindInt64:
		if isRateKey(key) {
			return FormatRate(float64(v.Int64()))
		}
		if isByteSizeKey(key) {
			return FormatBytes(v.Int64())
		}
	case slog.KindUint64:
		if isRateKey(key) {
			return FormatRate(float64(v.Uint64()))
		}
		if isByteSizeKey(key) {
			return FormatBytes(int64(v.Uint64()))
		}
	}

	value := formatValue(v)
	switch key {
	case "error", "error_message", FieldErrorCause:
		value = truncateErrorValue(value)
	}
	return value
}

func isByteSizeKey(key string) bool {
	return key == "size" || strings.HasSuffix(key, "_bytes") || strings.HasSuffix(key, "_size")
}

func isRateKey(key string) bool {
	return strings.HasSuffix(key, "_rate")
}

func isDurationKey(key string) bool {
	switch key {
	case "elapsed", "duration", "backoff", "eta":
		return true
	}
	for _, suffix := range []string{"_duration", "_elapsed", "_latency", "_eta"} {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

func isPercentKey(key string) bool {
	return key == FieldProgressPercent || strings.HasSuffix(key, "_percent")
}

func truncateErrorValue(value string) string {
	value = strings.TrimSpace(value)
	const maxLen = 200
	if len(value) > maxLen {
		return value[:maxLen] + "…"
	}
	return value
}

// skipInfoKey drops keys already rendered in the line header.
func skipInfoKey(key string) bool {
	switch key {
	case "", FieldRecordID, FieldStage, FieldComponent:
		return true
	}
	return false
}

// isDebugOnlyKey hides plumbing detail (ids, paths, torrent internals) from
// info-level bullets.
func isDebugOnlyKey(key string) bool {
	if key == "" {
		return true
	}
	switch key {
	case FieldRequestID,
		"infohash",
		"fingerprint",
		"announce",
		"piece_length",
		"num_pieces",
		"trackers",
		"listen_port",
		"session_key",
		"snapshot_generation",
		"poll_interval",
		"kick_interval":
		return true
	}
	switch {
	case strings.Contains(key, "request_id"):
		return true
	case strings.HasSuffix(key, "_id") && key != FieldRecordID:
		return true
	case strings.Contains(key, "_path"), strings.Contains(key, "_dir"):
		return true
	case strings.Contains(key, "fingerprint"), strings.Contains(key, "infohash"):
		return true
	}
	return false
}

func shouldHideInfoValue(key, value string) bool {
	switch key {
	case "error_message", "error", "source", "reason":
		return false
	}
	return len(value) > 120
}

var displayLabels = map[string]string{
	FieldAlert:         "Alert",
	FieldEventType:     "Event",
	FieldDecisionType:  "Decision",
	FieldErrorKind:     "Error Kind",
	FieldErrorHint:     "Hint",
	FieldErrorCause:    "Cause",
	FieldRecordID:      "Download",
	FieldStage:         "Stage",
	"name":             "Name",
	"source":           "Source",
	"status":           "Status",
	"progress_stage":   "Progress Stage",
	"progress_message": "Progress",
	"progress_eta":     "ETA",
	"eta":              "ETA",
	"download_rate":    "Down",
	"upload_rate":      "Up",
	"total_bytes":      "Total Size",
	"completed_bytes":  "Completed",
	"remaining_bytes":  "Remaining",
	"free_bytes":       "Free Space",
	"bytes_freed":      "Freed",
	"warning_level":    "Level",
	"max_active":       "Active Limit",
	"file_count":       "Files",
	"attempt":          "Attempt",
	"max_attempts":     "Attempt Limit",
	"backoff":          "Backoff",
	"peers":            "Peers",
	"seeds":            "Seeds",
	"removed":          "Removed",
	"decision_result":  "Decision",
	"decision_reason":  "Reason",
	"reason":           "Reason",
}

func displayLabel(key string) string {
	if label, ok := displayLabels[key]; ok {
		return label
	}
	return titleizeKey(key)
}

// titleizeKey turns snake_case or kebab-case keys into "Title Case" labels.
func titleizeKey(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) == 0 {
		parts = []string{key}
	}
	for i, part := range parts {
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

// infoSummaryKey identifies the subject of a line for repeated-field
// suppression: the download when known, otherwise a name/source hint or the
// component itself.
func infoSummaryKey(component, recordID, _ string, attrs []pair) string {
	if id := strings.TrimSpace(recordID); id != "" {
		return id
	}
	if name := attrValue(attrs, "name"); name != "" {
		return "name:" + name
	}
	if source := attrValue(attrs, "source"); source != "" {
		return "source:" + source
	}
	return component
}

func attrValue(attrs []pair, key string) string {
	for _, p := range attrs {
		if p.key == key {
			return attrString(p.value)
		}
	}
	return ""
}
