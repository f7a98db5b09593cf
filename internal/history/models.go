package history

import (
	"strings"
	"time"
)

// Outcome is the terminal state a download reached.
type Outcome string

const (
	OutcomeImported  Outcome = "imported"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

var knownOutcomes = map[Outcome]struct{}{
	OutcomeImported:  {},
	OutcomeFailed:    {},
	OutcomeCancelled: {},
}

// ParseOutcome converts a string into a known Outcome.
func ParseOutcome(value string) (Outcome, bool) {
	normalized := Outcome(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := knownOutcomes[normalized]
	return normalized, ok
}

// Entry is one archived download outcome.
type Entry struct {
	ID           int64
	RecordID     int64
	Source       string
	DisplayName  string
	Owner        string
	Outcome      Outcome
	TotalBytes   int64
	Destination  string
	ErrorMessage string
	CreatedAt    time.Time
	FinishedAt   time.Time
}

// DatabaseHealth carries diagnostic information about the archive database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	TotalEntries     int64
	IntegrityCheck   bool
	Error            string
}
