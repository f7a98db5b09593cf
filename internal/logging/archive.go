package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// EventArchive journals structured log events to a JSONL file so API
// consumers can replay history after the in-memory stream ring rolls over.
type EventArchive struct {
	path string

	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewEventArchive creates (or truncates) the on-disk journal. An empty path
// disables archiving; both the archive and the error are nil then.
func NewEventArchive(path string) (*EventArchive, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure archive dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("initialize archive %s: %w", path, err)
	}
	return &EventArchive{path: path, file: file, enc: json.NewEncoder(file)}, nil
}

// Append journals one event. Archive write failures are swallowed: logging
// keeps flowing even when the journal is temporarily unavailable.
func (a *EventArchive) Append(evt LogEvent) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enc == nil && !a.reopenLocked() {
		return
	}
	_ = a.enc.Encode(evt)
}

// reopenLocked re-establishes the append handle after a Close or failure.
func (a *EventArchive) reopenLocked() bool {
	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return false
	}
	a.file = file
	a.enc = json.NewEncoder(file)
	return true
}

// ReadSince returns events with sequence numbers above since, plus the
// highest sequence present in the journal. limit bounds the result; zero
// means unbounded.
func (a *EventArchive) ReadSince(since uint64, limit int) ([]LogEvent, uint64, error) {
	if a == nil || a.path == "" {
		return nil, since, nil
	}
	file, err := os.Open(a.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, since, nil
		}
		return nil, since, fmt.Errorf("open archive %s: %w", a.path, err)
	}
	defer file.Close()

	hint := limit
	if hint <= 0 || hint > 512 {
		hint = 512
	}
	events := make([]LogEvent, 0, hint)
	highest := since
	dec := json.NewDecoder(file)
	for {
		var evt LogEvent
		if err := dec.Decode(&evt); err != nil {
			if errors.Is(err, io.EOF) {
				return events, highest, nil
			}
			return events, highest, fmt.Errorf("decode archive %s: %w", a.path, err)
		}
		if evt.Sequence > highest {
			highest = evt.Sequence
		}
		if evt.Sequence <= since {
			continue
		}
		events = append(events, evt)
		if limit > 0 && len(events) >= limit {
			return events, highest, nil
		}
	}
}

// Close releases the journal file handle. Append after Close reopens it.
func (a *EventArchive) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.file != nil {
		err = a.file.Close()
	}
	a.file = nil
	a.enc = nil
	return err
}

// Path returns the on-disk location backing the archive.
func (a *EventArchive) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}
