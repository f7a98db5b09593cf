package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler renders aligned, operator-friendly console lines:
//
//	2026-01-02 15:04:05 INFO [scheduler] Download #12 (transferring) – admitted
//	    - Size: 1.4 GiB
//
// Info-level lines show a curated bullet list with repeated values
// suppressed per subject; debug lines dump every field raw.
type prettyHandler struct {
	mu        sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
	// seen caches the last rendered value per subject+label so unchanged
	// info bullets are not repeated line after line.
	seen map[string]map[string]string
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{writer: w, level: lvl, addSource: addSource, seen: make(map[string]map[string]string)}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// pair is one flattened key/value; group prefixes are folded into the key.
type pair struct {
	key   string
	value slog.Value
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	pairs := make([]pair, 0, record.NumAttrs()+len(h.attrs))
	for _, attr := range h.attrs {
		flattenAttr(&pairs, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&pairs, h.groups, attr)
		return true
	})
	pairs = dedupePairs(pairs)

	var component, recordID, stage string
	rest := pairs[:0]
	for _, p := range pairs {
		switch p.key {
		case FieldComponent:
			if component == "" {
				component = attrString(p.value)
			}
			continue
		case FieldRecordID:
			if recordID == "" {
				recordID = attrString(p.value)
			}
		case FieldStage:
			if stage == "" {
				stage = attrString(p.value)
			}
		}
		rest = append(rest, p)
	}

	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var buf bytes.Buffer
	buf.Grow(256 + len(rest)*32)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeHeader(&buf, ts, record.Level, component, recordID, stage, message, recordSource(record))
	if record.Level < slog.LevelInfo {
		writeDebugFields(&buf, rest)
	} else {
		h.writeInfoBullets(&buf, record.Level, component, recordID, stage, rest)
	}
	_, err := h.writer.Write(buf.Bytes())
	return err
}

// recordSource mirrors slog.Record.Source (added in Go 1.25) for older
// toolchains: it resolves the record's PC to a *slog.Source, or nil when
// the PC is zero.
func recordSource(record slog.Record) *slog.Source {
	if record.PC == 0 {
		return nil
	}
	frames := runtime.CallersFrames([]uintptr{record.PC})
	frame, _ := frames.Next()
	return &slog.Source{
		Function: frame.Function,
		File:     frame.File,
		Line:     frame.Line,
	}
}

func (h *prettyHandler) writeHeader(buf *bytes.Buffer, ts time.Time, level slog.Level, component, recordID, stage, message string, src *slog.Source) {
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(level))
	if component != "" {
		buf.WriteString(" [")
		buf.WriteString(component)
		buf.WriteByte(']')
	}
	if subject := composeSubject(recordID, stage); subject != "" {
		buf.WriteByte(' ')
		buf.WriteString(subject)
	}
	if message != "" {
		buf.WriteString(" – ")
		buf.WriteString(message)
	}
	if h.addSource && src != nil {
		buf.WriteString(" [")
		buf.WriteString(filepath.Base(src.File))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(src.Line))
		buf.WriteByte(']')
	}
	buf.WriteByte('\n')
}

// writeInfoBullets renders the curated info field list, suppressing values
// that have not changed since the last line for the same subject.
func (h *prettyHandler) writeInfoBullets(buf *bytes.Buffer, level slog.Level, component, recordID, stage string, pairs []pair) {
	fields, hidden := selectInfoFields(pairs, 0, true)
	fields = h.suppressRepeats(infoSummaryKey(component, recordID, stage, pairs), fields, level)

	for _, field := range fields {
		buf.WriteString("    - ")
		buf.WriteString(field.label)
		buf.WriteString(": ")
		buf.WriteString(field.value)
		buf.WriteByte('\n')
	}
	if hidden > 0 {
		buf.WriteString("    + ")
		buf.WriteString(strconv.Itoa(hidden))
		buf.WriteString(" more field")
		if hidden != 1 {
			buf.WriteByte('s')
		}
		buf.WriteString(" hidden\n")
	}
}

func writeDebugFields(buf *bytes.Buffer, pairs []pair) {
	for _, p := range pairs {
		if p.key == "" {
			continue
		}
		buf.WriteString("    ")
		buf.WriteString(p.key)
		buf.WriteString(": ")
		buf.WriteString(formatValue(p.value))
		buf.WriteByte('\n')
	}
}

// suppressRepeats drops fields whose rendered value matches the cached one
// for this subject. Warnings and errors always render in full; they still
// refresh the cache.
func (h *prettyHandler) suppressRepeats(key string, fields []infoField, level slog.Level) []infoField {
	if key == "" || len(fields) == 0 {
		return fields
	}
	cache := h.seen[key]
	if cache == nil {
		cache = make(map[string]string)
		h.seen[key] = cache
	}
	if level > slog.LevelInfo {
		for _, field := range fields {
			cache[field.label] = field.value
		}
		return fields
	}
	kept := fields[:0]
	for _, field := range fields {
		if prev, ok := cache[field.label]; ok && prev == field.value {
			continue
		}
		cache[field.label] = field.value
		kept = append(kept, field)
	}
	return kept
}

func composeSubject(recordID, stage string) string {
	recordID = strings.TrimSpace(recordID)
	stage = strings.TrimSpace(stage)
	switch {
	case recordID != "" && stage != "":
		return "Download #" + recordID + " (" + stage + ")"
	case recordID != "":
		return "Download #" + recordID
	default:
		return stage
	}
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *prettyHandler) clone() *prettyHandler {
	return &prettyHandler{
		writer:    h.writer,
		level:     h.level,
		addSource: h.addSource,
		seen:      h.seen,
		attrs:     append([]slog.Attr(nil), h.attrs...),
		groups:    append([]string(nil), h.groups...),
	}
}

// dedupePairs keeps the first position of each key with its last value, so
// WithAttrs defaults can be overridden per record without moving.
func dedupePairs(pairs []pair) []pair {
	if len(pairs) < 2 {
		return pairs
	}
	position := make(map[string]int, len(pairs))
	out := pairs[:0]
	for _, p := range pairs {
		if p.key == "" {
			continue
		}
		if at, ok := position[p.key]; ok {
			out[at].value = p.value
			continue
		}
		position[p.key] = len(out)
		out = append(out, p)
	}
	return out
}

func flattenAttr(dst *[]pair, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append(make([]string, 0, len(prefix)+1), prefix...), attr.Key)
		}
		for _, nested := range attr.Value.Group() {
			flattenAttr(dst, next, nested)
		}
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		if key == "" {
			key = strings.Join(prefix, ".")
		} else {
			key = strings.Join(prefix, ".") + "." + key
		}
	}
	*dst = append(*dst, pair{key: key, value: attr.Value})
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
