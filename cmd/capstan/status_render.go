package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// statusKind is the severity shown for one line of `capstan status` or
// `capstan health` output.
type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

var statusStyles = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusStyles[kind]
	var b strings.Builder
	b.WriteString(statusIndent)
	fmt.Fprintf(&b, "%-*s [%s]", statusLabelWidth, label+":", style.label)
	if message != "" {
		b.WriteString(" ")
		b.WriteString(message)
	}
	if colorize && style.color != "" {
		return style.color + b.String() + ansiReset
	}
	return b.String()
}

func statusKindForPassed(passed bool) statusKind {
	if passed {
		return statusOK
	}
	return statusError
}

func statusKindForReady(ready bool) statusKind {
	if ready {
		return statusOK
	}
	return statusWarn
}

// statusKindForLevel maps volume levels to display severities.
func statusKindForLevel(level string) statusKind {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "normal":
		return statusOK
	case "warning":
		return statusWarn
	case "critical":
		return statusError
	}
	return statusInfo
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		blue := statusStyles[statusInfo].color
		line = blue + line + ansiReset
		rule = blue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
