package records

import (
	"net/url"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const unknownDisplayName = "Unknown Download"

// DeriveDisplayName produces a human-readable name from a magnet URI or a
// descriptor file path. The engine-reported name replaces it once a session
// starts, so this only has to be presentable, not authoritative.
func DeriveDisplayName(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return unknownDisplayName
	}
	if strings.HasPrefix(strings.ToLower(source), "magnet:") {
		if name := magnetDisplayName(source); name != "" {
			return name
		}
		return unknownDisplayName
	}
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return cleanDisplayName(base)
}

func magnetDisplayName(source string) string {
	parsed, err := url.Parse(source)
	if err != nil {
		return ""
	}
	dn := strings.TrimSpace(parsed.Query().Get("dn"))
	if dn == "" {
		return ""
	}
	return cleanDisplayName(dn)
}

func cleanDisplayName(value string) string {
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	name := strings.TrimSpace(cleaned.String())
	if name == "" {
		return unknownDisplayName
	}
	return cases.Title(language.Und).String(name)
}
