package records

import (
	"path/filepath"
	"strconv"
	"strings"
)

// StagingPathFor returns the per-record staging directory rooted at base.
// The subdirectory name is the record ID so orphan cleanup can match
// directories back to live records.
func StagingPathFor(base string, id int64) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return filepath.Join(base, strconv.FormatInt(id, 10))
}
