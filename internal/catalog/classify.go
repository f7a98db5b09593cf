package catalog

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

var videoExtensions = map[string]struct{}{
	".mkv":  {},
	".mp4":  {},
	".m4v":  {},
	".avi":  {},
	".mov":  {},
	".webm": {},
	".wmv":  {},
	".mpg":  {},
	".mpeg": {},
	".ts":   {},
	".flv":  {},
}

var audioExtensions = map[string]struct{}{
	".flac": {},
	".mp3":  {},
	".m4a":  {},
	".m4b":  {},
	".aac":  {},
	".ogg":  {},
	".opus": {},
	".wav":  {},
	".wma":  {},
	".aiff": {},
	".ape":  {},
}

// DetectClass classifies file names by extension majority. Files outside
// both extension sets do not vote. A tie, including no votes at all, is
// unknown.
func DetectClass(files []string) Class {
	var video, audio int
	for _, name := range files {
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := videoExtensions[ext]; ok {
			video++
			continue
		}
		if _, ok := audioExtensions[ext]; ok {
			audio++
		}
	}
	switch {
	case video > audio:
		return ClassVideo
	case audio > video:
		return ClassAudio
	default:
		return ClassUnknown
	}
}

// ClassifyDir walks root and classifies every regular file under it. Walk
// errors propagate so callers do not act on a partial vote.
func ClassifyDir(root string) (Class, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			files = append(files, entry.Name())
		}
		return nil
	})
	if err != nil {
		return ClassUnknown, fmt.Errorf("classify %s: %w", root, err)
	}
	return DetectClass(files), nil
}
