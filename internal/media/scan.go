package media

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
}

func IsVideoFile(name string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(name))]
}

// ScanVideos walks root and returns every video file below it in lexical
// order. Hidden directories are skipped; unreadable entries are ignored.
func ScanVideos(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsVideoFile(d.Name()) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
