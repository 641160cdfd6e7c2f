package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Video is one input file of a batch. ID is unique within the batch.
type Video struct {
	ID       string  `json:"id"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration_s"`
}

// Stem returns the file name without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NewVideos derives batch-unique IDs from the file names. A repeated name
// gets a "~N" suffix in input order.
func NewVideos(paths []string) []Video {
	seen := make(map[string]int, len(paths))
	videos := make([]Video, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		id := base
		seen[base]++
		if n := seen[base]; n > 1 {
			id = fmt.Sprintf("%s~%d", base, n)
			for seen[id] > 0 {
				n++
				id = fmt.Sprintf("%s~%d", base, n)
			}
			seen[id]++
		}
		videos = append(videos, Video{ID: id, Path: p})
	}
	return videos
}
