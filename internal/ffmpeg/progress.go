package ffmpeg

import (
	"strconv"
	"strings"
)

// Progress is one snapshot of `-progress pipe:1` output.
type Progress struct {
	Percent        float64 `json:"percent"`
	CurrentSeconds float64 `json:"current_seconds"`
	TotalSeconds   float64 `json:"total_seconds"`
	Speed          string  `json:"speed"`
	Done           bool    `json:"done"`
}

// parseProgress returns a line handler for ffmpeg's key=value progress
// stream. cb fires once per block, on each `progress=` line.
func parseProgress(totalSeconds float64, cb func(Progress)) func(string) {
	progress := Progress{TotalSeconds: totalSeconds}

	return func(line string) {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			return
		}

		switch key {
		case "out_time_us", "out_time_ms":
			// out_time_ms is microseconds too; an old ffmpeg naming quirk.
			us, err := strconv.ParseFloat(value, 64)
			if err != nil || us < 0 {
				return
			}
			progress.CurrentSeconds = us / 1e6
			if progress.TotalSeconds > 0 {
				progress.Percent = min(progress.CurrentSeconds/progress.TotalSeconds*100, 100)
			}
		case "speed":
			progress.Speed = value
		case "progress":
			if value == "end" {
				progress.Percent = 100
				progress.Done = true
			}
			if cb != nil {
				cb(progress)
			}
		}
	}
}
