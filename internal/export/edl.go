// Package export renders planned segments as a CMX3600 edit decision list,
// so a batch can be reviewed in an editor before or instead of transcoding.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"
	"unicode"

	"github.com/tailor-media/tailor/internal/naming"
)

const DefaultFrameRate = 30.0

// Event is one segment on the EDL timeline.
type Event struct {
	Name   string
	Source string
	Start  float64
	End    float64
	// Crop is noted as a comment; EDLs have no crop field.
	Crop string
}

// FromPlan turns planned tasks into events, in plan order.
func FromPlan(tasks []naming.OutputTask) []Event {
	events := make([]Event, 0, len(tasks))
	for _, t := range tasks {
		e := Event{
			Name:   t.Filename,
			Source: t.VideoPath,
			Start:  t.Range.Start,
			End:    t.Range.End,
		}
		if t.Crop != nil {
			e.Crop = t.Crop.Filter()
		}
		events = append(events, e)
	}
	return events
}

// WriteEDL writes events back to back on the record timeline. Source
// timecodes are the segment bounds in the original video.
func WriteEDL(w io.Writer, title string, events []Event, frameRate float64) error {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
	}
	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{"TITLE: " + sanitizeTitle(title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	record := 0.0
	for i, e := range events {
		length := max(e.End-e.Start, 0)
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				timecode(e.Start, fps), timecode(e.Start+length, fps),
				timecode(record, fps), timecode(record+length, fps)),
			"* FROM CLIP NAME:  "+e.Name,
			"* SOURCE FILE:  "+e.Source,
		)
		if e.Crop != "" {
			lines = append(lines, "* CROP:  "+e.Crop)
		}
		record += length
	}
	lines = append(lines, "")

	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

func timecode(seconds float64, fps int) string {
	totalFrames := int(math.Round(seconds * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", totalSeconds/3600, totalSeconds/60%60, totalSeconds%60, frames)
}

// sanitizeTitle keeps the title on one line and within 70 characters.
func sanitizeTitle(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.,()", r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if runes := []rune(cleaned); len(runes) > 70 {
		cleaned = string(runes[:70])
	}
	if cleaned == "" {
		return "tailor"
	}
	return cleaned
}
