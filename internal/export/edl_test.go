package export

import (
	"strings"
	"testing"

	"github.com/tailor-media/tailor/internal/bins"
	"github.com/tailor-media/tailor/internal/crops"
	"github.com/tailor-media/tailor/internal/naming"
)

func render(t *testing.T, title string, events []Event, fps float64) string {
	t.Helper()
	var b strings.Builder
	if err := WriteEDL(&b, title, events, fps); err != nil {
		t.Fatalf("WriteEDL() error = %v", err)
	}
	return b.String()
}

func TestWriteEDL_SingleEvent(t *testing.T) {
	edl := render(t, "Session One", []Event{{
		Name:   "exp_subject1_H1.mp4",
		Source: "/videos/exp.mp4",
		Start:  0,
		End:    2,
	}}, 30.0)

	if !strings.Contains(edl, "TITLE: Session One") {
		t.Fatalf("missing title in EDL: %q", edl)
	}
	if !strings.Contains(edl, "FCM: NON-DROP FRAME") {
		t.Fatalf("missing non-drop-frame FCM: %q", edl)
	}
	if !strings.Contains(edl, "001  AX       V     C        00:00:00:00 00:00:02:00 00:00:00:00 00:00:02:00") {
		t.Fatalf("missing event line: %q", edl)
	}
	if !strings.Contains(edl, "* FROM CLIP NAME:  exp_subject1_H1.mp4") {
		t.Fatalf("missing clip name comment: %q", edl)
	}
	if !strings.Contains(edl, "* SOURCE FILE:  /videos/exp.mp4") {
		t.Fatalf("missing source comment: %q", edl)
	}
	if strings.Contains(edl, "* CROP:") {
		t.Fatalf("unexpected crop comment: %q", edl)
	}
}

func TestWriteEDL_RecordTimelineAccumulates(t *testing.T) {
	events := []Event{
		{Name: "a_bin_1.mp4", Source: "/a.mp4", Start: 3600, End: 5400},
		{Name: "b_bin_1.mp4", Source: "/b.mp4", Start: 0, End: 1.5},
	}

	edl := render(t, "Multi", events, 30.0)

	if !strings.Contains(edl, "001  AX       V     C        01:00:00:00 01:30:00:00 00:00:00:00 00:30:00:00") {
		t.Fatalf("first event line mismatch: %q", edl)
	}
	if !strings.Contains(edl, "002  AX       V     C        00:00:00:00 00:00:01:15 00:30:00:00 00:30:01:15") {
		t.Fatalf("second event line mismatch or bad record offset: %q", edl)
	}
}

func TestWriteEDL_DropFrameHeader(t *testing.T) {
	edl := render(t, "DF", nil, 29.97)
	if !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Fatalf("expected drop-frame header: %q", edl)
	}
}

func TestWriteEDL_DefaultFrameRate(t *testing.T) {
	edl := render(t, "Zero", []Event{{Name: "x", Source: "/x.mp4", Start: 0, End: 1}}, 0)
	if !strings.Contains(edl, "00:00:00:00 00:00:01:00") {
		t.Fatalf("expected 30fps fallback: %q", edl)
	}
}

func TestFromPlan(t *testing.T) {
	tasks := []naming.OutputTask{
		{
			VideoPath: "/videos/a.mp4",
			Filename:  "a_subject2_H1.mp4",
			Range:     bins.TimeRange{Start: 0, End: 3600},
			Crop:      &crops.Rect{X: 10, Y: 20, W: 640, H: 480},
		},
		{VideoPath: "/videos/b.mp4", Filename: "b_part_1.mp4", Range: bins.TimeRange{Start: 0, End: 90}},
	}

	events := FromPlan(tasks)
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Crop != "crop=640:480:10:20" {
		t.Errorf("events[0].Crop = %q", events[0].Crop)
	}
	if events[1].Crop != "" || events[1].End != 90 {
		t.Errorf("events[1] = %+v", events[1])
	}

	edl := render(t, "plan", events, 25)
	if !strings.Contains(edl, "* CROP:  crop=640:480:10:20") {
		t.Fatalf("missing crop comment: %q", edl)
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Session One", "Session One"},
		{"bad\nline", "badline"},
		{"a/b:c", "a_b_c"},
		{"   ", "tailor"},
		{strings.Repeat("x", 80), strings.Repeat("x", 70)},
	}
	for _, tt := range tests {
		if got := sanitizeTitle(tt.in); got != tt.want {
			t.Errorf("sanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
