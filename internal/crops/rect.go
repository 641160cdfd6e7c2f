package crops

import (
	"fmt"
	"math"
)

// Rect is a crop region in source pixel coordinates.
type Rect struct {
	X int `json:"x" toml:"x"`
	Y int `json:"y" toml:"y"`
	W int `json:"w" toml:"w"`
	H int `json:"h" toml:"h"`
}

// RectFromFloat rounds a rectangle reported by a drawing tool to whole pixels.
func RectFromFloat(x, y, w, h float64) Rect {
	return Rect{
		X: int(math.Round(x)),
		Y: int(math.Round(y)),
		W: int(math.Round(w)),
		H: int(math.Round(h)),
	}
}

func (r Rect) Validate() error {
	if r.X < 0 || r.Y < 0 || r.W < 0 || r.H < 0 {
		return fmt.Errorf("crop %s has negative components", r)
	}
	if r.W == 0 || r.H == 0 {
		return fmt.Errorf("crop %s has zero area", r)
	}
	return nil
}

// Fits reports whether the rectangle lies within a frame of the given size.
func (r Rect) Fits(frameWidth, frameHeight int) bool {
	return r.X+r.W <= frameWidth && r.Y+r.H <= frameHeight
}

// Filter renders the ffmpeg crop filter argument, crop=w:h:x:y.
func (r Rect) Filter() string {
	return fmt.Sprintf("crop=%d:%d:%d:%d", r.W, r.H, r.X, r.Y)
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.W, r.H, r.X, r.Y)
}
