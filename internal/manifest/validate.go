package manifest

import (
	"fmt"
	"strings"

	"github.com/tailor-media/tailor/internal/bins"
	"github.com/tailor-media/tailor/internal/crops"
	"github.com/tailor-media/tailor/internal/media"
	"github.com/tailor-media/tailor/internal/naming"
	"github.com/tailor-media/tailor/internal/timemodel"
)

// Validate checks m after Normalize. All problems are reported together.
func (m *Manifest) Validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if naming.Modes.Parse(m.Mode.Value) == nil {
		addf("unknown mode %q", m.Mode.Value)
	}
	if strings.TrimSpace(m.OutputDir) == "" {
		addf("output_dir is required")
	}
	if len(m.Videos) == 0 {
		addf("at least one video is required")
	}
	if !isPlainExtension(m.Extension) {
		addf("extension %q must be letters and digits only", m.Extension)
	}
	if m.Codec.CRF < 0 || m.Codec.CRF > 51 {
		addf("codec crf %d out of range 0-51", m.Codec.CRF)
	}

	if m.Mode.Trims() {
		if m.SameSettings && m.Bins == nil {
			addf("mode %s with same_settings requires a [bins] section", m.Mode.Value)
		}
		if m.Bins != nil {
			if _, err := m.Bins.Config(); err != nil {
				addf("bins: %v", err)
			}
		}
	}

	videos := media.NewVideos(m.Paths())
	activeFound := m.ActiveVideo == ""
	for i, v := range m.Videos {
		label := fmt.Sprintf("videos[%d]", i)
		if strings.TrimSpace(v.Path) == "" {
			addf("%s: path is required", label)
			continue
		}
		if m.ActiveVideo == v.Path || m.ActiveVideo == videos[i].ID {
			activeFound = true
		}

		if _, err := v.SubjectList(); err != nil {
			addf("%s: %v", label, err)
		}
		if v.Frame != nil && (v.Frame.Width <= 0 || v.Frame.Height <= 0) {
			addf("%s: frame must have positive width and height", label)
		}
		for key, rect := range v.Crops {
			if !crops.ValidSubjectID(key) {
				addf("%s: invalid subject id %q in crops", label, key)
				continue
			}
			if vErr := rect.Validate(); vErr != nil {
				addf("%s: subject %s: %v", label, key, vErr)
				continue
			}
			if v.Frame != nil && !rect.Fits(v.Frame.Width, v.Frame.Height) {
				addf("%s: subject %s: crop %s exceeds frame %dx%d", label, key, rect, v.Frame.Width, v.Frame.Height)
			}
		}
		if v.Bins != nil && m.Mode.Trims() && !m.SameSettings {
			if _, bErr := v.Bins.Config(); bErr != nil {
				addf("%s: bins: %v", label, bErr)
			}
		}
	}
	if !activeFound {
		addf("active_video %q does not match any video", m.ActiveVideo)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(problems, "; "))
	}
	return nil
}

// Config parses the clock strings. An empty start means zero; an empty
// length means one hour.
func (b BinSpec) Config() (bins.Config, error) {
	cfg := bins.DefaultConfig()
	if strings.TrimSpace(b.Start) != "" {
		start, err := timemodel.ParseClock(b.Start)
		if err != nil {
			return cfg, fmt.Errorf("start: %w", err)
		}
		cfg.StartOffset = start
	}
	if strings.TrimSpace(b.Length) != "" {
		length, err := timemodel.ParseClock(b.Length)
		if err != nil {
			return cfg, fmt.Errorf("length: %w", err)
		}
		cfg.BinLength = length
	}
	if cfg.BinLength <= 0 {
		return cfg, fmt.Errorf("length must be positive")
	}
	return cfg, nil
}

// SubjectList parses the declared subjects, defaulting to 1,2,3.
func (v VideoSpec) SubjectList() ([]crops.SubjectID, error) {
	if strings.TrimSpace(v.Subjects) == "" {
		return append([]crops.SubjectID(nil), crops.DefaultSubjects...), nil
	}
	return crops.ParseSubjectList(v.Subjects)
}

func isPlainExtension(ext string) bool {
	if ext == "" || len(ext) > 8 {
		return false
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
