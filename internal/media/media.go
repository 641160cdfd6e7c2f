// Package media defines the video descriptors used by a batch and the
// contracts for the external probe and transcode tools.
package media

import (
	"context"

	"github.com/tailor-media/tailor/internal/bins"
	"github.com/tailor-media/tailor/internal/crops"
)

// Prober reports a video's duration in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Transcoder produces one clipped and optionally cropped segment.
type Transcoder interface {
	Transcode(ctx context.Context, req TranscodeRequest) error
}

// TranscodeRequest describes a single segment. OutputPath is written in full
// or not at all from the caller's point of view; callers pass a temporary
// name and rename on success.
type TranscodeRequest struct {
	InputPath  string
	Range      bins.TimeRange
	Crop       *crops.Rect
	OutputPath string
	Codec      CodecOptions

	// Progress, when set, receives completion in [0, 1].
	Progress func(fraction float64)
}

type CodecOptions struct {
	VideoCodec string `json:"video" toml:"video"`
	AudioCodec string `json:"audio" toml:"audio"`
	DropAudio  bool   `json:"drop_audio" toml:"drop_audio"`
	Preset     string `json:"preset,omitempty" toml:"preset"`
	CRF        int    `json:"crf,omitempty" toml:"crf"`
}

func DefaultCodecOptions() CodecOptions {
	return CodecOptions{
		VideoCodec: "libx264",
		AudioCodec: "aac",
	}
}

// WithDefaults fills empty codec names.
func (o CodecOptions) WithDefaults() CodecOptions {
	def := DefaultCodecOptions()
	if o.VideoCodec == "" {
		o.VideoCodec = def.VideoCodec
	}
	if o.AudioCodec == "" {
		o.AudioCodec = def.AudioCodec
	}
	return o
}
