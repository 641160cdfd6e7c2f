// Package ffmpeg drives the ffmpeg and ffprobe executables: duration
// probing, single-segment transcodes and tool availability checks.
package ffmpeg

import "time"

// Capabilities describes the installed tools, as found by RunDoctor.
type Capabilities struct {
	FFmpeg     ToolInfo  `json:"ffmpeg"`
	FFprobe    ToolInfo  `json:"ffprobe"`
	HasLibx264 bool      `json:"has_libx264"`
	ProbedAt   time.Time `json:"probed_at"`
}

// Ready reports whether both tools answered.
func (c Capabilities) Ready() bool {
	return c.FFmpeg.Available && c.FFprobe.Available
}

type ToolInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunResult is the outcome of one tool invocation.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Duration   time.Duration `json:"duration"`
}

func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// StreamInfo is the subset of ffprobe output the agent uses.
type StreamInfo struct {
	Duration   float64 `json:"duration_s"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	HasAudio   bool    `json:"has_audio"`
	FormatName string  `json:"format_name"`
}

type probeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
	Tags      struct {
		Duration string `json:"DURATION"`
	} `json:"tags"`
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Filename   string `json:"filename"`
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
	} `json:"format"`
}
