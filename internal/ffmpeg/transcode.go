package ffmpeg

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tailor-media/tailor/internal/issues"
	"github.com/tailor-media/tailor/internal/media"
)

// BuildArgs renders the ffmpeg command line for one segment. Input seeking
// (-ss before -i) is used so long sources start quickly. Cropped segments
// never carry audio.
func BuildArgs(req media.TranscodeRequest) []string {
	codec := req.Codec.WithDefaults()

	args := []string{
		"-y", "-hide_banner", "-nostdin",
		"-progress", "pipe:1",
		"-ss", formatSeconds(req.Range.Start),
		"-i", req.InputPath,
		"-t", formatSeconds(req.Range.Length()),
	}
	if req.Crop != nil {
		args = append(args, "-vf", req.Crop.Filter())
	}
	args = append(args, "-c:v", codec.VideoCodec)
	if codec.Preset != "" {
		args = append(args, "-preset", codec.Preset)
	}
	if codec.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(codec.CRF))
	}
	if codec.DropAudio || req.Crop != nil {
		args = append(args, "-an")
	} else {
		args = append(args, "-c:a", codec.AudioCodec)
	}
	return append(args, req.OutputPath)
}

// Transcode implements media.Transcoder.
func (r *Runner) Transcode(ctx context.Context, req media.TranscodeRequest) error {
	if req.Range.Length() <= 0 {
		return fmt.Errorf("%w: empty range %s", issues.ErrTranscode, req.Range)
	}
	if req.Crop != nil {
		if err := req.Crop.Validate(); err != nil {
			return fmt.Errorf("%w: %v", issues.ErrTranscode, err)
		}
	}

	args := BuildArgs(req)
	stdout := &lineWriter{fn: parseProgress(req.Range.Length(), func(p Progress) {
		if req.Progress != nil {
			req.Progress(p.Percent / 100)
		}
	})}

	r.cfg.Logger.Debug("transcoding segment",
		"input", r.safePath(req.InputPath),
		"range", req.Range.String(),
		"crop", cropText(req),
	)

	res := r.exec(ctx, r.ffmpeg, stdout, args...)
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", issues.ErrCancelled, ctx.Err())
	}
	if !res.IsSuccess() {
		return fmt.Errorf("%w: ffmpeg exit %d: %s", issues.ErrTranscode, res.ExitCode, truncate(res.StderrTail, 512))
	}
	return nil
}

// formatSeconds prints seconds with millisecond precision, the finest
// granularity the clock model carries.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func cropText(req media.TranscodeRequest) string {
	if req.Crop == nil {
		return "none"
	}
	return req.Crop.String()
}
