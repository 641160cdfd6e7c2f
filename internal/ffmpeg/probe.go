package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/tailor-media/tailor/internal/issues"
)

// Probe runs ffprobe against path and returns its stream summary.
func (r *Runner) Probe(ctx context.Context, path string) (StreamInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	var stdout bytes.Buffer
	res := r.exec(ctx, r.ffprobe, &stdout,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if !res.IsSuccess() {
		return StreamInfo{}, fmt.Errorf("%w: %s: exit %d: %s",
			issues.ErrProbe, r.safePath(path), res.ExitCode, truncate(res.StderrTail, 256))
	}

	info, err := parseProbe(stdout.Bytes())
	if err != nil {
		return StreamInfo{}, fmt.Errorf("%w: %s: %v", issues.ErrProbe, r.safePath(path), err)
	}
	return info, nil
}

// Duration implements media.Prober.
func (r *Runner) Duration(ctx context.Context, path string) (float64, error) {
	info, err := r.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

func parseProbe(data []byte) (StreamInfo, error) {
	var result probeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return StreamInfo{}, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := StreamInfo{
		FormatName: result.Format.FormatName,
		HasAudio: lo.SomeBy(result.Streams, func(s probeStream) bool {
			return s.CodecType == "audio"
		}),
	}
	if video, ok := lo.Find(result.Streams, func(s probeStream) bool {
		return s.CodecType == "video"
	}); ok {
		info.Width = video.Width
		info.Height = video.Height
	}

	info.Duration = parseSeconds(result.Format.Duration)
	if info.Duration <= 0 {
		// Containers like mkv only carry duration on streams or their tags.
		for _, s := range result.Streams {
			d := max(parseSeconds(s.Duration), parseTagDuration(s.Tags.Duration))
			info.Duration = max(info.Duration, d)
		}
	}
	if info.Duration <= 0 {
		return info, fmt.Errorf("no duration reported")
	}
	return info, nil
}

func parseSeconds(s string) float64 {
	if s == "" || s == "N/A" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// parseTagDuration reads the HH:MM:SS.nnnnnnnnn form used by matroska tags.
func parseTagDuration(s string) float64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse("15:04:05.999999999", s)
	if err != nil {
		return 0
	}
	return float64(t.Hour()*3600+t.Minute()*60+t.Second()) + float64(t.Nanosecond())/1e9
}
