// Package bins splits a video's timeline into fixed-length segments.
package bins

import (
	"fmt"
	"math"

	"github.com/tailor-media/tailor/internal/issues"
	"github.com/tailor-media/tailor/internal/timemodel"
)

const (
	// MaxBins caps how many segments a single video may expand into.
	MaxBins = 100_000

	HourSeconds = 3600
)

// TimeRange is a half-open [Start, End) interval in seconds.
type TimeRange struct {
	Start float64 `json:"start_s"`
	End   float64 `json:"end_s"`
}

func (r TimeRange) Length() float64 {
	return r.End - r.Start
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s-%s", timemodel.FormatHMS(r.Start), timemodel.FormatHMS(r.End))
}

// Config is the per-video (or shared) binning setup.
type Config struct {
	StartOffset float64 `json:"start_offset_s"`
	BinLength   float64 `json:"bin_length_s"`
}

// DefaultConfig splits from the start into one-hour bins.
func DefaultConfig() Config {
	return Config{StartOffset: 0, BinLength: HourSeconds}
}

// IsHourly reports whether outputs are labelled by hour instead of bin number.
func (c Config) IsHourly() bool {
	return c.BinLength == HourSeconds
}

// Accept applies the strict acceptance rule used by interactive callers: the
// bin must fit in the footage remaining after the start offset.
func (c Config) Accept(duration float64) error {
	if err := validate(duration, c.StartOffset, c.BinLength); err != nil {
		return err
	}
	if c.BinLength > duration-c.StartOffset {
		return fmt.Errorf("%w: bin length %s exceeds remaining footage %s",
			issues.ErrInvalidBinConfig,
			timemodel.FormatHMS(c.BinLength), timemodel.FormatHMS(duration-c.StartOffset))
	}
	return nil
}

func (c Config) Plan(duration float64) ([]TimeRange, error) {
	return Plan(duration, c.StartOffset, c.BinLength)
}

// Plan returns the ordered, contiguous bins covering [startOffset, duration).
// The final bin is truncated to duration.
func Plan(duration, startOffset, binLength float64) ([]TimeRange, error) {
	n, err := Count(duration, startOffset, binLength)
	if err != nil {
		return nil, err
	}

	ranges := make([]TimeRange, n)
	for i := range n {
		end := binStart(startOffset, binLength, i+1)
		if i == n-1 || end > duration {
			end = duration
		}
		ranges[i] = TimeRange{
			Start: binStart(startOffset, binLength, i),
			End:   end,
		}
	}
	return ranges, nil
}

// Count returns ceil((duration-startOffset)/binLength) without materializing
// the bins.
func Count(duration, startOffset, binLength float64) (int, error) {
	if err := validate(duration, startOffset, binLength); err != nil {
		return 0, err
	}

	raw := (duration - startOffset) / binLength
	if raw > MaxBins {
		return 0, fmt.Errorf("%w: %.0f bins requested, limit is %d", issues.ErrTooManyBins, math.Ceil(raw), MaxBins)
	}

	n := int(math.Ceil(raw))
	if n < 1 {
		n = 1
	}
	// Division rounding can land one off in either direction.
	for n > 1 && binStart(startOffset, binLength, n-1) >= duration {
		n--
	}
	for binStart(startOffset, binLength, n) < duration {
		n++
	}
	if n > MaxBins {
		return 0, fmt.Errorf("%w: %d bins requested, limit is %d", issues.ErrTooManyBins, n, MaxBins)
	}
	return n, nil
}

func binStart(startOffset, binLength float64, i int) float64 {
	return startOffset + float64(i)*binLength
}

func validate(duration, startOffset, binLength float64) error {
	switch {
	case math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0:
		return fmt.Errorf("%w: duration must be positive, got %v", issues.ErrInvalidBinConfig, duration)
	case math.IsNaN(binLength) || math.IsInf(binLength, 0) || binLength <= 0:
		return fmt.Errorf("%w: bin length must be positive, got %v", issues.ErrInvalidBinConfig, binLength)
	case math.IsNaN(startOffset) || startOffset < 0:
		return fmt.Errorf("%w: start offset must not be negative, got %v", issues.ErrInvalidBinConfig, startOffset)
	case startOffset >= duration:
		return fmt.Errorf("%w: start offset %s is not before end %s", issues.ErrInvalidBinConfig,
			timemodel.FormatHMS(startOffset), timemodel.FormatHMS(duration))
	}
	return nil
}
