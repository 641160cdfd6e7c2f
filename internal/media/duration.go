package media

import (
	"context"
	"fmt"
	"log/slog"

	cache "github.com/Code-Hex/go-generics-cache"
	"golang.org/x/sync/singleflight"

	"github.com/tailor-media/tailor/internal/issues"
)

// SentinelDuration stands in for a duration that could not be probed, so
// planning still yields one bin covering the remainder of the file.
const SentinelDuration = 86400.0

type probeOutcome struct {
	seconds float64
	err     error
}

// DurationCache memoizes a Prober for the lifetime of one plan. The first
// probe of a path wins, including failed probes. Concurrent lookups of the
// same path share one probe; different paths probe in parallel.
type DurationCache struct {
	prober Prober
	logger *slog.Logger

	group singleflight.Group
	store *cache.Cache[string, probeOutcome]
}

func NewDurationCache(prober Prober, logger *slog.Logger) *DurationCache {
	return &DurationCache{
		prober: prober,
		logger: logger,
		store:  cache.New[string, probeOutcome](),
	}
}

// Duration returns the cached duration for path. When probing failed the
// sentinel duration is returned together with an error wrapping
// issues.ErrProbe; the value is still usable for planning.
func (c *DurationCache) Duration(ctx context.Context, path string) (float64, error) {
	if out, ok := c.store.Get(path); ok {
		return out.seconds, out.err
	}
	v, _, _ := c.group.Do(path, func() (any, error) {
		if out, ok := c.store.Get(path); ok {
			return out, nil
		}
		out := c.probe(ctx, path)
		c.store.Set(path, out)
		return out, nil
	})
	out := v.(probeOutcome)
	return out.seconds, out.err
}

func (c *DurationCache) probe(ctx context.Context, path string) probeOutcome {
	seconds, err := c.prober.Duration(ctx, path)
	switch {
	case err != nil:
		err = fmt.Errorf("%w: %s: %v", issues.ErrProbe, path, err)
		seconds = SentinelDuration
	case seconds <= 0:
		err = fmt.Errorf("%w: %s: non-positive duration %v", issues.ErrProbe, path, seconds)
		seconds = SentinelDuration
	}
	if err != nil && c.logger != nil {
		c.logger.Warn("duration probe failed, using sentinel", "path", path, "sentinel_s", SentinelDuration, "error", err)
	}
	return probeOutcome{seconds: seconds, err: err}
}

// Resolve fills in durations for every video, returning a ProbeError warning
// for each one that fell back to the sentinel.
func (c *DurationCache) Resolve(ctx context.Context, videos []Video) ([]Video, []issues.Warning) {
	out := make([]Video, len(videos))
	var warnings []issues.Warning
	for i, v := range videos {
		seconds, err := c.Duration(ctx, v.Path)
		v.Duration = seconds
		out[i] = v
		if err != nil {
			warnings = append(warnings, issues.Warning{
				Kind:    issues.KindProbeError,
				VideoID: v.ID,
				Message: fmt.Sprintf("duration unknown, assuming %.0fs: %v", SentinelDuration, err),
			})
		}
	}
	return out, warnings
}
