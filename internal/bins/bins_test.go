package bins

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailor-media/tailor/internal/issues"
)

func TestPlan_Examples(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		start    float64
		length   float64
		want     []TimeRange
	}{
		{"exact fit", 10, 0, 10, []TimeRange{{0, 10}}},
		{"truncated last bin", 25, 0, 10, []TimeRange{{0, 10}, {10, 20}, {20, 25}}},
		{"offset", 25, 5, 10, []TimeRange{{5, 15}, {15, 25}}},
		{"bin longer than footage", 1800, 0, 3600, []TimeRange{{0, 1800}}},
		{"hourly", 7300, 0, 3600, []TimeRange{{0, 3600}, {3600, 7200}, {7200, 7300}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Plan(tt.duration, tt.start, tt.length)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlan_InvalidConfig(t *testing.T) {
	tests := []struct {
		name                    string
		duration, start, length float64
	}{
		{"zero length", 10, 0, 0},
		{"negative length", 10, 0, -1},
		{"start at end", 10, 10, 1},
		{"start past end", 10, 11, 1},
		{"negative start", 10, -1, 1},
		{"zero duration", 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(tt.duration, tt.start, tt.length)
			require.Error(t, err)
			assert.True(t, errors.Is(err, issues.ErrInvalidBinConfig), "got %v", err)
		})
	}
}

func TestPlan_TooManyBins(t *testing.T) {
	_, err := Plan(10*3600, 0, 0.1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, issues.ErrTooManyBins))

	got, err := Plan(MaxBins, 0, 1)
	require.NoError(t, err)
	assert.Len(t, got, MaxBins)
}

func TestPlan_ContiguousCoverage(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		duration := 0.5 + rng.Float64()*20000
		start := rng.Float64() * duration * 0.999
		length := 0.05 + rng.Float64()*5000
		if (duration-start)/length > MaxBins {
			continue
		}

		got, err := Plan(duration, start, length)
		require.NoError(t, err, "duration=%v start=%v length=%v", duration, start, length)
		require.NotEmpty(t, got)

		assert.Equal(t, start, got[0].Start)
		assert.Equal(t, duration, got[len(got)-1].End)
		for j, r := range got {
			require.Less(t, r.Start, r.End, "bin %d of %v/%v/%v", j, duration, start, length)
			require.LessOrEqual(t, r.Length(), length+1e-9)
			if j > 0 {
				require.Equal(t, got[j-1].End, r.Start, "gap before bin %d", j)
			}
		}
	}
}

func TestPlan_FloatingEdges(t *testing.T) {
	got, err := Plan(1.1, 0, 0.1)
	require.NoError(t, err)
	assert.Len(t, got, 11)
	assert.Equal(t, 1.1, got[len(got)-1].End)

	got, err = Plan(0.3, 0, 0.1)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCount_MatchesPlan(t *testing.T) {
	n, err := Count(25, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestConfig_Accept(t *testing.T) {
	assert.NoError(t, Config{StartOffset: 0, BinLength: 10}.Accept(10))
	assert.NoError(t, Config{StartOffset: 5, BinLength: 5}.Accept(10))

	err := Config{StartOffset: 5, BinLength: 6}.Accept(10)
	assert.True(t, errors.Is(err, issues.ErrInvalidBinConfig))

	err = Config{StartOffset: 10, BinLength: 1}.Accept(10)
	assert.True(t, errors.Is(err, issues.ErrInvalidBinConfig))
}

func TestConfig_IsHourly(t *testing.T) {
	assert.True(t, DefaultConfig().IsHourly())
	assert.False(t, Config{BinLength: 3599.5}.IsHourly())
}

func TestTimeRange_String(t *testing.T) {
	assert.Equal(t, "00:00:10-00:00:25", TimeRange{Start: 10, End: 25}.String())
}
