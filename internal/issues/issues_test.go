package issues

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarningString(t *testing.T) {
	tests := []struct {
		w    Warning
		want string
	}{
		{
			Warning{Kind: KindPrefixCollision, Message: "prefix shared"},
			"prefix_collision: prefix shared",
		},
		{
			Warning{Kind: KindUndefinedCrop, VideoID: "a.mp4", SubjectID: "2", BinIndex: 3, Message: "no rectangle"},
			"undefined_crop [video=a.mp4 subject=2 bin=3]: no rectangle",
		},
		{
			Warning{Kind: KindProbeError, VideoID: "b.mp4", Message: "ffprobe failed"},
			"probe_error [video=b.mp4]: ffprobe failed",
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.w.String())
	}
}

func TestKindJSON(t *testing.T) {
	data, err := json.Marshal(Warning{Kind: KindTooManyBins, VideoID: "a.mp4", Message: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"too_many_bins"`)

	var w Warning
	require.NoError(t, json.Unmarshal(data, &w))
	assert.Equal(t, KindTooManyBins, w.Kind)

	err = json.Unmarshal([]byte(`{"kind":"nope","message":"x"}`), &w)
	assert.ErrorContains(t, err, `unknown warning kind "nope"`)
}

func TestOfKind(t *testing.T) {
	warnings := []Warning{
		{Kind: KindProbeError, VideoID: "a"},
		{Kind: KindUndefinedCrop, VideoID: "a"},
		{Kind: KindProbeError, VideoID: "b"},
	}

	got := OfKind(warnings, KindProbeError)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].VideoID)
	assert.Empty(t, OfKind(warnings, KindPackagingError))
}

func TestSentinelsClassifyWrappedErrors(t *testing.T) {
	err := fmt.Errorf("%w: a.mp4: exit status 1", ErrTranscode)
	assert.True(t, errors.Is(err, ErrTranscode))
	assert.False(t, errors.Is(err, ErrProbe))
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	Log(logger, []Warning{{Kind: KindSubjectsRemoved, VideoID: "a.mp4", SubjectID: "3", Message: "crop discarded"}})
	Log(nil, []Warning{{Kind: KindSubjectsRemoved}})

	line := buf.String()
	assert.Equal(t, 1, strings.Count(line, "\n"))
	assert.Contains(t, line, `"level":"WARN"`)
	assert.Contains(t, line, `"kind":"subjects_removed"`)
	assert.Contains(t, line, `"subject":"3"`)
}
