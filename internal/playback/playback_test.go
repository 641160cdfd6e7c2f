package playback

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		size      int64
		wantStart int64
		wantEnd   int64
		wantNil   bool
		wantErr   error
	}{
		{"empty header", "", 1000, 0, 0, true, nil},
		{"full range", "bytes=0-999", 1000, 0, 999, false, nil},
		{"open end", "bytes=500-", 1000, 500, 999, false, nil},
		{"suffix", "bytes=-500", 1000, 500, 999, false, nil},
		{"single byte", "bytes=0-0", 1000, 0, 0, false, nil},
		{"end clamped", "bytes=0-2000", 1000, 0, 999, false, nil},
		{"suffix larger than file", "bytes=-2000", 500, 0, 499, false, nil},
		{"multi range takes first", "bytes=0-99, 200-299", 1000, 0, 99, false, nil},

		{"start at size", "bytes=1000-", 1000, 0, 0, false, ErrUnsatisfiable},
		{"reversed", "bytes=200-100", 1000, 0, 0, false, ErrUnsatisfiable},
		{"suffix of empty file", "bytes=-10", 0, 0, 0, false, ErrUnsatisfiable},
		{"no unit", "0-100", 1000, 0, 0, false, ErrInvalidRange},
		{"wrong unit", "chars=0-100", 1000, 0, 0, false, ErrInvalidRange},
		{"no dash", "bytes=100", 1000, 0, 0, false, ErrInvalidRange},
		{"bad start", "bytes=abc-100", 1000, 0, 0, false, ErrInvalidRange},
		{"bad end", "bytes=0-abc", 1000, 0, 0, false, ErrInvalidRange},
		{"zero suffix", "bytes=-0", 1000, 0, 0, false, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "error = %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, Range{Start: tt.wantStart, End: tt.wantEnd}, *got)
		})
	}
}

func TestRange_Headers(t *testing.T) {
	r := Range{Start: 500, End: 999}
	assert.Equal(t, int64(500), r.ContentLength())
	assert.Equal(t, "bytes 500-999/1000", r.ContentRange(1000))
	assert.Equal(t, int64(1), Range{}.ContentLength())
}

func TestWithin(t *testing.T) {
	root := filepath.Join("/data", "out")
	assert.True(t, Within(root, filepath.Join(root, "a.mp4")))
	assert.True(t, Within(root, filepath.Join(root, "exp", "a.mp4")))
	assert.True(t, Within(root, root))
	assert.True(t, Within(root, filepath.Join(root, "..foo")))
	assert.False(t, Within(root, filepath.Join(root, "..", "secret")))
	assert.False(t, Within(root, "/data/outside.mp4"))
	assert.False(t, Within(root, "/data/out2/a.mp4"))
	assert.False(t, Within("", "/data/out/a.mp4"))
}

func writeSegment(t *testing.T) (root, path string) {
	t.Helper()
	root = t.TempDir()
	path = filepath.Join(root, "exp", "exp_subject1_H1.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))
	return root, path
}

func TestServeFile_Full(t *testing.T) {
	root, path := writeSegment(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/outputs/file", nil)

	require.NoError(t, NewServer(nil).ServeFile(rr, req, root, path))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "video/mp4", rr.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rr.Header().Get("Accept-Ranges"))
	assert.Equal(t, "0123456789", rr.Body.String())
}

func TestServeFile_Range(t *testing.T) {
	root, path := writeSegment(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/outputs/file", nil)
	req.Header.Set("Range", "bytes=2-5")

	require.NoError(t, NewServer(nil).ServeFile(rr, req, root, path))
	assert.Equal(t, http.StatusPartialContent, rr.Code)
	assert.Equal(t, "bytes 2-5/10", rr.Header().Get("Content-Range"))
	assert.Equal(t, "4", rr.Header().Get("Content-Length"))
	assert.Equal(t, "2345", rr.Body.String())
}

func TestServeFile_Unsatisfiable(t *testing.T) {
	root, path := writeSegment(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/outputs/file", nil)
	req.Header.Set("Range", "bytes=50-")

	require.NoError(t, NewServer(nil).ServeFile(rr, req, root, path))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rr.Code)
	assert.Equal(t, "bytes */10", rr.Header().Get("Content-Range"))
}

func TestServeFile_HeadHasNoBody(t *testing.T) {
	root, path := writeSegment(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, "/outputs/file", nil)

	require.NoError(t, NewServer(nil).ServeFile(rr, req, root, path))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("Content-Length"))
	assert.Empty(t, rr.Body.String())
}

func TestServeFile_OutsideRoot(t *testing.T) {
	root, _ := writeSegment(t)
	other := filepath.Join(t.TempDir(), "other.mp4")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/outputs/file", nil)
	err := NewServer(nil).ServeFile(rr, req, root, other)
	assert.True(t, errors.Is(err, ErrOutsideRoot))
	assert.Empty(t, rr.Body.String())
}

func TestServeFile_Missing(t *testing.T) {
	root := t.TempDir()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/outputs/file", nil)

	require.NoError(t, NewServer(nil).ServeFile(rr, req, root, filepath.Join(root, "gone.mp4")))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
