package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailor-media/tailor/internal/bins"
	"github.com/tailor-media/tailor/internal/crops"
	"github.com/tailor-media/tailor/internal/issues"
	"github.com/tailor-media/tailor/internal/media"
	"github.com/tailor-media/tailor/internal/naming"
)

type fakeTranscoder struct {
	calls atomic.Int32

	mu       sync.Mutex
	requests []media.TranscodeRequest
	fn       func(ctx context.Context, req media.TranscodeRequest) error
}

func (f *fakeTranscoder) Transcode(ctx context.Context, req media.TranscodeRequest) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return os.WriteFile(req.OutputPath, []byte("segment"), 0644)
}

type fakePackager struct {
	calls   atomic.Int32
	files   []string
	archive string
	err     error
}

func (f *fakePackager) Archive(_ context.Context, root string, files []string, archivePath string) error {
	f.calls.Add(1)
	f.files = files
	f.archive = archivePath
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(archivePath, []byte("zip"), 0644)
}

func makeTasks(root string, n int) []naming.OutputTask {
	tasks := make([]naming.OutputTask, n)
	for i := range tasks {
		name := fmt.Sprintf("exp_subject1_bin_%d.mp4", i+1)
		tasks[i] = naming.OutputTask{
			Seq:        i + 1,
			VideoID:    "v.mp4",
			VideoPath:  "/in/v.mp4",
			SubjectID:  "1",
			BinIndex:   i + 1,
			Range:      bins.TimeRange{Start: float64(i * 10), End: float64(i*10 + 10)},
			Crop:       &crops.Rect{W: 10, H: 10},
			Candidate:  name,
			Filename:   name,
			RelPath:    name,
			OutputPath: filepath.Join(root, name),
		}
	}
	return tasks
}

func TestExecute_IsolatesFailure(t *testing.T) {
	root := t.TempDir()
	tasks := makeTasks(root, 5)

	tr := &fakeTranscoder{fn: func(_ context.Context, req media.TranscodeRequest) error {
		if req.Range.Start == 20 {
			return errors.New("exit status 1: invalid data found")
		}
		return os.WriteFile(req.OutputPath, []byte("segment"), 0644)
	}}

	result, err := New(tr, &fakePackager{}, nil, Options{}).Execute(context.Background(), root, tasks)
	require.NoError(t, err)

	assert.Equal(t, int32(5), tr.calls.Load())
	require.Len(t, result.Succeeded, 4)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 3, result.Failed[0].Task.Seq)
	assert.Contains(t, result.Failed[0].Reason, "invalid data found")
	assert.True(t, errors.Is(result.Outcomes[2].Err, issues.ErrTranscode))

	assert.Equal(t, []string{
		filepath.Join(root, "exp_subject1_bin_1.mp4"),
		filepath.Join(root, "exp_subject1_bin_2.mp4"),
		filepath.Join(root, "exp_subject1_bin_4.mp4"),
		filepath.Join(root, "exp_subject1_bin_5.mp4"),
	}, result.Succeeded)

	_, err = os.Stat(filepath.Join(root, "exp_subject1_bin_3.mp4"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, root, result.DeliveredPath)
}

func TestExecute_SequentialOrder(t *testing.T) {
	root := t.TempDir()
	tasks := makeTasks(root, 4)
	tr := &fakeTranscoder{}

	_, err := New(tr, nil, nil, Options{}).Execute(context.Background(), root, tasks)
	require.NoError(t, err)

	starts := lo.Map(tr.requests, func(r media.TranscodeRequest, _ int) float64 { return r.Range.Start })
	assert.Equal(t, []float64{0, 10, 20, 30}, starts)
}

func TestExecute_WritesThroughPartialName(t *testing.T) {
	root := t.TempDir()
	tasks := makeTasks(root, 1)
	tr := &fakeTranscoder{}

	result, err := New(tr, nil, nil, Options{}).Execute(context.Background(), root, tasks)
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)

	require.Len(t, tr.requests, 1)
	assert.Equal(t, filepath.Join(root, ".partial-exp_subject1_bin_1.mp4"), tr.requests[0].OutputPath)
	assert.True(t, strings.HasSuffix(tr.requests[0].OutputPath, ".mp4"))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"exp_subject1_bin_1.mp4"}, lo.Map(entries, func(e os.DirEntry, _ int) string { return e.Name() }))
}

func TestExecute_EmptyOutputIsFailure(t *testing.T) {
	root := t.TempDir()
	tr := &fakeTranscoder{fn: func(context.Context, media.TranscodeRequest) error { return nil }}

	result, err := New(tr, nil, nil, Options{}).Execute(context.Background(), root, makeTasks(root, 1))
	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Reason, "no output")
}

func TestExecute_CreatesNestedDirs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	tasks := []naming.OutputTask{{
		Seq:        1,
		VideoPath:  "/in/a.mp4",
		Range:      bins.TimeRange{Start: 0, End: 10},
		RelPath:    "a/a_bin_1.mp4",
		OutputPath: filepath.Join(root, "a", "a_bin_1.mp4"),
	}}

	result, err := New(&fakeTranscoder{}, nil, nil, Options{}).Execute(context.Background(), root, tasks)
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	assert.FileExists(t, filepath.Join(root, "a", "a_bin_1.mp4"))
}

func TestExecute_PackagingThreshold(t *testing.T) {
	const mb = 1024 * 1024
	tests := []struct {
		name        string
		totalMB     int64
		wantArchive bool
	}{
		{"below threshold", 499, false},
		{"at threshold", 500, true},
		{"above threshold", 501, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			tasks := makeTasks(root, 2)
			pk := &fakePackager{}

			ex := New(&fakeTranscoder{}, pk, nil, Options{})
			sizes := map[string]int64{
				tasks[0].OutputPath: tt.totalMB * mb / 2,
				tasks[1].OutputPath: tt.totalMB*mb - tt.totalMB*mb/2,
			}
			ex.SetSizeFunc(func(path string) (int64, error) { return sizes[path], nil })

			result, err := ex.Execute(context.Background(), root, tasks)
			require.NoError(t, err)
			assert.Equal(t, tt.totalMB*mb, result.TotalBytes)

			if !tt.wantArchive {
				assert.Zero(t, pk.calls.Load())
				assert.Empty(t, result.ArchivePath)
				assert.Equal(t, root, result.DeliveredPath)
				return
			}
			assert.Equal(t, int32(1), pk.calls.Load())
			assert.Equal(t, filepath.Join(root, "output_videos.zip"), result.ArchivePath)
			assert.Equal(t, result.ArchivePath, result.DeliveredPath)
			assert.Equal(t, []string{"exp_subject1_bin_1.mp4", "exp_subject1_bin_2.mp4"},
				lo.Map(pk.files, func(p string, _ int) string { return filepath.Base(p) }))
		})
	}
}

func TestExecute_PackagingOnlySucceededFiles(t *testing.T) {
	root := t.TempDir()
	tasks := makeTasks(root, 3)
	pk := &fakePackager{}
	tr := &fakeTranscoder{fn: func(_ context.Context, req media.TranscodeRequest) error {
		if req.Range.Start == 10 {
			return errors.New("boom")
		}
		return os.WriteFile(req.OutputPath, []byte("x"), 0644)
	}}

	result, err := New(tr, pk, nil, Options{ZipThreshold: 1}).Execute(context.Background(), root, tasks)
	require.NoError(t, err)
	assert.Equal(t, result.Succeeded, pk.files)
	assert.Len(t, pk.files, 2)
}

func TestExecute_PackagingFailureFallsBack(t *testing.T) {
	root := t.TempDir()
	pk := &fakePackager{err: errors.New("disk full")}

	result, err := New(&fakeTranscoder{}, pk, nil, Options{ZipThreshold: 1}).Execute(context.Background(), root, makeTasks(root, 2))
	require.NoError(t, err)
	assert.True(t, errors.Is(result.PackagingErr, issues.ErrPackaging))
	assert.Empty(t, result.ArchivePath)
	assert.Equal(t, root, result.DeliveredPath)
	assert.Len(t, result.Succeeded, 2)
	for _, p := range result.Succeeded {
		assert.FileExists(t, p)
	}
}

func TestExecute_PackagingDisabled(t *testing.T) {
	root := t.TempDir()
	pk := &fakePackager{}
	_, err := New(&fakeTranscoder{}, pk, nil, Options{ZipThreshold: -1}).Execute(context.Background(), root, makeTasks(root, 1))
	require.NoError(t, err)
	assert.Zero(t, pk.calls.Load())
}

func TestExecute_ParallelWorkers(t *testing.T) {
	root := t.TempDir()
	tasks := makeTasks(root, 12)

	var inFlight, peak atomic.Int32
	tr := &fakeTranscoder{fn: func(_ context.Context, req media.TranscodeRequest) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		if req.Range.Start == 50 {
			return errors.New("corrupt input")
		}
		return os.WriteFile(req.OutputPath, []byte("segment"), 0644)
	}}

	var progressCalls atomic.Int32
	result, err := New(tr, nil, nil, Options{
		Workers:    3,
		OnProgress: func(Progress) { progressCalls.Add(1) },
	}).Execute(context.Background(), root, tasks)
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Len(t, result.Succeeded, 11)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 6, result.Failed[0].Task.Seq)
	assert.Equal(t, int32(12), progressCalls.Load())

	// Results keep plan order regardless of completion order.
	for i, out := range result.Outcomes {
		assert.Equal(t, i+1, out.Task.Seq)
	}
}

func TestExecute_CancelStopsDispatch(t *testing.T) {
	root := t.TempDir()
	tasks := makeTasks(root, 5)

	ctx, cancel := context.WithCancel(context.Background())
	tr := &fakeTranscoder{fn: func(_ context.Context, req media.TranscodeRequest) error {
		if req.Range.Start == 10 {
			cancel()
		}
		return os.WriteFile(req.OutputPath, []byte("segment"), 0644)
	}}

	result, err := New(tr, &fakePackager{}, nil, Options{ZipThreshold: 1}).Execute(ctx, root, tasks)
	require.NoError(t, err)

	assert.Equal(t, int32(2), tr.calls.Load())
	assert.Len(t, result.Succeeded, 2)
	require.Len(t, result.Failed, 3)
	for _, out := range result.Outcomes[2:] {
		assert.True(t, out.IsCancelled())
	}
	assert.Empty(t, result.ArchivePath)
}

func TestExecute_DirectoryFailureIsFatal(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	tr := &fakeTranscoder{}
	_, err := New(tr, nil, nil, Options{}).Execute(context.Background(), filepath.Join(blocker, "out"), makeTasks(filepath.Join(blocker, "out"), 1))
	require.Error(t, err)
	assert.Zero(t, tr.calls.Load())
}

func TestPrepareOutputRoot(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	t.Run("missing is created", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "out")
		got, err := PrepareOutputRoot(root, DirTimestamped, now)
		require.NoError(t, err)
		assert.Equal(t, root, got)
		assert.DirExists(t, root)
	})

	t.Run("empty is reused", func(t *testing.T) {
		root := t.TempDir()
		got, err := PrepareOutputRoot(root, DirTimestamped, now)
		require.NoError(t, err)
		assert.Equal(t, root, got)
	})

	t.Run("non-empty overwrite", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "old.mp4"), []byte("x"), 0644))
		got, err := PrepareOutputRoot(root, DirOverwrite, now)
		require.NoError(t, err)
		assert.Equal(t, root, got)
	})

	t.Run("non-empty timestamped sibling", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "out")
		require.NoError(t, os.MkdirAll(root, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "old.mp4"), []byte("x"), 0644))

		got, err := PrepareOutputRoot(root, DirTimestamped, now)
		require.NoError(t, err)
		assert.Equal(t, root+"_20240305_140709", got)
		assert.DirExists(t, got)

		again, err := PrepareOutputRoot(root, DirTimestamped, now)
		require.NoError(t, err)
		assert.Equal(t, root+"_20240305_140709_2", again)
	})

	t.Run("file is rejected", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "f")
		require.NoError(t, os.WriteFile(f, []byte("x"), 0644))
		_, err := PrepareOutputRoot(f, DirOverwrite, now)
		assert.Error(t, err)
	})

	t.Run("empty path is rejected", func(t *testing.T) {
		_, err := PrepareOutputRoot("  ", DirOverwrite, now)
		assert.Error(t, err)
	})
}

func TestPartialPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/out", "a", ".partial-a_bin_1.mp4"), PartialPath(filepath.Join("/out", "a", "a_bin_1.mp4")))
}
