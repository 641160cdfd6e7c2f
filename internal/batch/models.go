// Package batch persists submitted manifests and runs them one at a time in
// the background.
package batch

import (
	"time"

	"github.com/google/uuid"

	"github.com/tailor-media/tailor/internal/manifest"
	"github.com/tailor-media/tailor/internal/naming"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"

	TaskPending = "pending"
)

// Batch is one submitted manifest and, once run, its totals.
type Batch struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	Mode        string             `json:"mode"`
	Manifest    *manifest.Manifest `json:"manifest,omitempty"`
	OutputPath  string             `json:"output_path,omitempty"`
	ArchivePath string             `json:"archive_path,omitempty"`
	ReportPath  string             `json:"report_path,omitempty"`
	TotalTasks  int                `json:"total_tasks"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	TotalBytes  int64              `json:"total_bytes"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// DeliveredPath is the archive when one was produced, else the output dir.
func (b *Batch) DeliveredPath() string {
	if b.ArchivePath != "" {
		return b.ArchivePath
	}
	return b.OutputPath
}

// Task is the persisted form of one planned output.
type Task struct {
	BatchID    string  `json:"batch_id"`
	Seq        int     `json:"seq"`
	VideoID    string  `json:"video_id"`
	VideoPath  string  `json:"video_path"`
	SubjectID  string  `json:"subject_id,omitempty"`
	BinIndex   int     `json:"bin_index"`
	StartS     float64 `json:"start_s"`
	EndS       float64 `json:"end_s"`
	Filename   string  `json:"filename"`
	RelPath    string  `json:"rel_path"`
	OutputPath string  `json:"output_path"`
	Renamed    bool    `json:"renamed"`
	Status     string  `json:"status"`
	Bytes      int64   `json:"bytes"`
	Error      string  `json:"error,omitempty"`
}

// TaskFromPlan converts a planned output into a pending task row.
func TaskFromPlan(batchID string, t naming.OutputTask) *Task {
	return &Task{
		BatchID:    batchID,
		Seq:        t.Seq,
		VideoID:    t.VideoID,
		VideoPath:  t.VideoPath,
		SubjectID:  string(t.SubjectID),
		BinIndex:   t.BinIndex,
		StartS:     t.Range.Start,
		EndS:       t.Range.End,
		Filename:   t.Filename,
		RelPath:    t.RelPath,
		OutputPath: t.OutputPath,
		Renamed:    t.Renamed(),
		Status:     TaskPending,
	}
}

func NewID() string {
	return uuid.NewString()
}
