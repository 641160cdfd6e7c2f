package api

import (
	"time"

	"github.com/tailor-media/tailor/internal/batch"
	"github.com/tailor-media/tailor/internal/ffmpeg"
	"github.com/tailor-media/tailor/internal/issues"
	"github.com/tailor-media/tailor/internal/manifest"
	"github.com/tailor-media/tailor/internal/media"
	"github.com/tailor-media/tailor/internal/naming"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State          string         `json:"state"`
	LastError      string         `json:"last_error,omitempty"`
	BatchesPending int            `json:"batches_pending"`
	BatchesRunning int            `json:"batches_running"`
	ActiveBatch    *BatchResponse `json:"active_batch,omitempty"`
	Tools          *ToolsResponse `json:"tools,omitempty"`
}

type ToolsResponse struct {
	FFmpeg         bool   `json:"ffmpeg"`
	FFprobe        bool   `json:"ffprobe"`
	FFmpegVersion  string `json:"ffmpeg_version,omitempty"`
	FFprobeVersion string `json:"ffprobe_version,omitempty"`
	HasLibx264     bool   `json:"has_libx264"`
	LastProbeAt    string `json:"last_probe_at,omitempty"`
}

type PlanResponse struct {
	Videos    []media.Video            `json:"videos"`
	Tasks     []naming.OutputTask      `json:"tasks"`
	Conflicts []naming.Conflict        `json:"conflicts"`
	Warnings  []issues.Warning         `json:"warnings"`
	Blocked   bool                     `json:"blocked"`
	Action    manifest.CollisionAction `json:"on_collision"`
}

type SubmitResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
}

type BatchResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	OutputPath  string `json:"output_path,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
	ReportPath  string `json:"report_path,omitempty"`
	Delivered   string `json:"delivered_path,omitempty"`
	TotalTasks  int    `json:"total_tasks"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	TotalBytes  int64  `json:"total_bytes"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type BatchesResponse struct {
	Batches []BatchResponse `json:"batches"`
}

type TasksResponse struct {
	Tasks []*batch.Task `json:"tasks"`
}

type ScanRequest struct {
	Root      string `json:"root"`
	OutputDir string `json:"output_dir,omitempty"`
}

type ScanResponse struct {
	Videos   []string           `json:"videos"`
	Manifest *manifest.Manifest `json:"manifest"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func BatchToResponse(b *batch.Batch) BatchResponse {
	return BatchResponse{
		ID:          b.ID,
		Status:      b.Status,
		Mode:        b.Mode,
		OutputPath:  b.OutputPath,
		ArchivePath: b.ArchivePath,
		ReportPath:  b.ReportPath,
		Delivered:   b.DeliveredPath(),
		TotalTasks:  b.TotalTasks,
		Succeeded:   b.Succeeded,
		Failed:      b.Failed,
		TotalBytes:  b.TotalBytes,
		Error:       b.Error,
		CreatedAt:   b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   b.UpdatedAt.Format(time.RFC3339),
	}
}

func ToolsToResponse(caps *ffmpeg.Capabilities) *ToolsResponse {
	resp := &ToolsResponse{
		FFmpeg:         caps.FFmpeg.Available,
		FFprobe:        caps.FFprobe.Available,
		FFmpegVersion:  caps.FFmpeg.Version,
		FFprobeVersion: caps.FFprobe.Version,
		HasLibx264:     caps.HasLibx264,
	}
	if !caps.ProbedAt.IsZero() {
		resp.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
	}
	return resp
}
