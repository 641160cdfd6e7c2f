package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tailor-media/tailor/internal/batch"
	"github.com/tailor-media/tailor/internal/export"
	"github.com/tailor-media/tailor/internal/manifest"
	"github.com/tailor-media/tailor/internal/media"
	"github.com/tailor-media/tailor/internal/playback"
)

const maxManifestBytes = 4 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/plan", planHandler(cfg))
		r.Post("/scan", scanHandler(cfg))
		r.Get("/batches", listBatchesHandler(cfg))
		r.Post("/batches", submitBatchHandler(cfg))
		r.Get("/batches/{id}", getBatchHandler(cfg))
		r.Get("/batches/{id}/tasks", listTasksHandler(cfg))
		r.Get("/batches/{id}/edl", edlHandler(cfg))
		r.Post("/batches/{id}/cancel", cancelBatchHandler(cfg))

		r.Group(func(r chi.Router) {
			r.Use(LoopbackGuard())
			r.Get("/outputs/file", outputFileHandler(cfg))
			r.Head("/outputs/file", outputFileHandler(cfg))
			r.Get("/outputs/archive", archiveHandler(cfg))
			r.Get("/outputs/report", reportHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batches, _ := cfg.Batches.List(r.Context(), 20)

		state := "idle"
		if cfg.Runner != nil && cfg.Runner.IsPaused() {
			state = "paused"
		}

		resp := StatusResponse{}
		lastError := ""
		for i, b := range batches {
			switch b.Status {
			case batch.StatusPending:
				resp.BatchesPending++
			case batch.StatusRunning:
				resp.BatchesRunning++
				if resp.ActiveBatch == nil {
					active := BatchToResponse(b)
					resp.ActiveBatch = &active
				}
				state = "running"
			case batch.StatusFailed:
				if i == 0 {
					lastError = b.Error
				}
			}
		}
		if lastError != "" && state == "idle" {
			state = "error"
		}
		resp.State = state
		resp.LastError = lastError

		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Tools = ToolsToResponse(caps)
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func readManifest(w http.ResponseWriter, r *http.Request) (*manifest.Manifest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxManifestBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read request body", "BAD_REQUEST")
		return nil, false
	}
	m, err := manifest.DecodeJSON(body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_MANIFEST")
		return nil, false
	}
	return m, true
}

func planHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := readManifest(w, r)
		if !ok {
			return
		}

		preview, err := cfg.Batches.Plan(r.Context(), m)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		plan := preview.Plan
		WriteJSON(w, http.StatusOK, PlanResponse{
			Videos:    preview.Videos,
			Tasks:     plan.Tasks,
			Conflicts: plan.Collisions.Conflicts,
			Warnings:  plan.Warnings,
			Blocked:   m.OnCollision == manifest.ActionBlock && plan.Collisions.HasConflicts(),
			Action:    m.OnCollision,
		})
	}
}

func submitBatchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := readManifest(w, r)
		if !ok {
			return
		}

		b, err := cfg.Batches.Submit(r.Context(), m)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		WriteJSON(w, http.StatusAccepted, SubmitResponse{BatchID: b.ID, Status: b.Status})
	}
}

func listBatchesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		batches, err := cfg.Batches.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list batches", "INTERNAL_ERROR")
			return
		}

		resp := BatchesResponse{Batches: make([]BatchResponse, len(batches))}
		for i, b := range batches {
			resp.Batches[i] = BatchToResponse(b)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getBatchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := loadBatch(w, r, cfg, chi.URLParam(r, "id"))
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, BatchToResponse(b))
	}
}

func listTasksHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := loadBatch(w, r, cfg, chi.URLParam(r, "id"))
		if !ok {
			return
		}

		tasks, err := cfg.Batches.Tasks(r.Context(), b.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if tasks == nil {
			tasks = []*batch.Task{}
		}
		WriteJSON(w, http.StatusOK, TasksResponse{Tasks: tasks})
	}
}

func edlHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := loadBatch(w, r, cfg, chi.URLParam(r, "id"))
		if !ok {
			return
		}

		fps := export.DefaultFrameRate
		if v := r.URL.Query().Get("fps"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f <= 0 {
				WriteError(w, http.StatusBadRequest, "fps must be a positive number", "BAD_REQUEST")
				return
			}
			fps = f
		}

		tasks, err := cfg.Batches.Tasks(r.Context(), b.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		events := make([]export.Event, len(tasks))
		for i, t := range tasks {
			events[i] = export.Event{Name: t.Filename, Source: t.VideoPath, Start: t.StartS, End: t.EndS}
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", b.ID+".edl"))
		if err := export.WriteEDL(w, "tailor "+b.ID, events, fps); err != nil {
			cfg.Logger.Error("failed to write edl", "error", err, "batch_id", b.ID)
		}
	}
}

func cancelBatchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Batches.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func scanHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Root == "" {
			WriteError(w, http.StatusBadRequest, "root is required", "BAD_REQUEST")
			return
		}

		root, err := filepath.Abs(req.Root)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		paths, err := media.ScanVideos(root)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		outputDir := req.OutputDir
		if outputDir == "" {
			outputDir = filepath.Join(root, "segments")
		}
		if paths == nil {
			paths = []string{}
		}
		WriteJSON(w, http.StatusOK, ScanResponse{
			Videos:   paths,
			Manifest: manifest.Starter(paths, outputDir),
		})
	}
}

func outputFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		batchID := q.Get("batch_id")
		if batchID == "" || q.Get("seq") == "" {
			WriteError(w, http.StatusBadRequest, "batch_id and seq are required", "BAD_REQUEST")
			return
		}
		seq, err := strconv.Atoi(q.Get("seq"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "seq must be an integer", "BAD_REQUEST")
			return
		}

		b, ok := loadBatch(w, r, cfg, batchID)
		if !ok {
			return
		}
		task, err := cfg.Batches.Task(r.Context(), batchID, seq)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if task == nil {
			WriteError(w, http.StatusNotFound, "task not found", "NOT_FOUND")
			return
		}
		if b.ArchivePath != "" {
			WriteError(w, http.StatusGone, "outputs were packaged into an archive", "ARCHIVED")
			return
		}

		serveWithin(w, r, cfg, b.OutputPath, task.OutputPath)
	}
}

func archiveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := loadBatch(w, r, cfg, r.URL.Query().Get("batch_id"))
		if !ok {
			return
		}
		if b.ArchivePath == "" {
			WriteError(w, http.StatusNotFound, "batch has no archive", "NOT_FOUND")
			return
		}
		serveWithin(w, r, cfg, filepath.Dir(b.ArchivePath), b.ArchivePath)
	}
}

func reportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := loadBatch(w, r, cfg, r.URL.Query().Get("batch_id"))
		if !ok {
			return
		}
		if b.ReportPath == "" {
			WriteError(w, http.StatusNotFound, "batch has no report", "NOT_FOUND")
			return
		}
		serveWithin(w, r, cfg, filepath.Dir(b.ReportPath), b.ReportPath)
	}
}

func serveWithin(w http.ResponseWriter, r *http.Request, cfg ServerConfig, root, path string) {
	err := cfg.PlaybackServer.ServeFile(w, r, root, path)
	if errors.Is(err, playback.ErrOutsideRoot) {
		WriteError(w, http.StatusForbidden, "file is outside the batch output", "FORBIDDEN")
		return
	}
	if err != nil {
		cfg.Logger.Error("output serve error", "error", err, "path", path)
	}
}

func loadBatch(w http.ResponseWriter, r *http.Request, cfg ServerConfig, id string) (*batch.Batch, bool) {
	if id == "" {
		WriteError(w, http.StatusBadRequest, "batch id required", "BAD_REQUEST")
		return nil, false
	}
	b, err := cfg.Batches.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil, false
	}
	if b == nil {
		WriteError(w, http.StatusNotFound, "batch not found", "NOT_FOUND")
		return nil, false
	}
	return b, true
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxManifestBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, manifest.ErrInvalidManifest):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_MANIFEST")
	case errors.Is(err, batch.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, batch.ErrNotCancellable):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, batch.ErrNoPipeline):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "TOOLS_UNAVAILABLE")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
