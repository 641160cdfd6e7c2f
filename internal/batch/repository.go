package batch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tailor-media/tailor/internal/manifest"
)

type Repository interface {
	CreateBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, id string) (*Batch, error)
	ListBatches(ctx context.Context, limit int) ([]*Batch, error)
	ListPendingBatches(ctx context.Context) ([]*Batch, error)
	UpdateBatchStatus(ctx context.Context, id, status, errorMsg string) error
	TransitionBatch(ctx context.Context, id, from, to, errorMsg string) (bool, error)
	FinishBatch(ctx context.Context, b *Batch) error

	ReplaceTasks(ctx context.Context, batchID, outputPath string, tasks []*Task) error
	UpdateTaskOutcome(ctx context.Context, batchID string, seq int, status string, bytes int64, errorMsg string) error
	ListTasks(ctx context.Context, batchID string) ([]*Task, error)
	GetTask(ctx context.Context, batchID string, seq int) (*Task, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const batchColumns = `id, status, mode, manifest_json, output_path, archive_path, report_path,
	total_tasks, succeeded, failed, total_bytes, error, created_at, updated_at`

func (r *SQLiteRepository) CreateBatch(ctx context.Context, b *Batch) error {
	manifestJSON, err := json.Marshal(b.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO batches (id, status, mode, manifest_json, output_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.Status, b.Mode, string(manifestJSON), nullString(b.OutputPath),
		b.CreatedAt.Format(time.RFC3339), b.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (r *SQLiteRepository) ListBatches(ctx context.Context, limit int) ([]*Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (r *SQLiteRepository) ListPendingBatches(ctx context.Context) ([]*Batch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+batchColumns+` FROM batches WHERE status = 'pending' ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (r *SQLiteRepository) UpdateBatchStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE batches SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), now(), id)
	return err
}

// TransitionBatch moves a batch from one status to another and reports
// whether it was still in the from status.
func (r *SQLiteRepository) TransitionBatch(ctx context.Context, id, from, to, errorMsg string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE batches SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = ?
	`, to, nullString(errorMsg), now(), id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FinishBatch stores the final status, delivery paths and counts.
func (r *SQLiteRepository) FinishBatch(ctx context.Context, b *Batch) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE batches SET status = ?, output_path = ?, archive_path = ?, report_path = ?,
			total_tasks = ?, succeeded = ?, failed = ?, total_bytes = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, b.Status, nullString(b.OutputPath), nullString(b.ArchivePath), nullString(b.ReportPath),
		b.TotalTasks, b.Succeeded, b.Failed, b.TotalBytes, nullString(b.Error), now(), b.ID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*Batch, error) {
	var b Batch
	var manifestJSON string
	var outputPath, archivePath, reportPath, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&b.ID, &b.Status, &b.Mode, &manifestJSON, &outputPath, &archivePath, &reportPath,
		&b.TotalTasks, &b.Succeeded, &b.Failed, &b.TotalBytes, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	m, err := manifest.DecodeJSON([]byte(manifestJSON))
	if err != nil {
		return nil, fmt.Errorf("batch %s: stored manifest: %w", b.ID, err)
	}
	b.Manifest = m
	b.OutputPath = outputPath.String
	b.ArchivePath = archivePath.String
	b.ReportPath = reportPath.String
	b.Error = errMsg.String
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &b, nil
}

func scanBatches(rows *sql.Rows) ([]*Batch, error) {
	var batches []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ReplaceTasks swaps the batch's task rows for the given plan in one
// transaction and records the resolved output root.
func (r *SQLiteRepository) ReplaceTasks(ctx context.Context, batchID, outputPath string, tasks []*Task) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE batch_id = ?", batchID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tasks (batch_id, seq, video_id, video_path, subject_id, bin_index, start_s, end_s,
			filename, rel_path, output_path, renamed, status, bytes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tasks {
		if _, err := stmt.ExecContext(ctx, batchID, t.Seq, t.VideoID, t.VideoPath, nullString(t.SubjectID),
			t.BinIndex, t.StartS, t.EndS, t.Filename, t.RelPath, t.OutputPath, boolToInt(t.Renamed),
			t.Status, t.Bytes, nullString(t.Error)); err != nil {
			return fmt.Errorf("insert task %d: %w", t.Seq, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE batches SET output_path = ?, total_tasks = ?, updated_at = ? WHERE id = ?
	`, nullString(outputPath), len(tasks), now(), batchID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) UpdateTaskOutcome(ctx context.Context, batchID string, seq int, status string, bytes int64, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, bytes = ?, error = ? WHERE batch_id = ? AND seq = ?
	`, status, bytes, nullString(errorMsg), batchID, seq)
	return err
}

const taskColumns = `batch_id, seq, video_id, video_path, subject_id, bin_index, start_s, end_s,
	filename, rel_path, output_path, renamed, status, bytes, error`

func (r *SQLiteRepository) ListTasks(ctx context.Context, batchID string) ([]*Task, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE batch_id = ? ORDER BY seq`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *SQLiteRepository) GetTask(ctx context.Context, batchID string, seq int) (*Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE batch_id = ? AND seq = ?`, batchID, seq)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var subjectID, errMsg sql.NullString
	var renamed int
	err := row.Scan(&t.BatchID, &t.Seq, &t.VideoID, &t.VideoPath, &subjectID, &t.BinIndex, &t.StartS, &t.EndS,
		&t.Filename, &t.RelPath, &t.OutputPath, &renamed, &t.Status, &t.Bytes, &errMsg)
	if err != nil {
		return nil, err
	}
	t.SubjectID = subjectID.String
	t.Renamed = renamed == 1
	t.Error = errMsg.String
	return &t, nil
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
