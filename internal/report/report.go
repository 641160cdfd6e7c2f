// Package report writes the per-task CSV summary of an executed batch.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"

	"github.com/tailor-media/tailor/internal/executor"
	"github.com/tailor-media/tailor/internal/timemodel"
)

// Row is one CSV line.
type Row struct {
	Seq        int     `csv:"seq"`
	Video      string  `csv:"video"`
	Subject    string  `csv:"subject"`
	Bin        int     `csv:"bin"`
	Start      string  `csv:"start"`
	End        string  `csv:"end"`
	StartS     float64 `csv:"start_s"`
	EndS       float64 `csv:"end_s"`
	Filename   string  `csv:"filename"`
	Renamed    bool    `csv:"renamed"`
	Status     string  `csv:"status"`
	Bytes      int64   `csv:"bytes"`
	DurationMS int64   `csv:"duration_ms"`
	Error      string  `csv:"error"`
}

// Rows flattens outcomes in plan order.
func Rows(outcomes []executor.Outcome) []*Row {
	return lo.Map(outcomes, func(o executor.Outcome, _ int) *Row {
		row := &Row{
			Seq:        o.Task.Seq,
			Video:      o.Task.VideoID,
			Subject:    string(o.Task.SubjectID),
			Bin:        o.Task.BinIndex,
			Start:      timemodel.FormatHMS(o.Task.Range.Start),
			End:        timemodel.FormatHMS(o.Task.Range.End),
			StartS:     o.Task.Range.Start,
			EndS:       o.Task.Range.End,
			Filename:   o.Task.RelPath,
			Renamed:    o.Task.Renamed(),
			Status:     o.Status,
			Bytes:      o.Bytes,
			DurationMS: o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			row.Error = o.Err.Error()
		}
		return row
	})
}

// Marshal renders outcomes as CSV with a header line.
func Marshal(outcomes []executor.Outcome) ([]byte, error) {
	rows := Rows(outcomes)
	var buf bytes.Buffer
	if err := gocsv.Marshal(&rows, &buf); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return buf.Bytes(), nil
}

// Write stores the report at path, creating parent directories.
func Write(path string, outcomes []executor.Outcome) error {
	data, err := Marshal(outcomes)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
