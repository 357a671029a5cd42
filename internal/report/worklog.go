package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/portwatch-data/portwatch/internal/fsutil"
	"github.com/portwatch-data/portwatch/internal/session"
	"github.com/portwatch-data/portwatch/internal/timeutil"
)

// WorkLogWriter samples the live pipeline state into a CSV at a fixed
// cadence of video time. Update may be called every frame; a row is emitted
// only when the stream crosses the next cadence boundary, so the log stays
// one row per interval regardless of frame rate.
type WorkLogWriter struct {
	fs       fsutil.FileSystem
	path     string
	file     io.WriteCloser
	w        *csv.Writer
	interval float64
	nextT    float64
}

// NewWorkLogWriter creates outDir if needed and opens work_log_<stamp>.csv
// inside it. The interval is clamped to a 0.1s minimum.
func NewWorkLogWriter(fs fsutil.FileSystem, outDir string, intervalS float64, clock timeutil.Clock) (*WorkLogWriter, error) {
	if intervalS < 0.1 {
		intervalS = 0.1
	}
	if err := fs.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work log directory: %w", err)
	}

	stamp := clock.Now().Format("20060102_150405")
	path := filepath.Join(outDir, "work_log_"+stamp+".csv")
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create work log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time_s", "blocking_status", "people_count"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write work log header: %w", err)
	}

	return &WorkLogWriter{
		fs:       fs,
		path:     path,
		file:     f,
		w:        w,
		interval: intervalS,
	}, nil
}

// Path returns the CSV file path.
func (wl *WorkLogWriter) Path() string { return wl.path }

// Update advances the log to durationS, emitting one row per crossed
// interval boundary with the current blocking state and people count.
func (wl *WorkLogWriter) Update(durationS float64, blocking session.BlockingState, peopleCount int) error {
	for durationS >= wl.nextT {
		row := []string{
			strconv.FormatFloat(wl.nextT, 'f', 2, 64),
			string(blocking),
			strconv.Itoa(peopleCount),
		}
		if err := wl.w.Write(row); err != nil {
			return fmt.Errorf("failed to write work log row: %w", err)
		}
		wl.nextT += wl.interval
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (wl *WorkLogWriter) Close() error {
	wl.w.Flush()
	if err := wl.w.Error(); err != nil {
		wl.file.Close()
		return fmt.Errorf("failed to flush work log: %w", err)
	}
	return wl.file.Close()
}
