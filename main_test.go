package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portwatch-data/portwatch/internal/report"
	"github.com/portwatch-data/portwatch/internal/session"
	"github.com/portwatch-data/portwatch/internal/store"
	"github.com/portwatch-data/portwatch/internal/timeutil"
)

// testSignals covers a blocked sampling session long enough to confirm,
// preceded and followed by closed-port frames.
func testSignals() []session.FrameSignal {
	var frames []session.FrameSignal
	idx := 0
	add := func(n int, open, sampling bool, blocking session.BlockingState, people int) {
		for i := 0; i < n; i++ {
			frames = append(frames, session.FrameSignal{
				FrameIndex:      idx,
				TsSeconds:       float64(idx),
				PeopleCount:     people,
				Open:            open,
				SamplingPresent: sampling,
				Blocking:        blocking,
			})
			idx++
		}
	}
	add(5, false, false, session.BlockingUnknown, 0)
	add(30, true, true, session.Blocking, 2)
	add(5, false, false, session.BlockingUnknown, 0)
	return frames
}

func writeSignals(t *testing.T, frames []session.FrameSignal) string {
	t.Helper()
	data, err := json.Marshal(frames)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "signals.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadSignals(t *testing.T) {
	t.Parallel()

	path := writeSignals(t, testSignals())
	frames, err := loadSignals(path)
	require.NoError(t, err)
	assert.Len(t, frames, 40)
	assert.Equal(t, 2, frames[10].PeopleCount)
}

func TestLoadSignals_OutOfOrder(t *testing.T) {
	t.Parallel()

	frames := testSignals()
	frames[3].TsSeconds = 100
	path := writeSignals(t, frames)

	_, err := loadSignals(path)
	assert.ErrorContains(t, err, "out of order")
}

func TestLoadSignals_Missing(t *testing.T) {
	t.Parallel()

	_, err := loadSignals(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "failed to read signals file")
}

func TestRunAnalysis_EndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outPath := filepath.Join(dir, "report.json")
	chartPath := filepath.Join(dir, "timeline.html")
	dbPath := filepath.Join(dir, "runs.db")

	opts := options{
		SignalsPath: writeSignals(t, testSignals()),
		OutPath:     outPath,
		ChartPath:   chartPath,
		DBPath:      dbPath,
		WorkLogDir:  filepath.Join(dir, "logs"),
		RunID:       "run-e2e",
		Source:      "camera-3",
		Clock:       timeutil.NewMockClock(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)),
	}
	require.NoError(t, runAnalysis(context.Background(), opts))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var rep report.Report
	require.NoError(t, json.Unmarshal(data, &rep))

	assert.Equal(t, "run-e2e", rep.Header.RunID)
	assert.Equal(t, "camera-3", rep.Header.SourcePath)
	require.Len(t, rep.Sessions, 1)
	assert.Equal(t, session.BlockedSampling, rep.Sessions[0].Type)
	assert.Equal(t, "PASS", rep.Summary.OverallResult)

	// Chart and work log landed next to the report.
	_, err = os.Stat(chartPath)
	assert.NoError(t, err)
	logs, err := filepath.Glob(filepath.Join(dir, "logs", "work_log_*.csv"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	// The run is queryable from the store.
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	run, err := st.GetRun(context.Background(), "run-e2e")
	require.NoError(t, err)
	assert.Equal(t, 40, run.FrameCount)
	assert.True(t, run.OverallPass)
	sessions, err := st.Sessions(context.Background(), "run-e2e")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestRunAnalysis_BadTuningConfig(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"close_on": 0}`), 0o644))

	opts := options{
		SignalsPath: writeSignals(t, testSignals()),
		TuningPath:  cfgPath,
		OutPath:     filepath.Join(t.TempDir(), "report.json"),
		Clock:       timeutil.RealClock{},
	}
	assert.Error(t, runAnalysis(context.Background(), opts))
}
