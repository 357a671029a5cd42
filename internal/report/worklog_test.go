package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portwatch-data/portwatch/internal/fsutil"
	"github.com/portwatch-data/portwatch/internal/session"
	"github.com/portwatch-data/portwatch/internal/timeutil"
)

func newTestWorkLog(t *testing.T, intervalS float64) (*WorkLogWriter, *fsutil.MemoryFileSystem) {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Date(2026, 8, 31, 10, 30, 0, 0, time.Local))
	wl, err := NewWorkLogWriter(fs, "logs", intervalS, clock)
	require.NoError(t, err)
	return wl, fs
}

func TestWorkLogWriter_Cadence(t *testing.T) {
	t.Parallel()

	wl, fs := newTestWorkLog(t, 1.0)
	assert.Equal(t, "logs/work_log_20260831_103000.csv", wl.Path())

	// Frames arrive at 4 Hz; one row per second plus the t=0 row.
	for i := 0; i <= 10; i++ {
		ts := float64(i) * 0.25
		require.NoError(t, wl.Update(ts, session.Blocking, 2))
	}
	require.NoError(t, wl.Close())

	data, err := fs.ReadFile(wl.Path())
	require.NoError(t, err)
	assert.Equal(t,
		"time_s,blocking_status,people_count\n"+
			"0.00,blocking,2\n"+
			"1.00,blocking,2\n"+
			"2.00,blocking,2\n",
		string(data))
}

func TestWorkLogWriter_StateChanges(t *testing.T) {
	t.Parallel()

	wl, fs := newTestWorkLog(t, 1.0)
	require.NoError(t, wl.Update(0, session.BlockingUnknown, 0))
	require.NoError(t, wl.Update(1.5, session.Blocking, 2))
	require.NoError(t, wl.Update(3.0, session.NoBlocking, 1))
	require.NoError(t, wl.Close())

	data, err := fs.ReadFile(wl.Path())
	require.NoError(t, err)
	assert.Equal(t,
		"time_s,blocking_status,people_count\n"+
			"0.00,unknown,0\n"+
			"1.00,blocking,2\n"+
			"2.00,no_blocking,1\n"+
			"3.00,no_blocking,1\n",
		string(data))
}

func TestWorkLogWriter_IntervalClamp(t *testing.T) {
	t.Parallel()

	wl, fs := newTestWorkLog(t, 0.01)
	require.NoError(t, wl.Update(0.2, session.Blocking, 2))
	require.NoError(t, wl.Close())

	data, err := fs.ReadFile(wl.Path())
	require.NoError(t, err)
	// Clamped to 0.1s: rows at 0.0, 0.1, 0.2.
	assert.Equal(t,
		"time_s,blocking_status,people_count\n"+
			"0.00,blocking,2\n"+
			"0.10,blocking,2\n"+
			"0.20,blocking,2\n",
		string(data))
}
