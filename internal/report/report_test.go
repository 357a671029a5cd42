package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portwatch-data/portwatch/internal/session"
	"github.com/portwatch-data/portwatch/internal/timeutil"
)

func sampleResult() session.Result {
	trigger := 12.5
	return session.Result{
		PresenceSegments: []session.PresenceSegment{
			{Present: true, StartTs: 0, EndTs: 30, Duration: 30, StartFrame: 0, EndFrame: 749},
		},
		ObservationSegments: []session.ObservationSegment{
			{StartTs: 2, EndTs: 5, Duration: 3, StartFrame: 50, EndFrame: 124},
		},
		Sessions: []session.Session{
			{ID: 1, Type: session.BlockedSampling, StartTs: 5, EndTs: 25, Duration: 20, StartFrame: 125, EndFrame: 624},
		},
		CrewIntervals: []session.CrewInterval{
			{ID: 1, SessionID: 1, Type: session.DeviationUnder, StartTs: 10, EndTs: 14, Duration: 4},
		},
		CrewStats: []session.CrewStats{
			{SessionID: 1, ExpectedPeople: 2, OKDuration: 16, UnderDuration: 4, ViolationCount: 1},
		},
		PeopleCountSegments: []session.PeopleCountSegment{
			{StartTs: 0, EndTs: 30, Duration: 30, PeopleCount: 2, InSession: false},
		},
		PeopleCountChanges: []session.PeopleCountChangeEvent{
			{FromCount: 2, ToCount: 1, ChangeTs: 10, ConfirmedTs: 12, InSession: true},
		},
		Alarms: []session.Alarm{
			{ID: 1, Type: session.AlarmUnblockedInsertion, StartTs: 10, EndTs: 12.5, TriggerTs: &trigger, SessionID: 1},
			{ID: 2, Type: session.AlarmSamplingTooShort, StartTs: 5, EndTs: 25, SessionID: 1},
			{ID: 3, Type: session.AlarmUnblockedInsertion, StartTs: 26, EndTs: 28},
		},
	}
}

func sampleFrames() []session.FrameSignal {
	return []session.FrameSignal{
		{FrameIndex: 0, TsSeconds: 0, PeopleCount: 1, Open: false},
		{FrameIndex: 1, TsSeconds: 1, PeopleCount: 2, Open: true},
		{FrameIndex: 2, TsSeconds: 2, PeopleCount: 3, Open: true},
	}
}

func TestBuild_Summary(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC))
	rep := Build(sampleFrames(), sampleResult(), session.DefaultConfig(), Meta{RunID: "run-1", SourcePath: "video.mp4", FPSAssume: 25.0}, clock)

	assert.Equal(t, "FAIL", rep.Summary.OverallResult)
	assert.Equal(t, "run-1", rep.Header.RunID)
	assert.Equal(t, map[string]int{
		"UNBLOCKED_INSERTION": 2,
		"SAMPLING_TOO_SHORT":  1,
	}, rep.Summary.AlarmCounts)
	assert.Equal(t, 1, rep.Summary.SessionCount)
	assert.Equal(t, 1, rep.Summary.MinPeopleCount)
	assert.Equal(t, 3, rep.Summary.MaxPeopleCount)
	assert.Equal(t, 1, rep.Summary.PeopleChangeCount)

	assert.Equal(t, ReportVersion, rep.Header.ReportVersion)
	assert.Equal(t, "2026-08-31T10:30:00Z", rep.Header.GeneratedAt)
	assert.Equal(t, "video.mp4", rep.Header.SourcePath)
	assert.Equal(t, []string{"B", "C", "D", "E"}, rep.Header.ModelsUsed)
	assert.Equal(t, 25.0, rep.Config.FPSAssume)
	assert.Equal(t, session.DefaultConfig(), rep.Config.Config)
}

func TestBuild_PassWithoutAlarms(t *testing.T) {
	t.Parallel()

	res := sampleResult()
	res.Alarms = nil
	rep := Build(nil, res, session.DefaultConfig(), Meta{}, timeutil.NewMockClock(time.Now()))

	assert.Equal(t, "PASS", rep.Summary.OverallResult)
	assert.Empty(t, rep.Summary.AlarmCounts)
	assert.Equal(t, 0, rep.Summary.MinPeopleCount)
	assert.Equal(t, 0, rep.Summary.MaxPeopleCount)
}

func TestBuild_CustomModels(t *testing.T) {
	t.Parallel()

	rep := Build(nil, session.Result{}, session.DefaultConfig(), Meta{ModelsUsed: []string{"B", "D"}}, timeutil.NewMockClock(time.Now()))
	assert.Equal(t, []string{"B", "D"}, rep.Header.ModelsUsed)
}

func TestBuild_GeneratesRunID(t *testing.T) {
	t.Parallel()

	rep := Build(nil, session.Result{}, session.DefaultConfig(), Meta{}, timeutil.NewMockClock(time.Now()))
	_, err := uuid.Parse(rep.Header.RunID)
	assert.NoError(t, err)
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC))
	rep := Build(sampleFrames(), sampleResult(), session.DefaultConfig(), Meta{SourcePath: "video.mp4", FPSAssume: 25.0}, clock)

	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, WriteJSON(path, rep))

	// No temporary leftovers after a successful write.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, rep, got)

	// The document keys match the published layout.
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{
		"header", "config", "presence_segments", "open_no_sampling_segments",
		"sessions", "crew_intervals", "session_crew_stats",
		"people_count_segments", "people_count_change_events", "alarms", "summary",
	} {
		assert.Contains(t, doc, key)
	}
}
