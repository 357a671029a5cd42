package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// span describes a stretch of identical frames for building test sequences.
type span struct {
	dur      float64
	people   int
	open     bool
	sampling bool
	blocking BlockingState
}

func blockedSampling(dur float64, people int) span {
	return span{dur: dur, people: people, open: true, sampling: true, blocking: Blocking}
}

func unblockedSampling(dur float64, people int) span {
	return span{dur: dur, people: people, open: true, sampling: true, blocking: NoBlocking}
}

func closedPort(dur float64, people int) span {
	return span{dur: dur, people: people, open: false, blocking: Blocking}
}

func openIdle(dur float64, people int) span {
	return span{dur: dur, people: people, open: true, blocking: Blocking}
}

// framesFrom expands spans into a frame sequence sampled at fps, starting at
// t=0.
func framesFrom(fps float64, spans ...span) []FrameSignal {
	var frames []FrameSignal
	idx := 0
	t := 0.0
	dt := 1.0 / fps
	for _, sp := range spans {
		n := int(sp.dur*fps + 0.5)
		for i := 0; i < n; i++ {
			frames = append(frames, FrameSignal{
				FrameIndex:      idx,
				TsSeconds:       t,
				PeopleCount:     sp.people,
				Open:            sp.open,
				SamplingPresent: sp.sampling,
				Blocking:        sp.blocking,
			})
			idx++
			t += dt
		}
	}
	return frames
}

func TestBuild_EmptyFrameSequence(t *testing.T) {
	t.Parallel()

	got := Build(nil, DefaultConfig())
	assert.Empty(t, got.Sessions)
	assert.Empty(t, got.Alarms)
	assert.Empty(t, got.PresenceSegments)
	assert.Empty(t, got.PeopleCountSegments)
	assert.Empty(t, got.CrewIntervals)
}

func TestBuildSessions_GapTolerance(t *testing.T) {
	t.Parallel()

	// 5s sampling, 3s interruption under the 10s gap allowance, 5s sampling:
	// one session, not two.
	frames := framesFrom(1,
		blockedSampling(5, 2),
		closedPort(3, 2),
		blockedSampling(5, 2),
	)
	sessions := buildSessions(frames, DefaultConfig())
	require.Len(t, sessions, 1)
	assert.Equal(t, BlockedSampling, sessions[0].Type)
	assert.Equal(t, 0.0, sessions[0].StartTs)
	assert.Equal(t, 12.0, sessions[0].EndTs)
	assert.Equal(t, 1, sessions[0].ID)
}

func TestBuildSessions_GapSplitsWhenTooLong(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.GapAllowSamplingS = 2.0
	cfg.SamplingEndS = 2.0

	frames := framesFrom(1,
		blockedSampling(5, 2),
		closedPort(8, 2),
		blockedSampling(5, 2),
	)
	sessions := buildSessions(frames, cfg)
	require.Len(t, sessions, 2)
	assert.Equal(t, 1, sessions[0].ID)
	assert.Equal(t, 2, sessions[1].ID)
	assert.Less(t, sessions[0].EndTs, sessions[1].StartTs)
}

func TestBuildSessions_EndTrimming(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	// effective gap end = max(2, 10) = 10s.
	require.Equal(t, 10.0, cfg.GapAllowSamplingS)
	require.Equal(t, 2.0, cfg.SamplingEndS)

	frames := framesFrom(1,
		blockedSampling(5, 2),
		closedPort(12, 2),
	)
	sessions := buildSessions(frames, cfg)
	require.Len(t, sessions, 1)
	// Sampling activity ends at t=5; the end is backdated to where the gap
	// first reached the allowance, not to the closure timestamp.
	assert.Equal(t, 15.0, sessions[0].EndTs)
	assert.Equal(t, 15.0, sessions[0].Duration)
}

func TestBuildSessions_CandidateDiscardedByGap(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SamplingStartS = 3.0
	cfg.GapAllowSamplingS = 1.0
	cfg.SamplingEndS = 1.0

	// Two 2s bursts separated by a 2s gap: neither burst alone reaches the
	// 3s confirmation threshold, and the gap discards the first candidate.
	frames := framesFrom(1,
		blockedSampling(2, 2),
		closedPort(2, 2),
		blockedSampling(2, 2),
		closedPort(2, 2),
	)
	sessions := buildSessions(frames, cfg)
	assert.Empty(t, sessions)
}

func TestBuildSessions_TypeChangeStartsNewCandidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.GapAllowSamplingS = 2.0
	cfg.SamplingEndS = 2.0

	frames := framesFrom(1,
		blockedSampling(6, 2),
		unblockedSampling(6, 2),
	)
	sessions := buildSessions(frames, cfg)
	require.Len(t, sessions, 2)
	assert.Equal(t, BlockedSampling, sessions[0].Type)
	assert.Equal(t, UnblockedSampling, sessions[1].Type)
}

func TestBuildSessions_OpenAtEndOfStream(t *testing.T) {
	t.Parallel()

	frames := framesFrom(1, blockedSampling(8, 2))
	sessions := buildSessions(frames, DefaultConfig())
	require.Len(t, sessions, 1)
	assert.Equal(t, frames[len(frames)-1].TsSeconds, sessions[0].EndTs)
}

func TestBuild_MinDurationAlarmAndIDOrder(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.EnableMinSamplingDuration = true
	cfg.SamplingMinS = 60.0
	cfg.GapAllowUnblockedS = 0.5
	cfg.UnblockedAlarmS = 2.0

	// A short blocked session followed by an unblocked run long enough to
	// trigger the insertion alarm.
	frames := framesFrom(1,
		blockedSampling(5, 2),
		closedPort(15, 2),
		unblockedSampling(5, 2),
		closedPort(15, 2),
	)
	got := Build(frames, cfg)

	require.Len(t, got.Sessions, 2)
	require.Len(t, got.Alarms, 3)
	// Session-based alarms are discovered first, the insertion alarm last;
	// IDs follow discovery order.
	assert.Equal(t, AlarmSamplingTooShort, got.Alarms[0].Type)
	assert.Equal(t, AlarmSamplingTooShort, got.Alarms[1].Type)
	assert.Equal(t, AlarmUnblockedInsertion, got.Alarms[2].Type)
	for i, alarm := range got.Alarms {
		assert.Equal(t, i+1, alarm.ID)
	}
	assert.Equal(t, 1, got.Alarms[0].SessionID)
	assert.Equal(t, 2, got.Alarms[1].SessionID)
	assert.Equal(t, 0, got.Alarms[2].SessionID)
}

func TestBuild_Idempotence(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.EnableMinSamplingDuration = true
	cfg.SamplingMinS = 30.0

	frames := framesFrom(5,
		closedPort(4, 0),
		blockedSampling(12, 2),
		openIdle(3, 1),
		blockedSampling(8, 3),
		unblockedSampling(6, 2),
		closedPort(5, 0),
	)

	first := Build(frames, cfg)
	second := Build(frames, cfg)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Build is not deterministic (-first +second):\n%s", diff)
	}
}

func TestSessionTypeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame FrameSignal
		want  SessionType
		ok    bool
	}{
		{"blocked sampling", FrameSignal{Open: true, SamplingPresent: true, Blocking: Blocking}, BlockedSampling, true},
		{"unblocked sampling", FrameSignal{Open: true, SamplingPresent: true, Blocking: NoBlocking}, UnblockedSampling, true},
		{"unknown blocking", FrameSignal{Open: true, SamplingPresent: true, Blocking: BlockingUnknown}, "", false},
		{"closed port", FrameSignal{Open: false, SamplingPresent: true, Blocking: Blocking}, "", false},
		{"no sampling", FrameSignal{Open: true, Blocking: Blocking}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := sessionTypeOf(tt.frame)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
