package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portwatch-data/portwatch/internal/session"
	"github.com/portwatch-data/portwatch/internal/smoother"
	"github.com/portwatch-data/portwatch/internal/stateengine"
	"github.com/portwatch-data/portwatch/internal/timeutil"
)

// constTagDetector reports the same tags every frame.
type constTagDetector struct {
	tags []string
}

func (d constTagDetector) Detect(Frame) (smoother.TagObservation, error) {
	return smoother.TagObservation{Tags: d.tags}, nil
}

// constTrackDetector reports the same track ids every frame.
type constTrackDetector struct {
	ids []int
}

func (d constTrackDetector) Detect(Frame) (smoother.CountObservation, error) {
	return smoother.CountObservation{ActiveIDs: d.ids}, nil
}

type failingTagDetector struct{}

func (failingTagDetector) Detect(Frame) (smoother.TagObservation, error) {
	return smoother.TagObservation{}, errors.New("camera gone")
}

func fullDetectors() Detectors {
	return Detectors{
		People:   constTrackDetector{ids: []int{1, 2}},
		Sampling: constTagDetector{tags: []string{smoother.TagSampling}},
		Blocking: constTagDetector{tags: []string{smoother.TagBlocking}},
	}
}

func TestNewRunner_RequiresDetectorsForEnabledChannels(t *testing.T) {
	t.Parallel()

	cfg := DefaultRunnerConfig()
	_, err := NewRunner(cfg, Detectors{}, nil)
	require.Error(t, err)

	_, err = NewRunner(cfg, fullDetectors(), nil)
	assert.NoError(t, err)
}

func TestNewRunner_RejectsBadSmootherConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultRunnerConfig()
	cfg.Count.VoteWindow = 0
	_, err := NewRunner(cfg, fullDetectors(), nil)
	assert.Error(t, err)
}

func TestRunner_FullChainConverges(t *testing.T) {
	t.Parallel()

	r, err := NewRunner(DefaultRunnerConfig(), fullDetectors(), timeutil.NewMockClock(time.Unix(0, 0)))
	require.NoError(t, err)

	var out FrameOutput
	for i := 0; i < 30; i++ {
		out, err = r.ProcessFrame(Frame{Index: i, TimestampMs: float64(i) * 40.0})
		require.NoError(t, err)
	}

	assert.Equal(t, stateengine.StateOpenNormalSampling, out.State)
	assert.Equal(t, "blocking+sampling", out.StateReason)
	assert.Equal(t, 2, out.PeopleCount)
	assert.True(t, out.PeopleOK)
	assert.True(t, out.SamplingTags.Has(smoother.TagSampling))
	assert.True(t, out.BlockingTags.Has(smoother.TagBlocking))
}

func TestRunner_DetectorErrorPropagates(t *testing.T) {
	t.Parallel()

	dets := fullDetectors()
	dets.Blocking = failingTagDetector{}
	r, err := NewRunner(DefaultRunnerConfig(), dets, timeutil.NewMockClock(time.Unix(0, 0)))
	require.NoError(t, err)

	_, err = r.ProcessFrame(Frame{Index: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocking detector")
}

func TestRunner_DisabledChannelOffModes(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultRunnerConfig()
		cfg.People = ChannelToggle{Enabled: false, Off: OffEmpty}
		cfg.Sampling = ChannelToggle{Enabled: false, Off: OffEmpty}
		cfg.Blocking = ChannelToggle{Enabled: false, Off: OffEmpty}
		r, err := NewRunner(cfg, Detectors{}, timeutil.NewMockClock(time.Unix(0, 0)))
		require.NoError(t, err)

		out, err := r.ProcessFrame(Frame{Index: 0})
		require.NoError(t, err)
		assert.Equal(t, 0, out.PeopleCount)
		assert.False(t, out.PeopleOK)
		assert.Empty(t, out.SamplingTags.Sorted())
		assert.Equal(t, stateengine.StateOpenUnknown, out.State)
	})

	t.Run("inject", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultRunnerConfig()
		cfg.People = ChannelToggle{Enabled: false, Off: OffInject}
		cfg.Sampling = ChannelToggle{Enabled: false, Off: OffInject}
		cfg.Blocking = ChannelToggle{Enabled: false, Off: OffInject}
		cfg.InjectPeopleCount = 2
		cfg.InjectSamplingTags = []string{smoother.TagSampling}
		cfg.InjectBlockingTags = []string{smoother.TagBlocking}
		r, err := NewRunner(cfg, Detectors{}, timeutil.NewMockClock(time.Unix(0, 0)))
		require.NoError(t, err)

		out, err := r.ProcessFrame(Frame{Index: 0})
		require.NoError(t, err)
		assert.Equal(t, 2, out.PeopleCount)
		assert.True(t, out.PeopleOK)
		assert.Equal(t, stateengine.StateOpenNormalSampling, out.State)
	})

	t.Run("hold last falls back to empty before any value", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultRunnerConfig()
		cfg.People = ChannelToggle{Enabled: false, Off: OffHoldLast}
		cfg.Sampling = ChannelToggle{Enabled: false, Off: OffHoldLast}
		cfg.Blocking = ChannelToggle{Enabled: false, Off: OffHoldLast}
		r, err := NewRunner(cfg, Detectors{}, timeutil.NewMockClock(time.Unix(0, 0)))
		require.NoError(t, err)

		out, err := r.ProcessFrame(Frame{Index: 0})
		require.NoError(t, err)
		assert.Equal(t, 0, out.PeopleCount)
		assert.Empty(t, out.BlockingTags.Sorted())
	})
}

func TestRunner_FPSEMA(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r, err := NewRunner(DefaultRunnerConfig(), fullDetectors(), clock)
	require.NoError(t, err)

	out, err := r.ProcessFrame(Frame{Index: 0})
	require.NoError(t, err)
	assert.Zero(t, out.FPS)

	clock.Advance(40 * time.Millisecond)
	out, err = r.ProcessFrame(Frame{Index: 1})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, out.FPS, 1e-9)

	// A slower frame nudges the estimate down by a tenth of the difference.
	clock.Advance(80 * time.Millisecond)
	out, err = r.ProcessFrame(Frame{Index: 2})
	require.NoError(t, err)
	assert.InDelta(t, 25.0*0.9+12.5*0.1, out.FPS, 1e-9)
}

func TestRunner_StateDurationFromVideoTime(t *testing.T) {
	t.Parallel()

	cfg := DefaultRunnerConfig()
	cfg.People = ChannelToggle{Enabled: false, Off: OffEmpty}
	cfg.Sampling = ChannelToggle{Enabled: false, Off: OffInject}
	cfg.Blocking = ChannelToggle{Enabled: false, Off: OffInject}
	cfg.InjectSamplingTags = []string{smoother.TagSampling}
	cfg.InjectBlockingTags = []string{smoother.TagBlocking}
	r, err := NewRunner(cfg, Detectors{}, timeutil.NewMockClock(time.Unix(0, 0)))
	require.NoError(t, err)

	for i, want := range []float64{0, 0.5, 1.0} {
		out, err := r.ProcessFrame(Frame{Index: i, VideoT: float64(i) * 0.5, HasVideoT: true})
		require.NoError(t, err)
		require.True(t, out.HasStateDuration)
		assert.InDelta(t, want, out.StateDuration, 1e-9, "frame %d", i)
	}
}

func TestRunner_StateDurationWallClockFallback(t *testing.T) {
	t.Parallel()

	cfg := DefaultRunnerConfig()
	cfg.People = ChannelToggle{Enabled: false, Off: OffEmpty}
	cfg.Sampling = ChannelToggle{Enabled: false, Off: OffInject}
	cfg.Blocking = ChannelToggle{Enabled: false, Off: OffInject}
	cfg.InjectSamplingTags = []string{smoother.TagSampling}
	cfg.InjectBlockingTags = []string{smoother.TagBlocking}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r, err := NewRunner(cfg, Detectors{}, clock)
	require.NoError(t, err)

	for i, want := range []float64{0, 0.1, 0.2} {
		out, err := r.ProcessFrame(Frame{Index: i})
		require.NoError(t, err)
		require.True(t, out.HasStateDuration)
		assert.InDelta(t, want, out.StateDuration, 1e-9, "frame %d", i)
		clock.Advance(100 * time.Millisecond)
	}
}

func TestFrameOutput_Signal(t *testing.T) {
	t.Parallel()

	out := FrameOutput{
		FrameIndex:  7,
		TimestampMs: 1234.0,
		PeopleCount: 2,
		SamplingTags: smoother.StableTagSet{Tags: map[string]bool{
			smoother.TagSampling: true,
		}},
		BlockingTags: smoother.StableTagSet{Tags: map[string]bool{
			smoother.TagBlocking: true,
		}},
	}
	sig := out.Signal()
	assert.Equal(t, 7, sig.FrameIndex)
	assert.InDelta(t, 1.234, sig.TsSeconds, 1e-9)
	assert.True(t, sig.Open)
	assert.True(t, sig.SamplingPresent)
	assert.Equal(t, session.Blocking, sig.Blocking)

	out.SamplingTags = smoother.StableTagSet{Tags: map[string]bool{smoother.TagClose: true}}
	out.BlockingTags = smoother.StableTagSet{Tags: map[string]bool{}}
	sig = out.Signal()
	assert.False(t, sig.Open)
	assert.False(t, sig.SamplingPresent)
	assert.Equal(t, session.BlockingUnknown, sig.Blocking)

	// Container time wins over the millisecond timestamp when present.
	out.VideoT = 9.5
	out.HasVideoT = true
	assert.Equal(t, 9.5, out.Signal().TsSeconds)
}
