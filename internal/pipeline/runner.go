// Package pipeline composes the per-frame conditioning chain: raw detector
// observations flow through the channel smoothers into the state classifier,
// producing one FrameOutput per processed frame. The live loop pairs a
// Runner with the frame scheduler and a bounded drop-oldest queue.
package pipeline

import (
	"fmt"
	"time"

	"github.com/portwatch-data/portwatch/internal/session"
	"github.com/portwatch-data/portwatch/internal/smoother"
	"github.com/portwatch-data/portwatch/internal/stateengine"
	"github.com/portwatch-data/portwatch/internal/timeutil"
)

// Frame identifies one decoded frame by index and media timestamps. VideoT
// is the container timestamp in seconds; HasVideoT is false for sources that
// do not carry one (raw streams, some capture devices).
type Frame struct {
	Index       int
	TimestampMs float64
	VideoT      float64
	HasVideoT   bool
}

// TsSeconds is the frame's timestamp in seconds, preferring container time.
func (f Frame) TsSeconds() float64 {
	if f.HasVideoT {
		return f.VideoT
	}
	return f.TimestampMs / 1000.0
}

// TagDetector produces a raw tag observation for one frame.
type TagDetector interface {
	Detect(frame Frame) (smoother.TagObservation, error)
}

// TrackDetector produces the raw active-track snapshot for one frame.
type TrackDetector interface {
	Detect(frame Frame) (smoother.CountObservation, error)
}

// Detectors bundles the three channel detectors. A nil detector is legal
// only for a disabled channel.
type Detectors struct {
	People   TrackDetector
	Sampling TagDetector
	Blocking TagDetector
}

// OffMode selects what a disabled channel reports.
type OffMode string

const (
	// OffEmpty reports a zero count or empty tag set.
	OffEmpty OffMode = "EMPTY"
	// OffHoldLast repeats the channel's last stable value, falling back to
	// empty before any value exists.
	OffHoldLast OffMode = "HOLD_LAST"
	// OffInject reports a configured constant.
	OffInject OffMode = "INJECT"
)

// ChannelToggle enables a channel or selects its substitute output.
type ChannelToggle struct {
	Enabled bool
	Off     OffMode
}

// RunnerConfig configures the per-frame chain.
type RunnerConfig struct {
	People   ChannelToggle
	Sampling ChannelToggle
	Blocking ChannelToggle

	InjectPeopleCount  int
	InjectSamplingTags []string
	InjectBlockingTags []string

	EnableClassifier bool

	Count        smoother.CountSmootherConfig
	SamplingTags smoother.TagSmootherConfig
	BlockingTags smoother.TagSmootherConfig
	Classifier   stateengine.Config
}

// DefaultRunnerConfig enables all channels with the tuned smoother
// parameters.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		People:           ChannelToggle{Enabled: true, Off: OffEmpty},
		Sampling:         ChannelToggle{Enabled: true, Off: OffEmpty},
		Blocking:         ChannelToggle{Enabled: true, Off: OffEmpty},
		EnableClassifier: true,
		Count:            smoother.DefaultCountSmootherConfig(),
		SamplingTags:     smoother.DefaultSamplingSmootherConfig(),
		BlockingTags:     smoother.DefaultBlockingSmootherConfig(),
	}
}

// FrameOutput is the conditioned result for one processed frame.
type FrameOutput struct {
	FrameIndex  int
	TimestampMs float64
	VideoT      float64
	HasVideoT   bool

	// FPS is the exponentially smoothed processing rate; zero until two
	// frames have been processed.
	FPS float64

	PeopleCount int
	PeopleOK    bool

	SamplingTags smoother.StableTagSet
	BlockingTags smoother.StableTagSet

	State       stateengine.State
	StateReason string

	// StateDuration is how long the stable state has persisted, from video
	// time when available, wall time otherwise.
	StateDuration    float64
	HasStateDuration bool
}

// Signal projects the output into the offline builder's per-frame record.
func (o FrameOutput) Signal() session.FrameSignal {
	blocking := session.BlockingUnknown
	switch {
	case o.BlockingTags.Has(smoother.TagNoBlocking):
		blocking = session.NoBlocking
	case o.BlockingTags.Has(smoother.TagBlocking):
		blocking = session.Blocking
	}
	ts := o.TimestampMs / 1000.0
	if o.HasVideoT {
		ts = o.VideoT
	}
	return session.FrameSignal{
		FrameIndex:      o.FrameIndex,
		TsSeconds:       ts,
		PeopleCount:     o.PeopleCount,
		Open:            !o.SamplingTags.Has(smoother.TagClose),
		SamplingPresent: o.SamplingTags.Has(smoother.TagSampling),
		Blocking:        blocking,
	}
}

// Runner drives the smoothers and classifier over a frame sequence. Not safe
// for concurrent use; one Runner per stream.
type Runner struct {
	cfg  RunnerConfig
	dets Detectors

	people     *smoother.CountSmoother
	sampling   *smoother.TagSmoother
	blocking   *smoother.TagSmoother
	classifier *stateengine.Classifier

	lastPeople    smoother.StableCount
	hasLastPeople bool
	lastSampling  smoother.StableTagSet
	lastBlocking  smoother.StableTagSet

	lastState          stateengine.State
	hasState           bool
	stateStartVideoT   float64
	hasStateStartVideo bool
	stateStartWall     time.Time
	hasStateStartWall  bool

	clock    timeutil.Clock
	lastTick time.Time
	hasTick  bool
	fpsEMA   float64
	hasFPS   bool
}

// NewRunner validates cfg against the supplied detectors. Every enabled
// channel must have a detector.
func NewRunner(cfg RunnerConfig, dets Detectors, clock timeutil.Clock) (*Runner, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	r := &Runner{cfg: cfg, dets: dets, clock: clock}

	var err error
	if cfg.People.Enabled {
		if dets.People == nil {
			return nil, fmt.Errorf("pipeline: people channel enabled without a detector")
		}
		if r.people, err = smoother.NewCountSmoother(cfg.Count); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}
	if cfg.Sampling.Enabled {
		if dets.Sampling == nil {
			return nil, fmt.Errorf("pipeline: sampling channel enabled without a detector")
		}
		if r.sampling, err = smoother.NewTagSmoother(cfg.SamplingTags); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}
	if cfg.Blocking.Enabled {
		if dets.Blocking == nil {
			return nil, fmt.Errorf("pipeline: blocking channel enabled without a detector")
		}
		if r.blocking, err = smoother.NewTagSmoother(cfg.BlockingTags); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}
	if cfg.EnableClassifier {
		r.classifier = stateengine.New(cfg.Classifier)
	}
	return r, nil
}

func (r *Runner) offPeople() smoother.StableCount {
	switch r.cfg.People.Off {
	case OffHoldLast:
		if r.hasLastPeople {
			return r.lastPeople
		}
	case OffInject:
		return smoother.StableCount{
			Count:      r.cfg.InjectPeopleCount,
			IsExpected: r.cfg.InjectPeopleCount == r.cfg.Count.ExpectedTarget,
		}
	}
	return smoother.StableCount{}
}

func (r *Runner) substituteTags(toggle ChannelToggle, last smoother.StableTagSet, inject []string) smoother.StableTagSet {
	switch toggle.Off {
	case OffHoldLast:
		if last.Tags != nil {
			return last
		}
	case OffInject:
		tags := make(map[string]bool, len(inject))
		for _, tag := range inject {
			tags[tag] = true
		}
		return smoother.StableTagSet{Tags: tags}
	}
	return smoother.StableTagSet{Tags: map[string]bool{}}
}

// ProcessFrame runs one frame through all enabled channels. Frames must be
// fed in stream order.
func (r *Runner) ProcessFrame(frame Frame) (FrameOutput, error) {
	var people smoother.StableCount
	if r.people != nil {
		raw, err := r.dets.People.Detect(frame)
		if err != nil {
			return FrameOutput{}, fmt.Errorf("pipeline: people detector frame %d: %w", frame.Index, err)
		}
		people = r.people.Update(raw)
	} else {
		people = r.offPeople()
	}
	r.lastPeople = people
	r.hasLastPeople = true

	var samplingTags smoother.StableTagSet
	if r.sampling != nil {
		raw, err := r.dets.Sampling.Detect(frame)
		if err != nil {
			return FrameOutput{}, fmt.Errorf("pipeline: sampling detector frame %d: %w", frame.Index, err)
		}
		samplingTags = r.sampling.Update(raw)
	} else {
		samplingTags = r.substituteTags(r.cfg.Sampling, r.lastSampling, r.cfg.InjectSamplingTags)
	}
	r.lastSampling = samplingTags

	var blockingTags smoother.StableTagSet
	if r.blocking != nil {
		raw, err := r.dets.Blocking.Detect(frame)
		if err != nil {
			return FrameOutput{}, fmt.Errorf("pipeline: blocking detector frame %d: %w", frame.Index, err)
		}
		blockingTags = r.blocking.Update(raw)
	} else {
		blockingTags = r.substituteTags(r.cfg.Blocking, r.lastBlocking, r.cfg.InjectBlockingTags)
	}
	r.lastBlocking = blockingTags

	var state stateengine.Result
	hasResult := false
	if r.classifier != nil {
		tags := make(map[string]bool)
		for tag, active := range samplingTags.Tags {
			if active {
				tags[tag] = true
			}
		}
		for tag, active := range blockingTags.Tags {
			if active {
				tags[tag] = true
			}
		}
		state = r.classifier.Compute(tags)
		hasResult = true
	}

	now := r.clock.Now()
	if r.hasTick {
		dt := now.Sub(r.lastTick).Seconds()
		if dt > 0 {
			fps := 1.0 / dt
			if r.hasFPS {
				r.fpsEMA = r.fpsEMA*0.9 + fps*0.1
			} else {
				r.fpsEMA = fps
				r.hasFPS = true
			}
		}
	}
	r.lastTick = now
	r.hasTick = true

	currentState := stateengine.StateOpenUnknown
	reason := ""
	if hasResult {
		currentState = state.Stable
		reason = state.Reason
	}
	if !r.hasState || currentState != r.lastState {
		r.lastState = currentState
		r.hasState = true
		if frame.HasVideoT {
			r.stateStartVideoT = frame.VideoT
			r.hasStateStartVideo = true
			r.hasStateStartWall = false
		} else {
			r.stateStartWall = now
			r.hasStateStartWall = true
			r.hasStateStartVideo = false
		}
	}

	var stateDuration float64
	hasDuration := false
	switch {
	case r.hasStateStartVideo && frame.HasVideoT:
		stateDuration = maxF(0, frame.VideoT-r.stateStartVideoT)
		hasDuration = true
	case r.hasStateStartWall:
		stateDuration = maxF(0, now.Sub(r.stateStartWall).Seconds())
		hasDuration = true
	}

	return FrameOutput{
		FrameIndex:       frame.Index,
		TimestampMs:      frame.TimestampMs,
		VideoT:           frame.VideoT,
		HasVideoT:        frame.HasVideoT,
		FPS:              r.fpsEMA,
		PeopleCount:      people.Count,
		PeopleOK:         people.IsExpected,
		SamplingTags:     samplingTags,
		BlockingTags:     blockingTags,
		State:            currentState,
		StateReason:      reason,
		StateDuration:    stateDuration,
		HasStateDuration: hasDuration,
	}, nil
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
