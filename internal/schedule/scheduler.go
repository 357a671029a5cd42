// Package schedule decides how many source frames to skip so a pipeline whose
// inference is slower than the video's native frame rate keeps pace with real
// time.
package schedule

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// latencyWindowSize is the number of recent per-frame latencies smoothed
// into the step estimate.
const latencyWindowSize = 3

// SchedulerConfig configures a FrameScheduler.
type SchedulerConfig struct {
	VideoFPS float64

	// WarmupFrames forces step=1 for the first N decisions; early timings
	// are unreliable while the model backend and OS caches settle.
	WarmupFrames int

	// TargetRatio scales the smoothed step. 1.0 aims for real time. It may
	// be tuned at runtime by a RatioController.
	TargetRatio float64

	MaxAllowedStep int
	MinStep        int
}

// DefaultSchedulerConfig returns the production defaults for fps.
func DefaultSchedulerConfig(fps float64) SchedulerConfig {
	return SchedulerConfig{
		VideoFPS:       fps,
		WarmupFrames:   5,
		TargetRatio:    1.0,
		MaxAllowedStep: 10,
		MinStep:        1,
	}
}

// Decision is the outcome of one scheduling step.
type Decision struct {
	NextIndex    int
	Step         int
	RawStep      float64
	SmoothedStep float64
	Capped       bool
}

// FrameScheduler computes frame advances from measured processing latency.
// Not safe for concurrent use.
type FrameScheduler struct {
	cfg    SchedulerConfig
	count  int
	window []float64
}

// NewFrameScheduler validates cfg and returns a scheduler. Out-of-range
// values are clamped to safe minimums rather than rejected, matching how the
// live pipeline tolerates probe failures on the video source.
func NewFrameScheduler(cfg SchedulerConfig) *FrameScheduler {
	if cfg.VideoFPS < 0.1 {
		cfg.VideoFPS = 0.1
	}
	if cfg.WarmupFrames < 0 {
		cfg.WarmupFrames = 0
	}
	if cfg.TargetRatio < 0.01 {
		cfg.TargetRatio = 0.01
	}
	if cfg.MaxAllowedStep < 1 {
		cfg.MaxAllowedStep = 1
	}
	if cfg.MinStep < 1 {
		cfg.MinStep = 1
	}
	return &FrameScheduler{
		cfg:    cfg,
		window: make([]float64, 0, latencyWindowSize),
	}
}

// NextIndex records latency and returns the next frame index to process
// after currentIndex. totalFrames <= 0 means the stream length is unknown.
func (s *FrameScheduler) NextIndex(currentIndex int, latency time.Duration, totalFrames int) Decision {
	warmupActive := s.count < s.cfg.WarmupFrames
	if s.count == s.cfg.WarmupFrames {
		// Discard warm-up timings; they would drag the window for the first
		// few post-warmup decisions.
		s.window = s.window[:0]
	}

	dt := math.Max(0, latency.Seconds())
	s.window = append(s.window, dt)
	if len(s.window) > latencyWindowSize {
		s.window = s.window[1:]
	}

	dtSmooth := stat.Mean(s.window, nil)
	rawStep := dt * s.cfg.VideoFPS
	smoothedStep := dtSmooth * s.cfg.VideoFPS * s.cfg.TargetRatio

	step := 1
	if !warmupActive {
		step = int(math.Round(smoothedStep))
	}
	if step < s.cfg.MinStep {
		step = s.cfg.MinStep
	}
	capped := step > s.cfg.MaxAllowedStep
	if capped {
		step = s.cfg.MaxAllowedStep
	}
	if step < 1 {
		step = 1
	}

	nextIndex := currentIndex + step
	if totalFrames > 0 && nextIndex > totalFrames-1 {
		nextIndex = totalFrames - 1
	}
	s.count++

	return Decision{
		NextIndex:    nextIndex,
		Step:         step,
		RawStep:      rawStep,
		SmoothedStep: smoothedStep,
		Capped:       capped,
	}
}

// TargetRatio returns the current target real-time ratio.
func (s *FrameScheduler) TargetRatio() float64 {
	return s.cfg.TargetRatio
}

// SetTargetRatio updates the target real-time ratio.
func (s *FrameScheduler) SetTargetRatio(ratio float64) {
	if ratio < 0.01 {
		ratio = 0.01
	}
	s.cfg.TargetRatio = ratio
}

// MaxAllowedStep returns the configured hard cap.
func (s *FrameScheduler) MaxAllowedStep() int {
	return s.cfg.MaxAllowedStep
}

// String describes the scheduler configuration for diagnostics.
func (s *FrameScheduler) String() string {
	return fmt.Sprintf("scheduler fps=%.2f warmup=%d target=%.2f max_step=%d",
		s.cfg.VideoFPS, s.cfg.WarmupFrames, s.cfg.TargetRatio, s.cfg.MaxAllowedStep)
}
