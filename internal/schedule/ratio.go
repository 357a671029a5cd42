package schedule

import "time"

// RatioControllerConfig configures the outer real-time-ratio feedback loop.
// The 0.9/1.1 thresholds and 0.05 step are operational tuning, kept as given;
// no correctness property depends on their exact values beyond direction.
type RatioControllerConfig struct {
	// Smooth is the EMA weight given to the newest observed ratio.
	Smooth float64

	// RaiseBelow raises target_ratio when the smoothed observed ratio falls
	// below it (playback lagging real time); LowerAbove lowers it when the
	// ratio exceeds it (playback running ahead).
	RaiseBelow float64
	LowerAbove float64

	Step     float64
	MinRatio float64
	MaxRatio float64

	// MinWallDelta suppresses observations over wall-clock deltas too short
	// to measure reliably.
	MinWallDelta time.Duration
}

// DefaultRatioControllerConfig returns the production feedback parameters.
func DefaultRatioControllerConfig() RatioControllerConfig {
	return RatioControllerConfig{
		Smooth:       0.2,
		RaiseBelow:   0.9,
		LowerAbove:   1.1,
		Step:         0.05,
		MinRatio:     0.5,
		MaxRatio:     2.0,
		MinWallDelta: 50 * time.Millisecond,
	}
}

// RatioController observes the video-time/wall-time ratio and nudges a
// FrameScheduler's target ratio toward real time. It is an outer control
// loop layered on top of the scheduler, not part of it. Not safe for
// concurrent use.
type RatioController struct {
	cfg RatioControllerConfig

	lastWall  time.Time
	lastVideo float64
	hasLast   bool

	ema    float64
	hasEMA bool
}

// NewRatioController returns a controller; smooth is clamped to [0, 1].
func NewRatioController(cfg RatioControllerConfig) *RatioController {
	if cfg.Smooth < 0 {
		cfg.Smooth = 0
	}
	if cfg.Smooth > 1 {
		cfg.Smooth = 1
	}
	return &RatioController{cfg: cfg}
}

// Observe feeds one (wall time, video time) sample and adjusts the
// scheduler's target ratio when the smoothed ratio drifts outside the
// deadband. Returns the smoothed ratio and whether an adjustment was made.
func (r *RatioController) Observe(wallNow time.Time, videoT float64, sched *FrameScheduler) (float64, bool) {
	defer func() {
		r.lastWall = wallNow
		r.lastVideo = videoT
		r.hasLast = true
	}()

	if !r.hasLast {
		return r.ema, false
	}

	dWall := wallNow.Sub(r.lastWall)
	dVideo := videoT - r.lastVideo
	if dWall < r.cfg.MinWallDelta || dVideo < 0 {
		return r.ema, false
	}

	ratio := dVideo / dWall.Seconds()
	if !r.hasEMA {
		r.ema = ratio
		r.hasEMA = true
	} else {
		r.ema = r.cfg.Smooth*ratio + (1.0-r.cfg.Smooth)*r.ema
	}

	switch {
	case r.ema < r.cfg.RaiseBelow:
		target := sched.TargetRatio() + r.cfg.Step
		if target > r.cfg.MaxRatio {
			target = r.cfg.MaxRatio
		}
		sched.SetTargetRatio(target)
		return r.ema, true
	case r.ema > r.cfg.LowerAbove:
		target := sched.TargetRatio() - r.cfg.Step
		if target < r.cfg.MinRatio {
			target = r.cfg.MinRatio
		}
		sched.SetTargetRatio(target)
		return r.ema, true
	}
	return r.ema, false
}
