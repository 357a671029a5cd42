package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/portwatch-data/portwatch/internal/monitoring"
	"github.com/portwatch-data/portwatch/internal/schedule"
	"github.com/portwatch-data/portwatch/internal/timeutil"
)

// FrameSource yields decoded frames in stream order. Next returns io.EOF at
// end of stream.
type FrameSource interface {
	Next() (Frame, error)
}

// LoopConfig configures the live processing loop.
type LoopConfig struct {
	Runner    RunnerConfig
	Scheduler schedule.SchedulerConfig

	// AutoTarget enables the real-time-ratio feedback loop on the
	// scheduler's target ratio.
	AutoTarget bool
	Ratio      schedule.RatioControllerConfig

	// QueueCapacity bounds the reader-to-loop queue. Zero means
	// max_allowed_step + 2.
	QueueCapacity int
}

// DefaultLoopConfig returns a loop tuned for fps.
func DefaultLoopConfig(fps float64) LoopConfig {
	return LoopConfig{
		Runner:    DefaultRunnerConfig(),
		Scheduler: schedule.DefaultSchedulerConfig(fps),
		Ratio:     schedule.DefaultRatioControllerConfig(),
	}
}

// LoopStats summarizes one completed run.
type LoopStats struct {
	Processed int
	// Skipped counts frames discarded by scheduler decisions.
	Skipped int
	// Evicted counts frames pushed out of the full queue by the reader.
	Evicted int
}

// Loop owns the runner, scheduler, and queue for one stream.
type Loop struct {
	cfg    LoopConfig
	runner *Runner
	sched  *schedule.FrameScheduler
	ratio  *schedule.RatioController
	clock  timeutil.Clock
}

// NewLoop builds the loop. Detector requirements follow NewRunner.
func NewLoop(cfg LoopConfig, dets Detectors, clock timeutil.Clock) (*Loop, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	runner, err := NewRunner(cfg.Runner, dets, clock)
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:    cfg,
		runner: runner,
		sched:  schedule.NewFrameScheduler(cfg.Scheduler),
		ratio:  schedule.NewRatioController(cfg.Ratio),
		clock:  clock,
	}, nil
}

// Run pumps src through the runner until end of stream or ctx is cancelled.
// A reader goroutine feeds the bounded queue; the loop processes the head
// frame, then discards the scheduler's step-1 successors so processing keeps
// up with the stream in real time. emit is called once per processed frame
// from the loop goroutine.
func (l *Loop) Run(ctx context.Context, src FrameSource, emit func(FrameOutput)) (LoopStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	capacity := l.cfg.QueueCapacity
	if capacity <= 0 {
		capacity = l.sched.MaxAllowedStep() + 2
	}
	queue := NewFrameQueue(capacity)

	readErr := make(chan error, 1)
	go func() {
		defer queue.Close()
		for {
			if ctx.Err() != nil {
				readErr <- nil
				return
			}
			frame, err := src.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					readErr <- nil
				} else {
					readErr <- fmt.Errorf("pipeline: frame source: %w", err)
				}
				return
			}
			queue.Put(frame)
		}
	}()

	var stats LoopStats
	lastPerfLog := l.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			<-readErr
			return stats, err
		}
		frame, ok := queue.Get()
		if !ok {
			break
		}

		start := l.clock.Now()
		output, err := l.runner.ProcessFrame(frame)
		if err != nil {
			cancel()
			<-readErr
			return stats, err
		}
		latency := l.clock.Since(start)
		stats.Processed++

		decision := l.sched.NextIndex(frame.Index, latency, 0)
		stats.Skipped += queue.Discard(decision.Step - 1)

		if l.cfg.AutoTarget && output.HasVideoT {
			l.ratio.Observe(l.clock.Now(), output.VideoT, l.sched)
		}

		emit(output)

		now := l.clock.Now()
		if now.Sub(lastPerfLog) >= time.Second {
			lastPerfLog = now
			monitoring.Debugf("pipeline: frame=%d step=%d capped=%v target=%.2f queued=%d fps=%.1f",
				frame.Index, decision.Step, decision.Capped, l.sched.TargetRatio(), queue.Len(), output.FPS)
		}
	}

	if err := <-readErr; err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	stats.Evicted = queue.Dropped() - stats.Skipped
	monitoring.Logf("pipeline: stream done: processed=%d skipped=%d evicted=%d", stats.Processed, stats.Skipped, stats.Evicted)
	return stats, nil
}
