// Package config loads the JSON tuning file. All fields are pointers so a
// partial file overrides only what it names; everything else keeps the tuned
// production default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/portwatch-data/portwatch/internal/pipeline"
	"github.com/portwatch-data/portwatch/internal/schedule"
	"github.com/portwatch-data/portwatch/internal/session"
	"github.com/portwatch-data/portwatch/internal/smoother"
	"github.com/portwatch-data/portwatch/internal/stateengine"
)

// TuningConfig is the root of the tuning file. The JSON field names match
// the report's config echo so a report can be replayed with the exact
// parameters that produced it.
type TuningConfig struct {
	// Sampling/close tag channel hysteresis.
	CloseOn     *int `json:"close_on,omitempty"`
	CloseOff    *int `json:"close_off,omitempty"`
	SamplingOn  *int `json:"sampling_on,omitempty"`
	SamplingOff *int `json:"sampling_off,omitempty"`

	// Blocking tag channel hysteresis.
	BlockingOn    *int `json:"blocking_on,omitempty"`
	BlockingOff   *int `json:"blocking_off,omitempty"`
	NoBlockingOn  *int `json:"no_blocking_on,omitempty"`
	NoBlockingOff *int `json:"no_blocking_off,omitempty"`

	// People count smoother.
	MaxIDAge       *int     `json:"max_id_age,omitempty"`
	ActiveIDAge    *int     `json:"active_id_age,omitempty"`
	MinTrackHits   *int     `json:"min_track_hits,omitempty"`
	ExpectedPeople *int     `json:"expected_people,omitempty"`
	VoteWindow     *int     `json:"vote_window,omitempty"`
	AcceptTarget   *float64 `json:"p_accept_target,omitempty"`
	AcceptOther    *float64 `json:"p_accept_other,omitempty"`
	HoldOut        *int     `json:"hold_out,omitempty"`
	HoldBack       *int     `json:"hold_back,omitempty"`

	// State classifier.
	DebounceK *int `json:"debounce_k,omitempty"`

	// Frame scheduler and real-time feedback.
	WarmupFrames   *int     `json:"warmup_frames,omitempty"`
	TargetRatio    *float64 `json:"target_ratio,omitempty"`
	MaxAllowedStep *int     `json:"max_allowed_step,omitempty"`
	MinStep        *int     `json:"min_step,omitempty"`
	AutoTarget     *bool    `json:"auto_target,omitempty"`
	RTSmooth       *float64 `json:"rt_smooth,omitempty"`
	FPSAssume      *float64 `json:"fps_assume,omitempty"`

	// Offline session builder.
	SamplingStartS            *float64 `json:"sampling_start_s,omitempty"`
	SamplingEndS              *float64 `json:"sampling_end_s,omitempty"`
	GapAllowSamplingS         *float64 `json:"gap_allow_sampling_s,omitempty"`
	PeopleGraceS              *float64 `json:"people_grace_s,omitempty"`
	UnblockedAlarmS           *float64 `json:"unblocked_alarm_s,omitempty"`
	GapAllowUnblockedS        *float64 `json:"gap_allow_unblocked_s,omitempty"`
	EnableMinSamplingDuration *bool    `json:"enable_min_sampling_duration,omitempty"`
	SamplingMinS              *float64 `json:"sampling_min_s,omitempty"`
	CountStableS              *float64 `json:"count_stable_s,omitempty"`
}

// DefaultFPSAssume is the fallback frame rate for sources that do not report
// one.
const DefaultFPSAssume = 25.0

// EmptyTuningConfig returns a TuningConfig with every field unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig reads and validates a tuning file. Fields omitted from
// the JSON keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects contradictory values before any component is built.
// Unset fields are never checked; the package defaults are known good.
func (c *TuningConfig) Validate() error {
	positives := map[string]*int{
		"close_on":         c.CloseOn,
		"close_off":        c.CloseOff,
		"sampling_on":      c.SamplingOn,
		"sampling_off":     c.SamplingOff,
		"blocking_on":      c.BlockingOn,
		"blocking_off":     c.BlockingOff,
		"no_blocking_on":   c.NoBlockingOn,
		"no_blocking_off":  c.NoBlockingOff,
		"max_id_age":       c.MaxIDAge,
		"active_id_age":    c.ActiveIDAge,
		"min_track_hits":   c.MinTrackHits,
		"vote_window":      c.VoteWindow,
		"hold_out":         c.HoldOut,
		"hold_back":        c.HoldBack,
		"max_allowed_step": c.MaxAllowedStep,
		"min_step":         c.MinStep,
	}
	for name, v := range positives {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if c.WarmupFrames != nil && *c.WarmupFrames < 0 {
		return fmt.Errorf("warmup_frames must be non-negative, got %d", *c.WarmupFrames)
	}

	if c.MaxIDAge != nil && c.ActiveIDAge != nil && *c.ActiveIDAge > *c.MaxIDAge {
		return fmt.Errorf("active_id_age %d exceeds max_id_age %d", *c.ActiveIDAge, *c.MaxIDAge)
	}
	for name, v := range map[string]*float64{
		"p_accept_target": c.AcceptTarget,
		"p_accept_other":  c.AcceptOther,
	} {
		if v != nil && (*v <= 0 || *v > 1) {
			return fmt.Errorf("%s must be in (0, 1], got %f", name, *v)
		}
	}
	if c.ExpectedPeople != nil && *c.ExpectedPeople < 0 {
		return fmt.Errorf("expected_people must be non-negative, got %d", *c.ExpectedPeople)
	}
	if c.TargetRatio != nil && *c.TargetRatio <= 0 {
		return fmt.Errorf("target_ratio must be positive, got %f", *c.TargetRatio)
	}
	if c.RTSmooth != nil && (*c.RTSmooth < 0 || *c.RTSmooth > 1) {
		return fmt.Errorf("rt_smooth must be in [0, 1], got %f", *c.RTSmooth)
	}
	if c.FPSAssume != nil && *c.FPSAssume <= 0 {
		return fmt.Errorf("fps_assume must be positive, got %f", *c.FPSAssume)
	}
	for name, v := range map[string]*float64{
		"sampling_start_s":      c.SamplingStartS,
		"sampling_end_s":        c.SamplingEndS,
		"gap_allow_sampling_s":  c.GapAllowSamplingS,
		"people_grace_s":        c.PeopleGraceS,
		"unblocked_alarm_s":     c.UnblockedAlarmS,
		"gap_allow_unblocked_s": c.GapAllowUnblockedS,
		"sampling_min_s":        c.SamplingMinS,
		"count_stable_s":        c.CountStableS,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}
	return nil
}

// GetFPSAssume returns the fallback frame rate.
func (c *TuningConfig) GetFPSAssume() float64 {
	if c.FPSAssume == nil {
		return DefaultFPSAssume
	}
	return *c.FPSAssume
}

// GetAutoTarget reports whether the real-time-ratio feedback loop is on.
func (c *TuningConfig) GetAutoTarget() bool {
	if c.AutoTarget == nil {
		return false
	}
	return *c.AutoTarget
}

func overrideInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func overrideFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// SamplingSmootherConfig materializes the sampling/close channel parameters.
func (c *TuningConfig) SamplingSmootherConfig() smoother.TagSmootherConfig {
	cfg := smoother.DefaultSamplingSmootherConfig()
	closeTh := cfg.Thresholds[smoother.TagClose]
	overrideInt(&closeTh.OnCount, c.CloseOn)
	overrideInt(&closeTh.OffCount, c.CloseOff)
	cfg.Thresholds[smoother.TagClose] = closeTh

	samplingTh := cfg.Thresholds[smoother.TagSampling]
	overrideInt(&samplingTh.OnCount, c.SamplingOn)
	overrideInt(&samplingTh.OffCount, c.SamplingOff)
	cfg.Thresholds[smoother.TagSampling] = samplingTh
	return cfg
}

// BlockingSmootherConfig materializes the blocking channel parameters.
func (c *TuningConfig) BlockingSmootherConfig() smoother.TagSmootherConfig {
	cfg := smoother.DefaultBlockingSmootherConfig()
	blockingTh := cfg.Thresholds[smoother.TagBlocking]
	overrideInt(&blockingTh.OnCount, c.BlockingOn)
	overrideInt(&blockingTh.OffCount, c.BlockingOff)
	cfg.Thresholds[smoother.TagBlocking] = blockingTh

	noBlockingTh := cfg.Thresholds[smoother.TagNoBlocking]
	overrideInt(&noBlockingTh.OnCount, c.NoBlockingOn)
	overrideInt(&noBlockingTh.OffCount, c.NoBlockingOff)
	cfg.Thresholds[smoother.TagNoBlocking] = noBlockingTh
	return cfg
}

// CountSmootherConfig materializes the people channel parameters.
func (c *TuningConfig) CountSmootherConfig() smoother.CountSmootherConfig {
	cfg := smoother.DefaultCountSmootherConfig()
	overrideInt(&cfg.MaxIDAge, c.MaxIDAge)
	overrideInt(&cfg.ActiveIDAge, c.ActiveIDAge)
	overrideInt(&cfg.MinTrackHits, c.MinTrackHits)
	overrideInt(&cfg.ExpectedTarget, c.ExpectedPeople)
	overrideInt(&cfg.VoteWindow, c.VoteWindow)
	overrideFloat(&cfg.AcceptTargetThreshold, c.AcceptTarget)
	overrideFloat(&cfg.AcceptOtherThreshold, c.AcceptOther)
	overrideInt(&cfg.HoldOut, c.HoldOut)
	overrideInt(&cfg.HoldBack, c.HoldBack)
	return cfg
}

// ClassifierConfig materializes the state classifier parameters.
func (c *TuningConfig) ClassifierConfig() stateengine.Config {
	cfg := stateengine.Config{DebounceK: 1}
	overrideInt(&cfg.DebounceK, c.DebounceK)
	return cfg
}

// SchedulerConfig materializes the frame scheduler for the given video fps.
// Non-positive fps falls back to fps_assume.
func (c *TuningConfig) SchedulerConfig(fps float64) schedule.SchedulerConfig {
	if fps <= 0 {
		fps = c.GetFPSAssume()
	}
	cfg := schedule.DefaultSchedulerConfig(fps)
	overrideInt(&cfg.WarmupFrames, c.WarmupFrames)
	overrideFloat(&cfg.TargetRatio, c.TargetRatio)
	overrideInt(&cfg.MaxAllowedStep, c.MaxAllowedStep)
	overrideInt(&cfg.MinStep, c.MinStep)
	return cfg
}

// RatioConfig materializes the real-time feedback loop parameters.
func (c *TuningConfig) RatioConfig() schedule.RatioControllerConfig {
	cfg := schedule.DefaultRatioControllerConfig()
	overrideFloat(&cfg.Smooth, c.RTSmooth)
	return cfg
}

// RunnerConfig materializes the full per-frame chain configuration.
func (c *TuningConfig) RunnerConfig() pipeline.RunnerConfig {
	cfg := pipeline.DefaultRunnerConfig()
	cfg.Count = c.CountSmootherConfig()
	cfg.SamplingTags = c.SamplingSmootherConfig()
	cfg.BlockingTags = c.BlockingSmootherConfig()
	cfg.Classifier = c.ClassifierConfig()
	return cfg
}

// BuilderConfig materializes the offline session builder thresholds.
func (c *TuningConfig) BuilderConfig() session.Config {
	cfg := session.DefaultConfig()
	overrideFloat(&cfg.SamplingStartS, c.SamplingStartS)
	overrideFloat(&cfg.SamplingEndS, c.SamplingEndS)
	overrideFloat(&cfg.GapAllowSamplingS, c.GapAllowSamplingS)
	overrideFloat(&cfg.PeopleGraceS, c.PeopleGraceS)
	overrideFloat(&cfg.UnblockedAlarmS, c.UnblockedAlarmS)
	overrideFloat(&cfg.GapAllowUnblockedS, c.GapAllowUnblockedS)
	overrideFloat(&cfg.SamplingMinS, c.SamplingMinS)
	overrideFloat(&cfg.CountStableS, c.CountStableS)
	overrideInt(&cfg.ExpectedPeople, c.ExpectedPeople)
	if c.EnableMinSamplingDuration != nil {
		cfg.EnableMinSamplingDuration = *c.EnableMinSamplingDuration
	}
	return cfg
}
