// Package smoother converts raw per-frame detector observations into stable
// tag sets and people counts. Each smoother is an independent stateful
// instance; state is confined to one frame-processing goroutine.
package smoother

import (
	"fmt"
	"sort"
)

// TagObservation is one tag detector's per-frame output.
type TagObservation struct {
	Tags       []string
	Confidence map[string]float64
}

// StableTagSet is the debounced tag set exposed by a TagSmoother.
type StableTagSet struct {
	Tags map[string]bool
}

// Has reports whether tag is active in the stable set.
func (s StableTagSet) Has(tag string) bool {
	return s.Tags[tag]
}

// Sorted returns the active tags in lexical order.
func (s StableTagSet) Sorted() []string {
	out := make([]string, 0, len(s.Tags))
	for tag, active := range s.Tags {
		if active {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

// TagHysteresis holds the per-tag on/off thresholds. A tag flips inactive to
// active only after OnCount consecutive observed frames, and active to
// inactive only after OffCount consecutive absent frames. Thresholds are
// asymmetric on purpose: a "close" tag typically needs far more absent frames
// to release than present frames to assert.
type TagHysteresis struct {
	OnCount  int
	OffCount int
}

// ExclusiveRule resolves a raw-frame conflict before hysteresis: whenever both
// Winner and Discard are observed in the same frame, Discard is dropped from
// the observation for that frame.
type ExclusiveRule struct {
	Winner  string
	Discard string
}

// TagSmootherConfig configures one tag channel.
type TagSmootherConfig struct {
	// Thresholds lists the channel vocabulary with per-tag hysteresis.
	Thresholds map[string]TagHysteresis

	// ForceOneOf, when non-empty, guarantees the exposed set always asserts
	// at least one of the listed tags: if hysteresis would collapse all of
	// them, the previous non-empty set is retained instead.
	ForceOneOf []string

	// Exclusive, when set, applies a mutual-exclusion rule to the raw
	// observation before hysteresis.
	Exclusive *ExclusiveRule
}

// Tag vocabulary shared by the two channels.
const (
	TagClose      = "close"
	TagSampling   = "sampling"
	TagBlocking   = "blocking"
	TagNoBlocking = "no_blocking"
)

// DefaultSamplingSmootherConfig returns the tuned sampling/close channel.
func DefaultSamplingSmootherConfig() TagSmootherConfig {
	return TagSmootherConfig{
		Thresholds: map[string]TagHysteresis{
			TagClose:    {OnCount: 12, OffCount: 18},
			TagSampling: {OnCount: 5, OffCount: 8},
		},
	}
}

// DefaultBlockingSmootherConfig returns the tuned blocking channel. The
// exclusion rule lets no_blocking win a same-frame conflict, and force_one_of
// keeps the channel from ever exposing an undefined blocking state once one
// has been established.
func DefaultBlockingSmootherConfig() TagSmootherConfig {
	return TagSmootherConfig{
		Thresholds: map[string]TagHysteresis{
			TagBlocking:   {OnCount: 6, OffCount: 3},
			TagNoBlocking: {OnCount: 3, OffCount: 3},
		},
		ForceOneOf: []string{TagBlocking, TagNoBlocking},
		Exclusive:  &ExclusiveRule{Winner: TagNoBlocking, Discard: TagBlocking},
	}
}

// TagDebug exposes the per-tag smoother internals for flicker diagnosis.
type TagDebug struct {
	Raw        bool
	Active     bool
	OnCount    int
	OffCount   int
	Confidence float64
}

// TagSmootherDebug is the channel-level debug snapshot.
type TagSmootherDebug struct {
	Tags map[string]TagDebug
	// FallbackHeld is true when the last Update returned the retained
	// previous set because the ForceOneOf invariant would have been broken.
	FallbackHeld bool
}

type tagState struct {
	active   bool
	onCount  int
	offCount int
}

// TagSmoother debounces one tag channel with independent per-tag on/off
// hysteresis counters. Not safe for concurrent use.
type TagSmoother struct {
	cfg   TagSmootherConfig
	state map[string]*tagState

	// lastActive is the most recent non-empty exposed set, used as the
	// ForceOneOf fallback. Empty until a non-empty set has been established.
	lastActive map[string]bool

	lastDebug TagSmootherDebug
}

// NewTagSmoother validates cfg and returns a smoother. Configuration
// contradictions fail here, never at first Update.
func NewTagSmoother(cfg TagSmootherConfig) (*TagSmoother, error) {
	if len(cfg.Thresholds) == 0 {
		return nil, fmt.Errorf("tag smoother: no thresholds configured")
	}
	for tag, th := range cfg.Thresholds {
		if th.OnCount < 1 || th.OffCount < 1 {
			return nil, fmt.Errorf("tag smoother: tag %q has non-positive thresholds on=%d off=%d", tag, th.OnCount, th.OffCount)
		}
	}
	for _, tag := range cfg.ForceOneOf {
		if _, ok := cfg.Thresholds[tag]; !ok {
			return nil, fmt.Errorf("tag smoother: force_one_of references unknown tag %q", tag)
		}
	}
	if ex := cfg.Exclusive; ex != nil {
		if _, ok := cfg.Thresholds[ex.Winner]; !ok {
			return nil, fmt.Errorf("tag smoother: exclusive rule references unknown tag %q", ex.Winner)
		}
		if _, ok := cfg.Thresholds[ex.Discard]; !ok {
			return nil, fmt.Errorf("tag smoother: exclusive rule references unknown tag %q", ex.Discard)
		}
	}

	state := make(map[string]*tagState, len(cfg.Thresholds))
	for tag := range cfg.Thresholds {
		state[tag] = &tagState{}
	}
	return &TagSmoother{
		cfg:        cfg,
		state:      state,
		lastActive: make(map[string]bool),
	}, nil
}

// Update feeds one raw frame and returns the stable tag set. Call once per
// frame.
func (s *TagSmoother) Update(raw TagObservation) StableTagSet {
	observed := make(map[string]bool, len(raw.Tags))
	for _, tag := range raw.Tags {
		observed[tag] = true
	}
	rawObserved := make(map[string]bool, len(observed))
	for tag := range observed {
		rawObserved[tag] = true
	}
	if ex := s.cfg.Exclusive; ex != nil && observed[ex.Winner] && observed[ex.Discard] {
		delete(observed, ex.Discard)
	}

	for tag, th := range s.cfg.Thresholds {
		st := s.state[tag]
		if observed[tag] {
			st.onCount++
			st.offCount = 0
		} else {
			st.offCount++
			st.onCount = 0
		}
		if !st.active && st.onCount >= th.OnCount {
			st.active = true
		}
		if st.active && st.offCount >= th.OffCount {
			st.active = false
		}
	}

	tags := make(map[string]bool)
	for tag, st := range s.state {
		if st.active {
			tags[tag] = true
		}
	}

	held := false
	if len(s.cfg.ForceOneOf) > 0 && !intersects(tags, s.cfg.ForceOneOf) {
		// Never report an undefined blocking state: keep the last known
		// non-empty set instead of an ambiguous empty result.
		tags = copySet(s.lastActive)
		held = true
	}
	if len(tags) > 0 {
		s.lastActive = copySet(tags)
	}

	debugTags := make(map[string]TagDebug, len(s.state))
	for tag, st := range s.state {
		debugTags[tag] = TagDebug{
			Raw:        rawObserved[tag],
			Active:     st.active,
			OnCount:    st.onCount,
			OffCount:   st.offCount,
			Confidence: raw.Confidence[tag],
		}
	}
	s.lastDebug = TagSmootherDebug{Tags: debugTags, FallbackHeld: held}

	return StableTagSet{Tags: tags}
}

// DebugInfo returns the most recent per-tag counters, raw presence, and
// confidences.
func (s *TagSmoother) DebugInfo() TagSmootherDebug {
	return s.lastDebug
}

func intersects(set map[string]bool, tags []string) bool {
	for _, tag := range tags {
		if set[tag] {
			return true
		}
	}
	return false
}

func copySet(set map[string]bool) map[string]bool {
	out := make(map[string]bool, len(set))
	for k, v := range set {
		if v {
			out[k] = true
		}
	}
	return out
}
