package smoother

import (
	"fmt"
	"sort"
)

// CountObservation is the track detector's per-frame snapshot of active
// track identifiers.
type CountObservation struct {
	ActiveIDs []int
}

// StableCount is the debounced people count exposed by a CountSmoother.
type StableCount struct {
	Count      int
	IsExpected bool
}

// CountSmootherConfig configures the two-stage people-count filter.
type CountSmootherConfig struct {
	// Stage A: track aging. A track id is retained while its age is at most
	// MaxIDAge frames, and contributes to the count only while its age is at
	// most ActiveIDAge frames and it has accumulated at least MinTrackHits
	// observations.
	MaxIDAge     int
	ActiveIDAge  int
	MinTrackHits int

	// Stage B: visual vote over a rolling window of per-frame counts.
	ExpectedTarget        int
	VoteWindow            int
	AcceptTargetThreshold float64
	AcceptOtherThreshold  float64

	// Asymmetric switch hold: leaving the target count needs HoldOut
	// consecutive non-target candidates, returning needs only HoldBack.
	HoldOut  int
	HoldBack int
}

// DefaultCountSmootherConfig returns the tuned production parameters.
func DefaultCountSmootherConfig() CountSmootherConfig {
	return CountSmootherConfig{
		MaxIDAge:              20,
		ActiveIDAge:           8,
		MinTrackHits:          3,
		ExpectedTarget:        2,
		VoteWindow:            25,
		AcceptTargetThreshold: 0.60,
		AcceptOtherThreshold:  0.80,
		HoldOut:               20,
		HoldBack:              8,
	}
}

// TrackDebug exposes one track id's aging state.
type TrackDebug struct {
	Age     int
	Hits    int
	Counted bool
}

// CountSmootherDebug is the count channel's debug snapshot.
type CountSmootherDebug struct {
	Tracks      map[int]TrackDebug
	PTarget     float64
	POther      float64
	Candidate   int
	Stable      int
	OutCounter  int
	BackCounter int
}

// CountSmoother suppresses single-frame spurious tracks and debounces the
// exposed count with a majority vote plus asymmetric hold. Not safe for
// concurrent use.
type CountSmoother struct {
	cfg CountSmootherConfig

	frameIndex int
	lastSeen   map[int]int
	hits       map[int]int

	voteWindow []int

	stableCount int
	candidate   int
	pTarget     float64
	pOther      float64
	outCounter  int
	backCounter int

	countedIDs map[int]bool
	lastDebug  CountSmootherDebug
}

// NewCountSmoother validates cfg and returns a smoother.
func NewCountSmoother(cfg CountSmootherConfig) (*CountSmoother, error) {
	if cfg.MaxIDAge < 1 || cfg.ActiveIDAge < 1 || cfg.MinTrackHits < 1 {
		return nil, fmt.Errorf("count smoother: aging parameters must be positive")
	}
	if cfg.ActiveIDAge > cfg.MaxIDAge {
		return nil, fmt.Errorf("count smoother: active_id_age %d exceeds max_id_age %d", cfg.ActiveIDAge, cfg.MaxIDAge)
	}
	if cfg.VoteWindow < 1 {
		return nil, fmt.Errorf("count smoother: vote window must be positive")
	}
	if cfg.AcceptTargetThreshold <= 0 || cfg.AcceptTargetThreshold > 1 ||
		cfg.AcceptOtherThreshold <= 0 || cfg.AcceptOtherThreshold > 1 {
		return nil, fmt.Errorf("count smoother: accept thresholds must be in (0, 1]")
	}
	if cfg.HoldOut < 1 || cfg.HoldBack < 1 {
		return nil, fmt.Errorf("count smoother: hold counts must be positive")
	}
	if cfg.ExpectedTarget < 0 {
		return nil, fmt.Errorf("count smoother: expected target must be non-negative")
	}
	return &CountSmoother{
		cfg:      cfg,
		lastSeen: make(map[int]int),
		hits:     make(map[int]int),
	}, nil
}

// Update feeds one raw frame and returns the stable count. Call once per
// frame.
func (s *CountSmoother) Update(raw CountObservation) StableCount {
	s.frameIndex++
	for _, id := range raw.ActiveIDs {
		s.lastSeen[id] = s.frameIndex
		s.hits[id]++
	}

	counted := make(map[int]bool)
	trackDebug := make(map[int]TrackDebug)
	for id, lastSeen := range s.lastSeen {
		age := s.frameIndex - lastSeen
		hits := s.hits[id]
		isCounted := false
		if age <= s.cfg.MaxIDAge {
			isCounted = age <= s.cfg.ActiveIDAge && hits >= s.cfg.MinTrackHits
			if isCounted {
				counted[id] = true
			}
		} else {
			delete(s.lastSeen, id)
			delete(s.hits, id)
			age = s.cfg.MaxIDAge + 1
			hits = 0
		}
		trackDebug[id] = TrackDebug{Age: age, Hits: hits, Counted: isCounted}
	}
	s.countedIDs = counted

	stable := s.applyVote(len(counted))
	s.lastDebug = CountSmootherDebug{
		Tracks:      trackDebug,
		PTarget:     s.pTarget,
		POther:      s.pOther,
		Candidate:   s.candidate,
		Stable:      s.stableCount,
		OutCounter:  s.outCounter,
		BackCounter: s.backCounter,
	}

	return StableCount{
		Count:      stable,
		IsExpected: stable == s.cfg.ExpectedTarget,
	}
}

// applyVote maintains the rolling vote window and the asymmetric switch hold.
func (s *CountSmoother) applyVote(observed int) int {
	s.voteWindow = append(s.voteWindow, observed)
	if len(s.voteWindow) > s.cfg.VoteWindow {
		s.voteWindow = s.voteWindow[1:]
	}

	freq := make(map[int]int, len(s.voteWindow))
	for _, c := range s.voteWindow {
		freq[c]++
	}
	total := len(s.voteWindow)
	s.pTarget = float64(freq[s.cfg.ExpectedTarget]) / float64(total)
	s.pOther = 1.0 - s.pTarget

	candidate := s.stableCount
	if candidate == 0 {
		candidate = observed
	}
	if s.pTarget >= s.cfg.AcceptTargetThreshold {
		candidate = s.cfg.ExpectedTarget
	} else if s.pOther >= s.cfg.AcceptOtherThreshold {
		if best, ok := mostFrequentNonTarget(freq, s.cfg.ExpectedTarget); ok {
			candidate = best
		}
	}
	s.candidate = candidate

	if s.stableCount == 0 {
		s.stableCount = candidate
		return s.stableCount
	}

	if candidate == s.stableCount {
		s.outCounter = 0
		s.backCounter = 0
		return s.stableCount
	}

	if s.stableCount == s.cfg.ExpectedTarget && candidate != s.cfg.ExpectedTarget {
		s.outCounter++
		s.backCounter = 0
		if s.outCounter >= s.cfg.HoldOut {
			s.stableCount = candidate
			s.outCounter = 0
		}
		return s.stableCount
	}

	if s.stableCount != s.cfg.ExpectedTarget && candidate == s.cfg.ExpectedTarget {
		s.backCounter++
		s.outCounter = 0
		if s.backCounter >= s.cfg.HoldBack {
			s.stableCount = candidate
			s.backCounter = 0
		}
		return s.stableCount
	}

	// Neither endpoint is the target: switch immediately.
	s.outCounter = 0
	s.backCounter = 0
	s.stableCount = candidate
	return s.stableCount
}

// mostFrequentNonTarget returns the most frequent count in freq other than
// target, ties broken by the larger count value.
func mostFrequentNonTarget(freq map[int]int, target int) (int, bool) {
	best := 0
	bestFreq := -1
	found := false
	for count, n := range freq {
		if count == target {
			continue
		}
		if n > bestFreq || (n == bestFreq && count > best) {
			best = count
			bestFreq = n
			found = true
		}
	}
	return best, found
}

// ActiveIDs returns the track ids counted in the most recent frame, sorted.
func (s *CountSmoother) ActiveIDs() []int {
	ids := make([]int, 0, len(s.countedIDs))
	for id := range s.countedIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// DebugInfo returns the most recent aging and vote state.
func (s *CountSmoother) DebugInfo() CountSmootherDebug {
	return s.lastDebug
}
