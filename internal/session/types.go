// Package session turns a completed, time-ordered sequence of per-frame
// signals into reportable events: presence and observation segments, sampling
// sessions, crew deviation intervals, people-count segments and change
// events, and alarms.
//
// The builder is a one-shot batch computation. Callers must supply frames in
// timestamp order; ordering is not validated here.
package session

// BlockingState is the stabilized blocking channel value for one frame.
type BlockingState string

const (
	Blocking        BlockingState = "blocking"
	NoBlocking      BlockingState = "no_blocking"
	BlockingUnknown BlockingState = "unknown"
)

// FrameSignal is one offline-analysis sample, derived once per frame by the
// live pipeline and immutable thereafter.
type FrameSignal struct {
	FrameIndex      int           `json:"frame_idx"`
	TsSeconds       float64       `json:"ts_s"`
	PeopleCount     int           `json:"people_count"`
	Open            bool          `json:"open"`
	SamplingPresent bool          `json:"sampling_present"`
	Blocking        BlockingState `json:"blocking_state"`
}

// SessionType classifies a sampling session by its blocking state.
type SessionType string

const (
	BlockedSampling   SessionType = "BLOCKED_SAMPLING"
	UnblockedSampling SessionType = "UNBLOCKED_SAMPLING"
)

// Session is a contiguous, gap-tolerant period of confirmed sampling
// activity. Sessions are non-overlapping and time-ordered.
type Session struct {
	ID         int         `json:"session_id"`
	Type       SessionType `json:"session_type"`
	StartTs    float64     `json:"start_ts_s"`
	EndTs      float64     `json:"end_ts_s"`
	Duration   float64     `json:"duration_s"`
	StartFrame int         `json:"start_frame_idx"`
	EndFrame   int         `json:"end_frame_idx"`
}

// DeviationType distinguishes under- from over-staffing.
type DeviationType string

const (
	DeviationUnder DeviationType = "UNDER"
	DeviationOver  DeviationType = "OVER"
)

// CrewInterval is a reportable staffing deviation fully contained in one
// session's time range.
type CrewInterval struct {
	ID        int           `json:"interval_id"`
	SessionID int           `json:"session_id"`
	Type      DeviationType `json:"deviation_type"`
	StartTs   float64       `json:"start_ts_s"`
	EndTs     float64       `json:"end_ts_s"`
	Duration  float64       `json:"duration_s"`
}

// CrewStats aggregates staffing compliance over one session.
type CrewStats struct {
	SessionID      int     `json:"session_id"`
	ExpectedPeople int     `json:"expected_people"`
	OKDuration     float64 `json:"ok_duration_s"`
	UnderDuration  float64 `json:"under_duration_s"`
	OverDuration   float64 `json:"over_duration_s"`
	ViolationCount int     `json:"violation_count"`
}

// PresenceSegment is a maximal run of frames with at least one person
// present (or none).
type PresenceSegment struct {
	Present    bool    `json:"present"`
	StartTs    float64 `json:"start_ts_s"`
	EndTs      float64 `json:"end_ts_s"`
	Duration   float64 `json:"duration_s"`
	StartFrame int     `json:"start_frame_idx"`
	EndFrame   int     `json:"end_frame_idx"`
}

// ObservationSegment is a maximal run where the port is open without
// sampling activity.
type ObservationSegment struct {
	StartTs    float64 `json:"start_ts_s"`
	EndTs      float64 `json:"end_ts_s"`
	Duration   float64 `json:"duration_s"`
	StartFrame int     `json:"start_frame_idx"`
	EndFrame   int     `json:"end_frame_idx"`
}

// PeopleCountSegment is a run of constant confirmed people count, split at
// session boundaries so each piece is annotated as in or out of a session.
type PeopleCountSegment struct {
	StartTs     float64 `json:"start_ts_s"`
	EndTs       float64 `json:"end_ts_s"`
	Duration    float64 `json:"duration_s"`
	PeopleCount int     `json:"people_count"`
	InSession   bool    `json:"context_in_session"`
}

// PeopleCountChangeEvent is a confirmed count transition. ChangeTs is the
// original transition instant; ConfirmedTs is when the new count had
// persisted for the stability window. ConfirmedTs >= ChangeTs.
type PeopleCountChangeEvent struct {
	FromCount   int     `json:"from_count"`
	ToCount     int     `json:"to_count"`
	ChangeTs    float64 `json:"change_ts_s"`
	ConfirmedTs float64 `json:"confirmed_ts_s"`
	InSession   bool    `json:"context_in_session"`
}

// AlarmType identifies the violated rule.
type AlarmType string

const (
	AlarmUnblockedInsertion AlarmType = "UNBLOCKED_INSERTION"
	AlarmSamplingTooShort   AlarmType = "SAMPLING_TOO_SHORT"
)

// Alarm is one rule violation. IDs are assigned only after the full pass
// completes, in discovery order. TriggerTs, when set, points at the exact
// moment the rule threshold was crossed.
type Alarm struct {
	ID        int       `json:"alarm_id"`
	Type      AlarmType `json:"alarm_type"`
	StartTs   float64   `json:"start_ts_s"`
	EndTs     float64   `json:"end_ts_s"`
	TriggerTs *float64  `json:"trigger_ts_s,omitempty"`
	SessionID int       `json:"session_id,omitempty"`
}

// Result is everything the builder derives from one frame sequence.
type Result struct {
	PresenceSegments    []PresenceSegment        `json:"presence_segments"`
	ObservationSegments []ObservationSegment     `json:"open_no_sampling_segments"`
	Sessions            []Session                `json:"sessions"`
	CrewIntervals       []CrewInterval           `json:"crew_intervals"`
	CrewStats           []CrewStats              `json:"session_crew_stats"`
	PeopleCountSegments []PeopleCountSegment     `json:"people_count_segments"`
	PeopleCountChanges  []PeopleCountChangeEvent `json:"people_count_change_events"`
	Alarms              []Alarm                  `json:"alarms"`
}

// Config holds the builder's duration and gap thresholds, in seconds.
type Config struct {
	SamplingStartS     float64 `json:"sampling_start_s"`
	SamplingEndS       float64 `json:"sampling_end_s"`
	GapAllowSamplingS  float64 `json:"gap_allow_sampling_s"`
	PeopleGraceS       float64 `json:"people_grace_s"`
	UnblockedAlarmS    float64 `json:"unblocked_alarm_s"`
	GapAllowUnblockedS float64 `json:"gap_allow_unblocked_s"`

	EnableMinSamplingDuration bool    `json:"enable_min_sampling_duration"`
	SamplingMinS              float64 `json:"sampling_min_s"`

	// ExpectedPeople is the required crew size inside a session.
	ExpectedPeople int `json:"expected_people"`

	// CountStableS is the stability window for confirming a people-count
	// change post-hoc.
	CountStableS float64 `json:"count_stable_s"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		SamplingStartS:            1.0,
		SamplingEndS:              2.0,
		GapAllowSamplingS:         10.0,
		PeopleGraceS:              1.5,
		UnblockedAlarmS:           2.0,
		GapAllowUnblockedS:        0.5,
		EnableMinSamplingDuration: false,
		SamplingMinS:              180.0,
		ExpectedPeople:            2,
		CountStableS:              2.0,
	}
}
