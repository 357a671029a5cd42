package session

// sessionTypeOf derives the per-interval session type: sampling with a known
// blocking state while the port is open. The bool is false for intervals
// that cannot belong to any session.
func sessionTypeOf(f FrameSignal) (SessionType, bool) {
	if !f.Open || !f.SamplingPresent {
		return "", false
	}
	switch f.Blocking {
	case Blocking:
		return BlockedSampling, true
	case NoBlocking:
		return UnblockedSampling, true
	}
	return "", false
}

type sessionPhase int

const (
	phaseIdle sessionPhase = iota
	phaseCandidate
	phaseConfirmed
)

// sessionMachine is the candidate -> confirm -> extend -> close machine. A
// session starts only after a candidate run of one type accumulates
// SamplingStartS of continuous time; a confirmed session extends through
// interruptions up to GapAllowSamplingS and closes once the gap reaches
// max(SamplingEndS, GapAllowSamplingS), with the end backdated to exclude
// the excess gap.
type sessionMachine struct {
	cfg Config

	phase sessionPhase

	// Candidate accumulation (phaseCandidate).
	candType       SessionType
	candStartTs    float64
	candStartFrame int
	candAccum      float64
	candGap        float64

	// Confirmed session under extension (phaseConfirmed).
	cur    Session
	curGap float64

	sessions []Session
}

func newSessionMachine(cfg Config) *sessionMachine {
	return &sessionMachine{cfg: cfg}
}

func (m *sessionMachine) effectiveGapEnd() float64 {
	return maxF(m.cfg.SamplingEndS, m.cfg.GapAllowSamplingS)
}

func (m *sessionMachine) resetCandidate() {
	m.candType = ""
	m.candStartTs = 0
	m.candStartFrame = 0
	m.candAccum = 0
	m.candGap = 0
}

func (m *sessionMachine) startCandidate(t SessionType, iv interval, accum float64) {
	m.phase = phaseCandidate
	m.candType = t
	m.candStartTs = iv.start
	m.candStartFrame = iv.frame.FrameIndex
	m.candAccum = accum
	m.candGap = 0
}

func (m *sessionMachine) closeCurrent(endTs float64, endFrame int) {
	if endTs < m.cur.StartTs {
		endTs = m.cur.StartTs
	}
	m.cur.EndTs = endTs
	m.cur.EndFrame = endFrame
	m.cur.ID = len(m.sessions) + 1
	m.cur.Duration = maxF(0, m.cur.EndTs-m.cur.StartTs)
	m.sessions = append(m.sessions, m.cur)
	m.phase = phaseIdle
	m.curGap = 0
	m.resetCandidate()
}

func (m *sessionMachine) feed(iv interval) {
	dt := iv.end - iv.start
	ivType, isSession := sessionTypeOf(iv.frame)

	switch m.phase {
	case phaseIdle, phaseCandidate:
		if !isSession {
			if m.phase == phaseCandidate {
				m.candGap += dt
				if m.candGap > m.cfg.GapAllowSamplingS {
					// Candidate interrupted too long: discard.
					m.phase = phaseIdle
					m.resetCandidate()
				}
			}
			return
		}

		if m.phase != phaseCandidate || ivType != m.candType {
			m.startCandidate(ivType, iv, 0)
		}
		m.candAccum += dt
		m.candGap = 0
		if m.candAccum >= m.cfg.SamplingStartS {
			m.phase = phaseConfirmed
			m.cur = Session{
				Type:       m.candType,
				StartTs:    m.candStartTs,
				StartFrame: m.candStartFrame,
				EndTs:      iv.end,
				EndFrame:   iv.frame.FrameIndex,
			}
			m.curGap = 0
			m.resetCandidate()
		}

	case phaseConfirmed:
		if isSession && ivType == m.cur.Type {
			m.curGap = 0
			m.cur.EndTs = iv.end
			m.cur.EndFrame = iv.frame.FrameIndex
			return
		}

		m.curGap += dt
		if m.curGap <= m.cfg.GapAllowSamplingS {
			// Tolerated interruption: the session keeps extending.
			m.cur.EndTs = iv.end
			m.cur.EndFrame = iv.frame.FrameIndex
			return
		}

		if m.curGap >= m.effectiveGapEnd() {
			// Close, backdating the end to exclude the excess gap so the
			// reported duration reflects sampling activity rather than the
			// trailing silence.
			excess := m.curGap - m.effectiveGapEnd()
			m.closeCurrent(iv.end-excess, iv.frame.FrameIndex)

			// The interrupting interval may itself seed the next candidate.
			if isSession {
				m.startCandidate(ivType, iv, dt)
			}
		}
	}
}

// finish closes a session still open at end of stream at the last extended
// timestamp and returns all sessions in time order.
func (m *sessionMachine) finish() []Session {
	if m.phase == phaseConfirmed {
		m.closeCurrent(m.cur.EndTs, m.cur.EndFrame)
	}
	return m.sessions
}

// buildSessions runs the machine over the frame sequence.
func buildSessions(frames []FrameSignal, cfg Config) []Session {
	m := newSessionMachine(cfg)
	for _, iv := range intervals(frames) {
		m.feed(iv)
	}
	return m.finish()
}

// Build derives all reportable events from a complete, time-ordered frame
// sequence. An empty sequence yields empty outputs. Re-running Build on the
// same input produces identical results; nothing here reads the wall clock.
func Build(frames []FrameSignal, cfg Config) Result {
	sessions := buildSessions(frames, cfg)

	var crewIntervals []CrewInterval
	crewStats := make([]CrewStats, 0, len(sessions))
	for _, s := range sessions {
		ivs, stats := buildCrewForSession(frames, s, cfg)
		crewIntervals = append(crewIntervals, ivs...)
		crewStats = append(crewStats, stats)
	}

	var alarms []Alarm
	if cfg.EnableMinSamplingDuration {
		for _, s := range sessions {
			if s.Duration < cfg.SamplingMinS {
				alarms = append(alarms, Alarm{
					Type:      AlarmSamplingTooShort,
					StartTs:   s.StartTs,
					EndTs:     s.EndTs,
					SessionID: s.ID,
				})
			}
		}
	}
	alarms = append(alarms, buildUnblockedAlarms(frames, cfg)...)
	for i := range alarms {
		alarms[i].ID = i + 1
	}

	segments, changes := buildPeopleCountSegments(frames, sessions, cfg.CountStableS)

	return Result{
		PresenceSegments:    buildPresenceSegments(frames),
		ObservationSegments: buildObservationSegments(frames),
		Sessions:            sessions,
		CrewIntervals:       crewIntervals,
		CrewStats:           crewStats,
		PeopleCountSegments: segments,
		PeopleCountChanges:  changes,
		Alarms:              alarms,
	}
}
