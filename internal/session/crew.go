package session

// sessionIntervals yields the portions of each frame interval overlapping
// [startTs, endTs].
func sessionIntervals(frames []FrameSignal, startTs, endTs float64) []interval {
	var out []interval
	for _, iv := range intervals(frames) {
		if iv.end <= startTs {
			continue
		}
		if iv.start >= endTs {
			break
		}
		start := maxF(iv.start, startTs)
		end := iv.end
		if end > endTs {
			end = endTs
		}
		if end <= start {
			continue
		}
		out = append(out, interval{frame: iv.frame, start: start, end: end})
	}
	return out
}

// buildCrewForSession accumulates staffing deviations inside one session.
// A deviation becomes a reportable CrewInterval only once its accumulated
// duration exceeds PeopleGraceS; shorter deviations are tolerated noise. A
// pending deviation is flushed whenever the deviation type changes or the
// count returns to the expected crew size.
func buildCrewForSession(frames []FrameSignal, s Session, cfg Config) ([]CrewInterval, CrewStats) {
	var out []CrewInterval
	var okDur, underDur, overDur float64

	active := false
	var devType DeviationType
	var devStart, devEnd, devDur float64

	flush := func() {
		if active && devDur > cfg.PeopleGraceS {
			out = append(out, CrewInterval{
				ID:        len(out) + 1,
				SessionID: s.ID,
				Type:      devType,
				StartTs:   devStart,
				EndTs:     devEnd,
				Duration:  maxF(0, devEnd-devStart),
			})
		}
		active = false
		devType = ""
		devStart = 0
		devEnd = 0
		devDur = 0
	}

	for _, iv := range sessionIntervals(frames, s.StartTs, s.EndTs) {
		dt := iv.end - iv.start
		people := iv.frame.PeopleCount

		if people == cfg.ExpectedPeople {
			okDur += dt
			flush()
			continue
		}

		var next DeviationType
		if people < cfg.ExpectedPeople {
			underDur += dt
			next = DeviationUnder
		} else {
			overDur += dt
			next = DeviationOver
		}

		if !active || devType != next {
			flush()
			active = true
			devType = next
			devStart = iv.start
			devEnd = iv.end
			devDur = dt
		} else {
			devDur += dt
			devEnd = iv.end
		}
	}
	flush()

	stats := CrewStats{
		SessionID:      s.ID,
		ExpectedPeople: cfg.ExpectedPeople,
		OKDuration:     okDur,
		UnderDuration:  underDur,
		OverDuration:   overDur,
		ViolationCount: len(out),
	}
	return out, stats
}
