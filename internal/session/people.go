package session

import "sort"

// inAnySession reports whether ts falls inside any confirmed session.
func inAnySession(ts float64, sessions []Session) bool {
	for _, s := range sessions {
		if s.StartTs <= ts && ts <= s.EndTs {
			return true
		}
	}
	return false
}

// buildPeopleCountSegments confirms count transitions post-hoc: a departure
// from the current count is confirmed, and timestamped at the original
// transition instant, only once the new count persists for stableS seconds.
// Segments are then split at session boundaries so every piece is annotated
// as in or out of a session.
func buildPeopleCountSegments(frames []FrameSignal, sessions []Session, stableS float64) ([]PeopleCountSegment, []PeopleCountChangeEvent) {
	if len(frames) == 0 {
		return nil, nil
	}

	var segments []PeopleCountSegment
	var events []PeopleCountChangeEvent

	currentCount := frames[0].PeopleCount
	segmentStart := frames[0].TsSeconds

	pendingActive := false
	pendingCount := 0
	pendingStart := 0.0
	pendingDur := 0.0

	for _, iv := range intervals(frames) {
		dt := iv.end - iv.start
		count := iv.frame.PeopleCount
		if count == currentCount {
			pendingActive = false
			pendingCount = 0
			pendingStart = 0
			pendingDur = 0
			continue
		}

		if !pendingActive || pendingCount != count {
			pendingActive = true
			pendingCount = count
			pendingStart = iv.start
			pendingDur = 0
		}

		before := pendingDur
		pendingDur += dt
		if pendingDur >= stableS {
			confirmOffset := stableS - before
			confirmedTs := iv.start + maxF(0, confirmOffset)
			changeTs := pendingStart
			segments = append(segments, PeopleCountSegment{
				StartTs:     segmentStart,
				EndTs:       changeTs,
				Duration:    maxF(0, changeTs-segmentStart),
				PeopleCount: currentCount,
				InSession:   inAnySession(changeTs, sessions),
			})
			events = append(events, PeopleCountChangeEvent{
				FromCount:   currentCount,
				ToCount:     pendingCount,
				ChangeTs:    changeTs,
				ConfirmedTs: confirmedTs,
				InSession:   inAnySession(changeTs, sessions),
			})
			currentCount = pendingCount
			segmentStart = changeTs
			pendingActive = false
			pendingCount = 0
			pendingStart = 0
			pendingDur = 0
		}
	}

	lastTs := frames[len(frames)-1].TsSeconds
	segments = append(segments, PeopleCountSegment{
		StartTs:     segmentStart,
		EndTs:       lastTs,
		Duration:    maxF(0, lastTs-segmentStart),
		PeopleCount: currentCount,
	})

	return splitAtSessionBoundaries(segments, sessions), events
}

// splitAtSessionBoundaries cuts each segment at every overlapping session
// edge and annotates each piece by its midpoint.
func splitAtSessionBoundaries(segments []PeopleCountSegment, sessions []Session) []PeopleCountSegment {
	var out []PeopleCountSegment
	for _, seg := range segments {
		boundarySet := map[float64]bool{seg.StartTs: true, seg.EndTs: true}
		for _, s := range sessions {
			if s.EndTs <= seg.StartTs || s.StartTs >= seg.EndTs {
				continue
			}
			if seg.StartTs <= s.StartTs && s.StartTs <= seg.EndTs {
				boundarySet[s.StartTs] = true
			}
			if seg.StartTs <= s.EndTs && s.EndTs <= seg.EndTs {
				boundarySet[s.EndTs] = true
			}
		}
		boundaries := make([]float64, 0, len(boundarySet))
		for b := range boundarySet {
			boundaries = append(boundaries, b)
		}
		sort.Float64s(boundaries)

		for i := 0; i+1 < len(boundaries); i++ {
			start := boundaries[i]
			end := boundaries[i+1]
			if end <= start {
				continue
			}
			out = append(out, PeopleCountSegment{
				StartTs:     start,
				EndTs:       end,
				Duration:    maxF(0, end-start),
				PeopleCount: seg.PeopleCount,
				InSession:   inAnySession((start+end)/2.0, sessions),
			})
		}
	}
	return out
}
