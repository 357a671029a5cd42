package session

// interval is the span between one frame's timestamp and the next. The last
// frame carries no interval; zero or negative spans are skipped.
type interval struct {
	frame FrameSignal
	start float64
	end   float64
}

func intervals(frames []FrameSignal) []interval {
	out := make([]interval, 0, len(frames))
	for i := 0; i+1 < len(frames); i++ {
		start := frames[i].TsSeconds
		end := frames[i+1].TsSeconds
		if end <= start {
			continue
		}
		out = append(out, interval{frame: frames[i], start: start, end: end})
	}
	return out
}

// predicateRun is a maximal run of frames where a boolean predicate is
// constant.
type predicateRun struct {
	value      bool
	startTs    float64
	endTs      float64
	startFrame int
	endFrame   int
}

// segmentBy partitions frames into maximal constant-predicate runs.
func segmentBy(frames []FrameSignal, pred func(FrameSignal) bool) []predicateRun {
	if len(frames) == 0 {
		return nil
	}
	var runs []predicateRun
	prev := pred(frames[0])
	startTs := frames[0].TsSeconds
	startFrame := frames[0].FrameIndex
	for _, frame := range frames[1:] {
		value := pred(frame)
		if value != prev {
			runs = append(runs, predicateRun{
				value:      prev,
				startTs:    startTs,
				endTs:      frame.TsSeconds,
				startFrame: startFrame,
				endFrame:   frame.FrameIndex,
			})
			prev = value
			startTs = frame.TsSeconds
			startFrame = frame.FrameIndex
		}
	}
	last := frames[len(frames)-1]
	runs = append(runs, predicateRun{
		value:      prev,
		startTs:    startTs,
		endTs:      last.TsSeconds,
		startFrame: startFrame,
		endFrame:   last.FrameIndex,
	})
	return runs
}

// buildPresenceSegments partitions the recording by "anyone present".
func buildPresenceSegments(frames []FrameSignal) []PresenceSegment {
	runs := segmentBy(frames, func(f FrameSignal) bool { return f.PeopleCount >= 1 })
	segments := make([]PresenceSegment, 0, len(runs))
	for _, run := range runs {
		segments = append(segments, PresenceSegment{
			Present:    run.value,
			StartTs:    run.startTs,
			EndTs:      run.endTs,
			Duration:   maxF(0, run.endTs-run.startTs),
			StartFrame: run.startFrame,
			EndFrame:   run.endFrame,
		})
	}
	return segments
}

// buildObservationSegments extracts runs where the port is open but no
// sampling is happening.
func buildObservationSegments(frames []FrameSignal) []ObservationSegment {
	runs := segmentBy(frames, func(f FrameSignal) bool { return f.Open && !f.SamplingPresent })
	var segments []ObservationSegment
	for _, run := range runs {
		if !run.value {
			continue
		}
		segments = append(segments, ObservationSegment{
			StartTs:    run.startTs,
			EndTs:      run.endTs,
			Duration:   maxF(0, run.endTs-run.startTs),
			StartFrame: run.startFrame,
			EndFrame:   run.endFrame,
		})
	}
	return segments
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
