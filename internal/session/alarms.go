package session

// buildUnblockedAlarms tracks continuous accumulation of open, unblocked
// sampling activity, tolerating gaps up to GapAllowUnblockedS without
// resetting. Each run that accumulates UnblockedAlarmS emits exactly one
// alarm whose trigger timestamp points at the moment the threshold was
// crossed, not the end of the run.
func buildUnblockedAlarms(frames []FrameSignal, cfg Config) []Alarm {
	var alarms []Alarm

	var accum, gap float64
	startTs := -1.0
	emitted := false

	reset := func() {
		accum = 0
		gap = 0
		startTs = -1.0
		emitted = false
	}

	for _, iv := range intervals(frames) {
		dt := iv.end - iv.start
		cond := iv.frame.Open && iv.frame.SamplingPresent && iv.frame.Blocking == NoBlocking
		if cond {
			if startTs < 0 {
				startTs = iv.start
			}
			accum += dt
			gap = 0
			if !emitted && accum >= cfg.UnblockedAlarmS {
				trigger := iv.end - (accum - cfg.UnblockedAlarmS)
				alarms = append(alarms, Alarm{
					Type:      AlarmUnblockedInsertion,
					StartTs:   startTs,
					EndTs:     trigger,
					TriggerTs: &trigger,
				})
				emitted = true
			}
		} else {
			gap += dt
			if gap > cfg.GapAllowUnblockedS {
				reset()
			}
		}
	}
	return alarms
}
