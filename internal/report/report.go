// Package report assembles the offline analysis output: a versioned JSON
// document with every derived collection plus a pass/fail summary, an HTML
// timeline chart, and a periodic work-log CSV.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/portwatch-data/portwatch/internal/session"
	"github.com/portwatch-data/portwatch/internal/timeutil"
)

// ReportVersion identifies the JSON document layout.
const ReportVersion = "v1"

// defaultModels names the detector channels that feed the pipeline.
var defaultModels = []string{"B", "C", "D", "E"}

// Header carries provenance for one report document.
type Header struct {
	ReportVersion string   `json:"report_version"`
	RunID         string   `json:"run_id"`
	GeneratedAt   string   `json:"generated_at"`
	SourcePath    string   `json:"source_path"`
	ModelsUsed    []string `json:"models_used"`
}

// ConfigEcho records the thresholds the builder ran with, so a report is
// interpretable without the tuning file that produced it.
type ConfigEcho struct {
	session.Config
	FPSAssume float64 `json:"fps_assume"`
}

// Summary condenses the run into a single verdict plus headline counts.
type Summary struct {
	OverallResult     string         `json:"overall_result"`
	AlarmCounts       map[string]int `json:"alarm_counts"`
	SessionCount      int            `json:"session_count"`
	MinPeopleCount    int            `json:"min_people_count"`
	MaxPeopleCount    int            `json:"max_people_count"`
	PeopleChangeCount int            `json:"people_change_count"`
}

// Report is the complete analysis document for one frame sequence.
type Report struct {
	Header Header     `json:"header"`
	Config ConfigEcho `json:"config"`
	session.Result
	Summary Summary `json:"summary"`
}

// Meta holds the caller-supplied provenance for Build.
type Meta struct {
	// RunID defaults to a fresh UUID when empty.
	RunID      string
	SourcePath string
	// ModelsUsed defaults to the standard detector set when empty.
	ModelsUsed []string
	FPSAssume  float64
}

// Build assembles a Report from the builder's output. The verdict is PASS
// exactly when no alarms were raised; people-count extremes come from the raw
// per-frame counts, not the confirmed segments.
func Build(frames []session.FrameSignal, res session.Result, cfg session.Config, meta Meta, clock timeutil.Clock) Report {
	models := meta.ModelsUsed
	if len(models) == 0 {
		models = defaultModels
	}
	runID := meta.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	minPeople, maxPeople := 0, 0
	for i, f := range frames {
		if i == 0 || f.PeopleCount < minPeople {
			minPeople = f.PeopleCount
		}
		if f.PeopleCount > maxPeople {
			maxPeople = f.PeopleCount
		}
	}

	verdict := "PASS"
	if len(res.Alarms) > 0 {
		verdict = "FAIL"
	}
	counts := make(map[string]int, 2)
	for _, a := range res.Alarms {
		counts[string(a.Type)]++
	}

	return Report{
		Header: Header{
			ReportVersion: ReportVersion,
			RunID:         runID,
			GeneratedAt:   clock.Now().UTC().Format(time.RFC3339),
			SourcePath:    meta.SourcePath,
			ModelsUsed:    models,
		},
		Config: ConfigEcho{Config: cfg, FPSAssume: meta.FPSAssume},
		Result: res,
		Summary: Summary{
			OverallResult:     verdict,
			AlarmCounts:       counts,
			SessionCount:      len(res.Sessions),
			MinPeopleCount:    minPeople,
			MaxPeopleCount:    maxPeople,
			PeopleChangeCount: len(res.PeopleCountChanges),
		},
	}
}
