// Command portwatch turns a recorded frame-signal sequence from the sampling
// port pipeline into a report: sessions, crew intervals, people-count events,
// and alarms, written as JSON with an optional HTML timeline, work-log CSV,
// and sqlite persistence.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/portwatch-data/portwatch/internal/config"
	"github.com/portwatch-data/portwatch/internal/fsutil"
	"github.com/portwatch-data/portwatch/internal/monitoring"
	"github.com/portwatch-data/portwatch/internal/report"
	"github.com/portwatch-data/portwatch/internal/session"
	"github.com/portwatch-data/portwatch/internal/store"
	"github.com/portwatch-data/portwatch/internal/timeutil"
	"github.com/portwatch-data/portwatch/internal/version"
)

var (
	signalsPath = flag.String("signals", "", "Path to the frame signals JSON file (required)")
	tuningPath  = flag.String("config", "", "Optional tuning config JSON with threshold overrides")
	outPath     = flag.String("out", "report.json", "Report JSON output path")
	chartPath   = flag.String("chart", "", "Optional HTML timeline output path")
	dbPath      = flag.String("db", "", "Optional sqlite database to persist the run")
	workLogDir  = flag.String("work-log-dir", "", "Optional directory for the periodic work log CSV")
	runID       = flag.String("run-id", "", "Run identifier (default: random UUID)")
	source      = flag.String("source", "", "Source label for the report header (default: signals path)")
	verbose     = flag.Bool("verbose", false, "Enable per-frame diagnostic logging")
)

// options collects everything one analysis run needs, decoupled from the
// flag globals so tests can drive runAnalysis directly.
type options struct {
	SignalsPath string
	TuningPath  string
	OutPath     string
	ChartPath   string
	DBPath      string
	WorkLogDir  string
	RunID       string
	Source      string
	Clock       timeutil.Clock
}

func main() {
	flag.Parse()

	if *signalsPath == "" {
		flag.Usage()
		log.Fatal("signals file is required")
	}
	monitoring.Verbose = *verbose

	opts := options{
		SignalsPath: *signalsPath,
		TuningPath:  *tuningPath,
		OutPath:     *outPath,
		ChartPath:   *chartPath,
		DBPath:      *dbPath,
		WorkLogDir:  *workLogDir,
		RunID:       *runID,
		Source:      *source,
		Clock:       timeutil.RealClock{},
	}
	if err := runAnalysis(context.Background(), opts); err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
}

func runAnalysis(ctx context.Context, opts options) error {
	tuning := config.EmptyTuningConfig()
	if opts.TuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(opts.TuningPath)
		if err != nil {
			return err
		}
	}

	frames, err := loadSignals(opts.SignalsPath)
	if err != nil {
		return err
	}
	monitoring.Logf("loaded %d frame signals from %s", len(frames), opts.SignalsPath)

	res := session.Build(frames, tuning.BuilderConfig())

	src := opts.Source
	if src == "" {
		src = opts.SignalsPath
	}
	id := opts.RunID
	if id == "" {
		id = uuid.NewString()
	}
	rep := report.Build(frames, res, tuning.BuilderConfig(), report.Meta{
		RunID:      id,
		SourcePath: src,
		FPSAssume:  tuning.GetFPSAssume(),
	}, opts.Clock)

	if err := report.WriteJSON(opts.OutPath, rep); err != nil {
		return err
	}
	monitoring.Logf("wrote report %s: result=%s sessions=%d alarms=%d",
		opts.OutPath, rep.Summary.OverallResult, rep.Summary.SessionCount, len(rep.Alarms))

	if opts.ChartPath != "" {
		if err := report.WriteTimelineHTML(opts.ChartPath, rep); err != nil {
			return err
		}
		monitoring.Logf("wrote timeline chart %s", opts.ChartPath)
	}

	if opts.WorkLogDir != "" {
		if err := writeWorkLog(opts.WorkLogDir, frames, opts.Clock); err != nil {
			return err
		}
	}

	if opts.DBPath != "" {
		if err := persistRun(ctx, opts.DBPath, rep, len(frames)); err != nil {
			return err
		}
		monitoring.Logf("persisted run %s to %s", rep.Header.RunID, opts.DBPath)
	}
	return nil
}

func loadSignals(path string) ([]session.FrameSignal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signals file: %w", err)
	}
	var frames []session.FrameSignal
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, fmt.Errorf("failed to parse signals file %s: %w", path, err)
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].TsSeconds < frames[i-1].TsSeconds {
			return nil, fmt.Errorf("signals out of order at index %d: %.3f < %.3f",
				i, frames[i].TsSeconds, frames[i-1].TsSeconds)
		}
	}
	return frames, nil
}

// writeWorkLog replays the recorded signals through the periodic work log,
// producing the same CSV a live run would have written.
func writeWorkLog(dir string, frames []session.FrameSignal, clock timeutil.Clock) error {
	wl, err := report.NewWorkLogWriter(fsutil.OSFileSystem{}, dir, 1.0, clock)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := wl.Update(f.TsSeconds, f.Blocking, f.PeopleCount); err != nil {
			wl.Close()
			return err
		}
	}
	if err := wl.Close(); err != nil {
		return err
	}
	monitoring.Logf("wrote work log %s", wl.Path())
	return nil
}

func persistRun(ctx context.Context, path string, rep report.Report, frameCount int) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	generatedAt, err := time.Parse(time.RFC3339, rep.Header.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to parse report timestamp: %w", err)
	}
	run := store.RunRecord{
		ID:          rep.Header.RunID,
		Source:      rep.Header.SourcePath,
		AppVersion:  version.Version,
		GeneratedAt: generatedAt,
		FrameCount:  frameCount,
		OverallPass: rep.Summary.OverallResult == "PASS",
	}
	return st.SaveRun(ctx, run, rep.Result)
}
