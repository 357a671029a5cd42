// Command skip-infer replays recorded per-frame inference latencies through
// the frame scheduler and summarises the stepping behaviour: which frames a
// live run would have processed, how often the step cap engaged, and the
// effective real-time coverage.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/portwatch-data/portwatch/internal/schedule"
)

var (
	latenciesPath = flag.String("latencies", "", "File with one inference latency in milliseconds per line (required)")
	fps           = flag.Float64("fps", 25.0, "Video frame rate")
	warmupFrames  = flag.Int("warmup", 5, "Force step=1 for the first N decisions")
	targetRatio   = flag.Float64("ratio", 1.0, "Target real-time ratio")
	maxStep       = flag.Int("max-step", 10, "Hard cap for the step")
	minStep       = flag.Int("min-step", 1, "Minimum step between frames")
	maxFrames     = flag.Int("max-frames", 0, "Stop after N decisions (0 = all)")
	perFrame      = flag.Bool("per-frame", false, "Log every scheduling decision")
)

func main() {
	flag.Parse()
	if *latenciesPath == "" {
		flag.Usage()
		log.Fatal("latencies file is required")
	}

	latencies, err := readLatencies(*latenciesPath)
	if err != nil {
		log.Fatalf("failed to load latencies: %v", err)
	}
	if *maxFrames > 0 && len(latencies) > *maxFrames {
		latencies = latencies[:*maxFrames]
	}

	sched := schedule.NewFrameScheduler(schedule.SchedulerConfig{
		VideoFPS:       *fps,
		WarmupFrames:   *warmupFrames,
		TargetRatio:    *targetRatio,
		MaxAllowedStep: *maxStep,
		MinStep:        *minStep,
	})

	frameIndex := 0
	capped := 0
	steps := make([]float64, 0, len(latencies))
	for _, ms := range latencies {
		dec := sched.NextIndex(frameIndex, time.Duration(ms*float64(time.Millisecond)), 0)
		if dec.Capped {
			capped++
		}
		steps = append(steps, float64(dec.Step))
		if *perFrame {
			log.Printf("frame=%d dt_ms=%.1f raw_step=%.2f smooth_step=%.2f step=%d capped=%v next=%d",
				frameIndex, ms, dec.RawStep, dec.SmoothedStep, dec.Step, dec.Capped, dec.NextIndex)
		}
		frameIndex = dec.NextIndex
	}

	meanLat, stdLat := stat.MeanStdDev(latencies, nil)
	meanStep, stdStep := stat.MeanStdDev(steps, nil)
	sourceFrames := frameIndex + 1

	fmt.Printf("decisions:        %d\n", len(latencies))
	fmt.Printf("latency ms:       mean=%.1f std=%.1f\n", meanLat, stdLat)
	fmt.Printf("step:             mean=%.2f std=%.2f\n", meanStep, stdStep)
	fmt.Printf("capped decisions: %d (%.1f%%)\n", capped, 100*float64(capped)/float64(len(latencies)))
	fmt.Printf("source coverage:  %d frames advanced, %.1f%% processed\n",
		sourceFrames, 100*float64(len(latencies))/float64(sourceFrames))
	fmt.Printf("throughput fps:   %.2f (video %.2f)\n", 1000.0/meanLat, *fps)
}

func readLatencies(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("line %d: negative latency %v", line, v)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no latencies in %s", path)
	}
	return out, nil
}
