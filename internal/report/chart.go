package report

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/portwatch-data/portwatch/internal/session"
	"github.com/portwatch-data/portwatch/internal/timeutil"
)

// RenderTimeline writes a standalone HTML page visualising the run: the
// confirmed people count over time with alarm markers, and per-session
// durations. Timestamps on the axes are HH:MM:SS video time.
func RenderTimeline(w io.Writer, rep Report) error {
	page := components.NewPage()
	page.PageTitle = "Sampling Port Timeline"
	page.AddCharts(peopleCountChart(rep), sessionChart(rep.Sessions))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render timeline chart: %w", err)
	}
	return nil
}

// WriteTimelineHTML renders the timeline page to a file.
func WriteTimelineHTML(path string, rep Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := RenderTimeline(f, rep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// peopleCountChart draws the confirmed count as a step line. Each segment
// contributes its start and end boundary so the step edges land on the
// confirmed transition instants, with alarm triggers overlaid as points.
func peopleCountChart(rep Report) components.Charter {
	x := make([]string, 0, len(rep.PeopleCountSegments)*2)
	y := make([]opts.LineData, 0, len(rep.PeopleCountSegments)*2)
	for _, seg := range rep.PeopleCountSegments {
		x = append(x, timeutil.FormatHMS(seg.StartTs), timeutil.FormatHMS(seg.EndTs))
		y = append(y, opts.LineData{Value: seg.PeopleCount}, opts.LineData{Value: seg.PeopleCount})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "People Count and Alarms",
			Subtitle: fmt.Sprintf("result=%s alarms=%d", rep.Summary.OverallResult, len(rep.Alarms)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "people"}),
	)
	line.SetXAxis(x).AddSeries("people_count", y)

	if len(rep.Alarms) > 0 {
		ax := make([]string, 0, len(rep.Alarms))
		ay := make([]opts.ScatterData, 0, len(rep.Alarms))
		for _, a := range rep.Alarms {
			ts := a.StartTs
			if a.TriggerTs != nil {
				ts = *a.TriggerTs
			}
			ax = append(ax, timeutil.FormatHMS(ts))
			ay = append(ay, opts.ScatterData{
				Value:      []interface{}{timeutil.FormatHMS(ts), 0},
				Symbol:     "triangle",
				SymbolSize: 12,
			})
		}
		scatter := charts.NewScatter()
		scatter.SetXAxis(ax).AddSeries("alarms", ay)
		line.Overlap(scatter)
	}
	return line
}

// sessionChart draws one bar per sampling session, coloured label text
// carrying the session type and start time.
func sessionChart(sessions []session.Session) components.Charter {
	x := make([]string, 0, len(sessions))
	y := make([]opts.BarData, 0, len(sessions))
	for _, s := range sessions {
		x = append(x, fmt.Sprintf("#%d %s", s.ID, timeutil.FormatHMS(s.StartTs)))
		y = append(y, opts.BarData{
			Value: s.Duration,
			Name:  string(s.Type),
		})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Sampling Sessions", Subtitle: fmt.Sprintf("count=%d", len(sessions))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "duration (s)"}),
	)
	bar.SetXAxis(x).
		AddSeries("sessions", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
