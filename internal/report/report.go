// Package report renders an HTML summary of a batch run using go-echarts:
// per-species outcome counts and the slowest inputs, for a quick visual
// check before digging into the manifest database.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/canopy.view/internal/batch"
	"github.com/banshee-data/canopy.view/internal/render"
)

// Params carry the run context shown in the report header.
type Params struct {
	InputDir string
	Workers  int
	Angles   []float64
}

// slowestShown caps the duration chart so reports stay readable on runs
// with thousands of files.
const slowestShown = 20

// Write renders the HTML report for a completed run to path.
func Write(path string, sum *batch.Summary, p Params) error {
	page := components.NewPage()
	page.PageTitle = "Tree Projection Batch"
	page.AddCharts(outcomeChart(sum, p), durationChart(sum))

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// outcomeChart is a per-species bar chart of succeeded and failed tasks.
// Flat batches group under a single "all" bucket.
func outcomeChart(sum *batch.Summary, p Params) *charts.Bar {
	type outcome struct{ ok, failed int }
	bySpecies := make(map[string]*outcome)
	for _, r := range sum.Results {
		sp := r.Task.Species
		if sp == "" {
			sp = "all"
		}
		o := bySpecies[sp]
		if o == nil {
			o = &outcome{}
			bySpecies[sp] = o
		}
		if r.Err == nil {
			o.ok++
		} else {
			o.failed++
		}
	}

	species := make([]string, 0, len(bySpecies))
	for sp := range bySpecies {
		species = append(species, sp)
	}
	sort.Strings(species)

	ok := make([]opts.BarData, len(species))
	failed := make([]opts.BarData, len(species))
	for i, sp := range species {
		ok[i] = opts.BarData{Value: bySpecies[sp].ok}
		failed[i] = opts.BarData{Value: bySpecies[sp].failed}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title: "Tree Projection Batch",
			Subtitle: fmt.Sprintf("completed %d/%d files in %v; input %s, %d workers, angles %s",
				sum.Succeeded, sum.Total, sum.Elapsed.Round(time.Millisecond),
				p.InputDir, p.Workers, render.AnglesLabel(p.Angles)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(species).
		AddSeries("succeeded", ok).
		AddSeries("failed", failed)
	return bar
}

// durationChart is a bar chart of the slowest inputs in milliseconds.
func durationChart(sum *batch.Summary) *charts.Bar {
	results := append([]batch.TaskResult(nil), sum.Results...)
	sort.Slice(results, func(i, j int) bool { return results[i].Duration > results[j].Duration })
	if len(results) > slowestShown {
		results = results[:slowestShown]
	}

	names := make([]string, len(results))
	durations := make([]opts.BarData, len(results))
	for i, r := range results {
		names[i] = filepath.Base(r.Task.Input)
		durations[i] = opts.BarData{Value: r.Duration.Milliseconds()}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Slowest Files", Subtitle: "per-task duration in milliseconds"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("duration", durations,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
