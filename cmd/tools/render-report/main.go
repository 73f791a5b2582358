// Package main renders an HTML latency report from a render log database
// written by render-bench (or any host that installs the renderlog recorder).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/tileplot/internal/renderlog"
)

func main() {
	dbPath := flag.String("db", "render.db", "render log database")
	runID := flag.String("run", "", "run id (default: most recent run)")
	out := flag.String("out", "render-report.html", "output HTML file")
	flag.Parse()

	store, err := renderlog.Open(*dbPath)
	if err != nil {
		log.Fatalf("open render log: %v", err)
	}
	defer store.Close()

	run := *runID
	if run == "" {
		runs, err := store.Runs()
		if err != nil {
			log.Fatalf("list runs: %v", err)
		}
		if len(runs) == 0 {
			log.Fatal("no completed runs in the database")
		}
		run = runs[0] // most recent
	}

	events, err := store.ListRun(run)
	if err != nil {
		log.Fatalf("list run %s: %v", run, err)
	}
	if len(events) == 0 {
		log.Fatalf("run %s has no events", run)
	}

	// Paint latency per tile in completion order, plus a sorted curve to
	// read off percentiles.
	labels := make([]string, len(events))
	paint := make([]opts.LineData, len(events))
	encode := make([]opts.LineData, len(events))
	sorted := make([]float64, len(events))
	for i, ev := range events {
		labels[i] = fmt.Sprintf("r%d-c%d", ev.Row, ev.Col)
		paint[i] = opts.LineData{Value: ev.PaintMicros}
		encode[i] = opts.LineData{Value: ev.EncodeMicros}
		sorted[i] = float64(ev.PaintMicros)
	}
	sort.Float64s(sorted)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "tileplot render report",
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Tile render latency",
			Subtitle: fmt.Sprintf("run=%s tiles=%d p50=%.0fus p99=%.0fus",
				run, len(events),
				sorted[len(sorted)/2], sorted[len(sorted)*99/100]),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tile"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "µs"}),
	)
	line.SetXAxis(labels)
	line.AddSeries("paint", paint)
	line.AddSeries("encode", encode)

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create %s: %v", *out, err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		log.Fatalf("render chart: %v", err)
	}
	log.Printf("wrote %s (%d tiles)", *out, len(events))
}
