package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/coral-mesh/resmon/internal/constants"
	"github.com/coral-mesh/resmon/internal/telemetry"
	"github.com/coral-mesh/resmon/internal/timeline"
)

// ChartOptions sizes the chart. Zero values take the defaults.
type ChartOptions struct {
	// Width is the number of plot columns per panel.
	Width int
	// Height is the number of text rows per panel.
	Height int
}

func (o ChartOptions) withDefaults() ChartOptions {
	if o.Width <= 0 {
		o.Width = constants.DefaultChartWidth
	}
	if o.Height <= 0 {
		o.Height = constants.DefaultChartHeight
	}
	return o
}

type series struct {
	title string
	unit  string
	value func(timeline.Sample) telemetry.Reading
}

var panels = []series{
	{"Memory", "GB", func(s timeline.Sample) telemetry.Reading {
		return telemetry.Available(float64(s.MemoryBytes) / gib)
	}},
	{"CPU", "%", func(s timeline.Sample) telemetry.Reading {
		return telemetry.Available(s.CPUPercent)
	}},
	{"GPU active", "%", func(s timeline.Sample) telemetry.Reading { return s.GPUActivePercent }},
	{"GPU power", "W", func(s timeline.Sample) telemetry.Reading { return s.GPUPowerWatts }},
	{"ANE power", "W", func(s timeline.Sample) telemetry.Reading { return s.ANEPowerWatts }},
}

// blocks holds the eighth-height steps of one cell.
var blocks = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Chart renders one sparkline panel per metric, sharing the time axis, with
// a marker row for annotations. Panels whose metric was never available are
// omitted. Samples are bucketed by maximum when they outnumber the columns.
func Chart(ds *timeline.Dataset, opts ChartOptions) string {
	opts = opts.withDefaults()
	n := len(ds.Samples)
	if n == 0 {
		return hintStyle.Render("(no samples)") + "\n"
	}

	cols := n
	if cols > opts.Width {
		cols = opts.Width
	}

	var b strings.Builder
	for _, p := range panels {
		buckets, peak, ok := bucketize(ds.Samples, cols, p.value)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(p.title), hintStyle.Render(fmt.Sprintf("(peak %.1f %s)", peak, p.unit)))
		for _, row := range plotRows(buckets, peak, opts.Height) {
			b.WriteString("│")
			b.WriteString(row)
			b.WriteString("\n")
		}
	}

	b.WriteString("└")
	b.WriteString(strings.Repeat("─", cols))
	b.WriteString("\n")

	if len(ds.Annotations) > 0 {
		marks := []rune(strings.Repeat(" ", cols))
		for _, a := range ds.Annotations {
			marks[column(a.SampleIndex, n, cols)] = '▲'
		}
		b.WriteString(" ")
		b.WriteString(markerStyle.Render(string(marks)))
		b.WriteString("\n")
	}

	first, last := ds.Samples[0], ds.Samples[n-1]
	axis := fmt.Sprintf("%.1fm", last.Timestamp.Sub(first.Timestamp).Minutes())
	pad := cols - len("0.0m") - len(axis)
	if pad < 1 {
		pad = 1
	}
	b.WriteString(hintStyle.Render(" 0.0m" + strings.Repeat(" ", pad) + axis))
	b.WriteString("\n")

	return b.String()
}

// column maps a sample index to its plot column.
func column(idx, n, cols int) int {
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx * cols / n
}

// bucketize reduces samples to cols buckets holding the maximum available
// value, NaN where no value was available. ok is false when nothing was.
func bucketize(samples []timeline.Sample, cols int, value func(timeline.Sample) telemetry.Reading) (buckets []float64, peak float64, ok bool) {
	buckets = make([]float64, cols)
	for i := range buckets {
		buckets[i] = math.NaN()
	}
	for i, s := range samples {
		r := value(s)
		if !r.Available {
			continue
		}
		c := column(i, len(samples), cols)
		if math.IsNaN(buckets[c]) || r.Value > buckets[c] {
			buckets[c] = r.Value
		}
		if !ok || r.Value > peak {
			peak = r.Value
		}
		ok = true
	}
	return buckets, peak, ok
}

// plotRows renders buckets top row first, each cell holding eight levels.
func plotRows(buckets []float64, peak float64, height int) []string {
	levels := make([]int, len(buckets))
	for i, v := range buckets {
		switch {
		case math.IsNaN(v):
			levels[i] = -1
		case peak <= 0:
			levels[i] = 0
		default:
			levels[i] = int(math.Round(v / peak * float64(height*8)))
		}
	}

	rows := make([]string, height)
	for r := 0; r < height; r++ {
		floor := (height - 1 - r) * 8
		var row strings.Builder
		for _, lvl := range levels {
			switch {
			case lvl < 0:
				row.WriteRune(' ')
			case lvl == 0 && r == height-1:
				// Keep a visible baseline for measured zeros.
				row.WriteRune(blocks[1])
			default:
				cell := lvl - floor
				if cell < 0 {
					cell = 0
				}
				if cell > 8 {
					cell = 8
				}
				row.WriteRune(blocks[cell])
			}
		}
		rows[r] = row.String()
	}
	return rows
}
