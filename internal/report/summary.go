package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/coral-mesh/resmon/internal/timeline"
)

const mib = 1 << 20

// Summary renders the end-of-session statistics.
func Summary(ds *timeline.Dataset, reason string) string {
	sum := ds.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Stopped:"), reason)
	fmt.Fprintf(&b, "Collected %d samples, %d annotations over %s.\n",
		sum.Samples, sum.Annotations, sum.Duration.Round(time.Second))
	if sum.Samples == 0 {
		b.WriteString(warnStyle.Render("No data collected!"))
		b.WriteString("\n")
		return b.String()
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(hintStyle).
		Headers("Metric", "Average", "Peak").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return labelStyle.Padding(0, 1)
			}
			if col == 0 {
				return lipgloss.NewStyle().Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
		})

	t.Row(statRow("Memory", sum.MemoryBytes, func(v float64) string { return fmt.Sprintf("%.2f GB", v/gib) })...)
	t.Row(statRow("CPU", sum.CPUPercent, func(v float64) string { return fmt.Sprintf("%.1f %%", v) })...)
	t.Row(statRow("Threads", sum.Threads, func(v float64) string { return fmt.Sprintf("%.0f", v) })...)
	t.Row(statRow("Swap", sum.SwapBytes, func(v float64) string { return fmt.Sprintf("%.0f MB", v/mib) })...)
	t.Row(statRow("GPU active", sum.GPUActivePercent, func(v float64) string { return fmt.Sprintf("%.1f %%", v) })...)
	t.Row(statRow("GPU power", sum.GPUPowerWatts, func(v float64) string { return fmt.Sprintf("%.2f W", v) })...)
	t.Row(statRow("ANE power", sum.ANEPowerWatts, func(v float64) string { return fmt.Sprintf("%.2f W", v) })...)

	b.WriteString(t.String())
	b.WriteString("\n")

	if len(ds.Annotations) > 0 {
		b.WriteString(labelStyle.Render("Annotations:"))
		b.WriteString("\n")
		for _, a := range ds.Annotations {
			elapsed := a.Timestamp.Sub(ds.StartedAt)
			fmt.Fprintf(&b, "  %s [%5.1fm] %s\n", markerStyle.Render(fmt.Sprintf("▲%d", a.Seq)), elapsed.Minutes(), a.DisplayLabel())
		}
	}

	return b.String()
}

func statRow(name string, s timeline.Stat, format func(float64) string) []string {
	if !s.Available() {
		return []string{name, "n/a", "n/a"}
	}
	return []string{name, format(s.Mean), format(s.Max)}
}
