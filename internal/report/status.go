package report

import (
	"fmt"

	"github.com/coral-mesh/resmon/internal/timeline"
)

const gib = 1 << 30

// StatusLine renders one sample for the live status line. ANE power is shown
// only when the Neural Engine draws power.
func StatusLine(s timeline.Sample) string {
	gpu := "  n/a"
	if s.GPUActivePercent.Available {
		gpu = fmt.Sprintf("%5.1f", s.GPUActivePercent.Value)
	}
	pwr := " n/a"
	if s.GPUPowerWatts.Available {
		pwr = fmt.Sprintf("%4.1f", s.GPUPowerWatts.Value)
	}
	ane := ""
	if s.ANEPowerWatts.Available && s.ANEPowerWatts.Value > 0 {
		ane = fmt.Sprintf(" | ANE:%.1fW", s.ANEPowerWatts.Value)
	}

	return fmt.Sprintf("[%5.1fm] Mem:%5.1fGB | GPU:%s%% | CPU:%5.0f%% | Pwr:%sW%s | #%d",
		s.Elapsed.Minutes(),
		float64(s.MemoryBytes)/gib,
		gpu,
		s.CPUPercent,
		pwr,
		ane,
		s.Seq,
	)
}

// AnnotationAdded confirms an operator annotation.
func AnnotationAdded(a timeline.Annotation) string {
	return markerStyle.Render("📍") + fmt.Sprintf(" Annotation added: %q", a.DisplayLabel())
}
