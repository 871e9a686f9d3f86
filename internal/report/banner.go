package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/coral-mesh/resmon/internal/sysinfo"
)

// BannerInfo is what the start banner shows.
type BannerInfo struct {
	Version  string
	System   sysinfo.Descriptor
	Interval time.Duration
	// Duration is zero for an unbounded session.
	Duration time.Duration
	// Output is the output base, shown as "<base>.*".
	Output      string
	Annotations bool
	Telemetry   bool
	// Root is false when telemetry would need elevated privileges.
	Root bool
}

// Banner renders the session start banner.
func Banner(info BannerInfo) string {
	var b strings.Builder

	b.WriteString(boxStyle.Render(titleStyle.Render("resmon " + info.Version + "  process resource monitor")))
	b.WriteString("\n\n")

	sys := info.System
	chip := sys.Chip
	if chip == "" {
		chip = sys.OS + "/" + sys.Arch
	}
	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("System:"), chip)
	switch {
	case sys.PerformanceCores > 0 && sys.EfficiencyCores > 0:
		fmt.Fprintf(&b, "    CPU: %d cores (%dP + %dE)\n", sys.CPUCores, sys.PerformanceCores, sys.EfficiencyCores)
	case sys.CPUCores > 0:
		fmt.Fprintf(&b, "    CPU: %d cores\n", sys.CPUCores)
	}
	if sys.GPUCores > 0 {
		fmt.Fprintf(&b, "    GPU: %d cores\n", sys.GPUCores)
	}
	if sys.ANECores > 0 {
		fmt.Fprintf(&b, "    ANE: %d-core Neural Engine\n", sys.ANECores)
	}
	if sys.MemoryBytes > 0 {
		fmt.Fprintf(&b, "    RAM: %d GB\n", sys.MemoryGB())
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Interval:"), info.Interval)
	if info.Output != "" {
		fmt.Fprintf(&b, "  %s %s.*\n", labelStyle.Render("Output:"), info.Output)
	}
	if info.Duration > 0 {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Duration:"), info.Duration)
	}

	b.WriteString("\n  Controls:\n")
	if info.Annotations {
		b.WriteString(hintStyle.Render("    • Type a label and press Enter to annotate (Enter alone adds a mark)") + "\n")
	}
	b.WriteString(hintStyle.Render("    • Press Ctrl+C to stop and write the outputs") + "\n")

	if info.Telemetry && !info.Root {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render("⚠  WARNING: Not running as root. GPU and ANE telemetry requires sudo."))
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("   Run with: sudo resmon record ..."))
		b.WriteString("\n")
	}

	return b.String()
}

// Found renders the discovery confirmation line.
func Found(name string, pid int32) string {
	return okStyle.Render("✓") + fmt.Sprintf(" Found %s (PID: %d)", name, pid)
}

// Waiting renders the line shown while waiting for the target to start.
func Waiting(name string) string {
	return "⏳ " + name + " not running. Waiting for it to start..."
}

// Warning renders a non-fatal problem.
func Warning(msg string) string {
	return warnStyle.Render("⚠ ") + msg
}

// Error renders a fatal problem.
func Error(msg string) string {
	return errorStyle.Render("Error: ") + msg
}
