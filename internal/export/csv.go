package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/resmon/internal/privilege"
	"github.com/coral-mesh/resmon/internal/proctree"
	"github.com/coral-mesh/resmon/internal/telemetry"
	"github.com/coral-mesh/resmon/internal/timeline"
)

// CSVHeader is the column row of the CSV export.
var CSVHeader = []string{
	"timestamp",
	"elapsed_seconds",
	"memory_mb",
	"cpu_percent",
	"gpu_percent",
	"gpu_power_mw",
	"ane_power_mw",
	"swap_mb",
	"memory_pressure",
	"annotation",
}

const (
	csvTimeLayout      = "2006-01-02T15:04:05.000Z07:00"
	recordedTimeLayout = "2006-01-02 15:04:05"
	annotationJoiner   = "; "
	mib                = 1024 * 1024
)

// WriteCSV writes the comment header, the column row and one row per sample.
// Unavailable readings are empty cells. Annotations attach to the row of the
// last sample taken before they were received.
func WriteCSV(w io.Writer, ds *timeline.Dataset, meta Meta) error {
	bw := bufio.NewWriter(w)

	recorded := "N/A"
	if len(ds.Samples) > 0 {
		recorded = ds.Samples[0].Timestamp.Format(recordedTimeLayout)
	}
	fmt.Fprintf(bw, "# resmon %s\n", meta.Version)
	fmt.Fprintf(bw, "# System: %s\n", meta.System.String())
	fmt.Fprintf(bw, "# Recorded: %s\n", recorded)
	if meta.TargetName != "" || meta.TargetPID != 0 {
		fmt.Fprintf(bw, "# Target: %s (PID %d)\n", meta.TargetName, meta.TargetPID)
	}
	if meta.SessionID != "" {
		fmt.Fprintf(bw, "# Session: %s\n", meta.SessionID)
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	labels := rowLabels(ds)
	first := ds.StartedAt
	if len(ds.Samples) > 0 {
		first = ds.Samples[0].Timestamp
	}

	for i, s := range ds.Samples {
		record := []string{
			s.Timestamp.Format(csvTimeLayout),
			formatFloat(s.Timestamp.Sub(first).Seconds()),
			formatFloat(float64(s.MemoryBytes) / mib),
			formatFloat(s.CPUPercent),
			formatReading(s.GPUActivePercent, 1),
			formatReading(s.GPUPowerWatts, 1000),
			formatReading(s.ANEPowerWatts, 1000),
			formatFloat(float64(s.SwapBytes) / mib),
			formatPressure(s.Pressure),
			strings.Join(labels[i], annotationJoiner),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// SaveCSV writes the CSV export to path.
func SaveCSV(path string, ds *timeline.Dataset, meta Meta, logger zerolog.Logger) error {
	err := saveFile(path, func(w io.Writer) error {
		return WriteCSV(w, ds, meta)
	})
	if err != nil {
		return err
	}
	if err := privilege.FixFileOwnership(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to fix CSV file ownership")
	}

	logger.Debug().Str("path", path).Int("rows", len(ds.Samples)).Msg("CSV written")
	return nil
}

// rowLabels groups annotation labels by sample row. A mark without a label is
// named "Mark <n>".
func rowLabels(ds *timeline.Dataset) map[int][]string {
	out := make(map[int][]string, len(ds.Annotations))
	if len(ds.Samples) == 0 {
		return out
	}
	for _, a := range ds.Annotations {
		idx := a.SampleIndex
		if idx < 0 {
			idx = 0
		}
		if idx >= len(ds.Samples) {
			idx = len(ds.Samples) - 1
		}
		out[idx] = append(out[idx], a.DisplayLabel())
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatReading(r telemetry.Reading, scale float64) string {
	if !r.Available {
		return ""
	}
	return formatFloat(r.Value * scale)
}

func formatPressure(p proctree.Pressure) string {
	if p == proctree.PressureUnknown {
		return ""
	}
	return p.String()
}
