package export

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/pmetric"

	"github.com/coral-mesh/resmon/internal/privilege"
	"github.com/coral-mesh/resmon/internal/proctree"
	"github.com/coral-mesh/resmon/internal/telemetry"
	"github.com/coral-mesh/resmon/internal/timeline"
)

// Metric names of the OTLP export.
const (
	MetricMemory     = "resmon.process.memory.usage"
	MetricCPU        = "resmon.process.cpu.utilization"
	MetricThreads    = "resmon.process.threads"
	MetricProcesses  = "resmon.process.count"
	MetricSwap       = "resmon.system.swap.usage"
	MetricPressure   = "resmon.system.memory.pressure"
	MetricGPUActive  = "resmon.gpu.active"
	MetricGPUPower   = "resmon.gpu.power"
	MetricANEPower   = "resmon.ane.power"
	MetricAnnotation = "resmon.annotation"

	scopeName = "github.com/coral-mesh/resmon/internal/export"
)

type gaugeSpec struct {
	name        string
	description string
	unit        string
	value       func(timeline.Sample) telemetry.Reading
}

var gauges = []gaugeSpec{
	{MetricMemory, "Resident memory of the process tree", "By", func(s timeline.Sample) telemetry.Reading {
		return telemetry.Available(float64(s.MemoryBytes))
	}},
	{MetricCPU, "CPU of the process tree, 100 per core", "%", func(s timeline.Sample) telemetry.Reading {
		return telemetry.Available(s.CPUPercent)
	}},
	{MetricThreads, "Threads in the process tree", "{thread}", func(s timeline.Sample) telemetry.Reading {
		return telemetry.Available(float64(s.Threads))
	}},
	{MetricProcesses, "Processes in the tree", "{process}", func(s timeline.Sample) telemetry.Reading {
		return telemetry.Available(float64(s.Processes))
	}},
	{MetricSwap, "Host swap in use", "By", func(s timeline.Sample) telemetry.Reading {
		return telemetry.Available(float64(s.SwapBytes))
	}},
	{MetricPressure, "Host memory pressure: 0 normal, 1 warning, 2 critical", "1", func(s timeline.Sample) telemetry.Reading {
		if s.Pressure == proctree.PressureUnknown {
			return telemetry.Unavailable()
		}
		return telemetry.Available(float64(s.Pressure))
	}},
	{MetricGPUActive, "Host GPU active residency", "%", func(s timeline.Sample) telemetry.Reading {
		return s.GPUActivePercent
	}},
	{MetricGPUPower, "Host GPU power", "W", func(s timeline.Sample) telemetry.Reading {
		return s.GPUPowerWatts
	}},
	{MetricANEPower, "Host Neural Engine power", "W", func(s timeline.Sample) telemetry.Reading {
		return s.ANEPowerWatts
	}},
}

// BuildMetrics converts a dataset to OTLP gauges with one data point per
// sample. Unavailable readings produce no data point. Annotations become a
// gauge whose points carry the label as an attribute.
func BuildMetrics(ds *timeline.Dataset, meta Meta) pmetric.Metrics {
	metrics := pmetric.NewMetrics()
	rm := metrics.ResourceMetrics().AppendEmpty()

	attrs := rm.Resource().Attributes()
	attrs.PutStr("service.name", "resmon")
	attrs.PutStr("service.version", meta.Version)
	attrs.PutInt("process.pid", int64(meta.TargetPID))
	if meta.TargetName != "" {
		attrs.PutStr("process.executable.name", meta.TargetName)
	}
	attrs.PutStr("os.type", meta.System.OS)
	attrs.PutStr("host.arch", meta.System.Arch)
	if meta.System.Chip != "" {
		attrs.PutStr("host.cpu.model.name", meta.System.Chip)
	}
	attrs.PutInt("host.cpu.cores", int64(meta.System.CPUCores))
	attrs.PutStr("resmon.session.id", meta.SessionID)
	attrs.PutStr("resmon.stop_reason", meta.Reason)
	attrs.PutStr("resmon.telemetry.status", meta.TelemetryStatus)
	attrs.PutStr("resmon.system", meta.System.String())

	sm := rm.ScopeMetrics().AppendEmpty()
	sm.Scope().SetName(scopeName)
	sm.Scope().SetVersion(meta.Version)

	start := pcommon.NewTimestampFromTime(ds.StartedAt)
	for _, spec := range gauges {
		m := sm.Metrics().AppendEmpty()
		m.SetName(spec.name)
		m.SetDescription(spec.description)
		m.SetUnit(spec.unit)
		points := m.SetEmptyGauge().DataPoints()

		for _, s := range ds.Samples {
			r := spec.value(s)
			if !r.Available {
				continue
			}
			dp := points.AppendEmpty()
			dp.SetStartTimestamp(start)
			dp.SetTimestamp(pcommon.NewTimestampFromTime(s.Timestamp))
			dp.SetDoubleValue(r.Value)
		}
	}

	if len(ds.Annotations) > 0 {
		m := sm.Metrics().AppendEmpty()
		m.SetName(MetricAnnotation)
		m.SetDescription("Operator annotations; the value is the annotation sequence number")
		m.SetUnit("1")
		points := m.SetEmptyGauge().DataPoints()
		for _, a := range ds.Annotations {
			dp := points.AppendEmpty()
			dp.SetStartTimestamp(start)
			dp.SetTimestamp(pcommon.NewTimestampFromTime(a.Timestamp))
			dp.SetIntValue(int64(a.Seq))
			dp.Attributes().PutStr("label", a.DisplayLabel())
			dp.Attributes().PutInt("sample_index", int64(a.SampleIndex))
		}
	}

	return metrics
}

// WriteOTLP writes the dataset as OTLP/JSON.
func WriteOTLP(w io.Writer, ds *timeline.Dataset, meta Meta) error {
	marshaler := &pmetric.JSONMarshaler{}
	buf, err := marshaler.MarshalMetrics(BuildMetrics(ds, meta))
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	_, err = w.Write(buf)
	return err
}

// SaveOTLP writes the OTLP/JSON export to path.
func SaveOTLP(path string, ds *timeline.Dataset, meta Meta, logger zerolog.Logger) error {
	err := saveFile(path, func(w io.Writer) error {
		return WriteOTLP(w, ds, meta)
	})
	if err != nil {
		return err
	}
	if err := privilege.FixFileOwnership(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to fix OTLP file ownership")
	}

	logger.Debug().Str("path", path).Msg("OTLP metrics written")
	return nil
}
