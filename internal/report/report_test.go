package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/resmon/internal/sysinfo"
	"github.com/coral-mesh/resmon/internal/telemetry"
	"github.com/coral-mesh/resmon/internal/timeline"
)

var start = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func dataset(n int, telem bool) *timeline.Dataset {
	tl := timeline.New(start)
	for i := 0; i < n; i++ {
		s := timeline.Sample{
			Timestamp:   start.Add(time.Duration(i+1) * time.Second),
			MemoryBytes: uint64(i+1) * gib,
			CPUPercent:  float64(10 * i),
			Threads:     8,
		}
		if telem {
			s.GPUActivePercent = telemetry.Available(50)
			s.GPUPowerWatts = telemetry.Available(2)
			s.ANEPowerWatts = telemetry.Available(0)
		}
		_, _ = tl.Append(s)
		if i == n/2 {
			_, _ = tl.AddAnnotation("midpoint", s.Timestamp)
		}
	}
	return tl.Finalize(start.Add(time.Duration(n+1) * time.Second))
}

func TestStatusLine(t *testing.T) {
	s := timeline.Sample{
		Seq:              12,
		Elapsed:          72 * time.Second,
		MemoryBytes:      4617089843, // 4.3 GiB
		CPUPercent:       85,
		GPUActivePercent: telemetry.Available(12),
		GPUPowerWatts:    telemetry.Available(3.1),
		ANEPowerWatts:    telemetry.Available(0.4),
	}
	assert.Equal(t, "[  1.2m] Mem:  4.3GB | GPU: 12.0% | CPU:   85% | Pwr: 3.1W | ANE:0.4W | #12", StatusLine(s))

	s.ANEPowerWatts = telemetry.Available(0)
	assert.NotContains(t, StatusLine(s), "ANE")

	s.GPUActivePercent = telemetry.Unavailable()
	s.GPUPowerWatts = telemetry.Unavailable()
	assert.Equal(t, "[  1.2m] Mem:  4.3GB | GPU:  n/a% | CPU:   85% | Pwr: n/aW | #12", StatusLine(s))
}

func TestBanner(t *testing.T) {
	info := BannerInfo{
		Version: "1.0.0",
		System: sysinfo.Descriptor{
			Chip:             "Apple M2 Max",
			CPUCores:         12,
			PerformanceCores: 8,
			EfficiencyCores:  4,
			GPUCores:         38,
			ANECores:         16,
			MemoryBytes:      64 << 30,
		},
		Interval:    2 * time.Second,
		Duration:    time.Minute,
		Output:      "phocus_monitor_20250314_090000",
		Annotations: true,
		Telemetry:   true,
	}

	out := Banner(info)
	assert.Contains(t, out, "Apple M2 Max")
	assert.Contains(t, out, "CPU: 12 cores (8P + 4E)")
	assert.Contains(t, out, "GPU: 38 cores")
	assert.Contains(t, out, "ANE: 16-core Neural Engine")
	assert.Contains(t, out, "RAM: 64 GB")
	assert.Contains(t, out, "phocus_monitor_20250314_090000.*")
	assert.Contains(t, out, "1m0s")
	assert.Contains(t, out, "Not running as root")

	info.Root = true
	assert.NotContains(t, Banner(info), "Not running as root")

	info.Root = false
	info.Telemetry = false
	assert.NotContains(t, Banner(info), "Not running as root", "no warning when telemetry is off")
}

func TestSummary(t *testing.T) {
	out := Summary(dataset(4, true), "duration reached")

	assert.Contains(t, out, "duration reached")
	assert.Contains(t, out, "Collected 4 samples, 1 annotations over 3s.")
	assert.Contains(t, out, "2.50 GB")
	assert.Contains(t, out, "4.00 GB")
	assert.Contains(t, out, "50.0 %")
	assert.Contains(t, out, "midpoint")
}

func TestSummary_UnavailableTelemetry(t *testing.T) {
	out := Summary(dataset(3, false), "operator stop")
	var gpuLine string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "GPU power") {
			gpuLine = line
		}
	}
	require.NotEmpty(t, gpuLine)
	assert.Contains(t, gpuLine, "n/a")
}

func TestSummary_Empty(t *testing.T) {
	ds := timeline.New(start).Finalize(start)
	assert.Contains(t, Summary(ds, "target exited"), "No data collected!")
}

func TestChart(t *testing.T) {
	out := Chart(dataset(10, true), ChartOptions{Width: 20, Height: 2})

	assert.Contains(t, out, "Memory")
	assert.Contains(t, out, "peak 10.0 GB")
	assert.Contains(t, out, "GPU power")
	assert.Contains(t, out, "█")
	assert.Contains(t, out, "▲")
	assert.Contains(t, out, "└"+strings.Repeat("─", 10))
}

func TestChart_OmitsUnavailablePanels(t *testing.T) {
	out := Chart(dataset(5, false), ChartOptions{})
	assert.Contains(t, out, "CPU")
	assert.NotContains(t, out, "GPU active")
	assert.NotContains(t, out, "ANE power")
}

func TestChart_NoSamples(t *testing.T) {
	ds := timeline.New(start).Finalize(start)
	assert.Contains(t, Chart(ds, ChartOptions{}), "no samples")
}

func TestBucketize(t *testing.T) {
	var samples []timeline.Sample
	for i := 0; i < 8; i++ {
		samples = append(samples, timeline.Sample{CPUPercent: float64(i)})
	}

	buckets, peak, ok := bucketize(samples, 4, func(s timeline.Sample) telemetry.Reading {
		return telemetry.Available(s.CPUPercent)
	})
	require.True(t, ok)
	assert.Equal(t, []float64{1, 3, 5, 7}, buckets)
	assert.Equal(t, 7.0, peak)

	_, _, ok = bucketize(samples, 4, func(timeline.Sample) telemetry.Reading { return telemetry.Unavailable() })
	assert.False(t, ok)
}

func TestPlotRows(t *testing.T) {
	rows := plotRows([]float64{0, 5, 10}, 10, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, "▁▄█", rows[0])

	rows = plotRows([]float64{10, 5}, 10, 2)
	assert.Equal(t, []string{"█ ", "██"}, rows)
}
