package export

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/resmon/internal/testutil"

	"github.com/coral-mesh/resmon/internal/proctree"
	"github.com/coral-mesh/resmon/internal/sysinfo"
	"github.com/coral-mesh/resmon/internal/telemetry"
	"github.com/coral-mesh/resmon/internal/timeline"
)

var fixtureStart = time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC)

// fixtureDataset has three samples two seconds apart. The second sample has
// no telemetry. Two annotations land on row 0 and an unlabeled mark on row 2.
func fixtureDataset() *timeline.Dataset {
	tl := timeline.New(fixtureStart)
	for i := 0; i < 3; i++ {
		s := timeline.Sample{
			Timestamp:        fixtureStart.Add(time.Duration(i) * 2 * time.Second),
			MemoryBytes:      uint64(i+1) * 512 * 1024 * 1024,
			CPUPercent:       float64(100 * (i + 1)),
			Threads:          int32(10 + i),
			SwapBytes:        1024 * 1024,
			Pressure:         proctree.PressureNormal,
			Processes:        2,
			GPUActivePercent: telemetry.Available(25),
			GPUPowerWatts:    telemetry.Available(1.5),
			ANEPowerWatts:    telemetry.Available(0.25),
		}
		if i == 1 {
			s.GPUActivePercent = telemetry.Unavailable()
			s.GPUPowerWatts = telemetry.Unavailable()
			s.ANEPowerWatts = telemetry.Unavailable()
			s.Pressure = proctree.PressureUnknown
		}
		_, _ = tl.Append(s)
		if i == 0 {
			_, _ = tl.AddAnnotation("export started", fixtureStart.Add(500*time.Millisecond))
			_, _ = tl.AddAnnotation("batch, 200 images", fixtureStart.Add(time.Second))
		}
	}
	_, _ = tl.AddAnnotation("", fixtureStart.Add(5*time.Second))
	ds := tl.Finalize(fixtureStart.Add(6 * time.Second))
	ds.ID = "session-1"
	return ds
}

func fixtureMeta() Meta {
	return Meta{
		SessionID:       "session-1",
		TargetPID:       4242,
		TargetName:      "Phocus",
		Reason:          "duration_reached",
		Interval:        2 * time.Second,
		TelemetryStatus: string(telemetry.StatusStreaming),
		System: sysinfo.Descriptor{
			Chip:        "Apple M2 Max",
			CPUCores:    12,
			GPUCores:    38,
			MemoryBytes: 64 << 30,
			OS:          "darwin",
			Arch:        "arm64",
		},
		Version: "1.0.0",
	}
}

func TestNewPaths(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	p := NewPaths("out", "", "Phocus Pro", now)
	assert.Equal(t, filepath.Join("out", "phocus_pro_monitor_20250314_092653"), p.Base)
	assert.Equal(t, p.Base+".csv", p.CSV())
	assert.Equal(t, p.Base+".duckdb", p.DuckDB())
	assert.Equal(t, p.Base+".otlp.json", p.OTLP())

	assert.Equal(t, "run1", NewPaths("", "run1", "x", now).Base)
	assert.Equal(t, "/tmp/run1", NewPaths("out", "/tmp/run1", "x", now).Base)
	assert.Equal(t, "process_monitor_20250314_092653", NewPaths("", "", "///", now).Base)
}

// closeFailFile accepts writes and then fails to close, like a file whose
// buffered data cannot reach the disk.
type closeFailFile struct {
	bytes.Buffer
	closed int
}

func (f *closeFailFile) Close() error {
	f.closed++
	return errors.New("input/output error")
}

func stubCreateFile(t *testing.T, f io.WriteCloser) {
	t.Helper()
	orig := createFile
	createFile = func(string) (io.WriteCloser, error) { return f, nil }
	t.Cleanup(func() { createFile = orig })
}

func TestSave_CloseErrorFailsExport(t *testing.T) {
	logger := testutil.NewTestLogger(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		save func(path string) error
	}{
		{"csv", func(path string) error { return SaveCSV(path, fixtureDataset(), fixtureMeta(), logger) }},
		{"otlp", func(path string) error { return SaveOTLP(path, fixtureDataset(), fixtureMeta(), logger) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &closeFailFile{}
			stubCreateFile(t, f)

			err := tt.save(filepath.Join(dir, "run."+tt.name))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to close")
			assert.Contains(t, err.Error(), "input/output error")
			assert.Positive(t, f.Len(), "content was written before close")
			assert.Equal(t, 1, f.closed)
		})
	}
}

func TestSaveFile_WriteErrorStillCloses(t *testing.T) {
	f := &closeFailFile{}
	stubCreateFile(t, f)

	err := saveFile("run.csv", func(io.Writer) error { return errors.New("disk full") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write run.csv: disk full")
	assert.Equal(t, 1, f.closed)
}
