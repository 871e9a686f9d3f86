package sysinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coral-mesh/resmon/internal/testutil"
)

const hardwareOverview = `Hardware:

    Hardware Overview:

      Model Name: MacBook Pro
      Model Identifier: Mac16,8
      Model Number: MX2H3LL/A
      Chip: Apple M4 Pro
      Total Number of Cores: 14 (10 performance and 4 efficiency)
      Memory: 48 GB
      System Firmware Version: 11881.41.5
`

func TestApplyHardwareOverview(t *testing.T) {
	var d Descriptor
	applyHardwareOverview(hardwareOverview, &d)

	assert.Equal(t, "Apple M4 Pro", d.Chip)
	assert.Equal(t, 14, d.CPUCores)
	assert.Equal(t, 10, d.PerformanceCores)
	assert.Equal(t, 4, d.EfficiencyCores)
	assert.Equal(t, uint64(48)<<30, d.MemoryBytes)
	assert.Equal(t, 48, d.MemoryGB())
}

func TestApplyHardwareOverview_NoCoreSplit(t *testing.T) {
	d := Descriptor{Chip: "Unknown"}
	applyHardwareOverview("      Processor Name: Quad-Core Intel Core i7\n      Total Number of Cores: 4\n", &d)

	assert.Equal(t, "Quad-Core Intel Core i7", d.Chip)
	assert.Equal(t, 4, d.CPUCores)
	assert.Zero(t, d.PerformanceCores)
}

func TestParseGPUCores(t *testing.T) {
	out := `    | |   "IOClass" = "AGXAcceleratorG16X"
    | |   "gpu-core-count" = 20
    | |   "gpu-core-count" = 99`
	assert.Equal(t, 20, parseGPUCores(out))
	assert.Equal(t, 0, parseGPUCores("nothing here"))
}

func TestDescriptorString(t *testing.T) {
	d := Descriptor{
		Chip:             "Apple M4 Pro",
		CPUCores:         14,
		PerformanceCores: 10,
		EfficiencyCores:  4,
		GPUCores:         20,
		ANECores:         16,
		MemoryBytes:      48 << 30,
	}
	assert.Equal(t, "Apple M4 Pro • 14-core CPU (10P + 4E) • 20-core GPU • 16-core Neural Engine • 48 GB RAM", d.String())

	assert.Equal(t, "8-core CPU", Descriptor{CPUCores: 8}.String())
	assert.Equal(t, "", Descriptor{}.String())
}

func TestANECores(t *testing.T) {
	assert.Equal(t, 16, aneCores("arm64"))
	assert.Equal(t, 0, aneCores("amd64"))
}

func TestDetect(t *testing.T) {
	d := NewDetector(testutil.NewTestLogger(t)).Detect(testutil.NewTestContext(t))

	assert.NotEmpty(t, d.OS)
	assert.NotEmpty(t, d.Arch)
	assert.NotEmpty(t, d.Chip)
}
