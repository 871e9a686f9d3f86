package timeline

import (
	"time"

	"github.com/coral-mesh/resmon/internal/telemetry"
)

// Stat is the mean and maximum of one metric over the values that were available.
type Stat struct {
	Mean  float64
	Max   float64
	Count int
}

// Available reports whether at least one value contributed.
func (s Stat) Available() bool {
	return s.Count > 0
}

// Summary holds per-metric statistics for a dataset.
type Summary struct {
	Samples     int
	Annotations int
	Duration    time.Duration

	MemoryBytes      Stat
	CPUPercent       Stat
	Threads          Stat
	SwapBytes        Stat
	GPUActivePercent Stat
	GPUPowerWatts    Stat
	ANEPowerWatts    Stat
}

type statAccumulator struct {
	sum float64
	max float64
	n   int
}

func (a *statAccumulator) add(v float64) {
	if a.n == 0 || v > a.max {
		a.max = v
	}
	a.sum += v
	a.n++
}

func (a *statAccumulator) addReading(r telemetry.Reading) {
	if r.Available {
		a.add(r.Value)
	}
}

func (a *statAccumulator) stat() Stat {
	if a.n == 0 {
		return Stat{}
	}
	return Stat{Mean: a.sum / float64(a.n), Max: a.max, Count: a.n}
}

// Summarize computes statistics over samples. Unavailable telemetry readings
// are skipped, so they never move a mean or maximum.
func Summarize(samples []Sample, annotations int) Summary {
	var mem, cpu, threads, swap, gpu, gpuW, aneW statAccumulator
	for _, s := range samples {
		mem.add(float64(s.MemoryBytes))
		cpu.add(s.CPUPercent)
		threads.add(float64(s.Threads))
		swap.add(float64(s.SwapBytes))
		gpu.addReading(s.GPUActivePercent)
		gpuW.addReading(s.GPUPowerWatts)
		aneW.addReading(s.ANEPowerWatts)
	}

	sum := Summary{
		Samples:          len(samples),
		Annotations:      annotations,
		MemoryBytes:      mem.stat(),
		CPUPercent:       cpu.stat(),
		Threads:          threads.stat(),
		SwapBytes:        swap.stat(),
		GPUActivePercent: gpu.stat(),
		GPUPowerWatts:    gpuW.stat(),
		ANEPowerWatts:    aneW.stat(),
	}
	if n := len(samples); n > 1 {
		sum.Duration = samples[n-1].Timestamp.Sub(samples[0].Timestamp)
	}
	return sum
}
