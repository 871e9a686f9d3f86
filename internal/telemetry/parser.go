package telemetry

import (
	"regexp"
	"strconv"
	"strings"
)

// blockHeader opens every powermetrics sample, e.g.
// "*** Sampled system activity (Mon Jan  6 10:00:00 2025 +0100) (1004.12ms elapsed) ***".
const blockHeader = "*** Sampled system activity"

var (
	gpuActiveResidencyRegex = regexp.MustCompile(`GPU HW active residency:\s+([\d.]+)%`)
	gpuIdleResidencyRegex   = regexp.MustCompile(`GPU idle residency:\s+([\d.]+)%`)
	powerRegex              = regexp.MustCompile(`^(GPU|ANE) Power:\s+([\d.]+)\s*(mW|W)\b`)
)

// Accumulator groups stream lines into blocks. A block starts at a header
// line and is complete when the next header arrives or the stream ends.
// Lines before the first header are discarded.
type Accumulator struct {
	lines    []string
	started  bool
	maxLines int
	overflow bool
}

// NewAccumulator creates an accumulator that drops any block longer than
// maxLines. Zero disables the limit.
func NewAccumulator(maxLines int) *Accumulator {
	return &Accumulator{maxLines: maxLines}
}

// Feed adds one line. When line begins a new block, the previous block is
// returned with ok set.
func (a *Accumulator) Feed(line string) (block []string, ok bool) {
	if strings.HasPrefix(strings.TrimSpace(line), blockHeader) {
		block, ok = a.take()
		a.lines = append(a.lines[:0:0], line)
		a.started = true
		return block, ok
	}

	if !a.started {
		return nil, false
	}

	if a.maxLines > 0 && len(a.lines) >= a.maxLines {
		a.overflow = true
		a.lines = a.lines[:0]
		return nil, false
	}

	a.lines = append(a.lines, line)
	return nil, false
}

// Flush returns the block in progress at end of stream.
func (a *Accumulator) Flush() ([]string, bool) {
	block, ok := a.take()
	a.lines = nil
	a.started = false
	return block, ok
}

func (a *Accumulator) take() ([]string, bool) {
	if !a.started || a.overflow || len(a.lines) == 0 {
		a.overflow = false
		return nil, false
	}
	return a.lines, true
}

// Block is the parsed content of one powermetrics sample.
type Block struct {
	GPUActivePercent Reading
	GPUPowerWatts    Reading
	ANEPowerWatts    Reading
}

// Fields counts the available readings.
func (b Block) Fields() int {
	n := 0
	for _, r := range []Reading{b.GPUActivePercent, b.GPUPowerWatts, b.ANEPowerWatts} {
		if r.Available {
			n++
		}
	}
	return n
}

// ParseBlock extracts GPU residency, GPU power and ANE power by key.
// Field order does not matter; absent fields stay unavailable.
func ParseBlock(lines []string) Block {
	var b Block
	idle := Unavailable()

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := gpuActiveResidencyRegex.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				b.GPUActivePercent = Available(v)
			}
			continue
		}

		if m := gpuIdleResidencyRegex.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				idle = Available(v)
			}
			continue
		}

		// Anchored so that "Combined Power (CPU + GPU + ANE)" never matches.
		if m := powerRegex.FindStringSubmatch(line); m != nil {
			v, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			if m[3] == "mW" {
				v /= 1000
			}
			switch m[1] {
			case "GPU":
				b.GPUPowerWatts = Available(v)
			case "ANE":
				b.ANEPowerWatts = Available(v)
			}
		}
	}

	if !b.GPUActivePercent.Available && idle.Available {
		b.GPUActivePercent = Available(clampPercent(100 - idle.Value))
	}

	return b
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
