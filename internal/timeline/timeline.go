// Package timeline holds the ordered samples and annotations of one session
// and produces the finalized dataset handed to exporters.
package timeline

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coral-mesh/resmon/internal/proctree"
	"github.com/coral-mesh/resmon/internal/telemetry"
)

var (
	// ErrSealed is returned when appending to a finalized timeline.
	ErrSealed = errors.New("timeline is finalized")
	// ErrOutOfOrder is returned when a sample is not strictly later than the previous one.
	ErrOutOfOrder = errors.New("sample timestamp is not after the previous sample")
)

// Sample is one merged observation. Samples are immutable once appended.
type Sample struct {
	Seq       int
	Timestamp time.Time
	// Elapsed is measured from the timeline start.
	Elapsed time.Duration

	MemoryBytes uint64
	CPUPercent  float64
	Threads     int32
	SwapBytes   uint64
	Pressure    proctree.Pressure
	Processes   int

	// Host-wide telemetry, never attributed to the target.
	GPUActivePercent telemetry.Reading
	GPUPowerWatts    telemetry.Reading
	ANEPowerWatts    telemetry.Reading
}

// Annotation is an operator label. An empty label marks a point in time.
type Annotation struct {
	Seq int
	// Timestamp lies within the sampled range once the timeline is finalized.
	Timestamp  time.Time
	ReceivedAt time.Time
	Label      string
	// SampleIndex is the index of the last sample appended before the
	// annotation arrived, or -1 if there was none.
	SampleIndex int
}

// DisplayLabel returns the label, or "Mark <seq>" for an unlabeled mark.
func (a Annotation) DisplayLabel() string {
	if strings.TrimSpace(a.Label) == "" {
		return "Mark " + strconv.Itoa(a.Seq)
	}
	return a.Label
}

// Dataset is the read-only result of a finalized timeline.
type Dataset struct {
	ID          string
	StartedAt   time.Time
	EndedAt     time.Time
	Samples     []Sample
	Annotations []Annotation
	Summary     Summary
}

// Timeline is written by two activities: the cadence loop appends samples
// and the annotation channel appends annotations. Each append holds the lock
// only for the append itself.
type Timeline struct {
	mu          sync.Mutex
	start       time.Time
	samples     []Sample
	annotations []Annotation
	dataset     *Dataset
}

// New creates an empty timeline starting at start.
func New(start time.Time) *Timeline {
	return &Timeline{start: start}
}

// Start returns the session start time.
func (t *Timeline) Start() time.Time {
	return t.start
}

// Append adds s, assigning its sequence number and elapsed time.
func (t *Timeline) Append(s Sample) (Sample, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dataset != nil {
		return Sample{}, ErrSealed
	}
	if n := len(t.samples); n > 0 && !s.Timestamp.After(t.samples[n-1].Timestamp) {
		return Sample{}, ErrOutOfOrder
	}

	s.Seq = len(t.samples) + 1
	s.Elapsed = s.Timestamp.Sub(t.start)
	t.samples = append(t.samples, s)
	return s, nil
}

// AddAnnotation records label as received at at.
func (t *Timeline) AddAnnotation(label string, at time.Time) (Annotation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dataset != nil {
		return Annotation{}, ErrSealed
	}

	a := Annotation{
		Seq:         len(t.annotations) + 1,
		Timestamp:   at,
		ReceivedAt:  at,
		Label:       label,
		SampleIndex: len(t.samples) - 1,
	}
	t.annotations = append(t.annotations, a)
	return a, nil
}

// Len returns the number of samples.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// Last returns the most recent sample.
func (t *Timeline) Last() (Sample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return Sample{}, false
	}
	return t.samples[len(t.samples)-1], true
}

// Samples returns a copy of the samples appended so far.
func (t *Timeline) Samples() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sample(nil), t.samples...)
}

// Annotations returns a copy of the annotations appended so far.
func (t *Timeline) Annotations() []Annotation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Annotation(nil), t.annotations...)
}

// Finalize seals the timeline and returns its dataset. Annotation timestamps
// are clamped into [first sample, last sample], or [start, end] when no
// sample was taken. Later calls return the same dataset.
func (t *Timeline) Finalize(end time.Time) *Dataset {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dataset != nil {
		return t.dataset
	}

	if end.Before(t.start) {
		end = t.start
	}
	lo, hi := t.start, end
	if n := len(t.samples); n > 0 {
		lo, hi = t.samples[0].Timestamp, t.samples[n-1].Timestamp
	}

	samples := append([]Sample(nil), t.samples...)
	annotations := make([]Annotation, len(t.annotations))
	for i, a := range t.annotations {
		a.Timestamp = clamp(a.ReceivedAt, lo, hi)
		if a.SampleIndex < 0 && len(samples) > 0 {
			a.SampleIndex = 0
		}
		annotations[i] = a
	}

	t.dataset = &Dataset{
		StartedAt:   t.start,
		EndedAt:     end,
		Samples:     samples,
		Annotations: annotations,
		Summary:     Summarize(samples, len(annotations)),
	}
	return t.dataset
}

func clamp(ts, lo, hi time.Time) time.Time {
	if ts.Before(lo) {
		return lo
	}
	if ts.After(hi) {
		return hi
	}
	return ts
}
