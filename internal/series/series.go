// Package series provides the bounded rolling record of entropy samples
// shown on the observer's trajectory chart.
package series

import "fmt"

// Series is a fixed-capacity FIFO buffer of normalized entropy samples.
// Once full, each push evicts the oldest sample. Samples are clamped to
// [0, 1] on the way in, so stored values always satisfy that range.
//
// Series is not safe for concurrent use on its own; the engine owns it
// and publishes copies via Snapshot.
type Series struct {
	buf   []float64
	head  int // index of the oldest sample
	count int
}

// DefaultCapacity matches the observer's maximum retained chart points.
const DefaultCapacity = 600

// New creates a Series holding at most capacity samples.
func New(capacity int) (*Series, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("series capacity must be positive, got %d", capacity)
	}
	return &Series{buf: make([]float64, capacity)}, nil
}

// Push appends a sample, evicting the oldest when at capacity.
// Out-of-range input is clamped, never rejected.
func (s *Series) Push(sample float64) {
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}

	if s.count < len(s.buf) {
		s.buf[(s.head+s.count)%len(s.buf)] = sample
		s.count++
		return
	}

	// Full: overwrite the oldest slot and advance the head.
	s.buf[s.head] = sample
	s.head = (s.head + 1) % len(s.buf)
}

// Snapshot returns an independent copy of the samples in insertion order,
// most-recent-last. Safe to hand to a concurrent reader.
func (s *Series) Snapshot() []float64 {
	out := make([]float64, s.count)
	for i := 0; i < s.count; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Len returns the number of samples currently held.
func (s *Series) Len() int {
	return s.count
}

// Cap returns the fixed capacity.
func (s *Series) Cap() int {
	return len(s.buf)
}

// Restore replaces the contents with the given samples, clamping each and
// keeping only the most recent capacity entries. Used when resuming from
// a checkpoint.
func (s *Series) Restore(samples []float64) {
	s.head = 0
	s.count = 0
	start := 0
	if len(samples) > len(s.buf) {
		start = len(samples) - len(s.buf)
	}
	for _, v := range samples[start:] {
		s.Push(v)
	}
}
