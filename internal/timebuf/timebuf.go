// Package timebuf provides a bounded, time-ordered history of samples with
// linear interpolation. It answers "what was the value at time t" for
// delayed or slightly out-of-order measurement streams.
//
// Interpolation only, never extrapolation: a query outside the covered
// interval reports ErrUnavailable rather than guessing.
package timebuf

import (
	"errors"
	"fmt"
	"sort"

	"github.com/meridian-robotics/navcore/internal/units"
)

var (
	// ErrOutOfOrder is returned when a pushed sample is older than the
	// newest stored sample by more than the configured tolerance.
	ErrOutOfOrder = errors.New("timebuf: sample out of order beyond tolerance")

	// ErrUnavailable is returned when interpolation cannot produce a value:
	// fewer than two samples, or the query time is outside the covered span.
	ErrUnavailable = errors.New("timebuf: interpolation unavailable")
)

// DefaultCapacity is used when a non-positive capacity is configured.
const DefaultCapacity = 64

// Sample is a value observed at a monotonic-domain timestamp.
// Immutable once constructed.
type Sample[T any] struct {
	Value     T
	Timestamp units.Seconds
}

// Lerp linearly interpolates between a and b. alpha is in [0, 1]:
// 0 returns a, 1 returns b.
type Lerp[T any] func(a, b T, alpha float64) T

// Buffer is a bounded ascending-by-timestamp sequence of samples.
// Not safe for concurrent use; callers serialize access (see Pipeline).
type Buffer[T any] struct {
	samples   []Sample[T]
	capacity  int
	tolerance units.Seconds
	lerp      Lerp[T]
}

// New creates a buffer holding at most capacity samples. Samples arriving
// older than the newest by up to tolerance are inserted in order; older
// than that they are rejected. The backing store is allocated once.
func New[T any](capacity int, tolerance units.Seconds, lerp Lerp[T]) *Buffer[T] {
	if capacity < 2 {
		capacity = DefaultCapacity
	}
	if tolerance < 0 {
		tolerance = 0
	}
	return &Buffer[T]{
		samples:   make([]Sample[T], 0, capacity),
		capacity:  capacity,
		tolerance: tolerance,
		lerp:      lerp,
	}
}

// Push inserts a sample, keeping the buffer ordered by timestamp.
// The oldest sample is evicted when the buffer is full.
func (b *Buffer[T]) Push(s Sample[T]) error {
	if !s.Timestamp.IsFinite() {
		return fmt.Errorf("timebuf: push at %v: %w", s.Timestamp, units.ErrNonFinite)
	}

	n := len(b.samples)
	if n == 0 || s.Timestamp >= b.samples[n-1].Timestamp {
		if n == b.capacity {
			copy(b.samples, b.samples[1:])
			b.samples = b.samples[:n-1]
		}
		b.samples = append(b.samples, s)
		return nil
	}

	lag := b.samples[n-1].Timestamp - s.Timestamp
	if lag > b.tolerance {
		return fmt.Errorf("%w: sample %.6fs behind newest", ErrOutOfOrder, lag.Float())
	}

	// Slightly reordered arrival: insert at its ordinal position.
	idx := sort.Search(n, func(i int) bool {
		return b.samples[i].Timestamp > s.Timestamp
	})
	if n == b.capacity {
		if idx == 0 {
			// The sample would land in the eviction slot: it is older
			// than everything a full buffer can keep. Report it so
			// callers can count the drop.
			return fmt.Errorf("%w: full buffer, sample older than retained span", ErrOutOfOrder)
		}
		copy(b.samples, b.samples[1:idx])
		b.samples[idx-1] = s
		return nil
	}
	b.samples = append(b.samples, Sample[T]{})
	copy(b.samples[idx+1:], b.samples[idx:])
	b.samples[idx] = s
	return nil
}

// Interpolate returns the value at time t. Exact stored timestamps return
// the stored value unchanged.
func (b *Buffer[T]) Interpolate(t units.Seconds) (T, error) {
	var zero T
	n := len(b.samples)
	if n < 2 {
		return zero, fmt.Errorf("%w: %d sample(s)", ErrUnavailable, n)
	}
	if t < b.samples[0].Timestamp || t > b.samples[n-1].Timestamp {
		return zero, fmt.Errorf("%w: t=%.6f outside [%.6f, %.6f]",
			ErrUnavailable, t.Float(), b.samples[0].Timestamp.Float(), b.samples[n-1].Timestamp.Float())
	}

	// First sample with timestamp >= t.
	idx := sort.Search(n, func(i int) bool {
		return b.samples[i].Timestamp >= t
	})
	if b.samples[idx].Timestamp == t {
		return b.samples[idx].Value, nil
	}

	a, c := b.samples[idx-1], b.samples[idx]
	span := c.Timestamp - a.Timestamp
	if span <= 0 {
		// Duplicate timestamps bracketing t cannot happen with ordered
		// insert, but guard the division anyway.
		return c.Value, nil
	}
	alpha := float64(t-a.Timestamp) / float64(span)
	return b.lerp(a.Value, c.Value, alpha), nil
}

// Len returns the number of stored samples.
func (b *Buffer[T]) Len() int { return len(b.samples) }

// Cap returns the configured maximum length.
func (b *Buffer[T]) Cap() int { return b.capacity }

// Earliest returns the oldest stored timestamp, or false when empty.
func (b *Buffer[T]) Earliest() (units.Seconds, bool) {
	if len(b.samples) == 0 {
		return 0, false
	}
	return b.samples[0].Timestamp, true
}

// Latest returns the newest stored timestamp, or false when empty.
func (b *Buffer[T]) Latest() (units.Seconds, bool) {
	if len(b.samples) == 0 {
		return 0, false
	}
	return b.samples[len(b.samples)-1].Timestamp, true
}

// Span returns the covered interval length. Zero when fewer than two samples.
func (b *Buffer[T]) Span() units.Seconds {
	if len(b.samples) < 2 {
		return 0
	}
	return b.samples[len(b.samples)-1].Timestamp - b.samples[0].Timestamp
}

// Clear removes all samples. Capacity and tolerance are retained.
func (b *Buffer[T]) Clear() {
	b.samples = b.samples[:0]
}
