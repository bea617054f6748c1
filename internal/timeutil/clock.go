// Package timeutil provides a testable abstraction over time operations.
//
// Estimation and control never consume wall-clock time directly: they take
// monotonic-domain timestamps (units.Seconds measured from process start)
// so that NTP steps or clock adjustments cannot move the control timeline.
package timeutil

import (
	"sync"
	"time"

	"github.com/meridian-robotics/navcore/internal/units"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current wall-clock time (logging, persistence).
	Now() time.Time

	// Monotonic returns a monotonic-domain timestamp suitable for
	// estimation and control. Values are non-decreasing and independent
	// of wall-clock adjustments.
	Monotonic() units.Seconds

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// Sleep pauses for the specified duration.
	Sleep(d time.Duration)

	// NewTicker returns a new Ticker containing a channel that will
	// send the time with a period specified by the duration argument.
	NewTicker(d time.Duration) Ticker
}

// Ticker holds a channel that delivers "ticks" of a clock at intervals.
type Ticker interface {
	// C returns the channel on which the ticks are delivered.
	C() <-chan time.Time

	// Stop turns off a ticker.
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct {
	epoch time.Time
}

// NewRealClock creates a RealClock whose monotonic domain starts at zero.
func NewRealClock() *RealClock {
	return &RealClock{epoch: time.Now()}
}

// Now returns the current time.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Monotonic returns seconds elapsed since the clock was created.
// time.Since uses the runtime's monotonic reading, so the result is immune
// to wall-clock steps.
func (c *RealClock) Monotonic() units.Seconds {
	return units.Seconds(time.Since(c.epoch).Seconds())
}

// Since returns the time elapsed since t.
func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Sleep pauses the current goroutine for at least the duration d.
func (c *RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// NewTicker returns a new Ticker.
func (c *RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// MockClock is a manually controlled clock for testing. Advance moves both
// the wall and monotonic domains together.
type MockClock struct {
	mu        sync.Mutex
	now       time.Time
	monotonic units.Seconds
	sleeps    []time.Duration
	tickers   []*MockTicker
}

// NewMockClock creates a new MockClock set to the given wall time with a
// monotonic reading of zero.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Monotonic returns the mocked monotonic reading.
func (c *MockClock) Monotonic() units.Seconds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monotonic
}

// SetMonotonic pins the monotonic reading directly. The wall clock is left
// alone; tests that need to simulate time-base faults use this.
func (c *MockClock) SetMonotonic(s units.Seconds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.monotonic = s
}

// Advance moves the mock clock forward by the given duration in both
// domains and fires any expired tickers.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.monotonic += units.Seconds(d.Seconds())
	now := c.now
	tickers := c.tickers
	c.mu.Unlock()

	for _, t := range tickers {
		t.checkAndFire(now)
	}
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep records the sleep duration but returns immediately.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
}

// Sleeps returns all recorded sleep durations.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]time.Duration, len(c.sleeps))
	copy(result, c.sleeps)
	return result
}

// NewTicker creates a new MockTicker.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &MockTicker{
		ch:       make(chan time.Time, 1),
		interval: d,
		nextTick: c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// MockTicker is a manually controlled ticker for testing.
type MockTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	nextTick time.Time
	stopped  bool
}

// C returns the ticker channel.
func (t *MockTicker) C() <-chan time.Time {
	return t.ch
}

// Stop turns off the ticker.
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *MockTicker) checkAndFire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	for !t.nextTick.After(now) {
		select {
		case t.ch <- t.nextTick:
		default:
			// Slow consumer drops ticks, same as time.Ticker.
		}
		t.nextTick = t.nextTick.Add(t.interval)
	}
}
