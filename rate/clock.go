package rate

import "time"

// TimeProvider is an interface for getting the current time.
// This allows injecting a mock time provider for deterministic testing.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
}

// Sleeper abstracts blocking pauses so rate delays and retry backoffs are
// testable without real time passing.
type Sleeper interface {
	// Sleep blocks the calling goroutine for d.
	Sleep(d time.Duration)
}

// RealTimeProvider implements TimeProvider using the actual system time.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t using the system clock.
func (RealTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// RealSleeper implements Sleeper using time.Sleep.
type RealSleeper struct{}

// Sleep blocks for d.
func (RealSleeper) Sleep(d time.Duration) { time.Sleep(d) }
