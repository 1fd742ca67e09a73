// Package probe provides the timing and resource-counter backend used when
// recording events.
package probe

import (
	"runtime"
	"time"
)

// A Backend samples monotonic time and cumulative process resource counters.
// Counters are cumulative since process start, so callers can diff two
// samples to attribute usage to a span of work.
type Backend interface {
	// Now returns the current time. The returned value carries a monotonic
	// reading, so durations derived from two calls are non-negative.
	Now() time.Time

	// AllocationCount returns the cumulative number of heap objects
	// allocated by the process.
	AllocationCount() uint64

	// GCDuration returns the cumulative time the process has spent in
	// garbage-collection pauses.
	GCDuration() time.Duration
}

// NewBackend returns the Backend backed by the Go runtime.
func NewBackend() Backend {
	return runtimeBackend{}
}

type runtimeBackend struct{}

func (runtimeBackend) Now() time.Time {
	return time.Now()
}

func (runtimeBackend) AllocationCount() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	return stats.Mallocs
}

func (runtimeBackend) GCDuration() time.Duration {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	return time.Duration(stats.PauseTotalNs)
}
