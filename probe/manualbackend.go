package probe

import "time"

// A ManualBackend is a Backend that is fully controlled by the caller. It is
// mainly used in tests that need deterministic durations and counter deltas.
type ManualBackend struct {
	CurrentTime     time.Time
	Allocations     uint64
	GCPauseDuration time.Duration
}

// NewManualBackend creates a ManualBackend starting at an arbitrary fixed
// time with zeroed counters.
func NewManualBackend() *ManualBackend {
	return &ManualBackend{
		CurrentTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Now returns the manually controlled time.
func (b *ManualBackend) Now() time.Time {
	return b.CurrentTime
}

// AllocationCount returns the manually controlled allocation counter.
func (b *ManualBackend) AllocationCount() uint64 {
	return b.Allocations
}

// GCDuration returns the manually controlled GC pause counter.
func (b *ManualBackend) GCDuration() time.Duration {
	return b.GCPauseDuration
}

// Advance moves the clock forward.
func (b *ManualBackend) Advance(d time.Duration) {
	b.CurrentTime = b.CurrentTime.Add(d)
}

// Allocate increases the allocation counter.
func (b *ManualBackend) Allocate(n uint64) {
	b.Allocations += n
}

// PauseGC increases the GC pause counter.
func (b *ManualBackend) PauseGC(d time.Duration) {
	b.GCPauseDuration += d
}
