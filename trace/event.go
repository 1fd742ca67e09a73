package trace

import "time"

// An Event is one finished, timed, named sub-operation within a transaction.
// The Child* fields aggregate the totals of the events that were nested
// under this one, so the self cost of an event is the total minus the child
// share.
type Event struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	BodyFormat string `json:"body_format"`

	// Start is the offset from the start of the owning transaction.
	Start         time.Duration `json:"start"`
	Duration      time.Duration `json:"duration"`
	ChildDuration time.Duration `json:"child_duration"`

	// Count is always 1 for directly recorded events. It exists so that
	// downstream aggregation can merge events without losing cardinality.
	Count int `json:"count"`

	AllocationCount      uint64        `json:"allocation_count"`
	ChildAllocationCount uint64        `json:"child_allocation_count"`
	GCDuration           time.Duration `json:"gc_duration"`
	ChildGCDuration      time.Duration `json:"child_gc_duration"`
}

// An EventHandle represents an event that has been started but not yet
// finished. Handles are created by Transaction.StartEvent and must be passed
// back to Transaction.FinishEvent exactly once, on success and error paths
// alike.
type EventHandle struct {
	event Event

	startedAt  time.Time
	startAlloc uint64
	startGC    time.Duration

	childDuration time.Duration
	childAlloc    uint64
	childGC       time.Duration

	finished bool
}

// Name returns the name the event was started with.
func (h *EventHandle) Name() string {
	return h.event.Name
}
