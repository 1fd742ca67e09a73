package recording

import (
	"encoding/json"
	"sync"

	"github.com/pulselab/pulse/trace"
)

// TransactionRow is the flat form of a completed transaction, as stored in
// the "transactions" table. Metadata and sample data are JSON-encoded into
// text columns; durations are seconds.
type TransactionRow struct {
	ID             string  `json:"id"`
	Namespace      string  `json:"namespace"`
	Action         string  `json:"action"`
	ErrorName      string  `json:"error_name"`
	ErrorMessage   string  `json:"error_message"`
	ErrorBacktrace string  `json:"error_backtrace"`
	Metadata       string  `json:"metadata"`
	SampleData     string  `json:"sample_data"`
	Start          float64 `json:"start"`
	Duration       float64 `json:"duration"`
	EventCount     int     `json:"event_count"`
}

// EventRow is the flat form of one event, as stored in the "events" table.
type EventRow struct {
	TransactionID        string  `json:"transaction_id"`
	Name                 string  `json:"name"`
	Title                string  `json:"title"`
	Body                 string  `json:"body"`
	BodyFormat           string  `json:"body_format"`
	Start                float64 `json:"start"`
	Duration             float64 `json:"duration"`
	ChildDuration        float64 `json:"child_duration"`
	Count                int     `json:"count"`
	AllocationCount      uint64  `json:"allocation_count"`
	ChildAllocationCount uint64  `json:"child_allocation_count"`
	GCDuration           float64 `json:"gc_duration"`
	ChildGCDuration      float64 `json:"child_gc_duration"`
}

// A SnapshotRecorder is a trace.Sink that persists completed transactions
// into a DataRecorder backend.
type SnapshotRecorder struct {
	mu      sync.Mutex
	backend DataRecorder
}

// NewSnapshotRecorder creates a SnapshotRecorder and its tables on the
// backend.
func NewSnapshotRecorder(backend DataRecorder) *SnapshotRecorder {
	backend.CreateTable("transactions", TransactionRow{})
	backend.CreateTable("events", EventRow{})

	return &SnapshotRecorder{backend: backend}
}

// Record stores one completed transaction and its events.
func (r *SnapshotRecorder) Record(snap trace.Snapshot) {
	row := TransactionRow{
		ID:         snap.ID,
		Namespace:  string(snap.Namespace),
		Action:     snap.Action,
		Metadata:   encodeJSON(snap.Metadata),
		SampleData: encodeJSON(snap.SampleData),
		Start:      float64(snap.Start.UnixNano()) / 1e9,
		Duration:   snap.Duration.Seconds(),
		EventCount: len(snap.Events),
	}

	if snap.Error != nil {
		row.ErrorName = snap.Error.Name
		row.ErrorMessage = snap.Error.Message
		row.ErrorBacktrace = snap.Error.Backtrace
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.backend.InsertData("transactions", row)

	for _, ev := range snap.Events {
		r.backend.InsertData("events", EventRow{
			TransactionID:        snap.ID,
			Name:                 ev.Name,
			Title:                ev.Title,
			Body:                 ev.Body,
			BodyFormat:           ev.BodyFormat,
			Start:                ev.Start.Seconds(),
			Duration:             ev.Duration.Seconds(),
			ChildDuration:        ev.ChildDuration.Seconds(),
			Count:                ev.Count,
			AllocationCount:      ev.AllocationCount,
			ChildAllocationCount: ev.ChildAllocationCount,
			GCDuration:           ev.GCDuration.Seconds(),
			ChildGCDuration:      ev.ChildGCDuration.Seconds(),
		})
	}
}

// Flush flushes the underlying backend.
func (r *SnapshotRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backend.Flush()
}

// encodeJSON renders a value for a text column. Encoding failures degrade to
// an empty object; recording must not fail the transaction that is being
// completed.
func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}

	return string(b)
}
