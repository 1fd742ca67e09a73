package trace

import "time"

// A Snapshot is the immutable export of a completed transaction. It is the
// record handed to sinks for storage or transmission.
type Snapshot struct {
	ID         string            `json:"id"`
	Namespace  Namespace         `json:"namespace"`
	Action     string            `json:"action"`
	Error      *ErrorInfo        `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata"`
	Events     []Event           `json:"events"`
	SampleData map[string]any    `json:"sample_data"`
	Start      time.Time         `json:"start"`
	Duration   time.Duration     `json:"duration"`
}

// Snapshot exports the current state of the transaction. For a closed
// transaction this is the final record; for an open one it is a live view,
// used by the monitoring server.
func (t *Transaction) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.snapshotLocked()
}

func (t *Transaction) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:         t.id,
		Namespace:  t.namespace,
		Action:     t.action,
		Metadata:   t.metadata,
		Start:      t.startedAt,
		Duration:   t.duration,
		Events:     make([]Event, len(t.events)),
		SampleData: make(map[string]any, len(t.sampleData)),
	}

	copy(snap.Events, t.events)

	for k, v := range t.sampleData {
		snap.SampleData[k] = v
	}

	if t.errInfo != nil {
		errCopy := *t.errInfo
		snap.Error = &errCopy
	}

	return snap
}
