package trace

import (
	"log"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/pulselab/pulse/probe"
)

type transactionState int

const (
	stateOpen transactionState = iota
	stateCompleting
	stateClosed
)

// ErrorInfo describes the first error captured by a transaction.
type ErrorInfo struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Backtrace string `json:"backtrace"`
}

// A Transaction is one correlated trace of work. It collects the events,
// request metadata, sample data, and error state produced while a logical
// unit of work (a web request, a job run, a channel callback) executes.
//
// A transaction is owned by a single execution context. Mutating methods are
// still guarded by a mutex because the monitoring server may read a live
// transaction from another goroutine.
//
// Mutating methods are safe to call on a nil receiver. Adapters receive a
// nil transaction when instrumentation is inactive, and instrumentation must
// never break the code it observes.
type Transaction struct {
	mu sync.Mutex

	id        string
	namespace Namespace
	action    string
	metadata  map[string]string
	startedAt time.Time
	duration  time.Duration

	events     []Event
	openEvents []*EventHandle
	sampleData map[string]any
	errInfo    *ErrorInfo

	state transactionState

	ctxKey   string
	registry *Registry
	backend  probe.Backend
	logger   *log.Logger
}

func newTransaction(
	id string,
	namespace Namespace,
	metadata map[string]string,
	ctxKey string,
	registry *Registry,
	backend probe.Backend,
	logger *log.Logger,
) *Transaction {
	metaCopy := make(map[string]string, len(metadata))
	for k, v := range metadata {
		metaCopy[k] = v
	}

	return &Transaction{
		id:         id,
		namespace:  namespace,
		metadata:   metaCopy,
		startedAt:  backend.Now(),
		sampleData: make(map[string]any),
		ctxKey:     ctxKey,
		registry:   registry,
		backend:    backend,
		logger:     logger,
	}
}

// ID returns the correlation ID of the transaction.
func (t *Transaction) ID() string {
	if t == nil {
		return ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.id
}

// Namespace returns the workload classification of the transaction.
func (t *Transaction) Namespace() Namespace {
	if t == nil {
		return ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.namespace
}

// Action returns the "<Receiver>#<method>" string identifying the code path
// that produced this trace, or "" if it has not been set.
func (t *Transaction) Action() string {
	if t == nil {
		return ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.action
}

// SetAction records the code path that produced this trace. The first call
// wins, so nested instrumented calls do not overwrite the entry point.
func (t *Transaction) SetAction(action string) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.mutableLocked("SetAction") {
		return
	}

	if t.action != "" {
		return
	}

	t.action = action
}

// SetSampleData stores a named bucket of structured data, such as the
// parameters of the instrumented call. The last write to a bucket wins.
func (t *Transaction) SetSampleData(key string, value any) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.mutableLocked("SetSampleData") {
		return
	}

	t.sampleData[key] = value
}

// SetError records the identity, message, and backtrace of an error raised
// while the transaction was open. The first recorded error wins; later calls
// are no-ops.
func (t *Transaction) SetError(name, message, backtrace string) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.mutableLocked("SetError") {
		return
	}

	if t.errInfo != nil {
		return
	}

	t.errInfo = &ErrorInfo{
		Name:      name,
		Message:   message,
		Backtrace: backtrace,
	}
}

// NoticeError records a Go error on the transaction, deriving the error name
// from its dynamic type. The first recorded error wins.
func (t *Transaction) NoticeError(err error, backtrace string) {
	if t == nil || err == nil {
		return
	}

	t.SetError(ErrorName(err), err.Error(), backtrace)
}

// ErrorName derives the name recorded for an error from its dynamic type.
func ErrorName(err error) string {
	typ := reflect.TypeOf(err)
	if typ == nil {
		return "error"
	}

	return strings.TrimPrefix(typ.String(), "*")
}

// StartEvent begins timing a named operation and snapshots the resource
// counters. Events started while another event is open become its children.
// The returned handle must be passed to FinishEvent on every exit path. A
// nil handle is returned when the transaction is no longer open; FinishEvent
// ignores nil handles.
func (t *Transaction) StartEvent(name, title, body, bodyFormat string) *EventHandle {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.mutableLocked("StartEvent") {
		return nil
	}

	now := t.backend.Now()
	h := &EventHandle{
		event: Event{
			Name:       name,
			Title:      title,
			Body:       body,
			BodyFormat: bodyFormat,
			Start:      now.Sub(t.startedAt),
			Count:      1,
		},
		startedAt:  now,
		startAlloc: t.backend.AllocationCount(),
		startGC:    t.backend.GCDuration(),
	}

	t.openEvents = append(t.openEvents, h)

	return h
}

// FinishEvent finalizes a started event: it computes the duration and
// counter deltas, appends the result to the transaction's event list, and
// folds the totals into the parent open event. Finishing an event that still
// has open children finishes the children first.
func (t *Transaction) FinishEvent(h *EventHandle) {
	if t == nil || h == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if h.finished {
		t.logf("event %s finished twice, ignoring", h.event.Name)
		return
	}

	idx := -1
	for i := len(t.openEvents) - 1; i >= 0; i-- {
		if t.openEvents[i] == h {
			idx = i
			break
		}
	}

	if idx < 0 {
		t.logf("event %s is not open on this transaction", h.event.Name)
		return
	}

	for len(t.openEvents) > idx {
		t.finishTopEventLocked()
	}
}

// finishTopEventLocked closes the most recently started open event and
// attributes its totals to its parent.
func (t *Transaction) finishTopEventLocked() {
	h := t.openEvents[len(t.openEvents)-1]
	t.openEvents = t.openEvents[:len(t.openEvents)-1]
	h.finished = true

	ev := h.event
	ev.Duration = t.backend.Now().Sub(h.startedAt)
	if ev.Duration < 0 {
		ev.Duration = 0
	}

	ev.AllocationCount = t.backend.AllocationCount() - h.startAlloc
	ev.GCDuration = t.backend.GCDuration() - h.startGC
	ev.ChildDuration = h.childDuration
	ev.ChildAllocationCount = h.childAlloc
	ev.ChildGCDuration = h.childGC

	t.events = append(t.events, ev)

	if n := len(t.openEvents); n > 0 {
		parent := t.openEvents[n-1]
		parent.childDuration += ev.Duration
		parent.childAlloc += ev.AllocationCount
		parent.childGC += ev.GCDuration
	}
}

// Complete finalizes the transaction. Any still-open events are finished,
// the transaction is removed from its registry, and the resulting snapshot
// is delivered to every sink registered on the registry. Complete is
// idempotent; calls after the first are no-ops.
func (t *Transaction) Complete() {
	if t == nil {
		return
	}

	t.mu.Lock()

	if t.state != stateOpen {
		t.mu.Unlock()
		return
	}

	t.state = stateCompleting

	for len(t.openEvents) > 0 {
		t.finishTopEventLocked()
	}

	t.duration = t.backend.Now().Sub(t.startedAt)
	t.state = stateClosed
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if t.registry != nil {
		t.registry.Remove(t.ctxKey)
		t.registry.deliver(snap)
	}
}

// Age returns how long the transaction has been running.
func (t *Transaction) Age() time.Duration {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == stateClosed {
		return t.duration
	}

	return t.backend.Now().Sub(t.startedAt)
}

// mutableLocked reports whether the transaction still accepts mutation.
// Mutation after Complete is dropped with a warning rather than surfaced,
// so a late-running callback can never crash the application it runs in.
func (t *Transaction) mutableLocked(op string) bool {
	if t.state == stateOpen {
		return true
	}

	t.logf("%s on transaction %s dropped: %v", op, t.id, ErrTransactionClosed)

	return false
}

func (t *Transaction) logf(format string, args ...any) {
	if t.logger == nil {
		return
	}

	t.logger.Printf(format, args...)
}
