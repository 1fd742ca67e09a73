// Package hooks wraps framework lifecycle callbacks into correlated,
// recorded transactions. Adapters observe a callback, open or reuse the
// transaction for its connection, record the callback as one timed event,
// capture failures, and finalize the transaction, all without ever changing
// the behavior of the wrapped code.
package hooks

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/pulselab/pulse/trace"
)

// A Conn is the connection/request abstraction adapters observe. The key
// identifies the logical execution context; the request ID carries the
// externally supplied correlation token, or "" when the callback did not
// originate from an HTTP request.
type Conn interface {
	Key() string
	RequestID() string
	TransportMethod() string
	Path() string
}

// A Runtime holds the state shared by all installed hooks: the activation
// flag, the transaction registry, and the correlation IDs generated for
// connections that carry no external token.
type Runtime struct {
	active   atomic.Bool
	registry *trace.Registry
	logger   *log.Logger

	// connIDs maps a connection key to the correlation ID generated for it.
	// All callbacks on one connection share a single generated ID.
	connIDs sync.Map
}

// NewRuntime creates a Runtime over the given registry. The runtime starts
// inactive; hooks pass callbacks through untouched until Activate is called.
func NewRuntime(registry *trace.Registry) *Runtime {
	return &Runtime{
		registry: registry,
		logger:   log.New(os.Stderr, "", log.LstdFlags),
	}
}

// SetLogger replaces the logger used for hook bookkeeping warnings.
func (rt *Runtime) SetLogger(l *log.Logger) {
	rt.logger = l
}

// Activate enables instrumentation. It is called once per process, after
// the agent has been started.
func (rt *Runtime) Activate() {
	rt.active.Store(true)
}

// Deactivate disables instrumentation. Hooks become pass-throughs again.
func (rt *Runtime) Deactivate() {
	rt.active.Store(false)
}

// Active reports whether instrumentation is enabled.
func (rt *Runtime) Active() bool {
	return rt.active.Load()
}

// Registry returns the transaction registry the runtime records into.
func (rt *Runtime) Registry() *trace.Registry {
	return rt.registry
}

// CorrelationID resolves the correlation ID for a connection: the external
// request token when present, otherwise an ID generated on first use for the
// connection and reused by every later callback on it.
func (rt *Runtime) CorrelationID(conn Conn) string {
	if token := conn.RequestID(); token != "" {
		return token
	}

	id, _ := rt.connIDs.LoadOrStore(conn.Key(), xid.New().String())

	return id.(string)
}

// ReleaseConn forgets the generated correlation ID of a connection. Called
// when the connection's lifecycle ends.
func (rt *Runtime) ReleaseConn(conn Conn) {
	rt.connIDs.Delete(conn.Key())
}

// WrapLifecycle observes one framework lifecycle callback as one top-level
// event inside the connection's transaction.
//
// The callback's error or panic is captured into the transaction and then
// propagated unchanged; event finish and transaction completion run on a
// deferred path so finalization survives failures. Nested invocations on the
// same connection reuse the open transaction and leave completion to the
// invocation that created it. When instrumentation is inactive the callback
// runs directly, with a nil transaction.
func (rt *Runtime) WrapLifecycle(
	conn Conn,
	namespace trace.Namespace,
	eventName string,
	action string,
	fn func(tx *trace.Transaction) error,
) error {
	if !rt.Active() || rt.registry == nil {
		return fn(nil)
	}

	id := rt.CorrelationID(conn)
	metadata := map[string]string{
		"method": conn.TransportMethod(),
		"path":   conn.Path(),
	}

	tx, created := rt.registry.FetchOrCreate(conn.Key(), id, namespace, metadata)
	tx.SetAction(action)

	h := tx.StartEvent(eventName, "", "", "")

	var err error

	defer func() {
		p := recover()
		if p != nil {
			tx.SetError(panicName(p), panicMessage(p), string(debug.Stack()))
		}

		tx.FinishEvent(h)

		if created {
			tx.Complete()
		}

		if p != nil {
			panic(p)
		}
	}()

	err = fn(tx)
	if err != nil {
		tx.NoticeError(err, string(debug.Stack()))
	}

	return err
}

func panicName(p any) string {
	if err, ok := p.(error); ok {
		return trace.ErrorName(err)
	}

	return fmt.Sprintf("panic(%T)", p)
}

func panicMessage(p any) string {
	if err, ok := p.(error); ok {
		return err.Error()
	}

	return fmt.Sprint(p)
}
