package trace

import "errors"

// Errors reported by the transaction bookkeeping. They are logged rather
// than returned to instrumented code, so that instrumentation can never
// alter the behavior of the application it observes.
var (
	// ErrInactive indicates that the instrumentation subsystem has not been
	// started, or has been shut down.
	ErrInactive = errors.New("instrumentation is not active")

	// ErrDuplicateID indicates that an execution context already holds an
	// open transaction with a conflicting correlation ID or namespace.
	ErrDuplicateID = errors.New("conflicting open transaction for context")

	// ErrTransactionClosed indicates a mutation attempted after Complete.
	ErrTransactionClosed = errors.New("transaction is already closed")
)
