package trace

// A Sink consumes the snapshots of completed transactions. The recording
// backend implements Sink; tests use lightweight fakes.
//
// Record is called from the goroutine that completes the transaction, after
// the transaction has been removed from the registry. Implementations that
// do slow work should buffer internally.
type Sink interface {
	Record(snapshot Snapshot)
}
