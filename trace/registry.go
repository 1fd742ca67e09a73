package trace

import (
	"hash/fnv"
	"log"
	"os"
	"sync"

	"github.com/pulselab/pulse/probe"
)

// registryShardCount trades memory for contention. Context keys are spread
// over this many independently locked maps so that unrelated connections
// never contend on transaction bookkeeping.
const registryShardCount = 64

// A Registry tracks the currently open transaction of every execution
// context. It guarantees at most one open transaction per context key, and
// serializes create/fetch/remove per key while letting unrelated keys
// proceed in parallel.
type Registry struct {
	backend probe.Backend
	logger  *log.Logger

	sinkLock sync.Mutex
	sinks    []Sink

	shards [registryShardCount]registryShard
}

type registryShard struct {
	mu   sync.RWMutex
	open map[string]*Transaction
}

// NewRegistry creates a Registry that timestamps transactions with the given
// backend.
func NewRegistry(backend probe.Backend) *Registry {
	r := &Registry{
		backend: backend,
		logger:  log.New(os.Stderr, "", log.LstdFlags),
	}

	for i := range r.shards {
		r.shards[i].open = make(map[string]*Transaction)
	}

	return r
}

// SetLogger replaces the logger used for bookkeeping warnings.
func (r *Registry) SetLogger(l *log.Logger) {
	r.logger = l
}

// AcceptSink registers a consumer for completed transaction snapshots.
func (r *Registry) AcceptSink(s Sink) {
	r.sinkLock.Lock()
	defer r.sinkLock.Unlock()

	r.sinks = append(r.sinks, s)
}

// FetchOrCreate returns the open transaction for the given context key,
// creating and registering one when none exists. The second return value
// reports whether this call created the transaction; only the creator should
// complete it.
//
// Requesting a different correlation ID or namespace than the one held by an
// already-open transaction is a caller programming error. The existing
// transaction and its metadata are kept, and the conflict is logged.
func (r *Registry) FetchOrCreate(
	ctxKey string,
	id string,
	namespace Namespace,
	metadata map[string]string,
) (*Transaction, bool) {
	shard := r.shard(ctxKey)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if tx, ok := shard.open[ctxKey]; ok {
		if tx.ID() != id || tx.Namespace() != namespace {
			r.logger.Printf(
				"%v: context %q holds %q (%s), requested %q (%s)",
				ErrDuplicateID,
				ctxKey, tx.ID(), tx.Namespace(), id, namespace)
		}

		return tx, false
	}

	tx := newTransaction(id, namespace, metadata, ctxKey, r, r.backend, r.logger)
	shard.open[ctxKey] = tx

	return tx, true
}

// Current returns the open transaction for the given context key, if any.
func (r *Registry) Current(ctxKey string) (*Transaction, bool) {
	shard := r.shard(ctxKey)

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	tx, ok := shard.open[ctxKey]

	return tx, ok
}

// Remove drops the open transaction of the given context key. It is called
// exactly once per transaction, by Transaction.Complete.
func (r *Registry) Remove(ctxKey string) {
	shard := r.shard(ctxKey)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.open, ctxKey)
}

// Active returns the transactions that are currently open, in no particular
// order. It is used by the monitoring server.
func (r *Registry) Active() []*Transaction {
	var active []*Transaction

	for i := range r.shards {
		shard := &r.shards[i]

		shard.mu.RLock()
		for _, tx := range shard.open {
			active = append(active, tx)
		}
		shard.mu.RUnlock()
	}

	return active
}

// deliver fans a completed snapshot out to the registered sinks.
func (r *Registry) deliver(snap Snapshot) {
	r.sinkLock.Lock()
	sinks := make([]Sink, len(r.sinks))
	copy(sinks, r.sinks)
	r.sinkLock.Unlock()

	for _, s := range sinks {
		s.Record(snap)
	}
}

func (r *Registry) shard(ctxKey string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ctxKey))

	return &r.shards[h.Sum32()%registryShardCount]
}
