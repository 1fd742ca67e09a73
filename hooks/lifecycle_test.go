package hooks_test

import (
	"log"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pulselab/pulse/hooks"
	"github.com/pulselab/pulse/probe"
	"github.com/pulselab/pulse/trace"
)

// fakeConn is a connection with a fixed identity and optional request token.
type fakeConn struct {
	key       string
	requestID string
	method    string
	path      string
}

func (c *fakeConn) Key() string             { return c.key }
func (c *fakeConn) RequestID() string       { return c.requestID }
func (c *fakeConn) TransportMethod() string { return c.method }
func (c *fakeConn) Path() string            { return c.path }

// snapshotCollector keeps every snapshot delivered by the registry.
type snapshotCollector struct {
	mu    sync.Mutex
	snaps []trace.Snapshot
}

func (c *snapshotCollector) Record(s trace.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snaps = append(c.snaps, s)
}

func (c *snapshotCollector) all() []trace.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]trace.Snapshot(nil), c.snaps...)
}

type runtimeError struct {
	msg string
}

func (e *runtimeError) Error() string {
	return e.msg
}

var _ = Describe("Runtime", func() {
	var (
		backend   *probe.ManualBackend
		registry  *trace.Registry
		collector *snapshotCollector
		rt        *hooks.Runtime
		conn      *fakeConn
	)

	BeforeEach(func() {
		backend = probe.NewManualBackend()
		registry = trace.NewRegistry(backend)
		registry.SetLogger(log.New(GinkgoWriter, "", 0))

		collector = &snapshotCollector{}
		registry.AcceptSink(collector)

		rt = hooks.NewRuntime(registry)
		rt.SetLogger(log.New(GinkgoWriter, "", 0))
		rt.Activate()

		conn = &fakeConn{
			key:    "conn-1",
			method: "websocket",
			path:   "/cable",
		}
	})

	It("should pass the callback through when inactive", func() {
		rt.Deactivate()

		invoked := false
		err := rt.WrapLifecycle(
			conn, trace.NamespaceChannel, "perform_action.channel",
			"MyChannel#speak",
			func(tx *trace.Transaction) error {
				invoked = true
				Expect(tx).To(BeNil())

				// Writes to a nil transaction must not break the callback.
				tx.SetSampleData("params", 1)

				return nil
			})

		Expect(err).NotTo(HaveOccurred())
		Expect(invoked).To(BeTrue())
		Expect(collector.all()).To(BeEmpty())
	})

	It("should use the external correlation token when present", func() {
		conn.requestID = "abc-123"

		err := rt.WrapLifecycle(
			conn, trace.NamespaceChannel, "perform_action.channel",
			"MyChannel#speak",
			func(tx *trace.Transaction) error { return nil })

		Expect(err).NotTo(HaveOccurred())

		snaps := collector.all()
		Expect(snaps).To(HaveLen(1))
		Expect(snaps[0].ID).To(Equal("abc-123"))
	})

	It("should generate one correlation ID per connection", func() {
		id1 := rt.CorrelationID(conn)
		id2 := rt.CorrelationID(conn)

		Expect(id1).NotTo(BeEmpty())
		Expect(id2).To(Equal(id1))

		other := &fakeConn{key: "conn-2"}
		Expect(rt.CorrelationID(other)).NotTo(Equal(id1))
	})

	It("should forget a released connection", func() {
		id1 := rt.CorrelationID(conn)
		rt.ReleaseConn(conn)

		Expect(rt.CorrelationID(conn)).NotTo(Equal(id1))
	})

	It("should capture connection metadata on the transaction", func() {
		_ = rt.WrapLifecycle(
			conn, trace.NamespaceChannel, "subscribed.channel",
			"MyChannel#subscribed",
			func(tx *trace.Transaction) error { return nil })

		meta := collector.all()[0].Metadata
		Expect(meta).To(HaveKeyWithValue("method", "websocket"))
		Expect(meta).To(HaveKeyWithValue("path", "/cable"))
	})

	It("should record the callback as one timed event", func() {
		_ = rt.WrapLifecycle(
			conn, trace.NamespaceChannel, "perform_action.channel",
			"MyChannel#speak",
			func(tx *trace.Transaction) error {
				backend.Advance(25 * time.Millisecond)

				return nil
			})

		events := collector.all()[0].Events
		Expect(events).To(HaveLen(1))
		Expect(events[0].Name).To(Equal("perform_action.channel"))
		Expect(events[0].Duration).To(Equal(25 * time.Millisecond))
	})

	It("should propagate the callback error unchanged", func() {
		cause := &runtimeError{msg: "oh no!"}

		err := rt.WrapLifecycle(
			conn, trace.NamespaceChannel, "perform_action.channel",
			"MyChannel#speak",
			func(tx *trace.Transaction) error { return cause })

		Expect(err).To(BeIdenticalTo(cause))

		snaps := collector.all()
		Expect(snaps).To(HaveLen(1))
		Expect(snaps[0].Error).NotTo(BeNil())
		Expect(snaps[0].Error.Name).To(ContainSubstring("runtimeError"))
		Expect(snaps[0].Error.Message).To(Equal("oh no!"))

		// The event is still recorded with a valid duration.
		Expect(snaps[0].Events).To(HaveLen(1))
		Expect(snaps[0].Events[0].Duration).To(
			BeNumerically(">=", time.Duration(0)))
	})

	It("should capture a panic and re-panic after finalizing", func() {
		Expect(func() {
			_ = rt.WrapLifecycle(
				conn, trace.NamespaceChannel, "perform_action.channel",
				"MyChannel#speak",
				func(tx *trace.Transaction) error {
					panic(&runtimeError{msg: "boom"})
				})
		}).To(PanicWith(BeAssignableToTypeOf(&runtimeError{})))

		snaps := collector.all()
		Expect(snaps).To(HaveLen(1))
		Expect(snaps[0].Error).NotTo(BeNil())
		Expect(snaps[0].Error.Message).To(Equal("boom"))
		Expect(snaps[0].Events).To(HaveLen(1))
	})

	It("should reuse the open transaction for nested invocations", func() {
		err := rt.WrapLifecycle(
			conn, trace.NamespaceChannel, "perform_action.channel",
			"MyChannel#speak",
			func(outer *trace.Transaction) error {
				return rt.WrapLifecycle(
					conn, trace.NamespaceChannel, "sql.query",
					"MyChannel#nested",
					func(inner *trace.Transaction) error {
						Expect(inner).To(BeIdenticalTo(outer))

						return nil
					})
			})

		Expect(err).NotTo(HaveOccurred())

		snaps := collector.all()
		Expect(snaps).To(HaveLen(1))
		Expect(snaps[0].Action).To(Equal("MyChannel#speak"))
		Expect(snaps[0].Events).To(HaveLen(2))
		Expect(snaps[0].Events[0].Name).To(Equal("sql.query"))
		Expect(snaps[0].Events[1].Name).To(Equal("perform_action.channel"))
	})
})
