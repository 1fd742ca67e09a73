package monitoring

import (
	"encoding/json"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pulselab/pulse/hooks"
	"github.com/pulselab/pulse/probe"
	"github.com/pulselab/pulse/trace"
)

var _ = Describe("Monitor", func() {
	var (
		registry *trace.Registry
		runtime  *hooks.Runtime
		monitor  *Monitor
	)

	BeforeEach(func() {
		registry = trace.NewRegistry(probe.NewManualBackend())
		runtime = hooks.NewRuntime(registry)

		monitor = NewMonitor()
		monitor.RegisterRegistry(registry)
		monitor.RegisterRuntime(runtime)
	})

	It("should report the runtime status", func() {
		runtime.Activate()
		registry.FetchOrCreate("conn-1", "id-1", trace.NamespaceChannel, nil)

		w := httptest.NewRecorder()
		monitor.status(w, nil)

		Expect(w.Body.String()).To(
			MatchJSON(`{"active":true,"open_transactions":1}`))
	})

	It("should list open transactions", func() {
		tx, _ := registry.FetchOrCreate(
			"conn-1", "id-1", trace.NamespaceChannel, nil)
		tx.SetAction("MyChannel#speak")

		w := httptest.NewRecorder()
		monitor.listTransactions(w, nil)

		var entries []transactionEntry
		Expect(json.Unmarshal(w.Body.Bytes(), &entries)).To(Succeed())

		Expect(entries).To(HaveLen(1))
		Expect(entries[0].ID).To(Equal("id-1"))
		Expect(entries[0].Namespace).To(Equal("channel"))
		Expect(entries[0].Action).To(Equal("MyChannel#speak"))
	})

	It("should list no transactions when none are open", func() {
		w := httptest.NewRecorder()
		monitor.listTransactions(w, nil)

		Expect(w.Body.String()).To(MatchJSON(`[]`))
	})

	It("should fall back to a random port for privileged ports", func() {
		monitor.WithPortNumber(80)

		Expect(monitor.portNumber).To(Equal(0))
	})
})
