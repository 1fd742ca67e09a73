package trace_test

import (
	"bytes"
	"fmt"
	"log"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/pulselab/pulse/probe"
	"github.com/pulselab/pulse/trace"
)

var _ = Describe("Registry", func() {
	var (
		mockCtrl *gomock.Controller
		backend  *probe.ManualBackend
		registry *trace.Registry
		logBuf   *bytes.Buffer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		backend = probe.NewManualBackend()
		registry = trace.NewRegistry(backend)

		logBuf = &bytes.Buffer{}
		registry.SetLogger(log.New(logBuf, "", 0))
	})

	It("should create a transaction for a new context", func() {
		tx, created := registry.FetchOrCreate(
			"conn-1", "id-1", trace.NamespaceChannel, nil)

		Expect(created).To(BeTrue())
		Expect(tx.ID()).To(Equal("id-1"))
		Expect(tx.Namespace()).To(Equal(trace.NamespaceChannel))
	})

	It("should reuse the open transaction of a context", func() {
		tx1, _ := registry.FetchOrCreate(
			"conn-1", "id-1", trace.NamespaceChannel, nil)
		tx2, created := registry.FetchOrCreate(
			"conn-1", "id-1", trace.NamespaceChannel, nil)

		Expect(created).To(BeFalse())
		Expect(tx2).To(BeIdenticalTo(tx1))
	})

	It("should keep the existing transaction on a conflicting request", func() {
		tx1, _ := registry.FetchOrCreate(
			"conn-1", "id-1", trace.NamespaceChannel,
			map[string]string{"path": "/cable"})
		tx2, created := registry.FetchOrCreate(
			"conn-1", "id-2", trace.NamespaceWebRequest,
			map[string]string{"path": "/other"})

		Expect(created).To(BeFalse())
		Expect(tx2).To(BeIdenticalTo(tx1))
		Expect(tx2.ID()).To(Equal("id-1"))
		Expect(tx2.Snapshot().Metadata).To(
			HaveKeyWithValue("path", "/cable"))
		Expect(logBuf.String()).To(
			ContainSubstring("conflicting open transaction"))
	})

	It("should report the current transaction", func() {
		_, ok := registry.Current("conn-1")
		Expect(ok).To(BeFalse())

		tx, _ := registry.FetchOrCreate(
			"conn-1", "id-1", trace.NamespaceChannel, nil)

		current, ok := registry.Current("conn-1")
		Expect(ok).To(BeTrue())
		Expect(current).To(BeIdenticalTo(tx))
	})

	It("should isolate distinct contexts", func() {
		tx1, _ := registry.FetchOrCreate(
			"conn-1", "id-1", trace.NamespaceChannel, nil)
		tx2, _ := registry.FetchOrCreate(
			"conn-2", "id-2", trace.NamespaceChannel, nil)

		Expect(tx1).NotTo(BeIdenticalTo(tx2))

		tx1.Complete()

		_, ok := registry.Current("conn-1")
		Expect(ok).To(BeFalse())

		current, ok := registry.Current("conn-2")
		Expect(ok).To(BeTrue())
		Expect(current).To(BeIdenticalTo(tx2))
	})

	It("should list the open transactions", func() {
		registry.FetchOrCreate("conn-1", "id-1", trace.NamespaceChannel, nil)
		registry.FetchOrCreate("conn-2", "id-2", trace.NamespaceWebRequest, nil)

		Expect(registry.Active()).To(HaveLen(2))
	})

	It("should deliver each completed transaction to sinks once", func() {
		sink := NewMockSink(mockCtrl)
		registry.AcceptSink(sink)

		tx, _ := registry.FetchOrCreate(
			"conn-1", "id-1", trace.NamespaceChannel, nil)

		sink.EXPECT().Record(gomock.Any()).Times(1)

		tx.Complete()
		tx.Complete()
	})

	It("should handle concurrent contexts independently", func() {
		collector := &snapshotCollector{}
		registry.AcceptSink(collector)

		var wg sync.WaitGroup

		for i := 0; i < 100; i++ {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				key := fmt.Sprintf("conn-%d", i)
				id := fmt.Sprintf("id-%d", i)

				tx, created := registry.FetchOrCreate(
					key, id, trace.NamespaceChannel, nil)
				Expect(created).To(BeTrue())

				h := tx.StartEvent("perform_action.channel", "", "", "")
				tx.FinishEvent(h)
				tx.Complete()
			}(i)
		}

		wg.Wait()

		Expect(collector.all()).To(HaveLen(100))
		Expect(registry.Active()).To(BeEmpty())
	})
})
