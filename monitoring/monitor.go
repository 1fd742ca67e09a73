// Package monitoring serves a live view of the instrumentation runtime over
// HTTP: open transactions, process resources, and on-demand CPU profiles.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	// Enable profiling endpoints.
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/pulselab/pulse/hooks"
	"github.com/pulselab/pulse/trace"
)

// Monitor turns a running agent into a server that allows external
// inspection of the instrumentation state.
type Monitor struct {
	registry   *trace.Registry
	runtime    *hooks.Runtime
	portNumber int

	listener net.Listener
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterRegistry registers the transaction registry to expose.
func (m *Monitor) RegisterRegistry(r *trace.Registry) {
	m.registry = r
}

// RegisterRuntime registers the hook runtime to expose.
func (m *Monitor) RegisterRuntime(rt *hooks.Runtime) {
	m.runtime = rt
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	r.HandleFunc("/api/status", m.status)
	r.HandleFunc("/api/transactions", m.listTransactions)
	r.HandleFunc("/api/transaction/{id}", m.transactionDetails)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/", m.serveIndex)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener

	fmt.Fprintf(
		os.Stderr,
		"Monitoring instrumentation with http://localhost:%d\n",
		listener.Addr().(*net.TCPAddr).Port)

	go func() {
		err = http.Serve(listener, r)
		if err != nil && err != http.ErrServerClosed {
			log.Panic(err)
		}
	}()
}

// URL returns the address the monitor is serving on. Empty before
// StartServer.
func (m *Monitor) URL() string {
	if m.listener == nil {
		return ""
	}

	return fmt.Sprintf(
		"http://localhost:%d", m.listener.Addr().(*net.TCPAddr).Port)
}

// OpenDashboard opens the monitor in the default browser.
func (m *Monitor) OpenDashboard() {
	url := m.URL()
	if url == "" {
		return
	}

	err := browser.OpenURL(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open dashboard: %v\n", err)
	}
}

// StopServer stops serving.
func (m *Monitor) StopServer() {
	if m.listener == nil {
		return
	}

	_ = m.listener.Close()
	m.listener = nil
}

func (m *Monitor) serveIndex(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, `<html><body><h1>Pulse</h1><ul>`+
		`<li><a href="/api/status">status</a></li>`+
		`<li><a href="/api/transactions">transactions</a></li>`+
		`<li><a href="/api/resource">resource</a></li>`+
		`</ul></body></html>`)
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	active := false
	if m.runtime != nil {
		active = m.runtime.Active()
	}

	openCount := 0
	if m.registry != nil {
		openCount = len(m.registry.Active())
	}

	fmt.Fprintf(w, `{"active":%t,"open_transactions":%d}`,
		active, openCount)
}

type transactionEntry struct {
	ID        string  `json:"id"`
	Namespace string  `json:"namespace"`
	Action    string  `json:"action"`
	Age       float64 `json:"age"`
}

func (m *Monitor) listTransactions(w http.ResponseWriter, _ *http.Request) {
	entries := []transactionEntry{}

	if m.registry != nil {
		for _, tx := range m.registry.Active() {
			entries = append(entries, transactionEntry{
				ID:        tx.ID(),
				Namespace: string(tx.Namespace()),
				Action:    tx.Action(),
				Age:       tx.Age().Seconds(),
			})
		}
	}

	b, err := json.Marshal(entries)
	dieOnErr(err)

	_, err = w.Write(b)
	dieOnErr(err)
}

func (m *Monitor) transactionDetails(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tx := m.findTransactionOr404(w, id)
	if tx == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(tx.Snapshot())
	serializer.SetMaxDepth(3)

	err := serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findTransactionOr404(
	w http.ResponseWriter,
	id string,
) *trace.Transaction {
	if m.registry != nil {
		for _, tx := range m.registry.Active() {
			if tx.ID() == id {
				return tx
			}
		}
	}

	w.WriteHeader(http.StatusNotFound)

	return nil
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memoryInfo, err := proc.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	}

	b, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(b)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	b, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(b)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
