// Package agent assembles the instrumentation core into a process-wide
// service: the transaction registry, the hook runtime, the recording
// backend, and the monitoring server.
package agent

import (
	"log"
	"os"
	"sync"

	"github.com/pulselab/pulse/hooks"
	"github.com/pulselab/pulse/monitoring"
	"github.com/pulselab/pulse/probe"
	"github.com/pulselab/pulse/recording"
	"github.com/pulselab/pulse/trace"
)

// An Agent owns the instrumentation state of one process. Hooks are
// pass-throughs until Start is called and become pass-throughs again after
// Terminate.
type Agent struct {
	id  string
	cfg Config

	backend   probe.Backend
	registry  *trace.Registry
	runtime   *hooks.Runtime
	hookTable *hooks.Table
	recorder  recording.DataRecorder
	snapshots *recording.SnapshotRecorder
	monitor   *monitoring.Monitor
	logger    *log.Logger

	mu         sync.Mutex
	started    bool
	terminated bool
}

// ID returns the unique ID of this agent run.
func (a *Agent) ID() string {
	return a.id
}

// Config returns the configuration the agent was built with.
func (a *Agent) Config() Config {
	return a.cfg
}

// Registry returns the transaction registry.
func (a *Agent) Registry() *trace.Registry {
	return a.registry
}

// Runtime returns the hook runtime.
func (a *Agent) Runtime() *hooks.Runtime {
	return a.runtime
}

// Monitor returns the monitoring server, or nil when monitoring is off.
func (a *Agent) Monitor() *monitoring.Monitor {
	return a.monitor
}

// DataRecorder returns the recording backend, or nil when recording is off.
func (a *Agent) DataRecorder() recording.DataRecorder {
	return a.recorder
}

// RegisterHook registers a hook, installing it when its dependency probe
// passes.
func (a *Agent) RegisterHook(h hooks.Hook) {
	a.hookTable.Register(h)
}

// InstalledHooks returns the names of the installed hooks.
func (a *Agent) InstalledHooks() []string {
	return a.hookTable.Installed()
}

// Start activates instrumentation. It is called once per process; later
// calls are no-ops. A terminated agent cannot be restarted.
func (a *Agent) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started || a.terminated {
		a.logger.Printf("agent start ignored: already started or terminated")
		return
	}

	if !a.cfg.Active {
		a.logger.Printf("agent is configured inactive, not starting")
		return
	}

	a.started = true
	a.runtime.Activate()

	if a.monitor != nil {
		a.monitor.StartServer()
	}
}

// Terminate deactivates instrumentation, flushes recorded data, and shuts
// down the monitoring server. It is idempotent.
func (a *Agent) Terminate() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminated {
		return
	}

	a.terminated = true
	a.started = false
	a.runtime.Deactivate()

	if a.monitor != nil {
		a.monitor.StopServer()
	}

	if a.recorder != nil {
		err := a.recorder.Close()
		if err != nil {
			a.logger.Printf("failed to close recorder: %v", err)
		}
	}
}

// Started reports whether the agent is currently active.
func (a *Agent) Started() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.started
}

func defaultLogger() *log.Logger {
	return log.New(os.Stderr, "", log.LstdFlags)
}
