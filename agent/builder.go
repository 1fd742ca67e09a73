package agent

import (
	"github.com/rs/xid"

	"github.com/pulselab/pulse/hooks"
	"github.com/pulselab/pulse/monitoring"
	"github.com/pulselab/pulse/probe"
	"github.com/pulselab/pulse/recording"
	"github.com/pulselab/pulse/trace"
)

// Builder can be used to build an agent.
type Builder struct {
	cfg         Config
	cfgSet      bool
	monitorOff  bool
	recordingOn bool
	backend     probe.Backend
}

// MakeBuilder creates a new builder with recording enabled.
func MakeBuilder() Builder {
	return Builder{
		recordingOn: true,
	}
}

// WithConfig sets the configuration instead of resolving it from the
// environment.
func (b Builder) WithConfig(cfg Config) Builder {
	b.cfg = cfg
	b.cfgSet = true
	return b
}

// WithoutMonitoring disables the monitoring server.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOff = true
	return b
}

// WithoutRecording disables the sqlite recording backend. Snapshots are
// still delivered to sinks registered on the registry.
func (b Builder) WithoutRecording() Builder {
	b.recordingOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.cfg.MonitorPort = port
	return b
}

// WithOutputFileName sets a custom output file name for the recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.cfg.OutputFileName = filename
	return b
}

// WithBackend replaces the timing/counter backend. Mainly used in tests.
func (b Builder) WithBackend(backend probe.Backend) Builder {
	b.backend = backend
	return b
}

// Build builds the agent.
func (b Builder) Build() *Agent {
	cfg := b.cfg
	if !b.cfgSet {
		envCfg := ConfigFromEnv()

		if cfg.MonitorPort != 0 {
			envCfg.MonitorPort = cfg.MonitorPort
		}

		if cfg.OutputFileName != "" {
			envCfg.OutputFileName = cfg.OutputFileName
		}

		cfg = envCfg
	}

	if b.monitorOff {
		cfg.MonitorOn = false
	}

	backend := b.backend
	if backend == nil {
		backend = probe.NewBackend()
	}

	a := &Agent{
		id:      xid.New().String(),
		cfg:     cfg,
		backend: backend,
		logger:  defaultLogger(),
	}

	a.registry = trace.NewRegistry(backend)
	a.runtime = hooks.NewRuntime(a.registry)
	a.hookTable = hooks.NewTable(a.runtime)

	if b.recordingOn {
		outputPath := cfg.OutputFileName
		if outputPath == "" {
			outputPath = "pulse_trace_" + a.id
		}

		a.recorder = recording.NewDataRecorder(outputPath)
		a.snapshots = recording.NewSnapshotRecorder(a.recorder)
		a.registry.AcceptSink(a.snapshots)
	}

	if cfg.MonitorOn {
		a.monitor = monitoring.NewMonitor()
		if cfg.MonitorPort > 0 {
			a.monitor.WithPortNumber(cfg.MonitorPort)
		}

		a.monitor.RegisterRegistry(a.registry)
		a.monitor.RegisterRuntime(a.runtime)
	}

	return a
}
