package hooks

import (
	"errors"
	"log"
	"os"
	"sync"
)

// A Hook instruments the lifecycle callbacks of one target framework.
// DependenciesPresent probes whether the target is usable in this process;
// hooks whose probe fails are skipped at registration time, without error.
type Hook interface {
	Name() string
	DependenciesPresent() bool
	Install(rt *Runtime) error
}

// A Table registers hooks against a runtime, installing only those whose
// dependency probe passes. Installation failures are logged and recorded,
// never propagated: a broken hook must not take the application down.
type Table struct {
	rt     *Runtime
	logger *log.Logger

	mu        sync.Mutex
	installed []string
	skipped   []string
}

// NewTable creates a hook table over the given runtime.
func NewTable(rt *Runtime) *Table {
	return &Table{
		rt:     rt,
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// SetLogger replaces the logger used for registration messages.
func (t *Table) SetLogger(l *log.Logger) {
	t.logger = l
}

// Register installs the hook when its dependency probe passes, and records
// it as skipped otherwise.
func (t *Table) Register(h Hook) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !h.DependenciesPresent() {
		t.logger.Printf("hook %s skipped: dependencies not present", h.Name())
		t.skipped = append(t.skipped, h.Name())

		return
	}

	if err := h.Install(t.rt); err != nil {
		t.logger.Printf("hook %s failed to install: %v", h.Name(), err)
		t.skipped = append(t.skipped, h.Name())

		return
	}

	t.installed = append(t.installed, h.Name())
}

// Installed returns the names of the hooks that were installed.
func (t *Table) Installed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]string(nil), t.installed...)
}

// Skipped returns the names of the hooks that were not installed.
func (t *Table) Skipped() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]string(nil), t.skipped...)
}

// ErrNoInstallTarget is returned by hooks that were registered without a
// place to attach their instrumenter.
var ErrNoInstallTarget = errors.New("hook has no install target")
