package hooks

import (
	"github.com/pulselab/pulse/trace"
)

// A ChannelInstrumenter wraps the lifecycle callbacks of a realtime channel
// (subscribe, perform action, unsubscribe) into transactions in the channel
// namespace. All callbacks on one connection share a correlation ID: the
// connection's request token when it has one, or a single generated ID
// otherwise.
type ChannelInstrumenter struct {
	rt *Runtime
}

// NewChannelInstrumenter creates a ChannelInstrumenter on the runtime.
func NewChannelInstrumenter(rt *Runtime) *ChannelInstrumenter {
	return &ChannelInstrumenter{rt: rt}
}

// Subscribed observes a channel subscription callback.
func (ci *ChannelInstrumenter) Subscribed(
	conn Conn,
	channel string,
	fn func(tx *trace.Transaction) error,
) error {
	return ci.rt.WrapLifecycle(
		conn,
		trace.NamespaceChannel,
		"subscribed.channel",
		channel+"#subscribed",
		fn,
	)
}

// PerformAction observes an action callback. The action's parameters are
// stored in the "params" sample-data bucket of the transaction.
func (ci *ChannelInstrumenter) PerformAction(
	conn Conn,
	channel string,
	action string,
	params map[string]any,
	fn func(tx *trace.Transaction) error,
) error {
	return ci.rt.WrapLifecycle(
		conn,
		trace.NamespaceChannel,
		"perform_action.channel",
		channel+"#"+action,
		func(tx *trace.Transaction) error {
			tx.SetSampleData("params", params)

			return fn(tx)
		},
	)
}

// Unsubscribed observes a channel unsubscription callback. The connection's
// generated correlation ID is released afterwards, since unsubscription ends
// the connection's lifecycle.
func (ci *ChannelInstrumenter) Unsubscribed(
	conn Conn,
	channel string,
	fn func(tx *trace.Transaction) error,
) error {
	defer ci.rt.ReleaseConn(conn)

	return ci.rt.WrapLifecycle(
		conn,
		trace.NamespaceChannel,
		"unsubscribed.channel",
		channel+"#unsubscribed",
		fn,
	)
}

// A ChannelHook installs channel instrumentation when the host framework
// exposes channel callbacks. Detect probes for the framework; OnInstall
// receives the instrumenter to attach to it.
type ChannelHook struct {
	Detect    func() bool
	OnInstall func(*ChannelInstrumenter)
}

// Name returns the hook name.
func (h *ChannelHook) Name() string {
	return "channel"
}

// DependenciesPresent reports whether the target framework is usable.
func (h *ChannelHook) DependenciesPresent() bool {
	if h.Detect == nil {
		return false
	}

	return h.Detect()
}

// Install hands the instrumenter to the host framework.
func (h *ChannelHook) Install(rt *Runtime) error {
	if h.OnInstall == nil {
		return ErrNoInstallTarget
	}

	h.OnInstall(NewChannelInstrumenter(rt))

	return nil
}
