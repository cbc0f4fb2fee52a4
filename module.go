package tonika

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fogfish/opts"

	"github.com/tonika-music/tonika/pkg/slogx"
)

// Reserved event types emitted by the lifecycle layer. Modules built against
// this contract depend on these exact tags.
const (
	EventModuleInitializing = "module:initializing"
	EventModuleReady        = "module:ready"
	EventModuleError        = "module:error"
	EventModuleDestroyed    = "module:destroyed"
)

// LifecycleDetail is the payload of every module:* lifecycle event.
type LifecycleDetail struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

var (
	// Version sets the module version reported in event metadata and
	// lifecycle payloads. Defaults to "0.0.0".
	Version = opts.ForName[Module, string]("version")
	// Description sets a human-readable module description.
	Description = opts.ForName[Module, string]("description")
)

// OnInit installs the module's initialization hook, run by Init between the
// module:initializing and module:ready transitions.
func OnInit(hook func(context.Context) error) opts.Option[Module] {
	return opts.Type[Module](func(m *Module) error {
		m.initHook = hook
		return nil
	})
}

// OnDestroy installs a teardown hook, run by Destroy after the module's
// subscriptions are removed and before module:destroyed is emitted.
func OnDestroy(hook func()) opts.Option[Module] {
	return opts.Type[Module](func(m *Module) error {
		m.destroyHook = hook
		return nil
	})
}

// Module is the lifecycle shell for a bus-connected component. It tracks the
// component's status, stamps its name and version onto everything it emits,
// and accumulates the unsubscribe capabilities needed to tear it down cleanly.
//
// Components never hold references to each other; they hold a *Module and
// speak through the bus.
type Module struct {
	name        string
	version     string
	description string
	initHook    func(context.Context) error
	destroyHook func()

	bus *Bus
	log *slog.Logger

	mu     sync.Mutex
	status ModuleStatus
	unsubs []func()
}

// NewModule creates a module bound to bus and registers it into the bus
// module registry immediately, before any initialization runs: the registry
// reflects modules that exist, not modules that are ready.
func NewModule(bus *Bus, name string, options ...opts.Option[Module]) (*Module, error) {
	m := &Module{
		name:    name,
		version: "0.0.0",
		bus:     bus,
		status:  StatusUninitialized,
	}
	if err := opts.Apply(m, options); err != nil {
		return nil, fmt.Errorf("creating module %q: %w", name, err)
	}
	m.log = bus.log.With(slogx.Module(name))
	bus.RegisterModule(m)
	return m, nil
}

// Init drives the module through its startup transitions: it marks the module
// initializing, emits module:initializing, runs the OnInit hook, and on
// success marks the module ready and emits module:ready. A hook error marks
// the module failed, emits module:error carrying the error detail, and is
// returned to the caller.
//
// Init is not re-entrant; calling it a second time on the same module is
// outside the contract.
func (m *Module) Init(ctx context.Context) error {
	m.setStatus(StatusInitializing)
	m.emitLifecycle(EventModuleInitializing, nil)

	if m.initHook != nil {
		if err := m.initHook(ctx); err != nil {
			m.setStatus(StatusError)
			m.emitLifecycle(EventModuleError, err)
			m.log.Error("module init failed", slogx.Error(err))
			return fmt.Errorf("initializing module %q: %w", m.name, err)
		}
	}

	m.setStatus(StatusReady)
	m.emitLifecycle(EventModuleReady, nil)
	m.log.Info("module ready")
	return nil
}

// Destroy tears the module down: it removes every subscription the module
// made, runs the OnDestroy hook, emits module:destroyed while the module can
// still be resolved through the registry, unregisters it, and marks it
// destroyed.
func (m *Module) Destroy() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if m.destroyHook != nil {
		m.destroyHook()
	}

	m.Emit(EventModuleDestroyed, LifecycleDetail{
		Name:    m.name,
		Version: m.version,
		Status:  StatusDestroyed.String(),
	})
	m.bus.UnregisterModule(m.name)
	m.setStatus(StatusDestroyed)
	m.log.Info("module destroyed")
}

// Emit publishes an event stamped with this module's name and version.
func (m *Module) Emit(eventType string, payload any) {
	m.bus.EmitFrom(eventType, payload, m.name, m.version)
}

// Subscribe registers handler on the bus and tracks the unsubscribe
// capability so Destroy can clean it up. The capability is also returned for
// callers that want to unsubscribe earlier.
func (m *Module) Subscribe(eventType string, handler Handler) func() {
	unsub := m.bus.Subscribe(eventType, handler)
	m.track(unsub)
	return unsub
}

// Once registers a single-delivery handler, tracked like Subscribe.
func (m *Module) Once(eventType string, handler Handler) func() {
	unsub := m.bus.Once(eventType, handler)
	m.track(unsub)
	return unsub
}

func (m *Module) track(unsub func()) {
	m.mu.Lock()
	m.unsubs = append(m.unsubs, unsub)
	m.mu.Unlock()
}

// WaitFor blocks until the next emit of eventType, with the same timeout and
// cancellation semantics as Bus.WaitFor. Typically used inside OnInit hooks
// to sequence startup on other modules.
func (m *Module) WaitFor(ctx context.Context, eventType string, timeout time.Duration) (Event, error) {
	return m.bus.WaitFor(ctx, eventType, timeout)
}

func (m *Module) Name() string        { return m.name }
func (m *Module) Version() string     { return m.version }
func (m *Module) Description() string { return m.description }

// Status returns the module's current lifecycle state.
func (m *Module) Status() ModuleStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Module) setStatus(s ModuleStatus) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Info is a point-in-time snapshot of a module's identity and state.
type Info struct {
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Description string       `json:"description"`
	Status      ModuleStatus `json:"status"`
}

// Info returns a snapshot of the module for inspection and debug output.
func (m *Module) Info() Info {
	return Info{
		Name:        m.name,
		Version:     m.version,
		Description: m.description,
		Status:      m.Status(),
	}
}

func (m *Module) emitLifecycle(eventType string, cause error) {
	detail := LifecycleDetail{
		Name:    m.name,
		Version: m.version,
		Status:  m.Status().String(),
	}
	if cause != nil {
		detail.Error = cause.Error()
	}
	m.Emit(eventType, detail)
}
