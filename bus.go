package tonika

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/tonika-music/tonika/internal/eventlog"
	"github.com/tonika-music/tonika/internal/registry"
	"github.com/tonika-music/tonika/pkg/slogx"
)

// DefaultHistoryCapacity is the bound of the event history log unless
// overridden with WithHistoryCapacity.
const DefaultHistoryCapacity = 1000

// ErrWaitTimeout is returned by WaitFor when the deadline elapses before a
// matching event is emitted. It is distinguishable from context cancellation.
var ErrWaitTimeout = errors.New("timed out waiting for event")

var (
	// WithHistoryCapacity overrides the bound of the event history ring.
	WithHistoryCapacity = opts.ForName[Bus, int]("historyCap")
	// WithLogger sets the logger used for dispatch and registry logging.
	// Defaults to slog.Default().
	WithLogger = opts.ForName[Bus, *slog.Logger]("log")
)

type subscription struct {
	id      string
	handler Handler
	once    bool
	fired   sync.Once
}

type waiter struct {
	ch chan Event
}

// Bus is the central event broker. All methods are safe for concurrent use.
//
// Every emit appends the event to a bounded history log, fans it out
// synchronously to a snapshot of the subscribers registered at emit time, and
// then resolves every pending WaitFor registration for that type. Handlers may
// call back into the bus re-entrantly.
type Bus struct {
	mu       sync.Mutex
	handlers map[string]*orderedmap.OrderedMap[string, *subscription]
	waiters  map[string][]*waiter
	history  *eventlog.Ring[Event]
	modules  registry.Registry[*Module]

	historyCap int
	log        *slog.Logger
}

// New creates an independent bus. Production code is expected to create one
// bus per process and hand it to every module; tests create as many as they
// need for isolation.
func New(options ...opts.Option[Bus]) *Bus {
	b := &Bus{
		handlers:   make(map[string]*orderedmap.OrderedMap[string, *subscription]),
		waiters:    make(map[string][]*waiter),
		historyCap: DefaultHistoryCapacity,
		log:        slog.Default(),
	}
	if err := opts.Apply(b, options); err != nil {
		panic(err)
	}
	b.history = eventlog.New[Event](b.historyCap)
	b.modules = registry.New[*Module]()
	return b
}

var (
	defaultMu  sync.Mutex
	defaultBus *Bus
)

// Default returns the process-wide bus, constructing it on first use.
// Subsequent calls return the same instance.
func Default() *Bus {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBus == nil {
		defaultBus = New()
	}
	return defaultBus
}

// ResetDefault discards the process-wide bus so the next Default call builds a
// fresh one. It exists for test isolation only.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultBus = nil
}

// Emit publishes an event with anonymous provenance. Equivalent to
// EmitFrom(eventType, payload, "unknown", "0.0.0").
func (b *Bus) Emit(eventType string, payload any) {
	b.EmitFrom(eventType, payload, "unknown", "0.0.0")
}

// EmitFrom publishes an event on behalf of the named source. The event is
// appended to the history log, delivered synchronously to every handler
// subscribed at the time of the call, and finally used to resolve every
// pending WaitFor registration for the type. A panicking handler is logged
// and does not stop the remaining handlers, the waiter resolutions, or the
// caller.
func (b *Bus) EmitFrom(eventType string, payload any, source, version string) {
	evt := Event{Type: eventType, Payload: payload, Meta: newMetadata(source, version)}

	b.mu.Lock()
	b.history.Append(evt)
	var snapshot []*subscription
	if subs, ok := b.handlers[eventType]; ok {
		snapshot = make([]*subscription, 0, subs.Len())
		for pair := subs.Oldest(); pair != nil; pair = pair.Next() {
			snapshot = append(snapshot, pair.Value)
		}
	}
	pending := b.waiters[eventType]
	delete(b.waiters, eventType)
	b.mu.Unlock()

	b.log.Debug("emit", slogx.EventType(eventType), slog.String("source", source))

	for _, sub := range snapshot {
		b.dispatch(sub, evt)
	}
	for _, w := range pending {
		// each waiter is claimed exactly once and the channel is buffered,
		// so this never blocks
		w.ch <- evt
	}
}

func (b *Bus) dispatch(sub *subscription, evt Event) {
	if sub.once {
		delivered := false
		sub.fired.Do(func() {
			delivered = true
			b.remove(evt.Type, sub.id)
		})
		if !delivered {
			return
		}
	}
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				slogx.EventType(evt.Type),
				slog.Any("panic", r),
			)
		}
	}()
	sub.handler(evt)
}

// Subscribe registers handler for eventType and returns an unsubscribe
// capability. Each call creates an independent subscription, even for the
// same function; the returned capability removes exactly that subscription
// and is an idempotent no-op after the first call.
func (b *Bus) Subscribe(eventType string, handler Handler) func() {
	return b.add(eventType, handler, false)
}

// Once registers handler for a single delivery: after its first invocation it
// is removed before the handler runs, so further emits of the type never reach
// it, including emits issued synchronously from inside the handler itself. The
// returned capability cancels the subscription early.
func (b *Bus) Once(eventType string, handler Handler) func() {
	return b.add(eventType, handler, true)
}

func (b *Bus) add(eventType string, handler Handler, once bool) func() {
	sub := &subscription{
		id:      uuid.Must(uuid.NewV7()).String(),
		handler: handler,
		once:    once,
	}

	b.mu.Lock()
	subs, ok := b.handlers[eventType]
	if !ok {
		subs = orderedmap.New[string, *subscription]()
		b.handlers[eventType] = subs
	}
	subs.Set(sub.id, sub)
	b.mu.Unlock()

	b.log.Debug("subscribe", slogx.EventType(eventType), slog.Bool("once", once))

	return func() { b.remove(eventType, sub.id) }
}

func (b *Bus) remove(eventType, id string) {
	b.mu.Lock()
	if subs, ok := b.handlers[eventType]; ok {
		// an empty table may be left behind after the last unsubscribe
		subs.Delete(id)
	}
	b.mu.Unlock()
}

// WaitFor blocks until the next emit of eventType and returns that event.
// A positive timeout bounds the wait and yields ErrWaitTimeout on expiry;
// timeout <= 0 waits until ctx is done. Every concurrent waiter for a type is
// resolved by the same next matching emit. If the wait is abandoned, the
// registration is removed so it can neither resolve nor leak; a resolution
// that was already claimed by an emit wins over a simultaneous timeout.
func (b *Bus) WaitFor(ctx context.Context, eventType string, timeout time.Duration) (Event, error) {
	w := &waiter{ch: make(chan Event, 1)}

	b.mu.Lock()
	b.waiters[eventType] = append(b.waiters[eventType], w)
	b.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case evt := <-w.ch:
		return evt, nil
	case <-expired:
		if evt, claimed := b.abandon(eventType, w); claimed {
			return evt, nil
		}
		return Event{}, fmt.Errorf("waiting for %q: %w", eventType, ErrWaitTimeout)
	case <-ctx.Done():
		if evt, claimed := b.abandon(eventType, w); claimed {
			return evt, nil
		}
		return Event{}, ctx.Err()
	}
}

// abandon removes w from the pending table. If an emit already claimed w, the
// resolution is taken from the channel instead and the claim wins.
func (b *Bus) abandon(eventType string, w *waiter) (Event, bool) {
	b.mu.Lock()
	pending := b.waiters[eventType]
	for i, cand := range pending {
		if cand == w {
			pending = slices.Delete(pending, i, i+1)
			if len(pending) == 0 {
				delete(b.waiters, eventType)
			} else {
				b.waiters[eventType] = pending
			}
			b.mu.Unlock()
			return Event{}, false
		}
	}
	b.mu.Unlock()
	return <-w.ch, true
}

// History returns the logged events in emission order, most recent last.
// A positive limit returns only the newest limit entries; limit <= 0 returns
// the full log. The slice is a copy; the events themselves are shared.
func (b *Bus) History(limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.Snapshot(limit)
}

// HistoryJSON renders History(limit) as a JSON array, for debug dumps.
func (b *Bus) HistoryJSON(limit int) ([]byte, error) {
	return json.Marshal(b.History(limit))
}

// ClearHistory drops every logged event.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.Clear()
}

// RegisterModule adds m to the module registry under its name, overwriting
// any previous entry. Called by NewModule; the registry reflects modules that
// exist, not modules that are ready.
func (b *Bus) RegisterModule(m *Module) {
	b.modules.Add(m.Name(), m)
	b.log.Info("module registered", slogx.Module(m.Name()), slog.String("version", m.Version()))
}

// UnregisterModule removes the named module from the registry. Unknown names
// are a no-op.
func (b *Bus) UnregisterModule(name string) {
	b.modules.Del(name)
	b.log.Info("module unregistered", slogx.Module(name))
}

// GetModule looks up a live module by name, for inspection only.
func (b *Bus) GetModule(name string) (*Module, bool) {
	return b.modules.Get(name)
}

// ModuleNames lists the names of every registered module.
func (b *Bus) ModuleNames() []string {
	return b.modules.Names()
}
