/*
Package tonika provides an in-process publish/subscribe event bus that decouples
independently developed modules: components never call each other directly, all
interaction flows through named events carrying a payload and provenance metadata.

The package is built around two abstractions:

  - Bus: the broker. It owns the subscription tables, a bounded log of recently
    emitted events, the pending wait-for registrations, and a registry of live
    modules used for discovery and inspection.
  - Module: a lifecycle shell any component embeds or wraps. Constructing a
    module registers it with the bus, Init drives it through the
    initializing/ready/error state machine, and Destroy tears down every
    subscription the module ever made.

# Basic Usage

A typical setup constructs one bus per process, hands it to every module, and
lets events do the rest:

	bus := tonika.New()

	counter, _ := tonika.NewModule(bus, "counter",
		tonika.Version("1.0.0"),
		tonika.OnInit(func(ctx context.Context) error {
			// subscribe to the events this module cares about
			return nil
		}),
	)

	if err := counter.Init(ctx); err != nil {
		// the module is in StatusError and a module:error event was emitted
	}

	bus.EmitFrom("counter:increment", map[string]int{"amount": 5}, "main", "1.0.0")

# Delivery Semantics

Emit is synchronous: the event is appended to the bounded history log, every
handler subscribed at emit time runs to completion (a panicking handler is
logged and skipped, never aborting its siblings or the emitter), and finally
every pending WaitFor registration for that type resolves with the same event.
Handlers may emit, subscribe, and unsubscribe re-entrantly; subscription changes
made during dispatch affect only future emits.

Event payloads are not copied. A handler that mutates a shared payload is
visible to every other handler and to the history log; module authors agree on
payload shapes per event type out of band.

# Lifecycle Events

The lifecycle layer reserves the event types module:initializing, module:ready,
module:error and module:destroyed. Each carries a LifecycleDetail payload with
the module's name, version and status, plus the error detail on failure.
*/
package tonika
