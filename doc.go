/*
Package vigil provides managed observation tasks: a Monitor consumes a
producer of elements on a background goroutine and invokes a callback for
each one, with cancellation tied to the monitor's lifetime.

# Monitors

A Monitor is started by its constructor and runs until the producer is
exhausted, the producer fails, or the monitor is cancelled:

	m := vigil.New(ctx, vigil.FromChannel(updates), func(ctx context.Context, u Update) {
	    apply(u)
	})
	defer m.Close()

Producers that can fail use NewFallible. A failure ends the monitor and is
reported through the MonitorFailed signal; it is never retried:

	m := vigil.NewFallible(ctx, file.New[Config]("config.yaml"), reconfigure)

Callbacks are invoked strictly in production order and never concurrently
with each other. Cancellation is cooperative: a running callback completes,
and no new callback starts once the cancellation has been observed.

# Domains

The callback runs in the Domain carried by the constructor's context, so
state confined to a goroutine or a lock stays confined:

	ui := vigil.NewSerial()
	go ui.Run(ctx)

	ctx = vigil.ContextWithDomain(ctx, ui)
	vigil.New(ctx, producer, updateView) // updateView runs on the ui goroutine

Use the Unconstrained option to opt out, or WithDomain to pin a domain
explicitly.

# Lifetime

Every Monitor satisfies Cancellable. Store wraps it in an AnyCancellable and
keeps it in a Set; removing the entry or clearing the set cancels it:

	set := vigil.NewSet()
	vigil.New(ctx, producer, handle).Store(set)
	...
	set.Clear() // every stored monitor is cancelled exactly once

Monitors and AnyCancellable values that become unreachable are cancelled by
the garbage collector, but that is a safety net rather than a schedule.

NewWeak observes on behalf of a target it holds only weakly; once the target
is collected the monitor stops without invoking the callback again.

# Observability

vigil emits capitan signals for lifecycle events:

	capitan.Hook(vigil.MonitorFailed, func(_ context.Context, e *capitan.Event) {
	    msg, _ := vigil.KeyError.From(e)
	    log.Printf("monitor failed: %s", msg)
	})

A MetricsProvider receives start, delivery and stop callbacks; pkg/prometheus
provides one backed by Prometheus collectors.

# Producers

The core ships FromChannel, FromSlice, Just, FromSeq and Buffer, the bridge
for callback-style sources. Further producers live in pkg/:

  - pkg/property: attribute changes on a stateful object
  - pkg/notify: named notifications
  - pkg/file: file contents via fsnotify
  - pkg/redis: Redis pub/sub messages
*/
package vigil
