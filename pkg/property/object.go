// Package property bridges attribute changes on a stateful object into a
// vigil producer.
//
// An Object holds a value and notifies its observers synchronously after
// every change. Values turns those notifications into a pull-based stream
// of one attribute, and MonitorValues observes that stream with a
// vigil.Monitor:
//
//	type Player struct {
//	    Volume int
//	    Muted  bool
//	}
//
//	player := property.New(Player{Volume: 5})
//	m := property.MonitorValues(ctx, player,
//	    func(p Player) int { return p.Volume },
//	    func(_ context.Context, v int) { slider.Set(v) },
//	    property.Initial(),
//	)
//	defer m.Close()
package property

import (
	"sync"
)

// Object is a stateful value whose changes can be observed.
//
// Notifications are delivered in change order on the goroutine that made
// the change. Observers must not modify the object they observe from within
// the notification.
type Object[S any] struct {
	mu    sync.RWMutex
	state S

	// notifyMu serializes change+notify so observers see changes in order.
	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers map[uint64]func(old, new S)
	nextID    uint64
}

// New creates an Object holding initial.
func New[S any](initial S) *Object[S] {
	return &Object[S]{
		state:     initial,
		observers: make(map[uint64]func(old, new S)),
	}
}

// Get returns the current state.
func (o *Object[S]) Get() S {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Set replaces the state and notifies observers.
func (o *Object[S]) Set(s S) {
	o.Update(func(state *S) { *state = s })
}

// Update mutates the state in place and notifies observers.
func (o *Object[S]) Update(fn func(*S)) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	old := o.state
	fn(&o.state)
	updated := o.state
	o.mu.Unlock()

	for _, obs := range o.snapshot() {
		obs(old, updated)
	}
}

// Observe registers fn for change notifications. The returned Token
// unregisters it.
func (o *Object[S]) Observe(fn func(old, new S)) *Token {
	return o.observe(fn, nil)
}

// ObserverCount returns the number of registered observers.
func (o *Object[S]) ObserverCount() int {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	return len(o.observers)
}

// observe registers fn and, if initial is non-nil, calls it once with the
// current state before any later change can be notified.
func (o *Object[S]) observe(fn func(old, new S), initial func(S)) *Token {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.obsMu.Lock()
	id := o.nextID
	o.nextID++
	o.observers[id] = fn
	o.obsMu.Unlock()

	if initial != nil {
		initial(o.Get())
	}

	return &Token{remove: func() {
		o.obsMu.Lock()
		delete(o.observers, id)
		o.obsMu.Unlock()
	}}
}

func (o *Object[S]) snapshot() []func(old, new S) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	out := make([]func(old, new S), 0, len(o.observers))
	for _, obs := range o.observers {
		out = append(out, obs)
	}
	return out
}

// Token is a registration returned by Observe.
type Token struct {
	once   sync.Once
	remove func()
}

// Invalidate unregisters the observer. It is idempotent.
func (t *Token) Invalidate() {
	t.once.Do(t.remove)
}
