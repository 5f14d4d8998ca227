// Package notify provides a named notification centre whose notifications
// can be observed as vigil producers.
package notify

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/vigil"
)

// Notification is a named event posted to a Center.
type Notification struct {
	Name   string
	Sender any
	Info   map[string]any
	Posted time.Time
}

// Decode copies Info into v, which must be a pointer to a struct or map.
// Struct fields are matched by their mapstructure tag or name.
func (n Notification) Decode(v any) error {
	if err := mapstructure.Decode(n.Info, v); err != nil {
		return fmt.Errorf("decode notification %q: %w", n.Name, err)
	}
	return nil
}

type registration struct {
	name   string
	sender any
	fn     func(Notification)
}

func (r *registration) matches(n Notification) bool {
	if r.name != "" && r.name != n.Name {
		return false
	}
	if r.sender == nil {
		return true
	}
	return sameSender(r.sender, n.Sender)
}

func sameSender(a, b any) bool {
	if b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Center dispatches posted notifications to the observers registered for
// their name. Observers run synchronously on the posting goroutine.
type Center struct {
	mu        sync.RWMutex
	observers map[uint64]*registration
	nextID    uint64
	clock     clockz.Clock
}

// CenterOption configures a Center.
type CenterOption func(*Center)

// WithClock sets the clock used to stamp notifications.
func WithClock(clock clockz.Clock) CenterOption {
	return func(c *Center) {
		c.clock = clock
	}
}

// Default is the process-wide Center.
var Default = NewCenter()

// NewCenter creates an empty Center.
func NewCenter(opts ...CenterOption) *Center {
	c := &Center{
		observers: make(map[uint64]*registration),
		clock:     clockz.RealClock,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post delivers a notification to every matching observer.
func (c *Center) Post(name string, sender any, info map[string]any) {
	n := Notification{
		Name:   name,
		Sender: sender,
		Info:   info,
		Posted: c.clock.Now(),
	}

	c.mu.RLock()
	matched := make([]*registration, 0, len(c.observers))
	for _, r := range c.observers {
		if r.matches(n) {
			matched = append(matched, r)
		}
	}
	c.mu.RUnlock()

	for _, r := range matched {
		r.fn(n)
	}
}

// AddObserver registers fn for notifications named name, or for every
// notification if name is empty. A non-nil sender restricts delivery to
// notifications posted by that sender. The returned function unregisters
// the observer and is idempotent.
func (c *Center) AddObserver(name string, sender any, fn func(Notification)) (remove func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = &registration{name: name, sender: sender, fn: fn}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// ObserverCount returns the number of registered observers.
func (c *Center) ObserverCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.observers)
}

type config struct {
	sender    any
	buffering []vigil.BufferOption
	monitor   []vigil.Option
}

// Option configures Notifications and Monitor.
type Option func(*config)

// From restricts observation to notifications posted by sender.
func From(sender any) Option {
	return func(c *config) {
		c.sender = sender
	}
}

// Buffering sets the buffering policy between posting and the consumer.
// The default is unbounded.
func Buffering(opts ...vigil.BufferOption) Option {
	return func(c *config) {
		c.buffering = append(c.buffering, opts...)
	}
}

// WithMonitorOptions passes options to the monitor built by Monitor.
func WithMonitorOptions(opts ...vigil.Option) Option {
	return func(c *config) {
		c.monitor = append(c.monitor, opts...)
	}
}

// Stream is a non-failing producer of notifications.
type Stream struct {
	buf *vigil.Buffer[Notification]
}

// Next returns the next notification.
func (s *Stream) Next(ctx context.Context) (Notification, bool) {
	return s.buf.Next(ctx)
}

// Close ends the stream and unregisters its observer.
func (s *Stream) Close() error {
	return s.buf.Close()
}

// Notifications returns a stream of the notifications named name. The
// observer is unregistered when the stream ends.
func (c *Center) Notifications(name string, opts ...Option) *Stream {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	buf := vigil.NewBuffer[Notification](cfg.buffering...)
	remove := c.AddObserver(name, cfg.sender, func(n Notification) {
		buf.Yield(n)
	})
	buf.OnTermination(remove)

	return &Stream{buf: buf}
}

// Monitor observes the notifications named name with a vigil.Monitor.
func (c *Center) Monitor(
	ctx context.Context,
	name string,
	fn func(context.Context, Notification),
	opts ...Option,
) *vigil.Monitor[Notification] {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return vigil.New(ctx, c.Notifications(name, opts...), fn, cfg.monitor...)
}
