// Package file provides a vigil producer that yields the decoded contents of
// a file, first as it is and then every time it is written.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/zoobzio/clockz"
)

// DefaultDebounce is the quiet period awaited after a change before the file
// is read again.
const DefaultDebounce = 100 * time.Millisecond

var validate = validator.New()

type config struct {
	codec    Codec
	debounce time.Duration
	clock    clockz.Clock
	validate bool
}

// Option configures a Producer.
type Option func(*config)

// WithCodec sets the codec. By default ".json" files are decoded as JSON and
// everything else as YAML.
func WithCodec(c Codec) Option {
	return func(cfg *config) {
		cfg.codec = c
	}
}

// WithDebounce sets the quiet period after a change. Zero reads on every
// change event.
func WithDebounce(d time.Duration) Option {
	return func(cfg *config) {
		cfg.debounce = d
	}
}

// WithClock sets the clock used for debouncing.
func WithClock(clock clockz.Clock) Option {
	return func(cfg *config) {
		cfg.clock = clock
	}
}

// WithoutValidation disables struct validation of decoded values.
func WithoutValidation() Option {
	return func(cfg *config) {
		cfg.validate = false
	}
}

// Producer is a fallible producer of decoded file contents.
//
// The first Next returns the current contents. Later calls block until the
// file is written or created and return the new contents. Decoding,
// validation and watch failures are returned as errors and release the
// watcher; so does the end of the context passed to Next.
//
// Decoded structs are validated using go-playground/validator tags.
type Producer[T any] struct {
	path     string
	codec    Codec
	debounce time.Duration
	clock    clockz.Clock
	validate bool

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	target  string
	closed  bool
}

// New creates a Producer for path. The file is not touched until the first
// call to Next.
//
// Example:
//
//	type Config struct {
//	    Port int `yaml:"port" validate:"min=1,max=65535"`
//	}
//
//	m := vigil.NewFallible(ctx, file.New[Config]("config.yaml"), apply)
func New[T any](path string, opts ...Option) *Producer[T] {
	cfg := &config{
		debounce: DefaultDebounce,
		clock:    clockz.RealClock,
		validate: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.codec == nil {
		cfg.codec = codecFor(path)
	}

	return &Producer[T]{
		path:     path,
		codec:    cfg.codec,
		debounce: cfg.debounce,
		clock:    cfg.clock,
		validate: cfg.validate,
	}
}

// Path returns the watched path.
func (p *Producer[T]) Path() string {
	return p.path
}

// Next returns the next decoded contents. It returns io.EOF once the
// producer has been closed.
func (p *Producer[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		p.Close() //nolint:errcheck // releasing on the way out
		return zero, err
	}

	w, initial, err := p.acquire()
	if err != nil {
		return zero, err
	}
	if !initial {
		if err := p.await(ctx, w); err != nil {
			p.Close() //nolint:errcheck // releasing on the way out
			return zero, err
		}
	}

	v, err := p.load()
	if err != nil {
		p.Close() //nolint:errcheck // releasing on the way out
		return zero, err
	}
	return v, nil
}

// Close releases the watcher. It is idempotent.
func (p *Producer[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.watcher == nil {
		return nil
	}
	return p.watcher.Close()
}

// acquire returns the watcher, creating it on first use. initial reports
// whether it was just created.
func (p *Producer[T]) acquire() (*fsnotify.Watcher, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, io.EOF
	}
	if p.watcher != nil {
		return p.watcher, false, nil
	}

	target, err := filepath.Abs(p.path)
	if err != nil {
		return nil, false, fmt.Errorf("resolve %s: %w", p.path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, false, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory so that editors replacing the file are seen.
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return nil, false, fmt.Errorf("failed to watch file %s: %w", p.path, err)
	}

	p.watcher = w
	p.target = target
	return w, true, nil
}

// await blocks until the file changed and the debounce period has passed.
func (p *Producer[T]) await(ctx context.Context, w *fsnotify.Watcher) error {
	var timer clockz.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.Events:
			if !ok {
				return io.EOF
			}
			if !p.relevant(event) {
				continue
			}
			if p.debounce <= 0 {
				return nil
			}

			if timer == nil {
				timer = p.clock.NewTimer(p.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(p.debounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return io.EOF
			}
			return fmt.Errorf("watch %s: %w", p.path, err)

		case <-timerC:
			return nil
		}
	}
}

// relevant reports whether event is a write or create of the watched file.
func (p *Producer[T]) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != p.target {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

func (p *Producer[T]) load() (T, error) {
	var v T

	data, err := os.ReadFile(p.path)
	if err != nil {
		return v, fmt.Errorf("read %s: %w", p.path, err)
	}
	if err := p.codec.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("unmarshal %s: %w", p.path, err)
	}
	if p.validate && isStruct(v) {
		if err := validate.Struct(v); err != nil {
			var zero T
			return zero, fmt.Errorf("validation failed for %s: %w", p.path, err)
		}
	}
	return v, nil
}

func isStruct(v any) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Struct
}
