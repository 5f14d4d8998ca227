package vigil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// ErrDomainClosed is returned by Domain.Do when the domain no longer
// accepts work.
var ErrDomainClosed = errors.New("domain closed")

// Domain confines the execution of callbacks to a logical context, such as
// a single owner goroutine or a lock.
type Domain interface {
	// Do runs fn inside the domain and returns after fn has returned.
	// If ctx is done before fn starts, or the domain is closed, fn does not
	// run and an error is returned.
	Do(ctx context.Context, fn func()) error
}

type unconfined struct{}

func (unconfined) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

// Unconfined runs work inline on the calling goroutine. Callbacks executed
// in it must be safe to run concurrently with anything else.
var Unconfined Domain = unconfined{}

type guarded struct {
	l sync.Locker
}

func (g guarded) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.l.Lock()
	defer g.l.Unlock()
	fn()
	return nil
}

// Guarded returns a Domain that runs work while holding l.
func Guarded(l sync.Locker) Domain {
	return guarded{l: l}
}

type domainKey struct{}

// ContextWithDomain returns a copy of ctx carrying d as the ambient domain.
func ContextWithDomain(ctx context.Context, d Domain) context.Context {
	return context.WithValue(ctx, domainKey{}, d)
}

// DomainFrom returns the ambient domain carried by ctx, or Unconfined.
func DomainFrom(ctx context.Context) Domain {
	if d, ok := ctx.Value(domainKey{}).(Domain); ok && d != nil {
		return d
	}
	return Unconfined
}

const (
	jobPending int32 = iota
	jobRunning
	jobSkipped
)

type job struct {
	fn    func()
	state atomic.Int32
	done  chan struct{}
}

// Serial is a Domain whose work runs one item at a time on the goroutine
// that calls Run, in submission order.
//
// Do must not be called from the Run goroutine itself.
type Serial struct {
	mu     sync.Mutex
	jobs   *queue.Queue
	closed bool

	wake chan struct{}
	stop chan struct{}
}

// NewSerial creates a Serial domain. Work submitted before Run is called
// waits until Run starts.
func NewSerial() *Serial {
	return &Serial{
		jobs: queue.New(),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Run executes submitted work until ctx is done or Close is called.
// Returning because ctx is done closes the domain.
func (s *Serial) Run(ctx context.Context) {
	for {
		for {
			j := s.pop()
			if j == nil {
				break
			}
			if j.state.CompareAndSwap(jobPending, jobRunning) {
				j.fn()
			}
			close(j.done)
		}

		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.stop:
			return
		case <-s.wake:
		}
	}
}

// Do queues fn and waits for it to run.
func (s *Serial) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j := &job{fn: fn, done: make(chan struct{})}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrDomainClosed
	}
	s.jobs.Add(j)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	select {
	case <-j.done:
		if j.state.Load() == jobSkipped {
			return ErrDomainClosed
		}
		return nil
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobPending, jobSkipped) {
			return ctx.Err()
		}
		// Already running; wait for it to finish.
		<-j.done
		return nil
	}
}

// Close stops the domain. Work that has not started is skipped and its
// submitters receive ErrDomainClosed.
func (s *Serial) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var pending []*job
	for s.jobs.Length() > 0 {
		pending = append(pending, s.jobs.Remove().(*job))
	}
	close(s.stop)
	s.mu.Unlock()

	for _, j := range pending {
		j.state.CompareAndSwap(jobPending, jobSkipped)
		close(j.done)
	}
}

func (s *Serial) pop() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs.Length() == 0 {
		return nil
	}
	return s.jobs.Remove().(*job)
}
