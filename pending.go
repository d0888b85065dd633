package wrtc

import (
	"context"
	"sync"
)

// Pending is the result of an asynchronous operation. It is resolved
// exactly once, on the Loop.
type Pending[T any] struct {
	queue *Queue
	done  chan struct{}

	mu       sync.Mutex
	resolved bool
	val      T
	err      error
	thens    []func(T, error)
}

func newPending[T any](q *Queue) *Pending[T] {
	return &Pending[T]{queue: q, done: make(chan struct{})}
}

// rejected returns a Pending already failed with err. Continuations added
// later still run on the Loop.
func rejected[T any](q *Queue, err error) *Pending[T] {
	p := newPending[T](q)
	var zero T
	p.resolve(zero, err)
	return p
}

// resolve settles p and runs queued continuations inline; callers are
// tasks on the Loop, or the constructor of a rejected Pending, which has
// no continuations yet.
func (p *Pending[T]) resolve(v T, err error) {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		panic("wrtc: pending result resolved twice")
	}
	p.resolved = true
	p.val, p.err = v, err
	thens := p.thens
	p.thens = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range thens {
		fn(v, err)
	}
}

// Done is closed once the result is available.
func (p *Pending[T]) Done() <-chan struct{} { return p.done }

// Wait blocks until the result is available or ctx ends. It must not be
// called from a task on the Loop that resolves p.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then registers fn to run on the Loop with the result. Continuations run
// in registration order.
func (p *Pending[T]) Then(fn func(T, error)) {
	p.mu.Lock()
	if !p.resolved {
		p.thens = append(p.thens, fn)
		p.mu.Unlock()
		return
	}
	v, err := p.val, p.err
	p.mu.Unlock()

	if postErr := p.queue.Post(func() { fn(v, err) }); postErr != nil {
		p.queue.loop.log.WithField("queue", p.queue.name).WithError(postErr).Warn("dropping continuation")
	}
}

// settle runs fn on q and resolves p with its result. If the loop has
// stopped, p is failed with ErrLoopClosed from the calling goroutine so
// waiters are never stranded.
func settle[T any](q *Queue, p *Pending[T], fn func() (T, error)) {
	if err := q.Post(func() { p.resolve(fn()) }); err != nil {
		var zero T
		p.resolve(zero, err)
	}
}
