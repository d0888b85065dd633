package wrtc

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Context is the reference-counted engine factory shared by connections.
// NewContext returns it holding one reference owned by the caller; every
// connection holds one more until it closes. The engine is closed when the
// count reaches zero.
type Context struct {
	engine  Engine
	loop    *Loop
	ownLoop bool
	log     logrus.FieldLogger
	metrics *Metrics

	mu       sync.Mutex
	refs     int
	leases   map[*contextLease]struct{}
	shutdown bool
}

// NewContext wraps engine. Unless WithLoop is given the Context starts its
// own Loop and stops it on Shutdown.
func NewContext(engine Engine, opts ...Option) *Context {
	o := buildOptions(options{}, opts)
	c := &Context{
		engine:  engine,
		loop:    o.loop,
		log:     o.log.WithField("engine", engine.Name()),
		metrics: o.metrics,
		refs:    1,
		leases:  make(map[*contextLease]struct{}),
	}
	if c.loop == nil {
		c.loop = NewLoop(WithLogger(o.log), WithMetrics(o.metrics))
		c.ownLoop = true
	}
	c.metrics.contextRefs(1)
	return c
}

func (c *Context) Engine() Engine { return c.engine }
func (c *Context) Loop() *Loop     { return c.loop }

// Refs returns the number of outstanding references.
func (c *Context) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// Acquire takes a reference. It fails once the count has reached zero.
func (c *Context) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquireLocked()
}

func (c *Context) acquireLocked() error {
	if c.refs == 0 {
		return invalidState("acquire", "the engine context has been released")
	}
	c.refs++
	c.metrics.contextRefs(c.refs)
	return nil
}

// Release drops a reference and closes the engine when none remain.
// Releasing more references than were taken panics.
func (c *Context) Release() error {
	c.mu.Lock()
	if c.refs == 0 {
		c.mu.Unlock()
		panic("wrtc: engine context released more times than acquired")
	}
	c.refs--
	n := c.refs
	c.metrics.contextRefs(n)
	c.mu.Unlock()

	if n > 0 {
		return nil
	}
	c.log.Info("closing engine")
	return c.engine.Close()
}

// lease takes a reference on behalf of pc.
func (c *Context) lease(pc io.Closer) (*contextLease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return nil, invalidState("lease", "the engine context is shut down")
	}
	if err := c.acquireLocked(); err != nil {
		return nil, err
	}
	l := &contextLease{ctx: c, holder: pc}
	c.leases[l] = struct{}{}
	return l, nil
}

// Shutdown closes every connection still holding a lease, drops the
// caller's reference and stops the Context's own Loop. It is idempotent.
func (c *Context) Shutdown() error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil
	}
	c.shutdown = true
	holders := make([]io.Closer, 0, len(c.leases))
	for l := range c.leases {
		holders = append(holders, l.holder)
	}
	c.mu.Unlock()

	var result *multierror.Error
	for _, h := range holders {
		if err := h.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := c.Release(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.ownLoop {
		if err := c.loop.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// contextLease is a connection's single-use hold on its Context. It is
// released at connection close or at Context shutdown, never both.
type contextLease struct {
	ctx      *Context
	holder   io.Closer
	released atomic.Bool
}

func (l *contextLease) release() error {
	if !l.released.CompareAndSwap(false, true) {
		return nil
	}
	l.ctx.mu.Lock()
	delete(l.ctx.leases, l)
	l.ctx.mu.Unlock()
	return l.ctx.Release()
}
