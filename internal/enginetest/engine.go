// Package enginetest provides a deterministic in-memory wrtc.Engine.
//
// The fake negotiates real SDP (built with pion/sdp), synthesizes remote
// transceivers and receivers from the descriptions it is given, and links
// two of its connections when they exchange descriptions so data channels
// carry messages end to end. Asynchronous operations and events run on a
// per-connection worker goroutine, like a native signaling thread.
//
// Hooks such as Fail, RemoveTransceiver and Emit let tests drive the engine
// into states a real peer would produce.
package enginetest

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/thesyncim/wrtc"
)

// ErrEngineClosed is returned by NewPeerConnection after Close.
var ErrEngineClosed = errors.New("enginetest: engine closed")

func init() {
	wrtc.RegisterBackend(wrtc.BackendFake, func(wrtc.Config) (wrtc.Engine, error) {
		return New(), nil
	})
}

var handles atomic.Uintptr

func nextHandle() uintptr { return handles.Add(1) }

// Engine is the fake engine. The zero value is not usable; call New.
type Engine struct {
	mu     sync.Mutex
	conns  []*PeerConnection
	byID   map[string]*PeerConnection
	closed bool
	closes int
}

// New returns an open engine.
func New() *Engine {
	return &Engine{byID: make(map[string]*PeerConnection)}
}

func (e *Engine) Name() string { return "fake" }

func (e *Engine) NewPeerConnection(cfg wrtc.Configuration, observer wrtc.EngineObserver) (wrtc.NativePeerConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	pc := newPeerConnection(e, uuid.NewString(), cfg, observer)
	e.conns = append(e.conns, pc)
	e.byID[pc.id] = pc
	return pc, nil
}

// Close marks the engine closed. It counts calls so tests can assert the
// engine is closed exactly once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.closes++
	return nil
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Closes returns how many times Close has been called.
func (e *Engine) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

// Connections returns every connection created so far, in creation order.
func (e *Engine) Connections() []*PeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*PeerConnection(nil), e.conns...)
}

// Last returns the most recently created connection.
func (e *Engine) Last() *PeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.conns) == 0 {
		return nil
	}
	return e.conns[len(e.conns)-1]
}

func (e *Engine) lookup(id string) *PeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.byID[id]
}

// worker runs tasks one at a time, in submission order, on a goroutine
// that exists only while tasks are pending.
type worker struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

func (w *worker) do(fn func()) {
	w.mu.Lock()
	w.tasks = append(w.tasks, fn)
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()
	go w.drain()
}

func (w *worker) drain() {
	for {
		w.mu.Lock()
		if len(w.tasks) == 0 {
			w.running = false
			w.mu.Unlock()
			return
		}
		fn := w.tasks[0]
		w.tasks = w.tasks[1:]
		w.mu.Unlock()
		fn()
	}
}

// sync blocks until every task submitted before it has run.
func (w *worker) sync() {
	done := make(chan struct{})
	w.do(func() { close(done) })
	<-done
}
