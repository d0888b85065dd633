// Package script drives bridge connections from Lua.
//
// A script creates connections with wrtc.peer{...}, wires their events to
// Lua functions and negotiates them; it ends by calling wrtc.done(). Every
// piece of Lua runs on the Context's Loop goroutine: the script body is a
// task on its own queue, and connection events, data channel events and
// pending results reach Lua through the bridge's Loop callbacks.
//
//	local a, b = wrtc.peer{}, wrtc.peer{}
//	a:on("candidate", function(c) if c then b:add_candidate(c) end end)
//	a:create_offer(function(err, offer) ... end)
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Shopify/go-lua"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/wrtc"
)

const callbacksKey = "wrtc.callbacks"

// ErrScriptFailed wraps errors raised by the script itself.
var ErrScriptFailed = errors.New("script failed")

// Options configures Run.
type Options struct {
	// Context supplies the engine and Loop. Required.
	Context *wrtc.Context
	// Configuration is the default configuration of wrtc.peer{}.
	Configuration wrtc.Configuration
	Log           logrus.FieldLogger
	// Args is exposed to the script as the global table arg.
	Args []string
}

// host is the state of one script run. Fields other than finished and
// result are touched on the Loop only.
type host struct {
	opts  Options
	log   logrus.FieldLogger
	state *lua.State
	queue *wrtc.Queue

	nextRef  int
	peers    []*peer
	channels map[*wrtc.DataChannel]*channel

	finished atomic.Bool
	once     sync.Once
	result   chan error
}

// Run executes the script at path and returns once it calls wrtc.done(),
// raises an error, or ctx ends. Connections created by the script are
// closed before Run returns.
func Run(ctx context.Context, path string, opts Options) error {
	return run(ctx, opts, func(state *lua.State) error {
		return lua.LoadFile(state, path, "")
	})
}

// RunString is Run for an in-memory chunk.
func RunString(ctx context.Context, name, source string, opts Options) error {
	return run(ctx, opts, func(state *lua.State) error {
		return lua.LoadBuffer(state, source, name, "")
	})
}

func run(ctx context.Context, opts Options, load func(*lua.State) error) error {
	if opts.Context == nil {
		return fmt.Errorf("%w: script needs a wrtc.Context", wrtc.ErrInvalidState)
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	h := &host{
		opts:   opts,
		log:    opts.Log.WithField("component", "script"),
		queue:  opts.Context.Loop().NewQueue("script"),
		result: make(chan error, 1),
	}

	if err := h.queue.Post(func() { h.start(load) }); err != nil {
		return err
	}

	var err error
	select {
	case err = <-h.result:
	case <-ctx.Done():
		h.finished.Store(true)
		err = ctx.Err()
	}
	h.closePeers()
	return err
}

func (h *host) start(load func(*lua.State) error) {
	h.state = lua.NewState()
	lua.OpenLibraries(h.state)
	h.state.NewTable()
	h.state.SetField(lua.RegistryIndex, callbacksKey)
	h.register()

	if err := load(h.state); err != nil {
		h.finish(fmt.Errorf("%w: load: %v", ErrScriptFailed, err))
		return
	}
	if err := h.state.ProtectedCall(0, 0, 0); err != nil {
		h.state.Pop(1)
		h.finish(fmt.Errorf("%w: %v", ErrScriptFailed, err))
	}
}

// finish ends the run with err. Later calls are ignored.
func (h *host) finish(err error) {
	h.once.Do(func() {
		h.finished.Store(true)
		h.result <- err
	})
}

// closePeers runs on the Run goroutine; Close never blocks on the Loop.
func (h *host) closePeers() {
	done := make(chan []*peer, 1)
	if err := h.queue.Post(func() { done <- h.peers }); err != nil {
		return
	}
	for _, p := range <-done {
		_ = p.pc.Close()
	}
}

func (h *host) register() {
	h.registerPeerType()
	h.registerChannelType()

	h.state.NewTable()
	h.state.PushGoFunction(h.luaPeer)
	h.state.SetField(-2, "peer")
	h.state.PushGoFunction(h.luaDone)
	h.state.SetField(-2, "done")
	h.state.PushGoFunction(h.luaLog)
	h.state.SetField(-2, "log")
	h.state.SetGlobal("wrtc")

	h.state.NewTable()
	for i, a := range h.opts.Args {
		h.state.PushString(a)
		h.state.RawSetInt(-2, i+1)
	}
	h.state.SetGlobal("arg")
}

// ref stores the function at index and returns its key.
func (h *host) ref(index int) int {
	index = h.state.AbsIndex(index)
	h.state.Field(lua.RegistryIndex, callbacksKey)
	h.nextRef++
	h.state.PushValue(index)
	h.state.RawSetInt(-2, h.nextRef)
	h.state.Pop(1)
	return h.nextRef
}

func (h *host) unref(ref int) {
	h.state.Field(lua.RegistryIndex, callbacksKey)
	h.state.PushNil()
	h.state.RawSetInt(-2, ref)
	h.state.Pop(1)
}

// call invokes the referenced function with the values pushed by args.
// A Lua error ends the run.
func (h *host) call(ref int, args func(*lua.State) int) {
	if h.finished.Load() {
		return
	}
	h.state.Field(lua.RegistryIndex, callbacksKey)
	h.state.RawGetInt(-1, ref)
	h.state.Remove(-2)
	if !h.state.IsFunction(-1) {
		h.state.Pop(1)
		return
	}
	n := 0
	if args != nil {
		n = args(h.state)
	}
	if err := h.state.ProtectedCall(n, 0, 0); err != nil {
		h.state.Pop(1)
		h.finish(fmt.Errorf("%w: %v", ErrScriptFailed, err))
	}
}

// callOnce is call followed by unref.
func (h *host) callOnce(ref int, args func(*lua.State) int) {
	h.call(ref, args)
	if !h.finished.Load() {
		h.unref(ref)
	}
}

// optionalRef refs the function at index, or returns 0 when absent.
func (h *host) optionalRef(index int) int {
	if h.state.IsNoneOrNil(index) {
		return 0
	}
	lua.CheckType(h.state, index, lua.TypeFunction)
	return h.ref(index)
}

// complete reports an operation result to an optional callback as
// (err, value...).
func (h *host) complete(ref int, err error, values func(*lua.State) int) {
	if ref == 0 {
		if err != nil {
			h.log.WithError(err).Warn("unhandled operation error")
		}
		return
	}
	h.callOnce(ref, func(l *lua.State) int {
		if err != nil {
			l.PushString(err.Error())
			return 1
		}
		l.PushNil()
		if values == nil {
			return 1
		}
		return 1 + values(l)
	})
}

func (h *host) luaDone(l *lua.State) int {
	var err error
	if msg, ok := l.ToString(1); ok && msg != "" {
		err = fmt.Errorf("%w: %s", ErrScriptFailed, msg)
	}
	h.finish(err)
	return 0
}

func (h *host) luaLog(l *lua.State) int {
	n := l.Top()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		s, _ := lua.ToStringMeta(l, i)
		l.Pop(1)
		parts = append(parts, s)
	}
	h.log.Info(strings.Join(parts, " "))
	return 0
}
