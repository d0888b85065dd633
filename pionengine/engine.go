// Package pionengine implements the wrtc Engine on top of pion/webrtc.
//
// Pion supports transceiver-based negotiation only; connections asking for
// the legacy mode fail with wrtc.ErrNotSupported. Importing the package
// registers the backend under the name "pion".
package pionengine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/wrtc"
)

func init() {
	wrtc.RegisterBackend(wrtc.BackendPion, func(cfg wrtc.Config) (wrtc.Engine, error) {
		return New(WithPortRange(cfg.PortMin, cfg.PortMax)), nil
	})
}

var handles atomic.Uintptr

func nextHandle() uintptr { return handles.Add(1) }

// Option configures an Engine.
type Option func(*options)

type options struct {
	log      logrus.FieldLogger
	portMin  uint16
	portMax  uint16
	loopback bool
}

// WithLogger sets the engine logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithPortRange restricts ICE to local UDP ports in [min, max]. It applies
// to connections whose Configuration leaves the range unset.
func WithPortRange(min, max uint16) Option {
	return func(o *options) { o.portMin, o.portMax = min, max }
}

// WithLoopback gathers loopback candidates only, over UDP4. Tests use it
// to negotiate two connections in one process without a network.
func WithLoopback() Option {
	return func(o *options) { o.loopback = true }
}

// Engine creates pion-backed connections. Each connection gets its own
// pion API, since media engines cannot be shared between connections.
type Engine struct {
	opts options
	log  logrus.FieldLogger

	mu     sync.Mutex
	conns  map[*peerConnection]struct{}
	closed bool
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		opts:  o,
		log:   o.log.WithField("engine", "pion"),
		conns: make(map[*peerConnection]struct{}),
	}
}

func (e *Engine) Name() string { return "pion" }

func (e *Engine) api(cfg wrtc.Configuration) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	var s webrtc.SettingEngine
	min, max := cfg.PortRange.Min, cfg.PortRange.Max
	if min == 0 && max == 0 {
		min, max = e.opts.portMin, e.opts.portMax
	}
	if min != 0 || max != 0 {
		if err := s.SetEphemeralUDPPortRange(min, max); err != nil {
			return nil, fmt.Errorf("%w: port range %d-%d: %v", wrtc.ErrTypeMismatch, min, max, err)
		}
	}
	if e.opts.loopback {
		s.SetIncludeLoopbackCandidate(true)
		s.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(s)), nil
}

func (e *Engine) NewPeerConnection(cfg wrtc.Configuration, observer wrtc.EngineObserver) (wrtc.NativePeerConnection, error) {
	if cfg.SDPSemantics != wrtc.SDPSemanticsUnifiedPlan {
		return nil, fmt.Errorf("%w: pion supports %s only", wrtc.ErrNotSupported, wrtc.SDPSemanticsUnifiedPlan)
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: pion engine closed", wrtc.ErrInvalidState)
	}

	api, err := e.api(cfg)
	if err != nil {
		return nil, err
	}
	native, err := api.NewPeerConnection(toPionConfiguration(cfg))
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	pc := newPeerConnection(e, native, cfg, observer, e.log.WithField("pc", id))
	e.mu.Lock()
	e.conns[pc] = struct{}{}
	e.mu.Unlock()
	return pc, nil
}

func (e *Engine) forget(pc *peerConnection) {
	e.mu.Lock()
	delete(e.conns, pc)
	e.mu.Unlock()
}

// Close closes every connection the engine still has open.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conns := make([]*peerConnection, 0, len(e.conns))
	for pc := range e.conns {
		conns = append(conns, pc)
	}
	e.mu.Unlock()

	for _, pc := range conns {
		if err := pc.Close(); err != nil {
			e.log.WithError(err).Warn("close connection")
		}
	}
	e.log.Info("engine closed")
	return nil
}

// serial runs tasks one at a time in submission order.
type serial struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

func (s *serial) do(fn func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	go s.drain()
}

func (s *serial) drain() {
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		fn := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()
		fn()
	}
}
