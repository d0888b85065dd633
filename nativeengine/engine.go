//go:build darwin || linux

package nativeengine

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/wrtc"
)

func init() {
	wrtc.RegisterBackend(wrtc.BackendNative, func(cfg wrtc.Config) (wrtc.Engine, error) {
		return Open(cfg.LibPath, WithSDKPath(cfg.SDKLibPath))
	})
}

// Engine owns one libwebrtc peer connection factory.
type Engine struct {
	factory uint64
	log     logrus.FieldLogger

	mu     sync.Mutex
	conns  map[*peerConnection]struct{}
	tracks []uint64
	closed bool
}

// Open loads libwrtc_shim and creates a factory. libPath, when set, is
// tried before the standard locations.
func Open(libPath string, opts ...Option) (*Engine, error) {
	o := buildOptions(opts)
	if err := loadShim(libPath, o.sdkPath); err != nil {
		return nil, fmt.Errorf("%w: %v", wrtc.ErrNotSupported, err)
	}
	factory := shimFactoryCreate()
	if factory == 0 {
		return nil, fmt.Errorf("create factory: %w", lastError())
	}
	e := &Engine{
		factory: factory,
		log:     o.log.WithField("engine", "native"),
		conns:   make(map[*peerConnection]struct{}),
	}
	e.log.WithField("version", goString(shimVersion())).Info("native engine loaded")
	return e, nil
}

func (e *Engine) Name() string { return "native" }

func (e *Engine) NewPeerConnection(cfg wrtc.Configuration, observer wrtc.EngineObserver) (wrtc.NativePeerConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("%w: native engine closed", wrtc.ErrInvalidState)
	}
	pc := newPeerConnection(e, cfg, observer)
	pc.h = shimPCCreate(e.factory, encodeConfig(cfg), eventCallback, pc.user)
	if pc.h == 0 {
		unregister(pc.user)
		return nil, lastError()
	}
	e.conns[pc] = struct{}{}
	return pc, nil
}

// NewTrack creates a native media source track. Only tracks created here
// can be sent by this engine's connections. Tracks are released with the
// engine.
func (e *Engine) NewTrack(kind wrtc.RTPCodecType, id string) (wrtc.NativeTrack, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("%w: native engine closed", wrtc.ErrInvalidState)
	}
	h := shimTrackCreate(e.factory, int32(kind), id)
	if h == 0 {
		return nil, lastError()
	}
	e.tracks = append(e.tracks, h)
	return newTrack(h), nil
}

// Close destroys every connection and the factory.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conns, tracks := e.conns, e.tracks
	e.conns, e.tracks = nil, nil
	e.mu.Unlock()

	for pc := range conns {
		pc.destroy()
	}
	for _, h := range tracks {
		shimTrackRelease(h)
	}
	shimFactoryDestroy(e.factory)
	e.log.Info("engine closed")
	return nil
}
