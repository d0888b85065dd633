//go:build !darwin && !linux

package nativeengine

import (
	"fmt"

	"github.com/thesyncim/wrtc"
)

var errUnsupported = fmt.Errorf("%w: native engine requires darwin or linux", wrtc.ErrNotSupported)

// Engine is unavailable on this platform.
type Engine struct{}

// Open always fails on this platform.
func Open(string, ...Option) (*Engine, error) { return nil, errUnsupported }

func (e *Engine) Name() string { return "native" }

func (e *Engine) NewPeerConnection(wrtc.Configuration, wrtc.EngineObserver) (wrtc.NativePeerConnection, error) {
	return nil, errUnsupported
}

func (e *Engine) NewTrack(wrtc.RTPCodecType, string) (wrtc.NativeTrack, error) {
	return nil, errUnsupported
}

func (e *Engine) Close() error { return nil }

// Version returns "".
func Version() string { return "" }
