//go:build darwin || linux

package nativeengine

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/thesyncim/wrtc"
)

type transceiver struct {
	pc *peerConnection
	h  uint64
}

func (t *transceiver) info() transceiverInfo {
	info, _ := decode[transceiverInfo](takeString(shimTransceiverInfo(t.h)))
	return info
}

func (t *transceiver) Handle() uintptr                      { return uintptr(t.h) }
func (t *transceiver) Kind() wrtc.RTPCodecType              { return wrtc.RTPCodecType(t.info().Kind) }
func (t *transceiver) Direction() wrtc.TransceiverDirection { return wrtc.TransceiverDirection(t.info().Direction) }
func (t *transceiver) Stopped() bool                        { return t.info().Stopped }

func (t *transceiver) Mid() (string, bool) {
	info := t.info()
	return info.Mid, info.HasMid
}

func (t *transceiver) CurrentDirection() (wrtc.TransceiverDirection, bool) {
	return optionalDirection(t.info().CurrentDirection)
}

func (t *transceiver) FiredDirection() (wrtc.TransceiverDirection, bool) {
	return optionalDirection(t.info().FiredDirection)
}

func (t *transceiver) Sender() wrtc.NativeSender {
	h := t.info().Sender
	if h == 0 {
		return nil
	}
	return t.pc.sender(h)
}

func (t *transceiver) Receiver() wrtc.NativeReceiver {
	h := t.info().Receiver
	if h == 0 {
		return nil
	}
	return t.pc.receiver(h)
}

func (t *transceiver) SetDirection(d wrtc.TransceiverDirection) error {
	return check(shimTransceiverSetDirection(t.h, int32(d)))
}

func (t *transceiver) Stop() error { return check(shimTransceiverStop(t.h)) }

func (t *transceiver) SetCodecPreferences(codecs []wrtc.RTPCodecParameters) error {
	return check(shimTransceiverSetCodecs(t.h, encodeCodecs(codecs)))
}

type sender struct {
	pc   *peerConnection
	h    uint64
	id   string
	kind wrtc.RTPCodecType
}

func (s *sender) info() senderInfo {
	info, _ := decode[senderInfo](takeString(shimSenderInfo(s.h)))
	return info
}

func (s *sender) ID() string                          { return s.id }
func (s *sender) Kind() wrtc.RTPCodecType             { return s.kind }
func (s *sender) Track() wrtc.NativeTrack             { return s.pc.track(s.info().Track) }
func (s *sender) Transport() wrtc.NativeDTLSTransport { return s.pc.transport(s.info().Transport) }

func (s *sender) ReplaceTrack(t wrtc.NativeTrack) error {
	th, err := nativeTrack(t)
	if err != nil {
		return err
	}
	return check(shimSenderReplaceTrack(s.h, th))
}

func (s *sender) SetStreams(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return check(shimSenderSetStreams(s.h, encode(ids)))
}

func (s *sender) Parameters() wrtc.RTPSendParameters {
	p, _ := decode[parametersJSON](takeString(shimSenderParameters(s.h)))
	return p.params()
}

func (s *sender) SetParameters(p wrtc.RTPSendParameters) error {
	return check(shimSenderSetParameters(s.h, encode(encodeParameters(p))))
}

type receiver struct {
	pc *peerConnection
	h  uint64
	id string
}

func (r *receiver) info() receiverInfo {
	info, _ := decode[receiverInfo](takeString(shimReceiverInfo(r.h)))
	return info
}

func (r *receiver) ID() string                          { return r.id }
func (r *receiver) Track() wrtc.NativeTrack             { return r.pc.track(r.info().Track) }
func (r *receiver) Transport() wrtc.NativeDTLSTransport { return r.pc.transport(r.info().Transport) }
func (r *receiver) Streams() []wrtc.NativeStream        { return nativeStreams(r.info().Streams) }

type stream string

func (s stream) ID() string { return string(s) }

func nativeStreams(ids []string) []wrtc.NativeStream {
	out := make([]wrtc.NativeStream, 0, len(ids))
	for _, id := range ids {
		out = append(out, stream(id))
	}
	return out
}

// track caches the immutable id and kind of a native track.
type track struct {
	h    uint64
	id   string
	kind wrtc.RTPCodecType
}

func newTrack(h uint64) *track {
	info, _ := decode[trackInfo](takeString(shimTrackInfo(h)))
	return &track{h: h, id: info.ID, kind: wrtc.RTPCodecType(info.Kind)}
}

func (t *track) info() trackInfo {
	info, _ := decode[trackInfo](takeString(shimTrackInfo(t.h)))
	return info
}

func (t *track) ID() string              { return t.id }
func (t *track) Kind() wrtc.RTPCodecType { return t.kind }
func (t *track) Enabled() bool           { return t.info().Enabled }
func (t *track) State() wrtc.TrackState  { return wrtc.TrackState(t.info().State) }

func (t *track) SetEnabled(enabled bool) {
	var v int32
	if enabled {
		v = 1
	}
	shimTrackSetEnabled(t.h, v)
}

type dataChannel struct {
	h uint64

	mu   sync.Mutex
	user uintptr
}

// channelSink adapts the shared callback to one channel's observer.
type channelSink func(wrtc.DataChannelEvent)

func (fn channelSink) engineEvent(kind int32, _ uint64, value int32, data []byte) {
	if ev, ok := channelEvent(kind, value, data); ok {
		fn(ev)
	}
}

func (d *dataChannel) info() channelInfo {
	info, _ := decode[channelInfo](takeString(shimChannelInfo(d.h)))
	return info
}

func (d *dataChannel) Handle() uintptr                   { return uintptr(d.h) }
func (d *dataChannel) Label() string                     { return d.info().Label }
func (d *dataChannel) ID() (uint16, bool)                { return optional(d.info().ID) }
func (d *dataChannel) Ordered() bool                     { return d.info().Ordered }
func (d *dataChannel) Protocol() string                  { return d.info().Protocol }
func (d *dataChannel) Negotiated() bool                  { return d.info().Negotiated }
func (d *dataChannel) MaxRetransmits() (uint16, bool)    { return optional(d.info().MaxRetransmits) }
func (d *dataChannel) MaxPacketLifeTime() (uint16, bool) { return optional(d.info().MaxPacketLifeTime) }
func (d *dataChannel) BufferedAmount() uint64            { return d.info().BufferedAmount }

func (d *dataChannel) ReadyState() wrtc.DataChannelState {
	return wrtc.DataChannelState(d.info().State)
}

func (d *dataChannel) Send(data []byte, binary bool) error {
	var b int32
	if binary {
		b = 1
	}
	status := shimChannelSend(d.h, uintptr(unsafe.Pointer(unsafe.SliceData(data))), int32(len(data)), b)
	runtime.KeepAlive(data)
	return check(status)
}

func (d *dataChannel) Close() error { return check(shimChannelClose(d.h)) }

func (d *dataChannel) Observe(fn func(wrtc.DataChannelEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.user != 0 {
		unregister(d.user)
	}
	d.user = register(channelSink(fn))
	shimChannelObserve(d.h, eventCallback, d.user)
}

func (d *dataChannel) unobserve() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.user != 0 {
		shimChannelObserve(d.h, 0, 0)
		unregister(d.user)
		d.user = 0
	}
}

type dtlsTransport struct {
	h uint64
}

func (t *dtlsTransport) Handle() uintptr { return uintptr(t.h) }

func (t *dtlsTransport) State() wrtc.DTLSTransportState {
	return wrtc.DTLSTransportState(shimDTLSState(t.h))
}

type sctpTransport struct {
	pc *peerConnection
	h  uint64
}

func (s *sctpTransport) info() sctpInfo {
	info, _ := decode[sctpInfo](takeString(shimSCTPInfo(s.h)))
	return info
}

func (s *sctpTransport) Handle() uintptr                     { return uintptr(s.h) }
func (s *sctpTransport) State() wrtc.SCTPTransportState      { return wrtc.SCTPTransportState(s.info().State) }
func (s *sctpTransport) Transport() wrtc.NativeDTLSTransport { return s.pc.transport(s.info().Transport) }
func (s *sctpTransport) MaxChannels() (uint16, bool)         { return optional(s.info().MaxChannels) }

var (
	_ wrtc.Engine               = (*Engine)(nil)
	_ wrtc.NativePeerConnection = (*peerConnection)(nil)
	_ wrtc.NativeTransceiver    = (*transceiver)(nil)
	_ wrtc.NativeSender         = (*sender)(nil)
	_ wrtc.NativeReceiver       = (*receiver)(nil)
	_ wrtc.NativeTrack          = (*track)(nil)
	_ wrtc.NativeDataChannel    = (*dataChannel)(nil)
	_ wrtc.NativeDTLSTransport  = (*dtlsTransport)(nil)
	_ wrtc.NativeSCTPTransport  = (*sctpTransport)(nil)
)
