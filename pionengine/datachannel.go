package pionengine

import (
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/wrtc"
)

type dataChannel struct {
	handle uintptr
	dc     *webrtc.DataChannel
}

func (d *dataChannel) Handle() uintptr        { return d.handle }
func (d *dataChannel) Label() string          { return d.dc.Label() }
func (d *dataChannel) Ordered() bool          { return d.dc.Ordered() }
func (d *dataChannel) Protocol() string       { return d.dc.Protocol() }
func (d *dataChannel) Negotiated() bool       { return d.dc.Negotiated() }
func (d *dataChannel) BufferedAmount() uint64 { return d.dc.BufferedAmount() }

func (d *dataChannel) ReadyState() wrtc.DataChannelState {
	return dataChannelState(d.dc.ReadyState())
}

func optional(v *uint16) (uint16, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func (d *dataChannel) ID() (uint16, bool)                { return optional(d.dc.ID()) }
func (d *dataChannel) MaxRetransmits() (uint16, bool)    { return optional(d.dc.MaxRetransmits()) }
func (d *dataChannel) MaxPacketLifeTime() (uint16, bool) { return optional(d.dc.MaxPacketLifeTime()) }

func (d *dataChannel) Send(data []byte, binary bool) error {
	if binary {
		return d.dc.Send(data)
	}
	return d.dc.SendText(string(data))
}

func (d *dataChannel) Close() error { return d.dc.Close() }

func (d *dataChannel) Observe(fn func(wrtc.DataChannelEvent)) {
	d.dc.OnOpen(func() {
		fn(wrtc.DataChannelStateChange{State: wrtc.DataChannelStateOpen})
	})
	d.dc.OnClose(func() {
		fn(wrtc.DataChannelStateChange{State: wrtc.DataChannelStateClosed})
	})
	d.dc.OnMessage(func(m webrtc.DataChannelMessage) {
		fn(wrtc.DataChannelMessage{Data: m.Data, Binary: !m.IsString})
	})
	d.dc.OnError(func(err error) {
		fn(wrtc.DataChannelError{Err: err})
	})
	d.dc.OnBufferedAmountLow(func() {
		fn(wrtc.DataChannelBufferedAmountLow{})
	})
}

type dtlsTransport struct {
	handle uintptr
	t      *webrtc.DTLSTransport
}

func (d *dtlsTransport) Handle() uintptr { return d.handle }

func (d *dtlsTransport) State() wrtc.DTLSTransportState { return dtlsState(d.t.State()) }

type sctpTransport struct {
	handle uintptr
	pc     *peerConnection
	t      *webrtc.SCTPTransport
}

func (s *sctpTransport) Handle() uintptr { return s.handle }

func (s *sctpTransport) State() wrtc.SCTPTransportState { return sctpState(s.t.State()) }

func (s *sctpTransport) Transport() wrtc.NativeDTLSTransport {
	return s.pc.transport(s.t.Transport())
}

// MaxChannels is known once the association is up.
func (s *sctpTransport) MaxChannels() (uint16, bool) {
	if s.t.State() != webrtc.SCTPTransportStateConnected {
		return 0, false
	}
	return s.t.MaxChannels(), true
}

var (
	_ wrtc.NativeDataChannel   = (*dataChannel)(nil)
	_ wrtc.NativeDTLSTransport = (*dtlsTransport)(nil)
	_ wrtc.NativeSCTPTransport = (*sctpTransport)(nil)
)
