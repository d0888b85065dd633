package script

import (
	"github.com/Shopify/go-lua"

	"github.com/thesyncim/wrtc"
)

const peerTypeName = "wrtc.peer"

// peer is the Lua view of a PeerConnection.
type peer struct {
	h        *host
	pc       *wrtc.PeerConnection
	handlers map[string]int
}

var peerEvents = map[string]bool{
	"signalingstatechange":     true,
	"iceconnectionstatechange": true,
	"connectionstatechange":    true,
	"icegatheringstatechange":  true,
	"candidate":                true,
	"candidateerror":           true,
	"datachannel":              true,
	"track":                    true,
	"negotiationneeded":        true,
}

func (h *host) registerPeerType() {
	lua.NewMetaTable(h.state, peerTypeName)
	h.state.NewTable()
	lua.SetFunctions(h.state, []lua.RegistryFunction{
		{Name: "id", Function: h.peerID},
		{Name: "on", Function: h.peerOn},
		{Name: "create_offer", Function: h.peerCreateOffer},
		{Name: "create_answer", Function: h.peerCreateAnswer},
		{Name: "set_local", Function: h.peerSetLocal},
		{Name: "set_remote", Function: h.peerSetRemote},
		{Name: "add_candidate", Function: h.peerAddCandidate},
		{Name: "create_data_channel", Function: h.peerCreateDataChannel},
		{Name: "add_transceiver", Function: h.peerAddTransceiver},
		{Name: "transceivers", Function: h.peerTransceivers},
		{Name: "local_description", Function: h.peerLocalDescription},
		{Name: "remote_description", Function: h.peerRemoteDescription},
		{Name: "state", Function: h.peerState},
		{Name: "stats", Function: h.peerStats},
		{Name: "restart_ice", Function: h.peerRestartICE},
		{Name: "close", Function: h.peerClose},
	}, 0)
	h.state.SetField(-2, "__index")
	h.state.Pop(1)
}

func (h *host) checkPeer(l *lua.State) *peer {
	return lua.CheckUserData(l, 1, peerTypeName).(*peer)
}

// luaPeer implements wrtc.peer{config}.
func (h *host) luaPeer(l *lua.State) int {
	cfg := configuration(l, 1, h.opts.Configuration)
	pc, err := wrtc.NewPeerConnection(h.opts.Context, cfg, wrtc.WithLogger(h.log))
	if err != nil {
		lua.Errorf(l, "wrtc.peer: %s", err.Error())
		return 0
	}
	p := &peer{h: h, pc: pc, handlers: make(map[string]int)}
	h.peers = append(h.peers, p)
	p.observe()

	l.PushUserData(p)
	lua.SetMetaTableNamed(l, peerTypeName)
	return 1
}

func (p *peer) emit(event string, args func(*lua.State) int) {
	if ref, ok := p.handlers[event]; ok {
		p.h.call(ref, args)
	}
}

func pushString(s string) func(*lua.State) int {
	return func(l *lua.State) int {
		l.PushString(s)
		return 1
	}
}

// observe wires every connection event to the Lua handler table. The
// bridge invokes these on the Loop.
func (p *peer) observe() {
	p.pc.OnSignalingStateChange(func(s wrtc.SignalingState) {
		p.emit("signalingstatechange", pushString(s.String()))
	})
	p.pc.OnICEConnectionStateChange(func(s wrtc.ICEConnectionState) {
		p.emit("iceconnectionstatechange", pushString(s.String()))
	})
	p.pc.OnConnectionStateChange(func(s wrtc.PeerConnectionState) {
		p.emit("connectionstatechange", pushString(s.String()))
	})
	p.pc.OnICEGatheringStateChange(func(s wrtc.ICEGatheringState) {
		p.emit("icegatheringstatechange", pushString(s.String()))
	})
	p.pc.OnICECandidate(func(c *wrtc.ICECandidateInit) {
		p.emit("candidate", func(l *lua.State) int {
			pushCandidate(l, c)
			return 1
		})
	})
	p.pc.OnICECandidateError(func(e wrtc.ICECandidateError) {
		p.emit("candidateerror", func(l *lua.State) int {
			l.NewTable()
			l.PushString(e.URL)
			l.SetField(-2, "url")
			l.PushInteger(e.ErrorCode)
			l.SetField(-2, "code")
			l.PushString(e.ErrorText)
			l.SetField(-2, "text")
			return 1
		})
	})
	p.pc.OnDataChannel(func(dc *wrtc.DataChannel) {
		ch := p.h.channel(dc)
		p.emit("datachannel", func(l *lua.State) int {
			ch.push(l)
			return 1
		})
	})
	p.pc.OnTrack(func(ev wrtc.TrackEvent) {
		p.emit("track", func(l *lua.State) int {
			pushTrack(l, ev)
			return 1
		})
	})
	p.pc.OnNegotiationNeeded(func() {
		p.emit("negotiationneeded", nil)
	})
}

func (h *host) peerID(l *lua.State) int {
	l.PushString(h.checkPeer(l).pc.ID())
	return 1
}

// peer:on(event, fn) replaces the handler for event; a nil fn removes it.
func (h *host) peerOn(l *lua.State) int {
	p := h.checkPeer(l)
	event := lua.CheckString(l, 2)
	if !peerEvents[event] {
		lua.ArgumentError(l, 2, "unknown event "+event)
	}
	if old, ok := p.handlers[event]; ok {
		h.unref(old)
		delete(p.handlers, event)
	}
	if ref := h.optionalRef(3); ref != 0 {
		p.handlers[event] = ref
	}
	return 0
}

func (h *host) describeResult(ref int) func(wrtc.SessionDescription, error) {
	return func(desc wrtc.SessionDescription, err error) {
		h.complete(ref, err, func(l *lua.State) int {
			pushDescription(l, desc)
			return 1
		})
	}
}

func (h *host) emptyResult(ref int) func(struct{}, error) {
	return func(_ struct{}, err error) {
		h.complete(ref, err, nil)
	}
}

// peer:create_offer([opts], fn)
func (h *host) peerCreateOffer(l *lua.State) int {
	p := h.checkPeer(l)
	var opts *wrtc.OfferOptions
	fn := 2
	if l.IsTable(2) {
		opts = &wrtc.OfferOptions{}
		opts.ICERestart, _ = fieldBool(l, 2, "ice_restart")
		opts.VoiceActivityDetection, _ = fieldBool(l, 2, "voice_activity_detection")
		fn = 3
	}
	p.pc.CreateOffer(opts).Then(h.describeResult(h.optionalRef(fn)))
	return 0
}

// peer:create_answer(fn)
func (h *host) peerCreateAnswer(l *lua.State) int {
	p := h.checkPeer(l)
	p.pc.CreateAnswer(nil).Then(h.describeResult(h.optionalRef(2)))
	return 0
}

// peer:set_local(desc, [fn])
func (h *host) peerSetLocal(l *lua.State) int {
	p := h.checkPeer(l)
	desc := description(l, 2)
	p.pc.SetLocalDescription(desc).Then(h.emptyResult(h.optionalRef(3)))
	return 0
}

// peer:set_remote(desc, [fn])
func (h *host) peerSetRemote(l *lua.State) int {
	p := h.checkPeer(l)
	desc := description(l, 2)
	p.pc.SetRemoteDescription(desc).Then(h.emptyResult(h.optionalRef(3)))
	return 0
}

// peer:add_candidate(candidate, [fn])
func (h *host) peerAddCandidate(l *lua.State) int {
	p := h.checkPeer(l)
	c := candidate(l, 2)
	p.pc.AddICECandidate(c).Then(h.emptyResult(h.optionalRef(3)))
	return 0
}

// peer:create_data_channel(label, [init]) returns a channel.
func (h *host) peerCreateDataChannel(l *lua.State) int {
	p := h.checkPeer(l)
	label := lua.CheckString(l, 2)
	dc, err := p.pc.CreateDataChannel(label, channelInit(l, 3))
	if err != nil {
		lua.Errorf(l, "create_data_channel: %s", err.Error())
		return 0
	}
	h.channel(dc).push(l)
	return 1
}

// peer:add_transceiver(kind, [init]) returns a snapshot of the transceiver.
func (h *host) peerAddTransceiver(l *lua.State) int {
	p := h.checkPeer(l)
	kind := codecType(l, 2)
	t, err := p.pc.AddTransceiver(kind, transceiverInit(l, 3))
	if err != nil {
		lua.Errorf(l, "add_transceiver: %s", err.Error())
		return 0
	}
	pushTransceiver(l, t)
	return 1
}

func (h *host) peerTransceivers(l *lua.State) int {
	p := h.checkPeer(l)
	l.NewTable()
	for i, t := range p.pc.GetTransceivers() {
		pushTransceiver(l, t)
		l.RawSetInt(-2, i+1)
	}
	return 1
}

func pushOptionalDescription(l *lua.State, d *wrtc.SessionDescription) int {
	if d == nil {
		l.PushNil()
		return 1
	}
	pushDescription(l, *d)
	return 1
}

func (h *host) peerLocalDescription(l *lua.State) int {
	return pushOptionalDescription(l, h.checkPeer(l).pc.LocalDescription())
}

func (h *host) peerRemoteDescription(l *lua.State) int {
	return pushOptionalDescription(l, h.checkPeer(l).pc.RemoteDescription())
}

// peer:state() returns {signaling, ice, connection, gathering}.
func (h *host) peerState(l *lua.State) int {
	p := h.checkPeer(l)
	l.NewTable()
	l.PushString(p.pc.SignalingState().String())
	l.SetField(-2, "signaling")
	l.PushString(p.pc.ICEConnectionState().String())
	l.SetField(-2, "ice")
	l.PushString(p.pc.ConnectionState().String())
	l.SetField(-2, "connection")
	l.PushString(p.pc.ICEGatheringState().String())
	l.SetField(-2, "gathering")
	return 1
}

// peer:stats(fn) reports the stat ids and their types.
func (h *host) peerStats(l *lua.State) int {
	p := h.checkPeer(l)
	ref := h.optionalRef(2)
	p.pc.GetStats().Then(func(report wrtc.StatsReport, err error) {
		h.complete(ref, err, func(l *lua.State) int {
			l.NewTable()
			for id, fields := range report {
				if typ, ok := fields["type"].(string); ok {
					l.PushString(typ)
				} else {
					l.PushBoolean(true)
				}
				l.SetField(-2, id)
			}
			return 1
		})
	})
	return 0
}

func (h *host) peerRestartICE(l *lua.State) int {
	h.checkPeer(l).pc.RestartICE()
	return 0
}

func (h *host) peerClose(l *lua.State) int {
	p := h.checkPeer(l)
	if err := p.pc.Close(); err != nil {
		lua.Errorf(l, "close: %s", err.Error())
	}
	return 0
}
