package script

import (
	"github.com/Shopify/go-lua"

	"github.com/thesyncim/wrtc"
)

func fieldString(l *lua.State, index int, name string) (string, bool) {
	l.Field(index, name)
	defer l.Pop(1)
	if l.IsNil(-1) {
		return "", false
	}
	return l.ToString(-1)
}

func fieldInt(l *lua.State, index int, name string) (int, bool) {
	l.Field(index, name)
	defer l.Pop(1)
	if l.IsNil(-1) {
		return 0, false
	}
	return l.ToInteger(-1)
}

func fieldBool(l *lua.State, index int, name string) (bool, bool) {
	l.Field(index, name)
	defer l.Pop(1)
	if l.IsNil(-1) {
		return false, false
	}
	return l.ToBoolean(-1), true
}

// stringList reads a field that is either a string or an array of strings.
func stringList(l *lua.State, index int, name string) []string {
	l.Field(index, name)
	defer l.Pop(1)
	switch {
	case l.IsString(-1):
		s, _ := l.ToString(-1)
		return []string{s}
	case l.IsTable(-1):
		var out []string
		for i := 1; ; i++ {
			l.RawGetInt(-1, i)
			s, ok := l.ToString(-1)
			l.Pop(1)
			if !ok {
				return out
			}
			out = append(out, s)
		}
	}
	return nil
}

func checkEnum[T any](l *lua.State, arg int, s string, parse func(string) (T, error)) T {
	v, err := parse(s)
	if err != nil {
		lua.ArgumentError(l, arg, err.Error())
	}
	return v
}

// configuration reads the table at index over base. Recognized keys are
// ice_servers, ice_transport_policy, bundle_policy, rtcp_mux_policy and
// semantics.
func configuration(l *lua.State, index int, base wrtc.Configuration) wrtc.Configuration {
	cfg := base
	if l.IsNoneOrNil(index) {
		return cfg
	}
	lua.CheckType(l, index, lua.TypeTable)
	index = l.AbsIndex(index)

	l.Field(index, "ice_servers")
	if l.IsTable(-1) {
		cfg.ICEServers = nil
		servers := l.AbsIndex(-1)
		for i := 1; ; i++ {
			l.RawGetInt(servers, i)
			if l.IsNil(-1) {
				l.Pop(1)
				break
			}
			var s wrtc.ICEServer
			if l.IsString(-1) {
				url, _ := l.ToString(-1)
				s.URLs = []string{url}
			} else if l.IsTable(-1) {
				s.URLs = stringList(l, -1, "urls")
				s.Username, _ = fieldString(l, -1, "username")
				s.Credential, _ = fieldString(l, -1, "credential")
			}
			cfg.ICEServers = append(cfg.ICEServers, s)
			l.Pop(1)
		}
	}
	l.Pop(1)

	if s, ok := fieldString(l, index, "ice_transport_policy"); ok {
		cfg.ICETransportPolicy = checkEnum(l, 1, s, wrtc.ParseICETransportPolicy)
	}
	if s, ok := fieldString(l, index, "bundle_policy"); ok {
		cfg.BundlePolicy = checkEnum(l, 1, s, wrtc.ParseBundlePolicy)
	}
	if s, ok := fieldString(l, index, "rtcp_mux_policy"); ok {
		cfg.RTCPMuxPolicy = checkEnum(l, 1, s, wrtc.ParseRTCPMuxPolicy)
	}
	if s, ok := fieldString(l, index, "semantics"); ok {
		cfg.SDPSemantics = checkEnum(l, 1, s, wrtc.ParseSDPSemantics)
	}
	return cfg
}

func description(l *lua.State, index int) wrtc.SessionDescription {
	lua.CheckType(l, index, lua.TypeTable)
	typ, _ := fieldString(l, index, "type")
	sdp, _ := fieldString(l, index, "sdp")
	return wrtc.SessionDescription{Type: checkEnum(l, index, typ, wrtc.ParseSDPType), SDP: sdp}
}

func pushDescription(l *lua.State, d wrtc.SessionDescription) {
	l.NewTable()
	l.PushString(d.Type.String())
	l.SetField(-2, "type")
	l.PushString(d.SDP)
	l.SetField(-2, "sdp")
}

func candidate(l *lua.State, index int) wrtc.ICECandidateInit {
	lua.CheckType(l, index, lua.TypeTable)
	var c wrtc.ICECandidateInit
	c.Candidate, _ = fieldString(l, index, "candidate")
	if mid, ok := fieldString(l, index, "sdp_mid"); ok {
		c.SDPMid = &mid
	}
	if i, ok := fieldInt(l, index, "sdp_mline_index"); ok {
		idx := uint16(i)
		c.SDPMLineIndex = &idx
	}
	if u, ok := fieldString(l, index, "username_fragment"); ok {
		c.UsernameFragment = &u
	}
	return c
}

// pushCandidate pushes c, or nil for end of candidates.
func pushCandidate(l *lua.State, c *wrtc.ICECandidateInit) {
	if c == nil {
		l.PushNil()
		return
	}
	l.NewTable()
	l.PushString(c.Candidate)
	l.SetField(-2, "candidate")
	if c.SDPMid != nil {
		l.PushString(*c.SDPMid)
		l.SetField(-2, "sdp_mid")
	}
	if c.SDPMLineIndex != nil {
		l.PushInteger(int(*c.SDPMLineIndex))
		l.SetField(-2, "sdp_mline_index")
	}
	if c.UsernameFragment != nil {
		l.PushString(*c.UsernameFragment)
		l.SetField(-2, "username_fragment")
	}
}

func channelInit(l *lua.State, index int) *wrtc.DataChannelInit {
	if l.IsNoneOrNil(index) {
		return nil
	}
	lua.CheckType(l, index, lua.TypeTable)
	init := &wrtc.DataChannelInit{}
	if b, ok := fieldBool(l, index, "ordered"); ok {
		init.Ordered = &b
	}
	if v, ok := fieldInt(l, index, "max_packet_life_time"); ok {
		n := uint16(v)
		init.MaxPacketLifeTime = &n
	}
	if v, ok := fieldInt(l, index, "max_retransmits"); ok {
		n := uint16(v)
		init.MaxRetransmits = &n
	}
	init.Protocol, _ = fieldString(l, index, "protocol")
	init.Negotiated, _ = fieldBool(l, index, "negotiated")
	if v, ok := fieldInt(l, index, "id"); ok {
		n := uint16(v)
		init.ID = &n
	}
	return init
}

func codecType(l *lua.State, arg int) wrtc.RTPCodecType {
	switch lua.CheckString(l, arg) {
	case "audio":
		return wrtc.RTPCodecTypeAudio
	case "video":
		return wrtc.RTPCodecTypeVideo
	}
	lua.ArgumentError(l, arg, "kind must be audio or video")
	return wrtc.RTPCodecTypeUnknown
}

func transceiverInit(l *lua.State, index int) *wrtc.TransceiverInit {
	if l.IsNoneOrNil(index) {
		return nil
	}
	lua.CheckType(l, index, lua.TypeTable)
	init := &wrtc.TransceiverInit{Direction: wrtc.TransceiverDirectionSendRecv}
	if s, ok := fieldString(l, index, "direction"); ok {
		init.Direction = checkEnum(l, index, s, wrtc.ParseTransceiverDirection)
	}
	init.StreamIDs = stringList(l, index, "streams")
	return init
}

func pushTransceiver(l *lua.State, t *wrtc.RTPTransceiver) {
	l.NewTable()
	l.PushString(t.Kind().String())
	l.SetField(-2, "kind")
	if mid, ok := t.Mid(); ok {
		l.PushString(mid)
		l.SetField(-2, "mid")
	}
	l.PushString(t.Direction().String())
	l.SetField(-2, "direction")
	if d, ok := t.CurrentDirection(); ok {
		l.PushString(d.String())
		l.SetField(-2, "current_direction")
	}
	l.PushBoolean(t.Stopped())
	l.SetField(-2, "stopped")
}

func pushTrack(l *lua.State, ev wrtc.TrackEvent) {
	l.NewTable()
	l.PushString(ev.Track.ID())
	l.SetField(-2, "id")
	l.PushString(ev.Track.Kind().String())
	l.SetField(-2, "kind")
	l.NewTable()
	for i, s := range ev.Streams {
		l.PushString(s.ID())
		l.RawSetInt(-2, i+1)
	}
	l.SetField(-2, "streams")
	if ev.Transceiver != nil {
		if mid, ok := ev.Transceiver.Mid(); ok {
			l.PushString(mid)
			l.SetField(-2, "mid")
		}
	}
}
