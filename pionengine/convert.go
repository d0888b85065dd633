package pionengine

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/wrtc"
)

// Pion state names match the bridge's, so state conversion goes through
// the string form. Values pion adds on its own, like "unknown", fall back
// to the zero state.

func parseOr[T any](parse func(string) (T, error), s string) T {
	v, err := parse(s)
	if err != nil {
		var zero T
		return zero
	}
	return v
}

func signalingState(s webrtc.SignalingState) wrtc.SignalingState {
	return parseOr(wrtc.ParseSignalingState, s.String())
}

func iceConnectionState(s webrtc.ICEConnectionState) wrtc.ICEConnectionState {
	return parseOr(wrtc.ParseICEConnectionState, s.String())
}

func connectionState(s webrtc.PeerConnectionState) wrtc.PeerConnectionState {
	return parseOr(wrtc.ParsePeerConnectionState, s.String())
}

func gatheringState(s webrtc.ICEGatheringState) wrtc.ICEGatheringState {
	return parseOr(wrtc.ParseICEGatheringState, s.String())
}

func dataChannelState(s webrtc.DataChannelState) wrtc.DataChannelState {
	return parseOr(wrtc.ParseDataChannelState, s.String())
}

func dtlsState(s webrtc.DTLSTransportState) wrtc.DTLSTransportState {
	return parseOr(wrtc.ParseDTLSTransportState, s.String())
}

func sctpState(s webrtc.SCTPTransportState) wrtc.SCTPTransportState {
	return parseOr(wrtc.ParseSCTPTransportState, s.String())
}

func direction(d webrtc.RTPTransceiverDirection) wrtc.TransceiverDirection {
	return parseOr(wrtc.ParseTransceiverDirection, d.String())
}

func toPionDirection(d wrtc.TransceiverDirection) webrtc.RTPTransceiverDirection {
	return webrtc.NewRTPTransceiverDirection(d.String())
}

func toPionDescription(d wrtc.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type.String()), SDP: d.SDP}
}

func description(d *webrtc.SessionDescription) *wrtc.SessionDescription {
	if d == nil {
		return nil
	}
	t, err := wrtc.ParseSDPType(d.Type.String())
	if err != nil {
		return nil
	}
	return &wrtc.SessionDescription{Type: t, SDP: d.SDP}
}

func toPionConfiguration(cfg wrtc.Configuration) webrtc.Configuration {
	out := webrtc.Configuration{ICECandidatePoolSize: cfg.ICECandidatePoolSize}
	for _, s := range cfg.ICEServers {
		server := webrtc.ICEServer{URLs: append([]string(nil), s.URLs...), Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out.ICEServers = append(out.ICEServers, server)
	}
	switch cfg.ICETransportPolicy {
	case wrtc.ICETransportPolicyRelay:
		out.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	default:
		out.ICETransportPolicy = webrtc.ICETransportPolicyAll
	}
	switch cfg.BundlePolicy {
	case wrtc.BundlePolicyMaxCompat:
		out.BundlePolicy = webrtc.BundlePolicyMaxCompat
	case wrtc.BundlePolicyMaxBundle:
		out.BundlePolicy = webrtc.BundlePolicyMaxBundle
	default:
		out.BundlePolicy = webrtc.BundlePolicyBalanced
	}
	switch cfg.RTCPMuxPolicy {
	case wrtc.RTCPMuxPolicyNegotiate:
		out.RTCPMuxPolicy = webrtc.RTCPMuxPolicyNegotiate
	default:
		out.RTCPMuxPolicy = webrtc.RTCPMuxPolicyRequire
	}
	return out
}

func candidateInit(c webrtc.ICECandidateInit) *wrtc.ICECandidateInit {
	return &wrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func toPionCandidate(c wrtc.ICECandidateInit) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func toPionDataChannelInit(init wrtc.DataChannelInit) *webrtc.DataChannelInit {
	out := &webrtc.DataChannelInit{
		Ordered:           init.Ordered,
		MaxPacketLifeTime: init.MaxPacketLifeTime,
		MaxRetransmits:    init.MaxRetransmits,
		ID:                init.ID,
	}
	if init.Protocol != "" {
		protocol := init.Protocol
		out.Protocol = &protocol
	}
	if init.Negotiated {
		negotiated := true
		out.Negotiated = &negotiated
	}
	return out
}

func toPionCodecs(codecs []wrtc.RTPCodecParameters) []webrtc.RTPCodecParameters {
	out := make([]webrtc.RTPCodecParameters, 0, len(codecs))
	for _, c := range codecs {
		out = append(out, webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    c.MimeType,
				ClockRate:   c.ClockRate,
				Channels:    c.Channels,
				SDPFmtpLine: c.SDPFmtpLine,
			},
			PayloadType: webrtc.PayloadType(c.PayloadType),
		})
	}
	return out
}

func codecs(in []webrtc.RTPCodecParameters) []wrtc.RTPCodecParameters {
	out := make([]wrtc.RTPCodecParameters, 0, len(in))
	for _, c := range in {
		out = append(out, wrtc.RTPCodecParameters{
			MimeType:    c.MimeType,
			PayloadType: uint8(c.PayloadType),
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
			SDPFmtpLine: c.SDPFmtpLine,
		})
	}
	return out
}

func toPionEncodings(encodings []wrtc.RTPEncodingParameters) []webrtc.RTPEncodingParameters {
	var out []webrtc.RTPEncodingParameters
	for _, e := range encodings {
		var p webrtc.RTPEncodingParameters
		p.RID = e.RID
		out = append(out, p)
	}
	return out
}

// statsReport flattens pion's typed stats through their JSON form.
func statsReport(report webrtc.StatsReport) (wrtc.StatsReport, error) {
	out := make(wrtc.StatsReport, len(report))
	for id, s := range report {
		raw, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		out[id] = fields
	}
	return out, nil
}
