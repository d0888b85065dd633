package nativeengine

import (
	"encoding/json"

	"github.com/thesyncim/wrtc"
)

// JSON shapes exchanged with the shim. Enums are integers in wrtc order.

type iceServerJSON struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type configJSON struct {
	ICEServers           []iceServerJSON `json:"iceServers"`
	ICETransportPolicy   int             `json:"iceTransportPolicy"`
	BundlePolicy         int             `json:"bundlePolicy"`
	RTCPMuxPolicy        int             `json:"rtcpMuxPolicy"`
	ICECandidatePoolSize uint8           `json:"iceCandidatePoolSize"`
	SDPSemantics         int             `json:"sdpSemantics"`
	PortMin              uint16          `json:"portMin,omitempty"`
	PortMax              uint16          `json:"portMax,omitempty"`
}

func encodeConfig(cfg wrtc.Configuration) string {
	out := configJSON{
		ICEServers:           []iceServerJSON{},
		ICETransportPolicy:   int(cfg.ICETransportPolicy),
		BundlePolicy:         int(cfg.BundlePolicy),
		RTCPMuxPolicy:        int(cfg.RTCPMuxPolicy),
		ICECandidatePoolSize: cfg.ICECandidatePoolSize,
		SDPSemantics:         int(cfg.SDPSemantics),
		PortMin:              cfg.PortRange.Min,
		PortMax:              cfg.PortRange.Max,
	}
	for _, s := range cfg.ICEServers {
		out.ICEServers = append(out.ICEServers, iceServerJSON(s))
	}
	return encode(out)
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only plain data types are encoded.
		panic(err)
	}
	return string(b)
}

type transceiverInfo struct {
	Kind             int    `json:"kind"`
	Mid              string `json:"mid"`
	HasMid           bool   `json:"hasMid"`
	Direction        int    `json:"direction"`
	CurrentDirection *int   `json:"currentDirection"`
	FiredDirection   *int   `json:"firedDirection"`
	Stopped          bool   `json:"stopped"`
	Sender           uint64 `json:"sender"`
	Receiver         uint64 `json:"receiver"`
}

type senderInfo struct {
	ID        string `json:"id"`
	Kind      int    `json:"kind"`
	Track     uint64 `json:"track"`
	Transport uint64 `json:"transport"`
}

type receiverInfo struct {
	ID        string   `json:"id"`
	Track     uint64   `json:"track"`
	Transport uint64   `json:"transport"`
	Streams   []string `json:"streams"`
}

type trackInfo struct {
	ID      string `json:"id"`
	Kind    int    `json:"kind"`
	Enabled bool   `json:"enabled"`
	State   int    `json:"state"`
}

type channelInfo struct {
	Label             string  `json:"label"`
	ID                *uint16 `json:"id"`
	Ordered           bool    `json:"ordered"`
	Protocol          string  `json:"protocol"`
	Negotiated        bool    `json:"negotiated"`
	MaxRetransmits    *uint16 `json:"maxRetransmits"`
	MaxPacketLifeTime *uint16 `json:"maxPacketLifeTime"`
	State             int     `json:"readyState"`
	BufferedAmount    uint64  `json:"bufferedAmount"`
}

type sctpInfo struct {
	State       int     `json:"state"`
	Transport   uint64  `json:"transport"`
	MaxChannels *uint16 `json:"maxChannels"`
}

type channelInitJSON struct {
	Ordered           *bool   `json:"ordered,omitempty"`
	MaxPacketLifeTime *uint16 `json:"maxPacketLifeTime,omitempty"`
	MaxRetransmits    *uint16 `json:"maxRetransmits,omitempty"`
	Protocol          string  `json:"protocol,omitempty"`
	Negotiated        bool    `json:"negotiated,omitempty"`
	ID                *uint16 `json:"id,omitempty"`
}

type transceiverInitJSON struct {
	Direction     int            `json:"direction"`
	StreamIDs     []string       `json:"streams"`
	SendEncodings []encodingJSON `json:"sendEncodings,omitempty"`
}

type encodingJSON struct {
	RID                   string  `json:"rid,omitempty"`
	Active                bool    `json:"active"`
	MaxBitrate            uint64  `json:"maxBitrate,omitempty"`
	ScaleResolutionDownBy float64 `json:"scaleResolutionDownBy,omitempty"`
}

type codecJSON struct {
	MimeType    string `json:"mimeType"`
	PayloadType uint8  `json:"payloadType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
}

type parametersJSON struct {
	TransactionID string         `json:"transactionId"`
	Encodings     []encodingJSON `json:"encodings"`
	Codecs        []codecJSON    `json:"codecs"`
}

func encodeParameters(p wrtc.RTPSendParameters) parametersJSON {
	out := parametersJSON{TransactionID: p.TransactionID}
	for _, e := range p.Encodings {
		out.Encodings = append(out.Encodings, encodingJSON(e))
	}
	for _, c := range p.Codecs {
		out.Codecs = append(out.Codecs, codecJSON(c))
	}
	return out
}

func (p parametersJSON) params() wrtc.RTPSendParameters {
	out := wrtc.RTPSendParameters{TransactionID: p.TransactionID}
	for _, e := range p.Encodings {
		out.Encodings = append(out.Encodings, wrtc.RTPEncodingParameters(e))
	}
	for _, c := range p.Codecs {
		out.Codecs = append(out.Codecs, wrtc.RTPCodecParameters(c))
	}
	return out
}

func encodeTransceiverInit(init wrtc.TransceiverInit) string {
	out := transceiverInitJSON{Direction: int(init.Direction), StreamIDs: init.StreamIDs}
	if out.StreamIDs == nil {
		out.StreamIDs = []string{}
	}
	for _, e := range init.SendEncodings {
		out.SendEncodings = append(out.SendEncodings, encodingJSON(e))
	}
	return encode(out)
}

func encodeCodecs(codecs []wrtc.RTPCodecParameters) string {
	out := make([]codecJSON, 0, len(codecs))
	for _, c := range codecs {
		out = append(out, codecJSON(c))
	}
	return encode(out)
}

func decode[T any](s string) (T, bool) {
	var v T
	if s == "" {
		return v, false
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return v, false
	}
	return v, true
}

func optional(v *uint16) (uint16, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func optionalDirection(v *int) (wrtc.TransceiverDirection, bool) {
	if v == nil {
		return 0, false
	}
	return wrtc.TransceiverDirection(*v), true
}
