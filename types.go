package wrtc

// SessionDescription is an SDP blob with its type.
type SessionDescription struct {
	Type SDPType
	SDP  string
}

// ICECandidateInit describes a single ICE candidate. A nil *ICECandidateInit
// delivered to OnICECandidate marks the end of gathering.
type ICECandidateInit struct {
	Candidate        string
	SDPMid           *string
	SDPMLineIndex    *uint16
	UsernameFragment *string
}

// ICECandidateError describes a failure to gather a candidate from a
// STUN or TURN server.
type ICECandidateError struct {
	HostCandidate string
	URL           string
	ErrorCode     int
	ErrorText     string
}

// ICEServer is a STUN or TURN server.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// PortRange restricts the local UDP ports used for ICE. Zero values mean
// no restriction.
type PortRange struct {
	Min uint16
	Max uint16
}

// Configuration is the per-connection configuration.
type Configuration struct {
	ICEServers           []ICEServer
	ICETransportPolicy   ICETransportPolicy
	BundlePolicy         BundlePolicy
	RTCPMuxPolicy        RTCPMuxPolicy
	ICECandidatePoolSize uint8
	SDPSemantics         SDPSemantics
	PortRange            PortRange
}

func (c Configuration) clone() Configuration {
	out := c
	out.ICEServers = make([]ICEServer, len(c.ICEServers))
	for i, s := range c.ICEServers {
		s.URLs = append([]string(nil), s.URLs...)
		out.ICEServers[i] = s
	}
	return out
}

// OfferOptions configures CreateOffer.
type OfferOptions struct {
	ICERestart             bool
	VoiceActivityDetection bool
}

// AnswerOptions configures CreateAnswer.
type AnswerOptions struct {
	VoiceActivityDetection bool
}

// RTPCodecParameters describes one negotiated codec.
type RTPCodecParameters struct {
	MimeType    string
	PayloadType uint8
	ClockRate   uint32
	Channels    uint16
	SDPFmtpLine string
}

// RTPEncodingParameters describes one outgoing encoding.
type RTPEncodingParameters struct {
	RID                   string
	Active                bool
	MaxBitrate            uint64
	ScaleResolutionDownBy float64
}

// RTPSendParameters is the parameter set of a sender.
type RTPSendParameters struct {
	TransactionID string
	Encodings     []RTPEncodingParameters
	Codecs        []RTPCodecParameters
}

// TransceiverInit configures AddTransceiver.
type TransceiverInit struct {
	Direction     TransceiverDirection
	StreamIDs     []string
	SendEncodings []RTPEncodingParameters
}

// DataChannelInit configures CreateDataChannel.
type DataChannelInit struct {
	Ordered           *bool
	MaxPacketLifeTime *uint16
	MaxRetransmits    *uint16
	Protocol          string
	Negotiated        bool
	ID                *uint16
}

// StatsReport maps stat ids to their fields.
type StatsReport map[string]map[string]any
