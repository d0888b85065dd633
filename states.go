package wrtc

import "fmt"

// SignalingState is the negotiation phase of a connection.
type SignalingState int

const (
	SignalingStateNew SignalingState = iota
	SignalingStateStable
	SignalingStateHaveLocalOffer
	SignalingStateHaveRemoteOffer
	SignalingStateHaveLocalPranswer
	SignalingStateHaveRemotePranswer
	SignalingStateClosed
	signalingStateCount
)

func (s SignalingState) String() string {
	switch s {
	case SignalingStateNew:
		return "new"
	case SignalingStateStable:
		return "stable"
	case SignalingStateHaveLocalOffer:
		return "have-local-offer"
	case SignalingStateHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingStateHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingStateHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ICEConnectionState is the aggregate state of the ICE transports.
type ICEConnectionState int

const (
	ICEConnectionStateNew ICEConnectionState = iota
	ICEConnectionStateChecking
	ICEConnectionStateConnected
	ICEConnectionStateCompleted
	ICEConnectionStateDisconnected
	ICEConnectionStateFailed
	ICEConnectionStateClosed
	iceConnectionStateCount
)

func (s ICEConnectionState) String() string {
	switch s {
	case ICEConnectionStateNew:
		return "new"
	case ICEConnectionStateChecking:
		return "checking"
	case ICEConnectionStateConnected:
		return "connected"
	case ICEConnectionStateCompleted:
		return "completed"
	case ICEConnectionStateDisconnected:
		return "disconnected"
	case ICEConnectionStateFailed:
		return "failed"
	case ICEConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerConnectionState is the overall connection state.
type PeerConnectionState int

const (
	PeerConnectionStateNew PeerConnectionState = iota
	PeerConnectionStateConnecting
	PeerConnectionStateConnected
	PeerConnectionStateDisconnected
	PeerConnectionStateFailed
	PeerConnectionStateClosed
	peerConnectionStateCount
)

func (s PeerConnectionState) String() string {
	switch s {
	case PeerConnectionStateNew:
		return "new"
	case PeerConnectionStateConnecting:
		return "connecting"
	case PeerConnectionStateConnected:
		return "connected"
	case PeerConnectionStateDisconnected:
		return "disconnected"
	case PeerConnectionStateFailed:
		return "failed"
	case PeerConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ICEGatheringState is the candidate gathering state.
type ICEGatheringState int

const (
	ICEGatheringStateNew ICEGatheringState = iota
	ICEGatheringStateGathering
	ICEGatheringStateComplete
	iceGatheringStateCount
)

func (s ICEGatheringState) String() string {
	switch s {
	case ICEGatheringStateNew:
		return "new"
	case ICEGatheringStateGathering:
		return "gathering"
	case ICEGatheringStateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// SDPType is the type of a session description.
type SDPType int

const (
	SDPTypeOffer SDPType = iota
	SDPTypePranswer
	SDPTypeAnswer
	SDPTypeRollback
	sdpTypeCount
)

func (t SDPType) String() string {
	switch t {
	case SDPTypeOffer:
		return "offer"
	case SDPTypePranswer:
		return "pranswer"
	case SDPTypeAnswer:
		return "answer"
	case SDPTypeRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// TransceiverDirection is the negotiated direction of a transceiver.
type TransceiverDirection int

const (
	TransceiverDirectionSendRecv TransceiverDirection = iota
	TransceiverDirectionSendOnly
	TransceiverDirectionRecvOnly
	TransceiverDirectionInactive
	TransceiverDirectionStopped
	transceiverDirectionCount
)

func (d TransceiverDirection) String() string {
	switch d {
	case TransceiverDirectionSendRecv:
		return "sendrecv"
	case TransceiverDirectionSendOnly:
		return "sendonly"
	case TransceiverDirectionRecvOnly:
		return "recvonly"
	case TransceiverDirectionInactive:
		return "inactive"
	case TransceiverDirectionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DataChannelState is the ready state of a data channel.
type DataChannelState int

const (
	DataChannelStateConnecting DataChannelState = iota
	DataChannelStateOpen
	DataChannelStateClosing
	DataChannelStateClosed
	dataChannelStateCount
)

func (s DataChannelState) String() string {
	switch s {
	case DataChannelStateConnecting:
		return "connecting"
	case DataChannelStateOpen:
		return "open"
	case DataChannelStateClosing:
		return "closing"
	case DataChannelStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DTLSTransportState is the state of a DTLS transport.
type DTLSTransportState int

const (
	DTLSTransportStateNew DTLSTransportState = iota
	DTLSTransportStateConnecting
	DTLSTransportStateConnected
	DTLSTransportStateClosed
	DTLSTransportStateFailed
	dtlsTransportStateCount
)

func (s DTLSTransportState) String() string {
	switch s {
	case DTLSTransportStateNew:
		return "new"
	case DTLSTransportStateConnecting:
		return "connecting"
	case DTLSTransportStateConnected:
		return "connected"
	case DTLSTransportStateClosed:
		return "closed"
	case DTLSTransportStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SCTPTransportState is the state of an SCTP transport.
type SCTPTransportState int

const (
	SCTPTransportStateConnecting SCTPTransportState = iota
	SCTPTransportStateConnected
	SCTPTransportStateClosed
	sctpTransportStateCount
)

func (s SCTPTransportState) String() string {
	switch s {
	case SCTPTransportStateConnecting:
		return "connecting"
	case SCTPTransportStateConnected:
		return "connected"
	case SCTPTransportStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SDPSemantics selects the negotiation mode of a connection. It is fixed
// at construction.
type SDPSemantics int

const (
	SDPSemanticsUnifiedPlan SDPSemantics = iota // transceiver-based
	SDPSemanticsPlanB                           // legacy stream-based
	sdpSemanticsCount
)

func (s SDPSemantics) String() string {
	switch s {
	case SDPSemanticsUnifiedPlan:
		return "unified-plan"
	case SDPSemanticsPlanB:
		return "plan-b"
	default:
		return "unknown"
	}
}

// ICETransportPolicy limits the candidates the engine may use.
type ICETransportPolicy int

const (
	ICETransportPolicyAll ICETransportPolicy = iota
	ICETransportPolicyRelay
	iceTransportPolicyCount
)

func (p ICETransportPolicy) String() string {
	switch p {
	case ICETransportPolicyAll:
		return "all"
	case ICETransportPolicyRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// BundlePolicy controls media bundling during negotiation.
type BundlePolicy int

const (
	BundlePolicyBalanced BundlePolicy = iota
	BundlePolicyMaxCompat
	BundlePolicyMaxBundle
	bundlePolicyCount
)

func (p BundlePolicy) String() string {
	switch p {
	case BundlePolicyBalanced:
		return "balanced"
	case BundlePolicyMaxCompat:
		return "max-compat"
	case BundlePolicyMaxBundle:
		return "max-bundle"
	default:
		return "unknown"
	}
}

// RTCPMuxPolicy controls RTCP multiplexing.
type RTCPMuxPolicy int

const (
	RTCPMuxPolicyRequire RTCPMuxPolicy = iota
	RTCPMuxPolicyNegotiate
	rtcpMuxPolicyCount
)

func (p RTCPMuxPolicy) String() string {
	switch p {
	case RTCPMuxPolicyRequire:
		return "require"
	case RTCPMuxPolicyNegotiate:
		return "negotiate"
	default:
		return "unknown"
	}
}

type enum interface {
	~int
	String() string
}

func parseEnum[T enum](name, s string, count T) (T, error) {
	for v := T(0); v < count; v++ {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q", ErrTypeMismatch, name, s)
}

// ParseSignalingState parses the string form of a SignalingState.
func ParseSignalingState(s string) (SignalingState, error) {
	return parseEnum("signaling state", s, signalingStateCount)
}

// ParseICEConnectionState parses the string form of an ICEConnectionState.
func ParseICEConnectionState(s string) (ICEConnectionState, error) {
	return parseEnum("ice connection state", s, iceConnectionStateCount)
}

// ParsePeerConnectionState parses the string form of a PeerConnectionState.
func ParsePeerConnectionState(s string) (PeerConnectionState, error) {
	return parseEnum("connection state", s, peerConnectionStateCount)
}

// ParseICEGatheringState parses the string form of an ICEGatheringState.
func ParseICEGatheringState(s string) (ICEGatheringState, error) {
	return parseEnum("ice gathering state", s, iceGatheringStateCount)
}

// ParseSDPType parses the string form of an SDPType.
func ParseSDPType(s string) (SDPType, error) {
	return parseEnum("sdp type", s, sdpTypeCount)
}

// ParseTransceiverDirection parses the string form of a TransceiverDirection.
func ParseTransceiverDirection(s string) (TransceiverDirection, error) {
	return parseEnum("transceiver direction", s, transceiverDirectionCount)
}

// ParseDataChannelState parses the string form of a DataChannelState.
func ParseDataChannelState(s string) (DataChannelState, error) {
	return parseEnum("data channel state", s, dataChannelStateCount)
}

// ParseDTLSTransportState parses the string form of a DTLSTransportState.
func ParseDTLSTransportState(s string) (DTLSTransportState, error) {
	return parseEnum("dtls transport state", s, dtlsTransportStateCount)
}

// ParseSCTPTransportState parses the string form of an SCTPTransportState.
func ParseSCTPTransportState(s string) (SCTPTransportState, error) {
	return parseEnum("sctp transport state", s, sctpTransportStateCount)
}

// ParseSDPSemantics parses the string form of an SDPSemantics.
func ParseSDPSemantics(s string) (SDPSemantics, error) {
	return parseEnum("sdp semantics", s, sdpSemanticsCount)
}

// ParseICETransportPolicy parses the string form of an ICETransportPolicy.
func ParseICETransportPolicy(s string) (ICETransportPolicy, error) {
	return parseEnum("ice transport policy", s, iceTransportPolicyCount)
}

// ParseBundlePolicy parses the string form of a BundlePolicy.
func ParseBundlePolicy(s string) (BundlePolicy, error) {
	return parseEnum("bundle policy", s, bundlePolicyCount)
}

// ParseRTCPMuxPolicy parses the string form of an RTCPMuxPolicy.
func ParseRTCPMuxPolicy(s string) (RTCPMuxPolicy, error) {
	return parseEnum("rtcp mux policy", s, rtcpMuxPolicyCount)
}
