package wrtc

// Engine is a native real-time media engine. An Engine is shared by every
// connection created from the same Context and closed when the last
// Context reference is released.
type Engine interface {
	Name() string
	NewPeerConnection(cfg Configuration, observer EngineObserver) (NativePeerConnection, error)
	Close() error
}

// EngineObserver receives engine notifications. Engines call it from
// arbitrary goroutines; the bridge never assumes an ordering relative to
// the Loop.
type EngineObserver func(EngineEvent)

// EngineEvent is one of the event variants below. Events carry plain values
// and native handles only.
type EngineEvent interface {
	engineEvent()
}

type (
	SignalingChange     struct{ State SignalingState }
	ICEConnectionChange struct{ State ICEConnectionState }
	ConnectionChange    struct{ State PeerConnectionState }
	ICEGatheringChange  struct{ State ICEGatheringState }

	// ICECandidateFound carries a gathered candidate; nil marks the end of
	// gathering.
	ICECandidateFound struct{ Candidate *ICECandidateInit }

	ICECandidateFailed struct{ Error ICECandidateError }

	// DataChannelOpened delivers a channel created by the remote peer.
	DataChannelOpened struct{ Channel NativeDataChannel }

	// TrackAdded is raised in transceiver mode when a transceiver starts
	// receiving.
	TrackAdded struct{ Transceiver NativeTransceiver }

	// ReceiverAdded is raised in legacy mode when a receiver appears.
	ReceiverAdded struct {
		Receiver NativeReceiver
		Streams  []NativeStream
	}

	NegotiationNeeded struct{}
)

func (SignalingChange) engineEvent()     {}
func (ICEConnectionChange) engineEvent() {}
func (ConnectionChange) engineEvent()    {}
func (ICEGatheringChange) engineEvent()  {}
func (ICECandidateFound) engineEvent()   {}
func (ICECandidateFailed) engineEvent()  {}
func (DataChannelOpened) engineEvent()   {}
func (TrackAdded) engineEvent()          {}
func (ReceiverAdded) engineEvent()       {}
func (NegotiationNeeded) engineEvent()   {}

// NativePeerConnection is the engine side of a connection. Methods taking a
// done callback are asynchronous; done may run on any goroutine.
type NativePeerConnection interface {
	CreateOffer(opts OfferOptions, done func(SessionDescription, error))
	CreateAnswer(opts AnswerOptions, done func(SessionDescription, error))
	SetLocalDescription(desc SessionDescription, done func(error))
	SetRemoteDescription(desc SessionDescription, done func(error))
	AddICECandidate(candidate ICECandidateInit, done func(error))
	GetStats(done func(StatsReport, error))

	AddTrack(track NativeTrack, streamIDs []string) (NativeSender, error)
	RemoveTrack(sender NativeSender) error
	// AddTransceiver adds a transceiver of the given kind. track may be nil.
	AddTransceiver(kind RTPCodecType, track NativeTrack, init TransceiverInit) (NativeTransceiver, error)
	CreateDataChannel(label string, init DataChannelInit) (NativeDataChannel, error)

	Senders() []NativeSender
	Receivers() []NativeReceiver
	Transceivers() []NativeTransceiver
	SCTP() NativeSCTPTransport

	Configuration() Configuration
	SetConfiguration(cfg Configuration) error

	SignalingState() SignalingState
	ICEConnectionState() ICEConnectionState
	ConnectionState() PeerConnectionState
	ICEGatheringState() ICEGatheringState

	LocalDescription() *SessionDescription
	CurrentLocalDescription() *SessionDescription
	PendingLocalDescription() *SessionDescription
	RemoteDescription() *SessionDescription
	CurrentRemoteDescription() *SessionDescription
	PendingRemoteDescription() *SessionDescription

	RestartICE()
	Close() error
}

// NativeTransceiver is identified by Handle.
type NativeTransceiver interface {
	Handle() uintptr
	Kind() RTPCodecType
	Mid() (string, bool)
	Direction() TransceiverDirection
	CurrentDirection() (TransceiverDirection, bool)
	FiredDirection() (TransceiverDirection, bool)
	Stopped() bool
	Sender() NativeSender
	Receiver() NativeReceiver
	SetDirection(d TransceiverDirection) error
	Stop() error
	SetCodecPreferences(codecs []RTPCodecParameters) error
}

// NativeSender is identified by ID.
type NativeSender interface {
	ID() string
	Kind() RTPCodecType
	Track() NativeTrack
	Transport() NativeDTLSTransport
	ReplaceTrack(track NativeTrack) error
	SetStreams(streamIDs []string) error
	Parameters() RTPSendParameters
	SetParameters(params RTPSendParameters) error
}

// NativeReceiver is identified by ID.
type NativeReceiver interface {
	ID() string
	Track() NativeTrack
	Transport() NativeDTLSTransport
	Streams() []NativeStream
}

// NativeTrack is a media source or sink, identified by ID.
type NativeTrack interface {
	ID() string
	Kind() RTPCodecType
	Enabled() bool
	SetEnabled(enabled bool)
	State() TrackState
}

// NativeStream is a named group of tracks.
type NativeStream interface {
	ID() string
}

// DataChannelEvent is one of DataChannelStateChange, DataChannelMessage,
// DataChannelError or DataChannelBufferedAmountLow.
type DataChannelEvent interface {
	dataChannelEvent()
}

type (
	DataChannelStateChange struct{ State DataChannelState }

	DataChannelMessage struct {
		Data   []byte
		Binary bool
	}

	DataChannelError struct{ Err error }

	DataChannelBufferedAmountLow struct{}
)

func (DataChannelStateChange) dataChannelEvent()       {}
func (DataChannelMessage) dataChannelEvent()           {}
func (DataChannelError) dataChannelEvent()             {}
func (DataChannelBufferedAmountLow) dataChannelEvent() {}

// NativeDataChannel is identified by Handle.
type NativeDataChannel interface {
	Handle() uintptr
	Label() string
	ID() (uint16, bool)
	Ordered() bool
	Protocol() string
	Negotiated() bool
	MaxRetransmits() (uint16, bool)
	MaxPacketLifeTime() (uint16, bool)
	ReadyState() DataChannelState
	BufferedAmount() uint64
	Send(data []byte, binary bool) error
	Close() error
	// Observe registers the channel's event sink. Events may arrive on any
	// goroutine.
	Observe(fn func(DataChannelEvent))
}

// NativeDTLSTransport is identified by Handle.
type NativeDTLSTransport interface {
	Handle() uintptr
	State() DTLSTransportState
}

// NativeSCTPTransport is identified by Handle.
type NativeSCTPTransport interface {
	Handle() uintptr
	State() SCTPTransportState
	Transport() NativeDTLSTransport
	MaxChannels() (uint16, bool)
}
