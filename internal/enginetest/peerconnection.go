package enginetest

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/thesyncim/wrtc"
)

// Operation names accepted by Fail.
const (
	OpCreateOffer          = "createOffer"
	OpCreateAnswer         = "createAnswer"
	OpSetLocalDescription  = "setLocalDescription"
	OpSetRemoteDescription = "setRemoteDescription"
	OpAddICECandidate      = "addIceCandidate"
	OpGetStats             = "getStats"
	OpAddTrack             = "addTrack"
	OpRemoveTrack          = "removeTrack"
	OpAddTransceiver       = "addTransceiver"
	OpCreateDataChannel    = "createDataChannel"
	OpReplaceTrack         = "replaceTrack"
	OpSetDirection         = "setDirection"
	OpStop                 = "stop"
	OpSetConfiguration     = "setConfiguration"
	OpClose                = "close"
)

// HostCandidate is the single candidate every connection gathers.
const HostCandidate = "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host"

var errClosed = errors.New("enginetest: peer connection closed")

// PeerConnection is a fake native connection.
type PeerConnection struct {
	id       string
	engine   *Engine
	observer wrtc.EngineObserver
	legacy   bool
	w        worker
	dtls     *DTLSTransport

	mu               sync.Mutex
	cfg              wrtc.Configuration
	closed           bool
	signaling        wrtc.SignalingState
	ice              wrtc.ICEConnectionState
	conn             wrtc.PeerConnectionState
	gathering        wrtc.ICEGatheringState
	currentLocal     *wrtc.SessionDescription
	pendingLocal     *wrtc.SessionDescription
	currentRemote    *wrtc.SessionDescription
	pendingRemote    *wrtc.SessionDescription
	transceivers     []*Transceiver
	senders          []*Sender
	receivers        []*Receiver
	channels         []*DataChannel
	sctp             *SCTPTransport
	remoteCandidates []wrtc.ICECandidateInit
	failures         map[string]error
	peer             *PeerConnection
	nextMid          int
	nextChannelID    uint16
	restart          bool
}

func newPeerConnection(e *Engine, id string, cfg wrtc.Configuration, observer wrtc.EngineObserver) *PeerConnection {
	pc := &PeerConnection{
		id:        id,
		engine:    e,
		observer:  observer,
		legacy:    cfg.SDPSemantics == wrtc.SDPSemanticsPlanB,
		cfg:       cfg,
		signaling: wrtc.SignalingStateStable,
		failures:  make(map[string]error),
	}
	pc.dtls = &DTLSTransport{handle: nextHandle(), pc: pc}
	return pc
}

// ID returns the engine-side identifier advertised in descriptions.
func (pc *PeerConnection) ID() string { return pc.id }

// Fail makes the next call of op fail with err.
func (pc *PeerConnection) Fail(op string, err error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.failures[op] = err
}

func (pc *PeerConnection) takeFailure(op string) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	err, ok := pc.failures[op]
	if !ok {
		return nil
	}
	delete(pc.failures, op)
	return err
}

// Emit delivers ev to the bridge from the worker goroutine.
func (pc *PeerConnection) Emit(ev wrtc.EngineEvent) {
	pc.w.do(func() { pc.observer(ev) })
}

// Sync waits until every event and completion queued so far has been
// handed to the bridge.
func (pc *PeerConnection) Sync() { pc.w.sync() }

func (pc *PeerConnection) emit(events ...wrtc.EngineEvent) {
	for _, ev := range events {
		pc.observer(ev)
	}
}

func (pc *PeerConnection) negotiationNeeded() {
	pc.Emit(wrtc.NegotiationNeeded{})
}

// RemoveTransceiver makes the engine stop reporting t, as a native engine
// does once a stopped transceiver has been negotiated away.
func (pc *PeerConnection) RemoveTransceiver(t *Transceiver) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for i, cur := range pc.transceivers {
		if cur == t {
			pc.transceivers = append(pc.transceivers[:i], pc.transceivers[i+1:]...)
			return
		}
	}
}

// RemoveReceiver makes the engine stop reporting the legacy receiver id.
func (pc *PeerConnection) RemoveReceiver(id string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.removeReceiverLocked(id)
}

func (pc *PeerConnection) removeReceiverLocked(id string) {
	for i, r := range pc.receivers {
		if r.id == id {
			r.track.End()
			pc.receivers = append(pc.receivers[:i], pc.receivers[i+1:]...)
			return
		}
	}
}

// FakeTransceivers returns the live transceivers in creation order.
func (pc *PeerConnection) FakeTransceivers() []*Transceiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]*Transceiver(nil), pc.transceivers...)
}

// FakeReceivers returns the live legacy receivers.
func (pc *PeerConnection) FakeReceivers() []*Receiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]*Receiver(nil), pc.receivers...)
}

// FakeChannels returns every data channel, local and remote.
func (pc *PeerConnection) FakeChannels() []*DataChannel {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]*DataChannel(nil), pc.channels...)
}

// RemoteCandidates returns the candidates added by the bridge.
func (pc *PeerConnection) RemoteCandidates() []wrtc.ICECandidateInit {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]wrtc.ICECandidateInit(nil), pc.remoteCandidates...)
}

// Peer returns the connection this one negotiated with, if any.
func (pc *PeerConnection) Peer() *PeerConnection {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.peer
}

// Closed reports whether Close has been called.
func (pc *PeerConnection) Closed() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.closed
}

func (pc *PeerConnection) CreateOffer(opts wrtc.OfferOptions, done func(wrtc.SessionDescription, error)) {
	pc.w.do(func() {
		if err := pc.takeFailure(OpCreateOffer); err != nil {
			done(wrtc.SessionDescription{}, err)
			return
		}
		pc.mu.Lock()
		raw, err := pc.createOfferLocked(opts)
		pc.mu.Unlock()
		done(wrtc.SessionDescription{Type: wrtc.SDPTypeOffer, SDP: raw}, err)
	})
}

func (pc *PeerConnection) createOfferLocked(opts wrtc.OfferOptions) (string, error) {
	if pc.closed {
		return "", errClosed
	}
	switch pc.signaling {
	case wrtc.SignalingStateStable, wrtc.SignalingStateHaveLocalOffer:
	default:
		return "", fmt.Errorf("enginetest: cannot create an offer in state %s", pc.signaling)
	}
	for _, t := range pc.transceivers {
		if !t.hasMid && !t.stopped {
			t.mid, t.hasMid = strconv.Itoa(pc.nextMid), true
			pc.nextMid++
		}
	}
	if opts.ICERestart {
		pc.restart = true
	}
	return pc.buildSDPLocked(false)
}

func (pc *PeerConnection) CreateAnswer(_ wrtc.AnswerOptions, done func(wrtc.SessionDescription, error)) {
	pc.w.do(func() {
		if err := pc.takeFailure(OpCreateAnswer); err != nil {
			done(wrtc.SessionDescription{}, err)
			return
		}
		pc.mu.Lock()
		var (
			raw string
			err error
		)
		switch {
		case pc.closed:
			err = errClosed
		case pc.signaling != wrtc.SignalingStateHaveRemoteOffer && pc.signaling != wrtc.SignalingStateHaveLocalPranswer:
			err = fmt.Errorf("enginetest: cannot create an answer in state %s", pc.signaling)
		default:
			raw, err = pc.buildSDPLocked(true)
		}
		pc.mu.Unlock()
		done(wrtc.SessionDescription{Type: wrtc.SDPTypeAnswer, SDP: raw}, err)
	})
}

func (pc *PeerConnection) SetLocalDescription(desc wrtc.SessionDescription, done func(error)) {
	pc.w.do(func() {
		if err := pc.takeFailure(OpSetLocalDescription); err != nil {
			done(err)
			return
		}
		pc.mu.Lock()
		before := pc.signaling
		connect, err := pc.applyLocalLocked(desc)
		after := pc.signaling
		gather := err == nil && pc.gathering == wrtc.ICEGatheringStateNew && desc.Type != wrtc.SDPTypeRollback
		if gather {
			pc.gathering = wrtc.ICEGatheringStateComplete
		}
		pc.mu.Unlock()
		if err != nil {
			done(err)
			return
		}
		if before != after {
			pc.emit(wrtc.SignalingChange{State: after})
		}
		done(nil)
		if gather {
			pc.gather()
		}
		if connect {
			pc.connect()
		}
	})
}

func (pc *PeerConnection) applyLocalLocked(desc wrtc.SessionDescription) (connect bool, err error) {
	if pc.closed {
		return false, errClosed
	}
	d := desc
	switch desc.Type {
	case wrtc.SDPTypeOffer:
		if pc.signaling != wrtc.SignalingStateStable && pc.signaling != wrtc.SignalingStateHaveLocalOffer {
			return false, fmt.Errorf("enginetest: cannot set a local offer in state %s", pc.signaling)
		}
		pc.pendingLocal = &d
		pc.signaling = wrtc.SignalingStateHaveLocalOffer
	case wrtc.SDPTypePranswer, wrtc.SDPTypeAnswer:
		if pc.signaling != wrtc.SignalingStateHaveRemoteOffer && pc.signaling != wrtc.SignalingStateHaveLocalPranswer {
			return false, fmt.Errorf("enginetest: cannot set a local answer in state %s", pc.signaling)
		}
		if desc.Type == wrtc.SDPTypePranswer {
			pc.pendingLocal = &d
			pc.signaling = wrtc.SignalingStateHaveLocalPranswer
			return false, nil
		}
		pc.currentLocal, pc.currentRemote = &d, pc.pendingRemote
		pc.pendingLocal, pc.pendingRemote = nil, nil
		pc.signaling = wrtc.SignalingStateStable
		pc.negotiatedLocked(false)
		return true, nil
	case wrtc.SDPTypeRollback:
		if pc.signaling != wrtc.SignalingStateHaveLocalOffer {
			return false, fmt.Errorf("enginetest: nothing to roll back in state %s", pc.signaling)
		}
		pc.pendingLocal = nil
		pc.signaling = wrtc.SignalingStateStable
	default:
		return false, fmt.Errorf("enginetest: unknown description type %d", desc.Type)
	}
	return false, nil
}

func (pc *PeerConnection) SetRemoteDescription(desc wrtc.SessionDescription, done func(error)) {
	pc.w.do(func() {
		if err := pc.takeFailure(OpSetRemoteDescription); err != nil {
			done(err)
			return
		}
		var (
			remote remoteDescription
			err    error
		)
		if desc.Type != wrtc.SDPTypeRollback {
			if remote, err = parseRemote(desc.SDP); err != nil {
				done(err)
				return
			}
		}
		peer := pc.engine.lookup(remote.peerID)

		pc.mu.Lock()
		before := pc.signaling
		events, connect, err := pc.applyRemoteLocked(desc, remote)
		if err == nil && peer != nil && peer != pc {
			pc.peer = peer
		}
		after := pc.signaling
		pc.mu.Unlock()
		if err != nil {
			done(err)
			return
		}
		if before != after {
			pc.emit(wrtc.SignalingChange{State: after})
		}
		pc.emit(events...)
		done(nil)
		if connect {
			pc.connect()
		}
	})
}

func (pc *PeerConnection) applyRemoteLocked(desc wrtc.SessionDescription, remote remoteDescription) (events []wrtc.EngineEvent, connect bool, err error) {
	if pc.closed {
		return nil, false, errClosed
	}
	d := desc
	switch desc.Type {
	case wrtc.SDPTypeOffer:
		if pc.signaling != wrtc.SignalingStateStable && pc.signaling != wrtc.SignalingStateHaveRemoteOffer {
			return nil, false, fmt.Errorf("enginetest: cannot set a remote offer in state %s", pc.signaling)
		}
		pc.pendingRemote = &d
		pc.signaling = wrtc.SignalingStateHaveRemoteOffer
		return pc.applyMediaLocked(remote.sections, true), false, nil
	case wrtc.SDPTypePranswer, wrtc.SDPTypeAnswer:
		if pc.signaling != wrtc.SignalingStateHaveLocalOffer && pc.signaling != wrtc.SignalingStateHaveRemotePranswer {
			return nil, false, fmt.Errorf("enginetest: cannot set a remote answer in state %s", pc.signaling)
		}
		events = pc.applyMediaLocked(remote.sections, false)
		if desc.Type == wrtc.SDPTypePranswer {
			pc.pendingRemote = &d
			pc.signaling = wrtc.SignalingStateHaveRemotePranswer
			return events, false, nil
		}
		pc.currentRemote, pc.currentLocal = &d, pc.pendingLocal
		pc.pendingLocal, pc.pendingRemote = nil, nil
		pc.signaling = wrtc.SignalingStateStable
		pc.negotiatedLocked(true)
		return events, true, nil
	case wrtc.SDPTypeRollback:
		if pc.signaling != wrtc.SignalingStateHaveRemoteOffer {
			return nil, false, fmt.Errorf("enginetest: nothing to roll back in state %s", pc.signaling)
		}
		pc.pendingRemote = nil
		pc.signaling = wrtc.SignalingStateStable
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("enginetest: unknown description type %d", desc.Type)
	}
}

// applyMediaLocked matches remote m-sections to local media and returns the
// track events to raise.
func (pc *PeerConnection) applyMediaLocked(sections []wrtc.MediaSection, offer bool) []wrtc.EngineEvent {
	if pc.legacy {
		return pc.applyLegacyMediaLocked(sections)
	}
	var events []wrtc.EngineEvent
	for _, sec := range sections {
		if sec.Kind != wrtc.RTPCodecTypeAudio && sec.Kind != wrtc.RTPCodecTypeVideo {
			continue
		}
		t := pc.transceiverByMidLocked(sec.Mid)
		if t == nil {
			if !offer {
				continue
			}
			t = pc.unassociatedLocked(sec.Kind)
			if t == nil {
				t = pc.newTransceiverLocked(sec.Kind, wrtc.TransceiverDirectionRecvOnly, nil, nil)
			}
			t.mid, t.hasMid = sec.Mid, true
		}
		if sec.Rejected {
			t.stopped = true
			t.direction = wrtc.TransceiverDirectionStopped
			t.receiver.track.End()
			continue
		}
		t.remoteDirection = sec.Direction
		t.receiver.setStreamLocked(sec.StreamID)

		fired := answerDirection(t.direction, sec.Direction)
		if !offer {
			fired = reverse(sec.Direction)
			if !receives(t.direction) {
				fired = direction(sends(fired), false)
			}
		}
		if receives(fired) && (!t.hasFired || !receives(t.fired)) {
			events = append(events, wrtc.TrackAdded{Transceiver: t})
		}
		t.fired, t.hasFired = fired, true
	}
	return events
}

func (pc *PeerConnection) applyLegacyMediaLocked(sections []wrtc.MediaSection) []wrtc.EngineEvent {
	var events []wrtc.EngineEvent
	seen := make(map[string]bool)
	for _, sec := range sections {
		if sec.TrackID == "" || sec.Rejected || !sends(sec.Direction) {
			continue
		}
		if sec.Kind != wrtc.RTPCodecTypeAudio && sec.Kind != wrtc.RTPCodecTypeVideo {
			continue
		}
		seen[sec.TrackID] = true
		if pc.receiverByIDLocked(sec.TrackID) != nil {
			continue
		}
		r := pc.newReceiverLocked(sec.TrackID, NewTrack(sec.TrackID, sec.Kind))
		r.setStreamLocked(sec.StreamID)
		pc.receivers = append(pc.receivers, r)
		events = append(events, wrtc.ReceiverAdded{Receiver: r, Streams: r.streamsLocked()})
	}
	for _, r := range append([]*Receiver(nil), pc.receivers...) {
		if !seen[r.id] {
			pc.removeReceiverLocked(r.id)
		}
	}
	return events
}

// negotiatedLocked applies a completed offer/answer exchange.
func (pc *PeerConnection) negotiatedLocked(offerer bool) {
	for _, t := range pc.transceivers {
		if !t.hasMid {
			continue
		}
		switch {
		case t.stopped:
			t.current = wrtc.TransceiverDirectionStopped
		case offerer:
			t.current = reverse(t.remoteDirection)
			if !sends(t.direction) {
				t.current = direction(false, receives(t.current))
			}
		default:
			t.current = answerDirection(t.direction, t.remoteDirection)
		}
		t.hasCurrent = true
	}
	pc.restart = false
}

// gather reports the host candidate and the end of gathering.
func (pc *PeerConnection) gather() {
	mid := "0"
	var index uint16
	pc.emit(
		wrtc.ICEGatheringChange{State: wrtc.ICEGatheringStateGathering},
		wrtc.ICECandidateFound{Candidate: &wrtc.ICECandidateInit{
			Candidate:     HostCandidate,
			SDPMid:        &mid,
			SDPMLineIndex: &index,
		}},
		wrtc.ICECandidateFound{},
		wrtc.ICEGatheringChange{State: wrtc.ICEGatheringStateComplete},
	)
}

// connect walks the transports to connected after the first completed
// negotiation and opens the data channels.
func (pc *PeerConnection) connect() {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return
	}
	first := pc.conn != wrtc.PeerConnectionStateConnected
	if first {
		pc.ice = wrtc.ICEConnectionStateConnected
		pc.conn = wrtc.PeerConnectionStateConnected
		pc.dtls.state = wrtc.DTLSTransportStateConnected
	}
	if pc.sctp != nil {
		pc.sctp.state = wrtc.SCTPTransportStateConnected
	}
	pc.mu.Unlock()

	if first {
		pc.emit(
			wrtc.ICEConnectionChange{State: wrtc.ICEConnectionStateChecking},
			wrtc.ConnectionChange{State: wrtc.PeerConnectionStateConnecting},
			wrtc.ICEConnectionChange{State: wrtc.ICEConnectionStateConnected},
			wrtc.ConnectionChange{State: wrtc.PeerConnectionStateConnected},
		)
	}
	pc.linkChannels()
}

func (pc *PeerConnection) transceiverByMidLocked(mid string) *Transceiver {
	for _, t := range pc.transceivers {
		if t.hasMid && t.mid == mid {
			return t
		}
	}
	return nil
}

// unassociatedLocked finds a transceiver created by AddTrack that can carry
// a new remote m-section of kind.
func (pc *PeerConnection) unassociatedLocked(kind wrtc.RTPCodecType) *Transceiver {
	for _, t := range pc.transceivers {
		if !t.hasMid && !t.stopped && t.fromAddTrack && t.kind == kind {
			return t
		}
	}
	return nil
}

func (pc *PeerConnection) receiverByIDLocked(id string) *Receiver {
	for _, r := range pc.receivers {
		if r.id == id {
			return r
		}
	}
	return nil
}

func (pc *PeerConnection) AddICECandidate(c wrtc.ICECandidateInit, done func(error)) {
	pc.w.do(func() {
		if err := pc.takeFailure(OpAddICECandidate); err != nil {
			done(err)
			return
		}
		pc.mu.Lock()
		var err error
		switch {
		case pc.closed:
			err = errClosed
		case pc.currentRemote == nil && pc.pendingRemote == nil:
			err = errors.New("enginetest: remote description is not set")
		default:
			pc.remoteCandidates = append(pc.remoteCandidates, c)
		}
		pc.mu.Unlock()
		done(err)
	})
}

func (pc *PeerConnection) GetStats(done func(wrtc.StatsReport, error)) {
	pc.w.do(func() {
		if err := pc.takeFailure(OpGetStats); err != nil {
			done(nil, err)
			return
		}
		pc.mu.Lock()
		opened := 0
		for _, dc := range pc.channels {
			if dc.ReadyState() == wrtc.DataChannelStateOpen {
				opened++
			}
		}
		report := wrtc.StatsReport{
			"PC_" + pc.id: {
				"type":               "peer-connection",
				"dataChannelsOpened": opened,
				"transceivers":       len(pc.transceivers),
			},
		}
		pc.mu.Unlock()
		done(report, nil)
	})
}

func (pc *PeerConnection) AddTrack(track wrtc.NativeTrack, streamIDs []string) (wrtc.NativeSender, error) {
	if err := pc.takeFailure(OpAddTrack); err != nil {
		return nil, err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return nil, errClosed
	}
	if pc.sendsTrackLocked(track.ID()) {
		return nil, fmt.Errorf("enginetest: a sender already exists for track %s", track.ID())
	}
	defer pc.negotiationNeeded()

	if pc.legacy {
		s := pc.newSenderLocked(track.Kind(), track, streamIDs)
		pc.senders = append(pc.senders, s)
		return s, nil
	}
	for _, t := range pc.transceivers {
		if t.kind != track.Kind() || t.stopped || t.sender.track != nil || !t.hasMid || sends(t.direction) {
			continue
		}
		t.sender.track = track
		t.sender.streams = append([]string(nil), streamIDs...)
		t.direction = direction(true, receives(t.direction))
		return t.sender, nil
	}
	t := pc.newTransceiverLocked(track.Kind(), wrtc.TransceiverDirectionSendRecv, track, streamIDs)
	t.fromAddTrack = true
	return t.sender, nil
}

func (pc *PeerConnection) sendsTrackLocked(id string) bool {
	for _, s := range pc.sendersLocked() {
		if s.track != nil && s.track.ID() == id {
			return true
		}
	}
	return false
}

func (pc *PeerConnection) sendersLocked() []*Sender {
	if pc.legacy {
		return pc.senders
	}
	out := make([]*Sender, 0, len(pc.transceivers))
	for _, t := range pc.transceivers {
		out = append(out, t.sender)
	}
	return out
}

func (pc *PeerConnection) RemoveTrack(sender wrtc.NativeSender) error {
	if err := pc.takeFailure(OpRemoveTrack); err != nil {
		return err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return errClosed
	}
	if pc.legacy {
		for i, s := range pc.senders {
			if s == sender {
				pc.senders = append(pc.senders[:i], pc.senders[i+1:]...)
				pc.negotiationNeeded()
				return nil
			}
		}
		return errors.New("enginetest: unknown sender")
	}
	for _, t := range pc.transceivers {
		if t.sender != sender {
			continue
		}
		if t.sender.track == nil {
			return nil
		}
		t.sender.track = nil
		if !t.stopped {
			t.direction = direction(false, receives(t.direction))
		}
		pc.negotiationNeeded()
		return nil
	}
	return errors.New("enginetest: unknown sender")
}

func (pc *PeerConnection) AddTransceiver(kind wrtc.RTPCodecType, track wrtc.NativeTrack, init wrtc.TransceiverInit) (wrtc.NativeTransceiver, error) {
	if err := pc.takeFailure(OpAddTransceiver); err != nil {
		return nil, err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	switch {
	case pc.closed:
		return nil, errClosed
	case pc.legacy:
		return nil, errors.New("enginetest: transceivers require unified plan")
	case track != nil && track.Kind() != kind:
		return nil, fmt.Errorf("enginetest: %s track on a %s transceiver", track.Kind(), kind)
	}
	t := pc.newTransceiverLocked(kind, init.Direction, track, init.StreamIDs)
	if len(init.SendEncodings) > 0 {
		t.sender.params.Encodings = append([]wrtc.RTPEncodingParameters(nil), init.SendEncodings...)
	}
	pc.negotiationNeeded()
	return t, nil
}

func (pc *PeerConnection) CreateDataChannel(label string, init wrtc.DataChannelInit) (wrtc.NativeDataChannel, error) {
	if err := pc.takeFailure(OpCreateDataChannel); err != nil {
		return nil, err
	}
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil, errClosed
	}
	dc := pc.newChannelLocked(label, init, true)
	first := pc.sctp == nil
	if first {
		pc.sctp = &SCTPTransport{handle: nextHandle(), pc: pc}
	}
	connected := pc.conn == wrtc.PeerConnectionStateConnected
	if connected {
		pc.sctp.state = wrtc.SCTPTransportStateConnected
	}
	pc.mu.Unlock()

	switch {
	case first && !connected:
		pc.negotiationNeeded()
	case connected:
		pc.w.do(pc.linkChannels)
	}
	return dc, nil
}

func (pc *PeerConnection) Senders() []wrtc.NativeSender {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := []wrtc.NativeSender{}
	for _, s := range pc.sendersLocked() {
		out = append(out, s)
	}
	return out
}

func (pc *PeerConnection) Receivers() []wrtc.NativeReceiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := []wrtc.NativeReceiver{}
	if pc.legacy {
		for _, r := range pc.receivers {
			out = append(out, r)
		}
		return out
	}
	for _, t := range pc.transceivers {
		out = append(out, t.receiver)
	}
	return out
}

func (pc *PeerConnection) Transceivers() []wrtc.NativeTransceiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := []wrtc.NativeTransceiver{}
	if pc.legacy {
		return out
	}
	for _, t := range pc.transceivers {
		out = append(out, t)
	}
	return out
}

func (pc *PeerConnection) SCTP() wrtc.NativeSCTPTransport {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.sctp == nil {
		return nil
	}
	return pc.sctp
}

func (pc *PeerConnection) Configuration() wrtc.Configuration {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.cfg
}

func (pc *PeerConnection) SetConfiguration(cfg wrtc.Configuration) error {
	if err := pc.takeFailure(OpSetConfiguration); err != nil {
		return err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return errClosed
	}
	pc.cfg = cfg
	return nil
}

func (pc *PeerConnection) SignalingState() wrtc.SignalingState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.signaling
}

func (pc *PeerConnection) ICEConnectionState() wrtc.ICEConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.ice
}

func (pc *PeerConnection) ConnectionState() wrtc.PeerConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.conn
}

func (pc *PeerConnection) ICEGatheringState() wrtc.ICEGatheringState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.gathering
}

func (pc *PeerConnection) LocalDescription() *wrtc.SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.pendingLocal != nil {
		return pc.pendingLocal
	}
	return pc.currentLocal
}

func (pc *PeerConnection) CurrentLocalDescription() *wrtc.SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.currentLocal
}

func (pc *PeerConnection) PendingLocalDescription() *wrtc.SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.pendingLocal
}

func (pc *PeerConnection) RemoteDescription() *wrtc.SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.pendingRemote != nil {
		return pc.pendingRemote
	}
	return pc.currentRemote
}

func (pc *PeerConnection) CurrentRemoteDescription() *wrtc.SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.currentRemote
}

func (pc *PeerConnection) PendingRemoteDescription() *wrtc.SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.pendingRemote
}

func (pc *PeerConnection) RestartICE() {
	pc.mu.Lock()
	pc.restart = true
	pc.mu.Unlock()
	pc.negotiationNeeded()
}

// Close closes the connection and its channels. Linked remote channels see
// the close on their own worker.
func (pc *PeerConnection) Close() error {
	if err := pc.takeFailure(OpClose); err != nil {
		pc.closeNow()
		return err
	}
	pc.closeNow()
	return nil
}

func (pc *PeerConnection) closeNow() {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return
	}
	pc.closed = true
	pc.signaling = wrtc.SignalingStateClosed
	pc.ice = wrtc.ICEConnectionStateClosed
	pc.conn = wrtc.PeerConnectionStateClosed
	pc.dtls.state = wrtc.DTLSTransportStateClosed
	if pc.sctp != nil {
		pc.sctp.state = wrtc.SCTPTransportStateClosed
	}
	for _, t := range pc.transceivers {
		t.stopped = true
		t.direction = wrtc.TransceiverDirectionStopped
		t.current, t.hasCurrent = wrtc.TransceiverDirectionStopped, true
		t.receiver.track.End()
	}
	for _, r := range pc.receivers {
		r.track.End()
	}
	channels := append([]*DataChannel(nil), pc.channels...)
	pc.mu.Unlock()

	for _, dc := range channels {
		dc.closeLocal()
	}
}
