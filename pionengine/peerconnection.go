package pionengine

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/wrtc"
)

type peerConnection struct {
	engine   *Engine
	pc       *webrtc.PeerConnection
	observer wrtc.EngineObserver
	log      logrus.FieldLogger
	ops      serial

	mu           sync.Mutex
	cfg          wrtc.Configuration
	transceivers map[*webrtc.RTPTransceiver]*transceiver
	senders      map[*webrtc.RTPSender]*sender
	receivers    map[*webrtc.RTPReceiver]*receiver
	channels     map[*webrtc.DataChannel]*dataChannel
	dtls         map[*webrtc.DTLSTransport]*dtlsTransport
	sctp         *sctpTransport
	gathering    wrtc.ICEGatheringState
	restart      bool
	closed       bool
}

func newPeerConnection(e *Engine, native *webrtc.PeerConnection, cfg wrtc.Configuration, observer wrtc.EngineObserver, log logrus.FieldLogger) *peerConnection {
	pc := &peerConnection{
		engine:       e,
		pc:           native,
		observer:     observer,
		log:          log,
		cfg:          cfg,
		transceivers: make(map[*webrtc.RTPTransceiver]*transceiver),
		senders:      make(map[*webrtc.RTPSender]*sender),
		receivers:    make(map[*webrtc.RTPReceiver]*receiver),
		channels:     make(map[*webrtc.DataChannel]*dataChannel),
		dtls:         make(map[*webrtc.DTLSTransport]*dtlsTransport),
	}

	native.OnSignalingStateChange(func(s webrtc.SignalingState) {
		pc.emit(wrtc.SignalingChange{State: signalingState(s)})
	})
	native.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		pc.emit(wrtc.ICEConnectionChange{State: iceConnectionState(s)})
	})
	native.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		pc.emit(wrtc.ConnectionChange{State: connectionState(s)})
	})
	native.OnICECandidate(pc.candidate)
	native.OnNegotiationNeeded(func() { pc.emit(wrtc.NegotiationNeeded{}) })
	native.OnDataChannel(func(dc *webrtc.DataChannel) {
		pc.emit(wrtc.DataChannelOpened{Channel: pc.channel(dc)})
	})
	native.OnTrack(pc.track)
	return pc
}

func (pc *peerConnection) emit(ev wrtc.EngineEvent) {
	pc.mu.Lock()
	closed := pc.closed
	pc.mu.Unlock()
	if closed {
		return
	}
	pc.observer(ev)
}

// candidate derives the gathering state from the candidate stream: the
// first candidate starts gathering and the nil candidate completes it.
func (pc *peerConnection) candidate(c *webrtc.ICECandidate) {
	pc.mu.Lock()
	var next wrtc.ICEGatheringState
	switch {
	case c == nil:
		next = wrtc.ICEGatheringStateComplete
	case pc.gathering != wrtc.ICEGatheringStateGathering:
		next = wrtc.ICEGatheringStateGathering
	default:
		next = pc.gathering
	}
	changed := next != pc.gathering
	pc.gathering = next
	pc.mu.Unlock()

	if changed && next == wrtc.ICEGatheringStateGathering {
		pc.emit(wrtc.ICEGatheringChange{State: next})
	}
	if c == nil {
		pc.emit(wrtc.ICECandidateFound{})
	} else {
		pc.emit(wrtc.ICECandidateFound{Candidate: candidateInit(c.ToJSON())})
	}
	if changed && next == wrtc.ICEGatheringStateComplete {
		pc.emit(wrtc.ICEGatheringChange{State: next})
	}
}

func (pc *peerConnection) track(remote *webrtc.TrackRemote, r *webrtc.RTPReceiver) {
	for _, t := range pc.pc.GetTransceivers() {
		if t.Receiver() != r {
			continue
		}
		tr := pc.transceiver(t)
		tr.fired(remote)
		pc.emit(wrtc.TrackAdded{Transceiver: tr})
		return
	}
	pc.log.WithField("track", remote.ID()).Warn("track without transceiver")
}

// The wrappers below are cached per pion object so the bridge sees stable
// handles and ids.

func (pc *peerConnection) transceiver(t *webrtc.RTPTransceiver) *transceiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if tr, ok := pc.transceivers[t]; ok {
		return tr
	}
	tr := &transceiver{handle: nextHandle(), pc: pc, t: t, kind: t.Kind()}
	pc.transceivers[t] = tr
	return tr
}

func (pc *peerConnection) sender(s *webrtc.RTPSender, kind wrtc.RTPCodecType) *sender {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.senderLocked(s, kind)
}

func (pc *peerConnection) senderLocked(s *webrtc.RTPSender, kind wrtc.RTPCodecType) *sender {
	if sn, ok := pc.senders[s]; ok {
		return sn
	}
	sn := newSender(pc, s, kind)
	pc.senders[s] = sn
	return sn
}

func (pc *peerConnection) receiver(r *webrtc.RTPReceiver) *receiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if rc, ok := pc.receivers[r]; ok {
		return rc
	}
	rc := newReceiver(pc, r)
	pc.receivers[r] = rc
	return rc
}

func (pc *peerConnection) channel(dc *webrtc.DataChannel) *dataChannel {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if ch, ok := pc.channels[dc]; ok {
		return ch
	}
	ch := &dataChannel{handle: nextHandle(), dc: dc}
	pc.channels[dc] = ch
	return ch
}

func (pc *peerConnection) transport(t *webrtc.DTLSTransport) wrtc.NativeDTLSTransport {
	if t == nil {
		return nil
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if d, ok := pc.dtls[t]; ok {
		return d
	}
	d := &dtlsTransport{handle: nextHandle(), t: t}
	pc.dtls[t] = d
	return d
}

func (pc *peerConnection) CreateOffer(opts wrtc.OfferOptions, done func(wrtc.SessionDescription, error)) {
	pc.ops.do(func() {
		pc.mu.Lock()
		restart := pc.restart || opts.ICERestart
		pc.restart = false
		pc.mu.Unlock()

		var o webrtc.OfferOptions
		o.ICERestart = restart
		o.VoiceActivityDetection = opts.VoiceActivityDetection
		desc, err := pc.pc.CreateOffer(&o)
		if err != nil {
			done(wrtc.SessionDescription{}, err)
			return
		}
		done(*description(&desc), nil)
	})
}

func (pc *peerConnection) CreateAnswer(opts wrtc.AnswerOptions, done func(wrtc.SessionDescription, error)) {
	pc.ops.do(func() {
		var o webrtc.AnswerOptions
		o.VoiceActivityDetection = opts.VoiceActivityDetection
		desc, err := pc.pc.CreateAnswer(&o)
		if err != nil {
			done(wrtc.SessionDescription{}, err)
			return
		}
		done(*description(&desc), nil)
	})
}

func (pc *peerConnection) SetLocalDescription(desc wrtc.SessionDescription, done func(error)) {
	pc.ops.do(func() {
		err := pc.pc.SetLocalDescription(toPionDescription(desc))
		if err == nil {
			pc.negotiated()
		}
		done(err)
	})
}

func (pc *peerConnection) SetRemoteDescription(desc wrtc.SessionDescription, done func(error)) {
	pc.ops.do(func() {
		err := pc.pc.SetRemoteDescription(toPionDescription(desc))
		if err == nil {
			pc.negotiated()
		}
		done(err)
	})
}

// negotiated marks stopped transceivers as settled once a description
// carrying the stop has been applied.
func (pc *peerConnection) negotiated() {
	pc.mu.Lock()
	trs := make([]*transceiver, 0, len(pc.transceivers))
	for _, tr := range pc.transceivers {
		trs = append(trs, tr)
	}
	pc.mu.Unlock()
	for _, tr := range trs {
		tr.settle()
	}
}

func (pc *peerConnection) AddICECandidate(c wrtc.ICECandidateInit, done func(error)) {
	pc.ops.do(func() {
		done(pc.pc.AddICECandidate(toPionCandidate(c)))
	})
}

func (pc *peerConnection) GetStats(done func(wrtc.StatsReport, error)) {
	pc.ops.do(func() {
		done(statsReport(pc.pc.GetStats()))
	})
}

func localTrack(t wrtc.NativeTrack) (webrtc.TrackLocal, error) {
	if t == nil {
		return nil, nil
	}
	local, ok := t.(webrtc.TrackLocal)
	if !ok {
		return nil, fmt.Errorf("%w: track %q of type %T cannot be sent by pion", wrtc.ErrNotSupported, t.ID(), t)
	}
	return local, nil
}

func (pc *peerConnection) AddTrack(t wrtc.NativeTrack, streamIDs []string) (wrtc.NativeSender, error) {
	local, err := localTrack(t)
	if err != nil {
		return nil, err
	}
	s, err := pc.pc.AddTrack(local)
	if err != nil {
		return nil, err
	}
	sn := pc.sender(s, t.Kind())
	sn.set(t, streamIDs)
	return sn, nil
}

func (pc *peerConnection) RemoveTrack(ns wrtc.NativeSender) error {
	sn, ok := ns.(*sender)
	if !ok || sn.pc != pc {
		return fmt.Errorf("%w: sender not created by this connection", wrtc.ErrInvalidAccess)
	}
	if err := pc.pc.RemoveTrack(sn.s); err != nil {
		return err
	}
	sn.set(nil, nil)
	return nil
}

func (pc *peerConnection) AddTransceiver(kind wrtc.RTPCodecType, t wrtc.NativeTrack, init wrtc.TransceiverInit) (wrtc.NativeTransceiver, error) {
	local, err := localTrack(t)
	if err != nil {
		return nil, err
	}
	pinit := webrtc.RTPTransceiverInit{
		Direction:     toPionDirection(init.Direction),
		SendEncodings: toPionEncodings(init.SendEncodings),
	}
	var native *webrtc.RTPTransceiver
	if local != nil {
		native, err = pc.pc.AddTransceiverFromTrack(local, pinit)
	} else {
		native, err = pc.pc.AddTransceiverFromKind(kind, pinit)
	}
	if err != nil {
		return nil, err
	}
	tr := pc.transceiver(native)
	if s := native.Sender(); s != nil && t != nil {
		pc.sender(s, kind).set(t, init.StreamIDs)
	}
	return tr, nil
}

func (pc *peerConnection) CreateDataChannel(label string, init wrtc.DataChannelInit) (wrtc.NativeDataChannel, error) {
	dc, err := pc.pc.CreateDataChannel(label, toPionDataChannelInit(init))
	if err != nil {
		return nil, err
	}
	return pc.channel(dc), nil
}

func (pc *peerConnection) Senders() []wrtc.NativeSender {
	var out []wrtc.NativeSender
	for _, t := range pc.pc.GetTransceivers() {
		if s := t.Sender(); s != nil {
			out = append(out, pc.sender(s, t.Kind()))
		}
	}
	return out
}

func (pc *peerConnection) Receivers() []wrtc.NativeReceiver {
	var out []wrtc.NativeReceiver
	for _, t := range pc.pc.GetTransceivers() {
		if r := t.Receiver(); r != nil {
			out = append(out, pc.receiver(r))
		}
	}
	return out
}

func (pc *peerConnection) Transceivers() []wrtc.NativeTransceiver {
	var out []wrtc.NativeTransceiver
	for _, t := range pc.pc.GetTransceivers() {
		out = append(out, pc.transceiver(t))
	}
	return out
}

func (pc *peerConnection) SCTP() wrtc.NativeSCTPTransport {
	s := pc.pc.SCTP()
	if s == nil {
		return nil
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.sctp == nil || pc.sctp.t != s {
		pc.sctp = &sctpTransport{handle: nextHandle(), pc: pc, t: s}
	}
	return pc.sctp
}

func (pc *peerConnection) Configuration() wrtc.Configuration {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.cfg
}

func (pc *peerConnection) SetConfiguration(cfg wrtc.Configuration) error {
	if err := pc.pc.SetConfiguration(toPionConfiguration(cfg)); err != nil {
		return err
	}
	pc.mu.Lock()
	pc.cfg = cfg
	pc.mu.Unlock()
	return nil
}

func (pc *peerConnection) SignalingState() wrtc.SignalingState {
	return signalingState(pc.pc.SignalingState())
}

func (pc *peerConnection) ICEConnectionState() wrtc.ICEConnectionState {
	return iceConnectionState(pc.pc.ICEConnectionState())
}

func (pc *peerConnection) ConnectionState() wrtc.PeerConnectionState {
	return connectionState(pc.pc.ConnectionState())
}

func (pc *peerConnection) ICEGatheringState() wrtc.ICEGatheringState {
	return gatheringState(pc.pc.ICEGatheringState())
}

func (pc *peerConnection) LocalDescription() *wrtc.SessionDescription {
	return description(pc.pc.LocalDescription())
}

func (pc *peerConnection) CurrentLocalDescription() *wrtc.SessionDescription {
	return description(pc.pc.CurrentLocalDescription())
}

func (pc *peerConnection) PendingLocalDescription() *wrtc.SessionDescription {
	return description(pc.pc.PendingLocalDescription())
}

func (pc *peerConnection) RemoteDescription() *wrtc.SessionDescription {
	return description(pc.pc.RemoteDescription())
}

func (pc *peerConnection) CurrentRemoteDescription() *wrtc.SessionDescription {
	return description(pc.pc.CurrentRemoteDescription())
}

func (pc *peerConnection) PendingRemoteDescription() *wrtc.SessionDescription {
	return description(pc.pc.PendingRemoteDescription())
}

// RestartICE takes effect at the next CreateOffer.
func (pc *peerConnection) RestartICE() {
	pc.mu.Lock()
	pc.restart = true
	pc.mu.Unlock()
	pc.emit(wrtc.NegotiationNeeded{})
}

func (pc *peerConnection) Close() error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil
	}
	pc.closed = true
	receivers := make([]*receiver, 0, len(pc.receivers))
	for _, r := range pc.receivers {
		receivers = append(receivers, r)
	}
	pc.mu.Unlock()

	err := pc.pc.Close()
	for _, r := range receivers {
		r.end()
	}
	pc.engine.forget(pc)
	pc.log.Debug("connection closed")
	return err
}
