//go:build darwin || linux

package nativeengine

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/wrtc"
)

type peerConnection struct {
	engine   *Engine
	h        uint64
	user     uintptr
	observer wrtc.EngineObserver
	log      logrus.FieldLogger
	reqs     requests

	mu           sync.Mutex
	cfg          wrtc.Configuration
	closed       bool
	transceivers map[uint64]*transceiver
	senders      map[uint64]*sender
	receivers    map[uint64]*receiver
	tracks       map[uint64]*track
	channels     map[uint64]*dataChannel
	dtls         map[uint64]*dtlsTransport
	sctp         *sctpTransport
}

func newPeerConnection(e *Engine, cfg wrtc.Configuration, observer wrtc.EngineObserver) *peerConnection {
	pc := &peerConnection{
		engine:       e,
		observer:     observer,
		cfg:          cfg,
		transceivers: make(map[uint64]*transceiver),
		senders:      make(map[uint64]*sender),
		receivers:    make(map[uint64]*receiver),
		tracks:       make(map[uint64]*track),
		channels:     make(map[uint64]*dataChannel),
		dtls:         make(map[uint64]*dtlsTransport),
	}
	pc.user = register(pc)
	pc.log = e.log.WithField("pc", pc.user)
	return pc
}

// engineEvent runs on shim threads.
func (pc *peerConnection) engineEvent(kind int32, handle uint64, value int32, data []byte) {
	if kind == eventComplete {
		pc.reqs.complete(handle, value, data)
		return
	}
	ev, ok, err := connectionEvent(kind, value, data)
	if err != nil {
		pc.log.WithError(err).Warn("dropping malformed event")
		return
	}
	if !ok {
		switch kind {
		case eventDataChannel:
			ev = wrtc.DataChannelOpened{Channel: pc.channel(handle)}
		case eventTrack:
			ev = wrtc.TrackAdded{Transceiver: pc.transceiver(handle)}
		case eventReceiver:
			streams, _ := decode[[]string](string(data))
			ev = wrtc.ReceiverAdded{Receiver: pc.receiver(handle), Streams: nativeStreams(streams)}
		default:
			pc.log.WithField("kind", kind).Debug("unknown event")
			return
		}
	}
	pc.observer(ev)
}

// Native objects are cached by handle so the bridge sees one wrapper per
// object.

func (pc *peerConnection) transceiver(h uint64) *transceiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if t, ok := pc.transceivers[h]; ok {
		return t
	}
	t := &transceiver{pc: pc, h: h}
	pc.transceivers[h] = t
	return t
}

func (pc *peerConnection) sender(h uint64) *sender {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if s, ok := pc.senders[h]; ok {
		return s
	}
	info, _ := decode[senderInfo](takeString(shimSenderInfo(h)))
	s := &sender{pc: pc, h: h, id: info.ID, kind: wrtc.RTPCodecType(info.Kind)}
	pc.senders[h] = s
	return s
}

func (pc *peerConnection) receiver(h uint64) *receiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if r, ok := pc.receivers[h]; ok {
		return r
	}
	info, _ := decode[receiverInfo](takeString(shimReceiverInfo(h)))
	r := &receiver{pc: pc, h: h, id: info.ID}
	pc.receivers[h] = r
	return r
}

func (pc *peerConnection) track(h uint64) wrtc.NativeTrack {
	if h == 0 {
		return nil
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if t, ok := pc.tracks[h]; ok {
		return t
	}
	t := newTrack(h)
	pc.tracks[h] = t
	return t
}

func (pc *peerConnection) channel(h uint64) *dataChannel {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if dc, ok := pc.channels[h]; ok {
		return dc
	}
	dc := &dataChannel{h: h}
	pc.channels[h] = dc
	return dc
}

func (pc *peerConnection) transport(h uint64) wrtc.NativeDTLSTransport {
	if h == 0 {
		return nil
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if t, ok := pc.dtls[h]; ok {
		return t
	}
	t := &dtlsTransport{h: h}
	pc.dtls[h] = t
	return t
}

type offerJSON struct {
	ICERestart             bool `json:"iceRestart"`
	VoiceActivityDetection bool `json:"voiceActivityDetection"`
}

func (pc *peerConnection) describe(t wrtc.SDPType, done func(wrtc.SessionDescription, error)) uint64 {
	return pc.reqs.add(func(ok bool, payload string) {
		if !ok {
			done(wrtc.SessionDescription{}, errors.New(payload))
			return
		}
		done(wrtc.SessionDescription{Type: t, SDP: payload}, nil)
	})
}

func (pc *peerConnection) completion(done func(error)) uint64 {
	return pc.reqs.add(func(ok bool, payload string) {
		if !ok {
			done(errors.New(payload))
			return
		}
		done(nil)
	})
}

func (pc *peerConnection) CreateOffer(opts wrtc.OfferOptions, done func(wrtc.SessionDescription, error)) {
	id := pc.describe(wrtc.SDPTypeOffer, done)
	shimPCCreateOffer(pc.h, encode(offerJSON(opts)), id)
}

func (pc *peerConnection) CreateAnswer(opts wrtc.AnswerOptions, done func(wrtc.SessionDescription, error)) {
	id := pc.describe(wrtc.SDPTypeAnswer, done)
	shimPCCreateAnswer(pc.h, encode(offerJSON{VoiceActivityDetection: opts.VoiceActivityDetection}), id)
}

func (pc *peerConnection) SetLocalDescription(desc wrtc.SessionDescription, done func(error)) {
	shimPCSetLocal(pc.h, int32(desc.Type), desc.SDP, pc.completion(done))
}

func (pc *peerConnection) SetRemoteDescription(desc wrtc.SessionDescription, done func(error)) {
	shimPCSetRemote(pc.h, int32(desc.Type), desc.SDP, pc.completion(done))
}

func (pc *peerConnection) AddICECandidate(c wrtc.ICECandidateInit, done func(error)) {
	payload := encode(candidateJSON{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
	shimPCAddCandidate(pc.h, payload, pc.completion(done))
}

func (pc *peerConnection) GetStats(done func(wrtc.StatsReport, error)) {
	id := pc.reqs.add(func(ok bool, payload string) {
		if !ok {
			done(nil, errors.New(payload))
			return
		}
		report, valid := decode[wrtc.StatsReport](payload)
		if !valid {
			done(nil, fmt.Errorf("decode stats: %q", payload))
			return
		}
		done(report, nil)
	})
	shimPCGetStats(pc.h, id)
}

func nativeTrack(t wrtc.NativeTrack) (uint64, error) {
	if t == nil {
		return 0, nil
	}
	nt, ok := t.(*track)
	if !ok {
		return 0, fmt.Errorf("%w: track %q of type %T is not a native track", wrtc.ErrNotSupported, t.ID(), t)
	}
	return nt.h, nil
}

func (pc *peerConnection) AddTrack(t wrtc.NativeTrack, streamIDs []string) (wrtc.NativeSender, error) {
	th, err := nativeTrack(t)
	if err != nil {
		return nil, err
	}
	if streamIDs == nil {
		streamIDs = []string{}
	}
	h := shimPCAddTrack(pc.h, th, encode(streamIDs))
	if h == 0 {
		return nil, lastError()
	}
	return pc.sender(h), nil
}

func (pc *peerConnection) RemoveTrack(ns wrtc.NativeSender) error {
	s, ok := ns.(*sender)
	if !ok || s.pc != pc {
		return fmt.Errorf("%w: sender not created by this connection", wrtc.ErrInvalidAccess)
	}
	return check(shimPCRemoveTrack(pc.h, s.h))
}

func (pc *peerConnection) AddTransceiver(kind wrtc.RTPCodecType, t wrtc.NativeTrack, init wrtc.TransceiverInit) (wrtc.NativeTransceiver, error) {
	th, err := nativeTrack(t)
	if err != nil {
		return nil, err
	}
	h := shimPCAddTransceiver(pc.h, int32(kind), th, encodeTransceiverInit(init))
	if h == 0 {
		return nil, lastError()
	}
	return pc.transceiver(h), nil
}

func (pc *peerConnection) CreateDataChannel(label string, init wrtc.DataChannelInit) (wrtc.NativeDataChannel, error) {
	h := shimPCCreateChannel(pc.h, label, encode(channelInitJSON(init)))
	if h == 0 {
		return nil, lastError()
	}
	return pc.channel(h), nil
}

func (pc *peerConnection) list(which int32) []uint64 {
	buf := make([]uint64, 16)
	for {
		n := shimPCList(pc.h, which, uintptr(unsafe.Pointer(&buf[0])), int32(len(buf)))
		if int(n) <= len(buf) {
			return buf[:max(n, 0)]
		}
		buf = make([]uint64, n)
	}
}

func (pc *peerConnection) Senders() []wrtc.NativeSender {
	var out []wrtc.NativeSender
	for _, h := range pc.list(listSenders) {
		out = append(out, pc.sender(h))
	}
	return out
}

func (pc *peerConnection) Receivers() []wrtc.NativeReceiver {
	var out []wrtc.NativeReceiver
	for _, h := range pc.list(listReceivers) {
		out = append(out, pc.receiver(h))
	}
	return out
}

func (pc *peerConnection) Transceivers() []wrtc.NativeTransceiver {
	var out []wrtc.NativeTransceiver
	for _, h := range pc.list(listTransceivers) {
		out = append(out, pc.transceiver(h))
	}
	return out
}

func (pc *peerConnection) SCTP() wrtc.NativeSCTPTransport {
	h := shimPCSCTP(pc.h)
	if h == 0 {
		return nil
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.sctp == nil || pc.sctp.h != h {
		pc.sctp = &sctpTransport{pc: pc, h: h}
	}
	return pc.sctp
}

func (pc *peerConnection) Configuration() wrtc.Configuration {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.cfg
}

func (pc *peerConnection) SetConfiguration(cfg wrtc.Configuration) error {
	if err := check(shimPCSetConfiguration(pc.h, encodeConfig(cfg))); err != nil {
		return err
	}
	pc.mu.Lock()
	pc.cfg = cfg
	pc.mu.Unlock()
	return nil
}

func (pc *peerConnection) SignalingState() wrtc.SignalingState {
	return wrtc.SignalingState(shimPCState(pc.h, stateSignaling))
}

func (pc *peerConnection) ICEConnectionState() wrtc.ICEConnectionState {
	return wrtc.ICEConnectionState(shimPCState(pc.h, stateICEConnection))
}

func (pc *peerConnection) ConnectionState() wrtc.PeerConnectionState {
	return wrtc.PeerConnectionState(shimPCState(pc.h, stateConnection))
}

func (pc *peerConnection) ICEGatheringState() wrtc.ICEGatheringState {
	return wrtc.ICEGatheringState(shimPCState(pc.h, stateGathering))
}

func (pc *peerConnection) description(which int32) *wrtc.SessionDescription {
	var t int32
	ptr := shimPCDescription(pc.h, which, uintptr(unsafe.Pointer(&t)))
	if ptr == 0 {
		return nil
	}
	return &wrtc.SessionDescription{Type: wrtc.SDPType(t), SDP: takeString(ptr)}
}

func (pc *peerConnection) LocalDescription() *wrtc.SessionDescription {
	return pc.description(descLocal)
}

func (pc *peerConnection) CurrentLocalDescription() *wrtc.SessionDescription {
	return pc.description(descCurrentLocal)
}

func (pc *peerConnection) PendingLocalDescription() *wrtc.SessionDescription {
	return pc.description(descPendingLocal)
}

func (pc *peerConnection) RemoteDescription() *wrtc.SessionDescription {
	return pc.description(descRemote)
}

func (pc *peerConnection) CurrentRemoteDescription() *wrtc.SessionDescription {
	return pc.description(descCurrentRemote)
}

func (pc *peerConnection) PendingRemoteDescription() *wrtc.SessionDescription {
	return pc.description(descPendingRemote)
}

func (pc *peerConnection) RestartICE() { shimPCRestartICE(pc.h) }

// Close closes the native connection. The handle stays valid for getters
// until the engine is closed.
func (pc *peerConnection) Close() error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil
	}
	pc.closed = true
	channels := make([]*dataChannel, 0, len(pc.channels))
	for _, dc := range pc.channels {
		channels = append(channels, dc)
	}
	pc.mu.Unlock()

	shimPCClose(pc.h)
	unregister(pc.user)
	for _, dc := range channels {
		dc.unobserve()
	}
	pc.reqs.fail("connection closed")
	return nil
}

func (pc *peerConnection) destroy() {
	_ = pc.Close()
	shimPCDestroy(pc.h)
}
