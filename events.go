package wrtc

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// TrackEvent announces a track received from the remote peer. Transceiver
// is nil in legacy mode.
type TrackEvent struct {
	Receiver    *RTPReceiver
	Track       *MediaStreamTrack
	Streams     []*MediaStream
	Transceiver *RTPTransceiver
}

type handlers struct {
	signaling         func(SignalingState)
	iceConnection     func(ICEConnectionState)
	connection        func(PeerConnectionState)
	gathering         func(ICEGatheringState)
	candidate         func(*ICECandidateInit)
	candidateError    func(ICECandidateError)
	dataChannel       func(*DataChannel)
	track             func(TrackEvent)
	negotiationNeeded func()
}

func (pc *PeerConnection) setHandler(set func(*handlers)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	set(&pc.handlers)
}

func (pc *PeerConnection) OnSignalingStateChange(fn func(SignalingState)) {
	pc.setHandler(func(h *handlers) { h.signaling = fn })
}

func (pc *PeerConnection) OnICEConnectionStateChange(fn func(ICEConnectionState)) {
	pc.setHandler(func(h *handlers) { h.iceConnection = fn })
}

func (pc *PeerConnection) OnConnectionStateChange(fn func(PeerConnectionState)) {
	pc.setHandler(func(h *handlers) { h.connection = fn })
}

func (pc *PeerConnection) OnICEGatheringStateChange(fn func(ICEGatheringState)) {
	pc.setHandler(func(h *handlers) { h.gathering = fn })
}

// OnICECandidate receives local candidates; nil marks the end of gathering.
func (pc *PeerConnection) OnICECandidate(fn func(*ICECandidateInit)) {
	pc.setHandler(func(h *handlers) { h.candidate = fn })
}

func (pc *PeerConnection) OnICECandidateError(fn func(ICECandidateError)) {
	pc.setHandler(func(h *handlers) { h.candidateError = fn })
}

// OnDataChannel receives channels opened by the remote peer.
func (pc *PeerConnection) OnDataChannel(fn func(*DataChannel)) {
	pc.setHandler(func(h *handlers) { h.dataChannel = fn })
}

func (pc *PeerConnection) OnTrack(fn func(TrackEvent)) {
	pc.setHandler(func(h *handlers) { h.track = fn })
}

func (pc *PeerConnection) OnNegotiationNeeded(fn func()) {
	pc.setHandler(func(h *handlers) { h.negotiationNeeded = fn })
}

// observe is the EngineObserver handed to the engine. It runs on engine
// goroutines and only posts.
func (pc *PeerConnection) observe(ev EngineEvent) {
	pc.post(fmt.Sprintf("%T", ev), func() { pc.handleEvent(ev) })
}

// handleEvent runs on the Loop. State is updated under mu; callbacks fire
// after it is released. Once closed, events no longer mutate the
// connection, but notifications that need no state still fire.
func (pc *PeerConnection) handleEvent(ev EngineEvent) {
	var fire []func()
	pc.mu.Lock()
	closed := pc.native == nil
	h := pc.handlers
	pc.log.WithFields(logrus.Fields{"event": fmt.Sprintf("%T", ev), "closed": closed}).Debug("engine event")

	switch e := ev.(type) {
	case SignalingChange:
		if closed {
			break
		}
		fire = pc.syncSignalingLocked(e.State, fire)
		if e.State == SignalingStateClosed {
			fire = append(fire, pc.closeLocked()...)
		}

	case ICEConnectionChange:
		if closed || e.State == pc.iceState {
			break
		}
		pc.iceState = e.State
		if cb := h.iceConnection; cb != nil {
			state := e.State
			fire = append(fire, func() { cb(state) })
		}

	case ConnectionChange:
		if closed {
			break
		}
		fire = pc.syncConnectionLocked(e.State, fire)

	case ICEGatheringChange:
		if closed || e.State == pc.gathering {
			break
		}
		pc.gathering = e.State
		if cb := h.gathering; cb != nil {
			state := e.State
			fire = append(fire, func() { cb(state) })
		}

	case ICECandidateFound:
		if cb := h.candidate; cb != nil {
			c := e.Candidate
			fire = append(fire, func() { cb(c) })
		}

	case ICECandidateFailed:
		if cb := h.candidateError; cb != nil {
			ce := e.Error
			fire = append(fire, func() { cb(ce) })
		}

	case DataChannelOpened:
		if closed {
			if err := e.Channel.Close(); err != nil {
				pc.log.WithError(err).Warn("close late data channel")
			}
			break
		}
		dc, _ := pc.upsertChannelLocked(e.Channel)
		if cb := h.dataChannel; cb != nil {
			fire = append(fire, func() { cb(dc) })
		}

	case TrackAdded:
		if closed || pc.strategy.mode() != SDPSemanticsUnifiedPlan {
			break
		}
		t := pc.upsertTransceiverLocked(e.Transceiver)
		if cb := h.track; cb != nil && t.receiver != nil {
			te := TrackEvent{
				Receiver:    t.receiver,
				Track:       t.receiver.track,
				Streams:     append([]*MediaStream(nil), t.receiver.streams...),
				Transceiver: t,
			}
			fire = append(fire, func() { cb(te) })
		}

	case ReceiverAdded:
		if closed || pc.strategy.mode() != SDPSemanticsPlanB {
			break
		}
		r := pc.upsertReceiverLocked(e.Receiver)
		r.updateLocked(e.Streams)
		if cb := h.track; cb != nil {
			te := TrackEvent{
				Receiver: r,
				Track:    r.track,
				Streams:  append([]*MediaStream(nil), r.streams...),
			}
			fire = append(fire, func() { cb(te) })
		}

	case NegotiationNeeded:
		if closed {
			break
		}
		if cb := h.negotiationNeeded; cb != nil {
			fire = append(fire, cb)
		}

	default:
		pc.log.Warnf("unknown engine event %T", ev)
	}
	pc.mu.Unlock()

	run(fire)
}

func (pc *PeerConnection) syncSignalingLocked(s SignalingState, fire []func()) []func() {
	if !pc.signaling.advance(s) {
		return fire
	}
	if cb := pc.handlers.signaling; cb != nil {
		fire = append(fire, func() { cb(s) })
	}
	return fire
}

func (pc *PeerConnection) syncConnectionLocked(s PeerConnectionState, fire []func()) []func() {
	if s == pc.connState {
		return fire
	}
	pc.connState = s
	if cb := pc.handlers.connection; cb != nil {
		fire = append(fire, func() { cb(s) })
	}
	return fire
}
