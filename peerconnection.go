package wrtc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PeerConnection bridges one native engine connection. It owns the proxies
// of everything the engine creates for it, references the external tracks
// it sends, and delivers every engine event on its Queue.
//
// All mutation happens with mu held, either in a public method or in a task
// on the Loop. User callbacks run on the Loop after mu is released.
type PeerConnection struct {
	id       string
	context  *Context
	lease    *contextLease
	queue    *Queue
	log      logrus.FieldLogger
	metrics  *Metrics
	strategy reconcileStrategy

	mu        sync.Mutex
	native    NativePeerConnection
	closing   bool
	config    Configuration
	lastSDP   SessionDescription
	signaling *signalingMachine
	iceState  ICEConnectionState
	connState PeerConnectionState
	gathering ICEGatheringState
	handlers  handlers

	transceivers *registry[uintptr, *RTPTransceiver]
	senders      *registry[string, *RTPSender]
	receivers    *registry[string, *RTPReceiver]
	tracks       *registry[string, *MediaStreamTrack]
	streams      *registry[string, *MediaStream]
	channels     *registry[uintptr, *DataChannel]
	transports   *registry[uintptr, *DTLSTransport]
	sctp         *registry[uintptr, *SCTPTransport]
	external     *externalTracks
}

// NewPeerConnection creates a connection on ctx's engine. The negotiation
// mode is taken from cfg.SDPSemantics and cannot change afterwards.
func NewPeerConnection(ctx *Context, cfg Configuration, opts ...Option) (*PeerConnection, error) {
	o := buildOptions(options{log: ctx.log, metrics: ctx.metrics, loop: ctx.loop}, opts)

	id := uuid.NewString()
	log := o.log.WithFields(logrus.Fields{"pc": id, "mode": cfg.SDPSemantics})
	pc := &PeerConnection{
		id:        id,
		context:   ctx,
		queue:     o.loop.NewQueue("pc/" + id),
		log:       log,
		metrics:   o.metrics,
		strategy:  strategyFor(cfg.SDPSemantics),
		config:    cfg.clone(),
		signaling: newSignalingMachine(log),

		transceivers: newRegistry[uintptr, *RTPTransceiver](kindTransceiver, log, o.metrics),
		senders:      newRegistry[string, *RTPSender](kindSender, log, o.metrics),
		receivers:    newRegistry[string, *RTPReceiver](kindReceiver, log, o.metrics),
		tracks:       newRegistry[string, *MediaStreamTrack](kindTrack, log, o.metrics),
		streams:      newRegistry[string, *MediaStream](kindStream, log, o.metrics),
		channels:     newRegistry[uintptr, *DataChannel](kindChannel, log, o.metrics),
		transports:   newRegistry[uintptr, *DTLSTransport](kindDTLS, log, o.metrics),
		sctp:         newRegistry[uintptr, *SCTPTransport](kindSCTP, log, o.metrics),
		external:     newExternalTracks(log, o.metrics),
	}

	lease, err := ctx.lease(pc)
	if err != nil {
		return nil, err
	}
	pc.lease = lease

	// Events the engine raises during construction queue up behind mu.
	pc.mu.Lock()
	defer pc.mu.Unlock()
	native, err := ctx.engine.NewPeerConnection(cfg, pc.observe)
	if err != nil {
		if rerr := lease.release(); rerr != nil {
			log.WithError(rerr).Warn("release engine context")
		}
		return nil, engineError("newPeerConnection", err)
	}
	pc.native = native
	pc.metrics.connectionOpened()
	log.WithField("engine", ctx.engine.Name()).Info("peer connection created")
	return pc, nil
}

// ID returns the connection's bridge-assigned identifier.
func (pc *PeerConnection) ID() string { return pc.id }

// Queue returns the dispatch queue callbacks are delivered on.
func (pc *PeerConnection) Queue() *Queue { return pc.queue }

// Semantics returns the negotiation mode fixed at construction.
func (pc *PeerConnection) Semantics() SDPSemantics { return pc.strategy.mode() }

// checkOpenLocked rejects operations once the engine handle is gone or the
// signaling state is closed.
func (pc *PeerConnection) checkOpenLocked(op string) error {
	if pc.native == nil || pc.closing || pc.signaling.current() == SignalingStateClosed {
		return errClosed(op)
	}
	return nil
}

// post runs fn on the connection's queue.
func (pc *PeerConnection) post(op string, fn func()) {
	if err := pc.queue.Post(fn); err != nil {
		pc.log.WithField("op", op).WithError(err).Warn("dropping engine callback")
	}
}

// CreateOffer asks the engine for an offer.
func (pc *PeerConnection) CreateOffer(opts *OfferOptions) *Pending[SessionDescription] {
	const op = "createOffer"
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.checkOpenLocked(op); err != nil {
		return rejected[SessionDescription](pc.queue, err)
	}
	var o OfferOptions
	if opts != nil {
		o = *opts
	}
	p := newPending[SessionDescription](pc.queue)
	pc.native.CreateOffer(o, func(desc SessionDescription, err error) {
		settle(pc.queue, p, func() (SessionDescription, error) {
			return pc.completeCreate(op, desc, err)
		})
	})
	return p
}

// CreateAnswer asks the engine for an answer to the remote offer.
func (pc *PeerConnection) CreateAnswer(opts *AnswerOptions) *Pending[SessionDescription] {
	const op = "createAnswer"
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.checkOpenLocked(op); err != nil {
		return rejected[SessionDescription](pc.queue, err)
	}
	var o AnswerOptions
	if opts != nil {
		o = *opts
	}
	p := newPending[SessionDescription](pc.queue)
	pc.native.CreateAnswer(o, func(desc SessionDescription, err error) {
		settle(pc.queue, p, func() (SessionDescription, error) {
			return pc.completeCreate(op, desc, err)
		})
	})
	return p
}

func (pc *PeerConnection) completeCreate(op string, desc SessionDescription, err error) (SessionDescription, error) {
	if err != nil {
		err = engineError(op, err)
		pc.log.WithField("op", op).WithError(err).Error("engine rejected operation")
		return SessionDescription{}, err
	}
	pc.mu.Lock()
	pc.lastSDP = desc
	pc.mu.Unlock()
	return desc, nil
}

// SetLocalDescription applies desc locally. An empty SDP reuses the last
// description produced by CreateOffer or CreateAnswer. On success the
// registries are reconciled before the result resolves.
func (pc *PeerConnection) SetLocalDescription(desc SessionDescription) *Pending[struct{}] {
	const op = "setLocalDescription"
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.checkOpenLocked(op); err != nil {
		return rejected[struct{}](pc.queue, err)
	}
	if desc.Type != SDPTypeRollback && desc.SDP == "" {
		if pc.lastSDP.SDP == "" {
			return rejected[struct{}](pc.queue, invalidState(op, "no description has been created"))
		}
		desc.SDP = pc.lastSDP.SDP
	}
	if err := validateDescription(desc); err != nil {
		return rejected[struct{}](pc.queue, err)
	}
	p := newPending[struct{}](pc.queue)
	pc.native.SetLocalDescription(desc, func(err error) {
		settle(pc.queue, p, func() (struct{}, error) {
			return struct{}{}, pc.completeDescription(op, err)
		})
	})
	return p
}

// SetRemoteDescription applies the remote peer's description. On success
// the registries are reconciled before the result resolves.
func (pc *PeerConnection) SetRemoteDescription(desc SessionDescription) *Pending[struct{}] {
	const op = "setRemoteDescription"
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.checkOpenLocked(op); err != nil {
		return rejected[struct{}](pc.queue, err)
	}
	if err := validateDescription(desc); err != nil {
		return rejected[struct{}](pc.queue, err)
	}
	p := newPending[struct{}](pc.queue)
	pc.native.SetRemoteDescription(desc, func(err error) {
		settle(pc.queue, p, func() (struct{}, error) {
			return struct{}{}, pc.completeDescription(op, err)
		})
	})
	return p
}

func validateDescription(desc SessionDescription) error {
	if desc.Type == SDPTypeRollback {
		return nil
	}
	if desc.SDP == "" {
		return fmt.Errorf("%w: empty session description", ErrTypeMismatch)
	}
	_, err := ParseSDP(desc.SDP)
	return err
}

// completeDescription runs on the Loop when the engine finishes applying a
// description. Registries change only on success.
func (pc *PeerConnection) completeDescription(op string, err error) error {
	if err != nil {
		err = engineError(op, err)
		pc.log.WithField("op", op).WithError(err).Error("engine rejected description")
		return err
	}
	pc.mu.Lock()
	var fire []func()
	if pc.native != nil {
		fire = pc.syncSignalingLocked(pc.native.SignalingState(), fire)
		pc.reconcileLocked(op)
	}
	pc.mu.Unlock()
	run(fire)
	return nil
}

// AddICECandidate hands a remote candidate to the engine.
func (pc *PeerConnection) AddICECandidate(c ICECandidateInit) *Pending[struct{}] {
	const op = "addIceCandidate"
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.checkOpenLocked(op); err != nil {
		return rejected[struct{}](pc.queue, err)
	}
	p := newPending[struct{}](pc.queue)
	pc.native.AddICECandidate(c, func(err error) {
		settle(pc.queue, p, func() (struct{}, error) {
			pc.mu.Lock()
			closed := pc.native == nil
			pc.mu.Unlock()
			if closed {
				return struct{}{}, errClosed(op)
			}
			return struct{}{}, engineError(op, err)
		})
	})
	return p
}

// GetStats collects a stats snapshot from the engine.
func (pc *PeerConnection) GetStats() *Pending[StatsReport] {
	const op = "getStats"
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native == nil {
		return rejected[StatsReport](pc.queue, errClosed(op))
	}
	p := newPending[StatsReport](pc.queue)
	pc.native.GetStats(func(report StatsReport, err error) {
		settle(pc.queue, p, func() (StatsReport, error) {
			if err != nil {
				return nil, engineError(op, err)
			}
			return report, nil
		})
	})
	return p
}

// AddTrack starts sending track. Tracks this connection does not own are
// referenced once, however many senders carry them.
func (pc *PeerConnection) AddTrack(track *MediaStreamTrack, streams ...*MediaStream) (*RTPSender, error) {
	const op = "addTrack"
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.checkOpenLocked(op); err != nil {
		return nil, err
	}
	if track == nil {
		return nil, fmt.Errorf("%w: addTrack requires a track", ErrTypeMismatch)
	}

	acquired := pc.adoptLocked(track)
	ns, err := pc.native.AddTrack(track.native, streamIDs(streams))
	if err != nil {
		if acquired {
			pc.external.drop(track.ID())
		}
		return nil, engineError(op, err)
	}

	if pc.strategy.mode() == SDPSemanticsUnifiedPlan {
		for _, nt := range pc.native.Transceivers() {
			if s := nt.Sender(); s != nil && s.ID() == ns.ID() {
				return pc.upsertTransceiverLocked(nt).sender, nil
			}
		}
	}
	return pc.upsertSenderLocked(ns, nil), nil
}

// RemoveTrack stops sending on sender. The sender must belong to this
// connection.
func (pc *PeerConnection) RemoveTrack(sender *RTPSender) error {
	const op = "removeTrack"
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.checkOpenLocked(op); err != nil {
		return err
	}
	if sender == nil || sender.pc != pc || !pc.senders.Contains(sender.id, sender) {
		return fmt.Errorf("%w: the sender was not created by this peer connection", ErrInvalidAccess)
	}
	trackID := sender.trackID()
	if err := pc.native.RemoveTrack(sender.native); err != nil {
		return fmt.Errorf("%w: cannot remove track: %v", ErrInvalidAccess, err)
	}

	if pc.strategy.mode() == SDPSemanticsPlanB {
		sender.track = nil
		pc.senders.Remove(sender.id)
	} else {
		if sender.transceiver != nil {
			pc.upsertTransceiverLocked(sender.transceiver.native)
		}
		sender.updateLocked()
	}
	pc.releaseDetachedLocked(trackID)
	return nil
}

// AddTransceiver adds a transceiver of the given kind. Transceiver mode
// only.
func (pc *PeerConnection) AddTransceiver(kind RTPCodecType, init *TransceiverInit) (*RTPTransceiver, error) {
	return pc.addTransceiver(kind, nil, init)
}

// AddTransceiverFromTrack adds a transceiver sending track. Transceiver
// mode only.
func (pc *PeerConnection) AddTransceiverFromTrack(track *MediaStreamTrack, init *TransceiverInit) (*RTPTransceiver, error) {
	if track == nil {
		return nil, fmt.Errorf("%w: addTransceiver requires a track", ErrTypeMismatch)
	}
	return pc.addTransceiver(track.Kind(), track, init)
}

func (pc *PeerConnection) addTransceiver(kind RTPCodecType, track *MediaStreamTrack, init *TransceiverInit) (*RTPTransceiver, error) {
	const op = "addTransceiver"
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.checkOpenLocked(op); err != nil {
		return nil, err
	}
	if pc.strategy.mode() != SDPSemanticsUnifiedPlan {
		return nil, invalidState(op, "only available in transceiver mode")
	}
	if kind != RTPCodecTypeAudio && kind != RTPCodecTypeVideo {
		return nil, fmt.Errorf("%w: unknown media kind %q", ErrTypeMismatch, kind)
	}
	var in TransceiverInit
	if init != nil {
		in = *init
	}
	if in.Direction == TransceiverDirectionStopped {
		return nil, fmt.Errorf("%w: cannot add a stopped transceiver", ErrTypeMismatch)
	}

	var (
		nt       NativeTrack
		acquired bool
	)
	if track != nil {
		nt = track.native
		acquired = pc.adoptLocked(track)
	}
	n, err := pc.native.AddTransceiver(kind, nt, in)
	if err != nil {
		if acquired {
			pc.external.drop(track.ID())
		}
		return nil, engineError(op, err)
	}
	return pc.upsertTransceiverLocked(n), nil
}

// CreateDataChannel creates a channel owned by this connection.
func (pc *PeerConnection) CreateDataChannel(label string, init *DataChannelInit) (*DataChannel, error) {
	const op = "createDataChannel"
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.checkOpenLocked(op); err != nil {
		return nil, err
	}
	var in DataChannelInit
	if init != nil {
		in = *init
	}
	if len(label) > 65535 {
		return nil, fmt.Errorf("%w: label longer than 65535 bytes", ErrTypeMismatch)
	}
	if in.MaxRetransmits != nil && in.MaxPacketLifeTime != nil {
		return nil, fmt.Errorf("%w: maxRetransmits and maxPacketLifeTime are exclusive", ErrTypeMismatch)
	}
	if in.Negotiated && in.ID == nil {
		return nil, fmt.Errorf("%w: negotiated channels require an id", ErrTypeMismatch)
	}
	n, err := pc.native.CreateDataChannel(label, in)
	if err != nil {
		return nil, engineError(op, err)
	}
	dc, _ := pc.upsertChannelLocked(n)
	return dc, nil
}

// GetConfiguration returns the live configuration, or the snapshot taken
// at close.
func (pc *PeerConnection) GetConfiguration() Configuration {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native != nil {
		pc.config = pc.native.Configuration()
	}
	return pc.config.clone()
}

// SetConfiguration updates the configuration. The negotiation mode cannot
// change.
func (pc *PeerConnection) SetConfiguration(cfg Configuration) error {
	const op = "setConfiguration"
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.checkOpenLocked(op); err != nil {
		return err
	}
	if cfg.SDPSemantics != pc.strategy.mode() {
		return invalidState(op, "the negotiation mode cannot be modified")
	}
	if err := pc.native.SetConfiguration(cfg); err != nil {
		return engineError(op, err)
	}
	pc.config = cfg.clone()
	return nil
}

// GetSenders returns the registered senders; empty once closed.
func (pc *PeerConnection) GetSenders() []*RTPSender {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native == nil {
		return []*RTPSender{}
	}
	return pc.senders.Values()
}

// GetReceivers returns the registered receivers; empty once closed.
func (pc *PeerConnection) GetReceivers() []*RTPReceiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native == nil {
		return []*RTPReceiver{}
	}
	return pc.receivers.Values()
}

// GetTransceivers returns the registered transceivers; empty once closed
// and in legacy mode.
func (pc *PeerConnection) GetTransceivers() []*RTPTransceiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native == nil || pc.strategy.mode() != SDPSemanticsUnifiedPlan {
		return []*RTPTransceiver{}
	}
	return pc.transceivers.Values()
}

// SCTP returns the SCTP transport once the engine has one.
func (pc *PeerConnection) SCTP() *SCTPTransport {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native == nil {
		return nil
	}
	return pc.upsertSCTPLocked(pc.native.SCTP())
}

// RestartICE requests an ICE restart at the next offer. No-op once closed.
func (pc *PeerConnection) RestartICE() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native == nil {
		return
	}
	pc.native.RestartICE()
}

// CanTrickleICECandidates reports whether the remote peer accepts trickled
// candidates. The engine does not expose it, so it is always unknown.
func (pc *PeerConnection) CanTrickleICECandidates() (can, known bool) {
	return false, false
}

func (pc *PeerConnection) SignalingState() SignalingState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native == nil {
		return SignalingStateClosed
	}
	return pc.signaling.current()
}

func (pc *PeerConnection) ICEConnectionState() ICEConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native == nil {
		return ICEConnectionStateClosed
	}
	return pc.iceState
}

func (pc *PeerConnection) ConnectionState() PeerConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native == nil {
		return PeerConnectionStateClosed
	}
	return pc.connState
}

func (pc *PeerConnection) ICEGatheringState() ICEGatheringState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native == nil {
		return ICEGatheringStateComplete
	}
	return pc.gathering
}

func (pc *PeerConnection) description(get func(NativePeerConnection) *SessionDescription) *SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.native == nil {
		return nil
	}
	return get(pc.native)
}

func (pc *PeerConnection) LocalDescription() *SessionDescription {
	return pc.description(NativePeerConnection.LocalDescription)
}

func (pc *PeerConnection) CurrentLocalDescription() *SessionDescription {
	return pc.description(NativePeerConnection.CurrentLocalDescription)
}

func (pc *PeerConnection) PendingLocalDescription() *SessionDescription {
	return pc.description(NativePeerConnection.PendingLocalDescription)
}

func (pc *PeerConnection) RemoteDescription() *SessionDescription {
	return pc.description(NativePeerConnection.RemoteDescription)
}

func (pc *PeerConnection) CurrentRemoteDescription() *SessionDescription {
	return pc.description(NativePeerConnection.CurrentRemoteDescription)
}

func (pc *PeerConnection) PendingRemoteDescription() *SessionDescription {
	return pc.description(NativePeerConnection.PendingRemoteDescription)
}

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
