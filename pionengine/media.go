package pionengine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/wrtc"
)

type transceiver struct {
	handle uintptr
	pc     *peerConnection
	t      *webrtc.RTPTransceiver
	kind   wrtc.RTPCodecType

	mu       sync.Mutex
	stopped  bool
	settled  bool
	hasFired bool
	firedDir wrtc.TransceiverDirection
}

func (tr *transceiver) Handle() uintptr         { return tr.handle }
func (tr *transceiver) Kind() wrtc.RTPCodecType { return tr.kind }

func (tr *transceiver) Mid() (string, bool) {
	mid := tr.t.Mid()
	return mid, mid != ""
}

func (tr *transceiver) Direction() wrtc.TransceiverDirection {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.stopped {
		return wrtc.TransceiverDirectionStopped
	}
	return direction(tr.t.Direction())
}

// CurrentDirection is known only for stopped transceivers: pion does not
// expose the negotiated direction.
func (tr *transceiver) CurrentDirection() (wrtc.TransceiverDirection, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.settled {
		return wrtc.TransceiverDirectionStopped, true
	}
	return 0, false
}

func (tr *transceiver) FiredDirection() (wrtc.TransceiverDirection, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.firedDir, tr.hasFired
}

func (tr *transceiver) fired(*webrtc.TrackRemote) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.hasFired = true
	if tr.t.Sender() != nil && tr.t.Sender().Track() != nil {
		tr.firedDir = wrtc.TransceiverDirectionSendRecv
	} else {
		tr.firedDir = wrtc.TransceiverDirectionRecvOnly
	}
}

func (tr *transceiver) settle() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.stopped {
		tr.settled = true
	}
}

func (tr *transceiver) Stopped() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.stopped
}

func (tr *transceiver) Sender() wrtc.NativeSender {
	s := tr.t.Sender()
	if s == nil {
		return nil
	}
	return tr.pc.sender(s, tr.kind)
}

func (tr *transceiver) Receiver() wrtc.NativeReceiver {
	r := tr.t.Receiver()
	if r == nil {
		return nil
	}
	return tr.pc.receiver(r)
}

func (tr *transceiver) SetDirection(d wrtc.TransceiverDirection) error {
	return fmt.Errorf("%w: pion transceiver direction is fixed at creation", wrtc.ErrNotImplemented)
}

func (tr *transceiver) Stop() error {
	if err := tr.t.Stop(); err != nil {
		return err
	}
	tr.mu.Lock()
	tr.stopped = true
	tr.mu.Unlock()
	if r := tr.t.Receiver(); r != nil {
		tr.pc.receiver(r).end()
	}
	return nil
}

func (tr *transceiver) SetCodecPreferences(c []wrtc.RTPCodecParameters) error {
	return tr.t.SetCodecPreferences(toPionCodecs(c))
}

type sender struct {
	id   string
	kind wrtc.RTPCodecType
	pc   *peerConnection
	s    *webrtc.RTPSender

	mu      sync.Mutex
	track   wrtc.NativeTrack
	streams []string
	txn     string
}

func newSender(pc *peerConnection, s *webrtc.RTPSender, kind wrtc.RTPCodecType) *sender {
	return &sender{id: uuid.NewString(), kind: kind, pc: pc, s: s}
}

func (s *sender) set(t wrtc.NativeTrack, streams []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track, s.streams = t, append([]string(nil), streams...)
}

func (s *sender) ID() string              { return s.id }
func (s *sender) Kind() wrtc.RTPCodecType { return s.kind }

func (s *sender) Track() wrtc.NativeTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *sender) Transport() wrtc.NativeDTLSTransport {
	return s.pc.transport(s.s.Transport())
}

func (s *sender) ReplaceTrack(t wrtc.NativeTrack) error {
	local, err := localTrack(t)
	if err != nil {
		return err
	}
	if err := s.s.ReplaceTrack(local); err != nil {
		return err
	}
	s.mu.Lock()
	s.track = t
	s.mu.Unlock()
	return nil
}

func (s *sender) SetStreams([]string) error {
	return fmt.Errorf("%w: pion senders keep the stream of their track", wrtc.ErrNotImplemented)
}

func (s *sender) Parameters() wrtc.RTPSendParameters {
	p := s.s.GetParameters()
	s.mu.Lock()
	s.txn = uuid.NewString()
	out := wrtc.RTPSendParameters{TransactionID: s.txn, Codecs: codecs(p.Codecs)}
	s.mu.Unlock()
	for _, e := range p.Encodings {
		out.Encodings = append(out.Encodings, wrtc.RTPEncodingParameters{RID: e.RID, Active: true})
	}
	return out
}

func (s *sender) SetParameters(wrtc.RTPSendParameters) error {
	return fmt.Errorf("%w: pion sender parameters are read-only", wrtc.ErrNotImplemented)
}

type receiver struct {
	id string
	pc *peerConnection
	r  *webrtc.RTPReceiver

	mu    sync.Mutex
	track *remoteTrack
	ended atomic.Bool
}

func newReceiver(pc *peerConnection, r *webrtc.RTPReceiver) *receiver {
	return &receiver{id: uuid.NewString(), pc: pc, r: r}
}

func (r *receiver) ID() string { return r.id }

func (r *receiver) Track() wrtc.NativeTrack {
	t := r.remote()
	if t == nil {
		return nil
	}
	return t
}

func (r *receiver) remote() *remoteTrack {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.track != nil {
		return r.track
	}
	t := r.r.Track()
	if t == nil {
		return nil
	}
	r.track = &remoteTrack{t: t, recv: r}
	r.track.enabled.Store(true)
	return r.track
}

func (r *receiver) Transport() wrtc.NativeDTLSTransport {
	return r.pc.transport(r.r.Transport())
}

func (r *receiver) Streams() []wrtc.NativeStream {
	t := r.remote()
	if t == nil || t.t.StreamID() == "" {
		return nil
	}
	return []wrtc.NativeStream{stream(t.t.StreamID())}
}

func (r *receiver) end() { r.ended.Store(true) }

// remoteTrack is a track received from the remote peer. It ends with its
// receiver.
type remoteTrack struct {
	t       *webrtc.TrackRemote
	recv    *receiver
	enabled atomic.Bool
}

func (t *remoteTrack) ID() string              { return t.t.ID() }
func (t *remoteTrack) Kind() wrtc.RTPCodecType { return t.t.Kind() }
func (t *remoteTrack) Enabled() bool           { return t.enabled.Load() }
func (t *remoteTrack) SetEnabled(e bool)       { t.enabled.Store(e) }

func (t *remoteTrack) State() wrtc.TrackState {
	if t.recv.ended.Load() {
		return wrtc.TrackStateEnded
	}
	return wrtc.TrackStateLive
}

// Remote returns the pion track for reading RTP.
func (t *remoteTrack) Remote() *webrtc.TrackRemote { return t.t }

type stream string

func (s stream) ID() string { return string(s) }

var (
	_ wrtc.NativeTransceiver = (*transceiver)(nil)
	_ wrtc.NativeSender      = (*sender)(nil)
	_ wrtc.NativeReceiver    = (*receiver)(nil)
	_ wrtc.NativeTrack       = (*remoteTrack)(nil)
)
