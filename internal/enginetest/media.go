package enginetest

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/thesyncim/wrtc"
)

// Track is a fake media track.
type Track struct {
	id      string
	kind    wrtc.RTPCodecType
	enabled atomic.Bool
	ended   atomic.Bool
}

// NewTrack returns a live, enabled track. An empty id gets a random one.
func NewTrack(id string, kind wrtc.RTPCodecType) *Track {
	if id == "" {
		id = uuid.NewString()
	}
	t := &Track{id: id, kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *Track) ID() string              { return t.id }
func (t *Track) Kind() wrtc.RTPCodecType { return t.kind }
func (t *Track) Enabled() bool           { return t.enabled.Load() }
func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// End marks the track ended, as when the remote source stops.
func (t *Track) End() { t.ended.Store(true) }

func (t *Track) State() wrtc.TrackState {
	if t.ended.Load() {
		return wrtc.TrackStateEnded
	}
	return wrtc.TrackStateLive
}

// Stream is a fake media stream.
type Stream struct{ id string }

func (s *Stream) ID() string { return s.id }

// DTLSTransport is the connection's single bundled transport.
type DTLSTransport struct {
	handle uintptr
	pc     *PeerConnection
	state  wrtc.DTLSTransportState // guarded by pc.mu
}

func (t *DTLSTransport) Handle() uintptr { return t.handle }

func (t *DTLSTransport) State() wrtc.DTLSTransportState {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.state
}

// SCTPTransport exists once the connection has data channels.
type SCTPTransport struct {
	handle uintptr
	pc     *PeerConnection
	state  wrtc.SCTPTransportState // guarded by pc.mu
}

func (t *SCTPTransport) Handle() uintptr { return t.handle }

func (t *SCTPTransport) State() wrtc.SCTPTransportState {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.state
}

func (t *SCTPTransport) Transport() wrtc.NativeDTLSTransport { return t.pc.dtls }

func (t *SCTPTransport) MaxChannels() (uint16, bool) {
	if t.State() != wrtc.SCTPTransportStateConnected {
		return 0, false
	}
	return 65535, true
}

// Sender is a fake RTP sender.
type Sender struct {
	id   string
	kind wrtc.RTPCodecType
	pc   *PeerConnection

	// guarded by pc.mu
	track   wrtc.NativeTrack
	streams []string
	params  wrtc.RTPSendParameters
}

func (pc *PeerConnection) newSenderLocked(kind wrtc.RTPCodecType, track wrtc.NativeTrack, streams []string) *Sender {
	return &Sender{
		id:      uuid.NewString(),
		kind:    kind,
		pc:      pc,
		track:   track,
		streams: append([]string(nil), streams...),
		params: wrtc.RTPSendParameters{
			TransactionID: uuid.NewString(),
			Encodings:     []wrtc.RTPEncodingParameters{{Active: true}},
		},
	}
}

func (s *Sender) ID() string              { return s.id }
func (s *Sender) Kind() wrtc.RTPCodecType { return s.kind }

func (s *Sender) Track() wrtc.NativeTrack {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	return s.track
}

func (s *Sender) Transport() wrtc.NativeDTLSTransport { return s.pc.dtls }

// Streams returns the stream ids the sender is associated with.
func (s *Sender) Streams() []string {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	return append([]string(nil), s.streams...)
}

func (s *Sender) ReplaceTrack(track wrtc.NativeTrack) error {
	if err := s.pc.takeFailure(OpReplaceTrack); err != nil {
		return err
	}
	if track != nil && track.Kind() != s.kind {
		return fmt.Errorf("enginetest: cannot send a %s track on a %s sender", track.Kind(), s.kind)
	}
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	s.track = track
	return nil
}

func (s *Sender) SetStreams(streamIDs []string) error {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	s.streams = append([]string(nil), streamIDs...)
	return nil
}

func (s *Sender) Parameters() wrtc.RTPSendParameters {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	p := s.params
	p.Encodings = append([]wrtc.RTPEncodingParameters(nil), s.params.Encodings...)
	return p
}

func (s *Sender) SetParameters(params wrtc.RTPSendParameters) error {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	if params.TransactionID != s.params.TransactionID {
		return fmt.Errorf("enginetest: stale transaction id %q", params.TransactionID)
	}
	if len(params.Encodings) != len(s.params.Encodings) {
		return fmt.Errorf("enginetest: encodings cannot be added or removed")
	}
	s.params = params
	s.params.TransactionID = uuid.NewString()
	return nil
}

// Receiver is a fake RTP receiver.
type Receiver struct {
	id    string
	track *Track
	pc    *PeerConnection

	streams []*Stream // guarded by pc.mu
}

func (pc *PeerConnection) newReceiverLocked(id string, track *Track) *Receiver {
	return &Receiver{id: id, track: track, pc: pc}
}

func (r *Receiver) ID() string                          { return r.id }
func (r *Receiver) Track() wrtc.NativeTrack             { return r.track }
func (r *Receiver) Transport() wrtc.NativeDTLSTransport { return r.pc.dtls }

// FakeTrack exposes the concrete track to tests.
func (r *Receiver) FakeTrack() *Track { return r.track }

func (r *Receiver) Streams() []wrtc.NativeStream {
	r.pc.mu.Lock()
	defer r.pc.mu.Unlock()
	return r.streamsLocked()
}

func (r *Receiver) streamsLocked() []wrtc.NativeStream {
	out := make([]wrtc.NativeStream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	return out
}

func (r *Receiver) setStreamLocked(id string) {
	if id == "" || id == "-" {
		r.streams = nil
		return
	}
	r.streams = []*Stream{{id: id}}
}

// Transceiver is a fake RTP transceiver.
type Transceiver struct {
	handle   uintptr
	kind     wrtc.RTPCodecType
	pc       *PeerConnection
	sender   *Sender
	receiver *Receiver

	// guarded by pc.mu
	mid             string
	hasMid          bool
	direction       wrtc.TransceiverDirection
	remoteDirection wrtc.TransceiverDirection
	current         wrtc.TransceiverDirection
	hasCurrent      bool
	fired           wrtc.TransceiverDirection
	hasFired        bool
	stopped         bool
	fromAddTrack    bool
	codecs          []wrtc.RTPCodecParameters
}

func (pc *PeerConnection) newTransceiverLocked(kind wrtc.RTPCodecType, dir wrtc.TransceiverDirection, track wrtc.NativeTrack, streams []string) *Transceiver {
	t := &Transceiver{
		handle:    nextHandle(),
		kind:      kind,
		pc:        pc,
		direction: dir,
	}
	t.sender = pc.newSenderLocked(kind, track, streams)
	t.receiver = pc.newReceiverLocked(uuid.NewString(), NewTrack(uuid.NewString(), kind))
	pc.transceivers = append(pc.transceivers, t)
	return t
}

func (t *Transceiver) Handle() uintptr               { return t.handle }
func (t *Transceiver) Kind() wrtc.RTPCodecType       { return t.kind }
func (t *Transceiver) Sender() wrtc.NativeSender     { return t.sender }
func (t *Transceiver) Receiver() wrtc.NativeReceiver { return t.receiver }

// FakeSender and FakeReceiver expose the concrete types to tests.
func (t *Transceiver) FakeSender() *Sender     { return t.sender }
func (t *Transceiver) FakeReceiver() *Receiver { return t.receiver }

func (t *Transceiver) Mid() (string, bool) {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.mid, t.hasMid
}

func (t *Transceiver) Direction() wrtc.TransceiverDirection {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.direction
}

func (t *Transceiver) CurrentDirection() (wrtc.TransceiverDirection, bool) {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.current, t.hasCurrent
}

func (t *Transceiver) FiredDirection() (wrtc.TransceiverDirection, bool) {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.fired, t.hasFired
}

func (t *Transceiver) Stopped() bool {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.stopped
}

func (t *Transceiver) SetDirection(d wrtc.TransceiverDirection) error {
	if err := t.pc.takeFailure(OpSetDirection); err != nil {
		return err
	}
	t.pc.mu.Lock()
	if t.stopped {
		t.pc.mu.Unlock()
		return fmt.Errorf("enginetest: transceiver stopped")
	}
	changed := t.direction != d
	t.direction = d
	t.pc.mu.Unlock()
	if changed {
		t.pc.negotiationNeeded()
	}
	return nil
}

func (t *Transceiver) Stop() error {
	if err := t.pc.takeFailure(OpStop); err != nil {
		return err
	}
	t.pc.mu.Lock()
	if t.stopped {
		t.pc.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.direction = wrtc.TransceiverDirectionStopped
	t.receiver.track.End()
	t.pc.mu.Unlock()
	t.pc.negotiationNeeded()
	return nil
}

func (t *Transceiver) SetCodecPreferences(codecs []wrtc.RTPCodecParameters) error {
	prefix := t.kind.String() + "/"
	for _, c := range codecs {
		if !strings.HasPrefix(strings.ToLower(c.MimeType), prefix) {
			return fmt.Errorf("enginetest: codec %q does not match a %s transceiver", c.MimeType, t.kind)
		}
	}
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	t.codecs = append([]wrtc.RTPCodecParameters(nil), codecs...)
	return nil
}

func sends(d wrtc.TransceiverDirection) bool {
	return d == wrtc.TransceiverDirectionSendRecv || d == wrtc.TransceiverDirectionSendOnly
}

func receives(d wrtc.TransceiverDirection) bool {
	return d == wrtc.TransceiverDirectionSendRecv || d == wrtc.TransceiverDirectionRecvOnly
}

func direction(send, recv bool) wrtc.TransceiverDirection {
	switch {
	case send && recv:
		return wrtc.TransceiverDirectionSendRecv
	case send:
		return wrtc.TransceiverDirectionSendOnly
	case recv:
		return wrtc.TransceiverDirectionRecvOnly
	default:
		return wrtc.TransceiverDirectionInactive
	}
}

// answerDirection intersects the local preference with the reverse of the
// remote offer's direction.
func answerDirection(local, remote wrtc.TransceiverDirection) wrtc.TransceiverDirection {
	return direction(sends(local) && receives(remote), receives(local) && sends(remote))
}

func reverse(d wrtc.TransceiverDirection) wrtc.TransceiverDirection {
	return direction(receives(d), sends(d))
}
