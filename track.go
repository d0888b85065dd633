package wrtc

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Re-export pion's RTPCodecType for convenience
type RTPCodecType = webrtc.RTPCodecType

const (
	RTPCodecTypeUnknown = webrtc.RTPCodecTypeUnknown
	RTPCodecTypeAudio   = webrtc.RTPCodecTypeAudio
	RTPCodecTypeVideo   = webrtc.RTPCodecTypeVideo
)

// TrackState represents the state of a track.
type TrackState int

const (
	TrackStateLive  TrackState = iota // Track is active and producing/consuming media
	TrackStateEnded                   // Track has ended
	TrackStateMuted                   // Track is muted (still active but not producing)
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateEnded:
		return "ended"
	case TrackStateMuted:
		return "muted"
	default:
		return "unknown"
	}
}

// MediaStreamTrack is the host-side proxy of a track. Tracks created with
// NewMediaStreamTrack hold a creator reference dropped by Close; every
// connection that adopts the track holds one more until it detaches. The
// track ends when the last reference is released.
//
// Tracks created by a connection, such as those received from the remote
// peer, are owned by it and have no creator reference.
type MediaStreamTrack struct {
	lifetime
	native NativeTrack
	owned  bool

	creatorClosed atomic.Bool
	ended         atomic.Bool

	mu      sync.Mutex
	endedCb func()
}

// NewMediaStreamTrack wraps a standalone native track, e.g. a *LocalTrack.
func NewMediaStreamTrack(native NativeTrack) *MediaStreamTrack {
	t := newMediaStreamTrack(native, false)
	t.acquire()
	return t
}

func newMediaStreamTrack(native NativeTrack, owned bool) *MediaStreamTrack {
	t := &MediaStreamTrack{native: native, owned: owned}
	t.onZero = t.end
	return t
}

func (t *MediaStreamTrack) ID() string          { return t.native.ID() }
func (t *MediaStreamTrack) Kind() RTPCodecType  { return t.native.Kind() }
func (t *MediaStreamTrack) Native() NativeTrack { return t.native }
func (t *MediaStreamTrack) Enabled() bool       { return t.native.Enabled() }
func (t *MediaStreamTrack) SetEnabled(e bool)   { t.native.SetEnabled(e) }

// ReadyState returns ended once the track has ended, otherwise the native
// state.
func (t *MediaStreamTrack) ReadyState() TrackState {
	if t.ended.Load() {
		return TrackStateEnded
	}
	return t.native.State()
}

// OnEnded sets a callback for when the track ends. It runs on its own
// goroutine.
func (t *MediaStreamTrack) OnEnded(callback func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endedCb = callback
}

// Close drops the creator reference of a standalone track, or ends a track
// owned by a connection. Repeated calls are no-ops.
func (t *MediaStreamTrack) Close() error {
	if t.owned {
		t.end()
		return nil
	}
	if t.creatorClosed.CompareAndSwap(false, true) {
		t.release()
	}
	return nil
}

func (t *MediaStreamTrack) end() {
	if !t.ended.CompareAndSwap(false, true) {
		return
	}
	t.mu.Lock()
	cb := t.endedCb
	t.mu.Unlock()
	if cb != nil {
		go cb()
	}
}

// MediaStream is a named group of tracks.
type MediaStream struct {
	lifetime
	id string

	mu     sync.RWMutex
	tracks []*MediaStreamTrack
}

// NewMediaStream creates a stream to group tracks passed to AddTrack.
func NewMediaStream(id string) *MediaStream {
	return &MediaStream{id: id}
}

func (s *MediaStream) ID() string { return s.id }

// Active returns whether any track in the stream is live.
func (s *MediaStream) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.ReadyState() != TrackStateEnded {
			return true
		}
	}
	return false
}

func (s *MediaStream) GetTracks() []*MediaStreamTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*MediaStreamTrack(nil), s.tracks...)
}

func (s *MediaStream) GetTrackByID(id string) *MediaStreamTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

// AddTrack adds t unless a track with the same id is present.
func (s *MediaStream) AddTrack(t *MediaStreamTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.tracks {
		if cur.ID() == t.ID() {
			return
		}
	}
	s.tracks = append(s.tracks, t)
}

func (s *MediaStream) RemoveTrack(t *MediaStreamTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.tracks {
		if cur.ID() == t.ID() {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return
		}
	}
}

// BaseTrack provides the NativeTrack state shared by local sources.
type BaseTrack struct {
	id       string
	streamID string
	rid      string
	kind     RTPCodecType
	state    atomic.Int32
	enabled  atomic.Bool
	endedCb  func()
	mu       sync.RWMutex
}

// NewBaseTrack creates a new base track.
func NewBaseTrack(id, streamID string, kind RTPCodecType) *BaseTrack {
	t := &BaseTrack{
		id:       id,
		streamID: streamID,
		kind:     kind,
	}
	t.state.Store(int32(TrackStateLive))
	t.enabled.Store(true)
	return t
}

func (t *BaseTrack) ID() string         { return t.id }
func (t *BaseTrack) StreamID() string   { return t.streamID }
func (t *BaseTrack) Kind() RTPCodecType { return t.kind }

func (t *BaseTrack) RID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rid
}

func (t *BaseTrack) SetRID(rid string) {
	t.mu.Lock()
	t.rid = rid
	t.mu.Unlock()
}

func (t *BaseTrack) State() TrackState {
	return TrackState(t.state.Load())
}

func (t *BaseTrack) SetState(state TrackState) {
	old := TrackState(t.state.Swap(int32(state)))
	if state == TrackStateEnded && old != TrackStateEnded {
		t.mu.RLock()
		cb := t.endedCb
		t.mu.RUnlock()
		if cb != nil {
			go cb()
		}
	}
}

func (t *BaseTrack) Enabled() bool     { return t.enabled.Load() }
func (t *BaseTrack) SetEnabled(e bool) { t.enabled.Store(e) }

func (t *BaseTrack) OnEnded(callback func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endedCb = callback
}

// LocalTrack is a standalone RTP source. It implements both NativeTrack, so
// it can be adopted by any connection, and pion's webrtc.TrackLocal, so
// the pion backend can bind it directly.
type LocalTrack struct {
	*BaseTrack
	codec    webrtc.RTPCodecCapability
	bindMu   sync.RWMutex
	bindings []binding

	sampleMu   sync.Mutex
	packetizer rtp.Packetizer
}

// binding is one sender the track writes to, with the SSRC and payload
// type negotiated for it.
type binding struct {
	ctx         webrtc.TrackLocalContext
	ssrc        webrtc.SSRC
	payloadType webrtc.PayloadType
}

// NewLocalTrack creates a new LocalTrack. An empty id is replaced by a
// random UUID.
func NewLocalTrack(codec webrtc.RTPCodecCapability, id, streamID string) *LocalTrack {
	if id == "" {
		id = uuid.NewString()
	}
	kind := RTPCodecTypeVideo
	if strings.HasPrefix(strings.ToLower(codec.MimeType), "audio/") {
		kind = RTPCodecTypeAudio
	}
	return &LocalTrack{
		BaseTrack: NewBaseTrack(id, streamID, kind),
		codec:     codec,
	}
}

// Codec returns the codec capability.
func (t *LocalTrack) Codec() webrtc.RTPCodecCapability {
	return t.codec
}

// Bind implements webrtc.TrackLocal.
func (t *LocalTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	t.bindMu.Lock()
	defer t.bindMu.Unlock()

	for _, p := range ctx.CodecParameters() {
		if strings.EqualFold(p.MimeType, t.codec.MimeType) {
			t.bindings = append(t.bindings, binding{ctx: ctx, ssrc: ctx.SSRC(), payloadType: p.PayloadType})
			return p, nil
		}
	}
	return webrtc.RTPCodecParameters{}, webrtc.ErrUnsupportedCodec
}

// Unbind implements webrtc.TrackLocal.
func (t *LocalTrack) Unbind(ctx webrtc.TrackLocalContext) error {
	t.bindMu.Lock()
	defer t.bindMu.Unlock()

	for i, b := range t.bindings {
		if b.ctx.ID() == ctx.ID() {
			t.bindings = append(t.bindings[:i], t.bindings[i+1:]...)
			break
		}
	}
	return nil
}

// Bound returns the number of senders the track is bound to.
func (t *LocalTrack) Bound() int {
	t.bindMu.RLock()
	defer t.bindMu.RUnlock()
	return len(t.bindings)
}

// WriteRTP writes an RTP packet to every bound sender, with the SSRC and
// payload type of each binding. Disabled or ended tracks drop packets.
func (t *LocalTrack) WriteRTP(p *rtp.Packet) error {
	if !t.Enabled() || t.State() == TrackStateEnded {
		return nil
	}
	t.bindMu.RLock()
	defer t.bindMu.RUnlock()

	for _, b := range t.bindings {
		h := p.Header
		h.SSRC = uint32(b.ssrc)
		h.PayloadType = uint8(b.payloadType)
		if _, err := b.ctx.WriteStream().WriteRTP(&h, p.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Write writes raw RTP bytes to every bound sender.
func (t *LocalTrack) Write(b []byte) (int, error) {
	var p rtp.Packet
	if err := p.Unmarshal(b); err != nil {
		return 0, err
	}
	return len(b), t.WriteRTP(&p)
}

// Close implements io.Closer.
func (t *LocalTrack) Close() error {
	t.SetState(TrackStateEnded)
	return nil
}

var (
	_ webrtc.TrackLocal = (*LocalTrack)(nil)
	_ NativeTrack       = (*LocalTrack)(nil)
)
