package wrtc

import "fmt"

const (
	kindReceiver = "receiver"
	kindTrack    = "track"
	kindStream   = "stream"
)

// RTPReceiver mirrors a native receiver. Its track is owned by the
// connection; its streams are referenced.
type RTPReceiver struct {
	lifetime
	pc     *PeerConnection
	native NativeReceiver
	id     string

	// guarded by pc.mu
	track     *MediaStreamTrack
	transport *DTLSTransport
	streams   []*MediaStream
}

func (pc *PeerConnection) upsertReceiverLocked(n NativeReceiver) *RTPReceiver {
	r, _ := pc.receivers.GetOrCreate(n.ID(), func() *RTPReceiver {
		return &RTPReceiver{pc: pc, native: n, id: n.ID()}
	}, nil)
	r.updateLocked(n.Streams())
	return r
}

func (r *RTPReceiver) updateLocked(streams []NativeStream) {
	pc := r.pc
	if nt := r.native.Track(); nt != nil {
		r.track, _ = pc.tracks.GetOrCreate(nt.ID(), func() *MediaStreamTrack {
			return newMediaStreamTrack(nt, true)
		}, nil)
	}
	r.transport = pc.upsertDTLSLocked(r.native.Transport())

	r.streams = r.streams[:0]
	for _, ns := range streams {
		ms := pc.upsertStreamLocked(ns)
		if r.track != nil {
			ms.AddTrack(r.track)
		}
		r.streams = append(r.streams, ms)
	}
}

func (pc *PeerConnection) upsertStreamLocked(ns NativeStream) *MediaStream {
	ms, _ := pc.streams.GetOrCreate(ns.ID(), func() *MediaStream {
		return NewMediaStream(ns.ID())
	}, nil)
	return ms
}

// removeReceiverLocked drops a receiver the engine no longer reports. Its
// track leaves the receiver's streams, ends and is released, so a track
// reported again under the same id gets a new proxy.
func (pc *PeerConnection) removeReceiverLocked(id string) bool {
	r, ok := pc.receivers.Get(id)
	if !ok {
		return false
	}
	pc.receivers.Remove(id)
	if t := r.track; t != nil {
		for _, ms := range r.streams {
			ms.RemoveTrack(t)
		}
		t.end()
		if pc.tracks.Contains(t.ID(), t) {
			pc.tracks.Remove(t.ID())
		}
	}
	return true
}

func (r *RTPReceiver) ID() string { return r.id }

func (r *RTPReceiver) Track() *MediaStreamTrack {
	r.pc.mu.Lock()
	defer r.pc.mu.Unlock()
	return r.track
}

func (r *RTPReceiver) Transport() *DTLSTransport {
	r.pc.mu.Lock()
	defer r.pc.mu.Unlock()
	return r.transport
}

func (r *RTPReceiver) Streams() []*MediaStream {
	r.pc.mu.Lock()
	defer r.pc.mu.Unlock()
	return append([]*MediaStream(nil), r.streams...)
}

// GetStats is not implemented for receivers; use PeerConnection.GetStats.
func (r *RTPReceiver) GetStats() (StatsReport, error) {
	return nil, fmt.Errorf("%w: receiver stats", ErrNotImplemented)
}
