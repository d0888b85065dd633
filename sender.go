package wrtc

import "fmt"

const kindSender = "sender"

// RTPSender mirrors a native sender. Its track and transport are
// referenced, not owned.
type RTPSender struct {
	lifetime
	pc     *PeerConnection
	native NativeSender
	id     string
	kind   RTPCodecType

	// guarded by pc.mu
	transceiver *RTPTransceiver
	track       *MediaStreamTrack
	transport   *DTLSTransport
}

func (pc *PeerConnection) upsertSenderLocked(n NativeSender, t *RTPTransceiver) *RTPSender {
	s, _ := pc.senders.GetOrCreate(n.ID(), func() *RTPSender {
		return &RTPSender{pc: pc, native: n, id: n.ID(), kind: n.Kind()}
	}, nil)
	if t != nil {
		s.transceiver = t
	}
	s.updateLocked()
	return s
}

func (s *RTPSender) updateLocked() {
	s.track = s.pc.trackFromNativeLocked(s.native.Track())
	s.transport = s.pc.upsertDTLSLocked(s.native.Transport())
}

func (s *RTPSender) trackID() string {
	if s.track == nil {
		return ""
	}
	return s.track.ID()
}

// trackFromNativeLocked resolves a native track to the proxy this
// connection knows it by. Unknown tracks become owned by the connection.
func (pc *PeerConnection) trackFromNativeLocked(nt NativeTrack) *MediaStreamTrack {
	if nt == nil {
		return nil
	}
	if t, ok := pc.tracks.Get(nt.ID()); ok {
		return t
	}
	if t, ok := pc.external.get(nt.ID()); ok {
		return t
	}
	t, _ := pc.tracks.GetOrCreate(nt.ID(), func() *MediaStreamTrack {
		return newMediaStreamTrack(nt, true)
	}, nil)
	return t
}

func (s *RTPSender) ID() string         { return s.id }
func (s *RTPSender) Kind() RTPCodecType { return s.kind }

func (s *RTPSender) Track() *MediaStreamTrack {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	return s.track
}

func (s *RTPSender) Transport() *DTLSTransport {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	return s.transport
}

// Transceiver returns the owning transceiver; nil in legacy mode.
func (s *RTPSender) Transceiver() *RTPTransceiver {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	return s.transceiver
}

func (s *RTPSender) checkLocked(op string) error {
	if s.pc.native == nil {
		return errClosed(op)
	}
	if !s.pc.senders.Contains(s.id, s) {
		return invalidState(op, "the sender has been removed")
	}
	return nil
}

// ReplaceTrack swaps the outgoing track without renegotiation. A nil track
// stops sending. The new track is adopted before the swap; the old one is
// released once no sender of the connection uses it.
func (s *RTPSender) ReplaceTrack(track *MediaStreamTrack) error {
	pc := s.pc
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := s.checkLocked("replaceTrack"); err != nil {
		return err
	}
	if track != nil && track.Kind() != s.kind {
		return fmt.Errorf("%w: cannot replace a %s track with a %s track", ErrTypeMismatch, s.kind, track.Kind())
	}

	oldID := s.trackID()
	var (
		nt       NativeTrack
		acquired bool
	)
	if track != nil {
		nt = track.native
		acquired = pc.adoptLocked(track)
	}
	if err := s.native.ReplaceTrack(nt); err != nil {
		if acquired {
			pc.external.drop(track.ID())
		}
		return engineError("replaceTrack", err)
	}
	s.updateLocked()
	if track == nil || oldID != track.ID() {
		pc.releaseDetachedLocked(oldID)
	}
	return nil
}

// SetStreams associates the sender with the given streams.
func (s *RTPSender) SetStreams(streams ...*MediaStream) error {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	if err := s.checkLocked("setStreams"); err != nil {
		return err
	}
	if err := s.native.SetStreams(streamIDs(streams)); err != nil {
		return engineError("setStreams", err)
	}
	return nil
}

func (s *RTPSender) GetParameters() RTPSendParameters {
	return s.native.Parameters()
}

func (s *RTPSender) SetParameters(params RTPSendParameters) error {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	if err := s.checkLocked("setParameters"); err != nil {
		return err
	}
	if err := s.native.SetParameters(params); err != nil {
		return engineError("setParameters", err)
	}
	return nil
}

// GetStats is not implemented for senders; use PeerConnection.GetStats.
func (s *RTPSender) GetStats() (StatsReport, error) {
	return nil, fmt.Errorf("%w: sender stats", ErrNotImplemented)
}

func streamIDs(streams []*MediaStream) []string {
	ids := make([]string, 0, len(streams))
	for _, st := range streams {
		if st != nil {
			ids = append(ids, st.ID())
		}
	}
	return ids
}
