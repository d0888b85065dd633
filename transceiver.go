package wrtc

import "fmt"

const kindTransceiver = "transceiver"

// RTPTransceiver mirrors a native transceiver. It owns exactly one sender
// and one receiver; its back-reference to the connection is non-owning.
type RTPTransceiver struct {
	lifetime
	pc     *PeerConnection
	native NativeTransceiver

	// guarded by pc.mu
	sender           *RTPSender
	receiver         *RTPReceiver
	mid              string
	hasMid           bool
	direction        TransceiverDirection
	currentDirection TransceiverDirection
	hasCurrent       bool
	firedDirection   TransceiverDirection
	hasFired         bool
	stopped          bool
}

// frozen reports whether the transceiver has been stopped by negotiation;
// mirrored fields no longer change after that.
func (t *RTPTransceiver) frozen() bool {
	return t.hasCurrent && t.currentDirection == TransceiverDirectionStopped
}

func (t *RTPTransceiver) updateLocked() {
	if t.frozen() {
		return
	}
	n := t.native
	t.mid, t.hasMid = n.Mid()
	t.direction = n.Direction()
	t.currentDirection, t.hasCurrent = n.CurrentDirection()
	t.firedDirection, t.hasFired = n.FiredDirection()
	t.stopped = n.Stopped()
}

// onPeerConnectionClosedLocked freezes the transceiver and ends the track
// it receives.
func (t *RTPTransceiver) onPeerConnectionClosedLocked() {
	t.stopped = true
	t.currentDirection, t.hasCurrent = TransceiverDirectionStopped, true
	if t.receiver != nil && t.receiver.track != nil {
		t.receiver.track.end()
	}
}

// upsertTransceiverLocked is the registry entry point for transceivers. It
// also creates or updates the transceiver's sender and receiver.
func (pc *PeerConnection) upsertTransceiverLocked(n NativeTransceiver) *RTPTransceiver {
	t, _ := pc.transceivers.GetOrCreate(n.Handle(), func() *RTPTransceiver {
		return &RTPTransceiver{pc: pc, native: n}
	}, nil)
	if t.frozen() {
		return t
	}
	t.updateLocked()
	if ns := n.Sender(); ns != nil {
		t.sender = pc.upsertSenderLocked(ns, t)
	}
	if nr := n.Receiver(); nr != nil {
		t.receiver = pc.upsertReceiverLocked(nr)
	}
	return t
}

// removeTransceiverLocked drops a transceiver the engine no longer reports,
// together with its sender and receiver.
func (pc *PeerConnection) removeTransceiverLocked(h uintptr) bool {
	t, ok := pc.transceivers.Get(h)
	if !ok {
		return false
	}
	pc.transceivers.Remove(h)
	if s := t.sender; s != nil {
		trackID := s.trackID()
		pc.senders.Remove(s.id)
		pc.releaseDetachedLocked(trackID)
	}
	if r := t.receiver; r != nil {
		pc.removeReceiverLocked(r.id)
	}
	return true
}

func (t *RTPTransceiver) Kind() RTPCodecType { return t.native.Kind() }

// Mid returns the media id once negotiated.
func (t *RTPTransceiver) Mid() (string, bool) {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.mid, t.hasMid
}

func (t *RTPTransceiver) Direction() TransceiverDirection {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.direction
}

// CurrentDirection returns the last negotiated direction, if any.
func (t *RTPTransceiver) CurrentDirection() (TransceiverDirection, bool) {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.currentDirection, t.hasCurrent
}

// FiredDirection returns the direction last reported with a track event.
func (t *RTPTransceiver) FiredDirection() (TransceiverDirection, bool) {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.firedDirection, t.hasFired
}

func (t *RTPTransceiver) Stopped() bool {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.stopped
}

func (t *RTPTransceiver) Sender() *RTPSender {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.sender
}

func (t *RTPTransceiver) Receiver() *RTPReceiver {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.receiver
}

func (t *RTPTransceiver) checkLocked(op string) error {
	if t.pc.native == nil {
		return errClosed(op)
	}
	if t.stopped {
		return invalidState(op, "the transceiver is stopped")
	}
	return nil
}

// SetDirection changes the preferred direction.
func (t *RTPTransceiver) SetDirection(d TransceiverDirection) error {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	if err := t.checkLocked("setDirection"); err != nil {
		return err
	}
	if d == TransceiverDirectionStopped {
		return fmt.Errorf("%w: use Stop to stop a transceiver", ErrTypeMismatch)
	}
	if err := t.native.SetDirection(d); err != nil {
		return engineError("setDirection", err)
	}
	t.updateLocked()
	return nil
}

// Stop stops the transceiver irreversibly.
func (t *RTPTransceiver) Stop() error {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	if t.pc.native == nil {
		return errClosed("stop")
	}
	if t.stopped {
		return nil
	}
	if err := t.native.Stop(); err != nil {
		return engineError("stop", err)
	}
	t.updateLocked()
	t.stopped = true
	return nil
}

// SetCodecPreferences orders the codecs offered for this transceiver.
func (t *RTPTransceiver) SetCodecPreferences(codecs []RTPCodecParameters) error {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	if err := t.checkLocked("setCodecPreferences"); err != nil {
		return err
	}
	if err := t.native.SetCodecPreferences(codecs); err != nil {
		return engineError("setCodecPreferences", err)
	}
	return nil
}
