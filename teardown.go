package wrtc

import (
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Close tears the connection down. It is idempotent and never fails; engine
// errors met on the way are logged. Channel close callbacks fire on the
// Loop.
func (pc *PeerConnection) Close() error {
	pc.mu.Lock()
	fire := pc.closeLocked()
	pc.mu.Unlock()

	if len(fire) > 0 {
		pc.post("close", func() { run(fire) })
	}
	return nil
}

// closeLocked runs the teardown sequence once and returns the callbacks to
// fire. Nested or repeated calls return nil.
func (pc *PeerConnection) closeLocked() []func() {
	if pc.closing {
		return nil
	}
	pc.closing = true

	var (
		errs *multierror.Error
		fire []func()
	)
	unified := pc.strategy.mode() == SDPSemanticsUnifiedPlan

	if pc.native != nil {
		pc.config = pc.native.Configuration()
		if err := pc.native.Close(); err != nil {
			errs = multierror.Append(errs, engineError("close", err))
		}
	}

	if unified {
		for _, t := range pc.transceivers.Values() {
			t.onPeerConnectionClosedLocked()
		}
	}

	for _, dc := range pc.channels.Values() {
		if cb := dc.onPeerConnectionClosed(); cb != nil {
			fire = append(fire, cb)
		}
	}

	if err := pc.lease.release(); err != nil {
		errs = multierror.Append(errs, err)
	}
	pc.metrics.connectionClosed()

	released := logrus.Fields{}
	released["channels"] = pc.channels.Clear()
	released["tracks"] = pc.tracks.Clear()
	released["external"] = pc.external.releaseAll()
	released["transceivers"] = pc.transceivers.Clear()
	released["receivers"] = pc.receivers.Clear()
	released["senders"] = pc.senders.Clear()
	released["streams"] = pc.streams.Clear()
	released["transports"] = pc.transports.Clear() + pc.sctp.Clear()

	pc.native = nil
	pc.signaling.advance(SignalingStateClosed)
	pc.iceState = ICEConnectionStateClosed
	pc.connState = PeerConnectionStateClosed
	pc.gathering = ICEGatheringStateComplete

	log := pc.log.WithFields(released)
	if err := errs.ErrorOrNil(); err != nil {
		log.WithError(err).Warn("peer connection closed with errors")
	} else {
		log.Info("peer connection closed")
	}
	return fire
}
