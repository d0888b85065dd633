package wrtc

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
)

// signalingMachine mirrors the engine's signaling state. Engine reports
// drive it; event names are the destination states.
type signalingMachine struct {
	fsm *fsm.FSM
	log logrus.FieldLogger
}

func newSignalingMachine(log logrus.FieldLogger) *signalingMachine {
	var (
		newS         = SignalingStateNew.String()
		stable       = SignalingStateStable.String()
		localOffer   = SignalingStateHaveLocalOffer.String()
		remoteOffer  = SignalingStateHaveRemoteOffer.String()
		localPrAns   = SignalingStateHaveLocalPranswer.String()
		remotePrAns  = SignalingStateHaveRemotePranswer.String()
		closed       = SignalingStateClosed.String()
		everyOpenSrc = []string{newS, stable, localOffer, remoteOffer, localPrAns, remotePrAns}
	)
	m := &signalingMachine{log: log}
	m.fsm = fsm.NewFSM(
		newS,
		fsm.Events{
			{Name: stable, Src: everyOpenSrc, Dst: stable},
			{Name: localOffer, Src: []string{newS, stable, localOffer}, Dst: localOffer},
			{Name: remoteOffer, Src: []string{newS, stable, remoteOffer}, Dst: remoteOffer},
			{Name: localPrAns, Src: []string{remoteOffer, localPrAns}, Dst: localPrAns},
			{Name: remotePrAns, Src: []string{localOffer, remotePrAns}, Dst: remotePrAns},
			{Name: closed, Src: everyOpenSrc, Dst: closed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.WithFields(logrus.Fields{"from": e.Src, "to": e.Dst}).Debug("signaling state")
			},
		},
	)
	return m
}

func (m *signalingMachine) current() SignalingState {
	s, err := ParseSignalingState(m.fsm.Current())
	if err != nil {
		return SignalingStateClosed
	}
	return s
}

// advance moves to the state the engine reported and reports whether the
// state changed. Transitions the table does not allow are logged and
// applied anyway: the engine is authoritative. Nothing leaves closed.
func (m *signalingMachine) advance(to SignalingState) bool {
	from := m.current()
	if from == SignalingStateClosed || from == to {
		return false
	}
	err := m.fsm.Event(context.Background(), to.String())
	if err == nil {
		return true
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return false
	}
	m.log.WithFields(logrus.Fields{"from": from, "to": to}).WithError(err).Warn("unexpected signaling transition")
	m.fsm.SetState(to.String())
	return true
}
