package wrtc

import "github.com/sirupsen/logrus"

// reconcileStrategy enumerates the engine's live entities for one
// negotiation mode and brings the registries in line with them. A
// connection picks its strategy once, at construction.
type reconcileStrategy interface {
	mode() SDPSemantics
	reconcileLocked(pc *PeerConnection) (updated, removed int)
}

func strategyFor(s SDPSemantics) reconcileStrategy {
	if s == SDPSemanticsPlanB {
		return legacyStrategy{}
	}
	return transceiverStrategy{}
}

// reconcileSet upserts every live entity, then removes the known ones the
// engine no longer reports. Updates always precede removals so an entity
// that is still live is never treated as stale.
func reconcileSet[K comparable, N any, V owned](
	reg *registry[K, V],
	live []N,
	identity func(N) K,
	upsert func(N),
	remove func(K) bool,
) (updated, removed int) {
	seen := make(map[K]struct{}, len(live))
	for _, n := range live {
		upsert(n)
		seen[identity(n)] = struct{}{}
		updated++
	}
	for _, k := range reg.Keys() {
		if _, ok := seen[k]; ok {
			continue
		}
		if remove(k) {
			removed++
		}
	}
	return updated, removed
}

type transceiverStrategy struct{}

func (transceiverStrategy) mode() SDPSemantics { return SDPSemanticsUnifiedPlan }

func (transceiverStrategy) reconcileLocked(pc *PeerConnection) (int, int) {
	return reconcileSet(pc.transceivers, pc.native.Transceivers(),
		NativeTransceiver.Handle,
		func(n NativeTransceiver) { pc.upsertTransceiverLocked(n) },
		pc.removeTransceiverLocked,
	)
}

type legacyStrategy struct{}

func (legacyStrategy) mode() SDPSemantics { return SDPSemanticsPlanB }

func (legacyStrategy) reconcileLocked(pc *PeerConnection) (int, int) {
	return reconcileSet(pc.receivers, pc.native.Receivers(),
		NativeReceiver.ID,
		func(n NativeReceiver) { pc.upsertReceiverLocked(n) },
		pc.removeReceiverLocked,
	)
}

// reconcileLocked runs one reconciliation pass if the engine handle is
// still present.
func (pc *PeerConnection) reconcileLocked(op string) {
	if pc.native == nil {
		return
	}
	updated, removed := pc.strategy.reconcileLocked(pc)
	kind := kindTransceiver
	if pc.strategy.mode() == SDPSemanticsPlanB {
		kind = kindReceiver
	}
	pc.metrics.reconciled(pc.strategy.mode())
	for i := 0; i < removed; i++ {
		pc.metrics.staleRemoved(kind)
	}
	pc.log.WithFields(logrus.Fields{
		"op":      op,
		"mode":    pc.strategy.mode(),
		"updated": updated,
		"removed": removed,
	}).Debug("reconciled")
}
