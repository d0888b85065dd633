package wrtc

import "github.com/sirupsen/logrus"

const kindExternalTrack = "external-track"

// externalTracks holds the references a connection takes on tracks it does
// not own: tracks from a standalone source or from another connection. One
// reference is taken per track no matter how many senders use it.
type externalTracks struct {
	log     logrus.FieldLogger
	metrics *Metrics

	ids    []string
	tracks map[string]*MediaStreamTrack
}

func newExternalTracks(log logrus.FieldLogger, m *Metrics) *externalTracks {
	return &externalTracks{log: log, metrics: m, tracks: make(map[string]*MediaStreamTrack)}
}

// adopt references t unless it is already referenced. It reports whether a
// reference was taken.
func (e *externalTracks) adopt(t *MediaStreamTrack) bool {
	if _, ok := e.tracks[t.ID()]; ok {
		return false
	}
	t.acquire()
	e.tracks[t.ID()] = t
	e.ids = append(e.ids, t.ID())
	e.metrics.acquired(kindExternalTrack)
	e.log.WithFields(logrus.Fields{"kind": kindExternalTrack, "id": t.ID()}).Debug("track adopted")
	return true
}

func (e *externalTracks) has(id string) bool {
	_, ok := e.tracks[id]
	return ok
}

func (e *externalTracks) get(id string) (*MediaStreamTrack, bool) {
	t, ok := e.tracks[id]
	return t, ok
}

// drop releases the reference on id exactly once.
func (e *externalTracks) drop(id string) bool {
	t, ok := e.tracks[id]
	if !ok {
		return false
	}
	delete(e.tracks, id)
	for i, cur := range e.ids {
		if cur == id {
			e.ids = append(e.ids[:i], e.ids[i+1:]...)
			break
		}
	}
	t.release()
	e.metrics.released(kindExternalTrack)
	e.log.WithFields(logrus.Fields{"kind": kindExternalTrack, "id": id}).Debug("track released")
	return true
}

func (e *externalTracks) len() int { return len(e.tracks) }

// releaseAll drops every reference and empties the set.
func (e *externalTracks) releaseAll() int {
	n := 0
	for len(e.ids) > 0 {
		if e.drop(e.ids[0]) {
			n++
		}
	}
	return n
}

// adoptLocked takes a reference on t unless this connection owns it or
// already references it.
func (pc *PeerConnection) adoptLocked(t *MediaStreamTrack) bool {
	if pc.tracks.Contains(t.ID(), t) {
		return false
	}
	return pc.external.adopt(t)
}

// releaseDetachedLocked drops the external reference on id once no sender
// of this connection carries the track anymore.
func (pc *PeerConnection) releaseDetachedLocked(id string) {
	if id == "" || !pc.external.has(id) {
		return
	}
	for _, s := range pc.senders.Values() {
		if s.track != nil && s.track.ID() == id {
			return
		}
	}
	pc.external.drop(id)
}
