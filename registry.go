package wrtc

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// lifetime is the owning reference count embedded in every proxy.
// Releasing below zero is an ownership bug and panics.
type lifetime struct {
	refs   atomic.Int32
	onZero func()
}

func (l *lifetime) acquire() { l.refs.Add(1) }

func (l *lifetime) release() {
	n := l.refs.Add(-1)
	if n < 0 {
		panic("wrtc: release of an unreferenced object")
	}
	if n == 0 && l.onZero != nil {
		l.onZero()
	}
}

// Refs returns the number of outstanding owning references.
func (l *lifetime) Refs() int { return int(l.refs.Load()) }

type owned interface {
	acquire()
	release()
}

// registry maps native identities to proxies, one proxy per identity.
// Entries are acquired on insertion and released exactly once on removal.
// It is not safe for concurrent use; connections guard it with their mutex.
type registry[K comparable, V owned] struct {
	kind    string
	log     logrus.FieldLogger
	metrics *Metrics

	keys    []K
	entries map[K]V
}

func newRegistry[K comparable, V owned](kind string, log logrus.FieldLogger, m *Metrics) *registry[K, V] {
	return &registry[K, V]{
		kind:    kind,
		log:     log,
		metrics: m,
		entries: make(map[K]V),
	}
}

// GetOrCreate returns the proxy for key, applying update to an existing
// entry or inserting the result of create. created reports whether a new
// entry was inserted.
func (r *registry[K, V]) GetOrCreate(key K, create func() V, update func(V)) (v V, created bool) {
	if v, ok := r.entries[key]; ok {
		if update != nil {
			update(v)
		}
		return v, false
	}
	v = create()
	v.acquire()
	r.entries[key] = v
	r.keys = append(r.keys, key)
	r.metrics.acquired(r.kind)
	r.log.WithFields(logrus.Fields{"kind": r.kind, "id": key}).Debug("registry insert")
	return v, true
}

func (r *registry[K, V]) Get(key K) (V, bool) {
	v, ok := r.entries[key]
	return v, ok
}

// Contains reports whether key maps to exactly v.
func (r *registry[K, V]) Contains(key K, v V) bool {
	cur, ok := r.entries[key]
	return ok && any(cur) == any(v)
}

// Remove erases key and releases its proxy. It reports whether an entry
// was present.
func (r *registry[K, V]) Remove(key K) bool {
	v, ok := r.entries[key]
	if !ok {
		return false
	}
	delete(r.entries, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
	v.release()
	r.metrics.released(r.kind)
	r.log.WithFields(logrus.Fields{"kind": r.kind, "id": key}).Debug("registry remove")
	return true
}

// Keys returns the identities in insertion order.
func (r *registry[K, V]) Keys() []K {
	return append([]K(nil), r.keys...)
}

// Values returns the proxies in insertion order.
func (r *registry[K, V]) Values() []V {
	out := make([]V, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.entries[k])
	}
	return out
}

func (r *registry[K, V]) Len() int { return len(r.entries) }

// Clear releases every entry in insertion order and returns how many were
// released. Clearing an empty registry is a no-op.
func (r *registry[K, V]) Clear() int {
	n := 0
	for len(r.keys) > 0 {
		if r.Remove(r.keys[0]) {
			n++
		}
	}
	return n
}
