package wrtc

import "sync/atomic"

const (
	kindDTLS = "dtls-transport"
	kindSCTP = "sctp-transport"
)

// DTLSTransport mirrors a native DTLS transport. Its lifetime is tied to
// the connection; after close it reports closed.
type DTLSTransport struct {
	lifetime
	native   NativeDTLSTransport
	detached atomic.Bool
}

func newDTLSTransport(n NativeDTLSTransport) *DTLSTransport {
	t := &DTLSTransport{native: n}
	t.onZero = func() { t.detached.Store(true) }
	return t
}

func (t *DTLSTransport) State() DTLSTransportState {
	if t.detached.Load() {
		return DTLSTransportStateClosed
	}
	return t.native.State()
}

func (pc *PeerConnection) upsertDTLSLocked(n NativeDTLSTransport) *DTLSTransport {
	if n == nil {
		return nil
	}
	t, _ := pc.transports.GetOrCreate(n.Handle(), func() *DTLSTransport {
		return newDTLSTransport(n)
	}, nil)
	return t
}

// SCTPTransport mirrors the connection's SCTP association.
type SCTPTransport struct {
	lifetime
	native    NativeSCTPTransport
	transport *DTLSTransport
	detached  atomic.Bool
}

func (t *SCTPTransport) State() SCTPTransportState {
	if t.detached.Load() {
		return SCTPTransportStateClosed
	}
	return t.native.State()
}

// Transport returns the DTLS transport carrying the association.
func (t *SCTPTransport) Transport() *DTLSTransport { return t.transport }

func (t *SCTPTransport) MaxChannels() (uint16, bool) {
	return t.native.MaxChannels()
}

func (pc *PeerConnection) upsertSCTPLocked(n NativeSCTPTransport) *SCTPTransport {
	if n == nil {
		return nil
	}
	t, _ := pc.sctp.GetOrCreate(n.Handle(), func() *SCTPTransport {
		t := &SCTPTransport{native: n, transport: pc.upsertDTLSLocked(n.Transport())}
		t.onZero = func() { t.detached.Store(true) }
		return t
	}, nil)
	return t
}
