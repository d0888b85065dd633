package wrtc_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/wrtc"
	"github.com/thesyncim/wrtc/internal/enginetest"
)

const timeout = 5 * time.Second

type harness struct {
	t       *testing.T
	engine  *enginetest.Engine
	ctx     *wrtc.Context
	metrics *wrtc.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &harness{
		t:       t,
		engine:  enginetest.New(),
		metrics: wrtc.NewMetrics(prometheus.NewRegistry()),
	}
	h.ctx = wrtc.NewContext(h.engine, wrtc.WithLogger(log), wrtc.WithMetrics(h.metrics))
	t.Cleanup(func() { _ = h.ctx.Shutdown() })
	return h
}

// peer pairs a bridged connection with the fake engine connection under it.
type peer struct {
	*wrtc.PeerConnection
	native *enginetest.PeerConnection
}

func (h *harness) newPeer(semantics wrtc.SDPSemantics) *peer {
	h.t.Helper()
	pc, err := wrtc.NewPeerConnection(h.ctx, wrtc.Configuration{SDPSemantics: semantics})
	require.NoError(h.t, err)
	return &peer{PeerConnection: pc, native: h.engine.Last()}
}

// settle waits until the engine has handed over every queued event and the
// bridge has processed them.
func (p *peer) settle(t *testing.T) {
	t.Helper()
	p.native.Sync()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	require.NoError(t, p.Queue().Flush(ctx))
}

func await[T any](t *testing.T, p *wrtc.Pending[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	v, err := p.Wait(ctx)
	require.NoError(t, err)
	return v
}

func awaitErr[T any](t *testing.T, p *wrtc.Pending[T]) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := p.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

// negotiate runs a full offer/answer exchange from a to b.
func negotiate(t *testing.T, a, b *peer) {
	t.Helper()
	offer := await(t, a.CreateOffer(nil))
	await(t, a.SetLocalDescription(offer))
	await(t, b.SetRemoteDescription(offer))
	answer := await(t, b.CreateAnswer(nil))
	await(t, b.SetLocalDescription(answer))
	await(t, a.SetRemoteDescription(answer))
	a.settle(t)
	b.settle(t)
}

// applyLocalOffer creates an offer and applies it locally, which runs one
// reconciliation pass.
func applyLocalOffer(t *testing.T, p *peer) wrtc.SessionDescription {
	t.Helper()
	offer := await(t, p.CreateOffer(nil))
	await(t, p.SetLocalDescription(offer))
	return offer
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatal("timed out waiting for callback")
		var zero T
		return zero
	}
}

func (h *harness) counter(vec *prometheus.CounterVec, label string) float64 {
	return testutil.ToFloat64(vec.WithLabelValues(label))
}

var proxyKinds = []string{
	"transceiver", "sender", "receiver", "track", "stream",
	"datachannel", "dtls-transport", "sctp-transport", "external-track",
}

// requireBalanced checks that every reference taken has been released.
func (h *harness) requireBalanced() {
	h.t.Helper()
	for _, kind := range proxyKinds {
		require.Equal(h.t, h.counter(h.metrics.Acquires, kind), h.counter(h.metrics.Releases, kind), "kind %s", kind)
	}
}

func audioTrack(id string) *wrtc.MediaStreamTrack {
	return wrtc.NewMediaStreamTrack(enginetest.NewTrack(id, wrtc.RTPCodecTypeAudio))
}

func videoTrack(id string) *wrtc.MediaStreamTrack {
	return wrtc.NewMediaStreamTrack(enginetest.NewTrack(id, wrtc.RTPCodecTypeVideo))
}

// recorder collects callback values delivered on the Loop.
type recorder[T any] struct {
	mu  sync.Mutex
	got []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, v)
}

func (r *recorder[T]) values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.got...)
}
