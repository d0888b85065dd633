package wrtc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/wrtc"
)

func TestReconcileRemovesStaleTransceivers(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	var created []*wrtc.RTPTransceiver
	for i := 0; i < 3; i++ {
		tr, err := p.AddTransceiver(wrtc.RTPCodecTypeAudio, nil)
		require.NoError(t, err)
		created = append(created, tr)
	}
	applyLocalOffer(t, p)
	a, b, c := created[0], created[1], created[2]
	require.Equal(t, created, p.GetTransceivers())
	for _, tr := range created {
		_, ok := tr.Mid()
		assert.True(t, ok, "mid assigned by the offer")
	}

	bSender, bReceiver := b.Sender(), b.Receiver()
	bTrack := bReceiver.Track()
	require.NotNil(t, bTrack)
	native := p.native.FakeTransceivers()
	require.Len(t, native, 3)
	p.native.RemoveTransceiver(native[1])
	applyLocalOffer(t, p)

	got := p.GetTransceivers()
	require.Len(t, got, 2)
	assert.Same(t, a, got[0], "live proxies keep their identity")
	assert.Same(t, c, got[1])
	assert.Zero(t, b.Refs())
	assert.Zero(t, bSender.Refs())
	assert.Zero(t, bReceiver.Refs())
	assert.Zero(t, bTrack.Refs())
	assert.Equal(t, wrtc.TrackStateEnded, bTrack.ReadyState())

	assert.NotContains(t, p.GetSenders(), bSender)
	assert.NotContains(t, p.GetReceivers(), bReceiver)
	assert.Len(t, p.GetSenders(), 2)

	assert.Equal(t, 1.0, h.counter(h.metrics.StaleRemoved, "transceiver"))
	assert.Equal(t, 1.0, h.counter(h.metrics.Releases, "transceiver"))
	assert.Equal(t, 1.0, h.counter(h.metrics.Releases, "sender"))
	assert.Equal(t, 1.0, h.counter(h.metrics.Releases, "receiver"))
	assert.Equal(t, 1.0, h.counter(h.metrics.Releases, "track"))
	assert.Equal(t, 2.0, h.counter(h.metrics.Reconciliations, "unified-plan"))

	// A pass with nothing stale changes nothing.
	applyLocalOffer(t, p)
	assert.Equal(t, 1.0, h.counter(h.metrics.StaleRemoved, "transceiver"))
	assert.Equal(t, got, p.GetTransceivers())
}

func TestReconcileReleasesTrackOfRemovedTransceiver(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	mic := audioTrack("mic")

	_, err := p.AddTransceiverFromTrack(mic, nil)
	require.NoError(t, err)
	applyLocalOffer(t, p)
	require.Equal(t, 2, mic.Refs())

	p.native.RemoveTransceiver(p.native.FakeTransceivers()[0])
	applyLocalOffer(t, p)
	assert.Empty(t, p.GetTransceivers())
	assert.Equal(t, 1, mic.Refs())
}

func TestRemovedTransceiverEndsRemoteTrack(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	b := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	tracks := make(chan wrtc.TrackEvent, 1)
	b.OnTrack(func(ev wrtc.TrackEvent) { tracks <- ev })

	_, err := a.AddTrack(audioTrack("mic"), wrtc.NewMediaStream("call"))
	require.NoError(t, err)
	negotiate(t, a, b)
	ev := recv(t, tracks)
	require.Len(t, ev.Streams, 1)
	stream := ev.Streams[0]
	require.Same(t, ev.Track, stream.GetTrackByID(ev.Track.ID()))

	b.native.RemoveTransceiver(b.native.FakeTransceivers()[0])
	applyLocalOffer(t, b)

	assert.Empty(t, b.GetTransceivers())
	assert.Empty(t, b.GetReceivers())
	assert.Zero(t, ev.Receiver.Refs())
	assert.Zero(t, ev.Track.Refs())
	assert.Equal(t, wrtc.TrackStateEnded, ev.Track.ReadyState())
	assert.Nil(t, stream.GetTrackByID(ev.Track.ID()))
	assert.False(t, stream.Active())
}

func TestLegacyReceiverGoesStale(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsPlanB)
	b := h.newPeer(wrtc.SDPSemanticsPlanB)

	tracks := make(chan wrtc.TrackEvent, 1)
	b.OnTrack(func(ev wrtc.TrackEvent) { tracks <- ev })

	sender, err := a.AddTrack(audioTrack("mic"), wrtc.NewMediaStream("call"))
	require.NoError(t, err)
	assert.Nil(t, sender.Transceiver())
	assert.Empty(t, a.GetTransceivers())

	negotiate(t, a, b)
	ev := recv(t, tracks)
	assert.Nil(t, ev.Transceiver)
	assert.Equal(t, "mic", ev.Track.ID())
	require.Len(t, ev.Streams, 1)
	assert.Equal(t, "call", ev.Streams[0].ID())
	assert.Equal(t, []*wrtc.RTPReceiver{ev.Receiver}, b.GetReceivers())

	_, err = b.AddTransceiver(wrtc.RTPCodecTypeAudio, nil)
	assert.ErrorIs(t, err, wrtc.ErrInvalidState)

	require.NoError(t, a.RemoveTrack(sender))
	assert.Empty(t, a.GetSenders(), "legacy removal erases the sender")
	negotiate(t, a, b)

	assert.Empty(t, b.GetReceivers())
	assert.Zero(t, ev.Receiver.Refs())
	assert.Equal(t, wrtc.TrackStateEnded, ev.Track.ReadyState())
	assert.Equal(t, 1.0, h.counter(h.metrics.StaleRemoved, "receiver"))
	assert.Positive(t, h.counter(h.metrics.Reconciliations, "plan-b"))
}

func TestLegacyTrackReturnsWithNewIdentity(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsPlanB)
	b := h.newPeer(wrtc.SDPSemanticsPlanB)

	tracks := make(chan wrtc.TrackEvent, 1)
	b.OnTrack(func(ev wrtc.TrackEvent) { tracks <- ev })

	sender, err := a.AddTrack(audioTrack("mic"), wrtc.NewMediaStream("call"))
	require.NoError(t, err)
	negotiate(t, a, b)
	first := recv(t, tracks)

	require.NoError(t, a.RemoveTrack(sender))
	negotiate(t, a, b)
	require.Equal(t, wrtc.TrackStateEnded, first.Track.ReadyState())
	assert.Zero(t, first.Track.Refs())

	_, err = a.AddTrack(audioTrack("mic"), wrtc.NewMediaStream("call"))
	require.NoError(t, err)
	negotiate(t, a, b)
	second := recv(t, tracks)

	assert.Equal(t, "mic", second.Track.ID())
	assert.NotSame(t, first.Receiver, second.Receiver)
	assert.NotSame(t, first.Track, second.Track, "a removed track is never handed out again")
	assert.Equal(t, wrtc.TrackStateLive, second.Track.ReadyState())
	assert.Equal(t, 1, second.Track.Refs())
	require.Len(t, second.Streams, 1)
	assert.Same(t, second.Track, second.Streams[0].GetTrackByID("mic"))
	assert.Equal(t, 2.0, h.counter(h.metrics.Acquires, "track"))
	assert.Equal(t, 1.0, h.counter(h.metrics.Releases, "track"))
}
