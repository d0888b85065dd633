package wrtc_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/wrtc"
	"github.com/thesyncim/wrtc/internal/enginetest"
)

func TestNegotiateTrack(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	b := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	tracks := make(chan wrtc.TrackEvent, 1)
	b.OnTrack(func(ev wrtc.TrackEvent) { tracks <- ev })

	sender, err := a.AddTrack(audioTrack("mic"), wrtc.NewMediaStream("call"))
	require.NoError(t, err)
	negotiate(t, a, b)

	ev := recv(t, tracks)
	require.NotNil(t, ev.Transceiver)
	assert.Same(t, ev.Receiver, ev.Transceiver.Receiver())
	assert.Equal(t, wrtc.RTPCodecTypeAudio, ev.Track.Kind())
	require.Len(t, ev.Streams, 1)
	assert.Equal(t, "call", ev.Streams[0].ID())
	assert.Same(t, ev.Track, ev.Streams[0].GetTrackByID(ev.Track.ID()))

	dir, ok := sender.Transceiver().CurrentDirection()
	require.True(t, ok)
	assert.Equal(t, wrtc.TransceiverDirectionSendOnly, dir)

	dir, ok = ev.Transceiver.CurrentDirection()
	require.True(t, ok)
	assert.Equal(t, wrtc.TransceiverDirectionRecvOnly, dir)

	mid, ok := ev.Transceiver.Mid()
	require.True(t, ok)
	aMid, _ := sender.Transceiver().Mid()
	assert.Equal(t, aMid, mid)

	assert.Equal(t, wrtc.SignalingStateStable, a.SignalingState())
	assert.Equal(t, wrtc.PeerConnectionStateConnected, a.ConnectionState())
	assert.NotNil(t, a.CurrentLocalDescription())
	assert.Nil(t, a.PendingLocalDescription())
	assert.NotNil(t, sender.Transport())
}

func TestStateCallbacks(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	b := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	var (
		signaling  recorder[wrtc.SignalingState]
		remote     recorder[wrtc.SignalingState]
		gathering  recorder[wrtc.ICEGatheringState]
		candidates recorder[*wrtc.ICECandidateInit]
		ice        recorder[wrtc.ICEConnectionState]
		conn       recorder[wrtc.PeerConnectionState]
	)
	a.OnSignalingStateChange(signaling.add)
	b.OnSignalingStateChange(remote.add)
	a.OnICEGatheringStateChange(gathering.add)
	a.OnICECandidate(candidates.add)
	a.OnICEConnectionStateChange(ice.add)
	a.OnConnectionStateChange(conn.add)

	_, err := a.AddTransceiver(wrtc.RTPCodecTypeVideo, nil)
	require.NoError(t, err)
	negotiate(t, a, b)

	assert.Equal(t, []wrtc.SignalingState{wrtc.SignalingStateHaveLocalOffer, wrtc.SignalingStateStable}, signaling.values())
	assert.Equal(t, []wrtc.SignalingState{wrtc.SignalingStateHaveRemoteOffer, wrtc.SignalingStateStable}, remote.values())
	assert.Equal(t, []wrtc.ICEGatheringState{wrtc.ICEGatheringStateGathering, wrtc.ICEGatheringStateComplete}, gathering.values())
	assert.Equal(t, []wrtc.ICEConnectionState{wrtc.ICEConnectionStateChecking, wrtc.ICEConnectionStateConnected}, ice.values())
	assert.Equal(t, []wrtc.PeerConnectionState{wrtc.PeerConnectionStateConnecting, wrtc.PeerConnectionStateConnected}, conn.values())

	got := candidates.values()
	require.Len(t, got, 2)
	require.NotNil(t, got[0])
	assert.Equal(t, enginetest.HostCandidate, got[0].Candidate)
	assert.Nil(t, got[1], "end of candidates")

	require.NoError(t, a.Close())
	a.settle(t)
	assert.Len(t, signaling.values(), 2, "close fires no state callbacks")
}

func TestNegotiationNeeded(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	needed := make(chan struct{}, 4)
	p.OnNegotiationNeeded(func() { needed <- struct{}{} })

	_, err := p.AddTransceiver(wrtc.RTPCodecTypeAudio, nil)
	require.NoError(t, err)
	recv(t, needed)

	_, err = p.CreateDataChannel("chat", nil)
	require.NoError(t, err)
	recv(t, needed)
}

func TestTransceiverStopFreezes(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	b := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	tr, err := a.AddTransceiver(wrtc.RTPCodecTypeAudio, nil)
	require.NoError(t, err)
	negotiate(t, a, b)

	require.NoError(t, tr.Stop())
	require.NoError(t, tr.Stop())
	assert.True(t, tr.Stopped())
	assert.ErrorIs(t, tr.SetDirection(wrtc.TransceiverDirectionRecvOnly), wrtc.ErrInvalidState)

	negotiate(t, a, b)
	dir, ok := tr.CurrentDirection()
	require.True(t, ok)
	assert.Equal(t, wrtc.TransceiverDirectionStopped, dir)
	assert.Equal(t, wrtc.TrackStateEnded, tr.Receiver().Track().ReadyState())

	remote := b.GetTransceivers()
	require.Len(t, remote, 1)
	dir, _ = remote[0].CurrentDirection()
	assert.Equal(t, wrtc.TransceiverDirectionStopped, dir)
}

func TestSetDirection(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	tr, err := p.AddTransceiver(wrtc.RTPCodecTypeVideo, &wrtc.TransceiverInit{Direction: wrtc.TransceiverDirectionSendOnly})
	require.NoError(t, err)
	assert.Equal(t, wrtc.TransceiverDirectionSendOnly, tr.Direction())

	require.NoError(t, tr.SetDirection(wrtc.TransceiverDirectionInactive))
	assert.Equal(t, wrtc.TransceiverDirectionInactive, tr.Direction())
	assert.ErrorIs(t, tr.SetDirection(wrtc.TransceiverDirectionStopped), wrtc.ErrTypeMismatch)

	_, err = p.AddTransceiver(wrtc.RTPCodecTypeAudio, &wrtc.TransceiverInit{Direction: wrtc.TransceiverDirectionStopped})
	assert.ErrorIs(t, err, wrtc.ErrTypeMismatch)
	_, err = p.AddTransceiver(wrtc.RTPCodecTypeUnknown, nil)
	assert.ErrorIs(t, err, wrtc.ErrTypeMismatch)
}

func TestSetLocalDescriptionReusesLastCreated(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	err := awaitErr(t, p.SetLocalDescription(wrtc.SessionDescription{Type: wrtc.SDPTypeOffer}))
	assert.ErrorIs(t, err, wrtc.ErrInvalidState)

	_, err = p.AddTransceiver(wrtc.RTPCodecTypeAudio, nil)
	require.NoError(t, err)
	offer := await(t, p.CreateOffer(nil))
	await(t, p.SetLocalDescription(wrtc.SessionDescription{Type: wrtc.SDPTypeOffer}))

	local := p.LocalDescription()
	require.NotNil(t, local)
	assert.Equal(t, offer.SDP, local.SDP)
	assert.Equal(t, wrtc.SignalingStateHaveLocalOffer, p.SignalingState())

	await(t, p.SetLocalDescription(wrtc.SessionDescription{Type: wrtc.SDPTypeRollback}))
	assert.Equal(t, wrtc.SignalingStateStable, p.SignalingState())
}

func TestSetRemoteDescriptionMalformed(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	for _, raw := range []string{"", "hello", "v=0\r\nm=audio\r\n"} {
		err := awaitErr(t, p.SetRemoteDescription(wrtc.SessionDescription{Type: wrtc.SDPTypeOffer, SDP: raw}))
		assert.ErrorIs(t, err, wrtc.ErrTypeMismatch, "%q", raw)
	}
	assert.Nil(t, p.RemoteDescription())
	assert.Equal(t, wrtc.SignalingStateNew, p.SignalingState())
}

func TestEngineFailureLeavesRegistries(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	b := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	_, err := a.AddTransceiver(wrtc.RTPCodecTypeAudio, nil)
	require.NoError(t, err)
	offer := await(t, a.CreateOffer(nil))

	b.native.Fail(enginetest.OpSetRemoteDescription, errors.New("bad fingerprint"))
	err = awaitErr(t, b.SetRemoteDescription(offer))
	var ee *wrtc.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "setRemoteDescription", ee.Op)
	assert.Equal(t, "OperationError", ee.Kind)
	assert.Empty(t, b.GetTransceivers())
	assert.Zero(t, h.counter(h.metrics.Reconciliations, "unified-plan"))

	await(t, b.SetRemoteDescription(offer))
	assert.Len(t, b.GetTransceivers(), 1)

	a.native.Fail(enginetest.OpCreateOffer, errors.New("no codecs"))
	err = awaitErr(t, a.CreateOffer(nil))
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "createOffer", ee.Op)
}

func TestAddICECandidate(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	b := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	mid := "0"
	c := wrtc.ICECandidateInit{Candidate: enginetest.HostCandidate, SDPMid: &mid}
	err := awaitErr(t, b.AddICECandidate(c))
	var ee *wrtc.EngineError
	assert.ErrorAs(t, err, &ee, "no remote description yet")

	_, err = a.AddTransceiver(wrtc.RTPCodecTypeAudio, nil)
	require.NoError(t, err)
	negotiate(t, a, b)

	await(t, b.AddICECandidate(c))
	assert.Equal(t, []wrtc.ICECandidateInit{c}, b.native.RemoteCandidates())
}

func TestGetStats(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	report := await(t, p.GetStats())
	require.Contains(t, report, "PC_"+p.native.ID())
	assert.Equal(t, "peer-connection", report["PC_"+p.native.ID()]["type"])
}

func TestSetConfiguration(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	cfg := p.GetConfiguration()
	cfg.ICEServers = []wrtc.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}}
	require.NoError(t, p.SetConfiguration(cfg))
	assert.Equal(t, cfg.ICEServers, p.GetConfiguration().ICEServers)

	cfg.SDPSemantics = wrtc.SDPSemanticsPlanB
	assert.ErrorIs(t, p.SetConfiguration(cfg), wrtc.ErrInvalidState)
	assert.Equal(t, wrtc.SDPSemanticsUnifiedPlan, p.Semantics())

	require.NoError(t, p.Close())
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, p.GetConfiguration().ICEServers[0].URLs, "snapshot kept after close")
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	b := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	mic := audioTrack("mic")
	_, err := a.AddTrack(mic)
	require.NoError(t, err)
	dc, err := a.CreateDataChannel("chat", nil)
	require.NoError(t, err)
	closed := make(chan struct{}, 2)
	dc.OnClose(func() { closed <- struct{}{} })
	negotiate(t, a, b)
	require.Equal(t, 3, h.ctx.Refs())

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	recv(t, closed)
	a.settle(t)
	assert.Len(t, closed, 0, "close callback fires once")

	assert.True(t, a.native.Closed())
	assert.Equal(t, wrtc.DataChannelStateClosed, dc.ReadyState())
	assert.Equal(t, 1, mic.Refs())
	assert.Equal(t, 2, h.ctx.Refs())

	require.NoError(t, b.Close())
	h.requireBalanced()
	assert.Equal(t, 1, h.ctx.Refs())
	assert.Zero(t, testutil.ToFloat64(h.metrics.ConnectionsOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ContextRefs))
}

func TestOperationsAfterClose(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	tr, err := p.AddTransceiver(wrtc.RTPCodecTypeAudio, nil)
	require.NoError(t, err)
	_, err = p.CreateDataChannel("chat", nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.AddTrack(audioTrack("mic"))
	assert.ErrorIs(t, err, wrtc.ErrInvalidState)
	_, err = p.AddTransceiver(wrtc.RTPCodecTypeVideo, nil)
	assert.ErrorIs(t, err, wrtc.ErrInvalidState)
	_, err = p.CreateDataChannel("late", nil)
	assert.ErrorIs(t, err, wrtc.ErrInvalidState)
	assert.ErrorIs(t, p.SetConfiguration(p.GetConfiguration()), wrtc.ErrInvalidState)
	assert.ErrorIs(t, tr.Stop(), wrtc.ErrInvalidState)
	assert.ErrorIs(t, tr.Sender().ReplaceTrack(nil), wrtc.ErrInvalidState)

	assert.ErrorIs(t, awaitErr(t, p.CreateOffer(nil)), wrtc.ErrInvalidState)
	assert.ErrorIs(t, awaitErr(t, p.CreateAnswer(nil)), wrtc.ErrInvalidState)
	assert.ErrorIs(t, awaitErr(t, p.SetLocalDescription(wrtc.SessionDescription{Type: wrtc.SDPTypeOffer})), wrtc.ErrInvalidState)
	assert.ErrorIs(t, awaitErr(t, p.AddICECandidate(wrtc.ICECandidateInit{})), wrtc.ErrInvalidState)
	assert.ErrorIs(t, awaitErr(t, p.GetStats()), wrtc.ErrInvalidState)

	assert.Empty(t, p.GetSenders())
	assert.Empty(t, p.GetReceivers())
	assert.Empty(t, p.GetTransceivers())
	assert.Nil(t, p.SCTP())
	assert.Nil(t, p.LocalDescription())
	assert.Equal(t, wrtc.SignalingStateClosed, p.SignalingState())
	assert.Equal(t, wrtc.ICEConnectionStateClosed, p.ICEConnectionState())
	assert.Equal(t, wrtc.PeerConnectionStateClosed, p.ConnectionState())
	assert.Equal(t, wrtc.ICEGatheringStateComplete, p.ICEGatheringState())

	dir, ok := tr.CurrentDirection()
	assert.True(t, ok)
	assert.Equal(t, wrtc.TransceiverDirectionStopped, dir)
	assert.True(t, tr.Stopped())
	p.RestartICE()
}

func TestContextShutdownClosesConnections(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	b := h.newPeer(wrtc.SDPSemanticsPlanB)
	mic := audioTrack("mic")
	_, err := b.AddTrack(mic)
	require.NoError(t, err)
	require.Equal(t, 3, h.ctx.Refs())

	require.NoError(t, h.ctx.Shutdown())
	for _, p := range []*peer{a, b} {
		assert.True(t, p.native.Closed())
		assert.Equal(t, wrtc.SignalingStateClosed, p.SignalingState())
	}
	assert.Equal(t, 1, mic.Refs())
	assert.Zero(t, h.ctx.Refs())
	assert.Equal(t, 1, h.engine.Closes())

	_, err = wrtc.NewPeerConnection(h.ctx, wrtc.Configuration{})
	assert.ErrorIs(t, err, wrtc.ErrInvalidState)

	require.NoError(t, a.Close())
	assert.Equal(t, 1, h.engine.Closes())
}

// Producers on different goroutines, ordered by a handoff, are observed in
// that order on the connection's queue.
func TestDispatchOrderAcrossProducers(t *testing.T) {
	events := []string{"E1", "E2", "E3"}

	handoff := func(produce func(e string)) {
		turns := make([]chan struct{}, len(events)+1)
		for i := range turns {
			turns[i] = make(chan struct{})
		}
		for i, e := range events {
			go func(i int, e string) {
				<-turns[i]
				produce(e)
				close(turns[i+1])
			}(i, e)
		}
		close(turns[0])
		recv(t, turns[len(events)])
	}

	t.Run("engine events", func(t *testing.T) {
		h := newHarness(t)
		p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
		var got recorder[string]
		p.OnICECandidate(func(c *wrtc.ICECandidateInit) { got.add(c.Candidate) })

		handoff(func(e string) {
			p.native.Emit(wrtc.ICECandidateFound{Candidate: &wrtc.ICECandidateInit{Candidate: e}})
		})
		p.settle(t)
		assert.Equal(t, events, got.values())
	})

	t.Run("queue posts", func(t *testing.T) {
		h := newHarness(t)
		p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
		var got recorder[string]

		handoff(func(e string) {
			assert.NoError(t, p.Queue().Post(func() { got.add(e) }))
		})
		p.settle(t)
		assert.Equal(t, events, got.values())
	})
}
