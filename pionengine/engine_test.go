package pionengine_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/wrtc"
	"github.com/thesyncim/wrtc/pionengine"
)

const timeout = 10 * time.Second

func newContext(t *testing.T) *wrtc.Context {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	engine := pionengine.New(pionengine.WithLoopback(), pionengine.WithLogger(log))
	ctx := wrtc.NewContext(engine, wrtc.WithLogger(log))
	t.Cleanup(func() { _ = ctx.Shutdown() })
	return ctx
}

func newPeer(t *testing.T, ctx *wrtc.Context) *wrtc.PeerConnection {
	t.Helper()
	pc, err := wrtc.NewPeerConnection(ctx, wrtc.Configuration{})
	require.NoError(t, err)
	return pc
}

func wait[T any](t *testing.T, p *wrtc.Pending[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	v, err := p.Wait(ctx)
	require.NoError(t, err)
	return v
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

// gathered applies desc locally and returns the description once every
// candidate is in it.
func gathered(t *testing.T, pc *wrtc.PeerConnection, desc wrtc.SessionDescription) wrtc.SessionDescription {
	t.Helper()
	done := make(chan struct{}, 1)
	pc.OnICECandidate(func(c *wrtc.ICECandidateInit) {
		if c == nil {
			done <- struct{}{}
		}
	})
	wait(t, pc.SetLocalDescription(desc))
	recv(t, done)
	local := pc.LocalDescription()
	require.NotNil(t, local)
	return *local
}

func negotiate(t *testing.T, a, b *wrtc.PeerConnection) {
	t.Helper()
	offer := gathered(t, a, wait(t, a.CreateOffer(nil)))
	wait(t, b.SetRemoteDescription(offer))
	answer := gathered(t, b, wait(t, b.CreateAnswer(nil)))
	wait(t, a.SetRemoteDescription(answer))
}

func TestRegistered(t *testing.T) {
	assert.True(t, wrtc.BackendPion.Available())
	engine, err := wrtc.OpenEngine(wrtc.Config{Engine: "pion"})
	require.NoError(t, err)
	assert.Equal(t, "pion", engine.Name())
	require.NoError(t, engine.Close())
}

func TestLegacySemanticsUnsupported(t *testing.T) {
	ctx := newContext(t)
	_, err := wrtc.NewPeerConnection(ctx, wrtc.Configuration{SDPSemantics: wrtc.SDPSemanticsPlanB})
	assert.ErrorIs(t, err, wrtc.ErrNotSupported)
}

func TestDataChannelLoopback(t *testing.T) {
	ctx := newContext(t)
	a, b := newPeer(t, ctx), newPeer(t, ctx)

	b.OnDataChannel(func(dc *wrtc.DataChannel) {
		dc.OnMessage(func(m wrtc.DataChannelMessage) {
			_ = dc.SendText("echo: " + string(m.Data))
		})
	})
	connected := make(chan struct{}, 1)
	a.OnConnectionStateChange(func(s wrtc.PeerConnectionState) {
		if s == wrtc.PeerConnectionStateConnected {
			connected <- struct{}{}
		}
	})

	dc, err := a.CreateDataChannel("chat", nil)
	require.NoError(t, err)
	opened := make(chan struct{}, 1)
	replies := make(chan wrtc.DataChannelMessage, 1)
	dc.OnOpen(func() { opened <- struct{}{} })
	dc.OnMessage(func(m wrtc.DataChannelMessage) { replies <- m })

	negotiate(t, a, b)
	recv(t, connected)
	recv(t, opened)

	require.NoError(t, dc.SendText("hello"))
	assert.Equal(t, "echo: hello", string(recv(t, replies).Data))

	sctp := a.SCTP()
	require.NotNil(t, sctp)
	assert.Equal(t, wrtc.SCTPTransportStateConnected, sctp.State())
	require.NotNil(t, sctp.Transport())
	assert.Equal(t, wrtc.DTLSTransportStateConnected, sctp.Transport().State())

	stats := wait(t, a.GetStats())
	assert.NotEmpty(t, stats)

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, ctx.Refs())
}

func TestTrackLoopback(t *testing.T) {
	ctx := newContext(t)
	a, b := newPeer(t, ctx), newPeer(t, ctx)

	tracks := make(chan wrtc.TrackEvent, 1)
	b.OnTrack(func(ev wrtc.TrackEvent) { tracks <- ev })

	local := wrtc.NewLocalTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "mic", "call")
	mic := wrtc.NewMediaStreamTrack(local)
	defer mic.Close()

	sender, err := a.AddTrack(mic)
	require.NoError(t, err)
	assert.Equal(t, 2, mic.Refs())
	negotiate(t, a, b)

	// Pion raises the remote track on the first packet.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				_ = local.WriteSample(wrtc.Sample{Data: []byte{0xf8, 0xff, 0xfe}, Duration: 20 * time.Millisecond})
			}
		}
	}()

	ev := recv(t, tracks)
	require.NotNil(t, ev.Transceiver)
	assert.Equal(t, wrtc.RTPCodecTypeAudio, ev.Track.Kind())
	assert.Equal(t, "mic", ev.Track.ID())
	assert.Equal(t, 1, local.Bound())

	require.NoError(t, a.RemoveTrack(sender))
	assert.Equal(t, 1, mic.Refs())

	require.NoError(t, b.Close())
	assert.Equal(t, wrtc.TrackStateEnded, ev.Track.ReadyState())
	require.NoError(t, a.Close())
}
