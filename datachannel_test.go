package wrtc_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/wrtc"
)

func TestDataChannelEcho(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	b := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	remote := make(chan *wrtc.DataChannel, 1)
	b.OnDataChannel(func(dc *wrtc.DataChannel) {
		dc.OnMessage(func(m wrtc.DataChannelMessage) {
			assert.NoError(t, dc.SendText("echo: "+string(m.Data)))
		})
		remote <- dc
	})

	dc, err := a.CreateDataChannel("chat", nil)
	require.NoError(t, err)
	assert.Equal(t, wrtc.DataChannelStateConnecting, dc.ReadyState())
	assert.ErrorIs(t, dc.SendText("too early"), wrtc.ErrInvalidState)

	opened := make(chan struct{}, 1)
	replies := make(chan wrtc.DataChannelMessage, 1)
	dc.OnOpen(func() { opened <- struct{}{} })
	dc.OnMessage(func(m wrtc.DataChannelMessage) { replies <- m })

	negotiate(t, a, b)
	recv(t, opened)
	rdc := recv(t, remote)
	assert.Equal(t, "chat", rdc.Label())
	assert.True(t, rdc.Ordered())

	require.NoError(t, dc.SendText("hello"))
	reply := recv(t, replies)
	assert.Equal(t, "echo: hello", string(reply.Data))
	assert.False(t, reply.Binary)

	id, ok := dc.ID()
	assert.True(t, ok)
	rid, _ := rdc.ID()
	assert.Equal(t, id, rid)

	sctp := a.SCTP()
	require.NotNil(t, sctp)
	assert.Equal(t, wrtc.SCTPTransportStateConnected, sctp.State())
	assert.Same(t, sctp, a.SCTP())
}

func TestDataChannelCloseReachesPeer(t *testing.T) {
	h := newHarness(t)
	a := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	b := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	remote := make(chan *wrtc.DataChannel, 1)
	b.OnDataChannel(func(dc *wrtc.DataChannel) { remote <- dc })
	dc, err := a.CreateDataChannel("chat", nil)
	require.NoError(t, err)
	negotiate(t, a, b)
	rdc := recv(t, remote)

	closed := make(chan struct{}, 1)
	rdc.OnClose(func() { closed <- struct{}{} })
	require.NoError(t, dc.Close())
	require.NoError(t, dc.Close())
	recv(t, closed)
	assert.Equal(t, wrtc.DataChannelStateClosed, rdc.ReadyState())
	assert.ErrorIs(t, rdc.SendText("gone"), wrtc.ErrInvalidState)
}

func TestDataChannelFromRemote(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	channels := make(chan *wrtc.DataChannel, 1)
	p.OnDataChannel(func(dc *wrtc.DataChannel) { channels <- dc })
	native := p.native.DeliverDataChannel("telemetry", wrtc.DataChannelInit{Protocol: "json"})
	dc := recv(t, channels)
	assert.Equal(t, "json", dc.Protocol())
	assert.Equal(t, wrtc.DataChannelStateOpen, dc.ReadyState())

	messages := make(chan wrtc.DataChannelMessage, 1)
	failures := make(chan error, 1)
	dc.OnMessage(func(m wrtc.DataChannelMessage) { messages <- m })
	dc.OnError(func(err error) { failures <- err })

	native.Receive([]byte{1, 2, 3}, true)
	m := recv(t, messages)
	assert.Equal(t, []byte{1, 2, 3}, m.Data)
	assert.True(t, m.Binary)

	native.Fail(errors.New("sctp abort"))
	assert.EqualError(t, recv(t, failures), "sctp abort")

	require.NoError(t, dc.Send([]byte("ack")))
	assert.Equal(t, []wrtc.DataChannelMessage{{Data: []byte("ack"), Binary: true}}, native.Sent())
}

func TestDataChannelAfterCloseIsClosed(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)

	delivered := make(chan *wrtc.DataChannel, 1)
	p.OnDataChannel(func(dc *wrtc.DataChannel) { delivered <- dc })
	require.NoError(t, p.Close())

	native := p.native.DeliverDataChannel("late", wrtc.DataChannelInit{})
	p.settle(t)
	p.native.Sync()

	assert.Equal(t, wrtc.DataChannelStateClosed, native.ReadyState())
	assert.Empty(t, delivered)
	h.requireBalanced()
}

func TestCreateDataChannelValidation(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer(wrtc.SDPSemanticsUnifiedPlan)
	three := uint16(3)

	tests := []struct {
		name  string
		label string
		init  *wrtc.DataChannelInit
	}{
		{"long-label", strings.Repeat("x", 65536), nil},
		{"exclusive-reliability", "chat", &wrtc.DataChannelInit{MaxRetransmits: &three, MaxPacketLifeTime: &three}},
		{"negotiated-without-id", "chat", &wrtc.DataChannelInit{Negotiated: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.CreateDataChannel(tt.label, tt.init)
			assert.ErrorIs(t, err, wrtc.ErrTypeMismatch)
		})
	}

	dc, err := p.CreateDataChannel("ctl", &wrtc.DataChannelInit{Negotiated: true, ID: &three, MaxRetransmits: &three})
	require.NoError(t, err)
	id, ok := dc.ID()
	assert.True(t, ok)
	assert.Equal(t, three, id)
	assert.True(t, dc.Negotiated())
	n, ok := dc.MaxRetransmits()
	assert.True(t, ok)
	assert.Equal(t, three, n)
}
