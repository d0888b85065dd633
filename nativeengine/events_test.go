package nativeengine

import (
	"encoding/json"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/wrtc"
)

type recordingSink struct {
	kinds []int32
	data  [][]byte
}

func (s *recordingSink) engineEvent(kind int32, _ uint64, _ int32, data []byte) {
	s.kinds = append(s.kinds, kind)
	s.data = append(s.data, data)
}

func TestDispatchRoutesByUser(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	ua, ub := register(a), register(b)
	defer unregister(ub)

	payload := []byte("hello")
	eventCallbackHandler(ua, eventSignaling, 0, 1, uintptr(unsafe.Pointer(&payload[0])), int32(len(payload)))
	dispatch(ub, eventNegotiationNeeded, 0, 0, nil)

	assert.Equal(t, []int32{eventSignaling}, a.kinds)
	assert.Equal(t, []byte("hello"), a.data[0])
	payload[0] = 'j'
	assert.Equal(t, []byte("hello"), a.data[0], "payload is copied")
	assert.Equal(t, []int32{eventNegotiationNeeded}, b.kinds)

	unregister(ua)
	dispatch(ua, eventSignaling, 0, 1, nil)
	assert.Len(t, a.kinds, 1, "unregistered sinks receive nothing")
}

func TestGoString(t *testing.T) {
	s := append([]byte("v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\n"), 0)
	assert.Equal(t, string(s[:len(s)-1]), goString(uintptr(unsafe.Pointer(&s[0]))))
	assert.Empty(t, goString(0))
	assert.Nil(t, copyBytes(0, 4))
}

func TestConnectionEvent(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	candidate, err := json.Marshal(candidateJSON{Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx})
	require.NoError(t, err)

	tests := []struct {
		name  string
		kind  int32
		value int32
		data  []byte
		want  wrtc.EngineEvent
	}{
		{"signaling", eventSignaling, int32(wrtc.SignalingStateHaveLocalOffer), nil, wrtc.SignalingChange{State: wrtc.SignalingStateHaveLocalOffer}},
		{"ice", eventICEConnection, int32(wrtc.ICEConnectionStateChecking), nil, wrtc.ICEConnectionChange{State: wrtc.ICEConnectionStateChecking}},
		{"connection", eventConnection, int32(wrtc.PeerConnectionStateConnected), nil, wrtc.ConnectionChange{State: wrtc.PeerConnectionStateConnected}},
		{"gathering", eventGathering, int32(wrtc.ICEGatheringStateComplete), nil, wrtc.ICEGatheringChange{State: wrtc.ICEGatheringStateComplete}},
		{"negotiation", eventNegotiationNeeded, 0, nil, wrtc.NegotiationNeeded{}},
		{"end-of-candidates", eventCandidate, 0, nil, wrtc.ICECandidateFound{}},
		{"candidate", eventCandidate, 0, candidate, wrtc.ICECandidateFound{Candidate: &wrtc.ICECandidateInit{
			Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx,
		}}},
		{"candidate-error", eventCandidateError, 0, []byte(`{"url":"stun:example.org","errorCode":701,"errorText":"timeout"}`),
			wrtc.ICECandidateFailed{Error: wrtc.ICECandidateError{URL: "stun:example.org", ErrorCode: 701, ErrorText: "timeout"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok, err := connectionEvent(tt.kind, tt.value, tt.data)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tt.want, ev)
		})
	}

	_, ok, _ := connectionEvent(eventTrack, 0, nil)
	assert.False(t, ok, "object events are resolved by the connection")

	_, ok, err = connectionEvent(eventCandidate, 0, []byte("{"))
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestChannelEvent(t *testing.T) {
	ev, ok := channelEvent(eventChannelMessage, 1, []byte{1, 2})
	require.True(t, ok)
	assert.Equal(t, wrtc.DataChannelMessage{Data: []byte{1, 2}, Binary: true}, ev)

	ev, ok = channelEvent(eventChannelState, int32(wrtc.DataChannelStateClosing), nil)
	require.True(t, ok)
	assert.Equal(t, wrtc.DataChannelStateChange{State: wrtc.DataChannelStateClosing}, ev)

	ev, ok = channelEvent(eventChannelError, 0, []byte("sctp failure"))
	require.True(t, ok)
	assert.EqualError(t, ev.(wrtc.DataChannelError).Err, "sctp failure")

	_, ok = channelEvent(eventSignaling, 0, nil)
	assert.False(t, ok)
}

func TestRequests(t *testing.T) {
	var r requests
	type result struct {
		ok      bool
		payload string
	}
	var got []result
	record := func(ok bool, payload string) { got = append(got, result{ok, payload}) }

	first := r.add(record)
	second := r.add(record)
	assert.NotEqual(t, first, second)

	r.complete(second, 0, []byte("v=0"))
	r.complete(second, 0, []byte("again"))
	r.fail("closed")
	r.complete(first, 0, nil)

	assert.Equal(t, []result{{true, "v=0"}, {false, "closed"}}, got)
}

func TestEncodeConfig(t *testing.T) {
	cfg := wrtc.Configuration{
		ICEServers:         []wrtc.ICEServer{{URLs: []string{"turn:example.org"}, Username: "u", Credential: "p"}},
		ICETransportPolicy: wrtc.ICETransportPolicyRelay,
		BundlePolicy:       wrtc.BundlePolicyMaxBundle,
		SDPSemantics:       wrtc.SDPSemanticsPlanB,
		PortRange:          wrtc.PortRange{Min: 10000, Max: 10100},
	}
	got, ok := decode[configJSON](encodeConfig(cfg))
	require.True(t, ok)
	assert.Equal(t, configJSON{
		ICEServers:         []iceServerJSON{{URLs: []string{"turn:example.org"}, Username: "u", Credential: "p"}},
		ICETransportPolicy: int(wrtc.ICETransportPolicyRelay),
		BundlePolicy:       int(wrtc.BundlePolicyMaxBundle),
		SDPSemantics:       int(wrtc.SDPSemanticsPlanB),
		PortMin:            10000,
		PortMax:            10100,
	}, got)
}

func TestParameters(t *testing.T) {
	p := wrtc.RTPSendParameters{
		TransactionID: "t1",
		Encodings:     []wrtc.RTPEncodingParameters{{RID: "hi", Active: true, MaxBitrate: 1_500_000}},
		Codecs:        []wrtc.RTPCodecParameters{{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000}},
	}
	decoded, ok := decode[parametersJSON](encode(encodeParameters(p)))
	require.True(t, ok)
	assert.Equal(t, p, decoded.params())

	_, ok = decode[parametersJSON]("")
	assert.False(t, ok)
}

func TestTransceiverInfoOptionals(t *testing.T) {
	info, ok := decode[transceiverInfo](`{"kind":1,"mid":"0","hasMid":true,"direction":1,"currentDirection":4,"stopped":true}`)
	require.True(t, ok)
	d, known := optionalDirection(info.CurrentDirection)
	assert.True(t, known)
	assert.Equal(t, wrtc.TransceiverDirectionStopped, d)
	_, known = optionalDirection(info.FiredDirection)
	assert.False(t, known)
}
