package wrtc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip[T enum](t *testing.T, count T, parse func(string) (T, error)) {
	t.Helper()
	seen := make(map[string]bool)
	for v := T(0); v < count; v++ {
		s := v.String()
		require.NotEqual(t, "unknown", s, "value %d has no name", int(v))
		require.False(t, seen[s], "duplicate name %q", s)
		seen[s] = true

		got, err := parse(s)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	assert.Equal(t, "unknown", count.String())

	_, err := parse("bogus")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T)
	}{
		{"signaling", func(t *testing.T) { roundTrip(t, signalingStateCount, ParseSignalingState) }},
		{"ice-connection", func(t *testing.T) { roundTrip(t, iceConnectionStateCount, ParseICEConnectionState) }},
		{"connection", func(t *testing.T) { roundTrip(t, peerConnectionStateCount, ParsePeerConnectionState) }},
		{"ice-gathering", func(t *testing.T) { roundTrip(t, iceGatheringStateCount, ParseICEGatheringState) }},
		{"sdp-type", func(t *testing.T) { roundTrip(t, sdpTypeCount, ParseSDPType) }},
		{"direction", func(t *testing.T) { roundTrip(t, transceiverDirectionCount, ParseTransceiverDirection) }},
		{"data-channel", func(t *testing.T) { roundTrip(t, dataChannelStateCount, ParseDataChannelState) }},
		{"dtls", func(t *testing.T) { roundTrip(t, dtlsTransportStateCount, ParseDTLSTransportState) }},
		{"sctp", func(t *testing.T) { roundTrip(t, sctpTransportStateCount, ParseSCTPTransportState) }},
		{"semantics", func(t *testing.T) { roundTrip(t, sdpSemanticsCount, ParseSDPSemantics) }},
		{"ice-policy", func(t *testing.T) { roundTrip(t, iceTransportPolicyCount, ParseICETransportPolicy) }},
		{"bundle", func(t *testing.T) { roundTrip(t, bundlePolicyCount, ParseBundlePolicy) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.run)
	}
}

func TestWireNames(t *testing.T) {
	tests := []struct {
		value fmt.Stringer
		want  string
	}{
		{SignalingStateHaveLocalPranswer, "have-local-pranswer"},
		{ICEConnectionStateCompleted, "completed"},
		{SDPTypePranswer, "pranswer"},
		{TransceiverDirectionRecvOnly, "recvonly"},
		{TransceiverDirectionStopped, "stopped"},
		{SDPSemanticsPlanB, "plan-b"},
		{BundlePolicyMaxCompat, "max-compat"},
		{RTCPMuxPolicyNegotiate, "negotiate"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.value.String())
	}
}

func TestEngineErrorMapping(t *testing.T) {
	passthrough := invalidState("op", "closed")
	assert.Same(t, passthrough, engineError("x", passthrough))
	assert.Nil(t, engineError("x", nil))

	var ee *EngineError
	require.ErrorAs(t, engineError("setRemoteDescription", fmt.Errorf("bad sdp")), &ee)
	assert.Equal(t, "setRemoteDescription", ee.Op)
	assert.Equal(t, "OperationError", ee.Kind)
	assert.Equal(t, "wrtc: setRemoteDescription: OperationError: bad sdp", ee.Error())

	require.ErrorAs(t, engineError("addTrack", &EngineError{Kind: "InvalidModificationError", Message: "dup"}), &ee)
	assert.Equal(t, "addTrack", ee.Op)
	assert.Equal(t, "InvalidModificationError", ee.Kind)
}
