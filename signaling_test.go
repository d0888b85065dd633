package wrtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalingMachine(t *testing.T) {
	m := newSignalingMachine(quietLogger())
	assert.Equal(t, SignalingStateNew, m.current())

	steps := []struct {
		to      SignalingState
		changed bool
	}{
		{SignalingStateHaveLocalOffer, true},
		{SignalingStateHaveLocalOffer, false},
		{SignalingStateHaveRemotePranswer, true},
		{SignalingStateStable, true},
		{SignalingStateHaveRemoteOffer, true},
		{SignalingStateStable, true},
		{SignalingStateClosed, true},
		{SignalingStateStable, false},
	}
	for i, s := range steps {
		require.Equal(t, s.changed, m.advance(s.to), "step %d: %s", i, s.to)
	}
	assert.Equal(t, SignalingStateClosed, m.current())
}

func TestSignalingMachineFollowsEngine(t *testing.T) {
	m := newSignalingMachine(quietLogger())
	require.True(t, m.advance(SignalingStateStable))

	// Not in the table, but the engine is authoritative.
	assert.True(t, m.advance(SignalingStateHaveLocalPranswer))
	assert.Equal(t, SignalingStateHaveLocalPranswer, m.current())
}

func TestParseSDP(t *testing.T) {
	const offer = "v=0\r\n" +
		"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:0\r\n" +
		"a=sendonly\r\n" +
		"a=msid:stream-a track-a\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n" +
		"m=video 0 UDP/TLS/RTP/SAVPF 96\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:1\r\n" +
		"a=inactive\r\n" +
		"a=rtpmap:96 VP8/90000\r\n" +
		"m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:2\r\n"

	sections, err := ParseSDP(offer)
	require.NoError(t, err)
	require.Len(t, sections, 3)

	assert.Equal(t, MediaSection{
		Mid:       "0",
		Kind:      RTPCodecTypeAudio,
		Direction: TransceiverDirectionSendOnly,
		StreamID:  "stream-a",
		TrackID:   "track-a",
	}, sections[0])
	assert.True(t, sections[1].Rejected)
	assert.Equal(t, TransceiverDirectionInactive, sections[1].Direction)
	assert.Equal(t, RTPCodecTypeUnknown, sections[2].Kind)
	assert.Equal(t, "2", sections[2].Mid)
}

func TestParseSDPMalformed(t *testing.T) {
	for _, raw := range []string{"", "hello", "v=0\r\nm=audio\r\n"} {
		_, err := ParseSDP(raw)
		assert.ErrorIs(t, err, ErrTypeMismatch, "%q", raw)
	}
}
