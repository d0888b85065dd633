package wrtc

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
)

// DefaultMTU bounds the RTP packets produced by WriteSample.
const DefaultMTU = 1200

// Sample is one encoded media frame.
type Sample struct {
	Data     []byte
	Duration time.Duration
}

func payloaderFor(mime string) (rtp.Payloader, bool) {
	switch strings.ToLower(mime) {
	case strings.ToLower(webrtc.MimeTypeOpus):
		return &codecs.OpusPayloader{}, true
	case strings.ToLower(webrtc.MimeTypeVP8):
		return &codecs.VP8Payloader{EnablePictureID: true}, true
	case strings.ToLower(webrtc.MimeTypeVP9):
		return &codecs.VP9Payloader{}, true
	case strings.ToLower(webrtc.MimeTypeH264):
		return &codecs.H264Payloader{}, true
	case strings.ToLower(webrtc.MimeTypeAV1):
		return &codecs.AV1Payloader{}, true
	case strings.ToLower(webrtc.MimeTypePCMU), strings.ToLower(webrtc.MimeTypePCMA):
		return &codecs.G711Payloader{}, true
	case strings.ToLower(webrtc.MimeTypeG722):
		return &codecs.G722Payloader{}, true
	}
	return nil, false
}

// WriteSample packetizes s for the track's codec and writes the packets to
// every bound sender. The RTP timestamp advances by s.Duration at the codec
// clock rate.
func (t *LocalTrack) WriteSample(s Sample) error {
	t.sampleMu.Lock()
	defer t.sampleMu.Unlock()
	if t.packetizer == nil {
		payloader, ok := payloaderFor(t.codec.MimeType)
		if !ok {
			return fmt.Errorf("%w: no packetizer for %s", ErrNotSupported, t.codec.MimeType)
		}
		// SSRC and payload type are rewritten per binding by WriteRTP.
		t.packetizer = rtp.NewPacketizer(DefaultMTU, 0, rand.Uint32(), payloader, rtp.NewRandomSequencer(), t.codec.ClockRate)
	}
	samples := uint32(s.Duration.Seconds() * float64(t.codec.ClockRate))
	for _, p := range t.packetizer.Packetize(s.Data, samples) {
		if err := t.WriteRTP(p); err != nil {
			return err
		}
	}
	return nil
}
