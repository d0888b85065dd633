package wrtc

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

// MediaSection is the bridge's view of one m= section.
type MediaSection struct {
	Mid       string
	Kind      RTPCodecType
	Direction TransceiverDirection
	StreamID  string
	TrackID   string
	Rejected  bool
}

// ParseSDP validates raw and lists its media sections. Malformed input
// yields an error wrapping ErrTypeMismatch.
func ParseSDP(raw string) ([]MediaSection, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty session description", ErrTypeMismatch)
	}
	var desc sdp.SessionDescription
	if err := desc.UnmarshalString(raw); err != nil {
		return nil, fmt.Errorf("%w: malformed session description: %v", ErrTypeMismatch, err)
	}

	sections := make([]MediaSection, 0, len(desc.MediaDescriptions))
	for _, md := range desc.MediaDescriptions {
		sec := MediaSection{
			Kind:      codecTypeFromMedia(md.MediaName.Media),
			Direction: TransceiverDirectionSendRecv,
			Rejected:  md.MediaName.Port.Value == 0,
		}
		if mid, ok := md.Attribute("mid"); ok {
			sec.Mid = mid
		}
		for _, attr := range md.Attributes {
			switch attr.Key {
			case "sendrecv", "sendonly", "recvonly", "inactive":
				sec.Direction, _ = ParseTransceiverDirection(attr.Key)
			case "msid":
				fields := strings.Fields(attr.Value)
				if len(fields) > 0 {
					sec.StreamID = fields[0]
				}
				if len(fields) > 1 {
					sec.TrackID = fields[1]
				}
			}
		}
		sections = append(sections, sec)
	}
	return sections, nil
}

func codecTypeFromMedia(media string) RTPCodecType {
	switch media {
	case "audio":
		return RTPCodecTypeAudio
	case "video":
		return RTPCodecTypeVideo
	default:
		return RTPCodecTypeUnknown
	}
}
