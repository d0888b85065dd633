package enginetest

import (
	"fmt"

	"github.com/pion/sdp/v3"

	"github.com/thesyncim/wrtc"
)

// attrPeer carries the engine-side connection id so two fake connections
// can find each other.
const attrPeer = "x-enginetest-peer"

const midData = "data"

// buildSDPLocked renders the connection's media as an offer or an answer to
// the pending remote offer.
func (pc *PeerConnection) buildSDPLocked(answer bool) (string, error) {
	desc, err := sdp.NewJSEPSessionDescription(false)
	if err != nil {
		return "", err
	}
	desc.WithValueAttribute(attrPeer, pc.id)
	if pc.restart {
		desc.WithValueAttribute("x-ice-restart", "1")
	}

	if pc.legacy {
		for _, s := range pc.senders {
			if s.track == nil {
				continue
			}
			md := mediaSection(s.kind, s.id, wrtc.TransceiverDirectionSendOnly)
			md.WithValueAttribute("msid", msid(s.streams, s.track))
			desc.WithMedia(md)
		}
	} else {
		for _, t := range pc.transceivers {
			if !t.hasMid {
				continue
			}
			dir := t.direction
			if answer {
				dir = answerDirection(t.direction, t.remoteDirection)
			}
			md := mediaSection(t.kind, t.mid, dir)
			if t.stopped {
				md.MediaName.Port = sdp.RangedPort{Value: 0}
			}
			if t.sender.track != nil && sends(dir) {
				md.WithValueAttribute("msid", msid(t.sender.streams, t.sender.track))
			}
			desc.WithMedia(md)
		}
	}

	if len(pc.channels) > 0 {
		md := sdp.NewJSEPMediaDescription("application", nil).WithValueAttribute("mid", midData)
		md.MediaName.Protos = []string{"UDP", "DTLS", "SCTP"}
		md.MediaName.Formats = []string{"webrtc-datachannel"}
		md.WithValueAttribute("sctp-port", "5000")
		desc.WithMedia(md)
	}

	raw, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("enginetest: marshal description: %w", err)
	}
	return string(raw), nil
}

func mediaSection(kind wrtc.RTPCodecType, mid string, dir wrtc.TransceiverDirection) *sdp.MediaDescription {
	md := sdp.NewJSEPMediaDescription(kind.String(), nil)
	switch kind {
	case wrtc.RTPCodecTypeAudio:
		md.WithCodec(111, "opus", 48000, 2, "minptime=10;useinbandfec=1")
	default:
		md.WithCodec(96, "VP8", 90000, 0, "")
	}
	if dir == wrtc.TransceiverDirectionStopped {
		dir = wrtc.TransceiverDirectionInactive
	}
	return md.WithValueAttribute("mid", mid).WithPropertyAttribute(dir.String())
}

func msid(streams []string, track wrtc.NativeTrack) string {
	stream := "-"
	if len(streams) > 0 {
		stream = streams[0]
	}
	return stream + " " + track.ID()
}

type remoteDescription struct {
	peerID   string
	sections []wrtc.MediaSection
}

func parseRemote(raw string) (remoteDescription, error) {
	sections, err := wrtc.ParseSDP(raw)
	if err != nil {
		return remoteDescription{}, err
	}
	var desc sdp.SessionDescription
	if err := desc.UnmarshalString(raw); err != nil {
		return remoteDescription{}, err
	}
	peerID, _ := desc.Attribute(attrPeer)
	return remoteDescription{peerID: peerID, sections: sections}, nil
}
