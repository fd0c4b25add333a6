package whep

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dkeye/whep-player/internal/core"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// StereoParams is appended to the Opus fmtp line when stereo is requested.
const StereoParams = "stereo=1;sprop-stereo=1;maxaveragebitrate=510000;cbr=1"

// Only Opus advertised as opus/48000/2 is recognised; any other codec or
// clock rate leaves the offer untouched.
var opusRtpmap = regexp.MustCompile(`(?m)^a=rtpmap:(\d+) opus/48000/2`)

// EnableStereo rewrites the format parameters of the Opus payload type in
// offer to request stereo at the maximum bitrate. Offers without Opus, or
// without an fmtp line for it, or already carrying stereo=1, are returned
// unchanged.
func EnableStereo(offer string) string {
	m := opusRtpmap.FindStringSubmatch(offer)
	if m == nil {
		return offer
	}
	fmtp := regexp.MustCompile(`(?m)^a=fmtp:` + m[1] + ` ([^\r\n]*)`)
	loc := fmtp.FindStringSubmatchIndex(offer)
	if loc == nil {
		return offer
	}
	params := offer[loc[2]:loc[3]]
	if hasParam(params, "stereo=1") {
		return offer
	}
	line := "a=fmtp:" + m[1] + " "
	if params == "" {
		line += StereoParams
	} else {
		line += params + ";" + StereoParams
	}
	return offer[:loc[0]] + line + offer[loc[1]:]
}

// hasParam reports whether the ;-separated fmtp params contain want as a
// whole entry.
func hasParam(params, want string) bool {
	for _, p := range strings.Split(params, ";") {
		if strings.EqualFold(strings.TrimSpace(p), want) {
			return true
		}
	}
	return false
}

// BuildOffer declares one receive-only video and one receive-only audio
// line on conn, creates an offer, applies it as the local description and
// returns the complete local offer, rewritten for stereo when wantStereo
// is set.
//
// The rewrite is applied to the text sent to the endpoint, not to the
// description applied locally, because the media stack rejects a local
// description that differs from the offer it generated.
func BuildOffer(ctx context.Context, conn core.MediaConnection, wantStereo bool) (webrtc.SessionDescription, error) {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if err := conn.AddRecvOnly(kind); err != nil {
			return webrtc.SessionDescription{}, &core.NegotiationError{Err: fmt.Errorf("adding %s transceiver: %w", kind, err)}
		}
	}

	offer, err := conn.CreateOffer()
	if err != nil {
		return webrtc.SessionDescription{}, &core.NegotiationError{Err: fmt.Errorf("creating offer: %w", err)}
	}

	local, err := conn.SetLocalDescription(ctx, offer)
	if err != nil {
		return webrtc.SessionDescription{}, &core.NegotiationError{Err: fmt.Errorf("setting local description: %w", err)}
	}

	out := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: local.SDP}
	if wantStereo {
		out.SDP = EnableStereo(out.SDP)
	}
	return out, nil
}

// mediaLine summarises one m= section of a session description.
type mediaLine struct {
	Kind      string
	Direction string
}

var directions = []string{"sendrecv", "sendonly", "recvonly", "inactive"}

// describeMedia lists the media sections of raw. It is used for
// diagnostics only.
func describeMedia(raw string) ([]mediaLine, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, err
	}
	out := make([]mediaLine, 0, len(desc.MediaDescriptions))
	for _, md := range desc.MediaDescriptions {
		line := mediaLine{Kind: md.MediaName.Media}
		for _, d := range directions {
			if _, ok := md.Attribute(d); ok {
				line.Direction = d
				break
			}
		}
		out = append(out, line)
	}
	return out, nil
}

func mediaKinds(lines []mediaLine) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Kind)
	}
	return out
}
