package core

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

type SessionID string

// State is the negotiation state of a Session.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateRetrying
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateRetrying:
		return "retrying"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmuteStrategy selects how a muted player gets unmuted.
type UnmuteStrategy string

const (
	// UnmuteAutoplay follows the caller's muted flag and never unmutes on its own.
	UnmuteAutoplay UnmuteStrategy = "autoplay"
	// UnmuteButton starts muted and unmutes on an explicit interaction.
	UnmuteButton UnmuteStrategy = "button"
	// UnmuteTap starts muted on mobile clients and unmutes on the first tap.
	UnmuteTap UnmuteStrategy = "tap"
)

func ParseUnmuteStrategy(s string) (UnmuteStrategy, error) {
	switch UnmuteStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnmuteAutoplay:
		return UnmuteAutoplay, nil
	case UnmuteButton:
		return UnmuteButton, nil
	case UnmuteTap:
		return UnmuteTap, nil
	}
	return "", fmt.Errorf("unknown unmute strategy %q", s)
}

// DefaultTrackKinds is the set of kinds a stream waits for by default.
func DefaultTrackKinds() []webrtc.RTPCodecType {
	return []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio}
}

// ParseTrackKinds turns ["video", "audio"] into codec types, keeping order
// and dropping duplicates.
func ParseTrackKinds(names []string) ([]webrtc.RTPCodecType, error) {
	out := make([]webrtc.RTPCodecType, 0, len(names))
	seen := make(map[webrtc.RTPCodecType]bool, len(names))
	for _, n := range names {
		kind := webrtc.NewRTPCodecType(strings.ToLower(strings.TrimSpace(n)))
		if kind == 0 {
			return nil, fmt.Errorf("unknown track kind %q", n)
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		out = append(out, kind)
	}
	return out, nil
}
