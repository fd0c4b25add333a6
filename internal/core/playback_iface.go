package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// StreamTrack is one member of a composed Stream.
type StreamTrack struct {
	Track   RemoteTrack
	Enabled bool
}

// Stream is the single presentable container built from the received
// tracks. It holds exactly one track per required kind.
type Stream struct {
	ID     string
	Tracks []StreamTrack
}

// Track returns the member of the given kind.
func (s *Stream) Track(kind webrtc.RTPCodecType) (RemoteTrack, bool) {
	for _, st := range s.Tracks {
		if st.Track.Kind() == kind {
			return st.Track, true
		}
	}
	return nil, false
}

// PlaybackSink consumes a composed stream.
type PlaybackSink interface {
	Attach(stream *Stream)
	// Play starts presentation. A *PlaybackError means the sink refused
	// to start without a user gesture.
	Play(ctx context.Context) error
	Pause()
	SetMuted(muted bool)
	Muted() bool
	SetVolume(volume float64)
	// Activate records a user gesture (tap, click) on the sink.
	Activate()
	OnPlaying(fn func()) (unsubscribe func())
	// Detach stops presentation and drops the stream.
	Detach()
}
