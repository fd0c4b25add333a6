package core

import (
	"context"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// RemoteTrack is the part of an incoming media track the player cares
// about. *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// RTPSource is implemented by tracks that actually carry packets.
type RTPSource interface {
	RemoteTrack
	SSRC() webrtc.SSRC
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// MediaConnection is the real-time transport primitive owned by one
// Session. Observers are registered explicitly and the returned func
// unsubscribes them.
type MediaConnection interface {
	// AddRecvOnly declares a receive-only media line of the given kind.
	AddRecvOnly(kind webrtc.RTPCodecType) error
	CreateOffer() (webrtc.SessionDescription, error)
	// SetLocalDescription applies desc and blocks until candidate
	// gathering has finished, returning the complete local description.
	SetLocalDescription(ctx context.Context, desc webrtc.SessionDescription) (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	OnTrack(fn func(RemoteTrack)) (unsubscribe func())
	OnStateChange(fn func(webrtc.PeerConnectionState)) (unsubscribe func())
	WriteRTCP(pkts []rtcp.Packet) error
	// Close releases the connection. Safe to call more than once.
	Close() error
}

// ConnectionFactory creates a fresh MediaConnection for one negotiation attempt.
type ConnectionFactory func(sid SessionID) (MediaConnection, error)
