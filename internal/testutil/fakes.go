// Package testutil holds in-process fakes shared by package tests.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/whep-player/internal/core"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

const Offer = "v=0\r\n" +
	"o=- 1 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"a=mid:0\r\n" +
	"a=recvonly\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"a=mid:1\r\n" +
	"a=recvonly\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

const Answer = "v=0\r\n" +
	"o=- 2 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"a=mid:0\r\n" +
	"a=sendonly\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"a=mid:1\r\n" +
	"a=sendonly\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

type Track struct {
	TrackID   string
	TrackKind webrtc.RTPCodecType
}

func (t *Track) ID() string                { return t.TrackID }
func (t *Track) StreamID() string          { return "stream" }
func (t *Track) Kind() webrtc.RTPCodecType { return t.TrackKind }

// Conn is a core.MediaConnection that never touches the network.
type Conn struct {
	mu      sync.Mutex
	onTrack []func(core.RemoteTrack)
	onState []func(webrtc.PeerConnectionState)
	remote  string
	closed  bool
}

func (c *Conn) AddRecvOnly(webrtc.RTPCodecType) error { return nil }

func (c *Conn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: Offer}, nil
}

func (c *Conn) SetLocalDescription(_ context.Context, desc webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	return desc, nil
}

func (c *Conn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = desc.SDP
	return nil
}

func (c *Conn) OnTrack(fn func(core.RemoteTrack)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = append(c.onTrack, fn)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.onTrack = nil
	}
}

func (c *Conn) OnStateChange(fn func(webrtc.PeerConnectionState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, fn)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.onState = nil
	}
}

func (c *Conn) WriteRTCP([]rtcp.Packet) error { return nil }

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Remote() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// Emit delivers tracks to the current observers.
func (c *Conn) Emit(tracks ...core.RemoteTrack) {
	c.mu.Lock()
	subs := append([]func(core.RemoteTrack){}, c.onTrack...)
	c.mu.Unlock()
	for _, t := range tracks {
		for _, fn := range subs {
			fn(t)
		}
	}
}

// Conns records every Conn it creates.
type Conns struct {
	mu    sync.Mutex
	conns []*Conn
}

func (f *Conns) Connect(core.SessionID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &Conn{}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *Conns) Last() *Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

func (f *Conns) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// WHEPServer answers every POST with status and body.
type WHEPServer struct {
	*httptest.Server
	hits atomic.Int32
}

func NewWHEPServer(t *testing.T, status int, body string) *WHEPServer {
	t.Helper()
	ws := &WHEPServer{}
	ws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		ws.hits.Add(1)
		if status >= 200 && status < 300 {
			w.Header().Set("Content-Type", "application/sdp")
			w.Header().Set("Location", "/whep/resource/1")
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ws.Close)
	return ws
}

func (ws *WHEPServer) Hits() int { return int(ws.hits.Load()) }

// Statuses collects reported statuses.
type Statuses struct {
	mu  sync.Mutex
	all []core.Status
}

func (s *Statuses) Report(st core.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, st)
}

func (s *Statuses) Phases() []core.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Phase, 0, len(s.all))
	for _, st := range s.all {
		out = append(out, st.Phase)
	}
	return out
}
