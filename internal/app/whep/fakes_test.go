package whep

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/whep-player/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const testOffer = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 0 1\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=recvonly\r\n" +
	"a=rtcp-mux\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:1\r\n" +
	"a=recvonly\r\n" +
	"a=rtcp-mux\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=fmtp:111 minptime=10;useinbandfec=1\r\n"

const testAnswer = "v=0\r\n" +
	"o=- 1 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 0 1\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sendonly\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:1\r\n" +
	"a=sendonly\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

type fakeTrack struct {
	id   string
	kind webrtc.RTPCodecType
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) StreamID() string          { return "stream" }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

func videoTrack(id string) *fakeTrack { return &fakeTrack{id: id, kind: webrtc.RTPCodecTypeVideo} }
func audioTrack(id string) *fakeTrack { return &fakeTrack{id: id, kind: webrtc.RTPCodecTypeAudio} }

// sourceTrack carries an SSRC so keyframe requests can target it.
type sourceTrack struct {
	fakeTrack
	ssrc webrtc.SSRC
}

func (t *sourceTrack) SSRC() webrtc.SSRC { return t.ssrc }
func (t *sourceTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, io.EOF
}

type fakeConn struct {
	mu        sync.Mutex
	kinds     []webrtc.RTPCodecType
	offer     string
	local     webrtc.SessionDescription
	remote    *webrtc.SessionDescription
	remoteErr error
	trackSubs map[int]func(core.RemoteTrack)
	stateSubs map[int]func(webrtc.PeerConnectionState)
	nextSub   int
	rtcp      []rtcp.Packet
	closed    int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		offer:     testOffer,
		trackSubs: make(map[int]func(core.RemoteTrack)),
		stateSubs: make(map[int]func(webrtc.PeerConnectionState)),
	}
}

func (c *fakeConn) AddRecvOnly(kind webrtc.RTPCodecType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
	return nil
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: c.offer}, nil
}

func (c *fakeConn) SetLocalDescription(_ context.Context, desc webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = desc
	return desc, nil
}

func (c *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remoteErr != nil {
		return c.remoteErr
	}
	c.remote = &desc
	return nil
}

func (c *fakeConn) OnTrack(fn func(core.RemoteTrack)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.trackSubs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.trackSubs, id)
	}
}

func (c *fakeConn) OnStateChange(fn func(webrtc.PeerConnectionState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.stateSubs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateSubs, id)
	}
}

func (c *fakeConn) WriteRTCP(pkts []rtcp.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rtcp = append(c.rtcp, pkts...)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) emitTrack(t core.RemoteTrack) {
	c.mu.Lock()
	subs := make([]func(core.RemoteTrack), 0, len(c.trackSubs))
	for _, fn := range c.trackSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(t)
	}
}

func (c *fakeConn) emitState(st webrtc.PeerConnectionState) {
	c.mu.Lock()
	subs := make([]func(webrtc.PeerConnectionState), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

func (c *fakeConn) subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.trackSubs) + len(c.stateSubs)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) remoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// connFactory hands out a new fakeConn per attempt and remembers them.
type connFactory struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (f *connFactory) connect(core.SessionID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := newFakeConn()
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *connFactory) all() []*fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeConn(nil), f.conns...)
}

func (f *connFactory) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type fakeSink struct {
	mu        sync.Mutex
	attached  []*core.Stream
	muted     bool
	volume    float64
	plays     int
	playErr   error
	activated int
	detached  int
}

func (s *fakeSink) Attach(stream *core.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = append(s.attached, stream)
}

func (s *fakeSink) Play(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	if s.playErr != nil && s.activated == 0 {
		return s.playErr
	}
	return nil
}

func (s *fakeSink) Pause() {}

func (s *fakeSink) SetMuted(m bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = m
}

func (s *fakeSink) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *fakeSink) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

func (s *fakeSink) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated++
}

func (s *fakeSink) OnPlaying(func()) func() { return func() {} }

func (s *fakeSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached++
}

func (s *fakeSink) attachedStreams() []*core.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.Stream(nil), s.attached...)
}

func (s *fakeSink) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

// fakeClock records every requested delay. With block set, Sleep parks
// until ctx is cancelled and announces itself on sleeping.
type fakeClock struct {
	mu       sync.Mutex
	sleeps   []time.Duration
	block    bool
	sleeping chan time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	block := c.block
	c.mu.Unlock()
	if !block {
		return nil
	}
	if c.sleeping != nil {
		c.sleeping <- d
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type statusLog struct {
	mu       sync.Mutex
	statuses []core.Status
}

func (l *statusLog) Report(s core.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, s)
}

func (l *statusLog) phases() []core.Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.Phase, 0, len(l.statuses))
	for _, s := range l.statuses {
		out = append(out, s.Phase)
	}
	return out
}

func (l *statusLog) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.statuses))
	for _, s := range l.statuses {
		out = append(out, s.Message)
	}
	return out
}

type response struct {
	status int
	body   string
}

// whepServer answers POSTs from a scripted list; the last entry repeats.
type whepServer struct {
	*httptest.Server
	mu           sync.Mutex
	script       []response
	hits         int
	contentTypes []string
	bodies       []string
}

func newWHEPServer(t *testing.T, script ...response) *whepServer {
	t.Helper()
	ws := &whepServer{script: script}
	ws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ws.mu.Lock()
		idx := ws.hits
		if idx >= len(ws.script) {
			idx = len(ws.script) - 1
		}
		ws.hits++
		ws.contentTypes = append(ws.contentTypes, r.Header.Get("Content-Type"))
		ws.bodies = append(ws.bodies, string(body))
		resp := ws.script[idx]
		ws.mu.Unlock()

		if resp.status >= 200 && resp.status < 300 {
			w.Header().Set("Content-Type", "application/sdp")
			w.Header().Set("Location", "/whep/resource/1")
		}
		w.WriteHeader(resp.status)
		_, _ = io.WriteString(w, resp.body)
	}))
	t.Cleanup(ws.Close)
	return ws
}

func (ws *whepServer) hitCount() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.hits
}

// gateSink records sink calls in order. SetMuted parks until release is
// closed and announces the first call on entered.
type gateSink struct {
	fakeSink
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	opsMu sync.Mutex
	ops   []string
}

func newGateSink() *gateSink {
	return &gateSink{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateSink) record(op string) {
	g.opsMu.Lock()
	defer g.opsMu.Unlock()
	g.ops = append(g.ops, op)
}

func (g *gateSink) operations() []string {
	g.opsMu.Lock()
	defer g.opsMu.Unlock()
	return append([]string(nil), g.ops...)
}

func (g *gateSink) SetMuted(m bool) {
	g.record("mute")
	g.once.Do(func() { close(g.entered) })
	<-g.release
	g.fakeSink.SetMuted(m)
}

func (g *gateSink) Attach(stream *core.Stream) {
	g.record("attach")
	g.fakeSink.Attach(stream)
}

func (g *gateSink) Play(ctx context.Context) error {
	g.record("play")
	return g.fakeSink.Play(ctx)
}

func (g *gateSink) Detach() {
	g.record("detach")
	g.fakeSink.Detach()
}

// uncancellableTransport strips cancellation from outgoing requests, so a
// response can arrive after the caller has given up.
type uncancellableTransport struct {
	base http.RoundTripper
}

func (u uncancellableTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return u.base.RoundTrip(req.Clone(context.WithoutCancel(req.Context())))
}

// heldWHEPServer answers every offer with testAnswer once release is
// closed. Each request announces itself on entered first.
type heldWHEPServer struct {
	*httptest.Server
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newHeldWHEPServer(t *testing.T) *heldWHEPServer {
	t.Helper()
	hs := &heldWHEPServer{entered: make(chan struct{}, 1), release: make(chan struct{})}
	hs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		hs.entered <- struct{}{}
		<-hs.release
		w.Header().Set("Content-Type", "application/sdp")
		w.Header().Set("Location", "/whep/resource/1")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, testAnswer)
	}))
	t.Cleanup(hs.Close)
	t.Cleanup(hs.unblock)
	return hs
}

func (hs *heldWHEPServer) unblock() {
	hs.once.Do(func() { close(hs.release) })
}

func (hs *heldWHEPServer) client() *http.Client {
	return &http.Client{Transport: uncancellableTransport{base: hs.Client().Transport}}
}

func (g *gateSink) unblock() {
	close(g.release)
}
