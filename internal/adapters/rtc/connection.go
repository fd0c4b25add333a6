package rtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/whep-player/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultGatherTimeout bounds ICE candidate gathering before the offer is sent.
const DefaultGatherTimeout = 10 * time.Second

// Config configures every PeerConnection created by a Connector.
type Config struct {
	ICEServers    []string
	GatherTimeout time.Duration
	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host endpoints.
	IncludeLoopback bool
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
		GatherTimeout: DefaultGatherTimeout,
	}
}

func (c Config) webrtcConfig() webrtc.Configuration {
	cfg := webrtc.Configuration{}
	for _, url := range c.ICEServers {
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{URLs: []string{url}})
	}
	return cfg
}

// Connector builds PeerConnections from one shared pion API.
type Connector struct {
	api *webrtc.API
	cfg Config
}

func NewConnector(cfg Config) (*Connector, error) {
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = DefaultGatherTimeout
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("registering codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("registering interceptors: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory()}
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)
	return &Connector{api: api, cfg: cfg}, nil
}

// Connect satisfies core.ConnectionFactory.
func (c *Connector) Connect(sid core.SessionID) (core.MediaConnection, error) {
	pc, err := c.api.NewPeerConnection(c.cfg.webrtcConfig())
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}
	return newConnection(pc, sid, c.cfg.GatherTimeout), nil
}

var _ core.MediaConnection = (*WebRTCConnection)(nil)

// WebRTCConnection adapts a pion PeerConnection to core.MediaConnection.
// pion keeps a single handler per event, so the connection installs one
// handler of each kind and fans out to registered observers.
type WebRTCConnection struct {
	pc            *webrtc.PeerConnection
	sid           core.SessionID
	gatherTimeout time.Duration

	mu        sync.Mutex
	nextID    uint64
	trackSubs map[uint64]func(core.RemoteTrack)
	stateSubs map[uint64]func(webrtc.PeerConnectionState)

	closeOnce sync.Once
	closeErr  error
}

func newConnection(pc *webrtc.PeerConnection, sid core.SessionID, gatherTimeout time.Duration) *WebRTCConnection {
	c := &WebRTCConnection{
		pc:            pc,
		sid:           sid,
		gatherTimeout: gatherTimeout,
		trackSubs:     make(map[uint64]func(core.RemoteTrack)),
		stateSubs:     make(map[uint64]func(webrtc.PeerConnectionState)),
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "adapters.rtc").Str("sid", string(sid)).Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "adapters.rtc").Str("sid", string(sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.Lock()
		subs := make([]func(webrtc.PeerConnectionState), 0, len(c.stateSubs))
		for _, fn := range c.stateSubs {
			subs = append(subs, fn)
		}
		c.mu.Unlock()
		for _, fn := range subs {
			fn(s)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "adapters.rtc").
			Str("sid", string(sid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		c.mu.Lock()
		subs := make([]func(core.RemoteTrack), 0, len(c.trackSubs))
		for _, fn := range c.trackSubs {
			subs = append(subs, fn)
		}
		c.mu.Unlock()
		for _, fn := range subs {
			fn(track)
		}
	})

	return c
}

func (c *WebRTCConnection) AddRecvOnly(kind webrtc.RTPCodecType) error {
	_, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

// SetLocalDescription applies desc and waits for ICE gathering, so the
// returned description carries every candidate (WHEP without trickle).
func (c *WebRTCConnection) SetLocalDescription(ctx context.Context, desc webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return webrtc.SessionDescription{}, err
	}

	timer := time.NewTimer(c.gatherTimeout)
	defer timer.Stop()
	select {
	case <-gatherComplete:
	case <-timer.C:
		return webrtc.SessionDescription{}, fmt.Errorf("ICE gathering timed out after %s", c.gatherTimeout)
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	}

	local := c.pc.LocalDescription()
	if local == nil {
		return webrtc.SessionDescription{}, fmt.Errorf("no local description after gathering")
	}
	return *local, nil
}

func (c *WebRTCConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *WebRTCConnection) OnTrack(fn func(core.RemoteTrack)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.trackSubs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.trackSubs, id)
	}
}

func (c *WebRTCConnection) OnStateChange(fn func(webrtc.PeerConnectionState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.stateSubs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateSubs, id)
	}
}

func (c *WebRTCConnection) WriteRTCP(pkts []rtcp.Packet) error {
	return c.pc.WriteRTCP(pkts)
}

func (c *WebRTCConnection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		clear(c.trackSubs)
		clear(c.stateSubs)
		c.mu.Unlock()

		c.closeErr = c.pc.Close()
		if c.closeErr != nil {
			log.Error().Err(c.closeErr).Str("module", "adapters.rtc").Str("sid", string(c.sid)).Msg("close error")
		} else {
			log.Info().Str("module", "adapters.rtc").Str("sid", string(c.sid)).Msg("closed")
		}
	})
	return c.closeErr
}
