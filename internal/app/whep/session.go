package whep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/whep-player/internal/core"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPlayGrace is the pause between composing a stream and starting
// playback, so late tracks have landed before Play.
const DefaultPlayGrace = 150 * time.Millisecond

var errAlreadyStarted = errors.New("session already started")

// Options are the per-player inputs, mirroring the attributes of the
// embedding surface.
type Options struct {
	Endpoint      string
	Autoplay      bool
	Muted         bool
	Stereo        bool
	Mobile        bool
	Unmute        core.UnmuteStrategy
	Retry         RetryPolicy
	RequiredKinds []webrtc.RTPCodecType
	PlayGrace     time.Duration
}

// Deps are the collaborators of a Session. Connect and Sink are required.
type Deps struct {
	Connect  core.ConnectionFactory
	Exchange *Exchange
	Sink     core.PlaybackSink
	Status   core.StatusReporter
	Clock    Clock
}

// Session owns one WHEP playback attempt: the media connection, the
// negotiation with the endpoint and the handoff of the composed stream to
// the sink. Every continuation checks that the session is still open
// before touching playback state, so Teardown can never be undone by a
// late answer, track or timer.
type Session struct {
	id     core.SessionID
	opts   Options
	deps   Deps
	logger zerolog.Logger

	// sinkMu orders sink calls against Teardown; take it before mu.
	sinkMu sync.Mutex

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	state        core.State
	started      bool
	closed       bool
	attempt      int
	conn         core.MediaConnection
	unsubs       []func()
	assembler    *Assembler
	stream       *core.Stream
	needsGesture bool
	resource     string
	last         core.Status
}

func NewSession(id core.SessionID, opts Options, deps Deps) *Session {
	if opts.Unmute == "" {
		opts.Unmute = core.UnmuteAutoplay
	}
	if opts.PlayGrace <= 0 {
		opts.PlayGrace = DefaultPlayGrace
	}
	if len(opts.RequiredKinds) == 0 {
		opts.RequiredKinds = core.DefaultTrackKinds()
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Exchange == nil {
		deps.Exchange = NewExchange(nil, deps.Clock)
	}
	if deps.Status == nil {
		deps.Status = core.StatusFunc(func(core.Status) {})
	}
	return &Session{
		id:     id,
		opts:   opts,
		deps:   deps,
		logger: log.With().Str("module", "app.whep").Str("sid", string(id)).Logger(),
		ctx:    context.Background(),
	}
}

func (s *Session) ID() core.SessionID { return s.id }

func (s *Session) Options() Options { return s.opts }

func (s *Session) State() core.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the last reported status.
func (s *Session) Status() core.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Attempt returns the current negotiation attempt, starting at 1.
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Stream returns the composed stream, or nil.
func (s *Session) Stream() *core.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Resource returns the WHEP resource URL from the answer, if any.
func (s *Session) Resource() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resource
}

// Start negotiates with the endpoint and applies the answer. It returns
// once the session is Connected or has failed; tracks are handled as
// they arrive afterwards. Every failure is also reported as a status.
func (s *Session) Start(ctx context.Context) error {
	if s.opts.Endpoint == "" {
		return s.fail(&core.ConfigError{Field: "endpoint", Err: core.ErrMissingEndpoint})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return errAlreadyStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.ctx = ctx
	s.mu.Unlock()

	s.transition(core.StateNegotiating, core.PhaseConnecting, "Connecting to stream...", core.SeverityInfo)
	s.logger.Info().Str("endpoint", s.opts.Endpoint).Bool("retry", s.opts.Retry.Enabled).Msg("starting WHEP session")

	answer, err := s.deps.Exchange.Negotiate(ctx, s.opts.Endpoint, s.opts.Retry, s.prepare, s.onRetry)
	if err != nil {
		if !s.isOpen() {
			return core.ErrSessionClosed
		}
		return s.fail(err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	conn := s.conn
	s.resource = answer.Location
	s.mu.Unlock()

	err = conn.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP})
	if err != nil {
		if !s.isOpen() {
			return core.ErrSessionClosed
		}
		return s.fail(&core.NegotiationError{Err: fmt.Errorf("setting remote description: %w", err)})
	}

	if lines, err := describeMedia(answer.SDP); err != nil {
		s.logger.Warn().Err(err).Msg("answer is not parseable SDP")
	} else {
		s.logger.Info().Strs("media", mediaKinds(lines)).Str("resource", answer.Location).Msg("WHEP connection established")
	}

	if !s.transition(core.StateConnected, core.PhaseConnected, "Connected", core.SeverityInfo) {
		return core.ErrSessionClosed
	}
	return nil
}

// prepare starts a fresh attempt: the previous connection is released and
// a new one is created, observed and offered.
func (s *Session) prepare(ctx context.Context, attempt int) (string, error) {
	s.releaseConnection()

	conn, err := s.deps.Connect(s.id)
	if err != nil {
		return "", &core.NegotiationError{Err: fmt.Errorf("creating connection: %w", err)}
	}
	assembler := NewAssembler(s.opts.RequiredKinds, s.logger)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return "", core.ErrSessionClosed
	}
	s.conn = conn
	s.assembler = assembler
	s.attempt = attempt
	s.unsubs = []func(){
		conn.OnTrack(func(t core.RemoteTrack) { s.onTrack(conn, t) }),
		conn.OnStateChange(func(st webrtc.PeerConnectionState) { s.onStateChange(conn, st) }),
	}
	s.mu.Unlock()

	offer, err := BuildOffer(ctx, conn, s.opts.Stereo)
	if err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (s *Session) onRetry(attempt int, delay time.Duration, cause error) {
	s.logger.Info().Err(cause).Int("attempt", attempt).Dur("delay", delay).Msg("waiting for stream to start")
	s.transition(core.StateRetrying, core.PhaseRetrying,
		fmt.Sprintf("Waiting for stream to start... (attempt %d)", attempt), core.SeverityInfo)
}

func (s *Session) onTrack(conn core.MediaConnection, track core.RemoteTrack) {
	s.mu.Lock()
	if s.closed || s.conn != conn {
		s.mu.Unlock()
		return
	}
	assembler, ctx := s.assembler, s.ctx
	s.mu.Unlock()

	s.logger.Info().
		Str("kind", track.Kind().String()).
		Str("track_id", track.ID()).
		Str("stream_id", track.StreamID()).
		Msg("received track")

	stream, composed := assembler.OnTrackReceived(track)
	if !composed {
		return
	}
	s.present(ctx, conn, stream)
}

// present hands a freshly composed stream to the sink and starts playback
// after the grace delay.
func (s *Session) present(ctx context.Context, conn core.MediaConnection, stream *core.Stream) {
	s.sinkMu.Lock()
	s.mu.Lock()
	if s.closed || s.conn != conn {
		s.mu.Unlock()
		s.sinkMu.Unlock()
		return
	}
	s.stream = stream
	s.mu.Unlock()

	s.deps.Sink.SetMuted(initialMuted(s.opts.Unmute, s.opts.Mobile, s.opts.Muted))
	s.deps.Sink.Attach(stream)
	s.logger.Info().Str("stream_id", stream.ID).Int("tracks", len(stream.Tracks)).Bool("muted", s.deps.Sink.Muted()).Msg("stream composed")
	s.requestKeyframe(conn, stream)

	if !s.opts.Autoplay {
		s.mu.Lock()
		s.needsGesture = true
		s.mu.Unlock()
		s.sinkMu.Unlock()
		s.report(core.PhaseNeedsInteraction, "Click video to play", core.SeverityWarn)
		return
	}
	s.sinkMu.Unlock()

	if err := s.deps.Clock.Sleep(ctx, s.opts.PlayGrace); err != nil {
		return
	}
	s.play(ctx)
}

func (s *Session) play(ctx context.Context) {
	s.sinkMu.Lock()
	s.mu.Lock()
	if s.closed || s.stream == nil {
		s.mu.Unlock()
		s.sinkMu.Unlock()
		return
	}
	s.mu.Unlock()

	err := s.deps.Sink.Play(ctx)
	s.mu.Lock()
	s.needsGesture = err != nil
	s.mu.Unlock()
	s.sinkMu.Unlock()

	if err != nil {
		var playErr *core.PlaybackError
		if !errors.As(err, &playErr) {
			playErr = &core.PlaybackError{Err: err}
		}
		s.logger.Warn().Err(playErr).Msg("autoplay failed")
		s.report(core.PhaseNeedsInteraction, "Click video to play", core.SeverityWarn)
		return
	}

	s.logger.Info().Msg("playback started")
	s.report(core.PhasePlaying, "Connected & Playing", core.SeverityInfo)
}

// Interact delivers a user gesture: it unmutes under the button and tap
// strategies and retries playback that was blocked waiting for one.
func (s *Session) Interact(ctx context.Context) error {
	s.sinkMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.sinkMu.Unlock()
		return core.ErrSessionClosed
	}
	stream, needsGesture := s.stream, s.needsGesture
	s.mu.Unlock()

	s.deps.Sink.Activate()
	if s.opts.Unmute != core.UnmuteAutoplay && s.deps.Sink.Muted() {
		s.deps.Sink.SetMuted(false)
		s.logger.Info().Str("strategy", string(s.opts.Unmute)).Msg("unmuted on interaction")
	}
	s.sinkMu.Unlock()

	if stream != nil && needsGesture {
		s.play(ctx)
	}
	return nil
}

func (s *Session) onStateChange(conn core.MediaConnection, state webrtc.PeerConnectionState) {
	s.mu.Lock()
	current := !s.closed && s.conn == conn
	s.mu.Unlock()
	if !current {
		return
	}

	s.logger.Info().Str("peer_connection_state", state.String()).Msg("connection state")
	if state == webrtc.PeerConnectionStateFailed {
		failure := &core.TransportFailure{State: state.String()}
		s.logger.Error().Err(failure).Msg("transport failure")
		s.transition(core.StateFailed, core.PhaseFailed, "Connection failed", core.SeverityError)
	}
}

func (s *Session) requestKeyframe(conn core.MediaConnection, stream *core.Stream) {
	video, ok := stream.Track(webrtc.RTPCodecTypeVideo)
	if !ok {
		return
	}
	src, ok := video.(core.RTPSource)
	if !ok {
		return
	}
	pli := &rtcp.PictureLossIndication{MediaSSRC: uint32(src.SSRC())}
	if err := conn.WriteRTCP([]rtcp.Packet{pli}); err != nil {
		s.logger.Warn().Err(err).Msg("keyframe request failed")
	}
}

// Teardown closes the connection and discards every reference. It is
// safe to call any number of times.
func (s *Session) Teardown() {
	s.sinkMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.sinkMu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.state = core.StateIdle
	s.stream = nil
	s.needsGesture = false
	st := s.newStatus(core.PhaseClosed, "", core.SeverityInfo)
	s.last = st
	s.mu.Unlock()
	s.deps.Sink.Detach()
	s.sinkMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.releaseConnection()
	s.logger.Info().Msg("session torn down")
	s.deps.Status.Report(st)
}

func (s *Session) releaseConnection() {
	s.mu.Lock()
	conn, unsubs, assembler := s.conn, s.unsubs, s.assembler
	s.conn, s.unsubs, s.assembler = nil, nil, nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if assembler != nil {
		assembler.Close()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Error().Err(err).Msg("close error")
		}
	}
}

func (s *Session) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Session) fail(err error) error {
	s.logger.Error().Err(err).Msg("WHEP playback error")
	s.transition(core.StateFailed, core.PhaseFailed, "Error: "+userMessage(err), core.SeverityError)
	s.releaseConnection()
	return err
}

func userMessage(err error) string {
	var cfgErr *core.ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Err.Error()
	}
	return err.Error()
}

// transition moves to state and reports. It does nothing once the session
// is closed.
func (s *Session) transition(state core.State, phase core.Phase, msg string, sev core.Severity) bool {
	return s.publish(&state, phase, msg, sev)
}

// report publishes a status without changing the negotiation state.
func (s *Session) report(phase core.Phase, msg string, sev core.Severity) bool {
	return s.publish(nil, phase, msg, sev)
}

func (s *Session) publish(state *core.State, phase core.Phase, msg string, sev core.Severity) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if state != nil {
		s.state = *state
	}
	st := s.newStatus(phase, msg, sev)
	s.last = st
	s.mu.Unlock()

	s.deps.Status.Report(st)
	return true
}

// newStatus must be called with s.mu held.
func (s *Session) newStatus(phase core.Phase, msg string, sev core.Severity) core.Status {
	return core.Status{
		SessionID: s.id,
		Phase:     phase,
		State:     s.state,
		Message:   msg,
		Severity:  sev,
		Attempt:   s.attempt,
		At:        time.Now(),
	}
}
