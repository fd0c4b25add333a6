// Package sink holds the headless playback sink: it "plays" a composed
// stream by draining its RTP packets and keeping per-kind counters.
package sink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/whep-player/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errGestureRequired = errors.New("unmuted playback requires a user gesture")

// Stats counts what the sink has consumed since the last Attach.
type Stats struct {
	VideoPackets uint64 `json:"video_packets"`
	VideoBytes   uint64 `json:"video_bytes"`
	AudioPackets uint64 `json:"audio_packets"`
	AudioBytes   uint64 `json:"audio_bytes"`
	// AudioDropped counts audio packets discarded while muted.
	AudioDropped uint64 `json:"audio_dropped"`
}

type counters struct {
	videoPackets, videoBytes atomic.Uint64
	audioPackets, audioBytes atomic.Uint64
	audioDropped             atomic.Uint64
}

// RTPSink is a core.PlaybackSink with an autoplay policy: when
// RequireGesture is set, unmuted Play fails until Activate is called,
// like a browser that blocks audible autoplay.
type RTPSink struct {
	RequireGesture bool

	logger zerolog.Logger

	mu        sync.Mutex
	stream    *core.Stream
	cancel    context.CancelFunc
	reading   bool
	playing   bool
	flowing   atomic.Bool
	activated bool
	muted     atomic.Bool
	volume    float64
	nextSub   uint64
	onPlaying map[uint64]func()
	firstOnce *sync.Once
	stats     *counters
}

var _ core.PlaybackSink = (*RTPSink)(nil)

func NewRTPSink(sid core.SessionID) *RTPSink {
	return &RTPSink{
		logger:    log.With().Str("module", "adapters.sink").Str("sid", string(sid)).Logger(),
		volume:    1,
		onPlaying: make(map[uint64]func()),
		firstOnce: &sync.Once{},
		stats:     &counters{},
	}
}

func (s *RTPSink) Attach(stream *core.Stream) {
	s.mu.Lock()
	s.stopLocked()
	s.stream = stream
	s.firstOnce = &sync.Once{}
	s.stats = &counters{}
	s.mu.Unlock()
	s.logger.Info().Str("stream_id", stream.ID).Int("tracks", len(stream.Tracks)).Msg("stream attached")
}

func (s *RTPSink) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return &core.PlaybackError{Err: errors.New("no stream attached")}
	}
	if s.playing {
		return nil
	}
	if s.RequireGesture && !s.activated && !s.muted.Load() {
		return &core.PlaybackError{Err: errGestureRequired}
	}

	s.playing = true
	s.flowing.Store(true)
	if s.reading {
		return nil
	}

	// One reader per track for the whole attach. Pause only stops the
	// counting, so a reader parked in ReadRTP is never joined by another.
	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.reading = true
	for _, st := range s.stream.Tracks {
		src, ok := st.Track.(core.RTPSource)
		if !ok || !st.Enabled {
			continue
		}
		go s.drain(readCtx, src, s.stats, s.firstOnce)
	}
	return nil
}

func (s *RTPSink) drain(ctx context.Context, src core.RTPSource, c *counters, first *sync.Once) {
	logger := s.logger.With().Str("kind", src.Kind().String()).Str("track_id", src.ID()).Logger()
	for {
		if ctx.Err() != nil {
			return
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("track ended")
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !s.flowing.Load() {
			continue
		}
		size := uint64(len(pkt.Payload))
		switch src.Kind() {
		case webrtc.RTPCodecTypeVideo:
			c.videoPackets.Add(1)
			c.videoBytes.Add(size)
		case webrtc.RTPCodecTypeAudio:
			if s.muted.Load() {
				c.audioDropped.Add(1)
				continue
			}
			c.audioPackets.Add(1)
			c.audioBytes.Add(size)
		}
		first.Do(s.firePlaying)
	}
}

func (s *RTPSink) firePlaying() {
	s.mu.Lock()
	subs := make([]func(), 0, len(s.onPlaying))
	for _, fn := range s.onPlaying {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	s.logger.Info().Msg("playing")
	for _, fn := range subs {
		fn()
	}
}

// Pause stops counting. Readers keep consuming packets so the tracks do
// not back up.
func (s *RTPSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.flowing.Store(false)
}

// stopLocked ends the readers of the current stream. A reader blocked in
// ReadRTP exits on its next packet or when the track ends.
func (s *RTPSink) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.reading = false
	s.playing = false
	s.flowing.Store(false)
}

func (s *RTPSink) SetMuted(muted bool) { s.muted.Store(muted) }

func (s *RTPSink) Muted() bool { return s.muted.Load() }

// SetVolume clamps volume to [0, 1].
func (s *RTPSink) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = min(max(volume, 0), 1)
}

func (s *RTPSink) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *RTPSink) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated = true
}

func (s *RTPSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *RTPSink) OnPlaying(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.onPlaying[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.onPlaying, id)
	}
}

func (s *RTPSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.stream = nil
}

func (s *RTPSink) Stats() Stats {
	s.mu.Lock()
	c := s.stats
	s.mu.Unlock()
	return Stats{
		VideoPackets: c.videoPackets.Load(),
		VideoBytes:   c.videoBytes.Load(),
		AudioPackets: c.audioPackets.Load(),
		AudioBytes:   c.audioBytes.Load(),
		AudioDropped: c.audioDropped.Load(),
	}
}
