package whep

import (
	"slices"
	"sync"

	"github.com/dkeye/whep-player/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Assembler turns the unordered arrival of remote tracks into exactly one
// composed Stream. The first track of each required kind wins; later
// tracks of a held kind are recorded but never replace it.
type Assembler struct {
	required []webrtc.RTPCodecType
	logger   zerolog.Logger

	mu       sync.Mutex
	held     map[webrtc.RTPCodecType]core.RemoteTrack
	received []core.RemoteTrack
	stream   *core.Stream
	closed   bool
}

// NewAssembler waits for one track of every kind in required. An empty
// set means video and audio.
func NewAssembler(required []webrtc.RTPCodecType, logger zerolog.Logger) *Assembler {
	if len(required) == 0 {
		required = core.DefaultTrackKinds()
	}
	return &Assembler{
		required: slices.Clone(required),
		logger:   logger,
		held:     make(map[webrtc.RTPCodecType]core.RemoteTrack, len(required)),
	}
}

// OnTrackReceived records track and returns the composed stream when this
// call completed the required set. It returns false for every other call,
// including all calls after composition or Close.
func (a *Assembler) OnTrackReceived(track core.RemoteTrack) (*core.Stream, bool) {
	kind := track.Kind()
	if kind != webrtc.RTPCodecTypeVideo && kind != webrtc.RTPCodecTypeAudio {
		a.logger.Debug().Str("track_id", track.ID()).Msg("ignoring track of unknown kind")
		return nil, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, false
	}
	a.received = append(a.received, track)

	if !slices.Contains(a.required, kind) {
		a.logger.Info().Str("kind", kind.String()).Str("track_id", track.ID()).Msg("track kind not required, not composing it")
		return nil, false
	}
	if held, ok := a.held[kind]; ok {
		a.logger.Warn().
			Str("kind", kind.String()).
			Str("track_id", track.ID()).
			Str("kept_track_id", held.ID()).
			Msg("duplicate track kind, keeping the first")
		return nil, false
	}
	a.held[kind] = track

	if a.stream != nil || len(a.held) < len(a.required) {
		return nil, false
	}

	stream := &core.Stream{
		ID:     uuid.NewString(),
		Tracks: make([]core.StreamTrack, 0, len(a.required)),
	}
	for _, k := range a.required {
		stream.Tracks = append(stream.Tracks, core.StreamTrack{Track: a.held[k], Enabled: true})
	}
	a.stream = stream
	return stream, true
}

// Stream returns the composed stream, or nil before composition.
func (a *Assembler) Stream() *core.Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream
}

// Received returns every recorded track in arrival order.
func (a *Assembler) Received() []core.RemoteTrack {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.received)
}

// Close clears all tracks and stops further composition.
func (a *Assembler) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.received = nil
	a.stream = nil
	clear(a.held)
}

// initialMuted decides whether a freshly attached stream starts muted.
func initialMuted(strategy core.UnmuteStrategy, mobile, muted bool) bool {
	switch strategy {
	case core.UnmuteButton:
		return true
	case core.UnmuteTap:
		if mobile {
			return true
		}
		return muted
	default:
		return muted
	}
}
