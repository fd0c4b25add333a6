package app

import (
	"sync"

	"github.com/dkeye/whep-player/internal/core"
	"github.com/dkeye/whep-player/internal/domain"
	"github.com/rs/zerolog/log"
)

// PlayerSession is what the registry needs from an attached session.
type PlayerSession interface {
	ID() core.SessionID
	Status() core.Status
	Teardown()
}

type playerEntry struct {
	Player  *domain.Player
	Session PlayerSession
	Sink    core.PlaybackSink
}

// Snapshot is a copy of one registry entry.
type Snapshot struct {
	Player  *domain.Player
	Session PlayerSession
	Sink    core.PlaybackSink
}

type Registry struct {
	mu      sync.RWMutex
	players map[domain.PlayerID]*playerEntry
}

func NewRegistry() *Registry {
	return &Registry{players: make(map[domain.PlayerID]*playerEntry)}
}

func (r *Registry) Bind(p *domain.Player, sess PlayerSession, sink core.PlaybackSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[p.ID] = &playerEntry{Player: p, Session: sess, Sink: sink}
	log.Info().Str("module", "app.registry").Str("sid", string(p.ID)).Str("owner", string(p.Owner)).Msg("bound player")
}

func (r *Registry) Get(id domain.PlayerID) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.players[id]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{Player: e.Player, Session: e.Session, Sink: e.Sink}, true
}

// Unbind removes id and returns what was bound to it.
func (r *Registry) Unbind(id domain.PlayerID) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.players[id]
	if !ok {
		return Snapshot{}, false
	}
	delete(r.players, id)
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("unbind player")
	return Snapshot{Player: e.Player, Session: e.Session, Sink: e.Sink}, true
}

// OwnedBy lists the players attached by owner.
func (r *Registry) OwnedBy(owner domain.ClientToken) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0)
	for _, e := range r.players {
		if e.Player.Owner == owner {
			out = append(out, Snapshot{Player: e.Player, Session: e.Session, Sink: e.Sink})
		}
	}
	return out
}

// Drain removes and returns every player.
func (r *Registry) Drain() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.players))
	for id, e := range r.players {
		out = append(out, Snapshot{Player: e.Player, Session: e.Session, Sink: e.Sink})
		delete(r.players, id)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}
