// Package status fans Session status updates out to observers and keeps
// the latest one per session.
package status

import (
	"sync"

	"github.com/dkeye/whep-player/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// subscriberBuffer is how many updates a slow observer may lag behind
// before updates to it are dropped.
const subscriberBuffer = 16

type Hub struct {
	mu     sync.RWMutex
	last   map[core.SessionID]core.Status
	subs   map[core.SessionID]map[uint64]chan core.Status
	nextID uint64
}

var _ core.StatusReporter = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		last: make(map[core.SessionID]core.Status),
		subs: make(map[core.SessionID]map[uint64]chan core.Status),
	}
}

// Report logs st, stores it as the latest for its session and offers it
// to every subscriber without blocking.
func (h *Hub) Report(st core.Status) {
	logEvent(st).
		Str("module", "app.status").
		Str("sid", string(st.SessionID)).
		Str("phase", string(st.Phase)).
		Str("state", st.State.String()).
		Int("attempt", st.Attempt).
		Msg(st.Message)

	// Sends stay under the lock: cancel and Forget close channels while
	// holding it.
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[st.SessionID] = st
	for _, ch := range h.subs[st.SessionID] {
		select {
		case ch <- st:
		default:
			log.Warn().Str("module", "app.status").Str("sid", string(st.SessionID)).Msg("status subscriber lagging, update dropped")
		}
	}
}

func logEvent(st core.Status) *zerolog.Event {
	switch st.Severity {
	case core.SeverityError:
		return log.Error()
	case core.SeverityWarn:
		return log.Warn()
	}
	return log.Info()
}

// Last returns the latest status of sid.
func (h *Hub) Last(sid core.SessionID) (core.Status, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.last[sid]
	return st, ok
}

// Subscribe returns a channel of future updates for sid. The cancel func
// unsubscribes and closes the channel.
func (h *Hub) Subscribe(sid core.SessionID) (<-chan core.Status, func()) {
	ch := make(chan core.Status, subscriberBuffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[sid] == nil {
		h.subs[sid] = make(map[uint64]chan core.Status)
	}
	h.subs[sid][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subs[sid]; ok {
				if _, ok := subs[id]; ok {
					delete(subs, id)
					close(ch)
				}
				if len(subs) == 0 {
					delete(h.subs, sid)
				}
			}
		})
	}
}

// Forget drops the stored status of sid and closes its subscriptions.
func (h *Hub) Forget(sid core.SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.last, sid)
	for _, ch := range h.subs[sid] {
		close(ch)
	}
	delete(h.subs, sid)
}
