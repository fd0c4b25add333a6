package app

import (
	"testing"

	"github.com/dkeye/whep-player/internal/core"
	"github.com/dkeye/whep-player/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	id        core.SessionID
	teardowns int
}

func (s *stubSession) ID() core.SessionID  { return s.id }
func (s *stubSession) Status() core.Status { return core.Status{SessionID: s.id} }
func (s *stubSession) Teardown()           { s.teardowns++ }

func player(t *testing.T, owner domain.ClientToken) *domain.Player {
	t.Helper()
	p, err := domain.NewPlayer(owner, "http://example/whep")
	require.NoError(t, err)
	return p
}

func TestRegistry_BindGetUnbind(t *testing.T) {
	r := NewRegistry()
	p := player(t, "owner")
	sess := &stubSession{id: core.SessionID(p.ID)}
	r.Bind(p, sess, nil)

	snap, ok := r.Get(p.ID)
	require.True(t, ok)
	assert.Same(t, sess, snap.Session)
	assert.Equal(t, 1, r.Len())

	_, ok = r.Unbind(p.ID)
	assert.True(t, ok)
	_, ok = r.Unbind(p.ID)
	assert.False(t, ok)
	_, ok = r.Get(p.ID)
	assert.False(t, ok)
}

func TestRegistry_OwnedByAndDrain(t *testing.T) {
	r := NewRegistry()
	for _, owner := range []domain.ClientToken{"a", "a", "b"} {
		p := player(t, owner)
		r.Bind(p, &stubSession{id: core.SessionID(p.ID)}, nil)
	}

	assert.Len(t, r.OwnedBy("a"), 2)
	assert.Len(t, r.OwnedBy("c"), 0)
	assert.Len(t, r.Drain(), 3)
	assert.Equal(t, 0, r.Len())
}
