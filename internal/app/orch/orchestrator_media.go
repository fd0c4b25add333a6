package orch

import (
	"context"

	"github.com/dkeye/whep-player/internal/app"
	"github.com/dkeye/whep-player/internal/core"
	"github.com/dkeye/whep-player/internal/domain"
)

// Interacter is a session that accepts user gestures.
type Interacter interface {
	Interact(ctx context.Context) error
}

// Player returns the registry entry of id.
func (o *Orchestrator) Player(id domain.PlayerID) (app.Snapshot, error) {
	snap, ok := o.Registry.Get(id)
	if !ok {
		return app.Snapshot{}, core.ErrPlayerNotFound
	}
	return snap, nil
}

// Interact delivers a tap or unmute click to the player.
func (o *Orchestrator) Interact(ctx context.Context, id domain.PlayerID) error {
	snap, err := o.Player(id)
	if err != nil {
		return err
	}
	sess, ok := snap.Session.(Interacter)
	if !ok {
		return core.ErrPlayerNotFound
	}
	return sess.Interact(ctx)
}

// StatusOf returns the last status of the player, or an idle status
// before its first report.
func (o *Orchestrator) StatusOf(id domain.PlayerID) (core.Status, error) {
	snap, err := o.Player(id)
	if err != nil {
		return core.Status{}, err
	}
	st := snap.Session.Status()
	if st.Phase == "" {
		st = core.Status{SessionID: snap.Session.ID(), Phase: core.PhaseIdle, Severity: core.SeverityInfo}
	}
	return st, nil
}

// Subscribe streams the player's status updates. The current status is
// returned first so a late observer starts from the right phase.
func (o *Orchestrator) Subscribe(id domain.PlayerID) (core.Status, <-chan core.Status, func(), error) {
	snap, err := o.Player(id)
	if err != nil {
		return core.Status{}, nil, nil, err
	}
	ch, cancel := o.Status.Subscribe(snap.Session.ID())
	st, _ := o.StatusOf(id)
	return st, ch, cancel, nil
}

// SetVolume adjusts the player's output volume.
func (o *Orchestrator) SetVolume(id domain.PlayerID, volume float64) error {
	snap, err := o.Player(id)
	if err != nil {
		return err
	}
	snap.Sink.SetVolume(volume)
	return nil
}
