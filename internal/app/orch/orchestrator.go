package orch

import (
	"context"
	"sync"

	"github.com/dkeye/whep-player/internal/app"
	"github.com/dkeye/whep-player/internal/app/status"
	"github.com/dkeye/whep-player/internal/app/whep"
	"github.com/dkeye/whep-player/internal/core"
	"github.com/dkeye/whep-player/internal/domain"
	"github.com/rs/zerolog/log"
)

// SinkFactory creates the playback sink of a new player.
type SinkFactory func(sid core.SessionID) core.PlaybackSink

// Orchestrator attaches and detaches players. Each player is one
// whep.Session bound in the Registry under its player ID.
type Orchestrator struct {
	Registry *app.Registry
	Status   *status.Hub
	Policy   app.AttachPolicy
	Connect  core.ConnectionFactory
	Exchange *whep.Exchange
	NewSink  SinkFactory
	Defaults whep.Options
	Clock    whep.Clock

	wg sync.WaitGroup
}

// Attach creates a player for owner and starts negotiating in the
// background. The session outlives ctx; only Detach or Shutdown end it.
func (o *Orchestrator) Attach(ctx context.Context, owner domain.ClientToken, req AttachRequest) (*domain.Player, error) {
	opts, err := req.Options(o.Defaults)
	if err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		return nil, &core.ConfigError{Field: "url", Err: core.ErrMissingEndpoint}
	}
	if o.Policy != nil && !o.Policy.Allow(owner) {
		log.Warn().Str("module", "app.orch").Str("owner", string(owner)).Msg("attach rate limited")
		return nil, core.ErrRateLimited
	}

	p, err := domain.NewPlayer(owner, opts.Endpoint)
	if err != nil {
		return nil, err
	}
	sid := core.SessionID(p.ID)
	sink := o.NewSink(sid)
	sess := whep.NewSession(sid, opts, whep.Deps{
		Connect:  o.Connect,
		Exchange: o.Exchange,
		Sink:     sink,
		Status:   o.Status,
		Clock:    o.Clock,
	})
	o.Registry.Bind(p, sess, sink)

	runCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := sess.Start(runCtx); err != nil {
			log.Info().Str("module", "app.orch").Str("sid", string(sid)).Err(err).Msg("player start ended")
		}
	}()
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("endpoint", opts.Endpoint).Msg("player attached")
	return p, nil
}

// Detach tears the player down and forgets it.
func (o *Orchestrator) Detach(id domain.PlayerID) error {
	snap, ok := o.Registry.Unbind(id)
	if !ok {
		return core.ErrPlayerNotFound
	}
	snap.Session.Teardown()
	o.Status.Forget(snap.Session.ID())
	log.Info().Str("module", "app.orch").Str("sid", string(id)).Msg("player detached")
	return nil
}

// Shutdown detaches every player and waits for their negotiations to
// return.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	for _, snap := range o.Registry.Drain() {
		snap.Session.Teardown()
		o.Status.Forget(snap.Session.ID())
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Str("module", "app.orch").Msg("all players detached")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
