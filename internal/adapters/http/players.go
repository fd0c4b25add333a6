package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/whep-player/internal/adapters/signal"
	"github.com/dkeye/whep-player/internal/adapters/sink"
	"github.com/dkeye/whep-player/internal/app"
	"github.com/dkeye/whep-player/internal/app/orch"
	"github.com/dkeye/whep-player/internal/core"
	"github.com/dkeye/whep-player/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type playerHandlers struct {
	orch   *orch.Orchestrator
	events *signal.StatusWSController
	ctx    context.Context
}

type playerView struct {
	*domain.Player
	Status   core.Status `json:"status"`
	Resource string      `json:"resource,omitempty"`
	Stats    *sink.Stats `json:"stats,omitempty"`
}

func view(snap app.Snapshot) playerView {
	v := playerView{Player: snap.Player, Status: snap.Session.Status()}
	if v.Status.Phase == "" {
		v.Status = core.Status{SessionID: snap.Session.ID(), Phase: core.PhaseIdle, Severity: core.SeverityInfo}
	}
	if r, ok := snap.Session.(interface{ Resource() string }); ok {
		v.Resource = r.Resource()
	}
	if s, ok := snap.Sink.(interface{ Stats() sink.Stats }); ok {
		stats := s.Stats()
		v.Stats = &stats
	}
	return v
}

func owner(c *gin.Context) domain.ClientToken {
	return domain.ClientToken(c.GetString(clientTokenKey))
}

// ownedPlayer resolves :id for the calling client. Players of other
// clients are reported as missing.
func (h *playerHandlers) ownedPlayer(c *gin.Context) (app.Snapshot, bool) {
	snap, err := h.orch.Player(domain.PlayerID(c.Param("id")))
	if err != nil || snap.Player.Owner != owner(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": core.ErrPlayerNotFound.Error()})
		return app.Snapshot{}, false
	}
	return snap, true
}

func (h *playerHandlers) list(c *gin.Context) {
	snaps := h.orch.Registry.OwnedBy(owner(c))
	out := make([]playerView, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, view(snap))
	}
	c.JSON(http.StatusOK, gin.H{"players": out})
}

func (h *playerHandlers) attach(c *gin.Context) {
	var req orch.AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	p, err := h.orch.Attach(h.ctx, owner(c), req)
	var cfgErr *core.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": cfgErr.Err.Error(), "field": cfgErr.Field})
		return
	case errors.Is(err, core.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("attach failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.orch.Player(p.ID)
	if err != nil {
		c.JSON(http.StatusCreated, playerView{Player: p})
		return
	}
	c.Header("Location", "/api/players/"+string(p.ID))
	c.JSON(http.StatusCreated, view(snap))
}

func (h *playerHandlers) get(c *gin.Context) {
	snap, ok := h.ownedPlayer(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, view(snap))
}

func (h *playerHandlers) detach(c *gin.Context) {
	snap, ok := h.ownedPlayer(c)
	if !ok {
		return
	}
	if err := h.orch.Detach(snap.Player.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *playerHandlers) interact(c *gin.Context) {
	snap, ok := h.ownedPlayer(c)
	if !ok {
		return
	}
	if err := h.orch.Interact(c.Request.Context(), snap.Player.ID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	st, _ := h.orch.StatusOf(snap.Player.ID)
	c.JSON(http.StatusOK, gin.H{"status": st})
}

type volumeRequest struct {
	Volume *float64 `json:"volume" binding:"required"`
}

func (h *playerHandlers) volume(c *gin.Context) {
	snap, ok := h.ownedPlayer(c)
	if !ok {
		return
	}
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "volume is required"})
		return
	}
	if err := h.orch.SetVolume(snap.Player.ID, *req.Volume); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *playerHandlers) streamEvents(c *gin.Context) {
	snap, ok := h.ownedPlayer(c)
	if !ok {
		return
	}
	log.Info().Str("module", "adapters.http").Str("sid", string(snap.Player.ID)).Msg("ws events endpoint hit")
	h.events.HandleEvents(h.ctx, c, snap.Player.ID)
}
