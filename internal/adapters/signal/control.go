package signal

import (
	"context"

	"github.com/dkeye/whep-player/internal/domain"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

func (ctl *StatusWSController) handlePing(conn *WsStatusConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *StatusWSController) handleInteract(ctx context.Context, id domain.PlayerID, conn *WsStatusConn) {
	if err := ctl.Orch.Interact(ctx, id); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(id)).Msg("interact failed")
		ctl.sendError(conn, "interact_failed")
	}
}

func (ctl *StatusWSController) handleVolume(id domain.PlayerID, conn *WsStatusConn, data []byte) {
	var p struct {
		Volume *float64 `json:"volume"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Volume == nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if err := ctl.Orch.SetVolume(id, *p.Volume); err != nil {
		ctl.sendError(conn, "volume_failed")
	}
}
