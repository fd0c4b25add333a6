// Package signal pushes player status over a websocket and accepts the
// player's interaction events from the same socket.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/whep-player/internal/app/orch"
	"github.com/dkeye/whep-player/internal/core"
	"github.com/dkeye/whep-player/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	DefaultReadLimit  = 32768
	DefaultPingPeriod = 54 * time.Second
	writeWait         = 5 * time.Second
	sendBuffer        = 32
)

type StatusWSController struct {
	Orch       *orch.Orchestrator
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewStatusWSController(o *orch.Orchestrator, readLimit int64, pingPeriod time.Duration) *StatusWSController {
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	if pingPeriod <= 0 {
		pingPeriod = DefaultPingPeriod
	}
	return &StatusWSController{Orch: o, ReadLimit: readLimit, PingPeriod: pingPeriod}
}

type WsStatusConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsStatusConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsStatusConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleEvents upgrades the request and streams the status of player id
// until the client disconnects, the player is detached or ctx ends.
func (ctl *StatusWSController) HandleEvents(ctx context.Context, c *gin.Context, id domain.PlayerID) {
	sid := core.SessionID(id)
	current, updates, unsubscribe, err := ctl.Orch.Subscribe(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new status WS connection")

	conn := &WsStatusConn{
		conn: ws,
		send: make(chan []byte, sendBuffer),
	}
	ctx, cancel := context.WithCancel(ctx)

	ctl.sendStatus(conn, current)
	go ctl.forward(ctx, cancel, conn, updates, unsubscribe)
	go ctl.writePump(ctx, sid, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}

type statusMessage struct {
	Type   string      `json:"type"`
	Status core.Status `json:"status"`
}

func (ctl *StatusWSController) sendStatus(c *WsStatusConn, st core.Status) {
	ctl.sendJSON(c, statusMessage{Type: "status", Status: st})
}

// forward relays hub updates to the socket. A closed updates channel
// means the player was detached.
func (ctl *StatusWSController) forward(ctx context.Context, cancel context.CancelFunc, c *WsStatusConn, updates <-chan core.Status, unsubscribe func()) {
	defer func() {
		unsubscribe()
		cancel()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				ctl.sendJSON(c, map[string]any{"type": "detached"})
				return
			}
			ctl.sendStatus(c, st)
		}
	}
}
