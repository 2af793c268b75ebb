package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Podium/internal/app/orch"
	"github.com/dkeye/Podium/internal/config"
	"github.com/dkeye/Podium/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RoomRateLimiter
	WS      config.WSConfig
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RoomRateLimiter, ws config.WSConfig) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		Limiter: limiter,
		WS:      ws,
	}
}

// WsSignalConn is the per-connection outbound buffer in front of a websocket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Packet

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(p core.Packet) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- p:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	client := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("client", client).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Packet, ctl.WS.SendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	id := ctl.Orch.Connect(conn, cancel)
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("client", client).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, id, conn)
}

func (ctl *SignalWSController) writeWait() time.Duration {
	if ctl.WS.WriteWait > 0 {
		return ctl.WS.WriteWait
	}
	return 10 * time.Second
}
