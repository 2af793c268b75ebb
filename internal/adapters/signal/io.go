package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Podium/internal/core"
	"github.com/dkeye/Podium/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Inbound event types.
const (
	EventJoin                = "join"
	EventLeave               = "leave"
	EventPresenterFrame      = "presenter-frame-update"
	EventManualFrameChange   = "manual-frame-change"
	EventResponseSubmit      = "response-submit"
	EventPresentationStart   = "presentation-start"
	EventPresentationEnd     = "presentation-end"
	EventClearFrameResponses = "clear-frame-responses"
	EventResponsesQuery      = "responses-query"
	EventPing                = "ping"
)

// writePump owns every write to the socket. Closing the socket on exit
// unblocks readPump, which then runs the disconnect.
func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.WS.PingPeriod())
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(ctl.writeWait()))
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.writeWait())); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.writeWait())); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, id core.ConnID, c *WsSignalConn) {
	logger := log.With().Str("module", "signal").Str("conn", string(id)).Logger()
	defer func() {
		logger.Info().Msg("readPump closing")
		c.Close()
		ctl.Limiter.Prune()
		ctl.Orch.Disconnect(context.WithoutCancel(ctx), id)
	}()

	if ctl.WS.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.WS.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.WS.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.WS.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn().Err(err).Msg("readPump read error")
				}
				return
			}
			// Any inbound traffic proves the peer is alive.
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.WS.PongWait))
			ctl.handleSignal(ctx, id, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, id core.ConnID, c core.SignalConnection, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad json")
		ctl.sendError(c, domain.ErrBadPayload)
		return
	}

	switch env.Type {
	case EventJoin:
		ctl.handleJoin(ctx, id, c, data)
	case EventLeave:
		ctl.handleLeave(ctx, id, c)
	case EventPresenterFrame:
		ctl.handleFrameUpdate(ctx, id, c, data)
	case EventManualFrameChange:
		ctl.handleManualFrameChange(ctx, id, c, data)
	case EventPresentationStart:
		ctl.handlePresentationStart(ctx, id, c, data)
	case EventPresentationEnd:
		ctl.handlePresentationEnd(ctx, id, c, data)
	case EventResponseSubmit:
		ctl.handleResponseSubmit(ctx, id, c, data)
	case EventClearFrameResponses:
		ctl.handleClearFrameResponses(ctx, id, c, data)
	case EventResponsesQuery:
		ctl.handleResponsesQuery(ctx, id, c, data)
	case EventPing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("conn", string(id)).Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, domain.ErrUnknownEvent)
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
