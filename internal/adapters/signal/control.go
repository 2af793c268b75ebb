package signal

import "github.com/dkeye/Podium/internal/core"

func (ctl *SignalWSController) handlePing(conn core.SignalConnection) {
	ctl.sendJSON(conn, core.Pong{Type: core.EventPong})
}
