package app

import (
	"fmt"
	"strings"

	"github.com/dkeye/Podium/internal/core"
	"github.com/dkeye/Podium/internal/domain"
	"github.com/rs/zerolog/log"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropEvent
	KickConnection
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(code domain.RoomCode, id core.ConnID) BackpressureAction
}

// SimplePolicy applies the same action to every slow connection.
type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(domain.RoomCode, core.ConnID) BackpressureAction {
	return p.Action
}

func PolicyFromString(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "drop":
		return SimplePolicy{Action: DropEvent}, nil
	case "kick":
		return SimplePolicy{Action: KickConnection}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", s)
	}
}

// DropHandler turns a policy into the hook rooms call on a rejected send.
// kick cancels the connection pumps, normally Registry.Cancel; the transport
// is closed directly when kick is nil or does not know the id.
func DropHandler(p Policy, kick func(core.ConnID) bool) core.DropFunc {
	return func(code domain.RoomCode, id core.ConnID, conn core.SignalConnection) {
		if p == nil {
			return
		}
		switch p.OnBackPressure(code, id) {
		case KickConnection:
			log.Warn().Str("module", "app.policy").Str("room", string(code)).Str("conn", string(id)).Msg("kicking slow connection")
			if kick == nil || !kick(id) {
				conn.Close()
			}
		case DropEvent, NoAction:
		}
	}
}
