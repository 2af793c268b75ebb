// Package orch maps connection-level requests onto rooms.
package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Podium/internal/app"
	"github.com/dkeye/Podium/internal/core"
	"github.com/dkeye/Podium/internal/domain"
	"github.com/rs/zerolog/log"
)

// ResponseSink takes accepted responses off the room goroutine.
// Offer must not block.
type ResponseSink interface {
	Offer(code domain.RoomCode, resp domain.Response) bool
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Sink     ResponseSink
}

// Connect admits a connection with no role.
func (o *Orchestrator) Connect(conn core.SignalConnection, cancel context.CancelFunc) core.ConnID {
	return o.Registry.Register(conn, cancel)
}

// Disconnect is an implicit leave followed by unregistering. Safe to call twice.
func (o *Orchestrator) Disconnect(ctx context.Context, id core.ConnID) {
	e, ok := o.Registry.Unregister(id)
	if !ok || e.Room == "" {
		return
	}
	room, ok := o.Rooms.Get(e.Room)
	if !ok {
		return
	}
	if err := room.Leave(ctx, id); err != nil && !errors.Is(err, core.ErrRoomClosed) {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(id)).Str("room", string(e.Room)).Msg("leave on disconnect failed")
	}
}

// roomFor resolves the room a non-join request targets. An explicit code
// wins over the joined one so that stale codes are reported as missing.
func (o *Orchestrator) roomFor(id core.ConnID, requested string) (core.RoomService, error) {
	e, ok := o.Registry.Lookup(id)
	if !ok {
		return nil, app.ErrUnknownConnection
	}
	code := e.Room
	if requested != "" {
		c, err := domain.ParseRoomCode(requested)
		if err != nil {
			return nil, fmt.Errorf("room %q: %w", requested, domain.ErrRoomNotFound)
		}
		code = c
	}
	if code == "" {
		return nil, fmt.Errorf("not joined: %w", domain.ErrRoomNotFound)
	}
	room, ok := o.Rooms.Get(code)
	if !ok {
		return nil, fmt.Errorf("room %q: %w", code, domain.ErrRoomNotFound)
	}
	return room, nil
}

// onRoom runs fn against the target room and folds a closed room into RoomNotFound.
func (o *Orchestrator) onRoom(id core.ConnID, requested string, fn func(core.RoomService) error) error {
	room, err := o.roomFor(id, requested)
	if err != nil {
		return err
	}
	if err := fn(room); err != nil {
		if errors.Is(err, core.ErrRoomClosed) {
			return fmt.Errorf("room %q: %w", room.Code(), domain.ErrRoomNotFound)
		}
		return err
	}
	return nil
}
