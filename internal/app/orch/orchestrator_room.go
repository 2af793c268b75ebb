package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Podium/internal/app"
	"github.com/dkeye/Podium/internal/core"
	"github.com/dkeye/Podium/internal/domain"
	"github.com/rs/zerolog/log"
)

type JoinRequest struct {
	Room        string
	Role        string
	ViewerID    string
	DisplayName string
}

func (o *Orchestrator) Join(ctx context.Context, id core.ConnID, req JoinRequest) (domain.RoomCode, error) {
	code, err := domain.ParseRoomCode(req.Room)
	if err != nil {
		return "", err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return "", err
	}
	ident, err := domain.NewIdentity(req.ViewerID, req.DisplayName)
	if err != nil {
		return "", err
	}

	e, ok := o.Registry.Lookup(id)
	if !ok {
		return "", app.ErrUnknownConnection
	}
	if err := o.Registry.DeclareRole(id, code, role, ident); err != nil {
		return "", err
	}

	// A room may close between lookup and join; the second attempt gets a fresh one.
	for attempt := 0; attempt < 2; attempt++ {
		err = o.Rooms.GetOrCreate(code).Join(ctx, id, e.Conn, role, ident)
		if !errors.Is(err, core.ErrRoomClosed) {
			break
		}
	}
	if err != nil {
		o.Registry.Release(id)
		return "", err
	}

	log.Info().
		Str("module", "orch").
		Str("conn", string(id)).
		Str("room", string(code)).
		Str("role", string(role)).
		Str("viewer", string(ident.ViewerID)).
		Msg("joined room")
	return code, nil
}

// Leave is idempotent: leaving without a room is not an error.
func (o *Orchestrator) Leave(ctx context.Context, id core.ConnID) error {
	e, ok := o.Registry.Lookup(id)
	if !ok || e.Room == "" {
		return nil
	}
	if room, ok := o.Rooms.Get(e.Room); ok {
		if err := room.Leave(ctx, id); err != nil && !errors.Is(err, core.ErrRoomClosed) {
			return err
		}
	}
	o.Registry.Release(id)
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(e.Room)).Msg("left room")
	return nil
}

func (o *Orchestrator) UpdateFrame(ctx context.Context, id core.ConnID, room string, frame domain.Frame, p domain.Presentation) error {
	return o.onRoom(id, room, func(r core.RoomService) error {
		return r.UpdateFrame(ctx, id, frame, p)
	})
}

func (o *Orchestrator) ChangeFrame(ctx context.Context, id core.ConnID, room string, index int, frameID domain.FrameID) error {
	return o.onRoom(id, room, func(r core.RoomService) error {
		return r.ChangeFrame(ctx, id, index, frameID)
	})
}

func (o *Orchestrator) StartPresentation(ctx context.Context, id core.ConnID, room string, p domain.Presentation) error {
	return o.onRoom(id, room, func(r core.RoomService) error {
		return r.StartPresentation(ctx, id, p)
	})
}

func (o *Orchestrator) EndPresentation(ctx context.Context, id core.ConnID, room string) error {
	return o.onRoom(id, room, func(r core.RoomService) error {
		return r.EndPresentation(ctx, id)
	})
}

// SubmitResponse stores the response live and hands it to the durable sink.
func (o *Orchestrator) SubmitResponse(ctx context.Context, id core.ConnID, room string, s domain.Submission) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return o.onRoom(id, room, func(r core.RoomService) error {
		resp, err := r.SubmitResponse(ctx, id, s)
		if err != nil {
			return err
		}
		if o.Sink != nil {
			o.Sink.Offer(r.Code(), resp)
		}
		return nil
	})
}

func (o *Orchestrator) ClearFrameResponses(ctx context.Context, id core.ConnID, room string, frameID domain.FrameID) error {
	return o.onRoom(id, room, func(r core.RoomService) error {
		return r.ClearFrameResponses(ctx, id, frameID)
	})
}

func (o *Orchestrator) QueryResponses(ctx context.Context, id core.ConnID, room string, frameID domain.FrameID) error {
	return o.onRoom(id, room, func(r core.RoomService) error {
		return r.QueryResponses(ctx, id, frameID)
	})
}
