package core

import (
	"context"
	"time"

	"github.com/dkeye/Podium/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type command struct {
	apply func() error
	done  chan error
}

// roomImpl is an in-memory room owned by a single goroutine.
// Fields from room down are touched only by run.
// It never closes adapter-owned resources.
type roomImpl struct {
	code   domain.RoomCode
	inbox  chan command
	done   chan struct{}
	cancel context.CancelFunc
	now    func() time.Time
	onDrop DropFunc
	logger zerolog.Logger

	room      *domain.Room
	members   map[ConnID]*member
	presenter ConnID
	dropped   []*member
	stop      bool
}

func NewRoomService(ctx context.Context, code domain.RoomCode, opts RoomOptions) RoomService {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &roomImpl{
		code:    code,
		inbox:   make(chan command, opts.InboxSize),
		done:    make(chan struct{}),
		cancel:  cancel,
		now:     opts.Now,
		onDrop:  opts.OnDropped,
		logger:  log.With().Str("module", "core.room").Str("room", string(code)).Logger(),
		room:    domain.NewRoom(code, opts.Now()),
		members: make(map[ConnID]*member),
	}
	go r.run(ctx)
	r.logger.Info().Msg("room started")
	return r
}

func (r *roomImpl) Code() domain.RoomCode { return r.code }
func (r *roomImpl) Done() <-chan struct{} { return r.done }
func (r *roomImpl) Close()                { r.cancel() }

func (r *roomImpl) run(ctx context.Context) {
	defer close(r.done)
	defer r.cancel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("room stopped")
			return
		case cmd := <-r.inbox:
			err := cmd.apply()
			r.flushDropped()
			cmd.done <- err
			if r.stop {
				r.logger.Info().Msg("room closed")
				return
			}
		}
	}
}

// do hands fn to the room goroutine and waits for it to finish.
func (r *roomImpl) do(ctx context.Context, fn func() error) error {
	cmd := command{apply: fn, done: make(chan error, 1)}
	select {
	case r.inbox <- cmd:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *roomImpl) flushDropped() {
	if len(r.dropped) == 0 {
		return
	}
	seen := make(map[ConnID]struct{}, len(r.dropped))
	for _, m := range r.dropped {
		if _, ok := seen[m.id]; ok {
			continue
		}
		seen[m.id] = struct{}{}
		r.logger.Warn().Str("conn", string(m.id)).Msg("event dropped, send buffer full")
		if r.onDrop != nil {
			r.onDrop(r.code, m.id, m.conn)
		}
	}
	r.dropped = r.dropped[:0]
}

func (r *roomImpl) touch() time.Time {
	now := r.now()
	r.room.LastActivityAt = now
	return now
}

func (r *roomImpl) requirePresenter(from ConnID) error {
	if r.presenter == "" || from != r.presenter {
		return domain.ErrUnauthorized
	}
	return nil
}

func (r *roomImpl) state() RoomState {
	switch {
	case r.room.Ended:
		return StateEnded
	case r.room.Frame.ID != "" && r.room.IsActive:
		return StateActive
	case len(r.members) > 0 || r.room.Frame.ID != "":
		return StateAwaitingPresenterContent
	default:
		return StateEmpty
	}
}

func (r *roomImpl) Join(ctx context.Context, id ConnID, conn SignalConnection, role domain.Role, ident domain.Identity) error {
	return r.do(ctx, func() error {
		if _, ok := r.members[id]; ok {
			return domain.ErrDuplicateJoin
		}
		now := r.touch()
		m := &member{id: id, conn: conn, role: role, identity: ident}
		r.members[id] = m

		if role == domain.RolePresenter {
			if r.presenter != "" && r.presenter != id {
				r.logger.Info().Str("conn", string(id)).Str("previous", string(r.presenter)).Msg("presenter reclaimed room")
			}
			r.presenter = id
			r.toConnection(m, r.confirmation(m))
			r.toConnection(m, r.presence())
			r.logger.Info().Str("conn", string(id)).Str("viewer", string(ident.ViewerID)).Msg("presenter joined")
			return nil
		}

		if p, ok := r.room.Viewers[ident.ViewerID]; ok {
			p.DisplayName = ident.DisplayName
			p.LastActivityAt = now
		} else {
			r.room.Viewers[ident.ViewerID] = &domain.Presence{
				ViewerID:       ident.ViewerID,
				DisplayName:    ident.DisplayName,
				JoinedAt:       now,
				LastActivityAt: now,
			}
		}

		r.toConnection(m, r.confirmation(m))
		if r.room.Frame.ID != "" {
			r.toConnection(m, FrameChange{Type: EventFrameChange, Frame: r.room.Frame})
		}
		if r.room.Presentation.ID != "" {
			r.toConnection(m, PresentationEvent{Type: EventPresentationStart, Presentation: r.room.Presentation})
			if r.room.Ended {
				r.toConnection(m, PresentationEvent{Type: EventPresentationEnd, Presentation: r.room.Presentation})
			}
		}
		r.toRoom(r.presence(), id)

		r.logger.Info().
			Str("conn", string(id)).
			Str("viewer", string(ident.ViewerID)).
			Int("viewers", len(r.room.Viewers)).
			Msg("viewer joined")
		return nil
	})
}

func (r *roomImpl) Leave(ctx context.Context, id ConnID) error {
	return r.do(ctx, func() error {
		m, ok := r.members[id]
		if !ok {
			return nil
		}
		r.touch()
		delete(r.members, id)

		if m.role == domain.RolePresenter {
			if r.presenter == id {
				r.presenter = ""
			}
			r.logger.Info().Str("conn", string(id)).Msg("presenter left")
			return nil
		}

		if !r.viewerStillConnected(m.identity.ViewerID) {
			delete(r.room.Viewers, m.identity.ViewerID)
		}
		r.toRoom(r.presence(), "")
		r.logger.Info().
			Str("conn", string(id)).
			Str("viewer", string(m.identity.ViewerID)).
			Int("viewers", len(r.room.Viewers)).
			Msg("viewer left")
		return nil
	})
}

// viewerStillConnected reports whether another connection shares the viewer id.
func (r *roomImpl) viewerStillConnected(v domain.ViewerID) bool {
	for _, m := range r.members {
		if m.role == domain.RoleViewer && m.identity.ViewerID == v {
			return true
		}
	}
	return false
}

func (r *roomImpl) UpdateFrame(ctx context.Context, from ConnID, frame domain.Frame, p domain.Presentation) error {
	return r.do(ctx, func() error {
		if err := r.requirePresenter(from); err != nil {
			return err
		}
		r.touch()
		previous := r.room.Presentation.ID

		r.room.Frame = frame
		r.room.Presentation = p
		r.room.IsActive = true
		r.room.Ended = false

		r.toViewers(FrameChange{Type: EventFrameChange, Frame: frame})
		if p.ID != "" && p.ID != previous {
			r.toViewers(PresentationEvent{Type: EventPresentationStart, Presentation: p})
		}
		r.logger.Debug().Int("frame_index", frame.Index).Str("frame", string(frame.ID)).Msg("frame updated")
		return nil
	})
}

func (r *roomImpl) ChangeFrame(ctx context.Context, from ConnID, index int, frameID domain.FrameID) error {
	return r.do(ctx, func() error {
		if err := r.requirePresenter(from); err != nil {
			return err
		}
		r.touch()
		// The previous payload belongs to the previous frame.
		r.room.Frame = domain.Frame{Index: index, ID: frameID}
		r.toViewers(FrameChange{Type: EventFrameChange, Frame: r.room.Frame})
		r.logger.Debug().Int("frame_index", index).Str("frame", string(frameID)).Msg("frame changed")
		return nil
	})
}

func (r *roomImpl) StartPresentation(ctx context.Context, from ConnID, p domain.Presentation) error {
	return r.do(ctx, func() error {
		if err := r.requirePresenter(from); err != nil {
			return err
		}
		r.touch()
		r.room.Presentation = r.room.Presentation.Merge(p)
		r.room.IsActive = true
		r.room.Ended = false
		r.toViewers(PresentationEvent{Type: EventPresentationStart, Presentation: r.room.Presentation})
		r.logger.Info().Str("presentation", r.room.Presentation.ID).Msg("presentation started")
		return nil
	})
}

func (r *roomImpl) EndPresentation(ctx context.Context, from ConnID) error {
	return r.do(ctx, func() error {
		if err := r.requirePresenter(from); err != nil {
			return err
		}
		r.touch()
		r.room.IsActive = false
		r.room.Ended = true
		r.toViewers(PresentationEvent{Type: EventPresentationEnd, Presentation: r.room.Presentation})
		r.logger.Info().Str("presentation", r.room.Presentation.ID).Msg("presentation ended")
		return nil
	})
}

func (r *roomImpl) SubmitResponse(ctx context.Context, from ConnID, s domain.Submission) (domain.Response, error) {
	var resp domain.Response
	err := r.do(ctx, func() error {
		m, ok := r.members[from]
		if !ok || m.role != domain.RoleViewer {
			return domain.ErrUnauthorized
		}
		now := r.touch()
		resp = domain.Response{
			FrameID:     s.FrameID,
			ElementID:   s.ElementID,
			Value:       s.Value,
			Timestamp:   now,
			ViewerID:    m.identity.ViewerID,
			DisplayName: m.identity.DisplayName,
		}
		r.room.PutResponse(resp)
		if p, ok := r.room.Viewers[m.identity.ViewerID]; ok {
			p.LastActivityAt = now
		}

		r.toRoom(ResponseBroadcast{Type: EventResponseBroadcast, Response: resp}, "")
		r.toPresenter(r.aggregate(s.FrameID))
		return nil
	})
	return resp, err
}

func (r *roomImpl) ClearFrameResponses(ctx context.Context, from ConnID, frameID domain.FrameID) error {
	return r.do(ctx, func() error {
		if err := r.requirePresenter(from); err != nil {
			return err
		}
		r.touch()
		delete(r.room.Responses, frameID)

		r.toViewers(ContentReset{Type: EventContentReset, FrameID: frameID})
		r.toPresenter(r.aggregate(frameID))
		r.logger.Info().Str("frame", string(frameID)).Msg("frame responses cleared")
		return nil
	})
}

func (r *roomImpl) QueryResponses(ctx context.Context, from ConnID, frameID domain.FrameID) error {
	return r.do(ctx, func() error {
		if err := r.requirePresenter(from); err != nil {
			return err
		}
		r.toPresenter(r.aggregate(frameID))
		return nil
	})
}

func (r *roomImpl) Snapshot(ctx context.Context) (RoomInfo, error) {
	var info RoomInfo
	err := r.do(ctx, func() error {
		info = r.info()
		return nil
	})
	return info, err
}

func (r *roomImpl) CloseIfIdle(ctx context.Context, cutoff time.Time) (bool, error) {
	var closed bool
	err := r.do(ctx, func() error {
		if len(r.members) > 0 || r.room.LastActivityAt.After(cutoff) {
			return nil
		}
		r.stop = true
		closed = true
		return nil
	})
	return closed, err
}

func (r *roomImpl) info() RoomInfo {
	return RoomInfo{
		Code:           r.code,
		State:          r.state(),
		HasPresenter:   r.presenter != "",
		ViewerCount:    len(r.room.Viewers),
		Connections:    len(r.members),
		FrameIndex:     r.room.Frame.Index,
		FrameID:        r.room.Frame.ID,
		Presentation:   r.room.Presentation,
		IsActive:       r.room.IsActive,
		CreatedAt:      r.room.CreatedAt,
		LastActivityAt: r.room.LastActivityAt,
	}
}

func (r *roomImpl) confirmation(m *member) ConnectionConfirmed {
	return ConnectionConfirmed{
		Type:        EventConnectionConfirmed,
		Room:        r.code,
		Role:        m.role,
		ViewerID:    m.identity.ViewerID,
		ViewerCount: len(r.room.Viewers),
	}
}
