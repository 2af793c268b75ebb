package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Podium/internal/domain"
)

// ErrRoomClosed is returned once a room goroutine has stopped.
var ErrRoomClosed = errors.New("room closed")

// RoomState is derived from the room fields, never stored.
type RoomState string

const (
	StateEmpty                    RoomState = "empty"
	StateAwaitingPresenterContent RoomState = "awaiting_presenter_content"
	StateActive                   RoomState = "active"
	StateEnded                    RoomState = "ended"
)

// RoomInfo is a read-only snapshot for APIs.
type RoomInfo struct {
	Code           domain.RoomCode     `json:"code"`
	State          RoomState           `json:"state"`
	HasPresenter   bool                `json:"hasPresenter"`
	ViewerCount    int                 `json:"viewerCount"`
	Connections    int                 `json:"connections"`
	FrameIndex     int                 `json:"frameIndex"`
	FrameID        domain.FrameID      `json:"frameId,omitempty"`
	Presentation   domain.Presentation `json:"presentation"`
	IsActive       bool                `json:"isActive"`
	CreatedAt      time.Time           `json:"createdAt"`
	LastActivityAt time.Time           `json:"lastActivityAt"`
}

// RoomService is the core-facing API of one room.
// Every call is applied by the room goroutine in arrival order and
// returns once the call and all of its deliveries have been made.
type RoomService interface {
	Code() domain.RoomCode

	Join(ctx context.Context, id ConnID, conn SignalConnection, role domain.Role, ident domain.Identity) error
	Leave(ctx context.Context, id ConnID) error

	UpdateFrame(ctx context.Context, from ConnID, frame domain.Frame, p domain.Presentation) error
	ChangeFrame(ctx context.Context, from ConnID, index int, frameID domain.FrameID) error
	StartPresentation(ctx context.Context, from ConnID, p domain.Presentation) error
	EndPresentation(ctx context.Context, from ConnID) error

	SubmitResponse(ctx context.Context, from ConnID, s domain.Submission) (domain.Response, error)
	ClearFrameResponses(ctx context.Context, from ConnID, frameID domain.FrameID) error
	QueryResponses(ctx context.Context, from ConnID, frameID domain.FrameID) error

	Snapshot(ctx context.Context) (RoomInfo, error)
	// CloseIfIdle stops the room when it has no connections and has seen no
	// activity since cutoff. It reports whether the room stopped.
	CloseIfIdle(ctx context.Context, cutoff time.Time) (bool, error)
	// Close stops the room goroutine. Later calls return ErrRoomClosed.
	Close()
	Done() <-chan struct{}
}

// RoomManager is the room store: rooms keyed by code.
type RoomManager interface {
	GetOrCreate(code domain.RoomCode) RoomService
	Get(code domain.RoomCode) (RoomService, bool)
	List(ctx context.Context) []RoomInfo
	StopRoom(code domain.RoomCode)
}

// DropFunc is told about every connection whose buffer rejected an event.
// It runs on the room goroutine and must not call back into the room.
type DropFunc func(code domain.RoomCode, id ConnID, conn SignalConnection)

type RoomOptions struct {
	InboxSize int
	Now       func() time.Time
	OnDropped DropFunc
}
