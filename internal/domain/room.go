package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const MaxRoomCodeLen = 36

type (
	RoomCode string
	FrameID  string
)

func ParseRoomCode(s string) (RoomCode, error) {
	if s == "" {
		return "", fmt.Errorf("room code is required: %w", ErrInvalidJoinRequest)
	}
	if len(s) > MaxRoomCodeLen {
		return "", fmt.Errorf("room code too long: %w", ErrInvalidJoinRequest)
	}
	return RoomCode(s), nil
}

// Frame is the presenter's current content. Data is relayed verbatim.
type Frame struct {
	Index int             `json:"frameIndex"`
	ID    FrameID         `json:"frameId"`
	Data  json.RawMessage `json:"frameData,omitempty"`
}

type Presentation struct {
	ID          string `json:"presentationId"`
	Title       string `json:"title"`
	TotalFrames int    `json:"totalFrames"`
}

// Merge overlays the non-empty fields of p onto the receiver.
func (cur Presentation) Merge(p Presentation) Presentation {
	if p.ID != "" {
		cur.ID = p.ID
	}
	if p.Title != "" {
		cur.Title = p.Title
	}
	if p.TotalFrames > 0 {
		cur.TotalFrames = p.TotalFrames
	}
	return cur
}

// Submission is a viewer's answer for one element of one frame.
type Submission struct {
	FrameID   FrameID
	ElementID string
	Value     json.RawMessage
}

func (s Submission) Validate() error {
	if s.FrameID == "" {
		return fmt.Errorf("frameId is required: %w", ErrBadPayload)
	}
	if s.ElementID == "" {
		return fmt.Errorf("elementId is required: %w", ErrBadPayload)
	}
	if len(s.Value) == 0 || string(s.Value) == "null" {
		return fmt.Errorf("value is required: %w", ErrBadPayload)
	}
	return nil
}

type Response struct {
	FrameID     FrameID         `json:"frameId"`
	ElementID   string          `json:"elementId"`
	Value       json.RawMessage `json:"value"`
	Timestamp   time.Time       `json:"timestamp"`
	ViewerID    ViewerID        `json:"viewerId"`
	DisplayName string          `json:"displayName"`
}

// ResponseKey identifies the last-write-wins slot of a response.
// The parts stay separate: client ids may contain any separator.
type ResponseKey struct {
	ViewerID  ViewerID
	FrameID   FrameID
	ElementID string
}

func NewResponseKey(viewer ViewerID, frame FrameID, element string) ResponseKey {
	return ResponseKey{ViewerID: viewer, FrameID: frame, ElementID: element}
}

// Less orders keys by viewer, then frame, then element.
func (k ResponseKey) Less(o ResponseKey) bool {
	if k.ViewerID != o.ViewerID {
		return k.ViewerID < o.ViewerID
	}
	if k.FrameID != o.FrameID {
		return k.FrameID < o.FrameID
	}
	return k.ElementID < o.ElementID
}

// Room is the aggregate the room goroutine owns. Nothing else may touch it.
type Room struct {
	Code         RoomCode
	Viewers      map[ViewerID]*Presence
	Frame        Frame
	Presentation Presentation
	IsActive     bool
	// Ended is set by an explicit end and cleared by the next start or frame update.
	Ended     bool
	Responses map[FrameID]map[ResponseKey]Response

	CreatedAt      time.Time
	LastActivityAt time.Time
}

func NewRoom(code RoomCode, now time.Time) *Room {
	return &Room{
		Code:           code,
		Viewers:        make(map[ViewerID]*Presence),
		Responses:      make(map[FrameID]map[ResponseKey]Response),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// PutResponse stores r under its composite key, replacing any previous value.
func (r *Room) PutResponse(resp Response) {
	frame, ok := r.Responses[resp.FrameID]
	if !ok {
		frame = make(map[ResponseKey]Response)
		r.Responses[resp.FrameID] = frame
	}
	frame[NewResponseKey(resp.ViewerID, resp.FrameID, resp.ElementID)] = resp
}
