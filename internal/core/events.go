package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Podium/internal/domain"
)

// Outbound event types.
const (
	EventConnectionConfirmed = "connection-confirmed"
	EventPresenceUpdate      = "presence-update"
	EventFrameChange         = "frame-change"
	EventPresentationStart   = "presentation-start"
	EventPresentationEnd     = "presentation-end"
	EventResponseBroadcast   = "response-broadcast"
	EventAggregatedResponses = "aggregated-responses"
	EventContentReset        = "content-reset"
	EventProtocolError       = "protocol-error"
	EventPong                = "pong"
)

type ConnectionConfirmed struct {
	Type        string          `json:"type"`
	Room        domain.RoomCode `json:"room"`
	Role        domain.Role     `json:"role"`
	ViewerID    domain.ViewerID `json:"viewerId"`
	ViewerCount int             `json:"viewerCount"`
}

// ViewerDTO is the public view of a presence record.
type ViewerDTO struct {
	ViewerID    domain.ViewerID `json:"viewerId"`
	DisplayName string          `json:"displayName"`
	JoinedAt    time.Time       `json:"joinedAt"`
}

type PresenceUpdate struct {
	Type        string      `json:"type"`
	ViewerCount int         `json:"viewerCount"`
	ViewerList  []ViewerDTO `json:"viewerList"`
}

type FrameChange struct {
	Type string `json:"type"`
	domain.Frame
}

type PresentationEvent struct {
	Type string `json:"type"`
	domain.Presentation
}

type ResponseBroadcast struct {
	Type string `json:"type"`
	domain.Response
}

type AggregatedResponses struct {
	Type        string            `json:"type"`
	FrameID     domain.FrameID    `json:"frameId"`
	Responses   []domain.Response `json:"responses"`
	ViewerCount int               `json:"viewerCount"`
}

type ContentReset struct {
	Type    string         `json:"type"`
	FrameID domain.FrameID `json:"frameId"`
}

type ProtocolError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Pong struct {
	Type string `json:"type"`
}

// Encode marshals an outbound event into a Packet.
func Encode(v any) (Packet, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Packet(b), nil
}
