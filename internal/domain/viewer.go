// Package domain contains room entities without transport or lifecycle logic.
package domain

import (
	"fmt"
	"time"
)

const (
	MaxViewerIDLen    = 64
	MaxDisplayNameLen = 64
)

type ViewerID string

// Identity is what a connection declares about itself on join.
// Presenters carry one too; it is only used for logs and confirmations.
type Identity struct {
	ViewerID    ViewerID `json:"viewerId"`
	DisplayName string   `json:"displayName"`
}

// NewIdentity validates the identity half of a join request.
func NewIdentity(viewerID, displayName string) (Identity, error) {
	if viewerID == "" {
		return Identity{}, fmt.Errorf("viewerId is required: %w", ErrInvalidJoinRequest)
	}
	if len(viewerID) > MaxViewerIDLen {
		return Identity{}, fmt.Errorf("viewerId too long: %w", ErrInvalidJoinRequest)
	}
	if displayName == "" {
		return Identity{}, fmt.Errorf("displayName is required: %w", ErrInvalidJoinRequest)
	}
	if len(displayName) > MaxDisplayNameLen {
		return Identity{}, fmt.Errorf("displayName too long: %w", ErrInvalidJoinRequest)
	}
	return Identity{ViewerID: ViewerID(viewerID), DisplayName: displayName}, nil
}

// Presence is a viewer's membership record inside a room.
type Presence struct {
	ViewerID       ViewerID  `json:"viewerId"`
	DisplayName    string    `json:"displayName"`
	JoinedAt       time.Time `json:"joinedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}
