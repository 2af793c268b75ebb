package core

import "github.com/dkeye/Podium/internal/domain"

// ConnID identifies one physical connection. It is never reused.
type ConnID string

// member is a connection admitted into a room.
type member struct {
	id       ConnID
	conn     SignalConnection
	role     domain.Role
	identity domain.Identity
}
