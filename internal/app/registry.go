package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Podium/internal/core"
	"github.com/dkeye/Podium/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrUnknownConnection is returned for ids the registry never issued or already dropped.
var ErrUnknownConnection = errors.New("unknown connection")

// Entry is everything known about one live connection.
// Room is empty until the connection has joined.
type Entry struct {
	Conn     core.SignalConnection
	Room     domain.RoomCode
	Role     domain.Role
	Identity domain.Identity
	Cancel   context.CancelFunc
}

// Registry is the connection registry: connection id to entry.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*Entry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnID]*Entry)}
}

// Register mints a fresh connection id for conn.
func (r *Registry) Register(conn core.SignalConnection, cancel context.CancelFunc) core.ConnID {
	id := core.ConnID(uuid.NewString())
	r.mu.Lock()
	r.conns[id] = &Entry{Conn: conn, Cancel: cancel}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("registered connection")
	return id
}

// Lookup returns a copy of the entry.
func (r *Registry) Lookup(id core.ConnID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// DeclareRole records the room membership of a connection.
// A connection is in at most one room at a time.
func (r *Registry) DeclareRole(id core.ConnID, code domain.RoomCode, role domain.Role, ident domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	if e.Room != "" {
		return domain.ErrDuplicateJoin
	}
	e.Room, e.Role, e.Identity = code, role, ident
	log.Info().
		Str("module", "app.registry").
		Str("conn", string(id)).
		Str("room", string(code)).
		Str("role", string(role)).
		Msg("declared role")
	return nil
}

// Release forgets the room membership but keeps the connection.
func (r *Registry) Release(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.Room, e.Role, e.Identity = "", "", domain.Identity{}
	}
}

// Unregister removes the connection and returns what it held. Safe to call twice.
func (r *Registry) Unregister(id core.ConnID) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return Entry{}, false
	}
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered connection")
	return *e, true
}

// Cancel stops the connection's pumps. The adapter finishes cleanup.
func (r *Registry) Cancel(id core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("canceled connection")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
