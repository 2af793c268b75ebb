package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Podium/internal/core"
	"github.com/dkeye/Podium/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode]core.RoomService

	ctx  context.Context
	opts core.RoomOptions
}

// NewRoomManager creates the room store. Rooms live until ctx is done,
// StopRoom is called, or the sweeper closes them.
func NewRoomManager(ctx context.Context, opts core.RoomOptions) *RoomManagerImpl {
	return &RoomManagerImpl{
		rooms: make(map[domain.RoomCode]core.RoomService),
		ctx:   ctx,
		opts:  opts,
	}
}

func (f *RoomManagerImpl) GetOrCreate(code domain.RoomCode) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[code]
	f.mu.RUnlock()
	if ok && !isClosed(room) {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[code]; ok && !isClosed(room) {
		return room
	}
	room = core.NewRoomService(f.ctx, code, f.opts)
	f.rooms[code] = room
	return room
}

func (f *RoomManagerImpl) Get(code domain.RoomCode) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[code]
	if !ok || isClosed(room) {
		return nil, false
	}
	return room, true
}

func (f *RoomManagerImpl) List(ctx context.Context) []core.RoomInfo {
	out := make([]core.RoomInfo, 0)
	for _, room := range f.snapshot() {
		info, err := room.Snapshot(ctx)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (f *RoomManagerImpl) StopRoom(code domain.RoomCode) {
	f.mu.Lock()
	room, ok := f.rooms[code]
	delete(f.rooms, code)
	f.mu.Unlock()
	if ok {
		room.Close()
		log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("room stopped")
	}
}

func (f *RoomManagerImpl) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms)
}

// Sweep closes rooms without connections that were idle for ttl.
func (f *RoomManagerImpl) Sweep(ctx context.Context, now time.Time, ttl time.Duration) int {
	cutoff := now.Add(-ttl)
	removed := 0
	for _, room := range f.snapshot() {
		closed, err := room.CloseIfIdle(ctx, cutoff)
		if err != nil && !errors.Is(err, core.ErrRoomClosed) {
			log.Warn().Err(err).Str("module", "app.rooms").Str("room", string(room.Code())).Msg("sweep failed")
			continue
		}
		if !closed && err == nil {
			continue
		}
		f.mu.Lock()
		if f.rooms[room.Code()] == room {
			delete(f.rooms, room.Code())
			removed++
		}
		f.mu.Unlock()
	}
	if removed > 0 {
		log.Info().Str("module", "app.rooms").Int("removed", removed).Int("left", f.Len()).Msg("swept idle rooms")
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done. ttl <= 0 disables it.
func (f *RoomManagerImpl) RunSweeper(ctx context.Context, interval, ttl time.Duration) error {
	if ttl <= 0 || interval <= 0 {
		log.Info().Str("module", "app.rooms").Msg("idle sweep disabled")
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			f.Sweep(ctx, now, ttl)
		}
	}
}

func (f *RoomManagerImpl) snapshot() []core.RoomService {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomService, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, r)
	}
	return out
}

func isClosed(room core.RoomService) bool {
	select {
	case <-room.Done():
		return true
	default:
		return false
	}
}
