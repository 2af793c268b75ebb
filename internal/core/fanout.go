package core

import (
	"sort"

	"github.com/dkeye/Podium/internal/domain"
)

// Fan-out helpers. They run on the room goroutine and never block:
// a rejected send is queued for the drop handler.

func (r *roomImpl) send(m *member, pkt Packet) {
	if err := m.conn.TrySend(pkt); err != nil {
		r.dropped = append(r.dropped, m)
	}
}

func (r *roomImpl) encode(v any) (Packet, bool) {
	pkt, err := Encode(v)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode event")
		return nil, false
	}
	return pkt, true
}

func (r *roomImpl) toConnection(m *member, v any) {
	if pkt, ok := r.encode(v); ok {
		r.send(m, pkt)
	}
}

// toRoom delivers to every member except the given connection.
func (r *roomImpl) toRoom(v any, except ConnID) {
	pkt, ok := r.encode(v)
	if !ok {
		return
	}
	for id, m := range r.members {
		if id == except {
			continue
		}
		r.send(m, pkt)
	}
}

func (r *roomImpl) toViewers(v any) {
	pkt, ok := r.encode(v)
	if !ok {
		return
	}
	for _, m := range r.members {
		if m.role == domain.RoleViewer {
			r.send(m, pkt)
		}
	}
}

func (r *roomImpl) toPresenter(v any) {
	if r.presenter == "" {
		return
	}
	if m, ok := r.members[r.presenter]; ok {
		r.toConnection(m, v)
	}
}

func (r *roomImpl) presence() PresenceUpdate {
	list := make([]ViewerDTO, 0, len(r.room.Viewers))
	for _, p := range r.room.Viewers {
		list = append(list, ViewerDTO{ViewerID: p.ViewerID, DisplayName: p.DisplayName, JoinedAt: p.JoinedAt})
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		return list[i].ViewerID < list[j].ViewerID
	})
	return PresenceUpdate{Type: EventPresenceUpdate, ViewerCount: len(list), ViewerList: list}
}

func (r *roomImpl) aggregate(frameID domain.FrameID) AggregatedResponses {
	stored := r.room.Responses[frameID]
	keys := make([]domain.ResponseKey, 0, len(stored))
	for k := range stored {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := stored[keys[i]], stored[keys[j]]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return keys[i].Less(keys[j])
	})
	list := make([]domain.Response, 0, len(keys))
	for _, k := range keys {
		list = append(list, stored[k])
	}
	return AggregatedResponses{
		Type:        EventAggregatedResponses,
		FrameID:     frameID,
		Responses:   list,
		ViewerCount: len(r.room.Viewers),
	}
}
