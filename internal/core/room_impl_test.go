package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Podium/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFull = errors.New("buffer full")

type fakeConn struct {
	mu     sync.Mutex
	events []map[string]any
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(p Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errFull
	}
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return err
	}
	c.events = append(c.events, m)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e["type"].(string))
	}
	return out
}

func (c *fakeConn) last(typ string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i]["type"] == typ {
			return c.events[i]
		}
	}
	return nil
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestRoom(t *testing.T, opts RoomOptions) RoomService {
	t.Helper()
	if opts.Now == nil {
		opts.Now = (&clock{now: time.Unix(1700000000, 0)}).Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRoomService(ctx, "ABC1", opts)
}

func ident(t *testing.T, id, name string) domain.Identity {
	t.Helper()
	i, err := domain.NewIdentity(id, name)
	require.NoError(t, err)
	return i
}

func TestRoom_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	room := newTestRoom(t, RoomOptions{})

	p, v1, v2 := &fakeConn{}, &fakeConn{}, &fakeConn{}

	require.NoError(t, room.Join(ctx, "p", p, domain.RolePresenter, ident(t, "host", "Host")))
	require.NoError(t, room.UpdateFrame(ctx, "p",
		domain.Frame{Index: 0, ID: "s1", Data: json.RawMessage(`{"q":"color?"}`)}, domain.Presentation{}))

	require.NoError(t, room.Join(ctx, "c1", v1, domain.RoleViewer, ident(t, "V1", "Ana")))
	fc := v1.last(EventFrameChange)
	require.NotNil(t, fc)
	assert.EqualValues(t, 0, fc["frameIndex"])
	assert.Equal(t, "s1", fc["frameId"])
	assert.Equal(t, map[string]any{"q": "color?"}, fc["frameData"])

	resp, err := room.SubmitResponse(ctx, "c1", domain.Submission{FrameID: "s1", ElementID: "interactive", Value: json.RawMessage(`"blue"`)})
	require.NoError(t, err)
	assert.Equal(t, domain.ViewerID("V1"), resp.ViewerID)
	assert.NotNil(t, v1.last(EventResponseBroadcast))
	assert.NotNil(t, p.last(EventResponseBroadcast))

	agg := p.last(EventAggregatedResponses)
	require.NotNil(t, agg)
	list := agg["responses"].([]any)
	require.Len(t, list, 1)
	entry := list[0].(map[string]any)
	assert.Equal(t, "blue", entry["value"])
	assert.Equal(t, "V1", entry["viewerId"])

	require.NoError(t, room.Join(ctx, "c2", v2, domain.RoleViewer, ident(t, "V2", "Ben")))
	assert.Equal(t, []string{EventConnectionConfirmed, EventFrameChange}, v2.types())
	assert.Nil(t, v2.last(EventResponseBroadcast))

	p.reset()
	require.NoError(t, room.ClearFrameResponses(ctx, "p", "s1"))
	for _, v := range []*fakeConn{v1, v2} {
		reset := v.last(EventContentReset)
		require.NotNil(t, reset)
		assert.Equal(t, "s1", reset["frameId"])
	}
	assert.Nil(t, p.last(EventContentReset))

	p.reset()
	require.NoError(t, room.QueryResponses(ctx, "p", "s1"))
	agg = p.last(EventAggregatedResponses)
	require.NotNil(t, agg)
	assert.Empty(t, agg["responses"])
}

func TestRoom_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	room := newTestRoom(t, RoomOptions{})
	p, v := &fakeConn{}, &fakeConn{}

	require.NoError(t, room.Join(ctx, "p", p, domain.RolePresenter, ident(t, "host", "Host")))
	require.NoError(t, room.Join(ctx, "c1", v, domain.RoleViewer, ident(t, "V1", "Ana")))

	for _, val := range []string{`"red"`, `"blue"`} {
		_, err := room.SubmitResponse(ctx, "c1", domain.Submission{FrameID: "s1", ElementID: "e", Value: json.RawMessage(val)})
		require.NoError(t, err)
	}

	list := p.last(EventAggregatedResponses)["responses"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "blue", list[0].(map[string]any)["value"])
}

func TestRoom_Authorization(t *testing.T) {
	ctx := context.Background()
	room := newTestRoom(t, RoomOptions{})
	p, v := &fakeConn{}, &fakeConn{}

	require.NoError(t, room.Join(ctx, "p", p, domain.RolePresenter, ident(t, "host", "Host")))
	require.NoError(t, room.Join(ctx, "c1", v, domain.RoleViewer, ident(t, "V1", "Ana")))

	assert.ErrorIs(t, room.UpdateFrame(ctx, "c1", domain.Frame{ID: "s1"}, domain.Presentation{}), domain.ErrUnauthorized)
	assert.ErrorIs(t, room.ChangeFrame(ctx, "c1", 1, "s2"), domain.ErrUnauthorized)
	assert.ErrorIs(t, room.StartPresentation(ctx, "c1", domain.Presentation{ID: "x"}), domain.ErrUnauthorized)
	assert.ErrorIs(t, room.EndPresentation(ctx, "c1"), domain.ErrUnauthorized)
	assert.ErrorIs(t, room.ClearFrameResponses(ctx, "c1", "s1"), domain.ErrUnauthorized)
	assert.ErrorIs(t, room.QueryResponses(ctx, "c1", "s1"), domain.ErrUnauthorized)
	assert.ErrorIs(t, room.UpdateFrame(ctx, "stranger", domain.Frame{ID: "s1"}, domain.Presentation{}), domain.ErrUnauthorized)

	_, err := room.SubmitResponse(ctx, "p", domain.Submission{FrameID: "s1", ElementID: "e", Value: json.RawMessage(`1`)})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	info, err := room.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, info.FrameID)
}

func TestRoom_DuplicateConnection(t *testing.T) {
	ctx := context.Background()
	room := newTestRoom(t, RoomOptions{})
	v := &fakeConn{}

	require.NoError(t, room.Join(ctx, "c1", v, domain.RoleViewer, ident(t, "V1", "Ana")))
	assert.ErrorIs(t, room.Join(ctx, "c1", v, domain.RoleViewer, ident(t, "V1", "Ana")), domain.ErrDuplicateJoin)
}

func TestRoom_PresenceFollowsConnections(t *testing.T) {
	ctx := context.Background()
	room := newTestRoom(t, RoomOptions{})
	p, tab1, tab2 := &fakeConn{}, &fakeConn{}, &fakeConn{}

	require.NoError(t, room.Join(ctx, "p", p, domain.RolePresenter, ident(t, "host", "Host")))
	require.NoError(t, room.Join(ctx, "c1", tab1, domain.RoleViewer, ident(t, "V1", "Ana")))
	require.NoError(t, room.Join(ctx, "c2", tab2, domain.RoleViewer, ident(t, "V1", "Ana")))

	pu := p.last(EventPresenceUpdate)
	assert.EqualValues(t, 1, pu["viewerCount"])
	assert.Nil(t, tab2.last(EventPresenceUpdate), "joiner is not told about itself")

	require.NoError(t, room.Leave(ctx, "c1"))
	assert.EqualValues(t, 1, p.last(EventPresenceUpdate)["viewerCount"])

	require.NoError(t, room.Leave(ctx, "c2"))
	pu = p.last(EventPresenceUpdate)
	assert.EqualValues(t, 0, pu["viewerCount"])
	assert.Empty(t, pu["viewerList"])

	// Leaving twice is harmless.
	require.NoError(t, room.Leave(ctx, "c2"))
}

func TestRoom_PresenterReclaimAndLeave(t *testing.T) {
	ctx := context.Background()
	room := newTestRoom(t, RoomOptions{})
	p1, p2, v := &fakeConn{}, &fakeConn{}, &fakeConn{}

	require.NoError(t, room.Join(ctx, "p1", p1, domain.RolePresenter, ident(t, "host", "Host")))
	require.NoError(t, room.Join(ctx, "p2", p2, domain.RolePresenter, ident(t, "host", "Host")))
	require.NoError(t, room.Join(ctx, "c1", v, domain.RoleViewer, ident(t, "V1", "Ana")))

	assert.ErrorIs(t, room.ChangeFrame(ctx, "p1", 1, "s2"), domain.ErrUnauthorized)
	require.NoError(t, room.ChangeFrame(ctx, "p2", 1, "s2"))

	// The stale presenter leaving must not unseat the current one.
	v.reset()
	require.NoError(t, room.Leave(ctx, "p1"))
	assert.Empty(t, v.types())

	info, err := room.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, info.HasPresenter)

	require.NoError(t, room.Leave(ctx, "p2"))
	info, err = room.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, info.HasPresenter)
	assert.Equal(t, 1, info.ViewerCount)
}

func TestRoom_ChangeFrameDropsStaleData(t *testing.T) {
	ctx := context.Background()
	room := newTestRoom(t, RoomOptions{})
	p, v := &fakeConn{}, &fakeConn{}

	require.NoError(t, room.Join(ctx, "p", p, domain.RolePresenter, ident(t, "host", "Host")))
	require.NoError(t, room.UpdateFrame(ctx, "p", domain.Frame{Index: 0, ID: "s1", Data: json.RawMessage(`{"a":1}`)}, domain.Presentation{}))
	require.NoError(t, room.ChangeFrame(ctx, "p", 3, "s4"))

	require.NoError(t, room.Join(ctx, "c1", v, domain.RoleViewer, ident(t, "V1", "Ana")))
	fc := v.last(EventFrameChange)
	require.NotNil(t, fc)
	assert.EqualValues(t, 3, fc["frameIndex"])
	assert.Equal(t, "s4", fc["frameId"])
	_, hasData := fc["frameData"]
	assert.False(t, hasData)
}

func TestRoom_PresentationLifecycle(t *testing.T) {
	ctx := context.Background()
	room := newTestRoom(t, RoomOptions{})
	p, v1, v2 := &fakeConn{}, &fakeConn{}, &fakeConn{}

	require.NoError(t, room.Join(ctx, "p", p, domain.RolePresenter, ident(t, "host", "Host")))
	require.NoError(t, room.Join(ctx, "c1", v1, domain.RoleViewer, ident(t, "V1", "Ana")))

	info, err := room.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPresenterContent, info.State)

	require.NoError(t, room.UpdateFrame(ctx, "p", domain.Frame{ID: "s1"}, domain.Presentation{ID: "deck", Title: "Colors", TotalFrames: 3}))
	start := v1.last(EventPresentationStart)
	require.NotNil(t, start)
	assert.Equal(t, "deck", start["presentationId"])

	info, err = room.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateActive, info.State)

	require.NoError(t, room.EndPresentation(ctx, "p"))
	end := v1.last(EventPresentationEnd)
	require.NotNil(t, end)
	assert.Equal(t, "Colors", end["title"])

	require.NoError(t, room.Join(ctx, "c2", v2, domain.RoleViewer, ident(t, "V2", "Ben")))
	assert.Equal(t, []string{EventConnectionConfirmed, EventFrameChange, EventPresentationStart, EventPresentationEnd}, v2.types())

	info, err = room.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateEnded, info.State)

	require.NoError(t, room.StartPresentation(ctx, "p", domain.Presentation{Title: "Colors 2"}))
	info, err = room.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateActive, info.State)
	assert.Equal(t, "deck", info.Presentation.ID)
	assert.Equal(t, "Colors 2", info.Presentation.Title)
}

func TestRoom_DroppedSendsReachHandler(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var dropped []ConnID
	room := newTestRoom(t, RoomOptions{OnDropped: func(_ domain.RoomCode, id ConnID, _ SignalConnection) {
		mu.Lock()
		dropped = append(dropped, id)
		mu.Unlock()
	}})

	p, slow := &fakeConn{}, &fakeConn{full: true}
	require.NoError(t, room.Join(ctx, "p", p, domain.RolePresenter, ident(t, "host", "Host")))
	require.NoError(t, room.Join(ctx, "slow", slow, domain.RoleViewer, ident(t, "V1", "Ana")))
	require.NoError(t, room.ChangeFrame(ctx, "p", 1, "s2"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ConnID{"slow", "slow"}, dropped)
}

func TestRoom_CloseIfIdle(t *testing.T) {
	ctx := context.Background()
	room := newTestRoom(t, RoomOptions{})
	v := &fakeConn{}

	require.NoError(t, room.Join(ctx, "c1", v, domain.RoleViewer, ident(t, "V1", "Ana")))

	closed, err := room.CloseIfIdle(ctx, time.Now().Add(time.Hour*24*365*100))
	require.NoError(t, err)
	assert.False(t, closed, "rooms with connections stay open")

	require.NoError(t, room.Leave(ctx, "c1"))
	closed, err = room.CloseIfIdle(ctx, time.Unix(0, 0))
	require.NoError(t, err)
	assert.False(t, closed, "recent activity keeps the room open")

	closed, err = room.CloseIfIdle(ctx, time.Now().Add(time.Hour*24*365*100))
	require.NoError(t, err)
	assert.True(t, closed)

	<-room.Done()
	_, err = room.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestRoom_DashedIDsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	room := newTestRoom(t, RoomOptions{})
	p, a, b := &fakeConn{}, &fakeConn{}, &fakeConn{}

	require.NoError(t, room.Join(ctx, "p", p, domain.RolePresenter, ident(t, "host", "Host")))
	require.NoError(t, room.Join(ctx, "c1", a, domain.RoleViewer, ident(t, "v-x", "Ana")))
	require.NoError(t, room.Join(ctx, "c2", b, domain.RoleViewer, ident(t, "v", "Ben")))

	_, err := room.SubmitResponse(ctx, "c1", domain.Submission{FrameID: "x", ElementID: "e", Value: json.RawMessage(`"A"`)})
	require.NoError(t, err)
	_, err = room.SubmitResponse(ctx, "c2", domain.Submission{FrameID: "x", ElementID: "x-e", Value: json.RawMessage(`"B"`)})
	require.NoError(t, err)

	list := p.last(EventAggregatedResponses)["responses"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "v-x", list[0].(map[string]any)["viewerId"])
	assert.Equal(t, "v", list[1].(map[string]any)["viewerId"])
}

func TestRoom_ClearTwiceThenFreshAggregate(t *testing.T) {
	ctx := context.Background()
	room := newTestRoom(t, RoomOptions{})
	p, v := &fakeConn{}, &fakeConn{}

	require.NoError(t, room.Join(ctx, "p", p, domain.RolePresenter, ident(t, "host", "Host")))
	require.NoError(t, room.Join(ctx, "c1", v, domain.RoleViewer, ident(t, "V1", "Ana")))

	for i, val := range []string{`"red"`, `"blue"`} {
		_, err := room.SubmitResponse(ctx, "c1", domain.Submission{FrameID: "s1", ElementID: fmt.Sprintf("e%d", i), Value: json.RawMessage(val)})
		require.NoError(t, err)
	}
	require.Len(t, p.last(EventAggregatedResponses)["responses"], 2)

	for i := 0; i < 2; i++ {
		p.reset()
		require.NoError(t, room.ClearFrameResponses(ctx, "p", "s1"))
		agg := p.last(EventAggregatedResponses)
		require.NotNil(t, agg, "clear %d", i+1)
		assert.Empty(t, agg["responses"], "clear %d", i+1)
		assert.Equal(t, "s1", v.last(EventContentReset)["frameId"])
	}

	_, err := room.SubmitResponse(ctx, "c1", domain.Submission{FrameID: "s1", ElementID: "e", Value: json.RawMessage(`"green"`)})
	require.NoError(t, err)
	list := p.last(EventAggregatedResponses)["responses"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "green", list[0].(map[string]any)["value"])
}

func TestRoom_LateJoinGetsOnlyLatestFrame(t *testing.T) {
	tests := []struct {
		name    string
		updates int
	}{
		{name: "three updates", updates: 3},
		{name: "ten updates", updates: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			room := newTestRoom(t, RoomOptions{})
			p, v := &fakeConn{}, &fakeConn{}

			require.NoError(t, room.Join(ctx, "p", p, domain.RolePresenter, ident(t, "host", "Host")))
			for i := 0; i < tt.updates; i++ {
				frame := domain.Frame{
					Index: i,
					ID:    domain.FrameID(fmt.Sprintf("s%d", i+1)),
					Data:  json.RawMessage(fmt.Sprintf(`{"n":%d}`, i+1)),
				}
				require.NoError(t, room.UpdateFrame(ctx, "p", frame, domain.Presentation{}))
			}

			require.NoError(t, room.Join(ctx, "late", v, domain.RoleViewer, ident(t, "V1", "Ana")))
			assert.Equal(t, []string{EventConnectionConfirmed, EventFrameChange}, v.types())

			fc := v.last(EventFrameChange)
			assert.EqualValues(t, tt.updates-1, fc["frameIndex"])
			assert.Equal(t, fmt.Sprintf("s%d", tt.updates), fc["frameId"])
			assert.Equal(t, map[string]any{"n": float64(tt.updates)}, fc["frameData"])
		})
	}
}
