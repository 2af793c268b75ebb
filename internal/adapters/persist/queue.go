package persist

import (
	"context"
	"time"

	"github.com/dkeye/Podium/internal/domain"
	"github.com/rs/zerolog/log"
)

type item struct {
	code domain.RoomCode
	resp domain.Response
}

// Queue decouples room goroutines from slow stores. Offer never blocks;
// responses offered to a full queue are dropped and logged.
type Queue struct {
	sink    ResponseSink
	items   chan item
	timeout time.Duration
}

func NewQueue(sink ResponseSink, size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{sink: sink, items: make(chan item, size), timeout: 5 * time.Second}
}

func (q *Queue) Offer(code domain.RoomCode, resp domain.Response) bool {
	select {
	case q.items <- item{code: code, resp: resp}:
		return true
	default:
		log.Warn().
			Str("module", "persist").
			Str("room", string(code)).
			Str("viewer", string(resp.ViewerID)).
			Msg("persist queue full, response not stored")
		return false
	}
}

// Run drains the queue until ctx is done, then flushes what is left.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return nil
		case it := <-q.items:
			q.save(ctx, it)
		}
	}
}

func (q *Queue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	for {
		select {
		case it := <-q.items:
			q.save(ctx, it)
		default:
			return
		}
	}
}

func (q *Queue) save(ctx context.Context, it item) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	if err := q.sink.SaveResponse(ctx, it.code, it.resp); err != nil {
		log.Error().
			Err(err).
			Str("module", "persist").
			Str("room", string(it.code)).
			Str("frame", string(it.resp.FrameID)).
			Msg("failed to store response")
	}
}
