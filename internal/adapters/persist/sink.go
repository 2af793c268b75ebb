// Package persist hands accepted responses to durable stores. Live room
// state never reads from here.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Podium/internal/domain"
)

type ResponseSink interface {
	SaveResponse(ctx context.Context, code domain.RoomCode, resp domain.Response) error
}

// Multi writes to every sink and joins their errors.
type Multi []ResponseSink

func (m Multi) SaveResponse(ctx context.Context, code domain.RoomCode, resp domain.Response) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveResponse(ctx, code, resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options selects and configures the stores named in Drivers.
type Options struct {
	Drivers      []string
	SQLitePath   string
	RedisAddr    string
	RedisChannel string
}

// Open builds a sink for the configured drivers. The returned close func
// releases every store that was opened. No drivers yields a nil sink.
func Open(ctx context.Context, opts Options) (ResponseSink, func() error, error) {
	var (
		sinks   Multi
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	for _, d := range opts.Drivers {
		switch d {
		case "sqlite":
			st, err := OpenSQLite(opts.SQLitePath)
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			sinks = append(sinks, st)
			closers = append(closers, st.Close)
		case "redis":
			pub, err := NewRedisPublisher(ctx, opts.RedisAddr, opts.RedisChannel)
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			sinks = append(sinks, pub)
			closers = append(closers, pub.Close)
		default:
			_ = closeAll()
			return nil, nil, fmt.Errorf("unknown persist driver %q", d)
		}
	}

	if len(sinks) == 0 {
		return nil, closeAll, nil
	}
	return sinks, closeAll, nil
}
