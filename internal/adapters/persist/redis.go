package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Podium/internal/domain"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// ResponseEvent is what subscribers of the response channel receive.
type ResponseEvent struct {
	Room domain.RoomCode `json:"room"`
	domain.Response
}

// RedisPublisher publishes every accepted response as JSON on a channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Info().Str("module", "persist").Str("addr", addr).Str("channel", channel).Msg("redis publisher ready")
	return &RedisPublisher{client: client, channel: channel}, nil
}

func (p *RedisPublisher) SaveResponse(ctx context.Context, code domain.RoomCode, resp domain.Response) error {
	msg, err := json.Marshal(ResponseEvent{Room: code, Response: resp})
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, msg).Err(); err != nil {
		return fmt.Errorf("client.Publish: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
