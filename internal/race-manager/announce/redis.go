package announce

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

// publisher é satisfeito por *redis.Client
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis faz broadcast do anúncio no canal pub/sub lido pelo websocket do betting-api.
type Redis struct {
	R       publisher
	Channel string
}

func NewRedis(r *redis.Client, channel string) Redis {
	return Redis{R: r, Channel: channel}
}

func (p Redis) Announce(ctx context.Context, a events.RaceAnnouncement) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return p.R.Publish(ctx, p.Channel, b).Err()
}
