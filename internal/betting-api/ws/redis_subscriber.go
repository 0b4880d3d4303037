package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

// StartRedisSubscriber escuta o canal de anúncios e repassa cada mensagem ao Hub
// até o contexto ser cancelado.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				relay(hub, []byte(msg.Payload), log)
			}
		}
	}()
}

func relay(hub *Hub, payload []byte, log *zap.Logger) {
	var a events.RaceAnnouncement
	if err := json.Unmarshal(payload, &a); err != nil {
		log.Warn("ws subscriber unmarshal error", zap.Error(err))
		return
	}
	hub.Broadcast(a)
}
