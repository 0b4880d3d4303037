// Package consumer lê o tópico race_events e invalida o cache de corridas ativas
// sempre que a lista muda (corrida agendada ou largada).
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/dog-race-platform/internal/shared/kafka"
	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

type Invalidator interface {
	InvalidateActiveRaces(ctx context.Context) error
}

type RaceEvents struct {
	Reader *kafkago.Reader
	Cache  Invalidator
	Log    *zap.Logger

	// OnEvent é chamado para cada anúncio consumido (métricas)
	OnEvent func(kind events.AnnouncementKind)
}

// Run consome até o contexto ser cancelado.
func (c *RaceEvents) Run(ctx context.Context) {
	for {
		_, value, err := kafka.ReadNext(ctx, c.Reader)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.Log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		c.Handle(ctx, value)
	}
}

// Handle processa uma mensagem do tópico.
func (c *RaceEvents) Handle(ctx context.Context, value []byte) {
	var a events.RaceAnnouncement
	if err := json.Unmarshal(value, &a); err != nil {
		c.Log.Error("unmarshal race event", zap.Error(err))
		return
	}
	if c.OnEvent != nil {
		c.OnEvent(a.Kind)
	}
	switch a.Kind {
	case events.RaceScheduled, events.RaceRunning:
		if err := c.Cache.InvalidateActiveRaces(ctx); err != nil {
			c.Log.Warn("invalidate active races", zap.Int64("race_id", a.RaceID), zap.Error(err))
		}
	}
}
