package producer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/radieske/dog-race-platform/internal/shared/kafka"
	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

type KafkaPublisher struct {
	Writer kafka.MessageWriter
}

func NewKafkaPublisher(w kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

// PublishBetPlaced envia o evento bet_placed; a chave é o id da corrida.
func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.Writer, strconv.FormatInt(e.RaceID, 10), b)
}
