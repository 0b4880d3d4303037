package announce

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/radieske/dog-race-platform/internal/shared/kafka"
	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

// Kafka publica o anúncio no tópico race_events; a chave é o id da corrida.
type Kafka struct {
	W kafka.MessageWriter
}

func (k Kafka) Announce(ctx context.Context, a events.RaceAnnouncement) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, k.W, strconv.FormatInt(a.RaceID, 10), b)
}
