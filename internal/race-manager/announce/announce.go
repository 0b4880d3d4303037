// Package announce publica os anúncios do ciclo de vida das corridas
// (log, Kafka e Redis pub/sub).
package announce

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

type Announcer interface {
	Announce(ctx context.Context, a events.RaceAnnouncement) error
}

// Func adapta uma função comum para Announcer.
type Func func(ctx context.Context, a events.RaceAnnouncement) error

func (f Func) Announce(ctx context.Context, a events.RaceAnnouncement) error { return f(ctx, a) }

// Fanout entrega o anúncio a todos os destinos, mesmo que algum falhe.
type Fanout []Announcer

func (f Fanout) Announce(ctx context.Context, a events.RaceAnnouncement) error {
	var errs error
	for _, an := range f {
		errs = multierr.Append(errs, an.Announce(ctx, a))
	}
	return errs
}

// Log escreve o anúncio no logger do serviço.
type Log struct {
	L *zap.Logger
}

func (l Log) Announce(_ context.Context, a events.RaceAnnouncement) error {
	fields := []zap.Field{
		zap.Int64("race_id", a.RaceID),
		zap.Time("start_time", a.StartTime),
	}
	switch a.Kind {
	case events.RaceScheduled:
		l.L.Info("race scheduled", fields...)
	case events.RaceStarting:
		l.L.Info("race starting soon", append(fields, zap.Int("seconds_to_start", a.SecondsToStart))...)
	case events.RaceRunning:
		l.L.Info("race running", fields...)
	case events.RaceFinished:
		l.L.Info("race finished", append(fields,
			zap.Intp("winner", a.Winner),
			zap.String("winner_name", a.WinnerName),
			zap.Ints("placements", a.Placements),
			zap.Int("bets_won", a.BetsWon),
			zap.Int("bets_lost", a.BetsLost),
			zap.String("paid", a.Paid),
		)...)
	default:
		l.L.Warn("unknown announcement", append(fields, zap.String("kind", string(a.Kind)))...)
	}
	return nil
}
