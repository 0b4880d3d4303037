package race

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/radieske/dog-race-platform/internal/models"
	"github.com/radieske/dog-race-platform/internal/store"
)

// Service persiste as transições do ciclo de vida; cada escrita roda numa transação.
type Service struct {
	store  store.Store
	window Window

	// Now permite fixar o relógio nos testes
	Now func() time.Time
}

func NewService(st store.Store, w Window) *Service {
	return &Service{store: st, window: w, Now: func() time.Time { return time.Now().UTC() }}
}

// Create grava uma nova corrida agendada para start.
func (s *Service) Create(ctx context.Context, start time.Time, n int, rng *rand.Rand) (models.Race, error) {
	r, err := New(start, n, rng)
	if err != nil {
		return models.Race{}, err
	}
	if err := s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertRace(ctx, &r)
	}); err != nil {
		return models.Race{}, fmt.Errorf("create race: %w", err)
	}
	return r, nil
}

// Finish encerra a corrida. Inexistente ou já finalizada retornam erro sem efeito colateral.
func (s *Service) Finish(ctx context.Context, id int64, rng *rand.Rand) (models.Race, error) {
	var out models.Race
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		r, err := tx.LockRace(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("race %d: %w", id, ErrRaceNotFound)
		}
		if err != nil {
			return err
		}
		if err := Finish(r, rng, s.Now()); err != nil {
			return fmt.Errorf("race %d: %w", id, err)
		}
		if err := tx.UpdateRaceResult(ctx, r); err != nil {
			return err
		}
		out = *r
		return nil
	})
	return out, err
}

// NextStartTime consulta a última corrida pendente e calcula a próxima largada.
func (s *Service) NextStartTime(ctx context.Context, rng *rand.Rand) (time.Time, error) {
	latest, err := s.store.LatestUnfinishedRace(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest unfinished race: %w", err)
	}
	return NextStartTime(s.Now(), latest, s.window, rng), nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Race, error) {
	r, err := s.store.GetRace(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("race %d: %w", id, ErrRaceNotFound)
	}
	return r, err
}

// ListActive retorna as corridas ainda abertas para apostas.
func (s *Service) ListActive(ctx context.Context) ([]models.Race, error) {
	return s.store.ListActiveRaces(ctx, s.Now())
}

func (s *Service) ListUnfinished(ctx context.Context) ([]models.Race, error) {
	return s.store.ListUnfinishedRaces(ctx)
}

func (s *Service) CountUnfinished(ctx context.Context) (int, error) {
	return s.store.CountUnfinishedRaces(ctx)
}
