// Package scheduler roda o loop de simulação do race-manager: a cada tick mantém o
// estoque mínimo de corridas, promove apostas pendentes, conclui as corridas que
// largaram (finaliza + liquida) e anuncia as largadas iminentes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/dog-race-platform/internal/bet"
	"github.com/radieske/dog-race-platform/internal/models"
	"github.com/radieske/dog-race-platform/internal/race"
	"github.com/radieske/dog-race-platform/internal/race-manager/announce"
	"github.com/radieske/dog-race-platform/internal/shared/cronrunner"
	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

var ErrStopped = errors.New("scheduler stopped")

type State int

const (
	Idle State = iota
	Running
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Etapas do tick, usadas em OnError e nos logs
const (
	StageTopUp    = "top_up"
	StagePromote  = "promote"
	StageAdvance  = "advance"
	StageFinish   = "finish"
	StageResolve  = "resolve"
	StageAnnounce = "announce"
)

type RaceService interface {
	CountUnfinished(ctx context.Context) (int, error)
	NextStartTime(ctx context.Context, rng *rand.Rand) (time.Time, error)
	Create(ctx context.Context, start time.Time, n int, rng *rand.Rand) (models.Race, error)
	ListUnfinished(ctx context.Context) ([]models.Race, error)
	Finish(ctx context.Context, id int64, rng *rand.Rand) (models.Race, error)
}

type BetEngine interface {
	ListPending(ctx context.Context) ([]models.Bet, error)
	Promote(ctx context.Context, betID int64) (bet.PromotionResult, error)
	Resolve(ctx context.Context, raceID int64) (bet.ResolveSummary, error)
	UnsettledRaces(ctx context.Context) ([]int64, error)
}

type Config struct {
	TickSpec              string
	MinActiveRaces        int
	ParticipantsPerRace   int
	RunningDuration       time.Duration
	AnnouncementThreshold time.Duration
	Seed                  int64 // 0 = semente aleatória
	TickOnStart           bool  // executa um tick logo no Start, sem esperar o cron
}

// Scheduler é o dono único do loop. O tick roda sob try-lock: um tick que chega
// enquanto o anterior ainda executa é descartado, não enfileirado.
type Scheduler struct {
	cfg   Config
	races RaceService
	bets  BetEngine
	ann   announce.Announcer
	log   *zap.Logger
	rng   *rand.Rand

	tickMu sync.Mutex

	mu     sync.Mutex
	state  State
	runner *cronrunner.Runner
	ctx    context.Context
	cancel context.CancelFunc

	// corridas que já receberam race_starting; só acessado dentro do tick
	announced map[int64]bool

	// Now e Sleep podem ser trocados nos testes
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	// Callbacks opcionais para métricas
	OnTick         func()
	OnTickSkipped  func()
	OnRaceCreated  func(r models.Race)
	OnRaceFinished func(r models.Race)
	OnBetPromoted  func(res bet.PromotionResult)
	OnBetsSettled  func(raceID int64, sum bet.ResolveSummary)
	OnError        func(stage string, err error)
}

func New(cfg Config, races RaceService, bets BetEngine, ann announce.Announcer, log *zap.Logger) *Scheduler {
	seed := uint64(cfg.Seed)
	if cfg.Seed == 0 {
		seed = rand.Uint64()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if ann == nil {
		ann = announce.Log{L: log}
	}
	return &Scheduler{
		cfg:       cfg,
		races:     races,
		bets:      bets,
		ann:       ann,
		log:       log,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		announced: make(map[int64]bool),
		Now:       func() time.Time { return time.Now().UTC() },
		Sleep:     sleepCtx,
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start agenda o tick. Idempotente enquanto rodando/pausado; após Stop retorna ErrStopped.
func (s *Scheduler) Start(parent context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Running, Paused:
		return nil
	case Stopped:
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(parent)
	runner := cronrunner.New(s.log, ctx)
	if _, err := runner.Add(s.cfg.TickSpec, s.Tick); err != nil {
		cancel()
		return fmt.Errorf("schedule tick %q: %w", s.cfg.TickSpec, err)
	}
	runner.Start()

	s.ctx, s.cancel, s.runner = ctx, cancel, runner
	s.state = Running
	s.log.Info("race simulation started", zap.String("tick", s.cfg.TickSpec))
	if s.cfg.TickOnStart {
		go s.Tick(ctx)
	}
	return nil
}

// Pause deixa o tick atual terminar e faz os próximos pularem o corpo.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running {
		s.state = Paused
		s.log.Info("races paused")
	}
}

func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Paused {
		s.state = Running
		s.log.Info("races resumed")
	}
}

// Stop cancela o contexto base (interrompendo a espera de uma corrida em andamento),
// para o cron e aguarda o tick em execução. A segunda chamada não faz nada.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	cancel, runner := s.cancel, s.runner
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if runner != nil {
		runner.Stop()
	}
	// espera o tick em andamento terminar
	s.tickMu.Lock()
	s.tickMu.Unlock()

	s.log.Info("race simulation stopped")
}

// Tick executa uma iteração do loop. Falhas de uma corrida/aposta são logadas e
// contadas sem interromper o restante.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		s.log.Debug("tick skipped: previous tick still running")
		if s.OnTickSkipped != nil {
			s.OnTickSkipped()
		}
		return
	}
	defer s.tickMu.Unlock()

	if s.State() != Running {
		return
	}
	if s.OnTick != nil {
		s.OnTick()
	}

	s.topUp(ctx)
	s.promotePending(ctx)
	s.settleLeftovers(ctx)
	s.advance(ctx)
}

func (s *Scheduler) topUp(ctx context.Context) {
	n, err := s.races.CountUnfinished(ctx)
	if err != nil {
		s.fail(StageTopUp, err)
		return
	}
	for i := n; i < s.cfg.MinActiveRaces && ctx.Err() == nil; i++ {
		start, err := s.races.NextStartTime(ctx, s.rng)
		if err != nil {
			s.fail(StageTopUp, err)
			return
		}
		r, err := s.races.Create(ctx, start, s.cfg.ParticipantsPerRace, s.rng)
		if err != nil {
			s.fail(StageTopUp, err)
			return
		}
		if s.OnRaceCreated != nil {
			s.OnRaceCreated(r)
		}
		s.announce(ctx, events.RaceAnnouncement{Kind: events.RaceScheduled, RaceID: r.ID, StartTime: r.StartTime})
	}
}

func (s *Scheduler) promotePending(ctx context.Context) {
	pending, err := s.bets.ListPending(ctx)
	if err != nil {
		s.fail(StagePromote, err)
		return
	}
	for _, b := range pending {
		if ctx.Err() != nil {
			return
		}
		res, err := s.bets.Promote(ctx, b.ID)
		if errors.Is(err, bet.ErrBetNotPending) {
			continue
		}
		var te *bet.TransferError
		if err != nil && !errors.As(err, &te) {
			s.fail(StagePromote, fmt.Errorf("bet %d: %w", b.ID, err))
			continue
		}
		if te != nil {
			s.fail(StagePromote, te)
		}
		if res.Status == models.BetRejected {
			s.log.Info("bet rejected", zap.Int64("bet_id", res.BetID), zap.String("reason", res.Reason))
		}
		if s.OnBetPromoted != nil {
			s.OnBetPromoted(res)
		}
	}
}

// settleLeftovers liquida apostas Success de corridas já finalizadas, deixadas
// para trás quando a liquidação de um tick anterior falhou.
func (s *Scheduler) settleLeftovers(ctx context.Context) {
	ids, err := s.bets.UnsettledRaces(ctx)
	if err != nil {
		s.fail(StageResolve, err)
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		sum, err := s.bets.Resolve(ctx, id)
		if err != nil {
			s.fail(StageResolve, fmt.Errorf("race %d: %w", id, err))
		}
		s.log.Info("settled leftover bets",
			zap.Int64("race_id", id),
			zap.Int("won", sum.Won),
			zap.Int("lost", sum.Lost),
			zap.String("paid", sum.Paid.StringFixed(2)),
		)
		if s.OnBetsSettled != nil {
			s.OnBetsSettled(id, sum)
		}
	}
}

func (s *Scheduler) advance(ctx context.Context) {
	races, err := s.races.ListUnfinished(ctx)
	if err != nil {
		s.fail(StageAdvance, err)
		return
	}
	for _, r := range races {
		if ctx.Err() != nil {
			return
		}
		now := s.Now()
		if race.Started(r, now) {
			s.complete(ctx, r, now)
			continue
		}
		until := r.StartTime.Sub(now)
		if until <= s.cfg.AnnouncementThreshold && !s.announced[r.ID] {
			s.announced[r.ID] = true
			s.announce(ctx, events.RaceAnnouncement{
				Kind:           events.RaceStarting,
				RaceID:         r.ID,
				StartTime:      r.StartTime,
				SecondsToStart: int(until.Round(time.Second) / time.Second),
			})
		}
	}
}

// complete espera o restante da duração da corrida, finaliza e liquida as apostas.
func (s *Scheduler) complete(ctx context.Context, r models.Race, now time.Time) {
	s.announce(ctx, events.RaceAnnouncement{Kind: events.RaceRunning, RaceID: r.ID, StartTime: r.StartTime})

	if elapsed := now.Sub(r.StartTime); elapsed < s.cfg.RunningDuration {
		if err := s.Sleep(ctx, s.cfg.RunningDuration-elapsed); err != nil {
			s.log.Info("race wait interrupted", zap.Int64("race_id", r.ID), zap.Error(err))
			return
		}
	}

	finished, err := s.races.Finish(ctx, r.ID, s.rng)
	if err != nil {
		// corrida já finalizada segue para a liquidação; o resto fica para o próximo tick
		s.fail(StageFinish, err)
		if !errors.Is(err, race.ErrRaceFinished) {
			return
		}
	} else if s.OnRaceFinished != nil {
		s.OnRaceFinished(finished)
	}
	delete(s.announced, r.ID)

	sum, err := s.bets.Resolve(ctx, r.ID)
	if err != nil {
		s.fail(StageResolve, fmt.Errorf("race %d: %w", r.ID, err))
	}
	if s.OnBetsSettled != nil {
		s.OnBetsSettled(r.ID, sum)
	}

	a := events.RaceAnnouncement{
		Kind:       events.RaceFinished,
		RaceID:     r.ID,
		StartTime:  r.StartTime,
		Placements: finished.OfficialPlacements,
		Winner:     finished.WinnerNumber,
		BetsWon:    sum.Won,
		BetsLost:   sum.Lost,
		Paid:       sum.Paid.StringFixed(2),
	}
	if w, ok := finished.Winner(); ok {
		a.WinnerName = w.Name
	}
	s.announce(ctx, a)
}

func (s *Scheduler) announce(ctx context.Context, a events.RaceAnnouncement) {
	a.Ts = s.Now()
	if err := s.ann.Announce(ctx, a); err != nil {
		s.fail(StageAnnounce, fmt.Errorf("%s race %d: %w", a.Kind, a.RaceID, err))
	}
}

func (s *Scheduler) fail(stage string, err error) {
	s.log.Error("race simulation error", zap.String("stage", stage), zap.Error(err))
	if s.OnError != nil {
		s.OnError(stage, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
