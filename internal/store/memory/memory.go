// Package memory implementa store.Store em memória. Transações são serializadas
// e trabalham sobre uma cópia do estado, aplicada apenas no commit.
//
// Serve para testes e demos (STORE_DRIVER=memory): cada transação copia o estado
// inteiro e corridas finalizadas nunca são removidas, então o custo cresce com o
// tempo de execução. Para rodar por longos períodos use o driver postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/dog-race-platform/internal/models"
	"github.com/radieske/dog-race-platform/internal/store"
)

type Store struct {
	mu sync.Mutex
	st *state
}

var _ store.Store = (*Store)(nil)

func New() *Store { return &Store{st: newState()} }

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{state: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// read devolve o estado commitado; ele nunca é alterado in-place, só substituído no commit.
func (s *Store) read() *state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *Store) GetRace(ctx context.Context, id int64) (*models.Race, error) {
	return s.read().GetRace(ctx, id)
}
func (s *Store) ListUnfinishedRaces(ctx context.Context) ([]models.Race, error) {
	return s.read().ListUnfinishedRaces(ctx)
}
func (s *Store) ListActiveRaces(ctx context.Context, now time.Time) ([]models.Race, error) {
	return s.read().ListActiveRaces(ctx, now)
}
func (s *Store) CountUnfinishedRaces(ctx context.Context) (int, error) {
	return s.read().CountUnfinishedRaces(ctx)
}
func (s *Store) LatestUnfinishedRace(ctx context.Context) (*models.Race, error) {
	return s.read().LatestUnfinishedRace(ctx)
}
func (s *Store) GetPlayer(ctx context.Context, id int64) (*models.Player, error) {
	return s.read().GetPlayer(ctx, id)
}
func (s *Store) ListLedger(ctx context.Context, playerID int64) ([]models.LedgerEntry, error) {
	return s.read().ListLedger(ctx, playerID)
}
func (s *Store) GetBet(ctx context.Context, id int64) (*models.Bet, error) {
	return s.read().GetBet(ctx, id)
}
func (s *Store) ListBetsByPlayer(ctx context.Context, playerID int64) ([]models.Bet, error) {
	return s.read().ListBetsByPlayer(ctx, playerID)
}
func (s *Store) ListBetsByStatus(ctx context.Context, status models.BetStatus) ([]models.Bet, error) {
	return s.read().ListBetsByStatus(ctx, status)
}
func (s *Store) ListBetsByRace(ctx context.Context, raceID int64, status models.BetStatus) ([]models.Bet, error) {
	return s.read().ListBetsByRace(ctx, raceID, status)
}

type state struct {
	races   map[int64]models.Race
	players map[int64]models.Player
	bets    map[int64]models.Bet
	ledger  []models.LedgerEntry

	raceSeq, participantSeq, playerSeq, betSeq int64
}

func newState() *state {
	return &state{
		races:   make(map[int64]models.Race),
		players: make(map[int64]models.Player),
		bets:    make(map[int64]models.Bet),
	}
}

func (s *state) clone() *state {
	out := &state{
		races:          make(map[int64]models.Race, len(s.races)),
		players:        make(map[int64]models.Player, len(s.players)),
		bets:           make(map[int64]models.Bet, len(s.bets)),
		ledger:         append([]models.LedgerEntry(nil), s.ledger...),
		raceSeq:        s.raceSeq,
		participantSeq: s.participantSeq,
		playerSeq:      s.playerSeq,
		betSeq:         s.betSeq,
	}
	for id, r := range s.races {
		out.races[id] = r.Clone()
	}
	for id, p := range s.players {
		out.players[id] = p
	}
	for id, b := range s.bets {
		out.bets[id] = cloneBet(b)
	}
	return out
}

func cloneBet(b models.Bet) models.Bet {
	if b.Payout != nil {
		p := *b.Payout
		b.Payout = &p
	}
	b.Race = nil
	return b
}

func (s *state) GetRace(_ context.Context, id int64) (*models.Race, error) {
	r, ok := s.races[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := r.Clone()
	return &c, nil
}

func (s *state) sortedRaces(keep func(models.Race) bool) []models.Race {
	var out []models.Race
	for _, r := range s.races {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (s *state) ListUnfinishedRaces(_ context.Context) ([]models.Race, error) {
	return s.sortedRaces(func(r models.Race) bool { return !r.Finished }), nil
}

func (s *state) ListActiveRaces(_ context.Context, now time.Time) ([]models.Race, error) {
	return s.sortedRaces(func(r models.Race) bool { return !r.Finished && r.StartTime.After(now) }), nil
}

func (s *state) CountUnfinishedRaces(_ context.Context) (int, error) {
	n := 0
	for _, r := range s.races {
		if !r.Finished {
			n++
		}
	}
	return n, nil
}

func (s *state) LatestUnfinishedRace(ctx context.Context) (*models.Race, error) {
	races, _ := s.ListUnfinishedRaces(ctx)
	if len(races) == 0 {
		return nil, nil
	}
	r := races[len(races)-1]
	return &r, nil
}

func (s *state) GetPlayer(_ context.Context, id int64) (*models.Player, error) {
	p, ok := s.players[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *state) ListLedger(_ context.Context, playerID int64) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for _, e := range s.ledger {
		if e.PlayerID == playerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *state) GetBet(_ context.Context, id int64) (*models.Bet, error) {
	b, ok := s.bets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := cloneBet(b)
	return &c, nil
}

func (s *state) filterBets(keep func(models.Bet) bool) []models.Bet {
	var out []models.Bet
	for _, b := range s.bets {
		if keep(b) {
			out = append(out, cloneBet(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) ListBetsByPlayer(_ context.Context, playerID int64) ([]models.Bet, error) {
	out := s.filterBets(func(b models.Bet) bool { return b.PlayerID == playerID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	for i := range out {
		if r, ok := s.races[out[i].RaceID]; ok {
			c := r.Clone()
			out[i].Race = &c
		}
	}
	return out, nil
}

func (s *state) ListBetsByStatus(_ context.Context, status models.BetStatus) ([]models.Bet, error) {
	return s.filterBets(func(b models.Bet) bool { return b.Status == status }), nil
}

func (s *state) ListBetsByRace(_ context.Context, raceID int64, status models.BetStatus) ([]models.Bet, error) {
	return s.filterBets(func(b models.Bet) bool { return b.RaceID == raceID && b.Status == status }), nil
}

// tx opera sobre a cópia de trabalho; a serialização vem do mutex do Store.
type tx struct {
	*state
}

func (t *tx) LockRace(ctx context.Context, id int64) (*models.Race, error) {
	return t.GetRace(ctx, id)
}

func (t *tx) LockPlayer(ctx context.Context, id int64) (*models.Player, error) {
	return t.GetPlayer(ctx, id)
}

func (t *tx) LockBet(ctx context.Context, id int64) (*models.Bet, error) {
	return t.GetBet(ctx, id)
}

func (t *tx) InsertRace(_ context.Context, r *models.Race) error {
	t.raceSeq++
	r.ID = t.raceSeq
	for i := range r.Participants {
		t.participantSeq++
		r.Participants[i].ID = t.participantSeq
		r.Participants[i].RaceID = r.ID
	}
	t.races[r.ID] = r.Clone()
	return nil
}

func (t *tx) UpdateRaceResult(_ context.Context, r *models.Race) error {
	if _, ok := t.races[r.ID]; !ok {
		return store.ErrNotFound
	}
	t.races[r.ID] = r.Clone()
	return nil
}

func (t *tx) InsertPlayer(_ context.Context, p *models.Player) error {
	t.playerSeq++
	p.ID = t.playerSeq
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	t.players[p.ID] = *p
	return nil
}

func (t *tx) UpdatePlayerBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	p, ok := t.players[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Balance = balance
	t.players[id] = p
	return nil
}

func (t *tx) InsertLedgerEntry(_ context.Context, e *models.LedgerEntry) error {
	t.ledger = append(t.ledger, *e)
	return nil
}

func (t *tx) InsertBet(_ context.Context, b *models.Bet) error {
	t.betSeq++
	b.ID = t.betSeq
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	t.bets[b.ID] = cloneBet(*b)
	return nil
}

func (t *tx) UpdateBetStatus(_ context.Context, b *models.Bet) error {
	cur, ok := t.bets[b.ID]
	if !ok {
		return store.ErrNotFound
	}
	if err := cur.Status.Transition(b.Status); err != nil {
		return fmt.Errorf("bet %d: %w", b.ID, err)
	}
	cur.Status = b.Status
	cur.Payout = b.Payout
	cur.UpdatedAt = time.Now().UTC()
	t.bets[b.ID] = cloneBet(cur)
	return nil
}
