// Package bet valida, registra, promove e liquida apostas.
// Cada operação que move saldo roda numa única transação do store junto com a
// mudança de status e a linha do ledger.
package bet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/radieske/dog-race-platform/internal/models"
	"github.com/radieske/dog-race-platform/internal/race"
	"github.com/radieske/dog-race-platform/internal/store"
	"github.com/radieske/dog-race-platform/internal/wallet"
)

// Limits são os limites de aposta e a odd fixa do "win".
type Limits struct {
	MinBet    decimal.Decimal
	MaxBet    decimal.Decimal
	MaxPayout decimal.Decimal
	WinOdds   decimal.Decimal
}

func DefaultLimits() Limits {
	return Limits{
		MinBet:    decimal.NewFromInt(1),
		MaxBet:    decimal.NewFromInt(50),
		MaxPayout: decimal.NewFromInt(200),
		WinOdds:   decimal.NewFromInt(2),
	}
}

type Engine struct {
	store  store.Store
	limits Limits

	// Now permite fixar o relógio nos testes
	Now func() time.Time
}

func NewEngine(st store.Store, l Limits) *Engine {
	return &Engine{store: st, limits: l, Now: func() time.Time { return time.Now().UTC() }}
}

// PotentialPayout calcula o prêmio da aposta caso ela ganhe.
func (e *Engine) PotentialPayout(b models.Bet) (decimal.Decimal, error) {
	s, ok := strategies[b.Type]
	if !ok {
		return decimal.Zero, invalid(ErrUnknownBetType, "unknown bet type %q", b.Type)
	}
	return s.PotentialPayout(b.Amount, e.limits), nil
}

// Validate roda todas as regras antes de qualquer movimento de saldo.
// Largada em StartTime == now já conta como corrida iniciada.
func (e *Engine) Validate(b models.Bet, r *models.Race, now time.Time) error {
	if race.Started(*r, now) {
		return invalid(ErrRaceUnavailable, "race %d not available for betting (finished or already started)", r.ID)
	}
	if b.Amount.LessThan(e.limits.MinBet) || b.Amount.GreaterThan(e.limits.MaxBet) {
		return invalid(ErrStakeOutOfRange, "invalid bet amount %s: must be between %s and %s", b.Amount, e.limits.MinBet, e.limits.MaxBet)
	}
	if !b.Amount.Equal(b.Amount.Round(2)) {
		return invalid(ErrStakeOutOfRange, "invalid bet amount %s: at most 2 decimal places", b.Amount)
	}
	s, ok := strategies[b.Type]
	if !ok {
		return invalid(ErrUnknownBetType, "unknown bet type %q", b.Type)
	}
	if err := s.Validate(b.Selection, r); err != nil {
		return err
	}
	if payout := s.PotentialPayout(b.Amount, e.limits); payout.GreaterThan(e.limits.MaxPayout) {
		return invalid(ErrPayoutCapExceeded, "potential payout %s exceeds limit of %s", payout, e.limits.MaxPayout)
	}
	return nil
}

// Place valida a aposta, debita o stake e grava a aposta como Pending.
func (e *Engine) Place(ctx context.Context, b models.Bet) (models.Bet, error) {
	b.ID = 0
	b.Payout = nil
	b.Race = nil

	err := e.store.InTx(ctx, func(tx store.Tx) error {
		r, err := tx.LockRace(ctx, b.RaceID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("race %d: %w", b.RaceID, ErrRaceNotFound)
		}
		if err != nil {
			return err
		}
		if err := e.Validate(b, r, e.Now()); err != nil {
			return err
		}

		p, err := tx.LockPlayer(ctx, b.PlayerID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("player %d: %w", b.PlayerID, ErrPlayerNotFound)
		}
		if err != nil {
			return err
		}
		entry, err := wallet.Debit(p, b.Amount, models.LedgerBet, nil)
		if err != nil {
			return fmt.Errorf("player %d: %w", p.ID, err)
		}

		b.Status = models.BetPending
		if err := tx.InsertBet(ctx, &b); err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}
		entry.BetID = &b.ID
		if err := tx.UpdatePlayerBalance(ctx, p.ID, p.Balance); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if err := tx.InsertLedgerEntry(ctx, &entry); err != nil {
			return fmt.Errorf("insert ledger: %w", err)
		}
		b.Race = r
		return nil
	})
	if err != nil {
		return models.Bet{}, err
	}
	return b, nil
}

// PromotionResult é o desfecho da promoção de uma aposta.
type PromotionResult struct {
	BetID  int64
	Status models.BetStatus
	Reason string
}

// Promote confirma uma aposta Pending cuja corrida ainda não largou (Success).
// Se a corrida sumiu ou já largou, a aposta vira Rejected e o stake é devolvido;
// falha no estorno não desfaz a rejeição e volta como *TransferError.
func (e *Engine) Promote(ctx context.Context, betID int64) (PromotionResult, error) {
	var (
		res         PromotionResult
		transferErr error
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		transferErr = nil

		b, err := tx.LockBet(ctx, betID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("bet %d: %w", betID, ErrBetNotFound)
		}
		if err != nil {
			return err
		}
		if !b.Status.CanTransition(models.BetSuccess) {
			return fmt.Errorf("bet %d is %s: %w", betID, b.Status, ErrBetNotPending)
		}

		r, err := tx.GetRace(ctx, b.RaceID)
		missing := errors.Is(err, store.ErrNotFound)
		if err != nil && !missing {
			return err
		}

		if !missing && !race.Started(*r, e.Now()) {
			b.Status = models.BetSuccess
			res = PromotionResult{BetID: b.ID, Status: b.Status}
			return tx.UpdateBetStatus(ctx, b)
		}

		reason := "race not found"
		if !missing {
			reason = "race already started"
		}
		zero := decimal.Zero
		b.Status = models.BetRejected
		b.Payout = &zero
		if err := tx.UpdateBetStatus(ctx, b); err != nil {
			return err
		}
		res = PromotionResult{BetID: b.ID, Status: b.Status, Reason: reason}

		transferErr, err = e.transfer(ctx, tx, b, b.Amount, models.LedgerRefund)
		return err
	})
	if err != nil {
		return PromotionResult{}, err
	}
	return res, transferErr
}

// transfer credita o jogador. Falhas de negócio (jogador inexistente, valor inválido)
// voltam como *TransferError sem abortar a transação; falhas de infraestrutura abortam.
func (e *Engine) transfer(ctx context.Context, tx store.Tx, b *models.Bet, amount decimal.Decimal, op models.LedgerOperation) (transferErr, err error) {
	fail := func(cause error) error {
		return &TransferError{BetID: b.ID, PlayerID: b.PlayerID, Operation: op, Err: cause}
	}

	p, err := tx.LockPlayer(ctx, b.PlayerID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(ErrPlayerNotFound), nil
	}
	if err != nil {
		return nil, err
	}
	entry, err := wallet.Credit(p, amount, op, &b.ID)
	if err != nil {
		return fail(err), nil
	}
	if err := tx.UpdatePlayerBalance(ctx, p.ID, p.Balance); err != nil {
		return nil, err
	}
	if err := tx.InsertLedgerEntry(ctx, &entry); err != nil {
		return nil, err
	}
	return nil, nil
}

// ResolveSummary resume a liquidação de uma corrida.
type ResolveSummary struct {
	Won  int
	Lost int
	Paid decimal.Decimal
}

// Resolve liquida todas as apostas Success da corrida, uma transação por aposta.
// Falhas individuais são acumuladas (multierr) sem interromper as demais.
func (e *Engine) Resolve(ctx context.Context, raceID int64) (ResolveSummary, error) {
	sum := ResolveSummary{Paid: decimal.Zero}

	r, err := e.store.GetRace(ctx, raceID)
	if errors.Is(err, store.ErrNotFound) {
		return sum, fmt.Errorf("race %d: %w", raceID, ErrRaceNotFound)
	}
	if err != nil {
		return sum, err
	}
	if !r.Finished {
		return sum, fmt.Errorf("race %d: %w", raceID, ErrRaceNotFinished)
	}
	if len(r.OfficialPlacements) == 0 {
		return sum, fmt.Errorf("race %d: %w", raceID, ErrNoPlacements)
	}

	bets, err := e.store.ListBetsByRace(ctx, raceID, models.BetSuccess)
	if err != nil {
		return sum, fmt.Errorf("list bets of race %d: %w", raceID, err)
	}

	var errs error
	for _, b := range bets {
		st, payout, err := e.settle(ctx, r, b.ID)
		var te *TransferError
		if err != nil && !errors.As(err, &te) {
			errs = multierr.Append(errs, fmt.Errorf("settle bet %d: %w", b.ID, err))
			continue
		}
		if te != nil {
			errs = multierr.Append(errs, te)
		}
		switch st {
		case models.BetWon:
			sum.Won++
			if te == nil {
				sum.Paid = sum.Paid.Add(payout)
			}
		case models.BetLost:
			sum.Lost++
		}
	}
	return sum, errs
}

// settle relê a aposta com lock e só liquida se ela ainda estiver Success.
// Retorna status vazio quando outra liquidação já tratou a aposta.
func (e *Engine) settle(ctx context.Context, r *models.Race, betID int64) (models.BetStatus, decimal.Decimal, error) {
	var (
		status      models.BetStatus
		payout      decimal.Decimal
		transferErr error
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		status, transferErr = "", nil

		b, err := tx.LockBet(ctx, betID)
		if err != nil {
			return err
		}
		if !b.Status.CanTransition(models.BetWon) {
			return nil
		}
		s, ok := strategies[b.Type]
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownBetType, b.Type)
		}

		if s.IsWinner(b.Selection, r.OfficialPlacements) {
			payout = s.PotentialPayout(b.Amount, e.limits)
			b.Status = models.BetWon
		} else {
			payout = decimal.Zero
			b.Status = models.BetLost
		}
		b.Payout = &payout
		if err := tx.UpdateBetStatus(ctx, b); err != nil {
			return err
		}
		status = b.Status

		if b.Status == models.BetWon {
			transferErr, err = e.transfer(ctx, tx, b, payout, models.LedgerPayout)
			return err
		}
		return nil
	})
	if err != nil {
		return "", decimal.Zero, err
	}
	return status, payout, transferErr
}

func (e *Engine) Get(ctx context.Context, id int64) (*models.Bet, error) {
	b, err := e.store.GetBet(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("bet %d: %w", id, ErrBetNotFound)
	}
	return b, err
}

// ListByPlayer retorna as apostas do jogador (mais recentes primeiro) com a corrida.
func (e *Engine) ListByPlayer(ctx context.Context, playerID int64) ([]models.Bet, error) {
	return e.store.ListBetsByPlayer(ctx, playerID)
}

func (e *Engine) ListPending(ctx context.Context) ([]models.Bet, error) {
	return e.store.ListBetsByStatus(ctx, models.BetPending)
}

// UnsettledRaces retorna as corridas já finalizadas que ainda têm apostas Success,
// ou seja, cuja liquidação falhou ou foi interrompida.
func (e *Engine) UnsettledRaces(ctx context.Context) ([]int64, error) {
	bets, err := e.store.ListBetsByStatus(ctx, models.BetSuccess)
	if err != nil {
		return nil, fmt.Errorf("list success bets: %w", err)
	}
	seen := make(map[int64]bool)
	var out []int64
	for _, b := range bets {
		if seen[b.RaceID] {
			continue
		}
		seen[b.RaceID] = true

		r, err := e.store.GetRace(ctx, b.RaceID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("race %d: %w", b.RaceID, err)
		}
		if r.Finished {
			out = append(out, r.ID)
		}
	}
	return out, nil
}
