// Package player cria jogadores, consulta saldo e registra depósitos.
package player

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/radieske/dog-race-platform/internal/models"
	"github.com/radieske/dog-race-platform/internal/store"
	"github.com/radieske/dog-race-platform/internal/wallet"
)

var ErrInvalidName = errors.New("player name must not be empty")

type Service struct {
	store          store.Store
	initialBalance decimal.Decimal
}

func NewService(st store.Store, initialBalance decimal.Decimal) *Service {
	return &Service{store: st, initialBalance: initialBalance}
}

// Create grava o jogador com o saldo inicial e o DEPOSIT correspondente no ledger.
func (s *Service) Create(ctx context.Context, name string) (models.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return models.Player{}, ErrInvalidName
	}

	p := models.Player{Name: name, Balance: decimal.Zero}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertPlayer(ctx, &p); err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		if !s.initialBalance.IsPositive() {
			return nil
		}
		return s.credit(ctx, tx, &p, s.initialBalance)
	})
	if err != nil {
		return models.Player{}, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Player, error) {
	p, err := s.store.GetPlayer(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	return p, err
}

// Deposit credita amount no saldo do jogador.
func (s *Service) Deposit(ctx context.Context, id int64, amount decimal.Decimal) (models.Player, error) {
	if !amount.Equal(amount.Round(2)) {
		return models.Player{}, fmt.Errorf("%w: at most 2 decimal places", wallet.ErrInvalidAmount)
	}
	var out models.Player
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockPlayer(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("player %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := s.credit(ctx, tx, p, amount); err != nil {
			return err
		}
		out = *p
		return nil
	})
	return out, err
}

func (s *Service) Ledger(ctx context.Context, id int64) ([]models.LedgerEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListLedger(ctx, id)
}

func (s *Service) credit(ctx context.Context, tx store.Tx, p *models.Player, amount decimal.Decimal) error {
	entry, err := wallet.Credit(p, amount, models.LedgerDeposit, nil)
	if err != nil {
		return err
	}
	if err := tx.UpdatePlayerBalance(ctx, p.ID, p.Balance); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if err := tx.InsertLedgerEntry(ctx, &entry); err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}
	return nil
}
