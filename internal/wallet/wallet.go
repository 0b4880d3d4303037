// Package wallet concentra as regras de débito e crédito do saldo do jogador.
// Persistência fica a cargo do chamador: cada operação devolve a LedgerEntry
// que deve ser gravada na mesma transação do novo saldo.
package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/dog-race-platform/internal/models"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Debit retira amount do saldo do jogador.
func Debit(p *models.Player, amount decimal.Decimal, op models.LedgerOperation, betID *int64) (models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return models.LedgerEntry{}, ErrInvalidAmount
	}
	if amount.GreaterThan(p.Balance) {
		return models.LedgerEntry{}, ErrInsufficientFunds
	}
	p.Balance = p.Balance.Sub(amount)
	return entry(p, op, amount.Neg(), betID), nil
}

// Credit adiciona amount ao saldo do jogador.
func Credit(p *models.Player, amount decimal.Decimal, op models.LedgerOperation, betID *int64) (models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return models.LedgerEntry{}, ErrInvalidAmount
	}
	p.Balance = p.Balance.Add(amount)
	return entry(p, op, amount, betID), nil
}

func entry(p *models.Player, op models.LedgerOperation, amount decimal.Decimal, betID *int64) models.LedgerEntry {
	return models.LedgerEntry{
		ID:           uuid.NewString(),
		PlayerID:     p.ID,
		Operation:    op,
		Amount:       amount,
		BalanceAfter: p.Balance,
		BetID:        betID,
		CreatedAt:    time.Now().UTC(),
	}
}
