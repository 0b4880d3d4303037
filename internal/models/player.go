package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Player é o apostador; o saldo só muda via wallet.Debit/wallet.Credit.
type Player struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
}

// LedgerOperation identifica o tipo de movimento registrado no ledger.
type LedgerOperation string

const (
	LedgerDeposit LedgerOperation = "DEPOSIT"
	LedgerBet     LedgerOperation = "BET"
	LedgerRefund  LedgerOperation = "REFUND"
	LedgerPayout  LedgerOperation = "PAYOUT"
)

// LedgerEntry registra cada movimento de saldo, gravado na mesma transação da alteração.
type LedgerEntry struct {
	ID           string          `json:"id"`
	PlayerID     int64           `json:"playerId"`
	Operation    LedgerOperation `json:"operation"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	BetID        *int64          `json:"betId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
