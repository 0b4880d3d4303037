package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus segue a máquina de estados Pending -> {Success, Rejected}; Success -> {Won, Lost}.
type BetStatus string

const (
	BetPending  BetStatus = "PENDING"
	BetSuccess  BetStatus = "SUCCESS"
	BetRejected BetStatus = "REJECTED"
	BetWon      BetStatus = "WON"
	BetLost     BetStatus = "LOST"
)

var betTransitions = map[BetStatus][]BetStatus{
	BetPending: {BetSuccess, BetRejected},
	BetSuccess: {BetWon, BetLost},
}

// CanTransition informa se a transição de status é permitida.
func (s BetStatus) CanTransition(to BetStatus) bool {
	for _, next := range betTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

var ErrInvalidTransition = errors.New("invalid bet status transition")

// Transition retorna ErrInvalidTransition quando s -> to não é permitida.
func (s BetStatus) Transition(to BetStatus) error {
	if !s.CanTransition(to) {
		return fmt.Errorf("%s -> %s: %w", s, to, ErrInvalidTransition)
	}
	return nil
}

// Final indica status terminal.
func (s BetStatus) Final() bool {
	return s == BetRejected || s == BetWon || s == BetLost
}

// BetType é a tag do variant de aposta.
type BetType string

const BetTypeWin BetType = "win"

// Selection guarda os dados específicos de cada tipo de aposta (persistido como JSONB).
type Selection struct {
	// Number é o corredor escolhido numa aposta "win"
	Number int `json:"number,omitempty"`
}

type Bet struct {
	ID        int64            `json:"id"`
	PlayerID  int64            `json:"playerId"`
	RaceID    int64            `json:"raceId"`
	Amount    decimal.Decimal  `json:"amount"`
	Type      BetType          `json:"type"`
	Selection Selection        `json:"selection"`
	Status    BetStatus        `json:"status"`
	Payout    *decimal.Decimal `json:"payout,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`

	// Race só é preenchido nas consultas que incluem a corrida
	Race *Race `json:"race,omitempty"`
}
