package bet

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/dog-race-platform/internal/models"
)

// Strategy reúne as regras de um tipo de aposta.
// Um novo tipo = nova tag em models.BetType + uma entrada em strategies.
type Strategy struct {
	// Validate confere a seleção contra os corredores da corrida
	Validate func(sel models.Selection, r *models.Race) error
	// PotentialPayout é o valor pago se a aposta ganhar
	PotentialPayout func(amount decimal.Decimal, l Limits) decimal.Decimal
	// IsWinner decide o resultado a partir da ordem oficial de chegada
	IsWinner func(sel models.Selection, placements []int) bool
	Describe func(sel models.Selection, r *models.Race) string
}

var strategies = map[models.BetType]Strategy{
	models.BetTypeWin: {
		Validate: func(sel models.Selection, r *models.Race) error {
			if _, ok := r.Participant(sel.Number); !ok {
				return invalid(ErrUnknownParticipant, "participant #%d is not running in race %d", sel.Number, r.ID)
			}
			return nil
		},
		PotentialPayout: func(amount decimal.Decimal, l Limits) decimal.Decimal {
			return amount.Mul(l.WinOdds)
		},
		IsWinner: func(sel models.Selection, placements []int) bool {
			return len(placements) > 0 && placements[0] == sel.Number
		},
		Describe: func(sel models.Selection, r *models.Race) string {
			if r != nil {
				if p, ok := r.Participant(sel.Number); ok {
					return fmt.Sprintf("win #%d %s", p.Number, p.Name)
				}
			}
			return fmt.Sprintf("win #%d", sel.Number)
		},
	},
}

// StrategyFor retorna a estratégia do tipo de aposta.
func StrategyFor(t models.BetType) (Strategy, bool) {
	s, ok := strategies[t]
	return s, ok
}

// Describe monta a descrição legível da aposta ("win #3 Rex").
func Describe(b models.Bet) string {
	s, ok := strategies[b.Type]
	if !ok {
		return string(b.Type)
	}
	return s.Describe(b.Selection, b.Race)
}
