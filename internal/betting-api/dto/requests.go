package dto

import "github.com/shopspring/decimal"

type CreatePlayerRequest struct {
	Name string `json:"name"`
}

// DepositRequest aceita o valor como número ou string ("25.50")
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type PlaceBetRequest struct {
	PlayerID    int64           `json:"playerId"`
	RaceID      int64           `json:"raceId"`
	Type        string          `json:"type"` // "win" (default)
	Amount      decimal.Decimal `json:"amount"`
	Participant int             `json:"participant"` // número do corredor
}
