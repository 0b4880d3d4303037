package events

// Evento publicado pelo betting-api no tópico "bet_placed" após a aposta ser aceita.
type BetPlaced struct {
	BetID       int64  `json:"bet_id"`
	PlayerID    int64  `json:"player_id"`
	RaceID      int64  `json:"race_id"`
	BetType     string `json:"bet_type"`
	Selection   string `json:"selection"`
	Amount      string `json:"amount"` // decimal serializado como texto
	BalanceLeft string `json:"balance_left"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}
