package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// RaceID: 0 assina todas as corridas
type ClientMsg struct {
	Type   string `json:"type"`   // subscribe | unsubscribe | ping
	RaceID int64  `json:"raceId"` // 0 = todas
}
