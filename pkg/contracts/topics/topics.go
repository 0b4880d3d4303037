package topics

const (
	// Corridas
	RaceEvents = "race_events"

	// Apostas
	BetPlaced = "bet_placed"

	// Canal Redis pub/sub com os anúncios repassados ao websocket
	RaceAnnouncements = "race_announcements"
)
