package events

import "time"

// AnnouncementKind identifica o momento do ciclo de vida anunciado.
type AnnouncementKind string

const (
	RaceScheduled AnnouncementKind = "race_scheduled"
	RaceStarting  AnnouncementKind = "race_starting"
	RaceRunning   AnnouncementKind = "race_running"
	RaceFinished  AnnouncementKind = "race_finished"
)

// Evento publicado no tópico "race_events" e no canal "race_announcements"
type RaceAnnouncement struct {
	Kind      AnnouncementKind `json:"kind"`
	RaceID    int64            `json:"race_id"`
	StartTime time.Time        `json:"start_time"`

	// SecondsToStart só vem em race_starting
	SecondsToStart int `json:"seconds_to_start,omitempty"`

	// Campos de race_finished
	Placements []int  `json:"placements,omitempty"`
	Winner     *int   `json:"winner,omitempty"`
	WinnerName string `json:"winner_name,omitempty"`
	BetsWon    int    `json:"bets_won,omitempty"`
	BetsLost   int    `json:"bets_lost,omitempty"`
	Paid       string `json:"paid,omitempty"`

	Ts time.Time `json:"ts"`
}
