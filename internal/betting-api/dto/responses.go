package dto

import (
	"time"

	"github.com/radieske/dog-race-platform/internal/bet"
	"github.com/radieske/dog-race-platform/internal/models"
	"github.com/radieske/dog-race-platform/internal/race"
)

type PlayerResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

func Player(p models.Player) PlayerResponse {
	return PlayerResponse{ID: p.ID, Name: p.Name, Balance: p.Balance.StringFixed(2), CreatedAt: p.CreatedAt}
}

type ParticipantResponse struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Winner bool   `json:"winner,omitempty"`
}

type RaceResponse struct {
	ID                 int64                 `json:"id"`
	StartTime          time.Time             `json:"startTime"`
	EndTime            *time.Time            `json:"endTime,omitempty"`
	Status             string                `json:"status"` // scheduled | running | finished
	SecondsToStart     int                   `json:"secondsToStart,omitempty"`
	Participants       []ParticipantResponse `json:"participants"`
	OfficialPlacements []int                 `json:"officialPlacements,omitempty"`
	WinnerNumber       *int                  `json:"winnerNumber,omitempty"`
}

func Race(r models.Race, now time.Time) RaceResponse {
	out := RaceResponse{
		ID:                 r.ID,
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		Status:             race.StateAt(r, now).String(),
		Participants:       make([]ParticipantResponse, 0, len(r.Participants)),
		OfficialPlacements: r.OfficialPlacements,
		WinnerNumber:       r.WinnerNumber,
	}
	if until := r.StartTime.Sub(now); until > 0 {
		out.SecondsToStart = int(until / time.Second)
	}
	for _, p := range r.Participants {
		out.Participants = append(out.Participants, ParticipantResponse{Number: p.Number, Name: p.Name, Winner: p.Winner})
	}
	return out
}

func Races(rs []models.Race, now time.Time) []RaceResponse {
	out := make([]RaceResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, Race(r, now))
	}
	return out
}

type BetResponse struct {
	ID          int64         `json:"id"`
	PlayerID    int64         `json:"playerId"`
	RaceID      int64         `json:"raceId"`
	Type        string        `json:"type"`
	Participant int           `json:"participant"`
	Description string        `json:"description"`
	Amount      string        `json:"amount"`
	Status      string        `json:"status"`
	Payout      *string       `json:"payout,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	Race        *RaceResponse `json:"race,omitempty"`
}

func Bet(b models.Bet, now time.Time) BetResponse {
	out := BetResponse{
		ID:          b.ID,
		PlayerID:    b.PlayerID,
		RaceID:      b.RaceID,
		Type:        string(b.Type),
		Participant: b.Selection.Number,
		Description: bet.Describe(b),
		Amount:      b.Amount.StringFixed(2),
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt,
	}
	if b.Payout != nil {
		p := b.Payout.StringFixed(2)
		out.Payout = &p
	}
	if b.Race != nil {
		r := Race(*b.Race, now)
		out.Race = &r
	}
	return out
}

type PlaceBetResponse struct {
	Bet             BetResponse `json:"bet"`
	PotentialPayout string      `json:"potentialPayout"`
	Balance         string      `json:"balance"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
