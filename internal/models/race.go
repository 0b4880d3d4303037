package models

import "time"

// Race é uma corrida simulada. OfficialPlacements fica vazio até a corrida terminar.
type Race struct {
	ID                 int64         `json:"id"`
	StartTime          time.Time     `json:"startTime"`
	EndTime            *time.Time    `json:"endTime,omitempty"`
	Finished           bool          `json:"finished"`
	Participants       []Participant `json:"participants"`
	OfficialPlacements []int         `json:"officialPlacements"`
	WinnerNumber       *int          `json:"winnerNumber,omitempty"`
}

// Participant é um corredor; Number é único dentro da corrida (1..N).
type Participant struct {
	ID     int64  `json:"id"`
	RaceID int64  `json:"raceId"`
	Number int    `json:"number"`
	Name   string `json:"name"`
	Winner bool   `json:"winner"`
}

// Participant retorna o corredor com o número informado, se existir.
func (r *Race) Participant(number int) (Participant, bool) {
	for _, p := range r.Participants {
		if p.Number == number {
			return p, true
		}
	}
	return Participant{}, false
}

// Winner retorna o corredor vencedor de uma corrida finalizada.
func (r *Race) Winner() (Participant, bool) {
	if r.WinnerNumber == nil {
		return Participant{}, false
	}
	return r.Participant(*r.WinnerNumber)
}

// Clone faz cópia profunda (slices e ponteiros).
func (r Race) Clone() Race {
	out := r
	out.Participants = append([]Participant(nil), r.Participants...)
	out.OfficialPlacements = append([]int(nil), r.OfficialPlacements...)
	if r.EndTime != nil {
		t := *r.EndTime
		out.EndTime = &t
	}
	if r.WinnerNumber != nil {
		n := *r.WinnerNumber
		out.WinnerNumber = &n
	}
	return out
}
