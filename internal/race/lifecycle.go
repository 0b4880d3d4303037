// Package race implementa o ciclo de vida de uma corrida:
// Scheduled (largada no futuro) -> Running (largada passou) -> Finished.
package race

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/radieske/dog-race-platform/internal/models"
)

var (
	ErrInvalidParticipantCount = errors.New("participant count must be at least 1")
	ErrRaceFinished            = errors.New("race already finished")
	ErrRaceNotFound            = errors.New("race not found")
)

type State int

const (
	Scheduled State = iota
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Window define a janela de agendamento de novas corridas.
type Window struct {
	MinUntilStart   time.Duration
	MaxUntilStart   time.Duration
	RunningDuration time.Duration
	MinGap          time.Duration
}

// DefaultWindow: largada entre 30s e 60s, corrida de 5s, 2s de intervalo.
var DefaultWindow = Window{
	MinUntilStart:   30 * time.Second,
	MaxUntilStart:   60 * time.Second,
	RunningDuration: 5 * time.Second,
	MinGap:          2 * time.Second,
}

var dogNames = []string{
	"Max", "Luna", "Rex", "Bella", "Leo", "Sara", "Bubi", "Mira", "Duke", "Laki",
	"Brzopet", "Frkač", "Trkalica", "Pahulja", "Krepko", "Zvrk", "Pliško", "Brzopuh", "Mrcina",
	"Lule", "Trkačica", "Medo", "Raketko", "Šmeker", "Zeko", "Vjetrić", "Munja",
}

// New monta uma corrida com corredores numerados 1..n e nomes distintos sorteados.
func New(startTime time.Time, n int, rng *rand.Rand) (models.Race, error) {
	if n < 1 {
		return models.Race{}, ErrInvalidParticipantCount
	}

	order := rng.Perm(len(dogNames))
	participants := make([]models.Participant, n)
	for i := range participants {
		name := dogNames[order[i%len(dogNames)]]
		if i >= len(dogNames) {
			name = fmt.Sprintf("%s %d", name, i/len(dogNames)+1)
		}
		participants[i] = models.Participant{Number: i + 1, Name: name}
	}

	return models.Race{
		StartTime:          startTime.UTC(),
		Participants:       participants,
		OfficialPlacements: []int{},
	}, nil
}

// Finish sorteia a ordem oficial de chegada e marca o vencedor.
func Finish(r *models.Race, rng *rand.Rand, now time.Time) error {
	if r.Finished {
		return ErrRaceFinished
	}

	placements := make([]int, len(r.Participants))
	for i, idx := range rng.Perm(len(r.Participants)) {
		placements[i] = r.Participants[idx].Number
	}

	end := now.UTC()
	r.Finished = true
	r.EndTime = &end
	r.OfficialPlacements = placements
	if len(placements) > 0 {
		winner := placements[0]
		r.WinnerNumber = &winner
	}
	for i := range r.Participants {
		r.Participants[i].Winner = r.WinnerNumber != nil && r.Participants[i].Number == *r.WinnerNumber
	}
	return nil
}

// StateAt deriva o estado da corrida no instante now. StartTime == now já conta como largada.
func StateAt(r models.Race, now time.Time) State {
	switch {
	case r.Finished:
		return Finished
	case !r.StartTime.After(now):
		return Running
	default:
		return Scheduled
	}
}

// Started informa se a corrida já largou (ou terminou) no instante now.
func Started(r models.Race, now time.Time) bool {
	return StateAt(r, now) != Scheduled
}

// NextStartTime calcula a próxima largada: no mínimo now+MinUntilStart e depois do fim
// projetado da última corrida pendente (+MinGap), com um deslocamento aleatório em segundos.
func NextStartTime(now time.Time, latest *models.Race, w Window, rng *rand.Rand) time.Time {
	earliest := now.Add(w.MinUntilStart)
	if latest != nil {
		after := latest.StartTime.Add(w.RunningDuration + w.MinGap)
		if after.After(earliest) {
			earliest = after
		}
	}

	spread := int((w.MaxUntilStart - w.MinUntilStart) / time.Second)
	if spread < 0 {
		spread = 0
	}
	offset := rng.IntN(spread + 1)
	return earliest.Add(time.Duration(offset) * time.Second).UTC()
}
