package bet

import (
	"errors"
	"fmt"

	"github.com/radieske/dog-race-platform/internal/models"
	"github.com/radieske/dog-race-platform/internal/player"
	"github.com/radieske/dog-race-platform/internal/race"
)

// Motivos de validação; sempre entregues dentro de um *ValidationError.
var (
	ErrRaceUnavailable    = errors.New("race not available for betting")
	ErrStakeOutOfRange    = errors.New("stake out of range")
	ErrUnknownBetType     = errors.New("unknown bet type")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrPayoutCapExceeded  = errors.New("potential payout exceeds cap")
)

var (
	ErrRaceNotFound    = race.ErrRaceNotFound
	ErrPlayerNotFound  = player.ErrNotFound
	ErrBetNotFound     = errors.New("bet not found")
	ErrBetNotPending   = errors.New("bet is not pending")
	ErrRaceNotFinished = errors.New("race is not finished")
	ErrNoPlacements    = errors.New("race has no official placements")
)

// ValidationError descreve por que a aposta foi recusada; nenhum saldo foi movido.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string { return e.Reason }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// TransferError indica que o status da aposta foi gravado mas o reembolso/pagamento falhou.
// Precisa de conciliação manual.
type TransferError struct {
	BetID     int64
	PlayerID  int64
	Operation models.LedgerOperation
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("bet %d: %s to player %d failed: %v", e.BetID, e.Operation, e.PlayerID, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
