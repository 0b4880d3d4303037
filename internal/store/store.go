// Package store define o contrato de persistência de corridas, apostas e jogadores.
// Cada operação lógica (apostar, promover, finalizar, liquidar) roda dentro de um InTx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/dog-race-platform/internal/models"
)

var ErrNotFound = errors.New("not found")

// Queries são as leituras disponíveis tanto fora quanto dentro de uma transação.
type Queries interface {
	GetRace(ctx context.Context, id int64) (*models.Race, error)
	// ListUnfinishedRaces retorna corridas não finalizadas ordenadas por StartTime
	ListUnfinishedRaces(ctx context.Context) ([]models.Race, error)
	// ListActiveRaces retorna corridas não finalizadas com StartTime > now
	ListActiveRaces(ctx context.Context, now time.Time) ([]models.Race, error)
	CountUnfinishedRaces(ctx context.Context) (int, error)
	// LatestUnfinishedRace retorna a corrida não finalizada com maior StartTime (nil se não houver)
	LatestUnfinishedRace(ctx context.Context) (*models.Race, error)

	GetPlayer(ctx context.Context, id int64) (*models.Player, error)
	ListLedger(ctx context.Context, playerID int64) ([]models.LedgerEntry, error)

	GetBet(ctx context.Context, id int64) (*models.Bet, error)
	// ListBetsByPlayer inclui a corrida de cada aposta, mais recentes primeiro
	ListBetsByPlayer(ctx context.Context, playerID int64) ([]models.Bet, error)
	ListBetsByStatus(ctx context.Context, status models.BetStatus) ([]models.Bet, error)
	ListBetsByRace(ctx context.Context, raceID int64, status models.BetStatus) ([]models.Bet, error)
}

// Tx é uma unidade transacional; as escritas só ficam visíveis após o commit.
type Tx interface {
	Queries

	// Lock* leem a linha com bloqueio pessimista até o fim da transação
	LockRace(ctx context.Context, id int64) (*models.Race, error)
	LockPlayer(ctx context.Context, id int64) (*models.Player, error)
	LockBet(ctx context.Context, id int64) (*models.Bet, error)

	InsertRace(ctx context.Context, r *models.Race) error
	UpdateRaceResult(ctx context.Context, r *models.Race) error

	InsertPlayer(ctx context.Context, p *models.Player) error
	UpdatePlayerBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error

	InsertBet(ctx context.Context, b *models.Bet) error
	UpdateBetStatus(ctx context.Context, b *models.Bet) error
}

// Store é o gateway de persistência consumido pelos serviços.
type Store interface {
	Queries
	// InTx executa fn numa transação; erro em fn desfaz tudo
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
