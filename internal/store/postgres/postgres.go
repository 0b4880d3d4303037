// Package postgres implementa store.Store sobre database/sql + lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/dog-race-platform/internal/models"
	"github.com/radieske/dog-race-platform/internal/store"
)

// queryer é satisfeito tanto por *sql.DB quanto por *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implementa store.Store em banco Postgres
type Store struct {
	queries
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New retorna o gateway de persistência sobre a conexão informada
func New(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// InTx abre uma transação, executa fn e faz commit; qualquer erro faz rollback
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{queries: queries{q: sqlTx}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type queries struct{ q queryer }

const raceColumns = `id, start_time, end_time, is_finished, winner_number, official_placements`

func scanRace(sc interface{ Scan(...any) error }) (models.Race, error) {
	var (
		r          models.Race
		end        sql.NullTime
		winner     sql.NullInt64
		placements []int64
	)
	if err := sc.Scan(&r.ID, &r.StartTime, &end, &r.Finished, &winner, pq.Array(&placements)); err != nil {
		return models.Race{}, err
	}
	r.StartTime = r.StartTime.UTC()
	if end.Valid {
		t := end.Time.UTC()
		r.EndTime = &t
	}
	if winner.Valid {
		n := int(winner.Int64)
		r.WinnerNumber = &n
	}
	r.OfficialPlacements = make([]int, len(placements))
	for i, p := range placements {
		r.OfficialPlacements[i] = int(p)
	}
	return r, nil
}

func (q queries) getRace(ctx context.Context, id int64, lock bool) (*models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	r, err := scanRace(q.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	races := []models.Race{r}
	if err := q.attachParticipants(ctx, races); err != nil {
		return nil, err
	}
	return &races[0], nil
}

func (q queries) GetRace(ctx context.Context, id int64) (*models.Race, error) {
	return q.getRace(ctx, id, false)
}

func (q queries) listRaces(ctx context.Context, where string, args ...any) ([]models.Race, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+raceColumns+` FROM races WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Race
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := q.attachParticipants(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachParticipants carrega os corredores de todas as corridas numa única consulta
func (q queries) attachParticipants(ctx context.Context, races []models.Race) error {
	if len(races) == 0 {
		return nil
	}
	ids := make([]int64, len(races))
	idx := make(map[int64]int, len(races))
	for i, r := range races {
		ids[i] = r.ID
		idx[r.ID] = i
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT id, race_id, number, name, is_winner
		FROM participants
		WHERE race_id = ANY($1)
		ORDER BY race_id, number`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.RaceID, &p.Number, &p.Name, &p.Winner); err != nil {
			return err
		}
		i := idx[p.RaceID]
		races[i].Participants = append(races[i].Participants, p)
	}
	return rows.Err()
}

func (q queries) ListUnfinishedRaces(ctx context.Context) ([]models.Race, error) {
	return q.listRaces(ctx, `NOT is_finished ORDER BY start_time, id`)
}

func (q queries) ListActiveRaces(ctx context.Context, now time.Time) ([]models.Race, error) {
	return q.listRaces(ctx, `NOT is_finished AND start_time > $1 ORDER BY start_time, id`, now)
}

func (q queries) CountUnfinishedRaces(ctx context.Context) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM races WHERE NOT is_finished`).Scan(&n)
	return n, err
}

func (q queries) LatestUnfinishedRace(ctx context.Context) (*models.Race, error) {
	races, err := q.listRaces(ctx, `NOT is_finished ORDER BY start_time DESC, id DESC LIMIT 1`)
	if err != nil {
		return nil, err
	}
	if len(races) == 0 {
		return nil, nil
	}
	return &races[0], nil
}

func (q queries) getPlayer(ctx context.Context, id int64, lock bool) (*models.Player, error) {
	query := `SELECT id, name, balance, created_at FROM players WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	var p models.Player
	err := q.q.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Balance, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q queries) GetPlayer(ctx context.Context, id int64) (*models.Player, error) {
	return q.getPlayer(ctx, id, false)
}

func (q queries) ListLedger(ctx context.Context, playerID int64) ([]models.LedgerEntry, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, player_id, operation_type, amount, balance_after, related_bet_id, created_at
		FROM wallet_ledger
		WHERE player_id=$1
		ORDER BY created_at, id`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var (
			e     models.LedgerEntry
			betID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.Operation, &e.Amount, &e.BalanceAfter, &betID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if betID.Valid {
			e.BetID = &betID.Int64
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const betColumns = `id, player_id, race_id, amount, bet_type, selection, status, payout, created_at, updated_at`

func scanBet(sc interface{ Scan(...any) error }) (models.Bet, error) {
	var (
		b      models.Bet
		sel    []byte
		payout decimal.NullDecimal
	)
	if err := sc.Scan(&b.ID, &b.PlayerID, &b.RaceID, &b.Amount, &b.Type, &sel, &b.Status, &payout, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return models.Bet{}, err
	}
	if len(sel) > 0 {
		if err := json.Unmarshal(sel, &b.Selection); err != nil {
			return models.Bet{}, fmt.Errorf("decode selection of bet %d: %w", b.ID, err)
		}
	}
	if payout.Valid {
		b.Payout = &payout.Decimal
	}
	return b, nil
}

func (q queries) getBet(ctx context.Context, id int64, lock bool) (*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	b, err := scanBet(q.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (q queries) GetBet(ctx context.Context, id int64) (*models.Bet, error) {
	return q.getBet(ctx, id, false)
}

func (q queries) listBets(ctx context.Context, where string, args ...any) ([]models.Bet, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+betColumns+` FROM bets WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q queries) ListBetsByPlayer(ctx context.Context, playerID int64) ([]models.Bet, error) {
	bets, err := q.listBets(ctx, `player_id=$1 ORDER BY id DESC`, playerID)
	if err != nil || len(bets) == 0 {
		return bets, err
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, b := range bets {
		if !seen[b.RaceID] {
			seen[b.RaceID] = true
			ids = append(ids, b.RaceID)
		}
	}
	races, err := q.listRaces(ctx, `id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.Race, len(races))
	for i := range races {
		byID[races[i].ID] = &races[i]
	}
	for i := range bets {
		bets[i].Race = byID[bets[i].RaceID]
	}
	return bets, nil
}

func (q queries) ListBetsByStatus(ctx context.Context, status models.BetStatus) ([]models.Bet, error) {
	return q.listBets(ctx, `status=$1 ORDER BY id`, status)
}

func (q queries) ListBetsByRace(ctx context.Context, raceID int64, status models.BetStatus) ([]models.Bet, error) {
	return q.listBets(ctx, `race_id=$1 AND status=$2 ORDER BY id`, raceID, status)
}

// tx adiciona as escritas e leituras com FOR UPDATE
type tx struct {
	queries
}

func (t *tx) LockRace(ctx context.Context, id int64) (*models.Race, error) {
	return t.getRace(ctx, id, true)
}

func (t *tx) LockPlayer(ctx context.Context, id int64) (*models.Player, error) {
	return t.getPlayer(ctx, id, true)
}

func (t *tx) LockBet(ctx context.Context, id int64) (*models.Bet, error) {
	return t.getBet(ctx, id, true)
}

func (t *tx) InsertRace(ctx context.Context, r *models.Race) error {
	if err := t.q.QueryRowContext(ctx,
		`INSERT INTO races (start_time, is_finished) VALUES ($1, FALSE) RETURNING id`,
		r.StartTime).Scan(&r.ID); err != nil {
		return fmt.Errorf("insert race: %w", err)
	}
	for i := range r.Participants {
		p := &r.Participants[i]
		p.RaceID = r.ID
		if err := t.q.QueryRowContext(ctx,
			`INSERT INTO participants (race_id, number, name, is_winner) VALUES ($1,$2,$3,$4) RETURNING id`,
			p.RaceID, p.Number, p.Name, p.Winner).Scan(&p.ID); err != nil {
			return fmt.Errorf("insert participant %d: %w", p.Number, err)
		}
	}
	return nil
}

func (t *tx) UpdateRaceResult(ctx context.Context, r *models.Race) error {
	placements := make([]int64, len(r.OfficialPlacements))
	for i, p := range r.OfficialPlacements {
		placements[i] = int64(p)
	}
	var winner sql.NullInt64
	if r.WinnerNumber != nil {
		winner = sql.NullInt64{Int64: int64(*r.WinnerNumber), Valid: true}
	}
	res, err := t.q.ExecContext(ctx, `
		UPDATE races SET is_finished=$1, end_time=$2, winner_number=$3, official_placements=$4
		WHERE id=$5`, r.Finished, r.EndTime, winner, pq.Array(placements), r.ID)
	if err != nil {
		return fmt.Errorf("update race: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if _, err := t.q.ExecContext(ctx,
		`UPDATE participants SET is_winner = COALESCE(number = $1, FALSE) WHERE race_id=$2`, winner, r.ID); err != nil {
		return fmt.Errorf("update participants: %w", err)
	}
	return nil
}

func (t *tx) InsertPlayer(ctx context.Context, p *models.Player) error {
	return t.q.QueryRowContext(ctx,
		`INSERT INTO players (name, balance) VALUES ($1,$2) RETURNING id, created_at`,
		p.Name, p.Balance).Scan(&p.ID, &p.CreatedAt)
}

func (t *tx) UpdatePlayerBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	res, err := t.q.ExecContext(ctx, `UPDATE players SET balance=$1 WHERE id=$2`, balance, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO wallet_ledger (id, player_id, operation_type, amount, balance_after, related_bet_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.PlayerID, e.Operation, e.Amount, e.BalanceAfter, e.BetID, e.CreatedAt)
	return err
}

func (t *tx) InsertBet(ctx context.Context, b *models.Bet) error {
	sel, err := json.Marshal(b.Selection)
	if err != nil {
		return err
	}
	return t.q.QueryRowContext(ctx, `
		INSERT INTO bets (player_id, race_id, amount, bet_type, selection, status, payout)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at, updated_at`,
		b.PlayerID, b.RaceID, b.Amount, b.Type, sel, b.Status, nullDecimal(b.Payout),
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

func (t *tx) UpdateBetStatus(ctx context.Context, b *models.Bet) error {
	var cur models.BetStatus
	err := t.q.QueryRowContext(ctx, `SELECT status FROM bets WHERE id=$1 FOR UPDATE`, b.ID).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := cur.Transition(b.Status); err != nil {
		return fmt.Errorf("bet %d: %w", b.ID, err)
	}

	res, err := t.q.ExecContext(ctx,
		`UPDATE bets SET status=$1, payout=$2, updated_at=NOW() WHERE id=$3`,
		b.Status, nullDecimal(b.Payout), b.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
