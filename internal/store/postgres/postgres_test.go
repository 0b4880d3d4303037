package postgres_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/dog-race-platform/internal/bet"
	"github.com/radieske/dog-race-platform/internal/models"
	"github.com/radieske/dog-race-platform/internal/player"
	"github.com/radieske/dog-race-platform/internal/race"
	"github.com/radieske/dog-race-platform/internal/shared/db"
	"github.com/radieske/dog-race-platform/internal/store"
	"github.com/radieske/dog-race-platform/internal/store/postgres"
)

// Roda contra um Postgres real apenas com POSTGRES_TEST_DSN definido; o schema é recriado.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	pg, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { pg.Close() })
	if err := postgres.ResetSchema(ctx, pg); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return postgres.New(pg)
}

func TestInTx_RollbackOnError(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	var id int64
	err := st.InTx(ctx, func(tx store.Tx) error {
		p := models.Player{Name: "ghost", Balance: decimal.NewFromInt(10)}
		if err := tx.InsertPlayer(ctx, &p); err != nil {
			return err
		}
		id = p.ID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := st.GetPlayer(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("player survived rollback: err = %v", err)
	}
}

func TestRaceRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(3, 3))
	now := time.Now().UTC().Truncate(time.Microsecond)

	races := race.NewService(st, race.DefaultWindow)
	races.Now = func() time.Time { return now }

	open, err := races.Create(ctx, now.Add(40*time.Second), 6, rng)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	started, err := races.Create(ctx, now.Add(-time.Second), 6, rng)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	active, err := races.ListActive(ctx)
	if err != nil || len(active) != 1 || active[0].ID != open.ID {
		t.Fatalf("active = %+v, err = %v", active, err)
	}
	if len(active[0].Participants) != 6 {
		t.Fatalf("participants = %d", len(active[0].Participants))
	}

	done, err := races.Finish(ctx, started.ID, rng)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	got, err := races.Get(ctx, started.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Finished || len(got.OfficialPlacements) != 6 || *got.WinnerNumber != *done.WinnerNumber {
		t.Fatalf("finished race = %+v", got)
	}
	w, ok := got.Winner()
	if !ok || !w.Winner {
		t.Fatalf("winner flag not persisted: %+v", got.Participants)
	}
	if _, err := races.Finish(ctx, started.ID, rng); !errors.Is(err, race.ErrRaceFinished) {
		t.Fatalf("second finish err = %v", err)
	}
	if n, _ := races.CountUnfinished(ctx); n != 1 {
		t.Fatalf("unfinished = %d", n)
	}
}

func TestBetLifecycle(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(5, 5))
	now := time.Now().UTC()
	clock := func() time.Time { return now }

	players := player.NewService(st, decimal.NewFromInt(100))
	races := race.NewService(st, race.DefaultWindow)
	races.Now = clock
	eng := bet.NewEngine(st, bet.DefaultLimits())
	eng.Now = clock

	p, err := players.Create(ctx, "ana")
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	r, err := races.Create(ctx, now.Add(30*time.Second), 6, rng)
	if err != nil {
		t.Fatalf("create race: %v", err)
	}

	b, err := eng.Place(ctx, models.Bet{
		PlayerID:  p.ID,
		RaceID:    r.ID,
		Amount:    decimal.NewFromInt(10),
		Type:      models.BetTypeWin,
		Selection: models.Selection{Number: 2},
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if res, err := eng.Promote(ctx, b.ID); err != nil || res.Status != models.BetSuccess {
		t.Fatalf("promote = %+v, err = %v", res, err)
	}

	now = now.Add(31 * time.Second)
	finished, err := races.Finish(ctx, r.ID, rng)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	sum, err := eng.Resolve(ctx, r.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sum.Won+sum.Lost != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	want := decimal.NewFromInt(90)
	if *finished.WinnerNumber == 2 {
		want = decimal.NewFromInt(110)
	}
	got, err := players.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if !got.Balance.Equal(want) {
		t.Fatalf("balance = %s, want %s", got.Balance, want)
	}

	settled, err := eng.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("get bet: %v", err)
	}
	if settled.Selection.Number != 2 || !settled.Status.Final() {
		t.Fatalf("bet = %+v", settled)
	}

	ledger, err := players.Ledger(ctx, p.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	total := decimal.Zero
	for _, e := range ledger {
		total = total.Add(e.Amount)
	}
	if !total.Equal(got.Balance) {
		t.Fatalf("ledger sum %s != balance %s", total, got.Balance)
	}
}
