package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/dog-race-platform/internal/bet"
	"github.com/radieske/dog-race-platform/internal/betting-api/dto"
	"github.com/radieske/dog-race-platform/internal/player"
	"github.com/radieske/dog-race-platform/internal/race"
	"github.com/radieske/dog-race-platform/internal/store/memory"
	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

type fakeCache struct {
	data []byte
	sets int
}

func (c *fakeCache) GetActiveRaces(_ context.Context, dst any) (bool, error) {
	if c.data == nil {
		return false, nil
	}
	return true, json.Unmarshal(c.data, dst)
}

func (c *fakeCache) SetActiveRaces(_ context.Context, v any, _ time.Duration) error {
	c.sets++
	b, err := json.Marshal(v)
	c.data = b
	return err
}

type fakePublisher struct{ got []events.BetPlaced }

func (p *fakePublisher) PublishBetPlaced(_ context.Context, e events.BetPlaced) error {
	p.got = append(p.got, e)
	return nil
}

type harness struct {
	api      *API
	srv      *httptest.Server
	races    *race.Service
	publ     *fakePublisher
	cache    *fakeCache
	now      time.Time
	rejected []string
	placed   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := memory.New()
	h := &harness{
		publ:  &fakePublisher{},
		cache: &fakeCache{},
		now:   time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }

	h.races = race.NewService(st, race.DefaultWindow)
	h.races.Now = clock
	bets := bet.NewEngine(st, bet.DefaultLimits())
	bets.Now = clock

	h.api = &API{
		Log:           zap.NewNop(),
		Players:       player.NewService(st, decimal.NewFromInt(100)),
		Races:         h.races,
		Bets:          bets,
		Cache:         h.cache,
		Publ:          h.publ,
		OnBetPlaced:   func() { h.placed++ },
		OnBetRejected: func(code string) { h.rejected = append(h.rejected, code) },
	}
	h.srv = httptest.NewServer(h.api.Router())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (h *harness) createPlayer(t *testing.T) dto.PlayerResponse {
	t.Helper()
	var p dto.PlayerResponse
	if code := h.do(t, http.MethodPost, "/v1/players", dto.CreatePlayerRequest{Name: "ana"}, &p); code != http.StatusCreated {
		t.Fatalf("create player: status %d", code)
	}
	return p
}

func (h *harness) createRace(t *testing.T, in time.Duration) int64 {
	t.Helper()
	r, err := h.races.Create(context.Background(), h.now.Add(in), 6, rand.New(rand.NewPCG(7, 7)))
	if err != nil {
		t.Fatalf("create race: %v", err)
	}
	return r.ID
}

func betReq(playerID, raceID int64, amount string, participant int) dto.PlaceBetRequest {
	return dto.PlaceBetRequest{
		PlayerID:    playerID,
		RaceID:      raceID,
		Amount:      decimal.RequireFromString(amount),
		Participant: participant,
	}
}

func TestPlayers_CreateGetDeposit(t *testing.T) {
	h := newHarness(t)
	p := h.createPlayer(t)
	if p.Balance != "100.00" {
		t.Fatalf("initial balance = %s", p.Balance)
	}

	var got dto.PlayerResponse
	if code := h.do(t, http.MethodGet, "/v1/players/"+strconv.FormatInt(p.ID, 10), nil, &got); code != http.StatusOK {
		t.Fatalf("get player: status %d", code)
	}
	if got.Name != "ana" {
		t.Fatalf("name = %q", got.Name)
	}

	path := "/v1/players/" + strconv.FormatInt(p.ID, 10) + "/deposits"
	if code := h.do(t, http.MethodPost, path, dto.DepositRequest{Amount: decimal.RequireFromString("25.50")}, &got); code != http.StatusOK {
		t.Fatalf("deposit: status %d", code)
	}
	if got.Balance != "125.50" {
		t.Fatalf("balance after deposit = %s", got.Balance)
	}

	var errResp dto.ErrorResponse
	if code := h.do(t, http.MethodPost, path, dto.DepositRequest{Amount: decimal.RequireFromString("-1")}, &errResp); code != http.StatusUnprocessableEntity {
		t.Fatalf("negative deposit: status %d", code)
	}

	var ledger []map[string]any
	if code := h.do(t, http.MethodGet, "/v1/players/"+strconv.FormatInt(p.ID, 10)+"/ledger", nil, &ledger); code != http.StatusOK {
		t.Fatalf("ledger: status %d", code)
	}
	if len(ledger) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(ledger))
	}
}

func TestPlayers_Errors(t *testing.T) {
	h := newHarness(t)

	var e dto.ErrorResponse
	if code := h.do(t, http.MethodPost, "/v1/players", dto.CreatePlayerRequest{Name: "  "}, &e); code != http.StatusUnprocessableEntity {
		t.Fatalf("blank name: status %d", code)
	}
	if code := h.do(t, http.MethodGet, "/v1/players/999", nil, &e); code != http.StatusNotFound {
		t.Fatalf("missing player: status %d", code)
	}
	if code := h.do(t, http.MethodGet, "/v1/players/abc", nil, &e); code != http.StatusBadRequest {
		t.Fatalf("bad id: status %d", code)
	}
}

func TestPlaceBet_Success(t *testing.T) {
	h := newHarness(t)
	p := h.createPlayer(t)
	raceID := h.createRace(t, 30*time.Second)

	var resp dto.PlaceBetResponse
	if code := h.do(t, http.MethodPost, "/v1/bets", betReq(p.ID, raceID, "10", 3), &resp); code != http.StatusCreated {
		t.Fatalf("place bet: status %d", code)
	}
	if resp.Balance != "90.00" || resp.PotentialPayout != "20.00" {
		t.Fatalf("balance=%s potential=%s", resp.Balance, resp.PotentialPayout)
	}
	if resp.Bet.Status != "PENDING" || resp.Bet.Type != "win" {
		t.Fatalf("bet = %+v", resp.Bet)
	}
	if h.placed != 1 {
		t.Fatalf("placed hook = %d", h.placed)
	}
	if len(h.publ.got) != 1 || h.publ.got[0].BalanceLeft != "90.00" || h.publ.got[0].RaceID != raceID {
		t.Fatalf("published = %+v", h.publ.got)
	}

	var list []dto.BetResponse
	if code := h.do(t, http.MethodGet, "/v1/players/"+strconv.FormatInt(p.ID, 10)+"/bets", nil, &list); code != http.StatusOK {
		t.Fatalf("list bets: status %d", code)
	}
	if len(list) != 1 || list[0].Race == nil || list[0].Race.Status != "scheduled" {
		t.Fatalf("list = %+v", list)
	}

	var one dto.BetResponse
	if code := h.do(t, http.MethodGet, "/v1/bets/"+strconv.FormatInt(resp.Bet.ID, 10), nil, &one); code != http.StatusOK {
		t.Fatalf("get bet: status %d", code)
	}
}

func TestPlaceBet_Rejections(t *testing.T) {
	h := newHarness(t)
	p := h.createPlayer(t)
	open := h.createRace(t, 30*time.Second)
	started := h.createRace(t, -time.Second)

	cases := []struct {
		name   string
		req    dto.PlaceBetRequest
		status int
		code   string
	}{
		{"stake above max", betReq(p.ID, open, "60", 1), http.StatusUnprocessableEntity, "stake_out_of_range"},
		{"unknown participant", betReq(p.ID, open, "5", 9), http.StatusUnprocessableEntity, "unknown_participant"},
		{"race started", betReq(p.ID, started, "5", 1), http.StatusUnprocessableEntity, "race_unavailable"},
		{"missing race", betReq(p.ID, 999, "5", 1), http.StatusNotFound, "not_found"},
		{"missing player", betReq(999, open, "5", 1), http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var e dto.ErrorResponse
			if code := h.do(t, http.MethodPost, "/v1/bets", tc.req, &e); code != tc.status {
				t.Fatalf("status = %d, want %d (%+v)", code, tc.status, e)
			}
			if e.Code != tc.code {
				t.Fatalf("code = %q, want %q", e.Code, tc.code)
			}
		})
	}
	if len(h.publ.got) != 0 {
		t.Fatalf("rejected bets must not be published: %+v", h.publ.got)
	}
}

func TestPlaceBet_InsufficientFunds(t *testing.T) {
	h := newHarness(t)
	p := h.createPlayer(t)
	raceID := h.createRace(t, 30*time.Second)

	for i := 0; i < 2; i++ {
		if code := h.do(t, http.MethodPost, "/v1/bets", betReq(p.ID, raceID, "50", 1), nil); code != http.StatusCreated {
			t.Fatalf("bet %d: status %d", i, code)
		}
	}
	var e dto.ErrorResponse
	if code := h.do(t, http.MethodPost, "/v1/bets", betReq(p.ID, raceID, "1", 1), &e); code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", code)
	}
	if len(h.rejected) != 1 || h.rejected[0] != "insufficient_funds" {
		t.Fatalf("rejected = %v", h.rejected)
	}
}

func TestActiveRaces_UsesCache(t *testing.T) {
	h := newHarness(t)
	h.createRace(t, 30*time.Second)
	h.createRace(t, 80*time.Second)
	h.createRace(t, -time.Second)

	var first []dto.RaceResponse
	if code := h.do(t, http.MethodGet, "/v1/races/active", nil, &first); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(first) != 2 || first[0].SecondsToStart != 30 {
		t.Fatalf("active = %+v", first)
	}
	if h.cache.sets != 1 {
		t.Fatalf("cache sets = %d", h.cache.sets)
	}

	h.createRace(t, 120*time.Second)
	var second []dto.RaceResponse
	h.do(t, http.MethodGet, "/v1/races/active", nil, &second)
	if len(second) != 2 || h.cache.sets != 1 {
		t.Fatalf("expected cached response, got %d races and %d sets", len(second), h.cache.sets)
	}

	var one dto.RaceResponse
	if code := h.do(t, http.MethodGet, "/v1/races/"+strconv.FormatInt(first[0].ID, 10), nil, &one); code != http.StatusOK {
		t.Fatalf("get race: status %d", code)
	}
	if len(one.Participants) != 6 {
		t.Fatalf("participants = %d", len(one.Participants))
	}
	if code := h.do(t, http.MethodGet, "/v1/races/999", nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing race: status %d", code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newHarness(t)
	req, _ := http.NewRequest(http.MethodOptions, h.srv.URL+"/v1/bets", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}
