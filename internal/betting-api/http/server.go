package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/radieske/dog-race-platform/internal/bet"
	"github.com/radieske/dog-race-platform/internal/betting-api/dto"
	"github.com/radieske/dog-race-platform/internal/models"
	"github.com/radieske/dog-race-platform/internal/player"
	"github.com/radieske/dog-race-platform/internal/race"
	"github.com/radieske/dog-race-platform/internal/wallet"
	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

const activeRacesTTL = time.Second

// RaceCache é o cache opcional da lista de corridas ativas
type RaceCache interface {
	GetActiveRaces(ctx context.Context, dst any) (bool, error)
	SetActiveRaces(ctx context.Context, v any, ttl time.Duration) error
}

type BetPublisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
}

// API expõe as operações do apostador: jogadores, corridas ativas e apostas
type API struct {
	Log     *zap.Logger
	Players *player.Service
	Races   *race.Service
	Bets    *bet.Engine

	Cache RaceCache        // opcional
	Publ  BetPublisher     // opcional
	WS    http.HandlerFunc // opcional, GET /ws

	// OnBetPlaced/OnBetRejected alimentam métricas
	OnBetPlaced   func()
	OnBetRejected func(code string)
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/v1/players", a.createPlayer)
	r.Get("/v1/players/{id}", a.getPlayer)
	r.Post("/v1/players/{id}/deposits", a.deposit)
	r.Get("/v1/players/{id}/bets", a.listPlayerBets)
	r.Get("/v1/players/{id}/ledger", a.listLedger)

	r.Get("/v1/races/active", a.listActiveRaces)
	r.Get("/v1/races/{id}", a.getRace)

	r.Post("/v1/bets", a.placeBet)
	r.Get("/v1/bets/{id}", a.getBet)

	if a.WS != nil {
		r.Get("/ws", a.WS)
	}
	return r
}

func (a *API) createPlayer(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	p, err := a.Players.Create(r.Context(), req.Name)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.Player(p))
}

func (a *API) getPlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := a.Players.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Player(*p))
}

func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	p, err := a.Players.Deposit(r.Context(), id, req.Amount)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Player(p))
}

func (a *API) listPlayerBets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := a.Players.Get(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	bets, err := a.Bets.ListByPlayer(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	now := a.Races.Now()
	out := make([]dto.BetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, dto.Bet(b, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) listLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := a.Players.Ledger(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// listActiveRaces retorna as corridas abertas, preferencialmente do cache
func (a *API) listActiveRaces(w http.ResponseWriter, r *http.Request) {
	if a.Cache != nil {
		var fromCache []dto.RaceResponse
		if ok, _ := a.Cache.GetActiveRaces(r.Context(), &fromCache); ok {
			writeJSON(w, http.StatusOK, fromCache)
			return
		}
	}

	races, err := a.Races.ListActive(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := dto.Races(races, a.Races.Now())

	if a.Cache != nil {
		_ = a.Cache.SetActiveRaces(r.Context(), out, activeRacesTTL)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getRace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rc, err := a.Races.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Race(*rc, a.Races.Now()))
}

func (a *API) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	if req.Type == "" {
		req.Type = string(models.BetTypeWin)
	}

	b, err := a.Bets.Place(r.Context(), models.Bet{
		PlayerID:  req.PlayerID,
		RaceID:    req.RaceID,
		Amount:    req.Amount,
		Type:      models.BetType(req.Type),
		Selection: models.Selection{Number: req.Participant},
	})
	if err != nil {
		a.writeError(w, err)
		return
	}

	p, err := a.Players.Get(r.Context(), b.PlayerID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	potential, _ := a.Bets.PotentialPayout(b)

	if a.OnBetPlaced != nil {
		a.OnBetPlaced()
	}
	a.publishBetPlaced(r.Context(), b, p.Balance.StringFixed(2))

	writeJSON(w, http.StatusCreated, dto.PlaceBetResponse{
		Bet:             dto.Bet(b, a.Races.Now()),
		PotentialPayout: potential.StringFixed(2),
		Balance:         p.Balance.StringFixed(2),
	})
}

// publishBetPlaced é best effort: a aposta já foi gravada
func (a *API) publishBetPlaced(ctx context.Context, b models.Bet, balance string) {
	if a.Publ == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := a.Publ.PublishBetPlaced(ctx, events.BetPlaced{
		BetID:       b.ID,
		PlayerID:    b.PlayerID,
		RaceID:      b.RaceID,
		BetType:     string(b.Type),
		Selection:   bet.Describe(b),
		Amount:      b.Amount.StringFixed(2),
		BalanceLeft: balance,
	})
	if err != nil {
		a.Log.Warn("publish bet_placed", zap.Int64("bet_id", b.ID), zap.Error(err))
	}
}

func (a *API) getBet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := a.Bets.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Bet(*b, a.Races.Now()))
}

// writeError traduz erros de domínio em status HTTP
func (a *API) writeError(w http.ResponseWriter, err error) {
	var ve *bet.ValidationError
	switch {
	case errors.As(err, &ve):
		code := validationCode(ve.Err)
		if a.OnBetRejected != nil {
			a.OnBetRejected(code)
		}
		writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: ve.Reason, Code: code})
	case errors.Is(err, player.ErrInvalidName), errors.Is(err, wallet.ErrInvalidAmount):
		writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: err.Error(), Code: "invalid_request"})
	case errors.Is(err, wallet.ErrInsufficientFunds):
		if a.OnBetRejected != nil {
			a.OnBetRejected("insufficient_funds")
		}
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "insufficient funds in player wallet", Code: "insufficient_funds"})
	case errors.Is(err, player.ErrNotFound), errors.Is(err, race.ErrRaceNotFound), errors.Is(err, bet.ErrBetNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: err.Error(), Code: "not_found"})
	default:
		a.Log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}

func validationCode(err error) string {
	switch {
	case errors.Is(err, bet.ErrRaceUnavailable):
		return "race_unavailable"
	case errors.Is(err, bet.ErrStakeOutOfRange):
		return "stake_out_of_range"
	case errors.Is(err, bet.ErrUnknownBetType):
		return "unknown_bet_type"
	case errors.Is(err, bet.ErrUnknownParticipant):
		return "unknown_participant"
	case errors.Is(err, bet.ErrPayoutCapExceeded):
		return "payout_cap_exceeded"
	default:
		return "invalid_bet"
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
