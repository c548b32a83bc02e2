package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/elimination-zones/internal/game/betting"
	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/game/query"
	"github.com/radieske/elimination-zones/internal/wallet"
	"github.com/radieske/elimination-zones/internal/zones-service/dto"
)

// UserHeader carrega o usuário autenticado pelo gateway
const UserHeader = "X-User-ID"

type Queries interface {
	CurrentRound(ctx context.Context, userID string) (query.CurrentRound, error)
	ZoneBets(ctx context.Context, roundID string) (query.ZoneBets, error)
	RoundDetails(ctx context.Context, roundID, userID string) (query.RoundDetails, error)
	History(ctx context.Context, userID string, page int) (query.HistoryPage, error)
	TopProfits(ctx context.Context) ([]model.RoundProfit, error)
}

type Placer interface {
	Place(ctx context.Context, userID string, reqs []betting.BetRequest) (betting.Receipt, error)
}

// API expõe os endpoints REST do jogo de zonas e o feed websocket
type API struct {
	Log     *zap.Logger
	Queries Queries
	Bets    Placer
	Feed    http.HandlerFunc // nil desliga /ws
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/rounds/current", a.currentRound)   // Rodada ativa + apostas do usuário
	r.Get("/v1/rounds/history", a.history)        // Rodadas finalizadas, ?page=
	r.Get("/v1/rounds/top-profits", a.topProfits) // Maiores lucros recentes
	r.Get("/v1/rounds/{id}", a.roundDetails)      // Detalhes de uma rodada
	r.Get("/v1/rounds/{id}/zones", a.zoneBets)    // Totais por zona
	r.Post("/v1/bets", a.placeBets)               // Aposta em uma ou mais zonas
	if a.Feed != nil {
		r.Get("/ws", a.Feed)
	}
	return r
}

func userID(r *http.Request) string { return r.Header.Get(UserHeader) }

func (a *API) currentRound(w http.ResponseWriter, r *http.Request) {
	cur, err := a.Queries.CurrentRound(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromCurrentRound(cur))
}

func (a *API) zoneBets(w http.ResponseWriter, r *http.Request) {
	z, err := a.Queries.ZoneBets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromZoneBets(z))
}

func (a *API) roundDetails(w http.ResponseWriter, r *http.Request) {
	d, err := a.Queries.RoundDetails(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromRoundDetails(d))
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("validation_error", "page must be an integer"))
			return
		}
		page = n
	}
	h, err := a.Queries.History(r.Context(), userID(r), page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromHistory(h))
}

func (a *API) topProfits(w http.ResponseWriter, r *http.Request) {
	top, err := a.Queries.TopProfits(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromProfits(top))
}

func (a *API) placeBets(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("validation_error", "bad json"))
		return
	}
	rc, err := a.Bets.Place(r.Context(), userID(r), req.ToBetRequests())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.FromReceipt(rc))
}

// writeError traduz erros de domínio em status HTTP; o resto vira 500 opaco
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody("validation_error", err.Error()))
	case errors.Is(err, wallet.ErrInsufficientBalance):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("insufficient_balance", "insufficient balance"))
	case errors.Is(err, wallet.ErrBalanceLimit):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("balance_limit", "balance limit exceeded"))
	case errors.Is(err, model.ErrNoActiveRound):
		writeJSON(w, http.StatusConflict, errorBody("no_active_round", "no round is accepting bets"))
	case errors.Is(err, model.ErrRoundNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not_found", "round not found"))
	case errors.Is(err, model.ErrLockTimeout):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("busy", "try again"))
	default:
		a.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "internal error"))
	}
}

func errorBody(code, msg string) dto.ErrorResponse {
	return dto.ErrorResponse{Error: dto.ErrorBody{Code: code, Message: msg}}
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
