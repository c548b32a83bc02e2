package dto

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/elimination-zones/internal/game/betting"
	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/game/query"
)

// BetItem é um par zona/valor do corpo de POST /v1/bets
type BetItem struct {
	Zone   int             `json:"zone"`
	Amount decimal.Decimal `json:"amount"`
}

type PlaceBetsRequest struct {
	Bets []BetItem `json:"bets"`
}

func (r PlaceBetsRequest) ToBetRequests() []betting.BetRequest {
	out := make([]betting.BetRequest, 0, len(r.Bets))
	for _, b := range r.Bets {
		out = append(out, betting.BetRequest{Zone: b.Zone, Amount: b.Amount})
	}
	return out
}

// Valores monetários saem sempre com duas casas, como string
type Round struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	SafeZones []int     `json:"safeZones"`
	TotalBets string    `json:"totalBets"`
	IsValid   bool      `json:"isValid"`
	CreatedAt time.Time `json:"createdAt"`
}

type Bet struct {
	ID        string    `json:"id"`
	RoundID   string    `json:"roundId"`
	Zone      int       `json:"zone"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	WinAmount string    `json:"winAmount"`
	CreatedAt time.Time `json:"createdAt"`
}

type Summary struct {
	TotalBet string `json:"totalBet"`
	TotalWin string `json:"totalWin"`
	Net      string `json:"net"`
}

type CurrentRoundResponse struct {
	Round    Round             `json:"round"`
	UserBets map[string]string `json:"userBets"`
	Zones    map[string]string `json:"zones"`
}

type ZoneBetsResponse struct {
	RoundID string            `json:"roundId"`
	Zones   map[string]string `json:"zones"`
	Total   string            `json:"total"`
}

type RoundDetailsResponse struct {
	Round   Round             `json:"round"`
	Bets    []Bet             `json:"bets"`
	Zones   map[string]string `json:"zones"`
	Summary *Summary          `json:"summary,omitempty"`
}

type HistoryItem struct {
	Round   Round   `json:"round"`
	Bets    []Bet   `json:"bets"`
	Summary Summary `json:"summary"`
}

type HistoryResponse struct {
	Items      []HistoryItem `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	Total      int           `json:"total"`
	TotalPages int           `json:"totalPages"`
}

type Profit struct {
	RoundID   string    `json:"roundId"`
	UserID    string    `json:"userId"`
	Profit    string    `json:"profit"`
	CreatedAt time.Time `json:"createdAt"`
}

type PlaceBetsResponse struct {
	RoundID string            `json:"roundId"`
	Bets    []Bet             `json:"bets"`
	Total   string            `json:"total"`
	Balance string            `json:"balance"`
	Zones   map[string]string `json:"zones"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func money(d decimal.Decimal) string { return d.StringFixed(model.MoneyPlaces) }

// Zones converte zona -> total para o formato JSON ("1".."8" -> "0.00")
func Zones(z map[int]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(z))
	for zone, v := range z {
		out[strconv.Itoa(zone)] = money(v)
	}
	return out
}

func FromRound(r model.Round) Round {
	safe := r.SafeZones
	if safe == nil {
		safe = []int{}
	}
	return Round{
		ID:        r.ID,
		Status:    string(r.Status),
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		SafeZones: safe,
		TotalBets: money(r.TotalBets),
		IsValid:   r.IsValid,
		CreatedAt: r.CreatedAt,
	}
}

func FromBets(bets []model.Bet) []Bet {
	out := make([]Bet, 0, len(bets))
	for _, b := range bets {
		out = append(out, Bet{
			ID:        b.ID,
			RoundID:   b.RoundID,
			Zone:      b.Zone,
			Amount:    money(b.Amount),
			Status:    string(b.Status),
			WinAmount: money(b.WinAmount),
			CreatedAt: b.CreatedAt,
		})
	}
	return out
}

func FromSummary(s query.UserSummary) Summary {
	return Summary{TotalBet: money(s.TotalBet), TotalWin: money(s.TotalWin), Net: money(s.Net)}
}

func FromCurrentRound(c query.CurrentRound) CurrentRoundResponse {
	return CurrentRoundResponse{Round: FromRound(c.Round), UserBets: Zones(c.UserBets), Zones: Zones(c.Zones)}
}

func FromZoneBets(z query.ZoneBets) ZoneBetsResponse {
	return ZoneBetsResponse{RoundID: z.RoundID, Zones: Zones(z.Zones), Total: money(z.Total)}
}

func FromRoundDetails(d query.RoundDetails) RoundDetailsResponse {
	out := RoundDetailsResponse{Round: FromRound(d.Round), Bets: FromBets(d.UserBets), Zones: Zones(d.Zones)}
	if d.Summary != nil {
		s := FromSummary(*d.Summary)
		out.Summary = &s
	}
	return out
}

func FromHistory(p query.HistoryPage) HistoryResponse {
	out := HistoryResponse{
		Items:      make([]HistoryItem, 0, len(p.Items)),
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	}
	for _, it := range p.Items {
		out.Items = append(out.Items, HistoryItem{
			Round:   FromRound(it.Round),
			Bets:    FromBets(it.Bets),
			Summary: FromSummary(it.Summary),
		})
	}
	return out
}

func FromProfits(ps []model.RoundProfit) []Profit {
	out := make([]Profit, 0, len(ps))
	for _, p := range ps {
		out = append(out, Profit{RoundID: p.RoundID, UserID: p.UserID, Profit: money(p.Profit), CreatedAt: p.CreatedAt})
	}
	return out
}

func FromReceipt(rc betting.Receipt) PlaceBetsResponse {
	return PlaceBetsResponse{
		RoundID: rc.RoundID,
		Bets:    FromBets(rc.Bets),
		Total:   money(rc.Total),
		Balance: money(rc.Balance),
		Zones:   Zones(rc.ZoneTotals),
	}
}
