package query

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/game/repo"
)

const (
	HistoryPageSize = 10
	TopProfitsLimit = 9
)

type ZoneReader interface {
	GetZones(ctx context.Context, roundID string) (map[int]decimal.Decimal, error)
}

type ProfitCache interface {
	Top(ctx context.Context) ([]model.RoundProfit, bool, error)
	Fill(ctx context.Context, profits []model.RoundProfit) error
}

// UserSummary totaliza o resultado de um usuário numa rodada finalizada
type UserSummary struct {
	TotalBet decimal.Decimal
	TotalWin decimal.Decimal
	Net      decimal.Decimal
}

type CurrentRound struct {
	Round    model.Round
	UserBets map[int]decimal.Decimal // zona -> total do usuário
	Zones    map[int]decimal.Decimal
}

type ZoneBets struct {
	RoundID string
	Zones   map[int]decimal.Decimal
	Total   decimal.Decimal
}

type RoundDetails struct {
	Round    model.Round
	UserBets []model.Bet
	Zones    map[int]decimal.Decimal
	Summary  *UserSummary // só para rodadas finalizadas
}

type HistoryItem struct {
	Round   model.Round
	Bets    []model.Bet
	Summary UserSummary
}

type HistoryPage struct {
	Items      []HistoryItem
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// Service atende as leituras da API: rodada atual, totais, detalhes, histórico e ranking
type Service struct {
	store   repo.Store
	zones   ZoneReader
	profits ProfitCache
	log     *zap.Logger
}

func NewService(store repo.Store, zones ZoneReader, profits ProfitCache, log *zap.Logger) *Service {
	return &Service{store: store, zones: zones, profits: profits, log: log}
}

// CurrentRound devolve a rodada ativa com as apostas do usuário por zona.
// Sem rodada ativa retorna model.ErrNoActiveRound; quem cria rodadas é o scheduler.
func (s *Service) CurrentRound(ctx context.Context, userID string) (CurrentRound, error) {
	round, err := s.store.ActiveRound(ctx)
	if err != nil {
		return CurrentRound{}, err
	}
	zones, err := s.zones.GetZones(ctx, round.ID)
	if err != nil {
		return CurrentRound{}, err
	}
	out := CurrentRound{Round: round, Zones: zones, UserBets: model.ZeroZones()}
	if userID == "" {
		return out, nil
	}
	bets, err := s.store.BetsByRoundAndUser(ctx, round.ID, userID)
	if err != nil {
		return CurrentRound{}, err
	}
	for _, b := range bets {
		out.UserBets[b.Zone] = out.UserBets[b.Zone].Add(b.Amount)
	}
	return out, nil
}

// ZoneBets devolve os totais por zona e a soma
func (s *Service) ZoneBets(ctx context.Context, roundID string) (ZoneBets, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return ZoneBets{}, err
	}
	zones, err := s.roundZones(ctx, round)
	if err != nil {
		return ZoneBets{}, err
	}
	total := decimal.Zero
	for _, v := range zones {
		total = total.Add(v)
	}
	return ZoneBets{RoundID: round.ID, Zones: zones, Total: total}, nil
}

func (s *Service) RoundDetails(ctx context.Context, roundID, userID string) (RoundDetails, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return RoundDetails{}, err
	}
	zones, err := s.roundZones(ctx, round)
	if err != nil {
		return RoundDetails{}, err
	}
	out := RoundDetails{Round: round, Zones: zones}
	if userID == "" {
		return out, nil
	}
	if out.UserBets, err = s.store.BetsByRoundAndUser(ctx, round.ID, userID); err != nil {
		return RoundDetails{}, err
	}
	if round.Status == model.RoundFinished {
		sum := summarize(out.UserBets)
		out.Summary = &sum
	}
	return out, nil
}

// History pagina as rodadas finalizadas (mais recentes primeiro) com as apostas do usuário
func (s *Service) History(ctx context.Context, userID string, page int) (HistoryPage, error) {
	if page < 1 {
		return HistoryPage{}, fmt.Errorf("%w: page must be >= 1", model.ErrValidation)
	}
	rounds, total, err := s.store.ListFinishedRounds(ctx, (page-1)*HistoryPageSize, HistoryPageSize)
	if err != nil {
		return HistoryPage{}, err
	}

	out := HistoryPage{
		Page:       page,
		PageSize:   HistoryPageSize,
		Total:      total,
		TotalPages: (total + HistoryPageSize - 1) / HistoryPageSize,
		Items:      make([]HistoryItem, 0, len(rounds)),
	}
	for _, r := range rounds {
		item := HistoryItem{Round: r, Summary: summarize(nil)}
		if userID != "" {
			bets, err := s.store.BetsByRoundAndUser(ctx, r.ID, userID)
			if err != nil {
				return HistoryPage{}, err
			}
			item.Bets = bets
			item.Summary = summarize(bets)
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// TopProfits devolve os líderes de lucro das últimas rodadas, do cache ou do banco
func (s *Service) TopProfits(ctx context.Context) ([]model.RoundProfit, error) {
	if s.profits != nil {
		top, ok, err := s.profits.Top(ctx)
		if err != nil {
			s.log.Warn("profit cache read failed", zap.Error(err))
		} else if ok {
			return top, nil
		}
	}

	top, err := s.store.RecentProfits(ctx, TopProfitsLimit)
	if err != nil {
		return nil, err
	}
	if s.profits != nil && len(top) > 0 {
		if err := s.profits.Fill(ctx, top); err != nil {
			s.log.Warn("profit cache fill failed", zap.Error(err))
		}
	}
	return top, nil
}

// roundZones lê rodadas ativas pelo agregador e as encerradas direto do banco,
// sem repovoar o cache de uma rodada que já saiu dele
func (s *Service) roundZones(ctx context.Context, round model.Round) (map[int]decimal.Decimal, error) {
	if round.Status.Active() {
		return s.zones.GetZones(ctx, round.ID)
	}
	return s.store.ZoneTotals(ctx, round.ID)
}

func summarize(bets []model.Bet) UserSummary {
	sum := UserSummary{TotalBet: decimal.Zero, TotalWin: decimal.Zero}
	for _, b := range bets {
		sum.TotalBet = sum.TotalBet.Add(b.Amount)
		sum.TotalWin = sum.TotalWin.Add(b.WinAmount)
	}
	sum.Net = sum.TotalWin.Sub(sum.TotalBet)
	return sum
}
