package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/game/random"
	"github.com/radieske/elimination-zones/internal/game/repo"
	"github.com/radieske/elimination-zones/internal/shared/logger"
)

const (
	// MinActiveZones é o mínimo de zonas com aposta para a rodada valer
	MinActiveZones = 3
	SafeZoneCount  = 2
)

// PoolShare é a fração do total apostado distribuída aos vencedores
var PoolShare = decimal.RequireFromString("0.90")

// ZoneClearer descarta a projeção de zonas de uma rodada encerrada
type ZoneClearer interface {
	Clear(ctx context.Context, roundID string) error
}

// Outcome resume uma chamada a Settle
type Outcome struct {
	RoundID string
	// Settled é false quando a rodada já estava finalizada (nada foi feito)
	Settled        bool
	Valid          bool
	SafeZones      []int
	TotalBets      decimal.Decimal
	TotalPaid      decimal.Decimal
	AffectedUsers  []string
	TopProfit      *model.RoundProfit
	NewRoundNeeded bool
}

// Engine liquida rodadas dentro da unidade de trabalho do chamador
type Engine struct {
	rng   random.Source
	zones ZoneClearer
	log   *zap.Logger
}

func NewEngine(rng random.Source, zones ZoneClearer, log *zap.Logger) *Engine {
	return &Engine{rng: rng, zones: zones, log: log}
}

// userTally acumula o resultado de um usuário na rodada
type userTally struct {
	staked   decimal.Decimal
	won      decimal.Decimal
	zones    []int
	anyWin   bool
	balance  decimal.Decimal
	credited bool
}

func (u *userTally) addZone(z int) {
	for _, have := range u.zones {
		if have == z {
			return
		}
	}
	u.zones = append(u.zones, z)
}

// Settle encerra a rodada: sorteia as zonas seguras, paga os vencedores e
// registra o histórico. Rodadas com menos de MinActiveZones zonas apostadas são
// invalidadas e reembolsadas. Qualquer erro deve abortar a unidade de trabalho.
// O chamador já detém o lock da rodada; carteiras são travadas só depois dele.
func (e *Engine) Settle(ctx context.Context, tx repo.Tx, round model.Round) (Outcome, error) {
	out := Outcome{RoundID: round.ID, TotalBets: round.TotalBets, TotalPaid: decimal.Zero}

	switch round.Status {
	case model.RoundFinished:
		return out, nil
	case model.RoundWaiting:
		return out, fmt.Errorf("%w: settle round %s in status %s", model.ErrInvalidTransition, round.ID, round.Status)
	case model.RoundRunning:
		if err := tx.UpdateRoundStatus(ctx, round.ID, model.RoundSettling); err != nil {
			return out, fmt.Errorf("mark settling: %w", err)
		}
		round.Status = model.RoundSettling
	case model.RoundSettling:
	}

	bets, err := tx.PendingBets(ctx, round.ID)
	if err != nil {
		return out, fmt.Errorf("pending bets: %w", err)
	}

	totals := model.ZeroZones()
	for _, b := range bets {
		totals[b.Zone] = totals[b.Zone].Add(b.Amount)
	}
	active := 0
	for _, t := range totals {
		if t.IsPositive() {
			active++
		}
	}

	if active < MinActiveZones {
		return e.invalidate(ctx, tx, round, bets, out)
	}

	safe := round.SafeZones
	if len(safe) != SafeZoneCount {
		safe, err = e.drawSafeZones()
		if err != nil {
			return out, err
		}
		if err := tx.SetSafeZones(ctx, round.ID, safe); err != nil {
			return out, fmt.Errorf("set safe zones: %w", err)
		}
		round.SafeZones = safe
	}

	pool := round.TotalBets.Mul(PoolShare)
	safeTotal := decimal.Zero
	for _, z := range safe {
		safeTotal = safeTotal.Add(totals[z])
	}

	ledger := tx.Ledger()
	var order []string
	tallies := make(map[string]*userTally)

	for _, b := range bets {
		u, ok := tallies[b.UserID]
		if !ok {
			u = &userTally{staked: decimal.Zero, won: decimal.Zero}
			tallies[b.UserID] = u
			order = append(order, b.UserID)
		}
		u.staked = u.staked.Add(b.Amount)
		u.addZone(b.Zone)

		if !round.IsSafe(b.Zone) {
			if err := tx.UpdateBetOutcome(ctx, b.ID, model.BetLose, decimal.Zero); err != nil {
				return out, fmt.Errorf("bet %s outcome: %w", b.ID, err)
			}
			continue
		}

		win := decimal.Zero
		if safeTotal.IsPositive() {
			win = Payout(pool, b.Amount, safeTotal)
		}
		if err := tx.UpdateBetOutcome(ctx, b.ID, model.BetWin, win); err != nil {
			return out, fmt.Errorf("bet %s outcome: %w", b.ID, err)
		}
		u.anyWin = true
		if win.IsPositive() {
			bal, err := ledger.Credit(ctx, b.UserID, win, "win:"+b.ID)
			if err != nil {
				return out, fmt.Errorf("credit win %s: %w", b.ID, err)
			}
			u.balance, u.credited = bal, true
			u.won = u.won.Add(win)
			out.TotalPaid = out.TotalPaid.Add(win)
		}
	}

	var top *model.RoundProfit
	for _, uid := range order {
		u := tallies[uid]
		if !u.credited {
			bal, err := ledger.Balance(ctx, uid, false)
			if err != nil {
				return out, fmt.Errorf("balance %s: %w", uid, err)
			}
			u.balance = bal
		}
		if err := tx.RecordHistory(ctx, model.HistoryEntry{
			UserID:        uid,
			GameType:      model.GameType,
			Amount:        u.staked,
			SelectedZones: u.zones,
			DrawnZones:    safe,
			Won:           u.anyWin,
			FinalBalance:  u.balance,
		}); err != nil {
			return out, fmt.Errorf("history %s: %w", uid, err)
		}

		net := u.won.Sub(u.staked)
		if top == nil || net.GreaterThan(top.Profit) {
			top = &model.RoundProfit{RoundID: round.ID, UserID: uid, Profit: net}
		}
	}
	if top != nil {
		if err := tx.RecordProfit(ctx, *top); err != nil {
			return out, fmt.Errorf("round profit: %w", err)
		}
	}

	e.clearZones(ctx, round.ID)

	if err := tx.UpdateRoundStatus(ctx, round.ID, model.RoundFinished); err != nil {
		return out, fmt.Errorf("mark finished: %w", err)
	}

	out.Settled = true
	out.Valid = true
	out.SafeZones = safe
	out.AffectedUsers = order
	out.TopProfit = top
	out.NewRoundNeeded = true
	return out, nil
}

// invalidate encerra a rodada como inválida e devolve cada aposta integralmente
func (e *Engine) invalidate(ctx context.Context, tx repo.Tx, round model.Round, bets []model.Bet, out Outcome) (Outcome, error) {
	if err := tx.MarkRoundInvalid(ctx, round.ID); err != nil {
		return out, fmt.Errorf("mark invalid: %w", err)
	}

	ledger := tx.Ledger()
	seen := make(map[string]bool)
	var users []string
	for _, b := range bets {
		if err := tx.UpdateBetOutcome(ctx, b.ID, model.BetRefunded, b.Amount); err != nil {
			return out, fmt.Errorf("refund bet %s: %w", b.ID, err)
		}
		if _, err := ledger.Credit(ctx, b.UserID, b.Amount, "refund:"+b.ID); err != nil {
			return out, fmt.Errorf("credit refund %s: %w", b.ID, err)
		}
		out.TotalPaid = out.TotalPaid.Add(b.Amount)
		if !seen[b.UserID] {
			seen[b.UserID] = true
			users = append(users, b.UserID)
		}
	}

	e.clearZones(ctx, round.ID)

	e.log.Info("round invalidated",
		logger.RoundID(round.ID),
		zap.Int("bets", len(bets)),
		zap.String("refunded", out.TotalPaid.StringFixed(model.MoneyPlaces)))

	out.Settled = true
	out.Valid = false
	out.AffectedUsers = users
	out.NewRoundNeeded = true
	return out, nil
}

// clearZones falha apenas com log; a projeção se reconstrói do banco
func (e *Engine) clearZones(ctx context.Context, roundID string) {
	if e.zones == nil {
		return
	}
	if err := e.zones.Clear(ctx, roundID); err != nil {
		e.log.Warn("zone cache clear failed", logger.RoundID(roundID), zap.Error(err))
	}
}

// drawSafeZones sorteia duas zonas distintas em 1..8
func (e *Engine) drawSafeZones() ([]int, error) {
	first, err := e.rng.Int(model.MinZone, model.MaxZone)
	if err != nil {
		return nil, fmt.Errorf("draw safe zone: %w", err)
	}
	for {
		second, err := e.rng.Int(model.MinZone, model.MaxZone)
		if err != nil {
			return nil, fmt.Errorf("draw safe zone: %w", err)
		}
		if second != first {
			return []int{first, second}, nil
		}
	}
}

// Payout é a fatia do prêmio de uma aposta: pool * amount / safeTotal truncado em duas casas
func Payout(pool, amount, safeTotal decimal.Decimal) decimal.Decimal {
	q, _ := pool.Mul(amount).QuoRem(safeTotal, model.MoneyPlaces)
	return q
}
