package betting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/elimination-zones/internal/game/events"
	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/game/repo"
	"github.com/radieske/elimination-zones/internal/shared/logger"
	"github.com/radieske/elimination-zones/internal/shared/metrics"
	"github.com/radieske/elimination-zones/internal/wallet"
	cevents "github.com/radieske/elimination-zones/pkg/contracts/events"
)

// BetRequest é um par zona/valor de uma aposta
type BetRequest struct {
	Zone   int
	Amount decimal.Decimal
}

// Receipt descreve uma aposta confirmada
type Receipt struct {
	RoundID    string
	Bets       []model.Bet
	Total      decimal.Decimal
	Balance    decimal.Decimal
	ZoneTotals map[int]decimal.Decimal // só as zonas tocadas
}

// Aggregator é a parte do agregador de zonas usada na aposta
type Aggregator interface {
	AddToZone(ctx context.Context, loader repo.ZoneLoader, roundID string, zone int, amount decimal.Decimal) (decimal.Decimal, error)
	Clear(ctx context.Context, roundID string) error
}

// DefaultPublishTimeout limita a publicação pós-commit dentro da requisição de aposta
const DefaultPublishTimeout = 2 * time.Second

type Placer struct {
	store          repo.Store
	zones          Aggregator
	pub            events.Publisher
	log            *zap.Logger
	metrics        *metrics.Game
	publishTimeout time.Duration
}

func NewPlacer(store repo.Store, zones Aggregator, pub events.Publisher, log *zap.Logger, m *metrics.Game) *Placer {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Placer{store: store, zones: zones, pub: pub, log: log, metrics: m, publishTimeout: DefaultPublishTimeout}
}

// WithPublishTimeout troca o limite da publicação pós-commit
func (p *Placer) WithPublishTimeout(d time.Duration) *Placer {
	if d > 0 {
		p.publishTimeout = d
	}
	return p
}

// Validate aplica as regras de formato antes de abrir qualquer transação
func Validate(userID string, reqs []BetRequest) error {
	if userID == "" {
		return fmt.Errorf("%w: user id required", model.ErrValidation)
	}
	if len(reqs) == 0 {
		return fmt.Errorf("%w: at least one bet required", model.ErrInvalidBet)
	}
	for i, r := range reqs {
		if err := model.ValidateBet(r.Zone, r.Amount); err != nil {
			return fmt.Errorf("bet %d: %w", i, err)
		}
	}
	return nil
}

// Place registra todas as apostas do usuário na rodada ativa de forma atômica:
// ou todas entram (com débito e totais atualizados) ou nenhuma.
func (p *Placer) Place(ctx context.Context, userID string, reqs []BetRequest) (Receipt, error) {
	if err := Validate(userID, reqs); err != nil {
		p.metrics.BetRejected("validation")
		return Receipt{}, err
	}

	total := decimal.Zero
	for _, r := range reqs {
		total = total.Add(r.Amount)
	}

	var receipt Receipt
	var round model.Round
	bodyDone := false

	err := p.store.WithTx(ctx, func(tx repo.Tx) (err error) {
		// ordem de locks: rodada antes da carteira, a mesma usada na liquidação
		round, err = tx.ActiveRound(ctx, true)
		if err != nil {
			return err
		}
		// a projeção pode ter recebido somas desta transação
		defer func() {
			if err != nil {
				p.clearZones(ctx, round.ID)
			}
		}()

		ledger := tx.Ledger()
		// lock da carteira só depois do lock da rodada
		bal, err := ledger.Balance(ctx, userID, true)
		if errors.Is(err, wallet.ErrWalletNotFound) {
			return fmt.Errorf("%w: user %s has no wallet", wallet.ErrInsufficientBalance, userID)
		} else if err != nil {
			return err
		}
		if total.GreaterThan(bal) {
			return fmt.Errorf("%w: need %s, have %s", wallet.ErrInsufficientBalance, total, bal)
		}

		receipt = Receipt{RoundID: round.ID, Total: total, ZoneTotals: make(map[int]decimal.Decimal)}
		for _, r := range reqs {
			zoneTotal, err := p.zones.AddToZone(ctx, tx, round.ID, r.Zone, r.Amount)
			if err != nil {
				return fmt.Errorf("zone %d: %w", r.Zone, err)
			}
			bet, err := tx.RecordBet(ctx, round.ID, userID, r.Zone, r.Amount)
			if err != nil {
				return err
			}
			receipt.Bets = append(receipt.Bets, bet)
			receipt.ZoneTotals[r.Zone] = zoneTotal
		}

		if receipt.Balance, err = ledger.Debit(ctx, userID, total, "bet:"+round.ID); err != nil {
			return err
		}
		if err = tx.IncrementTotalBets(ctx, round.ID, total); err != nil {
			return err
		}
		bodyDone = true
		return nil
	})
	if err != nil {
		if bodyDone {
			// falha no commit: a soma no cache não tem contrapartida durável
			p.clearZones(ctx, round.ID)
		}
		if errors.Is(err, model.ErrLockTimeout) {
			p.metrics.LockTimeout()
		}
		p.metrics.BetRejected(rejectReason(err))
		return Receipt{}, err
	}

	p.metrics.BetsPlaced(len(receipt.Bets))
	p.log.Info("bets placed",
		logger.RoundID(receipt.RoundID),
		logger.UserID(userID),
		zap.Int("bets", len(receipt.Bets)),
		zap.String("total", total.StringFixed(model.MoneyPlaces)))

	p.publish(ctx, userID, round.Status, receipt)
	return receipt, nil
}

// publish roda depois do commit: a aposta já vale, então o broker fora do ar só gera log
func (p *Placer) publish(ctx context.Context, userID string, status model.RoundStatus, rc Receipt) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.publishTimeout)
	defer cancel()

	evt := cevents.BetsPlaced{
		RoundID:     rc.RoundID,
		RoundStatus: string(status),
		UserID:      userID,
		Total:       rc.Total.StringFixed(model.MoneyPlaces),
		Ts:          time.Now(),
	}
	for _, b := range rc.Bets {
		evt.Bets = append(evt.Bets, cevents.PlacedBet{BetID: b.ID, Zone: b.Zone, Amount: b.Amount.StringFixed(model.MoneyPlaces)})
	}
	if err := p.pub.BetsPlaced(ctx, evt); err != nil {
		p.log.Warn("publish bets placed", logger.RoundID(rc.RoundID), zap.Error(err))
	}
	if err := p.pub.BalanceChanged(ctx, []string{userID}, "bet"); err != nil {
		p.log.Warn("publish balance changed", logger.UserID(userID), zap.Error(err))
	}
}

func (p *Placer) clearZones(ctx context.Context, roundID string) {
	if err := p.zones.Clear(ctx, roundID); err != nil {
		p.log.Warn("zone cache clear failed", logger.RoundID(roundID), zap.Error(err))
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, model.ErrNoActiveRound):
		return "no_active_round"
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, model.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, model.ErrValidation):
		return "validation"
	}
	return "internal"
}
