package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/elimination-zones/internal/game/events"
	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/game/repo"
	"github.com/radieske/elimination-zones/internal/game/settlement"
	"github.com/radieske/elimination-zones/internal/shared/logger"
	"github.com/radieske/elimination-zones/internal/shared/metrics"
	cevents "github.com/radieske/elimination-zones/pkg/contracts/events"
)

// Action é o que um tick fez
type Action string

const (
	ActionSkipped     Action = "skipped"
	ActionNoop        Action = "noop"
	ActionCreated     Action = "created"
	ActionStarted     Action = "started"
	ActionSettled     Action = "settled"
	ActionInvalidated Action = "invalidated"
	ActionFailed      Action = "failed"
)

type Settler interface {
	Settle(ctx context.Context, tx repo.Tx, round model.Round) (settlement.Outcome, error)
}

// RoundZones é a projeção de totais por zona que o scheduler prepara e descarta
type RoundZones interface {
	InitRound(ctx context.Context, roundID string) error
	Clear(ctx context.Context, roundID string) error
}

type ProfitCache interface {
	Push(ctx context.Context, p model.RoundProfit) error
}

type Config struct {
	Interval time.Duration // período do ticker
	MinGap   time.Duration // ticks mais próximos que isso do último executado são descartados
	LeadTime time.Duration // criação -> início
	Duration time.Duration // início -> fim

	// StuckAfter é o número de falhas seguidas na mesma rodada que gera o alerta de liquidação travada
	StuckAfter int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.MinGap <= 0 {
		c.MinGap = c.Interval / 2
	}
	if c.LeadTime <= 0 {
		c.LeadTime = 60 * time.Second
	}
	if c.Duration <= 0 {
		c.Duration = 300 * time.Second
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = 10
	}
	return c
}

// Scheduler conduz o ciclo de vida das rodadas. Só um tick roda por vez;
// ticks que chegam com outro em andamento são descartados.
type Scheduler struct {
	store   repo.Store
	settler Settler
	zones   RoundZones
	profits ProfitCache
	pub     events.Publisher
	log     *zap.Logger
	metrics *metrics.Game
	cfg     Config
	now     func() time.Time

	inProgress atomic.Bool
	lastTick   time.Time // só acessado por quem detém inProgress
	wg         sync.WaitGroup

	// falhas seguidas de liquidação; mesmas regras de acesso de lastTick
	failingRound string
	failures     int
}

func New(store repo.Store, settler Settler, zones RoundZones, pub events.Publisher, log *zap.Logger, m *metrics.Game, cfg Config) *Scheduler {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Scheduler{
		store:   store,
		settler: settler,
		zones:   zones,
		pub:     pub,
		log:     log,
		metrics: m,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
}

// WithClock troca o relógio (testes)
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func (s *Scheduler) WithProfitCache(pc ProfitCache) *Scheduler {
	s.profits = pc
	return s
}

// Run dispara um tick imediatamente e depois a cada Interval até ctx ser cancelado.
// Espera os ticks em andamento antes de retornar.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	defer s.wg.Wait()

	s.log.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("leadTime", s.cfg.LeadTime),
		zap.Duration("duration", s.cfg.Duration))

	s.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return nil
		case <-t.C:
			s.dispatch(ctx)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Tick(ctx)
	}()
}

type tickResult struct {
	action   Action
	round    model.Round
	outcome  *settlement.Outcome
	newRound bool
}

// Tick executa um passo do ciclo de vida. Seguro para chamadas concorrentes.
func (s *Scheduler) Tick(ctx context.Context) (action Action) {
	if !s.inProgress.CompareAndSwap(false, true) {
		s.metrics.Tick(string(ActionSkipped), 0)
		return ActionSkipped
	}
	now := s.now()
	if !s.lastTick.IsZero() && now.Before(s.lastTick.Add(s.cfg.MinGap)) {
		s.inProgress.Store(false)
		s.metrics.Tick(string(ActionSkipped), 0)
		return ActionSkipped
	}

	began := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panic", zap.Any("panic", r), zap.Stack("stack"))
			action = ActionFailed
		}
		s.metrics.Tick(string(action), time.Since(began))
		s.lastTick = now
		s.inProgress.Store(false)
	}()

	var res tickResult
	err := s.store.WithTx(ctx, func(tx repo.Tx) error {
		res = tickResult{}
		return s.advance(ctx, tx, now, &res)
	})
	if err != nil {
		s.log.Error("scheduler tick failed", logger.RoundID(res.round.ID), zap.Error(err))
		if res.action == ActionSettled {
			s.metrics.Settlement("failed", 0)
			s.settlementFailed(res.round.ID)
		}
		return ActionFailed
	}
	if res.action == ActionSettled || res.action == ActionInvalidated {
		s.settlementRecovered()
	}

	s.afterCommit(ctx, res)

	if res.newRound {
		created, err := s.createRound(ctx, now)
		if err != nil {
			s.log.Error("create round failed", zap.Error(err))
			if res.action == ActionNoop {
				return ActionFailed
			}
		} else if created && res.action == ActionNoop {
			res.action = ActionCreated
		}
	}
	return res.action
}

// advance decide e aplica a transição devida dentro da unidade de trabalho
func (s *Scheduler) advance(ctx context.Context, tx repo.Tx, now time.Time, res *tickResult) error {
	res.action = ActionNoop

	stuck, err := tx.SettlingRound(ctx)
	switch {
	case err == nil:
		s.log.Warn("resuming settlement", logger.RoundID(stuck.ID))
		return s.settle(ctx, tx, stuck, res)
	case !errors.Is(err, model.ErrRoundNotFound):
		return fmt.Errorf("settling round: %w", err)
	}

	round, err := tx.ActiveRound(ctx, true)
	if errors.Is(err, model.ErrNoActiveRound) {
		res.newRound = true
		return nil
	} else if err != nil {
		return fmt.Errorf("active round: %w", err)
	}
	res.round = round

	next, due := round.DueTransition(now)
	if !due {
		return nil
	}
	if !round.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, round.Status, next)
	}

	switch next {
	case model.RoundRunning:
		if err := tx.UpdateRoundStatus(ctx, round.ID, model.RoundRunning); err != nil {
			return fmt.Errorf("start round: %w", err)
		}
		res.round.Status = model.RoundRunning
		res.action = ActionStarted
		return nil
	case model.RoundSettling:
		return s.settle(ctx, tx, round, res)
	case model.RoundWaiting, model.RoundFinished:
	}
	return fmt.Errorf("%w: unexpected target %s", model.ErrInvalidTransition, next)
}

func (s *Scheduler) settle(ctx context.Context, tx repo.Tx, round model.Round, res *tickResult) error {
	res.round = round
	res.action = ActionSettled
	out, err := s.settler.Settle(ctx, tx, round)
	if err != nil {
		return fmt.Errorf("settle round %s: %w", round.ID, err)
	}
	res.outcome = &out
	if !out.Settled {
		res.action = ActionNoop
		return nil
	}
	if !out.Valid {
		res.action = ActionInvalidated
	}
	res.round.Status = model.RoundFinished
	res.round.SafeZones = out.SafeZones
	res.round.IsValid = out.Valid
	res.newRound = out.NewRoundNeeded
	return nil
}

// settlementFailed conta falhas seguidas na mesma rodada; a cada StuckAfter falhas emite um erro dedicado
func (s *Scheduler) settlementFailed(roundID string) {
	if roundID != s.failingRound {
		s.failingRound, s.failures = roundID, 0
	}
	s.failures++
	s.metrics.SettlementFailures(s.failures)
	if s.failures%s.cfg.StuckAfter == 0 {
		s.log.Error("round settlement stuck",
			logger.RoundID(roundID),
			zap.Int("attempts", s.failures))
	}
}

func (s *Scheduler) settlementRecovered() {
	if s.failures == 0 {
		return
	}
	s.failingRound, s.failures = "", 0
	s.metrics.SettlementFailures(0)
}

// afterCommit publica os efeitos do tick; falhas só geram log
func (s *Scheduler) afterCommit(ctx context.Context, res tickResult) {
	switch res.action {
	case ActionStarted:
		s.log.Info("round started", logger.RoundID(res.round.ID))
		s.publishStatus(ctx, res.round)
	case ActionSettled, ActionInvalidated:
		out := res.outcome
		result := "valid"
		reason := "settlement"
		if !out.Valid {
			result, reason = "invalid", "refund"
		}
		s.metrics.Settlement(result, out.TotalPaid.InexactFloat64())
		s.log.Info("round settled",
			logger.RoundID(out.RoundID),
			zap.Bool("valid", out.Valid),
			zap.Ints("safeZones", out.SafeZones),
			zap.String("totalBets", out.TotalBets.StringFixed(model.MoneyPlaces)),
			zap.String("totalPaid", out.TotalPaid.StringFixed(model.MoneyPlaces)),
			zap.Int("users", len(out.AffectedUsers)))

		// leituras concorrentes à liquidação podem ter repovoado o cache com totais pré-commit
		if err := s.zones.Clear(ctx, out.RoundID); err != nil {
			s.log.Warn("zone cache clear failed", logger.RoundID(out.RoundID), zap.Error(err))
		}

		s.publishStatus(ctx, res.round)
		if err := s.pub.RoundSettled(ctx, cevents.RoundSettled{
			RoundID:       out.RoundID,
			IsValid:       out.Valid,
			SafeZones:     out.SafeZones,
			TotalBets:     out.TotalBets.StringFixed(model.MoneyPlaces),
			TotalPaid:     out.TotalPaid.StringFixed(model.MoneyPlaces),
			AffectedUsers: out.AffectedUsers,
			Ts:            s.now(),
		}); err != nil {
			s.log.Warn("publish round settled", logger.RoundID(out.RoundID), zap.Error(err))
		}
		if err := s.pub.BalanceChanged(ctx, out.AffectedUsers, reason); err != nil {
			s.log.Warn("publish balance changed", logger.RoundID(out.RoundID), zap.Error(err))
		}
		if out.TopProfit != nil && s.profits != nil {
			if err := s.profits.Push(ctx, *out.TopProfit); err != nil {
				s.log.Warn("profit cache push", logger.RoundID(out.RoundID), zap.Error(err))
			}
		}
	case ActionSkipped, ActionNoop, ActionCreated, ActionFailed:
	}
}

// createRound abre a próxima rodada se ainda não houver uma ativa
func (s *Scheduler) createRound(ctx context.Context, now time.Time) (bool, error) {
	var round model.Round
	created := false
	err := s.store.WithTx(ctx, func(tx repo.Tx) error {
		_, err := tx.ActiveRound(ctx, true)
		if err == nil {
			return nil
		}
		if !errors.Is(err, model.ErrNoActiveRound) {
			return err
		}
		start := now.Add(s.cfg.LeadTime)
		round, err = tx.CreateRound(ctx, start, start.Add(s.cfg.Duration))
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil || !created {
		return false, err
	}

	s.metrics.RoundCreated()
	if err := s.zones.InitRound(ctx, round.ID); err != nil {
		s.log.Warn("zone cache init failed", logger.RoundID(round.ID), zap.Error(err))
	}
	s.log.Info("round created",
		logger.RoundID(round.ID),
		zap.Time("startTime", round.StartTime),
		zap.Time("endTime", round.EndTime))
	s.publishStatus(ctx, round)
	return true, nil
}

func (s *Scheduler) publishStatus(ctx context.Context, r model.Round) {
	if err := s.pub.RoundStatus(ctx, cevents.RoundStatus{
		RoundID:   r.ID,
		Status:    string(r.Status),
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		SafeZones: r.SafeZones,
		IsValid:   r.IsValid,
		Ts:        s.now(),
	}); err != nil {
		s.log.Warn("publish round status", logger.RoundID(r.ID), zap.Error(err))
	}
}
