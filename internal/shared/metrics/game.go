package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Game agrupa as métricas do motor de rodadas.
// Um *Game nil é válido e não registra nada (testes).
type Game struct {
	ticks         *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	settlements   *prometheus.CounterVec
	payouts       prometheus.Counter
	betsPlaced    prometheus.Counter
	betErrors     *prometheus.CounterVec
	lockTimeouts  prometheus.Counter
	roundsCreated prometheus.Counter
	stuck         prometheus.Gauge
}

// NewGame cria e registra as métricas em reg
func NewGame(reg prometheus.Registerer) *Game {
	g := &Game{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zones_scheduler_ticks_total", Help: "ticks do scheduler por resultado",
		}, []string{"action"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "zones_scheduler_tick_seconds", Help: "duração dos ticks executados",
			Buckets: prometheus.DefBuckets,
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zones_settlements_total", Help: "liquidações por resultado",
		}, []string{"result"}),
		payouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zones_payout_amount_total", Help: "soma dos prêmios e reembolsos pagos",
		}),
		betsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zones_bets_placed_total", Help: "apostas confirmadas",
		}),
		betErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zones_bet_errors_total", Help: "apostas rejeitadas por motivo",
		}, []string{"reason"}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zones_lock_timeouts_total", Help: "timeouts de lock de zona",
		}),
		roundsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zones_rounds_created_total", Help: "rodadas criadas",
		}),
		stuck: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zones_settlement_consecutive_failures", Help: "falhas seguidas ao liquidar a mesma rodada",
		}),
	}
	reg.MustRegister(g.ticks, g.tickDuration, g.settlements, g.payouts, g.betsPlaced, g.betErrors,
		g.lockTimeouts, g.roundsCreated, g.stuck)
	return g
}

func (g *Game) Tick(action string, took time.Duration) {
	if g == nil {
		return
	}
	g.ticks.WithLabelValues(action).Inc()
	g.tickDuration.Observe(took.Seconds())
}

func (g *Game) Settlement(result string, paid float64) {
	if g == nil {
		return
	}
	g.settlements.WithLabelValues(result).Inc()
	g.payouts.Add(paid)
}

func (g *Game) BetsPlaced(n int) {
	if g == nil {
		return
	}
	g.betsPlaced.Add(float64(n))
}

func (g *Game) BetRejected(reason string) {
	if g == nil {
		return
	}
	g.betErrors.WithLabelValues(reason).Inc()
}

func (g *Game) LockTimeout() {
	if g == nil {
		return
	}
	g.lockTimeouts.Inc()
}

func (g *Game) RoundCreated() {
	if g == nil {
		return
	}
	g.roundsCreated.Inc()
}

// SettlementFailures publica quantas vezes seguidas a rodada atual falhou ao liquidar; 0 zera
func (g *Game) SettlementFailures(n int) {
	if g == nil {
		return
	}
	g.stuck.Set(float64(n))
}
