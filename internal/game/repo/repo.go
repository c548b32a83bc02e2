package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/wallet"
)

// ZoneLoader devolve o total durável apostado por zona (1..8 sempre presentes).
// Apostas reembolsadas não entram na soma.
type ZoneLoader interface {
	ZoneTotals(ctx context.Context, roundID string) (map[int]decimal.Decimal, error)
}

// Tx é a unidade de trabalho do motor de rodadas. Tudo que é feito por ela
// é confirmado ou desfeito junto.
type Tx interface {
	ZoneLoader

	CreateRound(ctx context.Context, start, end time.Time) (model.Round, error)
	// ActiveRound retorna a rodada waiting/running mais recente ou model.ErrNoActiveRound
	ActiveRound(ctx context.Context, forUpdate bool) (model.Round, error)
	// SettlingRound retorna (travada) uma rodada parada em settling ou model.ErrRoundNotFound
	SettlingRound(ctx context.Context) (model.Round, error)
	UpdateRoundStatus(ctx context.Context, roundID string, status model.RoundStatus) error
	MarkRoundInvalid(ctx context.Context, roundID string) error
	SetSafeZones(ctx context.Context, roundID string, zones []int) error
	IncrementTotalBets(ctx context.Context, roundID string, amount decimal.Decimal) error

	RecordBet(ctx context.Context, roundID, userID string, zone int, amount decimal.Decimal) (model.Bet, error)
	PendingBets(ctx context.Context, roundID string) ([]model.Bet, error)
	UpdateBetOutcome(ctx context.Context, betID string, status model.BetStatus, winAmount decimal.Decimal) error

	Ledger() wallet.Ledger
	RecordHistory(ctx context.Context, e model.HistoryEntry) error
	RecordProfit(ctx context.Context, p model.RoundProfit) error
}

// Store é o ponto de entrada do armazenamento de rodadas: abre unidades de
// trabalho e atende as leituras do lado de consulta.
type Store interface {
	ZoneLoader

	WithTx(ctx context.Context, fn func(Tx) error) error

	GetRound(ctx context.Context, roundID string) (model.Round, error)
	ActiveRound(ctx context.Context) (model.Round, error)
	// ListFinishedRounds pagina as rodadas finalizadas por end_time desc e devolve o total
	ListFinishedRounds(ctx context.Context, offset, limit int) ([]model.Round, int, error)
	BetsByRoundAndUser(ctx context.Context, roundID, userID string) ([]model.Bet, error)
	RecentProfits(ctx context.Context, limit int) ([]model.RoundProfit, error)
}
