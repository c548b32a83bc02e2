package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/wallet"
)

// querier é o subconjunto comum entre *sql.DB e *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const roundColumns = `id, status, start_time, end_time, safe_zones, total_bets, is_valid, created_at, updated_at`
const betColumns = `id, round_id, user_id, zone, amount, status, win_amount, created_at`

// Postgres implementa Store sobre database/sql + lib/pq
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// WithTx executa fn numa transação; erro ou panic desfazem tudo
func (p *Postgres) WithTx(ctx context.Context, fn func(Tx) error) (err error) {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			panic(r)
		}
	}()

	if err = fn(&pgTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (p *Postgres) ZoneTotals(ctx context.Context, roundID string) (map[int]decimal.Decimal, error) {
	return zoneTotals(ctx, p.db, roundID)
}

func (p *Postgres) GetRound(ctx context.Context, roundID string) (model.Round, error) {
	if _, err := uuid.Parse(roundID); err != nil {
		return model.Round{}, model.ErrRoundNotFound
	}
	r, err := scanRound(p.db.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id=$1`, roundID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Round{}, model.ErrRoundNotFound
	}
	return r, err
}

func (p *Postgres) ActiveRound(ctx context.Context) (model.Round, error) {
	return activeRound(ctx, p.db, false)
}

func (p *Postgres) ListFinishedRounds(ctx context.Context, offset, limit int) ([]model.Round, int, error) {
	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rounds WHERE status='finished'`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count finished rounds: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+roundColumns+` FROM rounds
		WHERE status='finished'
		ORDER BY end_time DESC, seq DESC
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list finished rounds: %w", err)
	}
	defer rows.Close()

	var out []model.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (p *Postgres) BetsByRoundAndUser(ctx context.Context, roundID, userID string) ([]model.Bet, error) {
	return queryBets(ctx, p.db, `
		SELECT `+betColumns+` FROM bets
		WHERE round_id=$1 AND user_id=$2
		ORDER BY seq`, roundID, userID)
}

func (p *Postgres) RecentProfits(ctx context.Context, limit int) ([]model.RoundProfit, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT round_id, user_id, profit, created_at FROM round_profits
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent profits: %w", err)
	}
	defer rows.Close()

	var out []model.RoundProfit
	for rows.Next() {
		var rp model.RoundProfit
		if err := rows.Scan(&rp.RoundID, &rp.UserID, &rp.Profit, &rp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}

// pgTx implementa Tx sobre uma *sql.Tx
type pgTx struct{ tx *sql.Tx }

func (t *pgTx) ZoneTotals(ctx context.Context, roundID string) (map[int]decimal.Decimal, error) {
	return zoneTotals(ctx, t.tx, roundID)
}

func (t *pgTx) CreateRound(ctx context.Context, start, end time.Time) (model.Round, error) {
	if !start.Before(end) {
		return model.Round{}, fmt.Errorf("%w: start %s not before end %s", model.ErrValidation, start, end)
	}
	r, err := scanRound(t.tx.QueryRowContext(ctx, `
		INSERT INTO rounds(id, status, start_time, end_time)
		VALUES($1, $2, $3, $4)
		RETURNING `+roundColumns, uuid.NewString(), model.RoundWaiting, start, end))
	if err != nil {
		return model.Round{}, fmt.Errorf("create round: %w", err)
	}
	return r, nil
}

func (t *pgTx) ActiveRound(ctx context.Context, forUpdate bool) (model.Round, error) {
	return activeRound(ctx, t.tx, forUpdate)
}

func (t *pgTx) SettlingRound(ctx context.Context) (model.Round, error) {
	r, err := scanRound(t.tx.QueryRowContext(ctx, `
		SELECT `+roundColumns+` FROM rounds
		WHERE status='settling'
		ORDER BY seq
		LIMIT 1
		FOR UPDATE`))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Round{}, model.ErrRoundNotFound
	}
	return r, err
}

func (t *pgTx) UpdateRoundStatus(ctx context.Context, roundID string, status model.RoundStatus) error {
	return t.exec1(ctx, `UPDATE rounds SET status=$1, updated_at=NOW() WHERE id=$2`, status, roundID)
}

func (t *pgTx) MarkRoundInvalid(ctx context.Context, roundID string) error {
	return t.exec1(ctx, `UPDATE rounds SET status=$1, is_valid=FALSE, updated_at=NOW() WHERE id=$2`,
		model.RoundFinished, roundID)
}

func (t *pgTx) SetSafeZones(ctx context.Context, roundID string, zones []int) error {
	if len(zones) != 2 {
		return fmt.Errorf("%w: %d safe zones", model.ErrValidation, len(zones))
	}
	return t.exec1(ctx, `UPDATE rounds SET safe_zones=$1, updated_at=NOW() WHERE id=$2 AND safe_zones IS NULL`,
		pq.Array(toInt64s(zones)), roundID)
}

func (t *pgTx) IncrementTotalBets(ctx context.Context, roundID string, amount decimal.Decimal) error {
	return t.exec1(ctx, `UPDATE rounds SET total_bets=total_bets+$1, updated_at=NOW() WHERE id=$2`, amount, roundID)
}

func (t *pgTx) RecordBet(ctx context.Context, roundID, userID string, zone int, amount decimal.Decimal) (model.Bet, error) {
	if err := model.ValidateBet(zone, amount); err != nil {
		return model.Bet{}, err
	}
	row := t.tx.QueryRowContext(ctx, `
		INSERT INTO bets(id, round_id, user_id, zone, amount, status, win_amount)
		VALUES($1, $2, $3, $4, $5, $6, 0)
		RETURNING `+betColumns, uuid.NewString(), roundID, userID, zone, amount, model.BetPending)
	b, err := scanBet(row)
	if err != nil {
		return model.Bet{}, fmt.Errorf("record bet: %w", err)
	}
	return b, nil
}

func (t *pgTx) PendingBets(ctx context.Context, roundID string) ([]model.Bet, error) {
	return queryBets(ctx, t.tx, `
		SELECT `+betColumns+` FROM bets
		WHERE round_id=$1 AND status='pending'
		ORDER BY seq
		FOR UPDATE`, roundID)
}

// UpdateBetOutcome só altera apostas pendentes; status terminais são imutáveis
func (t *pgTx) UpdateBetOutcome(ctx context.Context, betID string, status model.BetStatus, winAmount decimal.Decimal) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: outcome %q is not terminal", model.ErrValidation, status)
	}
	return t.exec1(ctx, `UPDATE bets SET status=$1, win_amount=$2 WHERE id=$3 AND status='pending'`,
		status, winAmount, betID)
}

func (t *pgTx) Ledger() wallet.Ledger { return wallet.NewPostgresLedger(t.tx) }

func (t *pgTx) RecordHistory(ctx context.Context, e model.HistoryEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO game_history(user_id, game_type, amount, selected_zones, drawn_zones, won, final_balance)
		VALUES($1, $2, $3, $4, $5, $6, $7)`,
		e.UserID, e.GameType, e.Amount, pq.Array(toInt64s(e.SelectedZones)), pq.Array(toInt64s(e.DrawnZones)),
		e.Won, e.FinalBalance)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

func (t *pgTx) RecordProfit(ctx context.Context, p model.RoundProfit) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO round_profits(round_id, user_id, profit)
		VALUES($1, $2, $3)
		ON CONFLICT (round_id) DO NOTHING`, p.RoundID, p.UserID, p.Profit)
	if err != nil {
		return fmt.Errorf("record profit: %w", err)
	}
	return nil
}

// exec1 executa um UPDATE que precisa afetar exatamente uma linha
func (t *pgTx) exec1(ctx context.Context, q string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%w: expected 1 row, got %d", model.ErrConsistencyViolation, n)
	}
	return nil
}

func activeRound(ctx context.Context, q querier, forUpdate bool) (model.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds
		WHERE status IN ('waiting','running')
		ORDER BY seq DESC
		LIMIT 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	r, err := scanRound(q.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Round{}, model.ErrNoActiveRound
	}
	return r, err
}

func zoneTotals(ctx context.Context, q querier, roundID string) (map[int]decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT zone, SUM(amount) FROM bets
		WHERE round_id=$1 AND status <> 'refunded'
		GROUP BY zone`, roundID)
	if err != nil {
		return nil, fmt.Errorf("zone totals: %w", err)
	}
	defer rows.Close()

	totals := model.ZeroZones()
	for rows.Next() {
		var zone int
		var sum decimal.Decimal
		if err := rows.Scan(&zone, &sum); err != nil {
			return nil, err
		}
		totals[zone] = sum
	}
	return totals, rows.Err()
}

func queryBets(ctx context.Context, q querier, query string, args ...any) ([]model.Bet, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bets: %w", err)
	}
	defer rows.Close()

	var out []model.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanRound(s scanner) (model.Round, error) {
	var r model.Round
	var status string
	var safe pq.Int64Array
	if err := s.Scan(&r.ID, &status, &r.StartTime, &r.EndTime, &safe, &r.TotalBets, &r.IsValid,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return model.Round{}, err
	}
	st, err := model.ParseRoundStatus(status)
	if err != nil {
		return model.Round{}, err
	}
	r.Status = st
	if safe != nil {
		r.SafeZones = make([]int, len(safe))
		for i, z := range safe {
			r.SafeZones[i] = int(z)
		}
	}
	return r, nil
}

func scanBet(s scanner) (model.Bet, error) {
	var b model.Bet
	var status string
	if err := s.Scan(&b.ID, &b.RoundID, &b.UserID, &b.Zone, &b.Amount, &status, &b.WinAmount, &b.CreatedAt); err != nil {
		return model.Bet{}, err
	}
	st, err := model.ParseBetStatus(status)
	if err != nil {
		return model.Bet{}, err
	}
	b.Status = st
	return b, nil
}

func toInt64s(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
