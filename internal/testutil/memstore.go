package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/game/repo"
	"github.com/radieske/elimination-zones/internal/wallet"
)

// LedgerEntry é uma movimentação registrada pelo ledger em memória
type LedgerEntry struct {
	UserID string
	Op     string // CREDIT | DEBIT
	Amount decimal.Decimal
	Ref    string
}

type memState struct {
	rounds  []model.Round
	bets    []model.Bet
	wallets map[string]decimal.Decimal
	ledger  []LedgerEntry
	history []model.HistoryEntry
	profits []model.RoundProfit
}

func (s *memState) clone() *memState {
	c := &memState{
		rounds:  make([]model.Round, len(s.rounds)),
		bets:    append([]model.Bet(nil), s.bets...),
		wallets: make(map[string]decimal.Decimal, len(s.wallets)),
		ledger:  append([]LedgerEntry(nil), s.ledger...),
		history: append([]model.HistoryEntry(nil), s.history...),
		profits: append([]model.RoundProfit(nil), s.profits...),
	}
	for i, r := range s.rounds {
		r.SafeZones = append([]int(nil), r.SafeZones...)
		c.rounds[i] = r
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	return c
}

func (s *memState) roundIdx(id string) int {
	for i := range s.rounds {
		if s.rounds[i].ID == id {
			return i
		}
	}
	return -1
}

// MemStore é um repo.Store em memória. Unidades de trabalho são serializadas,
// trabalham numa cópia do estado e só a publicam no commit.
type MemStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *memState

	faults map[string]error
	Now    func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		st:     &memState{wallets: make(map[string]decimal.Decimal)},
		faults: make(map[string]error),
		Now:    time.Now,
	}
}

// InjectFault faz a operação op (nome do método do Tx ou do Ledger) falhar com err
func (s *MemStore) InjectFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *MemStore) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]error)
}

func (s *MemStore) fault(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.faults[op]
}

// SetBalance cria ou sobrescreve a carteira do usuário
func (s *MemStore) SetBalance(userID string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.wallets[userID] = amount
}

func (s *MemStore) Balance(userID string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.wallets[userID]
}

// PutRound grava uma rodada diretamente (setup de teste)
func (s *MemStore) PutRound(r model.Round) model.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.Now()
	}
	r.UpdatedAt = r.CreatedAt
	s.st.rounds = append(s.st.rounds, r)
	return r
}

func (s *MemStore) Round(id string) (model.Round, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.st.roundIdx(id); i >= 0 {
		return s.st.rounds[i], true
	}
	return model.Round{}, false
}

func (s *MemStore) Rounds() []model.Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.clone().rounds
}

func (s *MemStore) Bets() []model.Bet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Bet(nil), s.st.bets...)
}

func (s *MemStore) LedgerEntries() []LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LedgerEntry(nil), s.st.ledger...)
}

func (s *MemStore) History() []model.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.HistoryEntry(nil), s.st.history...)
}

func (s *MemStore) Profits() []model.RoundProfit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RoundProfit(nil), s.st.profits...)
}

func (s *MemStore) WithTx(ctx context.Context, fn func(repo.Tx) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(&memTx{s: s, st: work}); err != nil {
		return err
	}
	if err := s.fault("Commit"); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

func (s *MemStore) ZoneTotals(_ context.Context, roundID string) (map[int]decimal.Decimal, error) {
	if err := s.fault("ZoneTotals"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return zoneTotals(s.st, roundID), nil
}

func (s *MemStore) GetRound(_ context.Context, roundID string) (model.Round, error) {
	r, ok := s.Round(roundID)
	if !ok {
		return model.Round{}, model.ErrRoundNotFound
	}
	return r, nil
}

func (s *MemStore) ActiveRound(_ context.Context) (model.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeRound(s.st)
}

func (s *MemStore) ListFinishedRounds(_ context.Context, offset, limit int) ([]model.Round, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type indexed struct {
		r   model.Round
		pos int
	}
	var finished []indexed
	for i, r := range s.st.rounds {
		if r.Status == model.RoundFinished {
			finished = append(finished, indexed{r, i})
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		if !finished[i].r.EndTime.Equal(finished[j].r.EndTime) {
			return finished[i].r.EndTime.After(finished[j].r.EndTime)
		}
		return finished[i].pos > finished[j].pos
	})

	total := len(finished)
	var out []model.Round
	for i := offset; i < total && len(out) < limit; i++ {
		out = append(out, finished[i].r)
	}
	return out, total, nil
}

func (s *MemStore) BetsByRoundAndUser(_ context.Context, roundID, userID string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Bet
	for _, b := range s.st.bets {
		if b.RoundID == roundID && b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemStore) RecentProfits(_ context.Context, limit int) ([]model.RoundProfit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.RoundProfit
	for i := len(s.st.profits) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.st.profits[i])
	}
	return out, nil
}

func zoneTotals(st *memState, roundID string) map[int]decimal.Decimal {
	totals := model.ZeroZones()
	for _, b := range st.bets {
		if b.RoundID == roundID && b.Status != model.BetRefunded {
			totals[b.Zone] = totals[b.Zone].Add(b.Amount)
		}
	}
	return totals
}

func activeRound(st *memState) (model.Round, error) {
	for i := len(st.rounds) - 1; i >= 0; i-- {
		if st.rounds[i].Status.Active() {
			return st.rounds[i], nil
		}
	}
	return model.Round{}, model.ErrNoActiveRound
}

var errNoRow = errors.New("expected 1 row, got 0")

// memTx é a unidade de trabalho do MemStore
type memTx struct {
	s  *MemStore
	st *memState
}

func (t *memTx) ZoneTotals(_ context.Context, roundID string) (map[int]decimal.Decimal, error) {
	if err := t.s.fault("ZoneTotals"); err != nil {
		return nil, err
	}
	return zoneTotals(t.st, roundID), nil
}

func (t *memTx) CreateRound(_ context.Context, start, end time.Time) (model.Round, error) {
	if err := t.s.fault("CreateRound"); err != nil {
		return model.Round{}, err
	}
	if !start.Before(end) {
		return model.Round{}, fmt.Errorf("%w: start not before end", model.ErrValidation)
	}
	if _, err := activeRound(t.st); err == nil {
		return model.Round{}, errors.New("duplicate key value violates unique constraint rounds_single_active_idx")
	}
	now := t.s.Now()
	r := model.Round{
		ID:        uuid.NewString(),
		Status:    model.RoundWaiting,
		StartTime: start,
		EndTime:   end,
		TotalBets: decimal.Zero,
		IsValid:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.st.rounds = append(t.st.rounds, r)
	return r, nil
}

func (t *memTx) ActiveRound(_ context.Context, _ bool) (model.Round, error) {
	if err := t.s.fault("ActiveRound"); err != nil {
		return model.Round{}, err
	}
	return activeRound(t.st)
}

func (t *memTx) SettlingRound(_ context.Context) (model.Round, error) {
	if err := t.s.fault("SettlingRound"); err != nil {
		return model.Round{}, err
	}
	for _, r := range t.st.rounds {
		if r.Status == model.RoundSettling {
			return r, nil
		}
	}
	return model.Round{}, model.ErrRoundNotFound
}

func (t *memTx) updateRound(op, roundID string, fn func(r *model.Round) bool) error {
	if err := t.s.fault(op); err != nil {
		return err
	}
	i := t.st.roundIdx(roundID)
	if i < 0 || !fn(&t.st.rounds[i]) {
		return fmt.Errorf("%w: %v", model.ErrConsistencyViolation, errNoRow)
	}
	t.st.rounds[i].UpdatedAt = t.s.Now()
	return nil
}

func (t *memTx) UpdateRoundStatus(_ context.Context, roundID string, status model.RoundStatus) error {
	return t.updateRound("UpdateRoundStatus", roundID, func(r *model.Round) bool {
		r.Status = status
		return true
	})
}

func (t *memTx) MarkRoundInvalid(_ context.Context, roundID string) error {
	return t.updateRound("MarkRoundInvalid", roundID, func(r *model.Round) bool {
		r.Status = model.RoundFinished
		r.IsValid = false
		return true
	})
}

func (t *memTx) SetSafeZones(_ context.Context, roundID string, zones []int) error {
	if len(zones) != 2 {
		return fmt.Errorf("%w: %d safe zones", model.ErrValidation, len(zones))
	}
	return t.updateRound("SetSafeZones", roundID, func(r *model.Round) bool {
		if r.SafeZones != nil {
			return false
		}
		r.SafeZones = append([]int(nil), zones...)
		return true
	})
}

func (t *memTx) IncrementTotalBets(_ context.Context, roundID string, amount decimal.Decimal) error {
	return t.updateRound("IncrementTotalBets", roundID, func(r *model.Round) bool {
		r.TotalBets = r.TotalBets.Add(amount)
		return true
	})
}

func (t *memTx) RecordBet(_ context.Context, roundID, userID string, zone int, amount decimal.Decimal) (model.Bet, error) {
	if err := t.s.fault("RecordBet"); err != nil {
		return model.Bet{}, err
	}
	if err := model.ValidateBet(zone, amount); err != nil {
		return model.Bet{}, err
	}
	if t.st.roundIdx(roundID) < 0 {
		return model.Bet{}, model.ErrRoundNotFound
	}
	b := model.Bet{
		ID:        uuid.NewString(),
		RoundID:   roundID,
		UserID:    userID,
		Zone:      zone,
		Amount:    amount,
		Status:    model.BetPending,
		WinAmount: decimal.Zero,
		CreatedAt: t.s.Now(),
	}
	t.st.bets = append(t.st.bets, b)
	return b, nil
}

func (t *memTx) PendingBets(_ context.Context, roundID string) ([]model.Bet, error) {
	if err := t.s.fault("PendingBets"); err != nil {
		return nil, err
	}
	var out []model.Bet
	for _, b := range t.st.bets {
		if b.RoundID == roundID && b.Status == model.BetPending {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) UpdateBetOutcome(_ context.Context, betID string, status model.BetStatus, winAmount decimal.Decimal) error {
	if err := t.s.fault("UpdateBetOutcome"); err != nil {
		return err
	}
	if !status.Terminal() {
		return fmt.Errorf("%w: outcome %q is not terminal", model.ErrValidation, status)
	}
	for i := range t.st.bets {
		if t.st.bets[i].ID == betID && t.st.bets[i].Status == model.BetPending {
			t.st.bets[i].Status = status
			t.st.bets[i].WinAmount = winAmount
			return nil
		}
	}
	return fmt.Errorf("%w: %v", model.ErrConsistencyViolation, errNoRow)
}

func (t *memTx) Ledger() wallet.Ledger { return memLedger{t: t} }

func (t *memTx) RecordHistory(_ context.Context, e model.HistoryEntry) error {
	if err := t.s.fault("RecordHistory"); err != nil {
		return err
	}
	e.CreatedAt = t.s.Now()
	t.st.history = append(t.st.history, e)
	return nil
}

func (t *memTx) RecordProfit(_ context.Context, p model.RoundProfit) error {
	if err := t.s.fault("RecordProfit"); err != nil {
		return err
	}
	for _, have := range t.st.profits {
		if have.RoundID == p.RoundID {
			return nil
		}
	}
	p.CreatedAt = t.s.Now()
	t.st.profits = append(t.st.profits, p)
	return nil
}

// memLedger aplica as mesmas regras de saldo do ledger Postgres
type memLedger struct{ t *memTx }

func (l memLedger) Balance(_ context.Context, userID string, _ bool) (decimal.Decimal, error) {
	if err := l.t.s.fault("Balance"); err != nil {
		return decimal.Zero, err
	}
	bal, ok := l.t.st.wallets[userID]
	if !ok {
		return decimal.Zero, wallet.ErrWalletNotFound
	}
	return bal, nil
}

func (l memLedger) Credit(_ context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if err := l.t.s.fault("Credit"); err != nil {
		return decimal.Zero, err
	}
	return l.apply(userID, amount, amount, "CREDIT", ref)
}

func (l memLedger) Debit(_ context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if err := l.t.s.fault("Debit"); err != nil {
		return decimal.Zero, err
	}
	return l.apply(userID, amount, amount.Neg(), "DEBIT", ref)
}

func (l memLedger) apply(userID string, amount, delta decimal.Decimal, op, ref string) (decimal.Decimal, error) {
	if err := wallet.ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	bal, ok := l.t.st.wallets[userID]
	if !ok {
		return decimal.Zero, wallet.ErrWalletNotFound
	}
	next, err := wallet.NextBalance(bal, delta)
	if err != nil {
		return decimal.Zero, err
	}
	l.t.st.wallets[userID] = next
	l.t.st.ledger = append(l.t.st.ledger, LedgerEntry{UserID: userID, Op: op, Amount: amount, Ref: ref})
	return next, nil
}
