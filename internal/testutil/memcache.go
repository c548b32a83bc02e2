package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/elimination-zones/internal/game/model"
	cevents "github.com/radieske/elimination-zones/pkg/contracts/events"
)

// MemZoneCache imita o layout do cache Redis: uma chave por zona e um hash por rodada
type MemZoneCache struct {
	mu     sync.Mutex
	zone   map[string]decimal.Decimal
	hash   map[string]map[int]decimal.Decimal
	faults map[string]error
}

func NewMemZoneCache() *MemZoneCache {
	return &MemZoneCache{
		zone:   make(map[string]decimal.Decimal),
		hash:   make(map[string]map[int]decimal.Decimal),
		faults: make(map[string]error),
	}
}

func zoneKey(roundID string, zone int) string { return fmt.Sprintf("%s:%d", roundID, zone) }

func (c *MemZoneCache) InjectFault(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[op] = err
}

// Has indica se existe alguma chave da rodada
func (c *MemZoneCache) Has(roundID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.hash[roundID]) > 0 {
		return true
	}
	for z := model.MinZone; z <= model.MaxZone; z++ {
		if _, ok := c.zone[zoneKey(roundID, z)]; ok {
			return true
		}
	}
	return false
}

// DropZone remove só a chave de uma zona (simula expiração)
func (c *MemZoneCache) DropZone(roundID string, zone int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.zone, zoneKey(roundID, zone))
}

func (c *MemZoneCache) Zone(_ context.Context, roundID string, zone int) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.faults["Zone"]; err != nil {
		return decimal.Zero, false, err
	}
	v, ok := c.zone[zoneKey(roundID, zone)]
	return v, ok, nil
}

func (c *MemZoneCache) Zones(_ context.Context, roundID string) (map[int]decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.faults["Zones"]; err != nil {
		return nil, false, err
	}
	h := c.hash[roundID]
	if len(h) < model.MaxZone {
		return nil, false, nil
	}
	out := make(map[int]decimal.Decimal, len(h))
	for z, v := range h {
		out[z] = v
	}
	return out, true, nil
}

func (c *MemZoneCache) SetZone(_ context.Context, roundID string, zone int, total decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.faults["SetZone"]; err != nil {
		return err
	}
	c.zone[zoneKey(roundID, zone)] = total
	if c.hash[roundID] == nil {
		c.hash[roundID] = make(map[int]decimal.Decimal)
	}
	c.hash[roundID][zone] = total
	return nil
}

func (c *MemZoneCache) Fill(_ context.Context, roundID string, totals map[int]decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.faults["Fill"]; err != nil {
		return err
	}
	if c.hash[roundID] == nil {
		c.hash[roundID] = make(map[int]decimal.Decimal)
	}
	for z := model.MinZone; z <= model.MaxZone; z++ {
		k := zoneKey(roundID, z)
		if _, ok := c.zone[k]; !ok {
			c.zone[k] = totals[z]
		}
		if _, ok := c.hash[roundID][z]; !ok {
			c.hash[roundID][z] = totals[z]
		}
	}
	return nil
}

func (c *MemZoneCache) Delete(_ context.Context, roundID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.faults["Delete"]; err != nil {
		return err
	}
	for z := model.MinZone; z <= model.MaxZone; z++ {
		delete(c.zone, zoneKey(roundID, z))
	}
	delete(c.hash, roundID)
	return nil
}

// MemLocker é um lock por chave com timeout, sem Redis
type MemLocker struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	Timeout time.Duration
}

func NewMemLocker(timeout time.Duration) *MemLocker {
	return &MemLocker{locks: make(map[string]chan struct{}), Timeout: timeout}
}

func (l *MemLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

func (l *MemLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	timer := time.NewTimer(l.Timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", model.ErrLockTimeout, key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}

// MemProfitCache guarda a lista de lucros como o cache Redis
type MemProfitCache struct {
	mu     sync.Mutex
	list   []model.RoundProfit
	exists bool
	Pushes int
}

func (c *MemProfitCache) Top(context.Context) ([]model.RoundProfit, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exists || len(c.list) == 0 {
		return nil, false, nil
	}
	return append([]model.RoundProfit(nil), c.list...), true, nil
}

func (c *MemProfitCache) Fill(_ context.Context, profits []model.RoundProfit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append([]model.RoundProfit(nil), profits...)
	c.exists = len(profits) > 0
	return nil
}

func (c *MemProfitCache) Push(_ context.Context, p model.RoundProfit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Pushes++
	if !c.exists {
		return nil
	}
	c.list = append([]model.RoundProfit{p}, c.list...)
	if len(c.list) > 9 {
		c.list = c.list[:9]
	}
	return nil
}

// RecordingPublisher guarda os eventos publicados
type RecordingPublisher struct {
	mu       sync.Mutex
	Statuses []cevents.RoundStatus
	Settled  []cevents.RoundSettled
	Placed   []cevents.BetsPlaced
	Balances [][]string
	Err      error
}

func (p *RecordingPublisher) RoundStatus(_ context.Context, e cevents.RoundStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Statuses = append(p.Statuses, e)
	return p.Err
}

func (p *RecordingPublisher) RoundSettled(_ context.Context, e cevents.RoundSettled) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Settled = append(p.Settled, e)
	return p.Err
}

func (p *RecordingPublisher) BetsPlaced(_ context.Context, e cevents.BetsPlaced) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Placed = append(p.Placed, e)
	return p.Err
}

func (p *RecordingPublisher) BalanceChanged(_ context.Context, userIDs []string, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Balances = append(p.Balances, append([]string(nil), userIDs...))
	return p.Err
}

// Snapshot devolve cópias das listas para leitura sem corrida
func (p *RecordingPublisher) Snapshot() (statuses []cevents.RoundStatus, settled []cevents.RoundSettled, placed []cevents.BetsPlaced, balances [][]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append(statuses, p.Statuses...), append(settled, p.Settled...), append(placed, p.Placed...), append(balances, p.Balances...)
}
