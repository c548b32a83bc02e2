package zones

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/game/repo"
	"github.com/radieske/elimination-zones/internal/shared/logger"
)

// Cache é a projeção zona -> total por rodada
type Cache interface {
	Zone(ctx context.Context, roundID string, zone int) (decimal.Decimal, bool, error)
	Zones(ctx context.Context, roundID string) (map[int]decimal.Decimal, bool, error)
	// SetZone sobrescreve; exige o lock da zona
	SetZone(ctx context.Context, roundID string, zone int, total decimal.Decimal) error
	// Fill grava apenas o que estiver ausente
	Fill(ctx context.Context, roundID string, totals map[int]decimal.Decimal) error
	Delete(ctx context.Context, roundID string) error
}

// Locker serializa escritores de uma mesma chave
type Locker interface {
	Acquire(ctx context.Context, key string) (unlock func(), err error)
}

// Aggregator mantém os totais por zona de cada rodada no cache, reconstruindo
// a partir do armazenamento durável quando falta alguma chave. O cache nunca é
// a única cópia de uma aposta.
type Aggregator struct {
	cache  Cache
	locker Locker
	store  repo.ZoneLoader
	log    *zap.Logger
}

func NewAggregator(cache Cache, locker Locker, store repo.ZoneLoader, log *zap.Logger) *Aggregator {
	return &Aggregator{cache: cache, locker: locker, store: store, log: log}
}

func lockName(roundID string, zone int) string {
	return "zones:" + roundID + ":" + strconv.Itoa(zone)
}

// InitRound semeia as chaves da rodada com os totais duráveis (zeros numa rodada nova)
func (a *Aggregator) InitRound(ctx context.Context, roundID string) error {
	totals, err := a.store.ZoneTotals(ctx, roundID)
	if err != nil {
		return fmt.Errorf("init round zones: %w", err)
	}
	return a.cache.Fill(ctx, roundID, totals)
}

// AddToZone soma amount ao total da zona sob o lock da zona e devolve o novo total.
// Em cache miss o total é reconstruído via loader, que durante uma aposta é a
// própria transação (enxerga as apostas já gravadas por ela).
func (a *Aggregator) AddToZone(ctx context.Context, loader repo.ZoneLoader, roundID string, zone int, amount decimal.Decimal) (decimal.Decimal, error) {
	if !model.ValidZone(zone) {
		return decimal.Zero, fmt.Errorf("%w: zone %d", model.ErrInvalidBet, zone)
	}
	if loader == nil {
		loader = a.store
	}

	unlock, err := a.locker.Acquire(ctx, lockName(roundID, zone))
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()

	current, ok, err := a.cache.Zone(ctx, roundID, zone)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		totals, err := loader.ZoneTotals(ctx, roundID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("rebuild zone %d: %w", zone, err)
		}
		current = totals[zone]
	}

	next := current.Add(amount)
	if err := a.cache.SetZone(ctx, roundID, zone, next); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

// GetZones devolve os totais das oito zonas, com backfill em cache miss
func (a *Aggregator) GetZones(ctx context.Context, roundID string) (map[int]decimal.Decimal, error) {
	zones, ok, err := a.cache.Zones(ctx, roundID)
	if err != nil {
		a.log.Warn("zone cache read failed, using store", logger.RoundID(roundID), zap.Error(err))
	} else if ok {
		return zones, nil
	}

	totals, err := a.store.ZoneTotals(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("load zone totals: %w", err)
	}
	if err := a.cache.Fill(ctx, roundID, totals); err != nil {
		a.log.Warn("zone cache backfill failed", logger.RoundID(roundID), zap.Error(err))
	}
	return totals, nil
}

// Clear remove todas as chaves da rodada
func (a *Aggregator) Clear(ctx context.Context, roundID string) error {
	return a.cache.Delete(ctx, roundID)
}
