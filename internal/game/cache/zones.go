package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/radieske/elimination-zones/internal/game/model"
)

const keyPrefix = "battle-royale:"

// ZoneKey é a chave do total de uma zona de uma rodada
func ZoneKey(roundID string, zone int) string {
	return keyPrefix + roundID + ":zone:" + strconv.Itoa(zone)
}

// RoundKey é o hash zona -> total da rodada
func RoundKey(roundID string) string { return keyPrefix + roundID + ":zones" }

// ZoneCache guarda a projeção de totais por zona no Redis.
// Cada zona tem uma chave string própria e um campo no hash da rodada; o hash
// só é considerado válido com as oito zonas presentes.
type ZoneCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewZoneCache(c *redis.Client, ttl time.Duration) *ZoneCache {
	return &ZoneCache{Client: c, TTL: ttl}
}

// Zone lê o total de uma zona; ok=false em cache miss
func (c *ZoneCache) Zone(ctx context.Context, roundID string, zone int) (decimal.Decimal, bool, error) {
	s, err := c.Client.Get(ctx, ZoneKey(roundID, zone)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis get zone: %w", err)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		// valor corrompido é tratado como miss e reconstruído
		return decimal.Zero, false, nil
	}
	return v, true, nil
}

// Zones lê o hash da rodada; hash parcial ou ilegível conta como miss
func (c *ZoneCache) Zones(ctx context.Context, roundID string) (map[int]decimal.Decimal, bool, error) {
	m, err := c.Client.HGetAll(ctx, RoundKey(roundID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis hgetall zones: %w", err)
	}
	if len(m) < model.MaxZone {
		return nil, false, nil
	}
	out := make(map[int]decimal.Decimal, model.MaxZone)
	for z := model.MinZone; z <= model.MaxZone; z++ {
		s, ok := m[strconv.Itoa(z)]
		if !ok {
			return nil, false, nil
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return nil, false, nil
		}
		out[z] = v
	}
	return out, true, nil
}

// SetZone sobrescreve a chave da zona e o campo correspondente do hash.
// Só deve ser chamado por quem detém o lock da zona.
func (c *ZoneCache) SetZone(ctx context.Context, roundID string, zone int, total decimal.Decimal) error {
	rk := RoundKey(roundID)
	_, err := c.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, ZoneKey(roundID, zone), total.StringFixed(model.MoneyPlaces), c.TTL)
		p.HSet(ctx, rk, strconv.Itoa(zone), total.StringFixed(model.MoneyPlaces))
		p.Expire(ctx, rk, c.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set zone: %w", err)
	}
	return nil
}

// Fill semeia chaves e campos ausentes sem sobrescrever valores existentes
func (c *ZoneCache) Fill(ctx context.Context, roundID string, totals map[int]decimal.Decimal) error {
	rk := RoundKey(roundID)
	_, err := c.Client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for z := model.MinZone; z <= model.MaxZone; z++ {
			v := totals[z].StringFixed(model.MoneyPlaces)
			p.SetNX(ctx, ZoneKey(roundID, z), v, c.TTL)
			p.HSetNX(ctx, rk, strconv.Itoa(z), v)
		}
		p.Expire(ctx, rk, c.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis fill zones: %w", err)
	}
	return nil
}

// Delete remove as nove chaves da rodada
func (c *ZoneCache) Delete(ctx context.Context, roundID string) error {
	keys := make([]string, 0, model.MaxZone+1)
	for z := model.MinZone; z <= model.MaxZone; z++ {
		keys = append(keys, ZoneKey(roundID, z))
	}
	keys = append(keys, RoundKey(roundID))
	if err := c.Client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete zones: %w", err)
	}
	return nil
}
