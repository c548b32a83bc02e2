package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/elimination-zones/internal/game/model"
)

const topProfitsKey = keyPrefix + "top-profits"

// TopProfitsSize é quantas rodadas recentes ficam na lista
const TopProfitsSize = 9

// ProfitCache mantém no Redis a lista dos maiores lucros das últimas rodadas,
// mais recente primeiro
type ProfitCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewProfitCache(c *redis.Client, ttl time.Duration) *ProfitCache {
	return &ProfitCache{Client: c, TTL: ttl}
}

// Top devolve a lista em cache; ok=false quando a chave não existe
func (c *ProfitCache) Top(ctx context.Context) ([]model.RoundProfit, bool, error) {
	raw, err := c.Client.LRange(ctx, topProfitsKey, 0, TopProfitsSize-1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lrange profits: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	out := make([]model.RoundProfit, 0, len(raw))
	for _, s := range raw {
		var p model.RoundProfit
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return nil, false, nil
		}
		out = append(out, p)
	}
	return out, true, nil
}

// Fill substitui a lista inteira (backfill a partir do banco)
func (c *ProfitCache) Fill(ctx context.Context, profits []model.RoundProfit) error {
	vals, err := encodeProfits(profits)
	if err != nil {
		return err
	}
	_, err = c.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, topProfitsKey)
		if len(vals) > 0 {
			p.RPush(ctx, topProfitsKey, vals...)
			p.Expire(ctx, topProfitsKey, c.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis fill profits: %w", err)
	}
	return nil
}

// Push insere o lucro de uma rodada recém-liquidada. Só atua se a lista já
// existir; uma lista ausente é reconstruída inteira na próxima leitura.
func (c *ProfitCache) Push(ctx context.Context, p model.RoundProfit) error {
	vals, err := encodeProfits([]model.RoundProfit{p})
	if err != nil {
		return err
	}
	_, err = c.Client.TxPipelined(ctx, func(pp redis.Pipeliner) error {
		pp.LPushX(ctx, topProfitsKey, vals...)
		pp.LTrim(ctx, topProfitsKey, 0, TopProfitsSize-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis push profit: %w", err)
	}
	return nil
}

func encodeProfits(profits []model.RoundProfit) ([]any, error) {
	vals := make([]any, 0, len(profits))
	for _, p := range profits {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		vals = append(vals, b)
	}
	return vals, nil
}
