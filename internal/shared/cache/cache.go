package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Options reúne o necessário para abrir o cliente Redis dos serviços
type Options struct {
	Addr     string
	Password string
	DB       int
}

// ConnectRedis abre o cliente e valida com um PING; devolve erro se o Redis não responder
func ConnectRedis(ctx context.Context, o Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s/%d: %w", o.Addr, o.DB, err)
	}

	return rdb, nil
}
