package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/radieske/elimination-zones/internal/game/model"
)

// unlockLua só remove a chave se o token ainda for do chamador
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const (
	DefaultLockTimeout = 5 * time.Second
	DefaultLockPoll    = 100 * time.Millisecond
	DefaultLockTTL     = 10 * time.Second
)

// Locker é um lock consultivo por chave (SETNX + TTL) com espera ativa.
// Timeout limita a espera; TTL limita quanto tempo um dono que morreu segura a chave.
type Locker struct {
	rdb      *redis.Client
	unlockSc *redis.Script

	Timeout time.Duration
	Poll    time.Duration
	TTL     time.Duration
}

func NewLocker(rdb *redis.Client, timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Locker{
		rdb:      rdb,
		unlockSc: redis.NewScript(unlockLua),
		Timeout:  timeout,
		Poll:     DefaultLockPoll,
		TTL:      DefaultLockTTL,
	}
}

func lockKey(key string) string { return "lock:" + key }

// Acquire espera até obter o lock ou estourar Timeout (model.ErrLockTimeout).
// A função de unlock pode ser chamada mais de uma vez.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lk := lockKey(key)
	deadline := time.Now().Add(l.Timeout)

	for {
		ok, err := l.rdb.SetNX(ctx, lk, token, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", model.ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Poll):
		}
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// contexto próprio: o unlock precisa rodar mesmo com o ctx do chamador cancelado
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{lk}, token).Err()
	}
	return unlock, nil
}
