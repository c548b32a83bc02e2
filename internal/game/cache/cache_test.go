package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/radieske/elimination-zones/internal/game/cache"
	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/testutil"
)

var d = testutil.D

func TestZoneCache_FillSetDelete(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	c := cache.NewZoneCache(rdb, time.Minute)
	ctx := context.Background()

	if _, ok, err := c.Zones(ctx, "r1"); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}

	if err := c.SetZone(ctx, "r1", 4, d("7.5")); err != nil {
		t.Fatalf("set: %v", err)
	}
	// hash parcial ainda é miss
	if _, ok, _ := c.Zones(ctx, "r1"); ok {
		t.Fatal("partial hash reported as hit")
	}

	if err := c.Fill(ctx, "r1", model.ZeroZones()); err != nil {
		t.Fatalf("fill: %v", err)
	}
	all, ok, err := c.Zones(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("zones: ok=%v err=%v", ok, err)
	}
	if !all[4].Equal(d("7.5")) || !all[1].IsZero() {
		t.Fatalf("fill overwrote existing value: %v", all)
	}
	if raw, _ := rdb.Get(ctx, cache.ZoneKey("r1", 4)).Result(); raw != "7.50" {
		t.Errorf("stored value = %q, want 7.50", raw)
	}
	if ttl := rdb.TTL(ctx, cache.RoundKey("r1")).Val(); ttl <= 0 {
		t.Errorf("round key without ttl: %s", ttl)
	}

	if err := c.Delete(ctx, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := rdb.Exists(ctx, cache.RoundKey("r1"), cache.ZoneKey("r1", 4)).Val(); n != 0 {
		t.Fatalf("%d keys left", n)
	}
}

func TestZoneCache_CorruptValueIsMiss(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	c := cache.NewZoneCache(rdb, time.Minute)
	ctx := context.Background()

	rdb.Set(ctx, cache.ZoneKey("r2", 1), "garbage", time.Minute)
	if _, ok, err := c.Zone(ctx, "r2", 1); ok || err != nil {
		t.Fatalf("corrupt value: ok=%v err=%v", ok, err)
	}
}

func TestLocker_MutualExclusionAndTimeout(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	l := cache.NewLocker(rdb, 300*time.Millisecond)
	l.Poll = 10 * time.Millisecond
	ctx := context.Background()

	unlock, err := l.Acquire(ctx, "zones:r:1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "zones:r:1"); !errors.Is(err, model.ErrLockTimeout) {
		t.Fatalf("second acquire: got %v, want ErrLockTimeout", err)
	}
	other, err := l.Acquire(ctx, "zones:r:2")
	if err != nil {
		t.Fatalf("other key blocked: %v", err)
	}
	other()

	unlock()
	unlock()
	again, err := l.Acquire(ctx, "zones:r:1")
	if err != nil {
		t.Fatalf("acquire after unlock: %v", err)
	}
	again()
}

func TestLocker_UnlockKeepsForeignToken(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	l := cache.NewLocker(rdb, time.Second)
	ctx := context.Background()

	unlock, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// o TTL expirou e outro dono pegou a chave
	rdb.Set(ctx, "lock:k", "someone-else", time.Minute)
	unlock()
	if v := rdb.Get(ctx, "lock:k").Val(); v != "someone-else" {
		t.Fatalf("foreign lock removed, now %q", v)
	}
}

func TestLocker_SerializesCounters(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	l := cache.NewLocker(rdb, 5*time.Second)
	l.Poll = 2 * time.Millisecond
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(ctx, "counter")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer unlock()
			v := counter
			time.Sleep(time.Millisecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	if counter != 20 {
		t.Fatalf("counter = %d, want 20", counter)
	}
}

func TestProfitCache(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	c := cache.NewProfitCache(rdb, time.Minute)
	ctx := context.Background()

	if err := c.Push(ctx, model.RoundProfit{RoundID: "lost"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, ok, _ := c.Top(ctx); ok {
		t.Fatal("push created the list")
	}

	var seed []model.RoundProfit
	for i := 0; i < cache.TopProfitsSize; i++ {
		seed = append(seed, model.RoundProfit{RoundID: string(rune('a' + i)), UserID: "u", Profit: d("1.25")})
	}
	if err := c.Fill(ctx, seed); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := c.Push(ctx, model.RoundProfit{RoundID: "new", UserID: "w", Profit: d("99")}); err != nil {
		t.Fatalf("push: %v", err)
	}

	top, ok, err := c.Top(ctx)
	if err != nil || !ok {
		t.Fatalf("top: ok=%v err=%v", ok, err)
	}
	if len(top) != cache.TopProfitsSize || top[0].RoundID != "new" || !top[0].Profit.Equal(d("99")) {
		t.Fatalf("top = %+v", top)
	}
	if top[len(top)-1].RoundID != "h" {
		t.Fatalf("oldest entry not trimmed: %s", top[len(top)-1].RoundID)
	}
}
