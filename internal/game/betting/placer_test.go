package betting_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/elimination-zones/internal/game/betting"
	"github.com/radieske/elimination-zones/internal/game/events"
	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/game/zones"
	"github.com/radieske/elimination-zones/internal/testutil"
	"github.com/radieske/elimination-zones/internal/wallet"
	cevents "github.com/radieske/elimination-zones/pkg/contracts/events"
)

var d = testutil.D

type env struct {
	store  *testutil.MemStore
	cache  *testutil.MemZoneCache
	locker *testutil.MemLocker
	agg    *zones.Aggregator
	pub    *testutil.RecordingPublisher
	placer *betting.Placer
	round  model.Round
}

func newEnv(t *testing.T, status model.RoundStatus) *env {
	t.Helper()
	e := &env{
		store:  testutil.NewMemStore(),
		cache:  testutil.NewMemZoneCache(),
		locker: testutil.NewMemLocker(time.Second),
		pub:    &testutil.RecordingPublisher{},
	}
	e.agg = zones.NewAggregator(e.cache, e.locker, e.store, zap.NewNop())
	e.placer = betting.NewPlacer(e.store, e.agg, e.pub, zap.NewNop(), nil)
	if status != "" {
		now := time.Now()
		e.round = e.store.PutRound(model.Round{
			Status:    status,
			StartTime: now.Add(time.Minute),
			EndTime:   now.Add(6 * time.Minute),
			IsValid:   true,
		})
		_ = e.agg.InitRound(context.Background(), e.round.ID)
	}
	return e
}

func req(zone int, amount string) betting.BetRequest {
	return betting.BetRequest{Zone: zone, Amount: d(amount)}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		user string
		reqs []betting.BetRequest
	}{
		{"no user", "", []betting.BetRequest{req(1, "1")}},
		{"empty list", "u", nil},
		{"zone zero", "u", []betting.BetRequest{req(0, "1")}},
		{"zone nine", "u", []betting.BetRequest{req(9, "1")}},
		{"zero amount", "u", []betting.BetRequest{req(1, "0")}},
		{"negative amount", "u", []betting.BetRequest{req(1, "-5")}},
		{"three decimals", "u", []betting.BetRequest{req(1, "1.001")}},
		{"second pair bad", "u", []betting.BetRequest{req(1, "1"), req(12, "1")}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := betting.Validate(c.user, c.reqs); !errors.Is(err, model.ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
	if err := betting.Validate("u", []betting.BetRequest{req(8, "0.01"), req(1, "100.10")}); err != nil {
		t.Fatalf("valid bets rejected: %v", err)
	}
}

func TestPlace_ValidationOpensNoUnitOfWork(t *testing.T) {
	e := newEnv(t, model.RoundWaiting)
	e.store.InjectFault("ActiveRound", errors.New("must not be reached"))

	_, err := e.placer.Place(context.Background(), "u1", []betting.BetRequest{req(3, "1.555")})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestPlace_Success(t *testing.T) {
	e := newEnv(t, model.RoundWaiting)
	ctx := context.Background()
	e.store.SetBalance("u1", d("100"))

	rc, err := e.placer.Place(ctx, "u1", []betting.BetRequest{req(1, "10"), req(2, "5.50")})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if rc.RoundID != e.round.ID || len(rc.Bets) != 2 || !rc.Total.Equal(d("15.50")) {
		t.Fatalf("receipt %+v", rc)
	}
	if !rc.Balance.Equal(d("84.50")) || !e.store.Balance("u1").Equal(d("84.50")) {
		t.Errorf("balance receipt=%s store=%s", rc.Balance, e.store.Balance("u1"))
	}

	r, _ := e.store.Round(e.round.ID)
	if !r.TotalBets.Equal(d("15.50")) {
		t.Errorf("total bets = %s", r.TotalBets)
	}
	got, err := e.agg.GetZones(ctx, e.round.ID)
	if err != nil {
		t.Fatalf("zones: %v", err)
	}
	if !got[1].Equal(d("10")) || !got[2].Equal(d("5.50")) {
		t.Errorf("zones = %v", got)
	}

	_, _, placed, balances := e.pub.Snapshot()
	if len(placed) != 1 || placed[0].UserID != "u1" || len(placed[0].Bets) != 2 || placed[0].RoundStatus != "waiting" {
		t.Errorf("bets placed events = %+v", placed)
	}
	if len(balances) != 1 || balances[0][0] != "u1" {
		t.Errorf("balance events = %v", balances)
	}
}

func TestPlace_NoActiveRound(t *testing.T) {
	e := newEnv(t, "")
	e.store.SetBalance("u1", d("100"))
	_, err := e.placer.Place(context.Background(), "u1", []betting.BetRequest{req(1, "1")})
	if !errors.Is(err, model.ErrNoActiveRound) {
		t.Fatalf("got %v, want ErrNoActiveRound", err)
	}
}

func TestPlace_RoundAlreadySettling(t *testing.T) {
	e := newEnv(t, model.RoundSettling)
	e.store.SetBalance("u1", d("100"))

	_, err := e.placer.Place(context.Background(), "u1", []betting.BetRequest{req(1, "1")})
	if !errors.Is(err, model.ErrNoActiveRound) {
		t.Fatalf("got %v, want ErrNoActiveRound", err)
	}
	if len(e.store.Bets()) != 0 || !e.store.Balance("u1").Equal(d("100")) {
		t.Fatal("bet accepted on a settling round")
	}
}

func TestPlace_InsufficientBalance(t *testing.T) {
	e := newEnv(t, model.RoundRunning)
	ctx := context.Background()
	e.store.SetBalance("u1", d("10"))

	_, err := e.placer.Place(ctx, "u1", []betting.BetRequest{req(1, "6"), req(2, "4.01")})
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if len(e.store.Bets()) != 0 || !e.store.Balance("u1").Equal(d("10")) {
		t.Fatal("partial effects after rejected bet")
	}
	got, _ := e.agg.GetZones(ctx, e.round.ID)
	if !got[1].IsZero() || !got[2].IsZero() {
		t.Fatalf("zone totals moved: %v", got)
	}
}

func TestPlace_NoWalletIsInsufficientBalance(t *testing.T) {
	e := newEnv(t, model.RoundRunning)
	_, err := e.placer.Place(context.Background(), "ghost", []betting.BetRequest{req(1, "1")})
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
}

func TestPlace_ConcurrentDrain(t *testing.T) {
	e := newEnv(t, model.RoundRunning)
	ctx := context.Background()
	e.store.SetBalance("u1", d("100"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.placer.Place(ctx, "u1", []betting.BetRequest{req(i+1, "60")})
		}(i)
	}
	wg.Wait()

	ok, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, wallet.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("ok=%d insufficient=%d, want 1/1", ok, insufficient)
	}
	if !e.store.Balance("u1").Equal(d("40")) || len(e.store.Bets()) != 1 {
		t.Fatalf("balance=%s bets=%d", e.store.Balance("u1"), len(e.store.Bets()))
	}

	cached, err := e.agg.GetZones(ctx, e.round.ID)
	if err != nil {
		t.Fatalf("zones: %v", err)
	}
	durable, _ := e.store.ZoneTotals(ctx, e.round.ID)
	for z := model.MinZone; z <= model.MaxZone; z++ {
		if !cached[z].Equal(durable[z]) {
			t.Errorf("zone %d cache %s != durable %s", z, cached[z], durable[z])
		}
	}
}

func TestPlace_ConcurrentUsersMatchDurableTotals(t *testing.T) {
	e := newEnv(t, model.RoundRunning)
	ctx := context.Background()

	const users = 25
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		user := fmt.Sprintf("u%d", i)
		e.store.SetBalance(user, d("50"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.placer.Place(ctx, user, []betting.BetRequest{req(3, "1.01"), req(4, "2")}); err != nil {
				t.Errorf("place %s: %v", user, err)
			}
		}()
	}
	wg.Wait()

	cached, _ := e.agg.GetZones(ctx, e.round.ID)
	durable, _ := e.store.ZoneTotals(ctx, e.round.ID)
	if !cached[3].Equal(durable[3]) || !durable[3].Equal(d("25.25")) {
		t.Fatalf("zone 3 cache=%s durable=%s", cached[3], durable[3])
	}
	if !cached[4].Equal(durable[4]) || !durable[4].Equal(d("50")) {
		t.Fatalf("zone 4 cache=%s durable=%s", cached[4], durable[4])
	}
}

func TestPlace_FailureRollsBackAndClearsCache(t *testing.T) {
	for _, op := range []string{"Debit", "IncrementTotalBets", "RecordBet", "Commit"} {
		t.Run(op, func(t *testing.T) {
			e := newEnv(t, model.RoundRunning)
			ctx := context.Background()
			e.store.SetBalance("u1", d("100"))
			boom := errors.New("injected")
			e.store.InjectFault(op, boom)

			_, err := e.placer.Place(ctx, "u1", []betting.BetRequest{req(5, "30"), req(6, "20")})
			if !errors.Is(err, boom) {
				t.Fatalf("got %v, want injected error", err)
			}
			if len(e.store.Bets()) != 0 || !e.store.Balance("u1").Equal(d("100")) {
				t.Fatal("partial effects after failure")
			}
			r, _ := e.store.Round(e.round.ID)
			if !r.TotalBets.IsZero() {
				t.Fatalf("total bets = %s", r.TotalBets)
			}
			if e.cache.Has(e.round.ID) {
				t.Fatal("zone cache kept uncommitted sums")
			}

			e.store.ClearFaults()
			got, _ := e.agg.GetZones(ctx, e.round.ID)
			if !got[5].IsZero() || !got[6].IsZero() {
				t.Fatalf("rebuilt zones = %v", got)
			}
			_, _, placed, _ := e.pub.Snapshot()
			if len(placed) != 0 {
				t.Fatal("event published for a rolled back bet")
			}
		})
	}
}

func TestPlace_LockTimeoutRollsBack(t *testing.T) {
	e := newEnv(t, model.RoundRunning)
	ctx := context.Background()
	e.store.SetBalance("u1", d("100"))
	e.locker.Timeout = 30 * time.Millisecond

	unlock, err := e.locker.Acquire(ctx, "zones:"+e.round.ID+":2")
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	defer unlock()

	_, err = e.placer.Place(ctx, "u1", []betting.BetRequest{req(1, "5"), req(2, "5")})
	if !errors.Is(err, model.ErrLockTimeout) {
		t.Fatalf("got %v, want ErrLockTimeout", err)
	}
	if len(e.store.Bets()) != 0 || !e.store.Balance("u1").Equal(d("100")) {
		t.Fatal("partial effects after lock timeout")
	}
}

// stalledPublisher simula um broker fora do ar: só retorna quando o contexto expira
type stalledPublisher struct {
	events.Nop
	mu       sync.Mutex
	deadline bool
}

func (p *stalledPublisher) BetsPlaced(ctx context.Context, _ cevents.BetsPlaced) error {
	<-ctx.Done()
	p.mu.Lock()
	_, p.deadline = ctx.Deadline()
	p.mu.Unlock()
	return ctx.Err()
}

func TestPlace_PublishIsBoundedAfterCommit(t *testing.T) {
	e := newEnv(t, model.RoundWaiting)
	pub := &stalledPublisher{}
	placer := betting.NewPlacer(e.store, e.agg, pub, zap.NewNop(), nil).
		WithPublishTimeout(50 * time.Millisecond)
	e.store.SetBalance("u1", d("100"))

	began := time.Now()
	rc, err := placer.Place(context.Background(), "u1", []betting.BetRequest{req(3, "20")})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if took := time.Since(began); took > time.Second {
		t.Fatalf("place waited %s on a stalled publisher", took)
	}
	if len(rc.Bets) != 1 || !e.store.Balance("u1").Equal(d("80")) {
		t.Fatalf("bet not committed: receipt %+v balance %s", rc, e.store.Balance("u1"))
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if !pub.deadline {
		t.Error("publish ran without a deadline")
	}
}
