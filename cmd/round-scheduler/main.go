package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	gcache "github.com/radieske/elimination-zones/internal/game/cache"
	"github.com/radieske/elimination-zones/internal/game/events"
	"github.com/radieske/elimination-zones/internal/game/random"
	"github.com/radieske/elimination-zones/internal/game/repo"
	"github.com/radieske/elimination-zones/internal/game/scheduler"
	"github.com/radieske/elimination-zones/internal/game/settlement"
	"github.com/radieske/elimination-zones/internal/game/zones"
	"github.com/radieske/elimination-zones/internal/shared/cache"
	"github.com/radieske/elimination-zones/internal/shared/config"
	"github.com/radieske/elimination-zones/internal/shared/db"
	"github.com/radieske/elimination-zones/internal/shared/httpserver"
	"github.com/radieske/elimination-zones/internal/shared/kafka"
	"github.com/radieske/elimination-zones/internal/shared/logger"
	"github.com/radieske/elimination-zones/internal/shared/metrics"
)

// round-scheduler roda em uma única instância: cria, inicia e liquida rodadas
func main() {
	cfg := config.LoadFor("round-scheduler")

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	rdb, err := cache.ConnectRedis(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	writer := kafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()

	store := repo.NewPostgres(pg)
	agg := zones.NewAggregator(
		gcache.NewZoneCache(rdb, cfg.ZoneCacheTTL),
		gcache.NewLocker(rdb, cfg.ZoneLockTimeout),
		store, log)
	pub := events.Multi{
		events.NewKafkaPublisher(writer, events.Topics{
			RoundStatus:    cfg.TopicRoundStatus,
			RoundSettled:   cfg.TopicRoundSettled,
			BetsPlaced:     cfg.TopicBetsPlaced,
			BalanceChanged: cfg.TopicBalanceChanged,
		}, log),
		events.NewRedisBroadcaster(rdb, agg, cfg.RedisPubSubChannel),
	}
	m := metrics.NewGame(prometheus.DefaultRegisterer)

	engine := settlement.NewEngine(random.New(), agg, log)
	sched := scheduler.New(store, engine, agg, pub, log, m, scheduler.Config{
		Interval: cfg.SchedulerInterval,
		LeadTime: cfg.RoundLeadTime,
		Duration: cfg.RoundDuration,
	}).WithProfitCache(gcache.NewProfitCache(rdb, cfg.ProfitCacheTTL))

	metricsSrv := metrics.NewServer(cfg.MetricsPort,
		metrics.HealthCheck{Name: "postgres", Check: pg.PingContext},
		metrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return httpserver.Run(gctx, metricsSrv, "metrics/health", log) })

	if err := g.Wait(); err != nil {
		log.Error("service stopped with error", zap.Error(err))
		return
	}
	log.Info("service stopped")
}
