package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/elimination-zones/internal/game/betting"
	gcache "github.com/radieske/elimination-zones/internal/game/cache"
	"github.com/radieske/elimination-zones/internal/game/events"
	"github.com/radieske/elimination-zones/internal/game/query"
	"github.com/radieske/elimination-zones/internal/game/repo"
	"github.com/radieske/elimination-zones/internal/game/zones"
	"github.com/radieske/elimination-zones/internal/shared/cache"
	"github.com/radieske/elimination-zones/internal/shared/config"
	"github.com/radieske/elimination-zones/internal/shared/db"
	"github.com/radieske/elimination-zones/internal/shared/httpserver"
	"github.com/radieske/elimination-zones/internal/shared/kafka"
	"github.com/radieske/elimination-zones/internal/shared/logger"
	"github.com/radieske/elimination-zones/internal/shared/metrics"
	httpapi "github.com/radieske/elimination-zones/internal/zones-service/http"
	"github.com/radieske/elimination-zones/internal/zones-service/ws"
)

func main() {
	cfg := config.LoadFor("zones-service")

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres + migrações
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	log.Info("postgres connected")

	// Redis: cache de zonas, locks, ranking e pub/sub do websocket
	rdb, err := cache.ConnectRedis(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("redis connected")

	// Kafka writer sem tópico fixo
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

	hub := ws.NewHub(func(*http.Request) bool { return true }, log)
	api := &httpapi.API{
		Log:     log,
		Queries: query.NewService(store, agg, gcache.NewProfitCache(rdb, cfg.ProfitCacheTTL), log),
		Bets:    betting.NewPlacer(store, agg, pub, log, m),
		Feed:    hub.HandleWS,
	}

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := metrics.NewServer(cfg.MetricsPort,
		metrics.HealthCheck{Name: "postgres", Check: pg.PingContext},
		metrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		metrics.HealthCheck{Name: "kafka", Check: func(ctx context.Context) error { return kafka.Ping(ctx, cfg.KafkaBrokers) }},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Run(gctx, apiSrv, "api", log) })
	g.Go(func() error { return httpserver.Run(gctx, metricsSrv, "metrics/health", log) })
	g.Go(func() error { return ws.RunRedisSubscriber(gctx, rdb, cfg.RedisPubSubChannel, hub, log) })

	if err := g.Wait(); err != nil {
		log.Error("service stopped with error", zap.Error(err))
		return
	}
	log.Info("service stopped")
}
