package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/elimination-zones/internal/shared/config"
	"github.com/radieske/elimination-zones/internal/shared/db"
	"github.com/radieske/elimination-zones/internal/shared/httpserver"
	"github.com/radieske/elimination-zones/internal/shared/logger"
	"github.com/radieske/elimination-zones/internal/shared/metrics"
	"github.com/radieske/elimination-zones/internal/wallet"
	whttp "github.com/radieske/elimination-zones/internal/wallet-service/http"
)

func main() {
	cfg := config.LoadFor("wallet-service")

	// Inicializa logger estruturado
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Conexão com Postgres para operações de carteira
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Instancia repositório e servidor HTTP da wallet
	api := whttp.NewServer(log, wallet.NewRepo(pg))

	// Servidor HTTP público (API de wallet)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8082
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Servidor de métricas e health check
	metricsSrv := metrics.NewServer(cfg.MetricsPort, metrics.HealthCheck{Name: "postgres", Check: pg.PingContext})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Run(gctx, apiSrv, "api", log) })
	g.Go(func() error { return httpserver.Run(gctx, metricsSrv, "metrics/health", log) })

	if err := g.Wait(); err != nil {
		log.Error("service stopped with error", zap.Error(err))
	}
}
