package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/elimination-zones/internal/shared/config"
	"github.com/radieske/elimination-zones/internal/shared/httpserver"
	"github.com/radieske/elimination-zones/internal/shared/logger"
)

func rp(to string, log *zap.Logger) *httputil.ReverseProxy {
	u, err := url.Parse(to)
	if err != nil {
		log.Fatal("invalid upstream url", zap.String("url", to), zap.Error(err))
	}
	return httputil.NewSingleHostReverseProxy(u)
}

func main() {
	cfg := config.LoadFor("api-gateway")
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zones := rp(cfg.ZonesURL, log)
	wallet := rp(cfg.WalletURL, log)

	mux := http.NewServeMux()

	// rodadas, apostas e websocket (ex.: /api/zones/v1/rounds/current -> zones-service)
	mux.Handle("/api/zones/", http.StripPrefix("/api/zones", zones))

	// wallet (ex.: /api/wallet/wallet?userId=... -> wallet-service)
	mux.Handle("/api/wallet/", http.StripPrefix("/api/wallet", wallet))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := httpserver.Run(ctx, srv, "api-gateway", log); err != nil {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
