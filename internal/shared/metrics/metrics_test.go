package metrics_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	ptest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/radieske/elimination-zones/internal/shared/metrics"
)

func TestGame_NilIsNoop(t *testing.T) {
	var g *metrics.Game
	g.Tick("noop", time.Millisecond)
	g.Settlement("valid", 10)
	g.BetsPlaced(2)
	g.BetRejected("validation")
	g.LockTimeout()
	g.RoundCreated()
	g.SettlementFailures(3)
}

func TestGame_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := metrics.NewGame(reg)

	g.Tick("created", time.Millisecond)
	g.Tick("skipped", 0)
	g.Tick("skipped", 0)
	g.BetsPlaced(3)

	if n := ptest.CollectAndCount(reg, "zones_scheduler_ticks_total"); n != 2 {
		t.Errorf("tick series = %d, want 2", n)
	}
	want := `
# HELP zones_bets_placed_total apostas confirmadas
# TYPE zones_bets_placed_total counter
zones_bets_placed_total 3
`
	if err := ptest.GatherAndCompare(reg, strings.NewReader(want), "zones_bets_placed_total"); err != nil {
		t.Error(err)
	}
}

func TestServer_Healthz(t *testing.T) {
	var failing error
	srv := metrics.NewServer("0",
		metrics.HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		metrics.HealthCheck{Name: "redis", Check: func(context.Context) error { return failing }},
	)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthy = %d %q", rec.Code, rec.Body.String())
	}

	failing = errors.New("connection refused")
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "redis") {
		t.Fatalf("unhealthy = %d %q", rec.Code, rec.Body.String())
	}
}
