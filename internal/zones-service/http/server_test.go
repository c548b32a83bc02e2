package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/elimination-zones/internal/game/betting"
	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/game/query"
	"github.com/radieske/elimination-zones/internal/game/zones"
	"github.com/radieske/elimination-zones/internal/testutil"
	"github.com/radieske/elimination-zones/internal/zones-service/dto"
	httpapi "github.com/radieske/elimination-zones/internal/zones-service/http"
)

type env struct {
	store *testutil.MemStore
	agg   *zones.Aggregator
	h     http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{store: testutil.NewMemStore()}
	e.agg = zones.NewAggregator(testutil.NewMemZoneCache(), testutil.NewMemLocker(time.Second), e.store, zap.NewNop())
	api := &httpapi.API{
		Log:     zap.NewNop(),
		Queries: query.NewService(e.store, e.agg, &testutil.MemProfitCache{}, zap.NewNop()),
		Bets:    betting.NewPlacer(e.store, e.agg, nil, zap.NewNop(), nil),
	}
	e.h = api.Router()
	return e
}

func (e *env) openRound(t *testing.T) model.Round {
	t.Helper()
	now := time.Now()
	r := e.store.PutRound(model.Round{
		Status:    model.RoundWaiting,
		StartTime: now.Add(time.Minute),
		EndTime:   now.Add(6 * time.Minute),
		IsValid:   true,
	})
	_ = e.agg.InitRound(context.Background(), r.ID)
	return r
}

func (e *env) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(httpapi.UserHeader, user)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorBody {
	t.Helper()
	var body dto.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestPlaceBets_ThenCurrentRound(t *testing.T) {
	e := newEnv(t)
	r := e.openRound(t)
	e.store.SetBalance("u1", testutil.D("50"))

	rec := e.do(t, http.MethodPost, "/v1/bets", "u1", `{"bets":[{"zone":3,"amount":"12.5"},{"zone":4,"amount":"1"}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var placed dto.PlaceBetsResponse
	if err := json.NewDecoder(rec.Body).Decode(&placed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if placed.RoundID != r.ID || placed.Total != "13.50" || placed.Balance != "36.50" || placed.Zones["3"] != "12.50" {
		t.Fatalf("receipt = %+v", placed)
	}

	rec = e.do(t, http.MethodGet, "/v1/rounds/current", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("current status = %d", rec.Code)
	}
	var cur dto.CurrentRoundResponse
	if err := json.NewDecoder(rec.Body).Decode(&cur); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cur.Round.ID != r.ID || cur.Round.Status != "waiting" || cur.UserBets["3"] != "12.50" || cur.Zones["4"] != "1.00" {
		t.Fatalf("current = %+v", cur)
	}
	if cur.Round.SafeZones == nil {
		t.Error("safeZones must encode as [] before the draw")
	}

	rec = e.do(t, http.MethodGet, "/v1/rounds/"+r.ID+"/zones", "", "")
	var zb dto.ZoneBetsResponse
	_ = json.NewDecoder(rec.Body).Decode(&zb)
	if rec.Code != http.StatusOK || zb.Total != "13.50" || len(zb.Zones) != model.MaxZone {
		t.Fatalf("zones = %d %+v", rec.Code, zb)
	}
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t)
	e.store.SetBalance("rich", testutil.D("100"))
	e.store.SetBalance("poor", testutil.D("1"))

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		status int
		code   string
	}{
		{"no active round", http.MethodGet, "/v1/rounds/current", "rich", "", http.StatusConflict, "no_active_round"},
		{"bet without round", http.MethodPost, "/v1/bets", "rich", `{"bets":[{"zone":1,"amount":"1"}]}`, http.StatusConflict, "no_active_round"},
		{"unknown round", http.MethodGet, "/v1/rounds/00000000-0000-0000-0000-000000000000", "", "", http.StatusNotFound, "not_found"},
		{"bad page", http.MethodGet, "/v1/rounds/history?page=abc", "", "", http.StatusBadRequest, "validation_error"},
		{"page zero", http.MethodGet, "/v1/rounds/history?page=0", "", "", http.StatusBadRequest, "validation_error"},
		{"bad json", http.MethodPost, "/v1/bets", "rich", `{`, http.StatusBadRequest, "validation_error"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := e.do(t, c.method, c.path, c.user, c.body)
			if rec.Code != c.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, c.status, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Code != c.code {
				t.Fatalf("code = %q, want %q", got.Code, c.code)
			}
		})
	}

	e.openRound(t)
	betCases := []struct {
		name   string
		user   string
		body   string
		status int
		code   string
	}{
		{"missing user", "", `{"bets":[{"zone":1,"amount":"1"}]}`, http.StatusBadRequest, "validation_error"},
		{"zone out of range", "rich", `{"bets":[{"zone":9,"amount":"1"}]}`, http.StatusBadRequest, "validation_error"},
		{"three decimals", "rich", `{"bets":[{"zone":1,"amount":"1.001"}]}`, http.StatusBadRequest, "validation_error"},
		{"insufficient", "poor", `{"bets":[{"zone":1,"amount":"2"}]}`, http.StatusUnprocessableEntity, "insufficient_balance"},
	}
	for _, c := range betCases {
		t.Run(c.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/v1/bets", c.user, c.body)
			if rec.Code != c.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, c.status, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Code != c.code {
				t.Fatalf("code = %q, want %q", got.Code, c.code)
			}
		})
	}
}

type brokenQueries struct{ httpapi.Queries }

func (brokenQueries) TopProfits(context.Context) ([]model.RoundProfit, error) {
	return nil, errors.New("pq: connection reset by peer at 10.0.0.5")
}

func TestInternalErrorIsOpaque(t *testing.T) {
	api := &httpapi.API{Log: zap.NewNop(), Queries: brokenQueries{}}
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rounds/top-profits", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
	if got := decodeError(t, rec); got.Code != "internal_error" {
		t.Fatalf("code = %q", got.Code)
	}
}

func TestTopProfitsEmpty(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/v1/rounds/top-profits", "", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}
